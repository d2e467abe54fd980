package localfs

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/justyntemme/shelf/internal/debug"
)

// Watcher reports collection folders whose contents changed on disk.
type Watcher struct {
	c        *Collection
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	watching map[string]string // os path -> collection path
	notify   chan string
	done     chan struct{}
	debounce time.Duration
}

// NewWatcher creates a watcher for c. Changes are coalesced per folder
// until debounce has passed without further events.
func (c *Collection) NewWatcher(debounce time.Duration) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	dw := &Watcher{
		c:        c,
		watcher:  w,
		watching: make(map[string]string),
		notify:   make(chan string, 10),
		done:     make(chan struct{}),
		debounce: debounce,
	}
	go dw.run()
	return dw, nil
}

func (dw *Watcher) run() {
	lastEvent := make(map[string]time.Time)
	tick := dw.debounce / 2
	if tick <= 0 {
		tick = dw.debounce
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-dw.done:
			return

		case event, ok := <-dw.watcher.Events:
			if !ok {
				return
			}
			if !(event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Write)) {
				continue
			}

			dw.mu.Lock()
			if cp, ok := dw.watching[filepath.Dir(event.Name)]; ok {
				lastEvent[cp] = time.Now()
				debug.Log(debug.FS, "watch: %s on %s", event.Op, event.Name)
			} else if cp, ok := dw.watching[event.Name]; ok {
				lastEvent[cp] = time.Now()
				debug.Log(debug.FS, "watch: %s on watched dir %s", event.Op, cp)
			}
			dw.mu.Unlock()

		case err, ok := <-dw.watcher.Errors:
			if !ok {
				return
			}
			debug.Log(debug.FS, "watch error: %v", err)

		case now := <-ticker.C:
			for dir, at := range lastEvent {
				if now.Sub(at) < dw.debounce {
					continue
				}
				select {
				case dw.notify <- dir:
					debug.Log(debug.FS, "watch: %s changed", dir)
				default:
					// Channel full, skip
				}
				delete(lastEvent, dir)
			}
		}
	}
}

// Watch starts watching the folder at collection path p.
func (dw *Watcher) Watch(p string) error {
	full := dw.c.osPath(p)

	dw.mu.Lock()
	defer dw.mu.Unlock()
	if _, ok := dw.watching[full]; ok {
		return nil
	}
	if err := dw.watcher.Add(full); err != nil {
		return err
	}
	cp, _ := dw.c.collectionPath(full)
	dw.watching[full] = cp
	debug.Log(debug.FS, "Now watching: %s", cp)
	return nil
}

// Unwatch stops watching p.
func (dw *Watcher) Unwatch(p string) error {
	full := dw.c.osPath(p)

	dw.mu.Lock()
	defer dw.mu.Unlock()
	if _, ok := dw.watching[full]; !ok {
		return nil
	}
	if err := dw.watcher.Remove(full); err != nil {
		// The folder may already be gone.
		debug.Log(debug.FS, "Unwatch %s: %v", p, err)
	}
	delete(dw.watching, full)
	return nil
}

// Notify returns the channel that receives changed collection paths.
func (dw *Watcher) Notify() <-chan string {
	return dw.notify
}

// Close shuts down the watcher.
func (dw *Watcher) Close() error {
	close(dw.done)
	return dw.watcher.Close()
}
