// Package app wires the collection browser together: location and
// listings, the derived view, selection, optimistic changes, drag-move,
// search, notifications and the media preview.
package app

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/clock"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/logging"
	"github.com/justyntemme/shelf/internal/model"
	"github.com/justyntemme/shelf/internal/notify"
	"github.com/justyntemme/shelf/internal/preview"
	"github.com/justyntemme/shelf/internal/store"
	"github.com/justyntemme/shelf/internal/view"
)

// SettingsStore persists browser preferences. *store.DB implements it.
type SettingsStore interface {
	Setting(ctx context.Context, key string) (string, bool, error)
	SaveSetting(ctx context.Context, key, value string) error
}

// DirWatcher reports changes to watched folders by collection path.
type DirWatcher interface {
	Watch(p string) error
	Unwatch(p string) error
	Notify() <-chan string
}

// Options configures a Browser. The zero value is usable.
type Options struct {
	Clock          clock.Clock
	Notifications  notify.Durations
	SearchDebounce time.Duration
	Preview        preview.Options
	Loader         preview.Loader
	Sort           view.Sort

	// Settings, when set, restores and saves sort criteria and the last
	// location.
	Settings SettingsStore

	// Watcher, when set, refreshes the listing when the current folder
	// changes on disk.
	Watcher DirWatcher

	// OnSelection is told the new count after every selection change.
	OnSelection func(count int)

	// Derive overrides view.Derive.
	Derive DeriveFunc
}

// Snapshot is everything a presentation layer needs to render.
type Snapshot struct {
	StateSnapshot
	Breadcrumbs   []location.Crumb
	CanBack       bool
	CanForward    bool
	Notifications []notify.Notification
	Preview       preview.Session
	PreviewOpen   bool
}

// Browser composes the controllers behind one subscribe/notify surface.
type Browser struct {
	ctx    context.Context
	cancel context.CancelFunc

	coll     api.Collection
	state    *StateOwner
	nav      *NavigationController
	crud     *Dispatcher
	drag     *DragMove
	search   *SearchController
	notes    *notify.Queue
	viewer   *preview.Viewer
	settings SettingsStore
	watcher  DirWatcher

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	watchMu sync.Mutex
	watched string

	closeNotes func()
	wg         sync.WaitGroup
}

// New creates a browser over coll. Call Navigate or Start to load a
// listing and Close when done.
func New(coll api.Collection, opts Options) *Browser {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Notifications == (notify.Durations{}) {
		opts.Notifications = notify.DefaultDurations
	}
	if opts.Loader == nil {
		opts.Loader = preview.NewProber()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Browser{
		ctx:      ctx,
		cancel:   cancel,
		coll:     coll,
		settings: opts.Settings,
		watcher:  opts.Watcher,
		subs:     make(map[int]func(Snapshot)),
	}

	b.state = NewStateOwner(opts.Derive, b.publish, opts.OnSelection)
	b.notes = notify.NewQueue(opts.Clock, opts.Notifications)
	b.closeNotes = b.notes.Subscribe(func([]notify.Notification) { b.publish() })

	popts := opts.Preview
	popts.OnChange = func(preview.Session) { b.publish() }
	b.viewer = preview.NewViewer(opts.Loader, api.ContentURLFunc(coll), popts)

	b.nav = NewNavigationController(ctx, b.state, coll, b.notes)
	b.nav.onLocation = b.locationChanged
	b.crud = NewDispatcher(ctx, b.state, coll, b.notes)
	b.drag = NewDragMove(b.state, b.crud)
	b.search = NewSearchController(opts.Clock, opts.SearchDebounce, b.state.SetFilter)

	b.state.SetSort(b.restoreSort(opts.Sort))

	if b.watcher != nil {
		b.wg.Add(1)
		go b.watch()
	}
	return b
}

// Nav returns the navigation controller.
func (b *Browser) Nav() *NavigationController { return b.nav }

// CRUD returns the dispatcher for create, rename, delete and move.
func (b *Browser) CRUD() *Dispatcher { return b.crud }

// Drag returns the drag-move engine.
func (b *Browser) Drag() *DragMove { return b.drag }

// Search returns the debounced search box.
func (b *Browser) Search() *SearchController { return b.search }

// Notifications returns the notification queue.
func (b *Browser) Notifications() *notify.Queue { return b.notes }

// Preview returns the media viewer.
func (b *Browser) Preview() *preview.Viewer { return b.viewer }

// State returns the state owner, for selection and reads.
func (b *Browser) State() *StateOwner { return b.state }

// Start navigates to loc, or to the last saved location when loc is the
// zero value.
func (b *Browser) Start(loc location.Location) <-chan struct{} {
	if loc == (location.Location{}) {
		loc = location.At(location.Root)
		if b.settings != nil {
			if v, ok, err := b.settings.Setting(b.ctx, store.KeyLastLocation); err == nil && ok {
				loc = location.Parse(v)
			}
		}
	}
	return b.nav.Navigate(loc)
}

// Navigate moves to loc.
func (b *Browser) Navigate(loc location.Location) <-chan struct{} {
	return b.nav.Navigate(loc)
}

// SetSort changes the ordering and saves it when a settings store is set.
func (b *Browser) SetSort(s view.Sort) {
	b.state.SetSort(s)
	if b.settings == nil {
		return
	}
	if err := b.settings.SaveSetting(b.ctx, store.KeySortField, s.Field.String()); err != nil {
		logging.L().Warn("saving sort field", zap.Error(err))
		return
	}
	if err := b.settings.SaveSetting(b.ctx, store.KeySortDescending, strconv.FormatBool(s.Descending)); err != nil {
		logging.L().Warn("saving sort direction", zap.Error(err))
	}
}

func (b *Browser) restoreSort(def view.Sort) view.Sort {
	if b.settings == nil {
		return def
	}
	s := def
	if v, ok, err := b.settings.Setting(b.ctx, store.KeySortField); err == nil && ok {
		if f, valid := view.ParseField(v); valid {
			s.Field = f
		}
	}
	if v, ok, err := b.settings.Setting(b.ctx, store.KeySortDescending); err == nil && ok {
		if desc, perr := strconv.ParseBool(v); perr == nil {
			s.Descending = desc
		}
	}
	return s
}

// OpenPreview opens the media viewer on item id.
func (b *Browser) OpenPreview(id string) error {
	it, ok := b.state.Item(id)
	if !ok {
		return errors.New("item not found")
	}
	return b.viewer.Open(it)
}

// Snapshot returns the current state.
func (b *Browser) Snapshot() Snapshot {
	st := b.state.Snapshot()
	sess, open := b.viewer.Current()
	return Snapshot{
		StateSnapshot: st,
		Breadcrumbs:   location.Breadcrumbs(st.Location),
		CanBack:       b.nav.CanBack(),
		CanForward:    b.nav.CanForward(),
		Notifications: b.notes.Active(),
		Preview:       sess,
		PreviewOpen:   open,
	}
}

// Subscribe calls fn with a fresh snapshot after every change. The returned
// func unsubscribes.
func (b *Browser) Subscribe(fn func(Snapshot)) (cancel func()) {
	b.subMu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = fn
	b.subMu.Unlock()

	return func() {
		b.subMu.Lock()
		delete(b.subs, id)
		b.subMu.Unlock()
	}
}

func (b *Browser) publish() {
	b.subMu.Lock()
	if len(b.subs) == 0 {
		b.subMu.Unlock()
		return
	}
	subs := make([]func(Snapshot), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.subMu.Unlock()

	snap := b.Snapshot()
	for _, fn := range subs {
		fn(snap)
	}
}

// Wait blocks until in-flight listings and changes have finished.
func (b *Browser) Wait() {
	b.nav.Wait()
	b.crud.Wait()
	b.viewer.Wait()
}

// Close cancels outstanding requests and stops timers.
func (b *Browser) Close() {
	b.cancel()
	b.search.Stop()
	b.viewer.Close()
	b.Wait()
	b.closeNotes()
	b.notes.Close()
	b.wg.Wait()
}

func (b *Browser) locationChanged(loc location.Location) {
	if b.settings != nil && !loc.IsVirtual() {
		if err := b.settings.SaveSetting(b.ctx, store.KeyLastLocation, loc.String()); err != nil {
			debug.Log(debug.STORE, "saving last location: %v", err)
		}
	}
	if b.watcher == nil {
		return
	}

	b.watchMu.Lock()
	defer b.watchMu.Unlock()
	next := ""
	if !loc.IsVirtual() {
		next = loc.Path
	}
	if next == b.watched {
		return
	}
	if b.watched != "" {
		_ = b.watcher.Unwatch(b.watched)
	}
	b.watched = ""
	if next != "" {
		if err := b.watcher.Watch(next); err != nil {
			logging.L().Warn("watching folder", zap.String("path", next), zap.Error(err))
			return
		}
		b.watched = next
	}
}

func (b *Browser) watch() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case p, ok := <-b.watcher.Notify():
			if !ok {
				return
			}
			loc := b.state.Location()
			if loc.IsVirtual() || loc.Path != p {
				continue
			}
			debug.Log(debug.APP, "folder %s changed, refreshing", p)
			b.nav.Refresh()
		}
	}
}

// Items returns the displayed items.
func (b *Browser) Items() []model.Item {
	return b.state.Snapshot().Items
}
