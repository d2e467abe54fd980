package localfs

import (
	"cmp"
	"context"
	iofs "io/fs"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"

	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

// listDir reads one directory level.
func (c *Collection) listDir(p string) ([]model.Item, error) {
	dir := c.osPath(p)
	st, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, &os.PathError{Op: "list", Path: p, Err: iofs.ErrInvalid}
	}

	var result []model.Item
	var mu sync.Mutex

	conf := &fastwalk.Config{
		Follow: true, // Follow symlinks to get target info
	}

	dirLen := len(dir)
	err = fastwalk.Walk(conf, dir, func(fullPath string, d iofs.DirEntry, err error) error {
		if err != nil {
			debug.Log(debug.FS_WALK, "listDir: walk error at %q: %v", fullPath, err)
			return nil
		}
		if fullPath == dir {
			return nil
		}

		// Only direct children; fullPath starts with dir.
		relStart := dirLen
		if relStart < len(fullPath) && (fullPath[relStart] == '/' || fullPath[relStart] == '\\') {
			relStart++
		}
		if strings.ContainsAny(fullPath[relStart:], "/\\") {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		cp := location.Join(p, d.Name())
		if c.hidden(cp) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}

		info, err := fastwalk.StatDirEntry(fullPath, d)
		if err != nil {
			// Broken symlink
			info, err = os.Lstat(fullPath)
			if err != nil {
				debug.Log(debug.FS_WALK, "listDir: skipping %q: %v", d.Name(), err)
				return nil
			}
		}

		mu.Lock()
		result = append(result, newItem(cp, info))
		mu.Unlock()

		if d.IsDir() {
			return fastwalk.SkipDir
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// fastwalk delivers entries concurrently.
	slices.SortFunc(result, func(a, b model.Item) int { return cmp.Compare(a.Path, b.Path) })
	return result, nil
}

// listRecent walks the whole tree and returns the most recently modified
// files, newest first.
func (c *Collection) listRecent(ctx context.Context) ([]model.Item, error) {
	var files []model.Item
	var mu sync.Mutex

	conf := &fastwalk.Config{Follow: false}
	err := fastwalk.Walk(conf, c.root, func(fullPath string, d iofs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			return nil
		}
		if fullPath == c.root {
			return nil
		}
		cp, ok := c.collectionPath(fullPath)
		if !ok {
			return nil
		}
		if c.hidden(cp) {
			if d.IsDir() {
				return fastwalk.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		debug.Log(debug.FS_WALK, "listRecent: %s", cp)

		mu.Lock()
		files = append(files, newItem(cp, info))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(files, func(a, b model.Item) int {
		return cmp.Or(b.ModifiedAt.Compare(a.ModifiedAt), cmp.Compare(a.Path, b.Path))
	})
	if len(files) > c.cfg.RecentLimit {
		files = files[:c.cfg.RecentLimit]
	}
	return files, nil
}

// listFavorites stats every stored favorite. Favorites that no longer exist
// are skipped.
func (c *Collection) listFavorites(ctx context.Context) ([]model.Item, error) {
	if c.cfg.Favorites == nil {
		return nil, nil
	}
	paths, err := c.cfg.Favorites.Favorites(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, len(paths))
	for _, p := range paths {
		p = location.Clean(p)
		info, err := os.Stat(c.osPath(p))
		if err != nil {
			debug.Log(debug.FS, "listFavorites: skipping %s: %v", p, err)
			continue
		}
		items = append(items, newItem(p, info))
	}
	return items, nil
}
