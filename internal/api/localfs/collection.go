// Package localfs implements api.Collection over a directory on local disk.
// Collection paths are slash-separated and rooted at the configured
// directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

// Common file permission modes
const (
	DirPermission  = 0o755
	FilePermission = 0o644
)

// DefaultRecentLimit bounds the recent view when Config.RecentLimit is 0.
const DefaultRecentLimit = 50

// FavoriteStore persists favorite paths. *store.DB satisfies it.
type FavoriteStore interface {
	Favorites(ctx context.Context) ([]string, error)
	RenameFavorites(ctx context.Context, oldPath, newPath string) error
	RemoveFavoritesUnder(ctx context.Context, p string) error
}

// Config configures a Collection.
type Config struct {
	Root        string
	ShowHidden  bool
	UseTrash    bool
	RecentLimit int
	Favorites   FavoriteStore
}

// Collection serves a directory tree.
type Collection struct {
	root string
	cfg  Config
}

// New opens the directory at cfg.Root.
func New(cfg Config) (*Collection, error) {
	if cfg.Root == "" {
		return nil, errors.New("localfs: root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("localfs: %s is not a directory", root)
	}
	if cfg.RecentLimit <= 0 {
		cfg.RecentLimit = DefaultRecentLimit
	}
	debug.Log(debug.FS, "New: root=%s trash=%v hidden=%v", root, cfg.UseTrash, cfg.ShowHidden)
	return &Collection{root: root, cfg: cfg}, nil
}

// Root returns the absolute directory the collection serves.
func (c *Collection) Root() string { return c.root }

// osPath maps a collection path to the filesystem.
func (c *Collection) osPath(p string) string {
	return filepath.Join(c.root, filepath.FromSlash(location.Clean(p)))
}

// collectionPath maps a filesystem path under root back to a collection
// path. ok is false for paths outside root.
func (c *Collection) collectionPath(osPath string) (string, bool) {
	rel, err := filepath.Rel(c.root, osPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return location.Clean(filepath.ToSlash(rel)), true
}

// List implements api.Collection.
func (c *Collection) List(ctx context.Context, loc location.Location) ([]model.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, &api.TransportError{Op: "list", Err: err}
	}

	var (
		items []model.Item
		err   error
	)
	switch loc.Virtual {
	case "":
		items, err = c.listDir(loc.Path)
	case location.Recent:
		items, err = c.listRecent(ctx)
	case location.Favorites:
		items, err = c.listFavorites(ctx)
	case location.Trash:
		items, err = c.listTrash()
	default:
		return nil, &api.RejectedError{Op: "list", Reason: loc.Label() + " is not available for local folders", Err: api.ErrUnsupported}
	}
	if err != nil {
		return nil, mapErr("list", err)
	}
	debug.Log(debug.FS, "List %s: %d items", loc, len(items))
	return items, nil
}

// ContentURL implements api.Collection with a file URL.
func (c *Collection) ContentURL(p string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(c.osPath(p))}).String()
}

// newItem builds the item for one filesystem entry.
func newItem(p string, info iofs.FileInfo) model.Item {
	it := model.Item{
		ID:         p,
		Path:       p,
		Name:       location.Base(p),
		ModifiedAt: info.ModTime().UTC(),
	}
	if info.IsDir() {
		it.Kind = model.KindFolder
	} else {
		it.Kind = model.KindFromName(it.Name)
		it.Size = info.Size()
	}
	return it
}

// hidden reports whether a root-relative entry is filtered from listings.
func (c *Collection) hidden(p string) bool {
	if p == trashPath || location.Contains(trashPath, p) {
		return true
	}
	return !c.cfg.ShowHidden && strings.HasPrefix(location.Base(p), ".")
}

// mapErr translates filesystem errors into the api taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *api.TransportError
	var re *api.RejectedError
	if errors.As(err, &te) || errors.As(err, &re) {
		return err
	}

	switch {
	case errors.Is(err, iofs.ErrExist):
		return &api.RejectedError{Op: op, Err: api.ErrNameCollision}
	case errors.Is(err, iofs.ErrNotExist):
		return &api.RejectedError{Op: op, Err: api.ErrNotFound}
	case errors.Is(err, iofs.ErrPermission):
		return &api.RejectedError{Op: op, Err: api.ErrPermission}
	default:
		return &api.TransportError{Op: op, Err: err}
	}
}

var _ api.Collection = (*Collection)(nil)
