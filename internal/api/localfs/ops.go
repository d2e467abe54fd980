package localfs

import (
	"context"
	"os"
	"strings"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

// pathExists checks if a path exists on the filesystem.
func pathExists(p string) bool {
	_, err := os.Lstat(p)
	return err == nil
}

// validName rejects names that are not a single path segment.
func validName(op, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return &api.RejectedError{Op: op, Code: "invalid_name", Reason: "invalid name " + `"` + name + `"`}
	}
	return nil
}

// CreateFolder implements api.Collection.
func (c *Collection) CreateFolder(ctx context.Context, parent, name string) (model.Item, error) {
	const op = "create folder"
	if err := validName(op, name); err != nil {
		return model.Item{}, err
	}
	p := location.Join(parent, name)
	if err := os.Mkdir(c.osPath(p), DirPermission); err != nil {
		return model.Item{}, mapErr(op, err)
	}
	debug.Log(debug.FS, "CreateFolder: %s", p)
	return c.stat(op, p)
}

// Rename implements api.Collection.
func (c *Collection) Rename(ctx context.Context, item model.Item, newName string) (model.Item, error) {
	const op = "rename"
	if err := validName(op, newName); err != nil {
		return model.Item{}, err
	}
	dst := location.Join(location.Parent(item.Path), newName)
	if err := c.relocate(ctx, op, item.Path, dst); err != nil {
		return model.Item{}, err
	}
	return c.stat(op, dst)
}

// Move implements api.Collection.
func (c *Collection) Move(ctx context.Context, item model.Item, destDir string) (model.Item, error) {
	const op = "move"
	destDir = location.Clean(destDir)
	if location.Contains(item.Path, destDir) {
		return model.Item{}, &api.RejectedError{Op: op, Code: "descendant_destination", Err: api.ErrInvalidDestination}
	}
	st, err := os.Stat(c.osPath(destDir))
	if err != nil {
		return model.Item{}, mapErr(op, err)
	}
	if !st.IsDir() {
		return model.Item{}, &api.RejectedError{Op: op, Reason: destDir + " is not a folder", Err: api.ErrInvalidDestination}
	}

	dst := location.Join(destDir, location.Base(item.Path))
	if err := c.relocate(ctx, op, item.Path, dst); err != nil {
		return model.Item{}, err
	}
	return c.stat(op, dst)
}

// relocate renames src to dst without overwriting and keeps favorites in
// step.
func (c *Collection) relocate(ctx context.Context, op, src, dst string) error {
	if src == location.Root {
		return &api.RejectedError{Op: op, Err: api.ErrPermission}
	}
	from, to := c.osPath(src), c.osPath(dst)
	if !pathExists(from) {
		return &api.RejectedError{Op: op, Err: api.ErrNotFound}
	}
	// Case-only renames on case-insensitive filesystems resolve to the same
	// file, so only an unrelated existing entry is a collision.
	if pathExists(to) && !sameFile(from, to) {
		return &api.RejectedError{Op: op, Err: api.ErrNameCollision}
	}
	if err := os.Rename(from, to); err != nil {
		return mapErr(op, err)
	}
	debug.Log(debug.FS, "%s: %s -> %s", op, src, dst)

	if c.cfg.Favorites != nil {
		if err := c.cfg.Favorites.RenameFavorites(ctx, src, dst); err != nil {
			debug.Log(debug.FS, "%s: favorites not updated: %v", op, err)
		}
	}
	return nil
}

func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

// Delete implements api.Collection. With UseTrash, items outside the trash
// are moved into it; items already in the trash are removed for good.
func (c *Collection) Delete(ctx context.Context, item model.Item) error {
	const op = "delete"
	p := location.Clean(item.Path)
	if p == location.Root || p == trashPath {
		return &api.RejectedError{Op: op, Err: api.ErrPermission}
	}
	full := c.osPath(p)
	if !pathExists(full) {
		return &api.RejectedError{Op: op, Err: api.ErrNotFound}
	}

	var err error
	if c.cfg.UseTrash && !location.Contains(trashPath, p) {
		err = c.moveToTrash(p)
	} else {
		err = c.permanentDelete(p)
	}
	if err != nil {
		return mapErr(op, err)
	}

	if c.cfg.Favorites != nil {
		if err := c.cfg.Favorites.RemoveFavoritesUnder(ctx, p); err != nil {
			debug.Log(debug.FS, "delete: favorites not updated: %v", err)
		}
	}
	return nil
}

// stat returns the item at p after a successful mutation.
func (c *Collection) stat(op, p string) (model.Item, error) {
	info, err := os.Stat(c.osPath(p))
	if err != nil {
		return model.Item{}, mapErr(op, err)
	}
	return newItem(p, info), nil
}
