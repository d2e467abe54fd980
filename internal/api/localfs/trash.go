package localfs

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

// Trash layout under the root, after the freedesktop.org trash:
//   - .shelf-trash/files/  trashed entries
//   - .shelf-trash/info/   <name>.trashinfo metadata
//
// .trashinfo format:
// [Trash Info]
// Path=/original/collection/path
// DeletionDate=2024-01-15T10:30:45
const (
	trashPath      = "/.shelf-trash"
	trashFilesPath = trashPath + "/files"
	trashInfoPath  = trashPath + "/info"
	trashInfoExt   = ".trashinfo"
	trashDateFmt   = "2006-01-02T15:04:05"
)

func (c *Collection) moveToTrash(p string) error {
	filesDir := c.osPath(trashFilesPath)
	infoDir := c.osPath(trashInfoPath)
	if err := os.MkdirAll(filesDir, 0o700); err != nil {
		return fmt.Errorf("cannot create trash files directory: %w", err)
	}
	if err := os.MkdirAll(infoDir, 0o700); err != nil {
		return fmt.Errorf("cannot create trash info directory: %w", err)
	}

	// Handle conflicts by appending numbers
	baseName := location.Base(p)
	destName := baseName
	for counter := 1; pathExists(filepath.Join(filesDir, destName)); counter++ {
		ext := filepath.Ext(baseName)
		destName = fmt.Sprintf("%s.%d%s", strings.TrimSuffix(baseName, ext), counter, ext)
	}

	infoContent := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		url.PathEscape(p), time.Now().Format(trashDateFmt))
	infoFile := filepath.Join(infoDir, destName+trashInfoExt)
	if err := os.WriteFile(infoFile, []byte(infoContent), 0o600); err != nil {
		return fmt.Errorf("cannot create trashinfo file: %w", err)
	}

	if err := os.Rename(c.osPath(p), filepath.Join(filesDir, destName)); err != nil {
		os.Remove(infoFile)
		return fmt.Errorf("cannot move to trash: %w", err)
	}
	debug.Log(debug.FS, "moveToTrash: %s -> %s", p, destName)
	return nil
}

func (c *Collection) permanentDelete(p string) error {
	full := c.osPath(p)
	info, err := os.Lstat(full)
	if err != nil {
		return err
	}
	if info.IsDir() {
		err = os.RemoveAll(full)
	} else {
		err = os.Remove(full)
	}
	if err != nil {
		return err
	}

	// Drop the metadata of a trashed entry.
	if location.Parent(p) == trashFilesPath {
		os.Remove(filepath.Join(c.osPath(trashInfoPath), location.Base(p)+trashInfoExt))
	}
	debug.Log(debug.FS, "permanentDelete: %s", p)
	return nil
}

// listTrash returns trashed entries, tagged "from:<path>" with their
// original location.
func (c *Collection) listTrash() ([]model.Item, error) {
	entries, err := os.ReadDir(c.osPath(trashFilesPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	items := make([]model.Item, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		it := newItem(location.Join(trashFilesPath, e.Name()), info)
		if orig, deleted, err := c.trashInfo(e.Name()); err == nil {
			if orig != "" {
				it.Tags = []string{"from:" + orig}
			}
			if !deleted.IsZero() {
				it.ModifiedAt = deleted.UTC()
			}
		}
		items = append(items, it)
	}
	return items, nil
}

func (c *Collection) trashInfo(name string) (orig string, deleted time.Time, err error) {
	f, err := os.Open(filepath.Join(c.osPath(trashInfoPath), name+trashInfoExt))
	if err != nil {
		return "", time.Time{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "Path="):
			enc := strings.TrimPrefix(line, "Path=")
			if orig, err = url.PathUnescape(enc); err != nil {
				orig = enc
			}
		case strings.HasPrefix(line, "DeletionDate="):
			if t, err := time.ParseInLocation(trashDateFmt, strings.TrimPrefix(line, "DeletionDate="), time.Local); err == nil {
				deleted = t
			}
		}
	}
	return orig, deleted, scanner.Err()
}

// Restore moves a trashed item back to where it was deleted from.
func (c *Collection) Restore(item model.Item) (model.Item, error) {
	const op = "restore"
	if location.Parent(item.Path) != trashFilesPath {
		return model.Item{}, &api.RejectedError{Op: op, Reason: item.Name + " is not in the trash", Err: api.ErrInvalidDestination}
	}
	name := location.Base(item.Path)
	orig, _, err := c.trashInfo(name)
	if err != nil || orig == "" {
		return model.Item{}, &api.RejectedError{Op: op, Reason: "original location unknown", Err: api.ErrNotFound}
	}
	orig = location.Clean(orig)

	if pathExists(c.osPath(orig)) {
		return model.Item{}, &api.RejectedError{Op: op, Err: api.ErrNameCollision}
	}
	if err := os.MkdirAll(filepath.Dir(c.osPath(orig)), DirPermission); err != nil {
		return model.Item{}, mapErr(op, err)
	}
	if err := os.Rename(c.osPath(item.Path), c.osPath(orig)); err != nil {
		return model.Item{}, mapErr(op, err)
	}
	os.Remove(filepath.Join(c.osPath(trashInfoPath), name+trashInfoExt))
	debug.Log(debug.FS, "Restore: %s -> %s", item.Path, orig)
	return c.stat(op, orig)
}
