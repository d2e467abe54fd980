// Package api defines the remote collection contract the browser core
// consumes and the error taxonomy shared by its implementations.
package api

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

// Collection is a hierarchical store of items. Implementations return
// normalized items (see model.Normalize).
type Collection interface {
	// List returns the items at loc. It has no side effects.
	List(ctx context.Context, loc location.Location) ([]model.Item, error)

	// CreateFolder creates name under parent.
	CreateFolder(ctx context.Context, parent, name string) (model.Item, error)

	// Rename gives item a new leaf name and returns it with its new path.
	Rename(ctx context.Context, item model.Item, newName string) (model.Item, error)

	// Delete removes item, and its descendants when it is a folder.
	Delete(ctx context.Context, item model.Item) error

	// Move reparents item under destDir and returns it with its new path.
	Move(ctx context.Context, item model.Item, destDir string) (model.Item, error)

	// ContentURL returns a URL the content of path can be fetched from.
	ContentURL(path string) string
}

// CacheBust appends a changing query parameter so a retry bypasses caches
// that stored an earlier failed response. attempt 0 returns u unchanged.
func CacheBust(u string, attempt int) string {
	if attempt <= 0 {
		return u
	}
	parsed, err := url.Parse(u)
	if err != nil {
		sep := "?"
		if strings.Contains(u, "?") {
			sep = "&"
		}
		return u + sep + "retry=" + strconv.Itoa(attempt)
	}
	q := parsed.Query()
	q.Set("retry", strconv.Itoa(attempt))
	parsed.RawQuery = q.Encode()
	return parsed.String()
}

// ContentURLFunc adapts c for preview loading with cache busting.
func ContentURLFunc(c Collection) func(path string, attempt int) string {
	return func(path string, attempt int) string {
		return CacheBust(c.ContentURL(path), attempt)
	}
}
