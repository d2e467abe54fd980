// Package store persists favorites and browser settings in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/logging"
)

// Setting keys.
const (
	KeySortField      = "sort.field"
	KeySortDescending = "sort.descending"
	KeyLastLocation   = "browser.lastLocation"
)

// DB is a SQLite-backed store. It is safe for concurrent use.
type DB struct {
	conn *sql.DB
}

// Open initializes the database connection and schema
func Open(dbPath string) (*DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		conn.SetMaxOpenConns(1)
	}

	d := &DB{conn: conn}
	if err := d.init(); err != nil {
		conn.Close()
		return nil, err
	}
	debug.Log(debug.STORE, "Open: %s", dbPath)
	return d, nil
}

func (d *DB) init() error {
	// WAL mode allows simultaneous readers and writers
	if _, err := d.conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return err
	}
	// Synchronous NORMAL is safe against app crashes, faster than FULL
	if _, err := d.conn.Exec("PRAGMA synchronous=NORMAL;"); err != nil {
		return err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS favorites (
			path TEXT PRIMARY KEY,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, q := range schema {
		if _, err := d.conn.Exec(q); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	return nil
}

// Favorites returns favorite paths in the order they were added.
func (d *DB) Favorites(ctx context.Context) ([]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT path FROM favorites ORDER BY created_at ASC, rowid ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favs []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		favs = append(favs, path)
	}
	return favs, rows.Err()
}

// AddFavorite stores path. Duplicates are ignored.
func (d *DB) AddFavorite(ctx context.Context, path string) error {
	_, err := d.conn.ExecContext(ctx, "INSERT OR IGNORE INTO favorites (path) VALUES (?)", path)
	if err != nil {
		logging.Error("store: add favorite", zap.String("path", path), zap.Error(err))
	}
	return err
}

// RemoveFavorite deletes path.
func (d *DB) RemoveFavorite(ctx context.Context, path string) error {
	_, err := d.conn.ExecContext(ctx, "DELETE FROM favorites WHERE path = ?", path)
	if err != nil {
		logging.Error("store: remove favorite", zap.String("path", path), zap.Error(err))
	}
	return err
}

// RenameFavorites rewrites favorites at or under oldPath after a rename or
// move.
func (d *DB) RenameFavorites(ctx context.Context, oldPath, newPath string) error {
	_, err := d.conn.ExecContext(ctx, `
		UPDATE OR REPLACE favorites
		SET path = ? || substr(path, length(?) + 1)
		WHERE path = ? OR path LIKE ? ESCAPE '\'`,
		newPath, oldPath, oldPath, likePrefix(oldPath))
	return err
}

// RemoveFavoritesUnder deletes favorites at or under p.
func (d *DB) RemoveFavoritesUnder(ctx context.Context, p string) error {
	_, err := d.conn.ExecContext(ctx, `DELETE FROM favorites WHERE path = ? OR path LIKE ? ESCAPE '\'`, p, likePrefix(p))
	return err
}

// IsFavorite reports whether path is a favorite.
func (d *DB) IsFavorite(ctx context.Context, path string) (bool, error) {
	var n int
	err := d.conn.QueryRowContext(ctx, "SELECT COUNT(1) FROM favorites WHERE path = ?", path).Scan(&n)
	return n > 0, err
}

// Settings returns every stored setting.
func (d *DB) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// Setting returns one value and whether it was set.
func (d *DB) Setting(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := d.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// SaveSetting upserts key.
func (d *DB) SaveSetting(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		logging.Error("store: save setting", zap.String("key", key), zap.Error(err))
		return err
	}
	debug.Log(debug.STORE, "SaveSetting: %s=%s", key, value)
	return nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d.conn != nil {
		return d.conn.Close()
	}
	return nil
}

// likePrefix builds a LIKE pattern matching strict descendants of p.
func likePrefix(p string) string {
	r := []rune{}
	for _, c := range p {
		if c == '%' || c == '_' || c == '\\' {
			r = append(r, '\\')
		}
		r = append(r, c)
	}
	if p != "/" {
		r = append(r, '/')
	}
	return string(r) + "%"
}
