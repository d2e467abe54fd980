package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/justyntemme/shelf/internal/location"
)

// RawItem is the loose wire shape servers send. Several field spellings are
// accepted because different endpoints disagree on them.
type RawItem struct {
	ID           string          `json:"id"`
	Path         string          `json:"path"`
	Name         string          `json:"name"`
	Type         string          `json:"type"`
	Kind         string          `json:"kind"`
	IsDir        bool            `json:"isDir"`
	IsDirSnake   bool            `json:"is_dir"`
	Size         int64           `json:"size"`
	ModifiedAt   json.RawMessage `json:"modifiedAt"`
	ModifiedTime json.RawMessage `json:"modifiedTime"`
	Modified     json.RawMessage `json:"modified"`
	MTime        json.RawMessage `json:"mtime"`
	CreatedAt    json.RawMessage `json:"createdAt"`
	CreatedTime  json.RawMessage `json:"createdTime"`
	Created      json.RawMessage `json:"created"`
	CTime        json.RawMessage `json:"ctime"`
	Tags         []string        `json:"tags"`
	SharedBy     string          `json:"sharedBy"`
}

// ErrNoPath is returned when an entry carries neither a path nor a name.
var ErrNoPath = errors.New("item has no path")

// Normalize converts a wire entry into an Item. parent is used when the
// server only sends a name.
func Normalize(raw RawItem, parent string) (Item, error) {
	p := raw.Path
	if p == "" {
		if raw.Name == "" {
			return Item{}, ErrNoPath
		}
		p = location.Join(parent, raw.Name)
	}
	p = location.Clean(p)

	it := Item{
		ID:       raw.ID,
		Path:     p,
		Name:     raw.Name,
		Size:     raw.Size,
		SharedBy: raw.SharedBy,
	}
	if it.ID == "" {
		it.ID = p
	}
	if it.Name == "" {
		it.Name = location.Base(p)
	}

	switch {
	case raw.IsDir || raw.IsDirSnake:
		it.Kind = KindFolder
	default:
		it.Kind = KindFromName(it.Name)
		for _, s := range []string{raw.Kind, raw.Type} {
			if k, ok := ParseKind(s); ok {
				it.Kind = k
				break
			}
		}
	}
	if it.IsFolder() {
		it.Size = 0
	}

	var err error
	if it.ModifiedAt, err = firstTimestamp(raw.ModifiedAt, raw.ModifiedTime, raw.Modified, raw.MTime); err != nil {
		return Item{}, fmt.Errorf("%s: modified time: %w", p, err)
	}
	if it.CreatedAt, err = firstTimestamp(raw.CreatedAt, raw.CreatedTime, raw.Created, raw.CTime); err != nil {
		return Item{}, fmt.Errorf("%s: created time: %w", p, err)
	}

	it.Tags = dedupeTags(raw.Tags)
	return it, nil
}

// NormalizeAll converts a listing, dropping later entries whose id repeats.
func NormalizeAll(raws []RawItem, parent string) ([]Item, error) {
	items := make([]Item, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, r := range raws {
		it, err := Normalize(r, parent)
		if err != nil {
			return nil, err
		}
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		items = append(items, it)
	}
	return items, nil
}

func firstTimestamp(raws ...json.RawMessage) (time.Time, error) {
	for _, r := range raws {
		r = bytes.TrimSpace(r)
		if len(r) == 0 || bytes.Equal(r, []byte("null")) {
			continue
		}
		return ParseTimestampJSON(r)
	}
	return time.Time{}, nil
}

// ParseTimestampJSON accepts a JSON number or string.
func ParseTimestampJSON(r json.RawMessage) (time.Time, error) {
	if len(r) > 0 && r[0] == '"' {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return time.Time{}, err
		}
		return ParseTimestamp(s)
	}
	var f float64
	if err := json.Unmarshal(r, &f); err != nil {
		return time.Time{}, err
	}
	return FromEpoch(f), nil
}

// epochMillisThreshold separates epoch seconds from epoch milliseconds.
// 1e11 seconds is the year 5138; 1e11 milliseconds is 1973.
const epochMillisThreshold = 1e11

// FromEpoch converts an epoch value in seconds or milliseconds to UTC.
func FromEpoch(v float64) time.Time {
	if v > epochMillisThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp accepts ISO-8601 text or a numeric epoch string.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return FromEpoch(f), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
