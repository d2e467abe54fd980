// Package view derives the display list from a listing snapshot.
package view

import (
	"strings"
	"time"

	"github.com/justyntemme/shelf/internal/model"
)

// SizeBucket bounds file sizes. Zero Max means unbounded.
type SizeBucket struct {
	Name string
	Min  int64
	Max  int64
}

const (
	kib = 1 << 10
	mib = 1 << 20
	gib = 1 << 30
)

// Named size buckets.
var (
	SizeAny    = SizeBucket{}
	SizeEmpty  = SizeBucket{Name: "empty", Min: 0, Max: 1}
	SizeTiny   = SizeBucket{Name: "tiny", Min: 1, Max: 16 * kib}
	SizeSmall  = SizeBucket{Name: "small", Min: 16 * kib, Max: mib}
	SizeMedium = SizeBucket{Name: "medium", Min: mib, Max: 128 * mib}
	SizeLarge  = SizeBucket{Name: "large", Min: 128 * mib, Max: gib}
	SizeHuge   = SizeBucket{Name: "huge", Min: gib}
)

var namedBuckets = []SizeBucket{SizeEmpty, SizeTiny, SizeSmall, SizeMedium, SizeLarge, SizeHuge}

// BucketByName looks up a named bucket.
func BucketByName(name string) (SizeBucket, bool) {
	for _, b := range namedBuckets {
		if strings.EqualFold(b.Name, name) {
			return b, true
		}
	}
	return SizeAny, false
}

// IsAny reports whether the bucket accepts every size.
func (b SizeBucket) IsAny() bool {
	return b.Min == 0 && b.Max == 0
}

// Contains tests a byte count against [Min, Max).
func (b SizeBucket) Contains(size int64) bool {
	if size < b.Min {
		return false
	}
	return b.Max == 0 || size < b.Max
}

// DateRange is either absolute (From/To) or relative (Within, measured back
// from the reference time). Zero bounds are open.
type DateRange struct {
	From   time.Time
	To     time.Time
	Within time.Duration
	Label  string
}

// IsZero reports whether the range accepts every time.
func (r DateRange) IsZero() bool {
	return r.From.IsZero() && r.To.IsZero() && r.Within == 0
}

// Bounds resolves the range against now.
func (r DateRange) Bounds(now time.Time) (from, to time.Time) {
	if r.Within > 0 {
		return now.Add(-r.Within), time.Time{}
	}
	return r.From, r.To
}

// Filter is the structured predicate applied to each item.
type Filter struct {
	Text  string
	Kinds []model.Kind
	Date  DateRange
	Size  SizeBucket
	Tags  []string

	// Now anchors relative date ranges. Zero means the wall clock.
	Now time.Time
}

// IsZero reports whether the filter accepts everything.
func (f Filter) IsZero() bool {
	return f.Text == "" && len(f.Kinds) == 0 && f.Date.IsZero() && f.Size.IsAny() && len(f.Tags) == 0
}

// predicate is one pure test on an item.
type predicate func(model.Item) bool

// compile turns the filter into the list of active predicates. Inactive
// criteria contribute nothing, so an empty filter costs nothing per item.
func (f Filter) compile() []predicate {
	var preds []predicate

	if text := strings.ToLower(strings.TrimSpace(f.Text)); text != "" {
		preds = append(preds, func(it model.Item) bool {
			return strings.Contains(strings.ToLower(it.Name), text)
		})
	}

	if len(f.Kinds) > 0 {
		allowed := make(map[model.Kind]bool, len(f.Kinds))
		for _, k := range f.Kinds {
			allowed[k] = true
		}
		preds = append(preds, func(it model.Item) bool {
			return allowed[it.Kind]
		})
	}

	if !f.Date.IsZero() {
		now := f.Now
		if now.IsZero() {
			now = time.Now()
		}
		from, to := f.Date.Bounds(now)
		preds = append(preds, func(it model.Item) bool {
			if !from.IsZero() && it.ModifiedAt.Before(from) {
				return false
			}
			if !to.IsZero() && it.ModifiedAt.After(to) {
				return false
			}
			return true
		})
	}

	if !f.Size.IsAny() {
		bucket := f.Size
		preds = append(preds, func(it model.Item) bool {
			// Folders carry no meaningful size.
			return it.IsFolder() || bucket.Contains(it.Size)
		})
	}

	if len(f.Tags) > 0 {
		tags := f.Tags
		preds = append(preds, func(it model.Item) bool {
			for _, t := range tags {
				if !it.HasTag(t) {
					return false
				}
			}
			return true
		})
	}

	return preds
}
