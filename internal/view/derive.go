package view

import (
	"cmp"
	"slices"
	"strings"

	"github.com/justyntemme/shelf/internal/model"
)

// Field selects the sort key.
type Field int

const (
	SortByName Field = iota
	SortByModified
	SortBySize
	SortByKind
)

var fieldNames = [...]string{"name", "modified", "size", "kind"}

func (f Field) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "name"
}

// ParseField maps "name", "modified", "size" or "kind" to a Field.
func ParseField(s string) (Field, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name":
		return SortByName, true
	case "modified", "modifiedat", "date", "mtime":
		return SortByModified, true
	case "size":
		return SortBySize, true
	case "kind", "type":
		return SortByKind, true
	}
	return SortByName, false
}

// Sort is the user-selected ordering. Folders always precede files.
type Sort struct {
	Field      Field
	Descending bool
}

// Derive filters and orders items for display. It never mutates items and
// returns a fresh slice, so calling it again on the same inputs yields the
// same order.
func Derive(items []model.Item, f Filter, s Sort) []model.Item {
	preds := f.compile()

	out := make([]model.Item, 0, len(items))
	for _, it := range items {
		if matches(it, preds) {
			out = append(out, it)
		}
	}

	slices.SortStableFunc(out, Comparator(s))
	return out
}

func matches(it model.Item, preds []predicate) bool {
	for _, p := range preds {
		if !p(it) {
			return false
		}
	}
	return true
}

// Comparator orders folders first, then by the selected field, then by name
// ascending. Distinct items never compare equal.
func Comparator(s Sort) func(a, b model.Item) int {
	field := fieldCompare(s.Field)
	return func(a, b model.Item) int {
		if a.IsFolder() != b.IsFolder() {
			if a.IsFolder() {
				return -1
			}
			return 1
		}

		if c := field(a, b); c != 0 {
			if s.Descending {
				return -c
			}
			return c
		}

		return cmp.Or(
			compareNames(a.Name, b.Name),
			cmp.Compare(a.Path, b.Path),
			cmp.Compare(a.ID, b.ID),
		)
	}
}

func fieldCompare(f Field) func(a, b model.Item) int {
	switch f {
	case SortByModified:
		return func(a, b model.Item) int { return a.ModifiedAt.Compare(b.ModifiedAt) }
	case SortBySize:
		return func(a, b model.Item) int { return cmp.Compare(a.Size, b.Size) }
	case SortByKind:
		return func(a, b model.Item) int { return cmp.Compare(a.Kind.String(), b.Kind.String()) }
	default:
		return func(a, b model.Item) int { return compareNames(a.Name, b.Name) }
	}
}

// compareNames is case-insensitive with a case-sensitive tiebreak.
func compareNames(a, b string) int {
	return cmp.Or(
		cmp.Compare(strings.ToLower(a), strings.ToLower(b)),
		cmp.Compare(a, b),
	)
}
