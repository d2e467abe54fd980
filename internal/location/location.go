// Package location models where the browser is pointed: either a literal
// folder path or one of the virtual views. It also owns the slash-path math
// used for navigation and move validation.
package location

import (
	"path"
	"strings"
)

// Virtual names a location that is not a folder path.
type Virtual string

const (
	Recent    Virtual = "recent"
	Favorites Virtual = "favorites"
	Shared    Virtual = "shared"
	Trash     Virtual = "trash"
)

// Root is the top of every literal path.
const Root = "/"

var virtualLabels = map[Virtual]string{
	Recent:    "Recent",
	Favorites: "Favorites",
	Shared:    "Shared with me",
	Trash:     "Trash",
}

// Label returns the display name of a virtual view.
func (v Virtual) Label() string {
	if l, ok := virtualLabels[v]; ok {
		return l
	}
	return string(v)
}

// Valid reports whether v is one of the known virtual views.
func (v Virtual) Valid() bool {
	_, ok := virtualLabels[v]
	return ok
}

// ParseVirtual maps a name such as "trash" to its Virtual.
func ParseVirtual(s string) (Virtual, bool) {
	v := Virtual(strings.ToLower(strings.TrimSpace(s)))
	return v, v.Valid()
}

// Location is either a literal Path or a Virtual view, never both.
type Location struct {
	Path    string
	Virtual Virtual
}

// At returns the literal location for p.
func At(p string) Location {
	return Location{Path: Clean(p)}
}

// In returns the virtual location v.
func In(v Virtual) Location {
	return Location{Virtual: v}
}

// IsVirtual reports whether l is a virtual view.
func (l Location) IsVirtual() bool {
	return l.Virtual != ""
}

// IsRoot reports whether l is the literal root.
func (l Location) IsRoot() bool {
	return !l.IsVirtual() && Clean(l.Path) == Root
}

// Equal compares two locations after normalization.
func (l Location) Equal(o Location) bool {
	if l.IsVirtual() || o.IsVirtual() {
		return l.Virtual == o.Virtual
	}
	return Clean(l.Path) == Clean(o.Path)
}

// Parent returns the enclosing folder. Virtual views and the root have none.
func (l Location) Parent() (Location, bool) {
	if l.IsVirtual() || l.IsRoot() {
		return l, false
	}
	return At(Parent(l.Path)), true
}

// Label is the short name shown for the location.
func (l Location) Label() string {
	if l.IsVirtual() {
		return l.Virtual.Label()
	}
	if l.IsRoot() {
		return "Home"
	}
	return Base(l.Path)
}

func (l Location) String() string {
	if l.IsVirtual() {
		return ":" + string(l.Virtual)
	}
	return Clean(l.Path)
}

// Parse accepts either a path or ":name" for a virtual view.
func Parse(s string) Location {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, ":") {
		if v, ok := ParseVirtual(s[1:]); ok {
			return In(v)
		}
	}
	return At(s)
}

// Clean normalizes p to an absolute slash path. Empty input is the root.
func Clean(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	return path.Clean("/" + p)
}

// Parent drops the last segment of p. The parent of the root is the root.
func Parent(p string) string {
	return path.Dir(Clean(p))
}

// Base returns the last segment of p.
func Base(p string) string {
	p = Clean(p)
	if p == Root {
		return ""
	}
	return path.Base(p)
}

// Join appends name to dir.
func Join(dir, name string) string {
	return Clean(path.Join(Clean(dir), name))
}

// Segments splits p into its non-empty segments.
func Segments(p string) []string {
	p = Clean(p)
	if p == Root {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}

// Contains reports whether p equals ancestor or lies beneath it. The test is
// on whole segments, so "/photos" does not contain "/photos2".
func Contains(ancestor, p string) bool {
	ancestor, p = Clean(ancestor), Clean(p)
	if ancestor == Root || ancestor == p {
		return true
	}
	return strings.HasPrefix(p, ancestor+"/")
}

// Rebase rewrites p, which lies under oldRoot, to lie under newRoot.
func Rebase(p, oldRoot, newRoot string) string {
	p, oldRoot = Clean(p), Clean(oldRoot)
	if !Contains(oldRoot, p) {
		return p
	}
	rest := strings.TrimPrefix(p, oldRoot)
	return Clean(Clean(newRoot) + "/" + rest)
}
