package location

// Crumb is one step in the breadcrumb trail.
type Crumb struct {
	Label    string
	Location Location
}

// Breadcrumbs derives the trail for l: a root crumb plus one per segment of a
// literal path, or a single crumb for a virtual view.
func Breadcrumbs(l Location) []Crumb {
	if l.IsVirtual() {
		return []Crumb{{Label: l.Virtual.Label(), Location: l}}
	}

	segs := Segments(l.Path)
	crumbs := make([]Crumb, 0, len(segs)+1)
	crumbs = append(crumbs, Crumb{Label: "Home", Location: At(Root)})

	cur := Root
	for _, s := range segs {
		cur = Join(cur, s)
		crumbs = append(crumbs, Crumb{Label: s, Location: At(cur)})
	}
	return crumbs
}
