// Package selection tracks which item ids the user has selected.
package selection

import (
	"slices"

	"github.com/justyntemme/shelf/internal/model"
)

// Manager holds the selected id set plus the anchor used for range
// selection. It has no lock of its own; the owner serializes access.
type Manager struct {
	ids      map[string]struct{}
	anchor   string
	onChange func(count int)
}

// New returns an empty selection. onChange may be nil.
func New(onChange func(count int)) *Manager {
	return &Manager{ids: make(map[string]struct{}), onChange: onChange}
}

func (m *Manager) changed() {
	if m.onChange != nil {
		m.onChange(len(m.ids))
	}
}

// Toggle flips id and makes it the anchor.
func (m *Manager) Toggle(id string) {
	if _, ok := m.ids[id]; ok {
		delete(m.ids, id)
	} else {
		m.ids[id] = struct{}{}
	}
	m.anchor = id
	m.changed()
}

// SelectOnly replaces the selection with id.
func (m *Manager) SelectOnly(id string) {
	clear(m.ids)
	m.ids[id] = struct{}{}
	m.anchor = id
	m.changed()
}

// SelectRange selects every item in view between the anchor and target,
// inclusive, in display order. Without a visible anchor it degrades to
// SelectOnly(target).
func (m *Manager) SelectRange(view []model.Item, target string) {
	from := slices.IndexFunc(view, func(it model.Item) bool { return it.ID == m.anchor })
	to := slices.IndexFunc(view, func(it model.Item) bool { return it.ID == target })
	if to < 0 {
		return
	}
	if from < 0 {
		m.SelectOnly(target)
		return
	}
	if from > to {
		from, to = to, from
	}
	clear(m.ids)
	for _, it := range view[from : to+1] {
		m.ids[it.ID] = struct{}{}
	}
	m.changed()
}

// SelectAll selects every item in view.
func (m *Manager) SelectAll(view []model.Item) {
	clear(m.ids)
	for _, it := range view {
		m.ids[it.ID] = struct{}{}
	}
	if len(view) > 0 {
		m.anchor = view[0].ID
	}
	m.changed()
}

// Clear empties the selection.
func (m *Manager) Clear() {
	if len(m.ids) == 0 && m.anchor == "" {
		return
	}
	clear(m.ids)
	m.anchor = ""
	m.changed()
}

// Prune drops ids not present in keep. It reports whether anything changed.
func (m *Manager) Prune(keep func(id string) bool) bool {
	removed := false
	for id := range m.ids {
		if !keep(id) {
			delete(m.ids, id)
			removed = true
		}
	}
	if m.anchor != "" && !keep(m.anchor) {
		m.anchor = ""
	}
	if removed {
		m.changed()
	}
	return removed
}

// Rename moves a selected id to its replacement, e.g. after a pending
// folder is reconciled with the server's id.
func (m *Manager) Rename(oldID, newID string) {
	if _, ok := m.ids[oldID]; ok {
		delete(m.ids, oldID)
		m.ids[newID] = struct{}{}
	}
	if m.anchor == oldID {
		m.anchor = newID
	}
}

// Contains reports whether id is selected.
func (m *Manager) Contains(id string) bool {
	_, ok := m.ids[id]
	return ok
}

// Count returns the number of selected ids.
func (m *Manager) Count() int { return len(m.ids) }

// Anchor returns the last toggled or single-selected id.
func (m *Manager) Anchor() string { return m.anchor }

// IDs returns the selected ids, sorted.
func (m *Manager) IDs() []string {
	out := make([]string, 0, len(m.ids))
	for id := range m.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Set returns a copy of the selection as a set.
func (m *Manager) Set() map[string]bool {
	out := make(map[string]bool, len(m.ids))
	for id := range m.ids {
		out[id] = true
	}
	return out
}
