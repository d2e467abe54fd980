package app

import (
	"slices"
	"sync"

	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
	"github.com/justyntemme/shelf/internal/selection"
	"github.com/justyntemme/shelf/internal/view"
)

// DeriveFunc computes the display list. view.Derive in production.
type DeriveFunc func(items []model.Item, f view.Filter, s view.Sort) []model.Item

// StateOwner is the single source of truth for the current location, its
// item model, the derived display list, selection and pending operations.
//
// All mutations go through StateOwner methods which hold the mutex.
// Readers get copies via Snapshot so they can never alias internal slices.
// Change callbacks run after the lock is released.
type StateOwner struct {
	mu sync.RWMutex

	loc      location.Location
	items    []model.Item // item model for loc, as last listed and patched
	display  []model.Item // derive(items, filter, sort)
	navGen   uint64       // bumped per listing request
	itemsGen uint64       // bumped whenever items is replaced wholesale
	loading  bool
	listErr  error

	filter view.Filter
	query  string
	sort   view.Sort

	sel      *selection.Manager
	selDirty bool
	pending  map[string]*PendingOp
	buried   []string // folders deleted on the server since items was listed

	derive      DeriveFunc
	onChange    func()
	onSelection func(count int)
}

// StateSnapshot is an immutable copy of the state owner.
type StateSnapshot struct {
	Location  location.Location
	Items     []model.Item
	Total     int
	Loading   bool
	ListErr   error
	Filter    view.Filter
	Query     string
	Sort      view.Sort
	Selection []string
	Pending   map[string]OpKind
}

// NewStateOwner creates an empty state at the root.
func NewStateOwner(derive DeriveFunc, onChange func(), onSelection func(count int)) *StateOwner {
	if derive == nil {
		derive = view.Derive
	}
	s := &StateOwner{
		loc:         location.At(location.Root),
		pending:     make(map[string]*PendingOp),
		derive:      derive,
		onChange:    onChange,
		onSelection: onSelection,
	}
	s.sel = selection.New(func(int) { s.selDirty = true })
	return s
}

// mutate runs fn under the write lock, then reports changes.
func (s *StateOwner) mutate(fn func()) {
	s.mu.Lock()
	s.selDirty = false
	fn()
	dirty, count := s.selDirty, s.sel.Count()
	s.mu.Unlock()

	if dirty && s.onSelection != nil {
		s.onSelection(count)
	}
	if s.onChange != nil {
		s.onChange()
	}
}

// rebuildLocked re-derives the display list and drops selected ids that are
// no longer in the item model.
func (s *StateOwner) rebuildLocked() {
	s.display = s.derive(s.items, s.filter, s.sort)

	present := make(map[string]bool, len(s.items))
	for _, it := range s.items {
		present[it.ID] = true
	}
	if s.sel.Prune(func(id string) bool { return present[id] }) {
		debug.Log(debug.SELECT, "pruned selection to %d", s.sel.Count())
	}
}

// Snapshot returns a copy safe to hand to any goroutine.
func (s *StateOwner) Snapshot() StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending := make(map[string]OpKind, len(s.pending))
	for id, op := range s.pending {
		pending[id] = op.Kind
	}
	return StateSnapshot{
		Location:  s.loc,
		Items:     model.CloneAll(s.display),
		Total:     len(s.items),
		Loading:   s.loading,
		ListErr:   s.listErr,
		Filter:    s.filter,
		Query:     s.query,
		Sort:      s.sort,
		Selection: s.sel.IDs(),
		Pending:   pending,
	}
}

// Location returns the current location.
func (s *StateOwner) Location() location.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc
}

// Item looks up id in the item model.
func (s *StateOwner) Item(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := indexOf(s.items, id); i >= 0 {
		return s.items[i].Clone(), true
	}
	return model.Item{}, false
}

// ItemAt looks up the item whose path is p.
func (s *StateOwner) ItemAt(p string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p = location.Clean(p)
	for _, it := range s.items {
		if it.Path == p {
			return it.Clone(), true
		}
	}
	return model.Item{}, false
}

// PendingCount returns the number of in-flight operations.
func (s *StateOwner) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[*PendingOp]bool, len(s.pending))
	for _, op := range s.pending {
		seen[op] = true
	}
	return len(seen)
}

// beginLoad starts a listing request for loc and returns its generation.
// Moving to a different location drops the old items and the selection;
// keepSelection only applies when loc is unchanged.
func (s *StateOwner) beginLoad(loc location.Location, keepSelection bool) uint64 {
	var gen uint64
	s.mutate(func() {
		s.navGen++
		gen = s.navGen
		if !s.loc.Equal(loc) {
			s.loc = loc
			s.items = nil
			s.itemsGen++
			s.buried = nil
			keepSelection = false
		}
		s.loading = true
		s.listErr = nil
		if !keepSelection {
			s.sel.Clear()
		}
		s.rebuildLocked()
	})
	return gen
}

// applyListing replaces the item model if gen is still the latest request.
// It reports false for a stale response.
func (s *StateOwner) applyListing(gen uint64, items []model.Item) bool {
	applied := false
	s.mutate(func() {
		if gen != s.navGen {
			return
		}
		applied = true
		s.items = model.CloneAll(items)
		s.itemsGen++
		s.buried = nil
		s.loading = false
		s.listErr = nil
		s.rebuildLocked()
	})
	return applied
}

// failListing leaves an empty listing with err in place of the items.
func (s *StateOwner) failListing(gen uint64, err error) bool {
	applied := false
	s.mutate(func() {
		if gen != s.navGen {
			return
		}
		applied = true
		s.items = nil
		s.itemsGen++
		s.buried = nil
		s.loading = false
		s.listErr = err
		s.rebuildLocked()
	})
	return applied
}

// SetFilter replaces the filter criteria and the query text they came from.
func (s *StateOwner) SetFilter(query string, f view.Filter) {
	s.mutate(func() {
		s.query = query
		s.filter = f
		s.rebuildLocked()
	})
}

// SetSort replaces the sort criteria.
func (s *StateOwner) SetSort(so view.Sort) {
	s.mutate(func() {
		s.sort = so
		s.rebuildLocked()
	})
}

// Sort returns the current sort criteria.
func (s *StateOwner) Sort() view.Sort {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// Toggle flips id in the selection.
func (s *StateOwner) Toggle(id string) {
	s.mutate(func() {
		if indexOf(s.items, id) >= 0 || s.sel.Contains(id) {
			s.sel.Toggle(id)
		}
	})
}

// SelectOnly selects exactly id.
func (s *StateOwner) SelectOnly(id string) {
	s.mutate(func() {
		if indexOf(s.display, id) >= 0 {
			s.sel.SelectOnly(id)
		}
	})
}

// SelectRange extends from the anchor to id in display order.
func (s *StateOwner) SelectRange(id string) {
	s.mutate(func() { s.sel.SelectRange(s.display, id) })
}

// SelectAll selects every displayed item. Items hidden by the filter stay
// unselected.
func (s *StateOwner) SelectAll() {
	s.mutate(func() { s.sel.SelectAll(s.display) })
}

// ClearSelection empties the selection.
func (s *StateOwner) ClearSelection() {
	s.mutate(func() { s.sel.Clear() })
}

// SelectedIDs returns the selection in display order.
func (s *StateOwner) SelectedIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, s.sel.Count())
	for _, it := range s.display {
		if s.sel.Contains(it.ID) {
			ids = append(ids, it.ID)
		}
	}
	return ids
}

// begin applies an optimistic change for op. It fails with ErrBusy when any
// of op's ids already has a pending operation, or with the error from fn.
// fn may add the ids of items it carries along, such as a folder's listed
// descendants; those must be idle too. On success op is registered for every
// id and remembers which item model it patched.
func (s *StateOwner) begin(op *PendingOp, fn func(items []model.Item) ([]model.Item, error)) error {
	var err error
	s.mutate(func() {
		if s.busyLocked(op.ItemIDs) {
			err = ErrBusy
			return
		}
		var next []model.Item
		if next, err = fn(s.items); err != nil {
			return
		}
		if s.busyLocked(op.ItemIDs) {
			debug.Log(debug.CRUD, "%s %s: a carried item is busy", op.Kind, op.ID)
			err = ErrBusy
			return
		}
		s.items = next
		op.gen = s.itemsGen
		for _, id := range op.ItemIDs {
			s.pending[id] = op
		}
		s.rebuildLocked()
	})
	return err
}

// finish releases op. fn patches the item model only when it is still the
// one op was applied to; after a navigation or refresh the new listing wins.
func (s *StateOwner) finish(op *PendingOp, fn func(items []model.Item, sel *selection.Manager) []model.Item) {
	s.mutate(func() {
		for _, id := range op.ItemIDs {
			if s.pending[id] == op {
				delete(s.pending, id)
			}
		}
		if fn == nil || op.gen != s.itemsGen {
			if fn != nil {
				debug.Log(debug.CRUD, "%s %s: listing replaced, not patching", op.Kind, op.ID)
			}
			return
		}
		s.items = fn(s.items, s.sel)
		s.rebuildLocked()
	})
}

func (s *StateOwner) busyLocked(ids []string) bool {
	return slices.ContainsFunc(ids, func(id string) bool {
		_, busy := s.pending[id]
		return busy
	})
}

// buryLocked records that the folder at p is gone on the server. Entries
// beneath it are dropped now and never restored by a later rollback.
func (s *StateOwner) buryLocked(items []model.Item, p string) []model.Item {
	s.buried = append(s.buried, p)
	return slices.DeleteFunc(slices.Clone(items), func(it model.Item) bool {
		return beneath(p, it.Path)
	})
}

// buriedLocked reports whether p lies beneath a folder deleted on the server.
func (s *StateOwner) buriedLocked(p string) bool {
	return slices.ContainsFunc(s.buried, func(dir string) bool { return beneath(dir, p) })
}

// beneath reports whether p is strictly inside dir.
func beneath(dir, p string) bool {
	return p != dir && location.Contains(dir, p)
}

func indexOf(items []model.Item, id string) int {
	return slices.IndexFunc(items, func(it model.Item) bool { return it.ID == id })
}
