package app

import (
	"sync"

	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
)

// ValidateMove checks a move of item into destDir without touching the
// network. It returns ErrNoOpMove when destDir is already the item's parent
// and a ValidationError when a folder would land inside itself.
func ValidateMove(item model.Item, destDir string) error {
	destDir = location.Clean(destDir)
	if location.Parent(item.Path) == destDir {
		return ErrNoOpMove
	}
	if item.IsFolder() && location.Contains(item.Path, destDir) {
		if destDir == location.Clean(item.Path) {
			return invalid(OpMove, "a folder cannot be moved into itself")
		}
		return invalid(OpMove, "a folder cannot be moved into its own subfolder")
	}
	return nil
}

// DragMove tracks a drag gesture and turns the drop into moves.
type DragMove struct {
	state *StateOwner
	crud  *Dispatcher

	mu      sync.Mutex
	dragged []string
}

// NewDragMove creates a drag engine on top of crud.
func NewDragMove(state *StateOwner, crud *Dispatcher) *DragMove {
	return &DragMove{state: state, crud: crud}
}

// Begin starts dragging id. When id is selected the whole selection is
// dragged with it.
func (e *DragMove) Begin(id string) []string {
	ids := []string{id}
	if sel := e.state.SelectedIDs(); len(sel) > 1 {
		for _, s := range sel {
			if s == id {
				ids = sel
				break
			}
		}
	}

	e.mu.Lock()
	e.dragged = ids
	e.mu.Unlock()
	debug.Log(debug.APP, "drag begin: %v", ids)
	return ids
}

// Dragging returns the ids being dragged.
func (e *DragMove) Dragging() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.dragged...)
}

// CanDrop reports whether every dragged item could move into destDir, for
// drop-target highlighting. It never notifies.
func (e *DragMove) CanDrop(destDir string) bool {
	ids := e.Dragging()
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		it, ok := e.state.Item(id)
		if !ok || ValidateMove(it, destDir) != nil {
			return false
		}
	}
	return true
}

// Cancel abandons the drag.
func (e *DragMove) Cancel() {
	e.mu.Lock()
	e.dragged = nil
	e.mu.Unlock()
}

// Drop moves every dragged item into destDir and ends the drag.
func (e *DragMove) Drop(destDir string) []*PendingOp {
	ids := e.Dragging()
	e.Cancel()

	var ops []*PendingOp
	carried := make(map[string]bool)
	for _, id := range ids {
		if carried[id] {
			continue
		}
		if op, err := e.ProposeMove(id, destDir); err == nil {
			ops = append(ops, op)
			for _, c := range op.ItemIDs {
				carried[c] = true
			}
		}
	}
	return ops
}

// ProposeMove validates moving id into destDir and, if valid, dispatches
// it. Invalid moves are rejected before any request is made.
func (e *DragMove) ProposeMove(id, destDir string) (*PendingOp, error) {
	return e.crud.Move(id, destDir)
}
