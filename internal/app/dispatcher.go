package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/logging"
	"github.com/justyntemme/shelf/internal/metrics"
	"github.com/justyntemme/shelf/internal/model"
	"github.com/justyntemme/shelf/internal/notify"
	"github.com/justyntemme/shelf/internal/selection"
)

// OpKind names a mutating operation.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpRename OpKind = "rename"
	OpDelete OpKind = "delete"
	OpMove   OpKind = "move"
)

func (k OpKind) verb() string {
	if k == OpCreate {
		return "create folder"
	}
	return string(k)
}

// OpStatus is the lifecycle stage of a pending operation.
type OpStatus int32

const (
	InFlight OpStatus = iota
	Committed
	RolledBack
)

func (s OpStatus) String() string {
	switch s {
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled-back"
	}
	return "in-flight"
}

// TempIDPrefix marks the id of a folder that exists only optimistically.
const TempIDPrefix = "pending:"

// PendingOp tracks one optimistic change until the server answers.
type PendingOp struct {
	ID      string
	Kind    OpKind
	ItemIDs []string
	Name    string

	gen    uint64 // item model generation the change was applied to
	status atomic.Int32
	err    error
	done   chan struct{}
}

func newOp(kind OpKind, name string, ids ...string) *PendingOp {
	return &PendingOp{
		ID:      uuid.NewString(),
		Kind:    kind,
		ItemIDs: ids,
		Name:    name,
		done:    make(chan struct{}),
	}
}

// Done closes once the operation is committed or rolled back.
func (p *PendingOp) Done() <-chan struct{} { return p.done }

// Wait blocks until the operation finishes and returns the server error
// that caused a rollback, if any.
func (p *PendingOp) Wait() error {
	<-p.done
	return p.err
}

// Status reports where the operation is in its lifecycle.
func (p *PendingOp) Status() OpStatus { return OpStatus(p.status.Load()) }

func (p *PendingOp) resolve(s OpStatus, err error) {
	p.err = err
	p.status.Store(int32(s))
	close(p.done)
}

// indexedItem remembers where a removed item sat in the item model.
type indexedItem struct {
	index int
	item  model.Item
}

// Dispatcher is the only path for create, rename, delete and move. Each
// call patches the item model immediately, then commits the server's answer
// or restores the exact prior state.
type Dispatcher struct {
	state *StateOwner
	coll  api.Collection
	notes *notify.Queue
	base  context.Context
	wg    sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Requests run under base.
func NewDispatcher(base context.Context, state *StateOwner, coll api.Collection, notes *notify.Queue) *Dispatcher {
	return &Dispatcher{state: state, coll: coll, notes: notes, base: base}
}

// Wait blocks until every submitted operation has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// CreateFolder adds a folder named name to the current folder.
func (d *Dispatcher) CreateFolder(name string) (*PendingOp, error) {
	op, err := d.createFolder(name)
	if err != nil {
		d.report(OpCreate, name, err)
	}
	return op, err
}

// Rename gives the item id a new name.
func (d *Dispatcher) Rename(id, newName string) (*PendingOp, error) {
	op, err := d.rename(id, newName)
	if err != nil {
		d.report(OpRename, d.nameOf(id), err)
	}
	return op, err
}

// Delete removes id, and for a folder every listed item beneath it.
func (d *Dispatcher) Delete(id string) (*PendingOp, error) {
	op, err := d.delete(id)
	if err != nil {
		d.report(OpDelete, d.nameOf(id), err)
	}
	return op, err
}

// Move reparents id under destDir.
func (d *Dispatcher) Move(id, destDir string) (*PendingOp, error) {
	op, err := d.move(id, destDir)
	if err != nil {
		d.report(OpMove, d.nameOf(id), err)
	}
	return op, err
}

// DeleteSelected deletes every selected item. Busy items are skipped and
// reported with a single notification.
func (d *Dispatcher) DeleteSelected() []*PendingOp {
	return d.bulk(OpDelete, d.delete)
}

// MoveSelected moves every selected item to destDir.
func (d *Dispatcher) MoveSelected(destDir string) []*PendingOp {
	return d.bulk(OpMove, func(id string) (*PendingOp, error) { return d.move(id, destDir) })
}

func (d *Dispatcher) bulk(kind OpKind, fn func(id string) (*PendingOp, error)) []*PendingOp {
	var ops []*PendingOp
	var busy, rejected []string
	var reason string
	carried := make(map[string]bool)
	for _, id := range d.state.SelectedIDs() {
		// A child of a folder handled earlier in this pass goes with it.
		if carried[id] {
			continue
		}
		name := d.nameOf(id)
		op, err := fn(id)
		switch {
		case err == nil:
			ops = append(ops, op)
			for _, c := range op.ItemIDs {
				carried[c] = true
			}
		case errors.Is(err, ErrBusy):
			busy = append(busy, name)
		case errors.Is(err, ErrNoOpMove):
		default:
			if ve, ok := AsValidation(err); ok {
				rejected = append(rejected, name)
				reason = ve.Reason
			}
		}
	}

	if len(busy) > 0 {
		metrics.RecordMutation(string(kind), metrics.MutationRejectedBusy)
		d.notes.Info("Already processing…", plural(len(busy), "item")+" skipped: "+strings.Join(busy, ", "))
	}
	if len(rejected) > 0 {
		metrics.RecordMutation(string(kind), metrics.MutationRejectedValidation)
		d.notes.Warn("Cannot "+kind.verb()+" "+plural(len(rejected), "item"), reason)
	}
	return ops
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// report turns a local rejection into metrics and at most one notification.
func (d *Dispatcher) report(kind OpKind, name string, err error) {
	switch {
	case errors.Is(err, ErrNoOpMove):
		debug.Log(debug.CRUD, "%s %q: no-op", kind, name)
	case errors.Is(err, ErrBusy):
		metrics.RecordMutation(string(kind), metrics.MutationRejectedBusy)
		d.notes.Info("Already processing…", fmt.Sprintf("%q is still being updated", name))
	default:
		metrics.RecordMutation(string(kind), metrics.MutationRejectedValidation)
		reason := err.Error()
		if ve, ok := AsValidation(err); ok {
			reason = ve.Reason
		}
		d.notes.Warn(fmt.Sprintf("Cannot %s %q", kind.verb(), name), reason)
	}
}

func (d *Dispatcher) nameOf(id string) string {
	if it, ok := d.state.Item(id); ok {
		return it.Name
	}
	return location.Base(id)
}

func validName(kind OpKind, name string) error {
	switch {
	case name == "":
		return invalid(kind, "name is empty")
	case name == "." || name == "..":
		return invalid(kind, "%q is not a valid name", name)
	case strings.ContainsAny(name, `/\`):
		return invalid(kind, "name cannot contain a slash")
	}
	return nil
}

// siblingNamed reports whether a different item named name already sits in dir.
func siblingNamed(items []model.Item, dir, name, except string) bool {
	return slices.ContainsFunc(items, func(it model.Item) bool {
		return it.ID != except && it.Name == name && location.Parent(it.Path) == dir
	})
}

func (d *Dispatcher) createFolder(name string) (*PendingOp, error) {
	name = strings.TrimSpace(name)
	if err := validName(OpCreate, name); err != nil {
		return nil, err
	}
	loc := d.state.Location()
	if loc.IsVirtual() {
		return nil, invalid(OpCreate, "folders can only be created inside a folder")
	}

	temp := model.Item{
		ID:         TempIDPrefix + uuid.NewString(),
		Path:       location.Join(loc.Path, name),
		Name:       name,
		Kind:       model.KindFolder,
		ModifiedAt: time.Now().UTC(),
	}
	temp.CreatedAt = temp.ModifiedAt

	op := newOp(OpCreate, name, temp.ID)
	err := d.state.begin(op, func(items []model.Item) ([]model.Item, error) {
		if siblingNamed(items, loc.Path, name, "") {
			return nil, invalid(OpCreate, "an item named %q already exists", name)
		}
		return append(slices.Clone(items), temp), nil
	})
	if err != nil {
		return nil, err
	}

	d.submit(op, func(ctx context.Context) (patch, error) {
		created, err := d.coll.CreateFolder(ctx, loc.Path, name)
		if err != nil {
			return nil, err
		}
		return replaceItem(temp.ID, created), nil
	}, removeItem(temp.ID))
	return op, nil
}

func (d *Dispatcher) rename(id, newName string) (*PendingOp, error) {
	newName = strings.TrimSpace(newName)
	if err := validName(OpRename, newName); err != nil {
		return nil, err
	}

	var prior model.Item
	var carried []model.Item
	op := newOp(OpRename, d.nameOf(id), id)
	err := d.state.begin(op, func(items []model.Item) ([]model.Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, invalid(OpRename, "item not found")
		}
		prior = items[i].Clone()
		if prior.Name == newName {
			return nil, invalid(OpRename, "name is unchanged")
		}
		dir := location.Parent(prior.Path)
		if siblingNamed(items, dir, newName, id) {
			return nil, invalid(OpRename, "an item named %q already exists", newName)
		}

		next := prior.Clone()
		next.Name = newName
		next.Path = location.Join(dir, newName)
		out := slices.Clone(items)
		out[i] = next
		out, carried = carry(out, op, prior, next.Path)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	d.submit(op, func(ctx context.Context) (patch, error) {
		updated, err := d.coll.Rename(ctx, prior, newName)
		if err != nil {
			return nil, err
		}
		return chain(replaceItem(id, updated), rebase(carried, prior.Path, updated.Path)), nil
	}, chain(replaceItem(id, prior), replaceAll(carried)))
	return op, nil
}

func (d *Dispatcher) delete(id string) (*PendingOp, error) {
	var target model.Item
	var removed []indexedItem
	op := newOp(OpDelete, d.nameOf(id), id)
	err := d.state.begin(op, func(items []model.Item) ([]model.Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, invalid(OpDelete, "item not found")
		}
		target = items[i].Clone()

		out := make([]model.Item, 0, len(items))
		for j, it := range items {
			if it.ID == id || (target.IsFolder() && location.Contains(target.Path, it.Path)) {
				removed = append(removed, indexedItem{index: j, item: it.Clone()})
				if it.ID != id {
					op.ItemIDs = append(op.ItemIDs, it.ID)
				}
				continue
			}
			out = append(out, it)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	debug.Log(debug.CRUD, "delete %s: removed %d listed items", target.Path, len(removed))

	d.submit(op, func(ctx context.Context) (patch, error) {
		if err := d.coll.Delete(ctx, target); err != nil {
			return nil, err
		}
		if !target.IsFolder() {
			return nil, nil
		}
		return func(items []model.Item, _ *selection.Manager) []model.Item {
			return d.state.buryLocked(items, target.Path)
		}, nil
	}, restoreItems(removed, d.state.buriedLocked))
	return op, nil
}

func (d *Dispatcher) move(id, destDir string) (*PendingOp, error) {
	destDir = location.Clean(destDir)

	var prior model.Item
	var carried []model.Item
	op := newOp(OpMove, d.nameOf(id), id)
	err := d.state.begin(op, func(items []model.Item) ([]model.Item, error) {
		i := indexOf(items, id)
		if i < 0 {
			return nil, invalid(OpMove, "item not found")
		}
		prior = items[i].Clone()
		if err := ValidateMove(prior, destDir); err != nil {
			return nil, err
		}

		next := prior.Clone()
		next.Path = location.Join(destDir, prior.Name)
		out := slices.Clone(items)
		out[i] = next
		out, carried = carry(out, op, prior, next.Path)
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	loc := d.state.Location()
	d.submit(op, func(ctx context.Context) (patch, error) {
		moved, err := d.coll.Move(ctx, prior, destDir)
		if err != nil {
			return nil, err
		}
		settle := chain(replaceItem(id, moved), rebase(carried, prior.Path, moved.Path))
		return func(items []model.Item, sel *selection.Manager) []model.Item {
			items = settle(items, sel)
			// The item now lives elsewhere, so it leaves this listing
			// together with anything listed beneath it.
			if !loc.IsVirtual() && location.Parent(moved.Path) != loc.Path {
				items = slices.DeleteFunc(slices.Clone(items), func(it model.Item) bool {
					return location.Contains(moved.Path, it.Path)
				})
			}
			return items
		}, nil
	}, chain(replaceItem(id, prior), replaceAll(carried)))
	return op, nil
}

// patch rewrites the item model when an operation finishes.
type patch func(items []model.Item, sel *selection.Manager) []model.Item

// submit sends op's request in the background. call returns the commit
// patch, and undo restores the prior state when call fails.
func (d *Dispatcher) submit(op *PendingOp, call func(ctx context.Context) (patch, error), undo patch) {
	metrics.SetPendingOperations(d.state.PendingCount())
	debug.Log(debug.CRUD, "%s %q submitted op=%s", op.Kind, op.Name, op.ID)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { metrics.SetPendingOperations(d.state.PendingCount()) }()

		commit, err := call(d.base)
		if err != nil {
			d.state.finish(op, undo)
			metrics.RecordMutation(string(op.Kind), metrics.MutationRolledBack)
			if shuttingDown(d.base, err) {
				debug.Log(debug.CRUD, "%s %q abandoned at shutdown op=%s", op.Kind, op.Name, op.ID)
				op.resolve(RolledBack, err)
				return
			}
			logging.L().Warn("change rolled back",
				zap.String("op", string(op.Kind)),
				zap.String("item", op.Name),
				zap.Error(err))
			d.notes.Error(fmt.Sprintf("Could not %s %q", op.Kind.verb(), op.Name), api.Reason(err))
			op.resolve(RolledBack, err)
			return
		}

		d.state.finish(op, commit)
		metrics.RecordMutation(string(op.Kind), metrics.MutationCommitted)
		debug.Log(debug.CRUD, "%s %q committed op=%s", op.Kind, op.Name, op.ID)
		op.resolve(Committed, nil)
	}()
}

// replaceItem swaps the entry with id for item, following any id change in
// the selection.
func replaceItem(id string, item model.Item) patch {
	return func(items []model.Item, sel *selection.Manager) []model.Item {
		i := indexOf(items, id)
		if i < 0 {
			return items
		}
		out := slices.Clone(items)
		out[i] = item.Clone()
		if item.ID != id {
			// Drop a stale duplicate of the new id, if one was listed.
			if j := indexOf(out, item.ID); j >= 0 && j != i {
				out = slices.Delete(out, j, j+1)
			}
			sel.Rename(id, item.ID)
		}
		return out
	}
}

func removeItem(id string) patch {
	return func(items []model.Item, _ *selection.Manager) []model.Item {
		return slices.DeleteFunc(slices.Clone(items), func(it model.Item) bool { return it.ID == id })
	}
}

// restoreItems puts removed entries back at their original positions,
// except those for which gone reports the path no longer exists.
func restoreItems(removed []indexedItem, gone func(p string) bool) patch {
	return func(items []model.Item, _ *selection.Manager) []model.Item {
		out := slices.Clone(items)
		for _, r := range removed {
			if indexOf(out, r.item.ID) >= 0 || (gone != nil && gone(r.item.Path)) {
				continue
			}
			at := min(r.index, len(out))
			out = slices.Insert(out, at, r.item.Clone())
		}
		return out
	}
}

// carry moves the listed descendants of folder along with it to newPath and
// marks them as part of op. It returns the patched items and the prior state
// of each carried entry.
func carry(items []model.Item, op *PendingOp, folder model.Item, newPath string) ([]model.Item, []model.Item) {
	if !folder.IsFolder() {
		return items, nil
	}
	var prior []model.Item
	for i, it := range items {
		if !beneath(folder.Path, it.Path) {
			continue
		}
		prior = append(prior, it.Clone())
		op.ItemIDs = append(op.ItemIDs, it.ID)
		items[i].Path = location.Rebase(it.Path, folder.Path, newPath)
	}
	return items, prior
}

// rebase settles carried entries under the folder's confirmed path. An id
// that was the item's path follows the new path.
func rebase(carried []model.Item, oldRoot, newRoot string) patch {
	return func(items []model.Item, sel *selection.Manager) []model.Item {
		for _, c := range carried {
			next := c.Clone()
			next.Path = location.Rebase(c.Path, oldRoot, newRoot)
			if c.ID == c.Path {
				next.ID = next.Path
			}
			items = replaceItem(c.ID, next)(items, sel)
		}
		return items
	}
}

// replaceAll puts back the prior state of every entry in prior.
func replaceAll(prior []model.Item) patch {
	return func(items []model.Item, sel *selection.Manager) []model.Item {
		for _, it := range prior {
			items = replaceItem(it.ID, it)(items, sel)
		}
		return items
	}
}

func chain(patches ...patch) patch {
	return func(items []model.Item, sel *selection.Manager) []model.Item {
		for _, p := range patches {
			items = p(items, sel)
		}
		return items
	}
}

// shuttingDown reports whether err is only the browser closing under a
// request.
func shuttingDown(base context.Context, err error) bool {
	return base.Err() != nil && errors.Is(err, context.Canceled)
}
