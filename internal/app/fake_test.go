package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/justyntemme/shelf/internal/clock"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/model"
	"github.com/justyntemme/shelf/internal/preview"
)

// fakeCollection serves canned listings. Listings and mutations can be held
// on a gate so tests control when responses arrive.
type fakeCollection struct {
	mu       sync.Mutex
	listings map[string][]model.Item
	listErrs map[string]error
	gates    map[string]chan struct{}
	lists    []string

	mutGate chan struct{}
	mutErr  error
	held    map[string]heldCall
	calls   []string

	// honorCancel makes held requests give up when their context ends.
	honorCancel bool
}

type heldCall struct {
	gate chan struct{}
	err  error
}

func newFakeCollection() *fakeCollection {
	return &fakeCollection{
		listings: make(map[string][]model.Item),
		listErrs: make(map[string]error),
		gates:    make(map[string]chan struct{}),
		held:     make(map[string]heldCall),
	}
}

func (f *fakeCollection) setListing(loc string, items ...model.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[loc] = items
}

func (f *fakeCollection) setListErr(loc string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErrs[loc] = err
}

func (f *fakeCollection) gate(loc string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.gates[loc] = g
	return g
}

// holdMutations makes every mutation wait for the returned gate and then
// fail with err (nil to succeed).
func (f *fakeCollection) holdMutations(err error) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mutGate = make(chan struct{})
	f.mutErr = err
	return f.mutGate
}

// holdCall holds only the mutation named call, such as "delete /trip", and
// then fails it with err (nil to succeed).
func (f *fakeCollection) holdCall(call string, err error) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := make(chan struct{})
	f.held[call] = heldCall{gate: g, err: err}
	return g
}

func (f *fakeCollection) wait(ctx context.Context, g chan struct{}) error {
	if g == nil {
		return nil
	}
	f.mu.Lock()
	honor := f.honorCancel
	f.mu.Unlock()
	if !honor {
		<-g
		return nil
	}
	select {
	case <-g:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCollection) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists)
}

func (f *fakeCollection) mutationCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// List ignores ctx unless honorCancel is set, so a superseded request can
// still deliver late data.
func (f *fakeCollection) List(ctx context.Context, loc location.Location) ([]model.Item, error) {
	key := loc.String()
	f.mu.Lock()
	f.lists = append(f.lists, key)
	g := f.gates[key]
	items := model.CloneAll(f.listings[key])
	err := f.listErrs[key]
	f.mu.Unlock()

	if werr := f.wait(ctx, g); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (f *fakeCollection) mutate(ctx context.Context, call string) error {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	g, err := f.mutGate, f.mutErr
	if h, ok := f.held[call]; ok {
		g, err = h.gate, h.err
	}
	f.mu.Unlock()

	if werr := f.wait(ctx, g); werr != nil {
		return werr
	}
	return err
}

func (f *fakeCollection) CreateFolder(ctx context.Context, parent, name string) (model.Item, error) {
	if err := f.mutate(ctx, "create "+name); err != nil {
		return model.Item{}, err
	}
	p := location.Join(parent, name)
	return model.Item{ID: "srv:" + p, Path: p, Name: name, Kind: model.KindFolder}, nil
}

func (f *fakeCollection) Rename(ctx context.Context, item model.Item, newName string) (model.Item, error) {
	if err := f.mutate(ctx, "rename "+item.Path); err != nil {
		return model.Item{}, err
	}
	p := location.Join(location.Parent(item.Path), newName)
	out := item.Clone()
	out.ID, out.Path, out.Name = "srv:"+p, p, newName
	return out, nil
}

func (f *fakeCollection) Delete(ctx context.Context, item model.Item) error {
	return f.mutate(ctx, "delete "+item.Path)
}

func (f *fakeCollection) Move(ctx context.Context, item model.Item, destDir string) (model.Item, error) {
	if err := f.mutate(ctx, "move "+item.Path); err != nil {
		return model.Item{}, err
	}
	out := item.Clone()
	out.Path = location.Join(destDir, item.Name)
	out.ID = out.Path
	return out, nil
}

func (f *fakeCollection) ContentURL(p string) string {
	return "https://cdn.test/content" + p
}

type stubLoader struct{}

func (stubLoader) Load(context.Context, string) (preview.Info, error) {
	return preview.Info{ContentType: "image/png", Width: 4, Height: 3}, nil
}

func file(p string) model.Item {
	return model.Item{ID: p, Path: p, Name: location.Base(p), Kind: model.KindFromName(p), Size: 10}
}

func folder(p string) model.Item {
	return model.Item{ID: p, Path: p, Name: location.Base(p), Kind: model.KindFolder}
}

var testStart = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestBrowser(t *testing.T, fc *fakeCollection, opts Options) (*Browser, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(testStart)
	opts.Clock = clk
	if opts.Loader == nil {
		opts.Loader = stubLoader{}
	}
	b := New(fc, opts)
	t.Cleanup(b.Close)
	return b, clk
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting")
	}
}

func waitOp(t *testing.T, op *PendingOp) error {
	t.Helper()
	require.NotNil(t, op)
	waitFor(t, op.Done())
	return op.Wait()
}

func paths(items []model.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Path
	}
	return out
}

func newFakeClock() *clock.Fake {
	return clock.NewFake(testStart)
}
