// Package preview implements the media preview session: load state,
// retry and the zoom/rotation transform.
package preview

import (
	"context"
	"errors"
	"math"
	"sync"

	"gioui.org/f32"

	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/metrics"
	"github.com/justyntemme/shelf/internal/model"
)

// State of a preview session.
type State int

const (
	Closed State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "error"
	default:
		return "closed"
	}
}

// ErrNotMedia is returned when opening an item that has no preview.
var ErrNotMedia = errors.New("item is not previewable media")

// Info describes loaded content.
type Info struct {
	ContentType string
	Size        int64
	Width       int
	Height      int
}

// Loader fetches enough of a URL to prove it can be displayed.
type Loader interface {
	Load(ctx context.Context, url string) (Info, error)
}

// URLFunc builds the content URL for path. attempt > 0 must produce a URL
// that bypasses caches holding an earlier failed response.
type URLFunc func(path string, attempt int) string

// Session is one open viewer. Zoom and Rotation persist across retries of
// the same item and reset when a new item is opened.
type Session struct {
	ID       uint64
	Path     string
	Name     string
	Kind     model.Kind
	URL      string
	State    State
	Err      error
	Attempt  int
	Zoom     float64
	Rotation int
	Info     Info
}

// Options bounds zoom and receives state changes.
type Options struct {
	MinZoom  float64
	MaxZoom  float64
	ZoomStep float64

	// OnChange is called outside the lock after every transition with the
	// current session (State Closed when none is open).
	OnChange func(Session)
}

// DefaultOptions mirror the configuration defaults.
var DefaultOptions = Options{MinZoom: 0.5, MaxZoom: 5.0, ZoomStep: 0.2}

// Viewer owns at most one Session at a time.
type Viewer struct {
	mu      sync.Mutex
	loader  Loader
	urlFor  URLFunc
	opts    Options
	cur     *Session
	cancel  context.CancelFunc
	nextID  uint64
	loading sync.WaitGroup
}

// NewViewer creates a closed viewer.
func NewViewer(loader Loader, urlFor URLFunc, opts Options) *Viewer {
	if opts.MinZoom <= 0 {
		opts.MinZoom = DefaultOptions.MinZoom
	}
	if opts.MaxZoom < opts.MinZoom {
		opts.MaxZoom = max(DefaultOptions.MaxZoom, opts.MinZoom)
	}
	if opts.ZoomStep <= 0 {
		opts.ZoomStep = DefaultOptions.ZoomStep
	}
	return &Viewer{loader: loader, urlFor: urlFor, opts: opts}
}

// Open closes any current session and starts loading item.
func (v *Viewer) Open(item model.Item) error {
	if !item.Kind.IsMedia() {
		return ErrNotMedia
	}

	v.mu.Lock()
	v.closeLocked()
	v.nextID++
	s := &Session{
		ID:       v.nextID,
		Path:     item.Path,
		Name:     item.Name,
		Kind:     item.Kind,
		State:    Loading,
		Zoom:     1.0,
		Rotation: 0,
	}
	v.cur = s
	v.startLocked()
	snap := *s
	v.mu.Unlock()

	debug.Log(debug.PREVIEW, "Open: id=%d path=%s", snap.ID, snap.Path)
	v.emit(snap)
	return nil
}

// Retry reloads the current item after a failure. Transforms are kept.
func (v *Viewer) Retry() bool {
	v.mu.Lock()
	if v.cur == nil || v.cur.State != Failed {
		v.mu.Unlock()
		return false
	}
	v.cur.Attempt++
	v.cur.State = Loading
	v.cur.Err = nil
	v.startLocked()
	snap := *v.cur
	v.mu.Unlock()

	debug.Log(debug.PREVIEW, "Retry: id=%d attempt=%d", snap.ID, snap.Attempt)
	v.emit(snap)
	return true
}

// Close ends the current session. Late load results are discarded.
func (v *Viewer) Close() {
	v.mu.Lock()
	if v.cur == nil {
		v.mu.Unlock()
		return
	}
	v.closeLocked()
	v.mu.Unlock()

	v.emit(Session{State: Closed})
}

// Current returns a copy of the open session.
func (v *Viewer) Current() (Session, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cur == nil {
		return Session{State: Closed}, false
	}
	return *v.cur, true
}

// ZoomIn multiplies zoom by 1+step, clamped to MaxZoom.
func (v *Viewer) ZoomIn() float64 {
	return v.setZoom(func(z float64) float64 { return z * (1 + v.opts.ZoomStep) })
}

// ZoomOut divides zoom by 1+step, clamped to MinZoom.
func (v *Viewer) ZoomOut() float64 {
	return v.setZoom(func(z float64) float64 { return z / (1 + v.opts.ZoomStep) })
}

// ResetZoom returns to 1.0.
func (v *Viewer) ResetZoom() float64 {
	return v.setZoom(func(float64) float64 { return 1.0 })
}

// RotateRight adds 90 degrees.
func (v *Viewer) RotateRight() int { return v.rotate(90) }

// RotateLeft subtracts 90 degrees.
func (v *Viewer) RotateLeft() int { return v.rotate(-90) }

// Wait blocks until every started load has returned. Used by tests and
// shutdown.
func (v *Viewer) Wait() {
	v.loading.Wait()
}

func (v *Viewer) setZoom(f func(float64) float64) float64 {
	v.mu.Lock()
	if v.cur == nil {
		v.mu.Unlock()
		return 1.0
	}
	v.cur.Zoom = clamp(f(v.cur.Zoom), v.opts.MinZoom, v.opts.MaxZoom)
	snap := *v.cur
	v.mu.Unlock()

	v.emit(snap)
	return snap.Zoom
}

func (v *Viewer) rotate(delta int) int {
	v.mu.Lock()
	if v.cur == nil {
		v.mu.Unlock()
		return 0
	}
	v.cur.Rotation = ((v.cur.Rotation+delta)%360 + 360) % 360
	snap := *v.cur
	v.mu.Unlock()

	v.emit(snap)
	return snap.Rotation
}

func clamp(z, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, z))
}

func (v *Viewer) closeLocked() {
	if v.cancel != nil {
		v.cancel()
		v.cancel = nil
	}
	v.cur = nil
}

// startLocked launches the load for the current session and attempt.
func (v *Viewer) startLocked() {
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel

	s := v.cur
	s.URL = v.urlFor(s.Path, s.Attempt)
	id, attempt, url := s.ID, s.Attempt, s.URL

	v.loading.Add(1)
	go func() {
		defer v.loading.Done()
		info, err := v.loader.Load(ctx, url)
		v.complete(id, attempt, info, err)
	}()
}

// complete applies a load result only if it belongs to the session and
// attempt still on screen.
func (v *Viewer) complete(id uint64, attempt int, info Info, err error) {
	v.mu.Lock()
	s := v.cur
	if s == nil || s.ID != id || s.Attempt != attempt || s.State != Loading {
		v.mu.Unlock()
		debug.Log(debug.PREVIEW, "complete: discarding late result id=%d attempt=%d", id, attempt)
		metrics.RecordPreview(metrics.PreviewDiscarded)
		return
	}
	if err != nil {
		s.State = Failed
		s.Err = err
		metrics.RecordPreview(metrics.PreviewError)
	} else {
		s.State = Loaded
		s.Info = info
		metrics.RecordPreview(metrics.PreviewLoaded)
	}
	snap := *s
	v.mu.Unlock()

	debug.Log(debug.PREVIEW, "complete: id=%d state=%s", id, snap.State)
	v.emit(snap)
}

func (v *Viewer) emit(s Session) {
	if v.opts.OnChange != nil {
		v.opts.OnChange(s)
	}
}

// Transform returns the affine transform a renderer applies to draw the
// content at zoom and rotation around center.
func (s Session) Transform(center f32.Point) f32.Affine2D {
	z := float32(s.Zoom)
	if z == 0 {
		z = 1
	}
	rad := float32(float64(s.Rotation) * math.Pi / 180)
	return f32.Affine2D{}.Scale(center, f32.Pt(z, z)).Rotate(center, rad)
}

// Extent returns the size of the content once Transform is applied, or
// zero when the dimensions are unknown.
func (s Session) Extent() f32.Point {
	w, h := float32(s.Info.Width), float32(s.Info.Height)
	if w <= 0 || h <= 0 {
		return f32.Point{}
	}
	t := s.Transform(f32.Pt(w/2, h/2))
	lo := t.Transform(f32.Pt(0, 0))
	hi := lo
	for _, c := range []f32.Point{{X: w}, {Y: h}, {X: w, Y: h}} {
		p := t.Transform(c)
		lo.X, lo.Y = min(lo.X, p.X), min(lo.Y, p.Y)
		hi.X, hi.Y = max(hi.X, p.X), max(hi.Y, p.Y)
	}
	return hi.Sub(lo)
}

// Swapped reports whether rotation exchanges width and height.
func (s Session) Swapped() bool {
	return s.Rotation == 90 || s.Rotation == 270
}
