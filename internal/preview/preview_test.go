package preview

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"gioui.org/f32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/shelf/internal/model"
)

// gateLoader blocks each load until the test releases it.
type gateLoader struct {
	mu    sync.Mutex
	calls []string
	gates map[string]chan result
}

type result struct {
	info Info
	err  error
}

func newGateLoader() *gateLoader {
	return &gateLoader{gates: make(map[string]chan result)}
}

func (g *gateLoader) gate(url string) chan result {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[url]
	if !ok {
		ch = make(chan result, 1)
		g.gates[url] = ch
	}
	return ch
}

func (g *gateLoader) Load(ctx context.Context, url string) (Info, error) {
	g.mu.Lock()
	g.calls = append(g.calls, url)
	g.mu.Unlock()

	r := <-g.gate(url)
	return r.info, r.err
}

func testURL(p string, attempt int) string {
	return fmt.Sprintf("http://content%s?v=%d", p, attempt)
}

var photo = model.Item{ID: "1", Path: "/a.jpg", Name: "a.jpg", Kind: model.KindImage}

func TestZoomClamps(t *testing.T) {
	g := newGateLoader()
	v := NewViewer(g, testURL, DefaultOptions)
	require.NoError(t, v.Open(photo))

	for range 10 {
		v.ZoomIn()
	}
	s, _ := v.Current()
	assert.Equal(t, 5.0, s.Zoom)

	for range 20 {
		v.ZoomOut()
	}
	s, _ = v.Current()
	assert.Equal(t, 0.5, s.Zoom)

	g.gate(testURL("/a.jpg", 0)) <- result{}
	v.Wait()
}

func TestRotationWraps(t *testing.T) {
	g := newGateLoader()
	v := NewViewer(g, testURL, DefaultOptions)
	require.NoError(t, v.Open(photo))

	v.RotateRight()
	v.RotateRight()
	v.RotateRight()
	assert.Equal(t, 0, v.RotateRight())
	assert.Equal(t, 270, v.RotateLeft())

	g.gate(testURL("/a.jpg", 0)) <- result{}
	v.Wait()
}

func TestRetryKeepsTransformAndBustsCache(t *testing.T) {
	g := newGateLoader()
	v := NewViewer(g, testURL, DefaultOptions)
	require.NoError(t, v.Open(photo))
	v.ZoomIn()
	v.RotateRight()

	g.gate(testURL("/a.jpg", 0)) <- result{err: errors.New("503")}
	v.Wait()

	s, _ := v.Current()
	require.Equal(t, Failed, s.State)

	require.True(t, v.Retry())
	s, _ = v.Current()
	assert.Equal(t, Loading, s.State)
	assert.InDelta(t, 1.2, s.Zoom, 1e-9)
	assert.Equal(t, 90, s.Rotation)
	assert.Equal(t, testURL("/a.jpg", 1), s.URL)

	g.gate(testURL("/a.jpg", 1)) <- result{info: Info{Width: 4, Height: 3}}
	v.Wait()
	s, _ = v.Current()
	assert.Equal(t, Loaded, s.State)
	assert.Equal(t, 4, s.Info.Width)

	assert.False(t, v.Retry(), "retry only from error")
}

func TestOpenResetsTransform(t *testing.T) {
	g := newGateLoader()
	v := NewViewer(g, testURL, DefaultOptions)
	require.NoError(t, v.Open(photo))
	v.ZoomIn()
	v.RotateLeft()

	other := model.Item{ID: "2", Path: "/b.mp4", Name: "b.mp4", Kind: model.KindVideo}
	require.NoError(t, v.Open(other))
	s, _ := v.Current()
	assert.Equal(t, 1.0, s.Zoom)
	assert.Equal(t, 0, s.Rotation)
	assert.Equal(t, "/b.mp4", s.Path)

	// The first load resolving late must not touch the new session.
	g.gate(testURL("/a.jpg", 0)) <- result{err: errors.New("late")}
	g.gate(testURL("/b.mp4", 0)) <- result{info: Info{ContentType: "video/mp4"}}
	v.Wait()

	s, _ = v.Current()
	assert.Equal(t, Loaded, s.State)
	assert.Equal(t, "video/mp4", s.Info.ContentType)
}

func TestCloseDiscardsLateResult(t *testing.T) {
	g := newGateLoader()
	var states []State
	var mu sync.Mutex
	v := NewViewer(g, testURL, Options{OnChange: func(s Session) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	}})
	require.NoError(t, v.Open(photo))
	v.Close()

	g.gate(testURL("/a.jpg", 0)) <- result{info: Info{Width: 1}}
	v.Wait()

	_, open := v.Current()
	assert.False(t, open)
	mu.Lock()
	assert.Equal(t, []State{Loading, Closed}, states)
	mu.Unlock()
}

func TestOpenRejectsNonMedia(t *testing.T) {
	v := NewViewer(newGateLoader(), testURL, DefaultOptions)
	err := v.Open(model.Item{Path: "/notes.txt", Kind: model.KindDocument})
	assert.ErrorIs(t, err, ErrNotMedia)
	_, open := v.Current()
	assert.False(t, open)
}

func TestTransform(t *testing.T) {
	s := Session{Zoom: 2, Rotation: 90}
	m := s.Transform(f32.Pt(0, 0))
	p := m.Transform(f32.Pt(1, 0))
	assert.InDelta(t, 0, p.X, 1e-5)
	assert.InDelta(t, 2, p.Y, 1e-5)
	assert.True(t, s.Swapped())
}

func TestExtent(t *testing.T) {
	tests := []struct {
		name string
		s    Session
		w, h float32
	}{
		{"unknown size", Session{Zoom: 2}, 0, 0},
		{"identity", Session{Zoom: 1, Info: Info{Width: 4, Height: 3}}, 4, 3},
		{"zoomed and turned", Session{Zoom: 2, Rotation: 90, Info: Info{Width: 4, Height: 3}}, 6, 8},
		{"upside down", Session{Zoom: 0.5, Rotation: 180, Info: Info{Width: 4, Height: 3}}, 2, 1.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.s.Extent()
			assert.InDelta(t, tt.w, got.X, 1e-4)
			assert.InDelta(t, tt.h, got.Y, 1e-4)
		})
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProberFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(name, pngBytes(t, 7, 5), 0o644))

	info, err := NewProber().Load(context.Background(), "file://"+name)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.ContentType)
	assert.Equal(t, 7, info.Width)
	assert.Equal(t, 5, info.Height)
	assert.Positive(t, info.Size)
}

func TestProberHTTPRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	body := pngBytes(t, 3, 2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	p := NewProber()
	p.Backoff = 1
	info, err := p.Load(context.Background(), srv.URL+"/content?path=/a.png")
	require.NoError(t, err)
	assert.Equal(t, 3, info.Width)
	assert.EqualValues(t, 2, hits.Load())
}

func TestProberHTTPClientErrorIsFinal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewProber().Load(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestProberCorruptImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("not a png"))
	}))
	defer srv.Close()

	_, err := NewProber().Load(context.Background(), srv.URL)
	assert.Error(t, err)
}
