package app

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/notify"
)

func TestNavigateAppliesListing(t *testing.T) {
	fc := newFakeCollection()
	fc.setListing("/photos", file("/photos/b.jpg"), folder("/photos/trip"), file("/photos/a.jpg"))
	b, _ := newTestBrowser(t, fc, Options{})

	waitFor(t, b.Navigate(location.At("/photos")))

	snap := b.Snapshot()
	assert.Equal(t, location.At("/photos"), snap.Location)
	assert.Equal(t, []string{"/photos/trip", "/photos/a.jpg", "/photos/b.jpg"}, paths(snap.Items))
	assert.Equal(t, 3, snap.Total)
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.ListErr)
	require.Len(t, snap.Breadcrumbs, 2)
	assert.Equal(t, "photos", snap.Breadcrumbs[1].Label)
}

func TestStaleNavigationIsDiscarded(t *testing.T) {
	fc := newFakeCollection()
	fc.setListing("/a", file("/a/late.txt"))
	fc.setListing("/b", file("/b/current.txt"))
	gateA := fc.gate("/a")
	b, _ := newTestBrowser(t, fc, Options{})

	doneA := b.Navigate(location.At("/a"))
	doneB := b.Navigate(location.At("/b"))
	waitFor(t, doneB)

	close(gateA)
	waitFor(t, doneA)

	snap := b.Snapshot()
	assert.Equal(t, location.At("/b"), snap.Location)
	assert.Equal(t, []string{"/b/current.txt"}, paths(snap.Items))
	assert.False(t, snap.Loading)
}

func TestStaleErrorIsNotReported(t *testing.T) {
	fc := newFakeCollection()
	fc.setListErr("/a", &api.TransportError{Op: "list", Err: errors.New("connection reset")})
	fc.setListing("/b", file("/b/x.txt"))
	gateA := fc.gate("/a")
	b, _ := newTestBrowser(t, fc, Options{})

	doneA := b.Navigate(location.At("/a"))
	waitFor(t, b.Navigate(location.At("/b")))
	close(gateA)
	waitFor(t, doneA)

	snap := b.Snapshot()
	assert.NoError(t, snap.ListErr)
	assert.Empty(t, snap.Notifications)
}

func TestListingFailureShowsErrorAndRetry(t *testing.T) {
	fc := newFakeCollection()
	fc.setListErr("/broken", &api.TransportError{Op: "list", Err: errors.New("dial tcp: refused")})
	b, _ := newTestBrowser(t, fc, Options{})

	waitFor(t, b.Navigate(location.At("/broken")))

	snap := b.Snapshot()
	assert.Empty(t, snap.Items)
	assert.Error(t, snap.ListErr)
	require.Len(t, snap.Notifications, 1)
	assert.Equal(t, notify.Error, snap.Notifications[0].Kind)
	assert.Equal(t, "the server could not be reached", snap.Notifications[0].Message)

	fc.setListErr("/broken", nil)
	fc.setListing("/broken", file("/broken/ok.txt"))
	waitFor(t, b.Nav().Retry())

	snap = b.Snapshot()
	assert.NoError(t, snap.ListErr)
	assert.Equal(t, []string{"/broken/ok.txt"}, paths(snap.Items))
}

func TestFailureReplacesStaleListing(t *testing.T) {
	fc := newFakeCollection()
	fc.setListing("/", file("/a.txt"))
	b, _ := newTestBrowser(t, fc, Options{})
	waitFor(t, b.Navigate(location.At("/")))
	require.Len(t, b.Items(), 1)

	fc.setListErr("/", &api.RejectedError{Op: "list", Status: 403, Err: api.ErrPermission})
	waitFor(t, b.Nav().Refresh())

	snap := b.Snapshot()
	assert.Empty(t, snap.Items)
	assert.ErrorIs(t, snap.ListErr, api.ErrPermission)
}

func TestNavigateClearsSelection(t *testing.T) {
	var mu sync.Mutex
	var counts []int
	fc := newFakeCollection()
	fc.setListing("/", file("/a.txt"), file("/b.txt"))
	fc.setListing("/other")
	b, _ := newTestBrowser(t, fc, Options{OnSelection: func(n int) {
		mu.Lock()
		counts = append(counts, n)
		mu.Unlock()
	}})

	waitFor(t, b.Navigate(location.At("/")))
	b.State().SelectAll()
	assert.Equal(t, []string{"/a.txt", "/b.txt"}, b.Snapshot().Selection)

	waitFor(t, b.Navigate(location.At("/other")))
	assert.Empty(t, b.Snapshot().Selection)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 0}, counts)
}

func TestRefreshPrunesSelection(t *testing.T) {
	fc := newFakeCollection()
	fc.setListing("/", file("/a.txt"), file("/b.txt"), file("/c.txt"))
	b, _ := newTestBrowser(t, fc, Options{})
	waitFor(t, b.Navigate(location.At("/")))

	b.State().Toggle("/a.txt")
	b.State().Toggle("/b.txt")

	fc.setListing("/", file("/a.txt"), file("/c.txt"))
	waitFor(t, b.Nav().Refresh())

	assert.Equal(t, []string{"/a.txt"}, b.Snapshot().Selection)
}

func TestNavigateUp(t *testing.T) {
	fc := newFakeCollection()
	b, _ := newTestBrowser(t, fc, Options{})

	waitFor(t, b.Navigate(location.At("/")))
	calls := fc.listCount()

	waitFor(t, b.Nav().NavigateUp())
	assert.Equal(t, calls, fc.listCount(), "no fetch at root")
	assert.Equal(t, location.At("/"), b.Snapshot().Location)

	waitFor(t, b.Navigate(location.At("/photos/trip")))
	waitFor(t, b.Nav().NavigateUp())
	assert.Equal(t, location.At("/photos"), b.Snapshot().Location)

	waitFor(t, b.Navigate(location.In(location.Trash)))
	calls = fc.listCount()
	waitFor(t, b.Nav().NavigateUp())
	assert.Equal(t, calls, fc.listCount(), "virtual views have no parent")
}

func TestBackForward(t *testing.T) {
	fc := newFakeCollection()
	b, _ := newTestBrowser(t, fc, Options{})

	assert.False(t, b.Snapshot().CanBack)
	waitFor(t, b.Navigate(location.At("/a")))
	waitFor(t, b.Navigate(location.At("/b")))

	snap := b.Snapshot()
	assert.True(t, snap.CanBack)
	assert.False(t, snap.CanForward)

	waitFor(t, b.Nav().Back())
	snap = b.Snapshot()
	assert.Equal(t, location.At("/a"), snap.Location)
	assert.True(t, snap.CanForward)

	waitFor(t, b.Nav().Forward())
	assert.Equal(t, location.At("/b"), b.Snapshot().Location)

	// A new navigation drops forward history.
	waitFor(t, b.Nav().Back())
	waitFor(t, b.Navigate(location.At("/c")))
	assert.False(t, b.Snapshot().CanForward)
}

func TestHistoryIsBounded(t *testing.T) {
	fc := newFakeCollection()
	b, _ := newTestBrowser(t, fc, Options{})

	for i := 0; i < maxHistorySize+20; i++ {
		b.Navigate(location.At("/d"))
	}
	b.Wait()

	n := b.Nav()
	n.mu.Lock()
	defer n.mu.Unlock()
	assert.Len(t, n.history, maxHistorySize)
	assert.Equal(t, maxHistorySize-1, n.historyIndex)
}
