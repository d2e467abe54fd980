package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/justyntemme/shelf/internal/api"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/location"
	"github.com/justyntemme/shelf/internal/logging"
	"github.com/justyntemme/shelf/internal/metrics"
	"github.com/justyntemme/shelf/internal/notify"
)

const maxHistorySize = 100

// closedDone is returned for navigations that do nothing.
var closedDone = func() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// NavigationController owns the location, its history and the listing
// fetches. Only the response to the latest request is applied.
type NavigationController struct {
	state *StateOwner
	coll  api.Collection
	notes *notify.Queue
	base  context.Context

	// onLocation is told about every location a listing is requested for.
	onLocation func(location.Location)

	loadMu sync.Mutex // orders cancel and generation bump
	cancel context.CancelFunc

	mu           sync.Mutex
	history      []location.Location
	historyIndex int
	wg           sync.WaitGroup
}

// NewNavigationController creates a navigation controller. Fetches run
// under base and stop when it is cancelled.
func NewNavigationController(base context.Context, state *StateOwner, coll api.Collection, notes *notify.Queue) *NavigationController {
	return &NavigationController{
		state:        state,
		coll:         coll,
		notes:        notes,
		base:         base,
		history:      make([]location.Location, 0, maxHistorySize),
		historyIndex: -1,
	}
}

// Navigate moves to loc, adds it to history and fetches its listing. The
// returned channel closes once the response has been applied or discarded.
func (n *NavigationController) Navigate(loc location.Location) <-chan struct{} {
	n.mu.Lock()
	// Truncate forward history if we're not at the end
	if n.historyIndex >= 0 && n.historyIndex < len(n.history)-1 {
		n.history = n.history[:n.historyIndex+1]
	}
	n.history = append(n.history, loc)
	n.historyIndex = len(n.history) - 1

	if len(n.history) > maxHistorySize {
		excess := len(n.history) - maxHistorySize
		n.history = n.history[excess:]
		n.historyIndex -= excess
	}
	n.mu.Unlock()

	return n.load(loc, false)
}

// NavigateUp moves to the parent folder. It is a no-op at the root and in
// virtual views.
func (n *NavigationController) NavigateUp() <-chan struct{} {
	parent, ok := n.state.Location().Parent()
	if !ok {
		return closedDone
	}
	return n.Navigate(parent)
}

// Back returns to the previous location in history.
func (n *NavigationController) Back() <-chan struct{} {
	n.mu.Lock()
	if n.historyIndex <= 0 {
		n.mu.Unlock()
		return closedDone
	}
	n.historyIndex--
	loc := n.history[n.historyIndex]
	n.mu.Unlock()
	return n.load(loc, false)
}

// Forward moves forward in history.
func (n *NavigationController) Forward() <-chan struct{} {
	n.mu.Lock()
	if n.historyIndex >= len(n.history)-1 {
		n.mu.Unlock()
		return closedDone
	}
	n.historyIndex++
	loc := n.history[n.historyIndex]
	n.mu.Unlock()
	return n.load(loc, false)
}

// CanBack reports whether Back would move.
func (n *NavigationController) CanBack() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.historyIndex > 0
}

// CanForward reports whether Forward would move.
func (n *NavigationController) CanForward() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.historyIndex < len(n.history)-1
}

// Refresh re-fetches the current location keeping the selection, minus
// whatever no longer exists.
func (n *NavigationController) Refresh() <-chan struct{} {
	return n.load(n.state.Location(), true)
}

// Retry re-issues the current navigation after a failed listing.
func (n *NavigationController) Retry() <-chan struct{} {
	return n.load(n.state.Location(), false)
}

// Wait blocks until every started fetch has finished.
func (n *NavigationController) Wait() {
	n.wg.Wait()
}

func (n *NavigationController) load(loc location.Location, keepSelection bool) <-chan struct{} {
	n.loadMu.Lock()
	if n.cancel != nil {
		n.cancel()
	}
	ctx, cancel := context.WithCancel(n.base)
	n.cancel = cancel
	gen := n.state.beginLoad(loc, keepSelection)
	n.loadMu.Unlock()

	debug.Log(debug.NAV, "load %s gen=%d keepSelection=%v", loc, gen, keepSelection)
	if n.onLocation != nil {
		n.onLocation(loc)
	}

	done := make(chan struct{})
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer close(done)
		defer cancel()

		start := time.Now()
		items, err := n.coll.List(ctx, loc)
		if err != nil && shuttingDown(n.base, err) {
			debug.Log(debug.NAV, "listing for %s abandoned at shutdown", loc)
			return
		}
		if err != nil {
			if !n.state.failListing(gen, err) {
				debug.Log(debug.NAV, "discarding stale error for %s gen=%d: %v", loc, gen, err)
				metrics.RecordNavigation(metrics.NavStale, time.Since(start))
				return
			}
			metrics.RecordNavigation(metrics.NavFailed, time.Since(start))
			logging.L().Warn("listing failed",
				zap.Stringer("location", loc),
				zap.Error(err))
			n.notes.Error("Could not open "+loc.Label(), api.Reason(err))
			return
		}

		if !n.state.applyListing(gen, items) {
			debug.Log(debug.NAV, "discarding stale listing for %s gen=%d", loc, gen)
			metrics.RecordNavigation(metrics.NavStale, time.Since(start))
			return
		}
		metrics.RecordNavigation(metrics.NavApplied, time.Since(start))
		debug.Log(debug.NAV, "applied %d items for %s gen=%d", len(items), loc, gen)
	}()
	return done
}
