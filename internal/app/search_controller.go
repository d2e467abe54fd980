package app

import (
	"strings"
	"sync"
	"time"

	"github.com/justyntemme/shelf/internal/clock"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/view"
)

// DefaultSearchDebounce is the quiet period before a query is applied.
const DefaultSearchDebounce = 275 * time.Millisecond

// Search directive prefixes for advanced query syntax
var searchDirectives = []string{
	"kind:",
	"type:",
	"tag:",
	"tags:",
	"size:",
	"modified:",
	"date:",
	"mtime:",
}

// SearchController coalesces keystrokes into one filter update per quiet
// period.
type SearchController struct {
	clock clock.Clock
	delay time.Duration
	apply func(query string, f view.Filter)

	mu      sync.Mutex
	timer   clock.Timer
	seq     uint64
	query   string
	applied string
}

// NewSearchController creates a debounced search box that calls apply.
func NewSearchController(c clock.Clock, delay time.Duration, apply func(query string, f view.Filter)) *SearchController {
	if delay <= 0 {
		delay = DefaultSearchDebounce
	}
	return &SearchController{clock: c, delay: delay, apply: apply}
}

// SetQuery records a keystroke. The filter is updated once typing pauses.
func (s *SearchController) SetQuery(query string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.query = query
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = s.clock.AfterFunc(s.delay, func() { s.fire(seq) })
}

// Submit applies the pending query now, as when Enter is pressed.
func (s *SearchController) Submit() {
	s.mu.Lock()
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	query := s.query
	s.mu.Unlock()

	s.run(query)
}

// Clear empties the search box and removes the filter immediately.
func (s *SearchController) Clear() {
	s.mu.Lock()
	s.query = ""
	s.mu.Unlock()
	s.Submit()
}

// Query returns the text as typed so far.
func (s *SearchController) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Stop cancels any pending update.
func (s *SearchController) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *SearchController) fire(seq uint64) {
	s.mu.Lock()
	if seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	query := s.query
	s.mu.Unlock()

	s.run(query)
}

func (s *SearchController) run(query string) {
	// Check if query contains directive prefix but no value (incomplete)
	if isIncompleteDirective(query) {
		debug.Log(debug.VIEW, "search: incomplete directive, waiting: %q", query)
		return
	}

	s.mu.Lock()
	if query == s.applied {
		s.mu.Unlock()
		return
	}
	s.applied = query
	s.mu.Unlock()

	debug.Log(debug.VIEW, "search: applying %q", query)
	s.apply(query, view.ParseQuery(query))
}

// isIncompleteDirective checks if the last word is a directive prefix with
// no value yet.
func isIncompleteDirective(query string) bool {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return false
	}
	last := fields[len(fields)-1]
	for _, prefix := range searchDirectives {
		if last == prefix {
			return true
		}
	}
	return false
}
