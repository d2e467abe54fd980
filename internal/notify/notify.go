// Package notify implements the stacked, timed notification queue every
// component reports outcomes to.
package notify

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justyntemme/shelf/internal/clock"
	"github.com/justyntemme/shelf/internal/debug"
	"github.com/justyntemme/shelf/internal/metrics"
)

// Kind is the severity of a notification.
type Kind int

const (
	Info Kind = iota
	Success
	Warning
	Error
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Notification is one visible message. A zero Duration makes it persistent.
type Notification struct {
	ID        string
	Kind      Kind
	Title     string
	Message   string
	Duration  time.Duration
	CreatedAt time.Time
}

// Durations used when a notification is pushed without one.
type Durations struct {
	Default time.Duration
	Error   time.Duration
}

// DefaultDurations matches the configuration defaults.
var DefaultDurations = Durations{Default: 4 * time.Second, Error: 8 * time.Second}

type entry struct {
	n     Notification
	timer clock.Timer
	gen   uint64 // bumped whenever the timer is re-armed or dropped
}

// Queue holds the active notifications in push order. Each entry owns its
// own dismiss timer.
type Queue struct {
	mu        sync.Mutex
	clock     clock.Clock
	durations Durations
	entries   []*entry
	subs      map[int]func([]Notification)
	nextSub   int
	closed    bool
}

// NewQueue creates a queue. A nil clock uses the wall clock.
func NewQueue(c clock.Clock, d Durations) *Queue {
	if c == nil {
		c = clock.Real{}
	}
	if d.Default <= 0 {
		d.Default = DefaultDurations.Default
	}
	if d.Error <= 0 {
		d.Error = DefaultDurations.Error
	}
	return &Queue{clock: c, durations: d, subs: make(map[int]func([]Notification))}
}

// Push shows n and returns its ID. A negative Duration selects the default
// for its kind; zero keeps it until dismissed.
func (q *Queue) Push(n Notification) string {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ""
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = q.clock.Now()
	if n.Duration < 0 {
		n.Duration = q.defaultFor(n.Kind)
	}

	e := &entry{n: n}
	q.entries = append(q.entries, e)
	q.arm(e)
	debug.Log(debug.NOTIFY, "Push: id=%s kind=%s title=%q", n.ID, n.Kind, n.Title)
	list, subs := q.publishLocked()
	q.mu.Unlock()

	metrics.RecordNotification(n.Kind.String())
	deliver(subs, list)
	return n.ID
}

// Replace swaps the content of an existing notification in place, keeping
// its slot and ID, and restarts only its timer. It reports false when id is
// no longer active.
func (q *Queue) Replace(id string, n Notification) bool {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return false
	}
	e := q.entries[i]
	if e.timer != nil {
		e.timer.Stop()
	}
	n.ID = id
	n.CreatedAt = q.clock.Now()
	if n.Duration < 0 {
		n.Duration = q.defaultFor(n.Kind)
	}
	e.n = n
	q.arm(e)
	debug.Log(debug.NOTIFY, "Replace: id=%s kind=%s title=%q", id, n.Kind, n.Title)
	list, subs := q.publishLocked()
	q.mu.Unlock()

	deliver(subs, list)
	return true
}

// Dismiss removes a notification. Unknown ids are ignored.
func (q *Queue) Dismiss(id string) bool {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 {
		q.mu.Unlock()
		return false
	}
	q.removeLocked(i)
	debug.Log(debug.NOTIFY, "Dismiss: id=%s", id)
	list, subs := q.publishLocked()
	q.mu.Unlock()

	deliver(subs, list)
	return true
}

// Active returns the visible notifications, oldest first.
func (q *Queue) Active() []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.listLocked()
}

// Subscribe registers fn for every change to the active list. The returned
// func unsubscribes.
func (q *Queue) Subscribe(fn func([]Notification)) (cancel func()) {
	q.mu.Lock()
	id := q.nextSub
	q.nextSub++
	q.subs[id] = fn
	q.mu.Unlock()

	return func() {
		q.mu.Lock()
		delete(q.subs, id)
		q.mu.Unlock()
	}
}

// Close stops every timer and drops all notifications.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range q.entries {
		if e.timer != nil {
			e.timer.Stop()
		}
	}
	q.entries = nil
	q.subs = map[int]func([]Notification){}
	q.closed = true
}

// Info pushes an info notification with the default duration.
func (q *Queue) Info(title, message string) string {
	return q.Push(Notification{Kind: Info, Title: title, Message: message, Duration: -1})
}

// Success pushes a success notification with the default duration.
func (q *Queue) Success(title, message string) string {
	return q.Push(Notification{Kind: Success, Title: title, Message: message, Duration: -1})
}

// Warn pushes a warning notification with the default duration.
func (q *Queue) Warn(title, message string) string {
	return q.Push(Notification{Kind: Warning, Title: title, Message: message, Duration: -1})
}

// Error pushes an error notification with the longer error duration.
func (q *Queue) Error(title, message string) string {
	return q.Push(Notification{Kind: Error, Title: title, Message: message, Duration: -1})
}

// Persistent pushes a notification that stays until dismissed or replaced.
func (q *Queue) Persistent(kind Kind, title, message string) string {
	return q.Push(Notification{Kind: kind, Title: title, Message: message})
}

func (q *Queue) defaultFor(k Kind) time.Duration {
	if k == Error {
		return q.durations.Error
	}
	return q.durations.Default
}

// arm starts e's dismiss timer. A late firing from an earlier arm sees a
// different generation and does nothing.
func (q *Queue) arm(e *entry) {
	e.gen++
	e.timer = nil
	if e.n.Duration <= 0 {
		return
	}
	id, gen := e.n.ID, e.gen
	e.timer = q.clock.AfterFunc(e.n.Duration, func() { q.expire(id, gen) })
}

func (q *Queue) expire(id string, gen uint64) {
	q.mu.Lock()
	i := q.indexLocked(id)
	if i < 0 || q.entries[i].gen != gen {
		q.mu.Unlock()
		return
	}
	q.removeLocked(i)
	debug.Log(debug.NOTIFY, "expire: id=%s", id)
	list, subs := q.publishLocked()
	q.mu.Unlock()

	deliver(subs, list)
}

func (q *Queue) indexLocked(id string) int {
	return slices.IndexFunc(q.entries, func(e *entry) bool { return e.n.ID == id })
}

func (q *Queue) removeLocked(i int) {
	e := q.entries[i]
	if e.timer != nil {
		e.timer.Stop()
	}
	e.gen++
	q.entries = slices.Delete(q.entries, i, i+1)
}

func (q *Queue) listLocked() []Notification {
	out := make([]Notification, len(q.entries))
	for i, e := range q.entries {
		out[i] = e.n
	}
	return out
}

func (q *Queue) publishLocked() ([]Notification, []func([]Notification)) {
	if len(q.subs) == 0 {
		return nil, nil
	}
	subs := make([]func([]Notification), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	return q.listLocked(), subs
}

func deliver(subs []func([]Notification), list []Notification) {
	for _, fn := range subs {
		fn(list)
	}
}
