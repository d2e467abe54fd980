package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/shelf/internal/clock"
)

func newQueue() (*Queue, *clock.Fake) {
	c := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewQueue(c, Durations{Default: 4 * time.Second, Error: 8 * time.Second}), c
}

func titles(ns []Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.Title
	}
	return out
}

func TestIndependentTimers(t *testing.T) {
	q, c := newQueue()
	q.Info("info", "")
	q.Error("error", "")
	q.Persistent(Warning, "sticky", "")

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"error", "sticky"}, titles(q.Active()))

	c.Advance(5 * time.Second)
	assert.Equal(t, []string{"sticky"}, titles(q.Active()))

	c.Advance(time.Hour)
	assert.Equal(t, []string{"sticky"}, titles(q.Active()), "zero duration is persistent")
}

func TestReplaceKeepsSlotAndRestartsOnlyItsTimer(t *testing.T) {
	q, c := newQueue()
	first := q.Info("first", "")
	uploading := q.Persistent(Info, "Uploading…", "")
	q.Info("last", "")

	c.Advance(3 * time.Second)
	require.True(t, q.Replace(uploading, Notification{Kind: Success, Title: "Uploaded", Duration: -1}))

	got := q.Active()
	require.Len(t, got, 3)
	assert.Equal(t, uploading, got[1].ID)
	assert.Equal(t, "Uploaded", got[1].Title)

	// The other two expire on their original schedule.
	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"Uploaded"}, titles(q.Active()))

	c.Advance(3 * time.Second)
	assert.Empty(t, q.Active())
	assert.False(t, q.Dismiss(first))
}

func TestReplaceToPersistentCancelsTimer(t *testing.T) {
	q, c := newQueue()
	id := q.Info("loading", "")
	require.True(t, q.Replace(id, Notification{Kind: Info, Title: "still loading"}))

	c.Advance(time.Minute)
	assert.Equal(t, []string{"still loading"}, titles(q.Active()))
	assert.Zero(t, c.Pending())
}

func TestDismissDoesNotDisturbOthers(t *testing.T) {
	q, c := newQueue()
	a := q.Info("a", "")
	c.Advance(time.Second)
	q.Info("b", "")

	require.True(t, q.Dismiss(a))
	c.Advance(3500 * time.Millisecond)
	assert.Equal(t, []string{"b"}, titles(q.Active()))
	c.Advance(time.Second)
	assert.Empty(t, q.Active())
}

func TestSubscribe(t *testing.T) {
	q, c := newQueue()
	var seen [][]string
	cancel := q.Subscribe(func(ns []Notification) { seen = append(seen, titles(ns)) })

	q.Info("a", "")
	c.Advance(5 * time.Second)
	cancel()
	q.Info("b", "")

	assert.Equal(t, [][]string{{"a"}, {}}, seen)
}

func TestReplaceUnknown(t *testing.T) {
	q, _ := newQueue()
	assert.False(t, q.Replace("nope", Notification{Title: "x"}))
}

func TestCloseStopsTimers(t *testing.T) {
	q, c := newQueue()
	q.Info("a", "")
	q.Close()
	assert.Zero(t, c.Pending())
	assert.Empty(t, q.Push(Notification{Title: "late"}))
	assert.Empty(t, q.Active())
}
