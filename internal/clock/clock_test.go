package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeFiresInOrder(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(time.Second, func() { got = append(got, "a") })
	stop := c.AfterFunc(3*time.Second, func() { got = append(got, "c") })

	c.Advance(1500 * time.Millisecond)
	assert.Equal(t, []string{"a"}, got)

	assert.True(t, stop.Stop())
	assert.False(t, stop.Stop())

	c.Advance(10 * time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, time.Unix(11, 500_000_000), c.Now())
	assert.Zero(t, c.Pending())
}

func TestFakeCallbackCanRearm(t *testing.T) {
	c := NewFake(time.Unix(0, 0))
	n := 0
	var tick func()
	tick = func() {
		n++
		if n < 3 {
			c.AfterFunc(time.Second, tick)
		}
	}
	c.AfterFunc(time.Second, tick)
	c.Advance(5 * time.Second)
	assert.Equal(t, 3, n)
}
