package clocktest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockFiresInOrder(t *testing.T) {
	c := New(time.Unix(0, 0))
	var order []string

	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() {
		order = append(order, "a")
		c.AfterFunc(500*time.Millisecond, func() { order = append(order, "a2") })
	})
	stopped := c.AfterFunc(1500*time.Millisecond, func() { order = append(order, "never") })

	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	c.Advance(1999 * time.Millisecond)
	assert.Equal(t, []string{"a", "a2"}, order)
	assert.Equal(t, []time.Duration{time.Millisecond}, c.Pending())

	c.Advance(time.Millisecond)
	assert.Equal(t, []string{"a", "a2", "b"}, order)
	assert.Empty(t, c.Pending())
	assert.True(t, c.Now().Equal(time.Unix(2, 0)))
}
