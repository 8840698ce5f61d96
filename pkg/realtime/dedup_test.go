package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/aminofox/zenclient/pkg/clock/clocktest"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/stretchr/testify/assert"
)

func raw(s string) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(s)}
}

func TestDeduplicatorBuckets(t *testing.T) {
	clk := clocktest.New(time.Unix(500, 0))
	d := NewDeduplicator(config.DefaultConfig().Dedup, clk)

	assert.True(t, d.Accept("chatMessage", raw(`{"t":1}`)))
	assert.False(t, d.Accept("chatMessage", raw(`{"t":1}`)))

	// other events and other payloads are independent
	assert.True(t, d.Accept("streamStats", raw(`{"t":1}`)))
	assert.True(t, d.Accept("chatMessage", raw(`{"t":2}`)))

	// the next bucket accepts the same payload again
	clk.Advance(time.Second)
	assert.True(t, d.Accept("chatMessage", raw(`{"t":1}`)))
}

func TestDeduplicatorPrefix(t *testing.T) {
	clk := clocktest.New(time.Unix(500, 0))
	cfg := config.DefaultConfig().Dedup
	cfg.PayloadPrefix = 10
	d := NewDeduplicator(cfg, clk)

	long := strings.Repeat("a", 50)
	assert.True(t, d.Accept("chatMessage", raw(`"`+long+`x"`)))
	// same first ten bytes collapse into one delivery
	assert.False(t, d.Accept("chatMessage", raw(`"`+long+`y"`)))
}

func TestDeduplicatorExpiry(t *testing.T) {
	clk := clocktest.New(time.Unix(500, 0))
	d := NewDeduplicator(config.DefaultConfig().Dedup, clk)

	d.Accept("chatMessage", raw(`1`))
	d.Accept("chatMessage", raw(`2`))
	assert.Equal(t, 2, d.Size("chatMessage"))

	clk.Advance(11 * time.Second)
	d.Accept("chatMessage", raw(`3`))
	assert.Equal(t, 1, d.Size("chatMessage"))
}

func TestDeduplicatorCapEvictsOldestHalf(t *testing.T) {
	clk := clocktest.New(time.Unix(500, 0))
	d := NewDeduplicator(config.DefaultConfig().Dedup, clk)

	for i := 0; i < 51; i++ {
		assert.True(t, d.Accept("streamStats", raw(fmt.Sprintf(`{"n":%d}`, i))))
	}
	assert.Equal(t, 26, d.Size("streamStats"))

	// the oldest keys are gone, the newest are still remembered
	assert.True(t, d.Accept("streamStats", raw(`{"n":0}`)))
	assert.False(t, d.Accept("streamStats", raw(`{"n":50}`)))
}

func TestDeduplicatorDisabled(t *testing.T) {
	d := NewDeduplicator(config.DedupConfig{}, clocktest.New(time.Unix(0, 0)))
	assert.True(t, d.Accept("x", raw(`1`)))
	assert.True(t, d.Accept("x", raw(`1`)))
}

func TestDeduplicatorReset(t *testing.T) {
	clk := clocktest.New(time.Unix(500, 0))
	d := NewDeduplicator(config.DefaultConfig().Dedup, clk)

	d.Accept("x", raw(`1`))
	d.Reset()
	assert.True(t, d.Accept("x", raw(`1`)))
}

func TestDeduplicatorForgetsIdleEvents(t *testing.T) {
	clk := clocktest.New(time.Unix(500, 0))
	d := NewDeduplicator(config.DefaultConfig().Dedup, clk)

	for i := 0; i < 20; i++ {
		assert.True(t, d.Accept(fmt.Sprintf("chatMessage:%d", i), raw(`{"m":"hi"}`)))
	}
	assert.Equal(t, 20, d.Tracked())

	// rooms that went quiet are dropped once their keys expire
	clk.Advance(11 * time.Second)
	assert.True(t, d.Accept("streamStats", raw(`{"viewers":1}`)))
	assert.Equal(t, 1, d.Tracked())
	assert.Zero(t, d.Size("chatMessage:0"))

	// a room that speaks again starts fresh
	assert.True(t, d.Accept("chatMessage:0", raw(`{"m":"hi"}`)))
	assert.Equal(t, 2, d.Tracked())
}
