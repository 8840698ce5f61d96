package realtime

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aminofox/zenclient/pkg/clock"
	"github.com/aminofox/zenclient/pkg/config"
)

// Deduplicator suppresses repeated deliveries of the same payload on the
// same event within one time bucket.
//
// It is best effort. Keys come from a truncated payload plus a coarse
// timestamp, so two distinct payloads sharing a prefix inside one bucket
// collapse into one delivery, and a duplicate straddling a bucket boundary
// gets through. Nothing that needs exactly-once semantics should rely on it.
type Deduplicator struct {
	mu         sync.Mutex
	clock      clock.Clock
	window     time.Duration
	horizon    time.Duration
	maxEntries int
	prefix     int
	events     map[string]*seenKeys
	swept      time.Time
}

type seenKey struct {
	key string
	at  time.Time
}

// seenKeys holds one event's keys oldest first
type seenKeys struct {
	order []seenKey
	index map[string]struct{}
}

// NewDeduplicator creates a deduplicator from cfg
func NewDeduplicator(cfg config.DedupConfig, clk clock.Clock) *Deduplicator {
	if clk == nil {
		clk = clock.New()
	}
	return &Deduplicator{
		clock:      clk,
		window:     cfg.Window,
		horizon:    cfg.Horizon,
		maxEntries: cfg.MaxEntries,
		prefix:     cfg.PayloadPrefix,
		events:     make(map[string]*seenKeys),
	}
}

// Key derives the dedup key of a delivery at time now
func (d *Deduplicator) Key(event string, args []json.RawMessage, now time.Time) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.Write(a)
	}
	sb.WriteByte(']')

	payload := sb.String()
	if d.prefix > 0 && len(payload) > d.prefix {
		payload = payload[:d.prefix]
	}

	var bucket int64
	if d.window > 0 {
		bucket = now.UnixNano() / int64(d.window)
	}
	return event + "|" + payload + "|" + strconv.FormatInt(bucket, 10)
}

// Accept records the delivery and reports whether it should be dispatched.
// It returns false when the same key was accepted within the horizon.
func (d *Deduplicator) Accept(event string, args []json.RawMessage) bool {
	if d.window <= 0 {
		return true
	}

	now := d.clock.Now()
	key := d.Key(event, args, now)

	d.mu.Lock()
	defer d.mu.Unlock()

	cutoff := now.Add(-d.horizon)
	if now.Sub(d.swept) >= d.horizon {
		d.sweepLocked(cutoff)
		d.swept = now
	}

	seen, ok := d.events[event]
	if !ok {
		seen = &seenKeys{index: make(map[string]struct{})}
		d.events[event] = seen
	}

	seen.expire(cutoff)
	if _, dup := seen.index[key]; dup {
		return false
	}

	seen.order = append(seen.order, seenKey{key: key, at: now})
	seen.index[key] = struct{}{}

	if d.maxEntries > 0 && len(seen.order) > d.maxEntries {
		seen.evict(len(seen.order) / 2)
	}
	return true
}

// sweepLocked expires every event and forgets the ones left empty, so
// room-scoped events of rooms gone quiet do not pile up.
func (d *Deduplicator) sweepLocked(cutoff time.Time) {
	for event, seen := range d.events {
		seen.expire(cutoff)
		if len(seen.order) == 0 {
			delete(d.events, event)
		}
	}
}

// Size returns how many keys are remembered for event
func (d *Deduplicator) Size(event string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if seen, ok := d.events[event]; ok {
		return len(seen.order)
	}
	return 0
}

// Reset forgets every key
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = make(map[string]*seenKeys)
	d.swept = time.Time{}
}

// Tracked returns how many events currently hold keys
func (d *Deduplicator) Tracked() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.events)
}

// expire drops keys recorded at or before cutoff
func (s *seenKeys) expire(cutoff time.Time) {
	n := 0
	for n < len(s.order) && !s.order[n].at.After(cutoff) {
		n++
	}
	if n > 0 {
		s.evict(n)
	}
}

// evict drops the n oldest keys
func (s *seenKeys) evict(n int) {
	for _, k := range s.order[:n] {
		delete(s.index, k.key)
	}
	s.order = append([]seenKey(nil), s.order[n:]...)
}
