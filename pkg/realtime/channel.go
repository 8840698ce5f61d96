// Package realtime manages the public and authenticated socket channels:
// connection lifecycle, reconnect backoff, handler registration and
// duplicate suppression, plus typed facades for the backend's events.
package realtime

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aminofox/zenclient/pkg/backoff"
	"github.com/aminofox/zenclient/pkg/clock"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/metrics"
	"github.com/aminofox/zenclient/pkg/transport"
)

// ChannelKind identifies one of the two socket channels
type ChannelKind string

const (
	// ChannelPublic is the anonymous channel, connected for the whole process lifetime
	ChannelPublic ChannelKind = "public"

	// ChannelAuth is the per-user channel, connected only while a session is active
	ChannelAuth ChannelKind = "auth"
)

// ConnectionState is the lifecycle state of a channel
type ConnectionState int

const (
	// StateDisconnected means no connection exists and none is wanted
	StateDisconnected ConnectionState = iota

	// StateConnecting means the first dial is in flight
	StateConnecting

	// StateConnected means events flow
	StateConnected

	// StateReconnecting means the link dropped and a retry is pending or in flight
	StateReconnecting

	// StateFailed means the reconnect budget is spent
	StateFailed
)

var stateNames = []string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

// String returns the string representation of the state
func (s ConnectionState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ChannelOptions configures a Channel
type ChannelOptions struct {
	Kind     ChannelKind
	Endpoint transport.Endpoint
	Dialer   transport.Dialer

	// Policy governs reconnects after a transport drop
	Policy backoff.Policy

	// DialTimeout bounds each dial
	DialTimeout time.Duration

	Dedup config.DedupConfig

	// Gate, when set, must return true for Connect to dial
	Gate func() bool

	Clock   clock.Clock
	Rand    func() float64
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// Channel owns at most one live connection for its kind. Handlers are kept
// in a logical map independent of the connection, and every connection
// carries exactly one transport listener that dispatches into that map, so
// handlers survive reconnects without being bound twice.
type Channel struct {
	kind        ChannelKind
	endpoint    transport.Endpoint
	dialer      transport.Dialer
	dialTimeout time.Duration
	gate        func() bool
	clock       clock.Clock
	logger      logger.Logger
	metrics     *metrics.Metrics

	handlers *handlerSet
	dedup    *Deduplicator

	// dialMu serialises dials so a superseded dial is closed before the next starts
	dialMu sync.Mutex

	mu         sync.Mutex
	state      ConnectionState
	link       *link
	gen        uint64
	connecting bool
	wanted     bool
	backoff    *backoff.Backoff
	timer      clock.Timer
	cancelDial context.CancelFunc
	watchers   map[uint64]func(ConnectionState)
	nextWatch  uint64
}

// link is one transport connection. Once abandoned its callbacks are
// ignored without touching the channel lock. The conn is always closed
// after that lock is released, since a real close may block on the network.
type link struct {
	conn      transport.Conn
	gen       uint64
	abandoned atomic.Bool
	lost      bool
}

// NewChannel creates a disconnected channel
func NewChannel(opts ChannelOptions) *Channel {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}

	return &Channel{
		kind:        opts.Kind,
		endpoint:    opts.Endpoint,
		dialer:      opts.Dialer,
		dialTimeout: opts.DialTimeout,
		gate:        opts.Gate,
		clock:       opts.Clock,
		logger:      opts.Logger.With(logger.String("channel", string(opts.Kind))),
		metrics:     opts.Metrics,
		handlers:    newHandlerSet(),
		dedup:       NewDeduplicator(opts.Dedup, opts.Clock),
		backoff:     backoff.NewWithRand(opts.Policy, opts.Rand),
		watchers:    make(map[uint64]func(ConnectionState)),
	}
}

// Kind returns the channel kind
func (c *Channel) Kind() ChannelKind {
	return c.kind
}

// Connect dials the channel. It is a no-op while connected or while a dial
// or reconnect is already in progress, and for a gated channel whose gate
// is closed. A failed dial schedules a reconnect per the policy; the error
// is returned for information only.
func (c *Channel) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.gate != nil && !c.gate() {
		c.mu.Unlock()
		c.logger.Debug("Connect skipped, session not authenticated")
		return errors.ErrUnauthenticated
	}
	if c.state == StateConnected || c.connecting || c.timer != nil {
		c.mu.Unlock()
		return nil
	}

	if c.state == StateFailed || c.state == StateDisconnected {
		c.backoff.Reset()
	}
	c.wanted = true
	gen := c.beginDialLocked()
	changed := c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.notify(changed)
	c.logger.Info("Connecting", logger.String("url", c.endpoint.URL), logger.String("namespace", c.endpoint.Namespace))
	return c.dial(ctx, gen)
}

// Disconnect tears the connection down, cancels any pending reconnect and
// resets the reconnect counter. Registered handlers are kept and bind again
// on the next Connect.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.wanted = false
	c.gen++
	c.stopTimerLocked()
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	conn := c.detachLinkLocked()
	c.connecting = false
	c.backoff.Reset()
	c.dedup.Reset()
	changed := c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	if changed != nil {
		c.logger.Info("Disconnected")
	}
	c.notify(changed)
}

// Emit sends event immediately when connected. Otherwise the emit is
// dropped and logged; nothing is queued.
func (c *Channel) Emit(event EventName, args ...interface{}) error {
	name := event.String()
	if !event.Valid() {
		err := errors.New(errors.ErrCodeInvalidEvent, "emit with empty event name")
		c.logger.Error("Emit rejected", logger.Err(err))
		return err
	}

	c.mu.Lock()
	lk := c.link
	connected := c.state == StateConnected
	c.mu.Unlock()

	if lk == nil || !connected {
		err := errors.NewNotConnectedError(string(c.kind), name)
		c.logger.Error("Socket not connected during emit", logger.String("event", name))
		c.metrics.EmitDropped(string(c.kind), string(event.Kind()), "not_connected")
		return err
	}

	if err := lk.conn.Emit(name, args...); err != nil {
		c.logger.Error("Emit failed", logger.String("event", name), logger.Err(err))
		c.metrics.EmitDropped(string(c.kind), string(event.Kind()), "transport")
		return err
	}
	return nil
}

// On registers h for event and returns its token
func (c *Channel) On(event EventName, h Handler) *Subscription {
	sub := NewSubscription(h)
	if err := c.Attach(event, sub); err != nil {
		return nil
	}
	return sub
}

// Attach registers an existing token for event. Attaching a token that is
// already registered for event does nothing.
func (c *Channel) Attach(event EventName, sub *Subscription) error {
	if !event.Valid() {
		err := errors.New(errors.ErrCodeInvalidEvent, "handler registered for empty event name")
		c.logger.Error("Registration rejected", logger.Err(err))
		return err
	}
	if sub == nil || sub.handler == nil {
		err := errors.NewInvalidArgumentError("handler", "nil")
		c.logger.Error("Registration rejected", logger.String("event", event.String()), logger.Err(err))
		return err
	}

	if !c.handlers.add(event.String(), sub) {
		c.logger.Debug("Handler already registered", logger.String("event", event.String()), logger.String("subscription_id", sub.id))
		return nil
	}
	c.logger.Debug("Handler registered", logger.String("event", event.String()), logger.String("subscription_id", sub.id))
	return nil
}

// Off removes sub from event, or every handler of event when sub is nil.
// It is safe to call from inside a handler.
func (c *Channel) Off(event EventName, sub *Subscription) {
	n := c.handlers.remove(event.String(), sub)
	c.logger.Debug("Handlers removed", logger.String("event", event.String()), logger.Int("count", n))
}

// HandlerCount returns how many handlers are registered for event
func (c *Channel) HandlerCount(event EventName) int {
	return c.handlers.count(event.String())
}

// IsConnected reports whether events currently flow
func (c *Channel) IsConnected() bool {
	return c.State() == StateConnected
}

// State returns the current connection state
func (c *Channel) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ReconnectAttempts returns the reconnects scheduled since the last successful connect
func (c *Channel) ReconnectAttempts() int {
	return c.backoff.Attempts()
}

// OnStateChange registers fn for state transitions and returns a function
// that removes it. fn runs outside the channel lock.
func (c *Channel) OnStateChange(fn func(ConnectionState)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextWatch++
	id := c.nextWatch
	c.watchers[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.watchers, id)
	}
}

// beginDialLocked bumps the generation for a new dial and returns it
func (c *Channel) beginDialLocked() uint64 {
	c.gen++
	c.connecting = true
	c.timer = nil
	return c.gen
}

func (c *Channel) dial(parent context.Context, gen uint64) error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	ctx, cancel := context.WithTimeout(parent, c.dialTimeout)
	defer cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil
	}
	c.cancelDial = cancel
	c.mu.Unlock()

	lk := &link{gen: gen}
	conn, err := c.dialer.Dial(ctx, c.endpoint, transport.Listener{
		OnMessage: func(m transport.Message) {
			if !lk.abandoned.Load() {
				c.deliver(m)
			}
		},
		OnClose: func(reason transport.DisconnectReason, err error) {
			if !lk.abandoned.Load() {
				c.handleClose(lk, reason, err)
			}
		},
	})

	c.mu.Lock()
	if gen != c.gen || !c.wanted {
		c.mu.Unlock()
		if conn != nil {
			lk.abandoned.Store(true)
			conn.Close()
		}
		return nil
	}
	c.cancelDial = nil
	c.connecting = false

	if err != nil {
		changed := c.scheduleReconnectLocked("backoff")
		c.mu.Unlock()
		c.logger.Warn("Connection attempt failed", logger.Err(err))
		c.notify(changed)
		return errors.Wrap(errors.ErrCodeConnectionFailed, string(c.kind)+" connect failed", err)
	}

	if lk.lost {
		lk.abandoned.Store(true)
		changed := c.scheduleReconnectLocked("backoff")
		c.mu.Unlock()
		c.logger.Warn("Connection lost during handshake")
		c.notify(changed)
		return errors.New(errors.ErrCodeDisconnected, string(c.kind)+" connection lost during handshake")
	}

	lk.conn = conn
	c.link = lk
	c.backoff.Reset()
	changed := c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.logger.Info("Connected", logger.String("socket_id", conn.ID()))
	c.notify(changed)
	return nil
}

// handleClose reacts to the end of a connection
func (c *Channel) handleClose(lk *link, reason transport.DisconnectReason, err error) {
	c.mu.Lock()
	if c.link != lk {
		if lk.gen == c.gen && c.connecting {
			lk.lost = true
		}
		c.mu.Unlock()
		return
	}
	c.link = nil

	if !c.wanted {
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.notify(changed)
		return
	}

	fields := []logger.Field{logger.String("reason", string(reason))}
	if err != nil {
		fields = append(fields, logger.Err(err))
	}
	c.logger.Warn("Disconnected", fields...)

	if reason.ServerInitiated() {
		if c.gate != nil && !c.gate() {
			c.wanted = false
			changed := c.setStateLocked(StateDisconnected)
			c.mu.Unlock()
			c.notify(changed)
			return
		}
		next := c.beginDialLocked()
		changed := c.setStateLocked(StateReconnecting)
		c.mu.Unlock()

		c.metrics.ReconnectScheduled(string(c.kind), "server")
		c.notify(changed)
		c.dial(context.Background(), next)
		return
	}

	changed := c.scheduleReconnectLocked("backoff")
	c.mu.Unlock()
	c.notify(changed)
}

// scheduleReconnectLocked arms the backoff timer, or marks the channel
// failed once the budget is spent.
func (c *Channel) scheduleReconnectLocked(trigger string) func() {
	delay, ok := c.backoff.Next()
	if !ok {
		c.wanted = false
		c.logger.Error("Reconnect attempts exhausted", logger.Int("attempts", c.backoff.Attempts()))
		return c.setStateLocked(StateFailed)
	}

	gen := c.gen
	c.timer = c.clock.AfterFunc(delay, func() { c.reconnect(gen) })
	c.metrics.ReconnectScheduled(string(c.kind), trigger)
	c.logger.Info("Reconnect scheduled",
		logger.Duration("delay", delay),
		logger.Int("attempt", c.backoff.Attempts()),
	)
	return c.setStateLocked(StateReconnecting)
}

// reconnect runs when the backoff timer for gen fires
func (c *Channel) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.wanted || c.link != nil || c.connecting {
		c.mu.Unlock()
		return
	}
	if c.gate != nil && !c.gate() {
		c.wanted = false
		c.timer = nil
		changed := c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		c.notify(changed)
		return
	}
	next := c.beginDialLocked()
	c.mu.Unlock()

	c.dial(context.Background(), next)
}

// deliver dedups and dispatches one inbound message
func (c *Channel) deliver(m transport.Message) {
	name := ParseEventName(m.Event)
	if !c.dedup.Accept(m.Event, m.Args) {
		c.logger.Debug("Duplicate suppressed", logger.String("event", m.Event))
		c.metrics.DuplicateSuppressed(string(c.kind), string(name.Kind()))
		return
	}

	c.metrics.EventDelivered(string(c.kind), string(name.Kind()))
	for i := c.handlers.invoke(Message{Name: name, Args: m.Args}, c.logger); i > 0; i-- {
		c.metrics.HandlerPanicked(string(c.kind), string(name.Kind()))
	}
}

// detachLinkLocked abandons the current link and returns its conn for the
// caller to close once c.mu is released. It returns nil without a link.
func (c *Channel) detachLinkLocked() transport.Conn {
	if c.link == nil {
		return nil
	}
	lk := c.link
	c.link = nil
	lk.abandoned.Store(true)
	return lk.conn
}

func (c *Channel) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// setStateLocked records s and returns a notifier to run after unlocking,
// or nil when the state did not change.
func (c *Channel) setStateLocked(s ConnectionState) func() {
	if c.state == s {
		return nil
	}
	c.state = s
	c.metrics.ConnectionState(string(c.kind), s.String(), stateNames)

	watchers := make([]func(ConnectionState), 0, len(c.watchers))
	for _, fn := range c.watchers {
		watchers = append(watchers, fn)
	}
	return func() {
		for _, fn := range watchers {
			fn(s)
		}
	}
}

func (c *Channel) notify(changed func()) {
	if changed != nil {
		changed()
	}
}
