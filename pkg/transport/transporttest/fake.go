// Package transporttest provides an in-memory transport and a loopback
// Socket.IO server for tests.
package transporttest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/transport"
)

// Emitted is one outbound event recorded by a fake Conn
type Emitted struct {
	Event string
	Args  []json.RawMessage
}

// Decode unmarshals argument i into v.
func (e Emitted) Decode(i int, v interface{}) error {
	if i >= len(e.Args) {
		return fmt.Errorf("emit %s has %d args", e.Event, len(e.Args))
	}
	return json.Unmarshal(e.Args[i], v)
}

// Dialer is a transport.Dialer whose connections are driven by the test
type Dialer struct {
	mu       sync.Mutex
	conns    []*Conn
	failures []error
	dials    int
}

// NewDialer creates a fake dialer
func NewDialer() *Dialer {
	return &Dialer{}
}

// FailNext makes the next len(errs) dials fail with the given errors.
func (d *Dialer) FailNext(errs ...error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = append(d.failures, errs...)
}

// Dial implements transport.Dialer
func (d *Dialer) Dial(ctx context.Context, ep transport.Endpoint, l transport.Listener) (transport.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dials++
	if len(d.failures) > 0 {
		err := d.failures[0]
		d.failures = d.failures[1:]
		return nil, err
	}

	c := &Conn{
		id:       fmt.Sprintf("fake-%d", d.dials),
		endpoint: ep,
		listener: l,
	}
	d.conns = append(d.conns, c)
	return c, nil
}

// Dials returns the number of Dial calls, failed ones included
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Conns returns every connection handed out so far
func (d *Dialer) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// Last returns the most recent connection or nil
func (d *Dialer) Last() *Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

// Open returns the connections that have not been closed or dropped
func (d *Dialer) Open() []*Conn {
	var open []*Conn
	for _, c := range d.Conns() {
		if !c.Closed() {
			open = append(open, c)
		}
	}
	return open
}

// Conn is a fake transport.Conn
type Conn struct {
	mu       sync.Mutex
	id       string
	endpoint transport.Endpoint
	listener transport.Listener
	emitted  []Emitted
	closed   bool
	emitErr  error
}

// ID implements transport.Conn
func (c *Conn) ID() string {
	return c.id
}

// Endpoint returns the endpoint the connection was dialed with
func (c *Conn) Endpoint() transport.Endpoint {
	return c.endpoint
}

// FailEmits makes subsequent emits return err
func (c *Conn) FailEmits(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitErr = err
}

// Emit implements transport.Conn
func (c *Conn) Emit(event string, args ...interface{}) error {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		raw = append(raw, b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New(errors.ErrCodeNotConnected, "connection closed")
	}
	if c.emitErr != nil {
		return c.emitErr
	}
	c.emitted = append(c.emitted, Emitted{Event: event, Args: raw})
	return nil
}

// Close implements transport.Conn. OnClose runs synchronously.
func (c *Conn) Close() error {
	c.end(transport.DisconnectClient, nil)
	return nil
}

// Drop ends the connection as if the remote side or the network closed it.
func (c *Conn) Drop(reason transport.DisconnectReason) {
	var err error
	if !reason.ServerInitiated() {
		err = errors.New(errors.ErrCodeDisconnected, string(reason))
	}
	c.end(reason, err)
}

func (c *Conn) end(reason transport.DisconnectReason, err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.listener.OnClose != nil {
		c.listener.OnClose(reason, err)
	}
}

// Deliver hands an inbound event to the listener synchronously.
func (c *Conn) Deliver(event string, args ...interface{}) error {
	raw := make([]json.RawMessage, 0, len(args))
	for _, a := range args {
		b, err := json.Marshal(a)
		if err != nil {
			return err
		}
		raw = append(raw, b)
	}
	return c.DeliverMessage(transport.Message{Event: event, Args: raw})
}

// DeliverMessage hands a prebuilt message to the listener synchronously.
func (c *Conn) DeliverMessage(msg transport.Message) error {
	if c.Closed() {
		return errors.New(errors.ErrCodeNotConnected, "connection closed")
	}
	if c.listener.OnMessage != nil {
		c.listener.OnMessage(msg)
	}
	return nil
}

// Emitted returns the recorded outbound events
func (c *Conn) Emitted() []Emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Emitted, len(c.emitted))
	copy(out, c.emitted)
	return out
}

// EmittedEvents returns just the names of the recorded outbound events
func (c *Conn) EmittedEvents() []string {
	emitted := c.Emitted()
	names := make([]string, len(emitted))
	for i, e := range emitted {
		names[i] = e.Event
	}
	return names
}

// Closed reports whether the connection ended
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
