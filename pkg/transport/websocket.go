package transport

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/gorilla/websocket"
)

// WebSocketOptions configures a WebSocketDialer
type WebSocketOptions struct {
	// HandshakeTimeout bounds the upgrade and namespace connect when ctx has no deadline
	HandshakeTimeout time.Duration

	// PingTimeout is added to the server ping interval to detect a dead link
	PingTimeout time.Duration

	// Jar supplies session cookies for the upgrade request
	Jar http.CookieJar

	Logger logger.Logger
}

// WebSocketDialer dials Socket.IO v5 namespaces over the websocket transport
type WebSocketDialer struct {
	dialer      *websocket.Dialer
	timeout     time.Duration
	pingTimeout time.Duration
	logger      logger.Logger
}

// NewWebSocketDialer creates a dialer
func NewWebSocketDialer(opts WebSocketOptions) *WebSocketDialer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = 10 * time.Second
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 20 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &WebSocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
			Jar:              opts.Jar,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		timeout:     opts.HandshakeTimeout,
		pingTimeout: opts.PingTimeout,
		logger:      opts.Logger,
	}
}

// EngineURL turns a server base URL into the Engine.IO websocket endpoint.
func EngineURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeConnectionFailed, "invalid socket url", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", errors.New(errors.ErrCodeConnectionFailed, "unsupported socket url scheme "+u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/socket.io/"
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dial upgrades to a websocket, completes the Engine.IO open handshake and
// connects to ep.Namespace. The listener starts receiving events once Dial returns.
func (d *WebSocketDialer) Dial(ctx context.Context, ep Endpoint, l Listener) (Conn, error) {
	target, err := EngineURL(ep.URL)
	if err != nil {
		return nil, err
	}
	namespace := ep.Namespace
	if namespace == "" {
		namespace = "/"
	}

	ws, resp, err := d.dialer.DialContext(ctx, target, ep.Header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrap(errors.ErrCodeConnectionFailed, "websocket upgrade rejected: "+resp.Status, err)
		}
		return nil, errors.Wrap(errors.ErrCodeConnectionFailed, "websocket dial failed", err)
	}

	c := &wsConn{
		ws:        ws,
		namespace: namespace,
		listener:  l,
		logger:    d.logger.With(logger.String("namespace", namespace)),
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(d.timeout)
	}
	if err := c.handshake(deadline); err != nil {
		ws.Close()
		return nil, err
	}
	c.readTimeout = c.pingInterval + d.pingTimeout

	go c.readLoop()
	return c, nil
}

type wsConn struct {
	ws        *websocket.Conn
	namespace string
	listener  Listener
	logger    logger.Logger

	id           string
	pingInterval time.Duration
	readTimeout  time.Duration

	writeMu sync.Mutex
	closing atomic.Bool
	closed  sync.Once
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) handshake(deadline time.Time) error {
	c.ws.SetReadDeadline(deadline)
	defer c.ws.SetReadDeadline(time.Time{})

	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return errors.Wrap(errors.ErrCodeHandshakeFailed, "read open packet", err)
	}
	if len(data) == 0 || data[0] != engineOpen {
		return errors.New(errors.ErrCodeHandshakeFailed, "expected open packet")
	}
	var open openPayload
	if err := json.Unmarshal(data[1:], &open); err != nil {
		return errors.Wrap(errors.ErrCodeHandshakeFailed, "decode open packet", err)
	}
	c.pingInterval = time.Duration(open.PingInterval) * time.Millisecond

	if err := c.write(EncodePacket(Packet{Type: PacketConnect, Namespace: c.namespace})); err != nil {
		return errors.Wrap(errors.ErrCodeHandshakeFailed, "send namespace connect", err)
	}

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return errors.Wrap(errors.ErrCodeHandshakeFailed, "await namespace connect", err)
		}
		if len(data) == 0 {
			continue
		}
		switch data[0] {
		case enginePing:
			if err := c.write(string(enginePong)); err != nil {
				return errors.Wrap(errors.ErrCodeHandshakeFailed, "send pong", err)
			}
			continue
		case engineMessage:
		default:
			continue
		}

		p, err := DecodePacket(string(data[1:]))
		if err != nil {
			return errors.Wrap(errors.ErrCodeHandshakeFailed, "decode connect reply", err)
		}
		if p.Namespace != c.namespace {
			continue
		}
		switch p.Type {
		case PacketConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			if len(p.Data) > 0 {
				_ = json.Unmarshal(p.Data, &ack)
			}
			c.id = ack.SID
			if c.id == "" {
				c.id = open.SID
			}
			return nil
		case PacketConnectError:
			return errors.New(errors.ErrCodeHandshakeFailed, "namespace connect refused: "+connectErrorMessage(p))
		}
	}
}

func (c *wsConn) readLoop() {
	reason, err := c.read()
	c.finish(reason, err)
}

func (c *wsConn) read() (DisconnectReason, error) {
	for {
		if c.readTimeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.closing.Load() {
				return DisconnectClient, nil
			}
			var ne net.Error
			if stderrors.As(err, &ne) && ne.Timeout() {
				return DisconnectPingTimeout, errors.Wrap(errors.ErrCodeTimeout, "no ping from server", err)
			}
			return DisconnectTransport, errors.Wrap(errors.ErrCodeDisconnected, "read failed", err)
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case enginePing:
			if err := c.write(string(enginePong)); err != nil {
				return DisconnectTransport, errors.Wrap(errors.ErrCodeDisconnected, "send pong", err)
			}
		case engineClose:
			return DisconnectTransport, nil
		case engineMessage:
			p, err := DecodePacket(string(data[1:]))
			if err != nil {
				c.logger.Warn("Dropping malformed packet", logger.Err(err))
				continue
			}
			if p.Namespace != c.namespace {
				continue
			}
			switch p.Type {
			case PacketEvent:
				msg, err := EventMessage(p)
				if err != nil {
					c.logger.Warn("Dropping malformed event", logger.Err(err))
					continue
				}
				if c.listener.OnMessage != nil {
					c.listener.OnMessage(msg)
				}
			case PacketDisconnect:
				return DisconnectServer, nil
			}
		}
	}
}

func (c *wsConn) finish(reason DisconnectReason, err error) {
	c.closed.Do(func() {
		c.ws.Close()
		c.logger.Debug("Socket closed", logger.String("reason", string(reason)))
		if c.listener.OnClose != nil {
			c.listener.OnClose(reason, err)
		}
	})
}

func (c *wsConn) write(frame string) error {
	return c.writeWithin(frame, 10*time.Second)
}

func (c *wsConn) writeWithin(frame string, d time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(d))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *wsConn) Emit(event string, args ...interface{}) error {
	if c.closing.Load() {
		return errors.New(errors.ErrCodeNotConnected, "connection closed")
	}
	frame, err := EncodeEvent(c.namespace, event, args...)
	if err != nil {
		return err
	}
	if err := c.write(frame); err != nil {
		return errors.Wrap(errors.ErrCodeDisconnected, "emit "+event, err)
	}
	return nil
}

// Close sends a namespace disconnect and closes the websocket. The read
// loop observes the close and reports DisconnectClient.
func (c *wsConn) Close() error {
	if !c.closing.CompareAndSwap(false, true) {
		return nil
	}
	_ = c.writeWithin(EncodePacket(Packet{Type: PacketDisconnect, Namespace: c.namespace}), time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
