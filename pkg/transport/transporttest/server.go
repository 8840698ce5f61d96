package transporttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/aminofox/zenclient/pkg/transport"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Received is one event a Server read from a client
type Received struct {
	ClientID  string
	Namespace string
	Message   transport.Message
}

// Server is a loopback Socket.IO server speaking the websocket transport
type Server struct {
	*httptest.Server

	upgrader     websocket.Upgrader
	pingInterval time.Duration
	rejected     map[string]string

	mu       sync.RWMutex
	clients  map[string]*serverClient
	requests []*http.Request
	received chan Received
}

type serverClient struct {
	id        string
	namespace string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	once      sync.Once
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithPingInterval advertises and sends pings at d
func WithPingInterval(d time.Duration) ServerOption {
	return func(s *Server) {
		s.pingInterval = d
	}
}

// WithRejectedNamespace answers connects to namespace with a CONNECT_ERROR
func WithRejectedNamespace(namespace, message string) ServerOption {
	return func(s *Server) {
		s.rejected[namespace] = message
	}
}

// NewServer starts a loopback server. Close it with Close.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		pingInterval: 25 * time.Second,
		rejected:     make(map[string]string),
		clients:      make(map[string]*serverClient),
		received:     make(chan Received, 256),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Received delivers events read from clients
func (s *Server) Received() <-chan Received {
	return s.received
}

// Requests returns the upgrade requests seen so far
func (s *Server) Requests() []*http.Request {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*http.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Clients returns the number of connected namespace clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Emit broadcasts an event to every client on namespace
func (s *Server) Emit(namespace, event string, args ...interface{}) error {
	frame, err := transport.EncodeEvent(namespace, event, args...)
	if err != nil {
		return err
	}
	s.broadcast(namespace, []byte(frame))
	return nil
}

// Disconnect sends a namespace DISCONNECT to every client on namespace
func (s *Server) Disconnect(namespace string) {
	frame := transport.EncodePacket(transport.Packet{Type: transport.PacketDisconnect, Namespace: namespace})
	s.broadcast(namespace, []byte(frame))
}

// Kill drops every websocket without a goodbye
func (s *Server) Kill() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		c.conn.Close()
	}
}

func (s *Server) broadcast(namespace string, frame []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.namespace != namespace {
			continue
		}
		select {
		case c.send <- frame:
		case <-c.done:
		}
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, r)
	s.mu.Unlock()

	client := &serverClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}

	open, _ := json.Marshal(map[string]interface{}{
		"sid":          client.id,
		"upgrades":     []string{},
		"pingInterval": s.pingInterval.Milliseconds(),
		"pingTimeout":  s.pingInterval.Milliseconds(),
		"maxPayload":   1000000,
	})
	if err := conn.WriteMessage(websocket.TextMessage, append([]byte("0"), open...)); err != nil {
		conn.Close()
		return
	}

	namespace, ok := s.awaitConnect(client)
	if !ok {
		conn.Close()
		return
	}
	client.namespace = namespace

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	go client.writePump(s.pingInterval)
	go s.readPump(client)
}

func (s *Server) awaitConnect(c *serverClient) (string, bool) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil || len(data) == 0 {
			return "", false
		}
		if data[0] != '4' {
			continue
		}
		p, err := transport.DecodePacket(string(data[1:]))
		if err != nil || p.Type != transport.PacketConnect {
			continue
		}

		if msg, rejected := s.rejected[p.Namespace]; rejected {
			body, _ := json.Marshal(map[string]string{"message": msg})
			frame := transport.EncodePacket(transport.Packet{
				Type:      transport.PacketConnectError,
				Namespace: p.Namespace,
				Data:      body,
			})
			c.conn.WriteMessage(websocket.TextMessage, []byte(frame))
			return "", false
		}

		body, _ := json.Marshal(map[string]string{"sid": c.id})
		frame := transport.EncodePacket(transport.Packet{
			Type:      transport.PacketConnect,
			Namespace: p.Namespace,
			Data:      body,
		})
		if err := c.conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
			return "", false
		}
		return p.Namespace, true
	}
}

func (s *Server) readPump(c *serverClient) {
	defer func() {
		s.mu.Lock()
		delete(s.clients, c.id)
		s.mu.Unlock()
		c.stop()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if len(data) == 0 || data[0] != '4' {
			continue
		}
		p, err := transport.DecodePacket(string(data[1:]))
		if err != nil {
			continue
		}
		switch p.Type {
		case transport.PacketEvent:
			msg, err := transport.EventMessage(p)
			if err != nil {
				continue
			}
			select {
			case s.received <- Received{ClientID: c.id, Namespace: p.Namespace, Message: msg}:
			default:
			}
		case transport.PacketDisconnect:
			return
		}
	}
}

func (c *serverClient) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, []byte("2")); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *serverClient) stop() {
	c.once.Do(func() { close(c.done) })
}

// String describes the server for test failure output
func (s *Server) String() string {
	return fmt.Sprintf("transporttest.Server(%s)", s.URL)
}
