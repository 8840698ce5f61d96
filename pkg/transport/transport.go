// Package transport defines the publish/subscribe socket the realtime layer
// rides on and provides a WebSocket implementation of it.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// DisconnectReason says why a connection ended
type DisconnectReason string

const (
	// DisconnectServer means the remote endpoint closed the namespace
	DisconnectServer DisconnectReason = "io server disconnect"

	// DisconnectClient means Close was called locally
	DisconnectClient DisconnectReason = "io client disconnect"

	// DisconnectTransport means the underlying link dropped
	DisconnectTransport DisconnectReason = "transport close"

	// DisconnectPingTimeout means the server stopped pinging
	DisconnectPingTimeout DisconnectReason = "ping timeout"
)

// ServerInitiated reports whether the remote end chose to disconnect.
func (r DisconnectReason) ServerInitiated() bool {
	return r == DisconnectServer
}

// Message is one inbound event with its raw arguments
type Message struct {
	Event string
	Args  []json.RawMessage
}

// Endpoint addresses one namespace on a socket server
type Endpoint struct {
	// URL is the ws:// or wss:// base URL of the server
	URL string

	// Namespace is the channel namespace, e.g. "/public"
	Namespace string

	// Header is sent with the upgrade request
	Header http.Header
}

// Listener receives connection callbacks. OnMessage is invoked on a single
// goroutine in transport order. OnClose is invoked exactly once.
type Listener struct {
	OnMessage func(Message)
	OnClose   func(reason DisconnectReason, err error)
}

// Conn is one live namespace connection
type Conn interface {
	// ID returns the session id assigned by the server
	ID() string

	// Emit sends an event with JSON-encodable arguments
	Emit(event string, args ...interface{}) error

	// Close disconnects; the listener's OnClose fires with DisconnectClient
	Close() error
}

// Dialer opens namespace connections
type Dialer interface {
	Dial(ctx context.Context, ep Endpoint, l Listener) (Conn, error)
}
