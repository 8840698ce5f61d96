// Package session keeps the authenticated socket channel in step with the
// login state.
package session

import (
	"context"
	"sync"

	"github.com/aminofox/zenclient/pkg/logger"
)

// AuthState is the observed login state
type AuthState int

const (
	// AuthUnknown means the login state has not settled yet
	AuthUnknown AuthState = iota

	// AuthSignedOut means there is no session
	AuthSignedOut

	// AuthSignedIn means a session is active
	AuthSignedIn
)

// String returns the string representation of the state
func (s AuthState) String() string {
	switch s {
	case AuthSignedOut:
		return "signed_out"
	case AuthSignedIn:
		return "signed_in"
	default:
		return "unknown"
	}
}

// StateFromBool maps a settled authenticated flag to a state
func StateFromBool(authenticated bool) AuthState {
	if authenticated {
		return AuthSignedIn
	}
	return AuthSignedOut
}

// Connector is the lifecycle surface of the channel the binding drives
type Connector interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// Binding connects its channel on sign-in and tears it down on sign-out.
// The channel is expected to gate Connect on Authenticated, so a connect
// racing a sign-out never leaves a connection behind.
type Binding struct {
	mu     sync.RWMutex
	state  AuthState
	target Connector
	logger logger.Logger

	// applied is the state the channel was last driven to. Only the
	// goroutine that set reconciling calls into the channel.
	applied     AuthState
	reconciling bool
}

// NewBinding creates a binding in the unknown state. target may be set
// later with Bind when the channel needs the binding as its gate.
func NewBinding(target Connector, log logger.Logger) *Binding {
	if log == nil {
		log = logger.NewNop()
	}
	return &Binding{
		target: target,
		logger: log.With(logger.String("component", "session")),
	}
}

// Bind sets the channel the binding drives
func (b *Binding) Bind(target Connector) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.target = target
}

// Authenticated reports whether a session is active. It is the gate of the
// authenticated channel.
func (b *Binding) Authenticated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state == AuthSignedIn
}

// State returns the last observed state
func (b *Binding) State() AuthState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Update applies a new login state. Entering AuthSignedIn connects;
// leaving it disconnects, which also resets the reconnect counter. Moving
// between AuthUnknown and AuthSignedOut does nothing.
//
// Channel calls happen outside the lock. A state change made while another
// Update is connecting or disconnecting, including one made from inside
// that call, is picked up by the running Update before it returns, so the
// channel always ends up matching the last state.
func (b *Binding) Update(ctx context.Context, next AuthState) {
	b.mu.Lock()
	b.state = next
	if b.reconciling {
		b.mu.Unlock()
		return
	}
	b.reconciling = true

	for {
		want := b.state
		target := b.target
		wasIn := b.applied == AuthSignedIn
		b.applied = want
		if target == nil || wasIn == (want == AuthSignedIn) {
			b.reconciling = false
			b.mu.Unlock()
			return
		}
		b.mu.Unlock()

		if want == AuthSignedIn {
			b.logger.Info("Session started, connecting authenticated channel")
			if err := target.Connect(ctx); err != nil {
				b.logger.Warn("Authenticated channel did not connect", logger.Err(err))
			}
		} else {
			b.logger.Info("Session ended, disconnecting authenticated channel")
			target.Disconnect()
		}

		b.mu.Lock()
	}
}

// SetAuthenticated is Update for a settled boolean signal
func (b *Binding) SetAuthenticated(ctx context.Context, authenticated bool) {
	b.Update(ctx, StateFromBool(authenticated))
}
