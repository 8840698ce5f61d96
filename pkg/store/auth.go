// Package store keeps client-side state fed by the REST API and the socket
// channels: the signed-in user, the stream directory and notifications.
package store

import (
	"context"
	"sync"

	"github.com/aminofox/zenclient/pkg/api"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/session"
)

// UserAPI is the part of the backend client AuthStore needs
type UserAPI interface {
	Me(ctx context.Context) (*api.User, error)
	Logout(ctx context.Context) error
}

// AuthStore tracks who is signed in. Its state stays AuthUnknown until the
// first FetchUser settles.
type AuthStore struct {
	api    UserAPI
	logger logger.Logger

	// notifyMu keeps listener calls in mutation order
	notifyMu sync.Mutex

	mu            sync.RWMutex
	user          *api.User
	authenticated bool
	initialized   bool
	listeners     []listener
	nextID        int
}

type listener struct {
	id int
	fn func(session.AuthState)
}

// NewAuthStore creates an uninitialized store
func NewAuthStore(client UserAPI, log logger.Logger) *AuthStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &AuthStore{
		api:    client,
		logger: log.With(logger.String("store", "auth")),
	}
}

// FetchUser asks the backend who is signed in. A failure clears the user;
// either way the store becomes initialized.
func (s *AuthStore) FetchUser(ctx context.Context) error {
	u, err := s.api.Me(ctx)
	if err != nil {
		s.logger.Debug("No active session", logger.Err(err))
		s.set(nil)
		return err
	}
	s.logger.Info("Session restored", logger.String("user", u.Name()))
	s.set(u)
	return nil
}

// Logout ends the session on the backend and clears the local user even
// when the request fails
func (s *AuthStore) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if err != nil {
		s.logger.Warn("Logout request failed", logger.Err(err))
	}
	s.set(nil)
	return err
}

// SetUser records a user obtained elsewhere, e.g. right after login
func (s *AuthStore) SetUser(u *api.User) {
	s.set(u)
}

// ClearUser forgets the user locally
func (s *AuthStore) ClearUser() {
	s.set(nil)
}

func (s *AuthStore) set(u *api.User) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if u != nil {
		cp := *u
		u = &cp
	}
	s.user = u
	s.authenticated = u != nil
	s.initialized = true
	state := s.stateLocked()
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(state)
	}
}

// User returns a copy of the signed-in user, or nil
func (s *AuthStore) User() *api.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	cp := *s.user
	return &cp
}

// Username returns the signed-in user's name, or ""
func (s *AuthStore) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Name()
}

// Authenticated reports whether a user is signed in
func (s *AuthStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Initialized reports whether the first FetchUser has settled
func (s *AuthStore) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// State returns the tri-state login signal
func (s *AuthStore) State() session.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *AuthStore) stateLocked() session.AuthState {
	if !s.initialized {
		return session.AuthUnknown
	}
	return session.StateFromBool(s.authenticated)
}

// Subscribe calls fn with the current state and after every change.
// The returned function unsubscribes.
func (s *AuthStore) Subscribe(fn func(session.AuthState)) func() {
	s.notifyMu.Lock()
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	state := s.stateLocked()
	s.mu.Unlock()
	fn(state)
	s.notifyMu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
