package store

import (
	"context"
	"sync"

	"github.com/aminofox/zenclient/pkg/api"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/realtime"
	"github.com/aminofox/zenclient/pkg/session"
)

// NotificationAPI is the part of the backend client NotificationsStore needs
type NotificationAPI interface {
	GetNotifications(ctx context.Context, username string) ([]realtime.Notification, error)
	UpdateNotification(ctx context.Context, username string, id int64, isRead bool) error
	UpdateNotifications(ctx context.Context, username string, updates []api.NotificationUpdate) error
	DeleteNotification(ctx context.Context, username string, id int64) error
	DeleteNotifications(ctx context.Context, username string, ids []int64) error
}

// NotificationsStore holds the signed-in user's notifications, newest first.
// Dismissable notifications are never persisted, so read and delete
// requests skip them.
type NotificationsStore struct {
	api    NotificationAPI
	logger logger.Logger

	mu       sync.RWMutex
	username string
	list     []realtime.Notification
}

// NewNotificationsStore creates an empty store
func NewNotificationsStore(client NotificationAPI, log logger.Logger) *NotificationsStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &NotificationsStore{
		api:    client,
		logger: log.With(logger.String("store", "notifications")),
	}
}

// Fetch loads username's notifications from the backend
func (s *NotificationsStore) Fetch(ctx context.Context, username string) error {
	s.mu.Lock()
	s.username = username
	s.mu.Unlock()
	return s.refetch(ctx)
}

func (s *NotificationsStore) refetch(ctx context.Context) error {
	username := s.Username()
	if username == "" {
		return nil
	}
	list, err := s.api.GetNotifications(ctx, username)
	if err != nil {
		s.logger.Warn("Fetching notifications failed", logger.Err(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.username != username {
		return nil
	}
	s.list = append([]realtime.Notification(nil), list...)
	return nil
}

// Username returns the user whose notifications are held
func (s *NotificationsStore) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Add prepends a notification unless one with the same id is already held
func (s *NotificationsStore) Add(n realtime.Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID != 0 && s.indexLocked(n.ID) >= 0 {
		return false
	}
	s.list = append([]realtime.Notification{n}, s.list...)
	return true
}

// List returns a copy of the notifications, newest first
func (s *NotificationsStore) List() []realtime.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]realtime.Notification(nil), s.list...)
}

// Unread counts notifications not yet read
func (s *NotificationsStore) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.list {
		if !it.IsRead {
			n++
		}
	}
	return n
}

// MarkAsRead marks one notification read locally and on the backend. On a
// backend failure the list is reloaded.
func (s *NotificationsStore) MarkAsRead(ctx context.Context, id int64) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.list[i].IsRead {
		s.mu.Unlock()
		return nil
	}
	s.list[i].IsRead = true
	dismissable := s.list[i].Type == realtime.NotificationDismissable
	username := s.username
	s.mu.Unlock()

	if dismissable {
		return nil
	}
	if err := s.api.UpdateNotification(ctx, username, id, true); err != nil {
		s.logger.Warn("Marking notification read failed", logger.Int64("id", id), logger.Err(err))
		_ = s.refetch(ctx)
		return err
	}
	return nil
}

// MarkAllAsRead marks every persisted notification read
func (s *NotificationsStore) MarkAllAsRead(ctx context.Context) error {
	s.mu.Lock()
	var updates []api.NotificationUpdate
	for i := range s.list {
		if s.list[i].Type == realtime.NotificationDismissable {
			continue
		}
		if !s.list[i].IsRead {
			updates = append(updates, api.NotificationUpdate{ID: s.list[i].ID, IsRead: true})
		}
		s.list[i].IsRead = true
	}
	username := s.username
	s.mu.Unlock()

	if len(updates) == 0 {
		return nil
	}
	if err := s.api.UpdateNotifications(ctx, username, updates); err != nil {
		s.logger.Warn("Marking notifications read failed", logger.Int("count", len(updates)), logger.Err(err))
		_ = s.refetch(ctx)
		return err
	}
	return nil
}

// Delete removes one persisted notification
func (s *NotificationsStore) Delete(ctx context.Context, id int64) error {
	s.mu.RLock()
	i := s.indexLocked(id)
	skip := i < 0 || s.list[i].Type == realtime.NotificationDismissable
	username := s.username
	s.mu.RUnlock()
	if skip {
		return nil
	}

	if err := s.api.DeleteNotification(ctx, username, id); err != nil {
		s.logger.Warn("Deleting notification failed", logger.Int64("id", id), logger.Err(err))
		_ = s.refetch(ctx)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		s.list = append(s.list[:i], s.list[i+1:]...)
	}
	return nil
}

// DeleteAll removes every persisted notification. Dismissable ones stay.
// The list is cleared optimistically and restored if the backend refuses.
func (s *NotificationsStore) DeleteAll(ctx context.Context) error {
	s.mu.Lock()
	previous := append([]realtime.Notification(nil), s.list...)
	var ids []int64
	kept := s.list[:0:0]
	for _, n := range s.list {
		if n.Type == realtime.NotificationDismissable {
			kept = append(kept, n)
			continue
		}
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.list = kept
	username := s.username
	s.mu.Unlock()

	if err := s.api.DeleteNotifications(ctx, username, ids); err != nil {
		s.logger.Warn("Deleting notifications failed", logger.Int("count", len(ids)), logger.Err(err))
		s.mu.Lock()
		s.list = previous
		s.mu.Unlock()
		_ = s.refetch(ctx)
		return err
	}
	return nil
}

// Clear forgets the user and every notification
func (s *NotificationsStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = ""
	s.list = nil
}

// BindAuth feeds notifications pushed on the authenticated channel into the
// store. Streamer notifications are kept only when addressed to username().
// The returned function removes the handlers.
func (s *NotificationsStore) BindAuth(a *realtime.AuthSocket, username func() string) func() {
	pushed := a.OnStreamNotification(func(n realtime.Notification) {
		s.Add(n)
	})
	streamer := a.OnNotifyStreamer(func(n realtime.StreamerNotification) {
		if n.StreamerName == "" || n.StreamerName != username() {
			return
		}
		s.Add(realtime.Notification{
			ID:           n.ID,
			Message:      n.Message,
			CreatedAt:    n.CreatedAt,
			IsRead:       n.IsRead,
			Type:         n.Type,
			StreamerName: n.StreamerName,
		})
	})

	return func() {
		a.Off(realtime.Event(realtime.KindStreamNotification), pushed)
		a.Off(realtime.Event(realtime.KindNotifyStreamer), streamer)
	}
}

// TrackSession loads notifications when a user signs in and clears them on
// sign-out. The returned function stops tracking.
func (s *NotificationsStore) TrackSession(ctx context.Context, auth *AuthStore) func() {
	return auth.Subscribe(func(state session.AuthState) {
		switch state {
		case session.AuthSignedIn:
			_ = s.Fetch(ctx, auth.Username())
		case session.AuthSignedOut:
			s.Clear()
		}
	})
}

func (s *NotificationsStore) indexLocked(id int64) int {
	for i, n := range s.list {
		if n.ID == id {
			return i
		}
	}
	return -1
}
