package store

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/aminofox/zenclient/pkg/api"
	"github.com/aminofox/zenclient/pkg/realtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationsFixture(t *testing.T) (*NotificationsStore, *fakeAPI) {
	t.Helper()
	fake := &fakeAPI{notifications: []realtime.Notification{
		{ID: 3, Message: "newest"},
		{ID: 2, Message: "banner", Type: realtime.NotificationDismissable},
		{ID: 1, Message: "oldest", IsRead: true},
	}}
	s := NewNotificationsStore(fake, nil)
	require.NoError(t, s.Fetch(context.Background(), "alice"))
	return s, fake
}

func ids(list []realtime.Notification) []int64 {
	out := make([]int64, 0, len(list))
	for _, n := range list {
		out = append(out, n.ID)
	}
	return out
}

func TestNotificationsAddDeduplicates(t *testing.T) {
	s, _ := notificationsFixture(t)

	assert.False(t, s.Add(realtime.Notification{ID: 3, Message: "again"}))
	assert.True(t, s.Add(realtime.Notification{ID: 4, Message: "pushed"}))
	assert.Equal(t, []int64{4, 3, 2, 1}, ids(s.List()))
	assert.Equal(t, "newest", s.List()[1].Message)
	assert.Equal(t, 3, s.Unread())
}

func TestNotificationsMarkAsRead(t *testing.T) {
	s, fake := notificationsFixture(t)
	ctx := context.Background()

	require.NoError(t, s.MarkAsRead(ctx, 3))
	assert.Equal(t, []api.NotificationUpdate{{ID: 3, IsRead: true}}, fake.updated)

	// Already read and dismissable entries do not reach the backend
	require.NoError(t, s.MarkAsRead(ctx, 3))
	require.NoError(t, s.MarkAsRead(ctx, 2))
	require.NoError(t, s.MarkAsRead(ctx, 99))
	assert.Len(t, fake.updated, 1)
	assert.Zero(t, s.Unread())
}

func TestNotificationsMarkAllAsRead(t *testing.T) {
	s, fake := notificationsFixture(t)

	require.NoError(t, s.MarkAllAsRead(context.Background()))
	assert.Equal(t, []api.NotificationUpdate{{ID: 3, IsRead: true}}, fake.updated)
	assert.Equal(t, 1, s.Unread(), "dismissable entries stay unread")

	fake.calls = nil
	require.NoError(t, s.MarkAllAsRead(context.Background()))
	assert.Empty(t, fake.Calls())
}

func TestNotificationsWriteFailureRefetches(t *testing.T) {
	s, fake := notificationsFixture(t)
	fake.failWrites = stderrors.New("500")
	fake.calls = nil

	assert.Error(t, s.MarkAsRead(context.Background(), 3))
	assert.Equal(t, []string{"update", "get:alice"}, fake.Calls())
	assert.Equal(t, 2, s.Unread(), "refetched list replaces the optimistic change")
}

func TestNotificationsDelete(t *testing.T) {
	s, fake := notificationsFixture(t)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, 3))
	require.NoError(t, s.Delete(ctx, 2))
	assert.Equal(t, []int64{3}, fake.deleted)
	assert.Equal(t, []int64{2, 1}, ids(s.List()))
}

func TestNotificationsDeleteAll(t *testing.T) {
	s, fake := notificationsFixture(t)

	require.NoError(t, s.DeleteAll(context.Background()))
	assert.ElementsMatch(t, []int64{3, 1}, fake.deleted)
	assert.Equal(t, []int64{2}, ids(s.List()))

	// Only dismissable entries are left
	fake.calls = nil
	require.NoError(t, s.DeleteAll(context.Background()))
	assert.Empty(t, fake.Calls())
}

func TestNotificationsDeleteAllRestoresOnFailure(t *testing.T) {
	s, fake := notificationsFixture(t)
	fake.failWrites = stderrors.New("500")
	fake.notifications = fake.notifications[:1]

	assert.Error(t, s.DeleteAll(context.Background()))
	assert.Equal(t, []int64{3}, ids(s.List()), "list reloaded from the backend")
}

func TestNotificationsBindAuth(t *testing.T) {
	ch, conn := connectedChannel(t, "auth")
	sock := realtime.NewAuthSocket(ch, realtime.AuthSocketOptions{})
	s, _ := notificationsFixture(t)

	unbind := s.BindAuth(sock, func() string { return "alice" })

	require.NoError(t, conn.Deliver("streamNotification", map[string]interface{}{"id": 10, "message": "bob is live"}))
	require.NoError(t, conn.Deliver("streamNotification", map[string]interface{}{"id": 3, "message": "dup"}))
	require.NoError(t, conn.Deliver("notifyStreamer", map[string]interface{}{"id": 11, "streamerName": "alice", "message": "new follower"}))
	require.NoError(t, conn.Deliver("notifyStreamer", map[string]interface{}{"id": 12, "streamerName": "bob", "message": "not for alice"}))

	assert.Equal(t, []int64{11, 10, 3, 2, 1}, ids(s.List()))
	assert.Equal(t, "alice", s.List()[0].StreamerName)

	unbind()
	require.NoError(t, conn.Deliver("streamNotification", map[string]interface{}{"id": 13}))
	assert.Len(t, s.List(), 5)
}

func TestNotificationsTrackSession(t *testing.T) {
	fake := &fakeAPI{
		user:          &api.User{Username: "alice"},
		notifications: []realtime.Notification{{ID: 1}},
	}
	auth := NewAuthStore(fake, nil)
	s := NewNotificationsStore(fake, nil)

	stop := s.TrackSession(context.Background(), auth)
	defer stop()
	assert.Empty(t, s.List(), "nothing is loaded while the session is unknown")

	require.NoError(t, auth.FetchUser(context.Background()))
	assert.Equal(t, "alice", s.Username())
	assert.Len(t, s.List(), 1)

	require.NoError(t, auth.Logout(context.Background()))
	assert.Empty(t, s.List())
	assert.Equal(t, "", s.Username())
}
