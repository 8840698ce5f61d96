package store

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/aminofox/zenclient/pkg/api"
	"github.com/aminofox/zenclient/pkg/backoff"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/aminofox/zenclient/pkg/realtime"
	"github.com/aminofox/zenclient/pkg/transport"
	"github.com/aminofox/zenclient/pkg/transport/transporttest"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeAPI implements every store API interface in memory
type fakeAPI struct {
	mu sync.Mutex

	user      *api.User
	meErr     error
	logoutErr error
	logouts   int

	streams []realtime.Stream

	notifications []realtime.Notification
	failWrites    error
	calls         []string
	updated       []api.NotificationUpdate
	deleted       []int64
}

func (f *fakeAPI) record(call string) {
	f.calls = append(f.calls, call)
}

func (f *fakeAPI) Me(ctx context.Context) (*api.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("me")
	if f.meErr != nil {
		return nil, f.meErr
	}
	if f.user == nil {
		return nil, stderrors.New("401")
	}
	u := *f.user
	return &u, nil
}

func (f *fakeAPI) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("logout")
	f.logouts++
	return f.logoutErr
}

func (f *fakeAPI) ListStreams(ctx context.Context) ([]realtime.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("streams")
	return append([]realtime.Stream(nil), f.streams...), nil
}

func (f *fakeAPI) GetNotifications(ctx context.Context, username string) ([]realtime.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("get:" + username)
	return append([]realtime.Notification(nil), f.notifications...), nil
}

func (f *fakeAPI) UpdateNotification(ctx context.Context, username string, id int64, isRead bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update")
	if f.failWrites != nil {
		return f.failWrites
	}
	f.updated = append(f.updated, api.NotificationUpdate{ID: id, IsRead: isRead})
	return nil
}

func (f *fakeAPI) UpdateNotifications(ctx context.Context, username string, updates []api.NotificationUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("update-many")
	if f.failWrites != nil {
		return f.failWrites
	}
	f.updated = append(f.updated, updates...)
	return nil
}

func (f *fakeAPI) DeleteNotification(ctx context.Context, username string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete")
	if f.failWrites != nil {
		return f.failWrites
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) DeleteNotifications(ctx context.Context, username string, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("delete-many")
	if f.failWrites != nil {
		return f.failWrites
	}
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// connectedChannel returns a connected channel over the in-memory transport
func connectedChannel(t *testing.T, kind realtime.ChannelKind) (*realtime.Channel, *transporttest.Conn) {
	t.Helper()
	d := transporttest.NewDialer()
	ch := realtime.NewChannel(realtime.ChannelOptions{
		Kind:     kind,
		Endpoint: transport.Endpoint{URL: "ws://localhost:5000", Namespace: "/" + string(kind)},
		Dialer:   d,
		Policy:   backoff.Policy{BaseDelay: time.Second, MaxDelay: time.Second},
		Dedup:    config.DefaultConfig().Dedup,
	})
	require.NoError(t, ch.Connect(context.Background()))
	t.Cleanup(ch.Disconnect)
	return ch, d.Last()
}
