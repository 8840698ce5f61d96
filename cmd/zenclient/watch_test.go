package main

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/aminofox/zenclient/pkg/backoff"
	"github.com/aminofox/zenclient/pkg/clock/clocktest"
	"github.com/aminofox/zenclient/pkg/config"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/realtime"
	"github.com/aminofox/zenclient/pkg/transport"
	"github.com/aminofox/zenclient/pkg/transport/transporttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var joinEvents = []string{"joinStream", "joinChatRoom", "getAllMessages"}

func newWatchChannel(t *testing.T) (*realtime.Channel, *transporttest.Dialer, *clocktest.Clock) {
	t.Helper()
	dialer := transporttest.NewDialer()
	clk := clocktest.New(time.Unix(1000, 0))
	ch := realtime.NewChannel(realtime.ChannelOptions{
		Kind:     realtime.ChannelPublic,
		Endpoint: transport.Endpoint{URL: "ws://localhost:5000", Namespace: "/public"},
		Dialer:   dialer,
		Policy:   backoff.Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second},
		Dedup:    config.DefaultConfig().Dedup,
		Clock:    clk,
		Rand:     func() float64 { return 0 },
	})
	t.Cleanup(ch.Disconnect)
	return ch, dialer, clk
}

func newWatcher(ch *realtime.Channel, out *bytes.Buffer) *watcher {
	return &watcher{
		pub:    realtime.NewPublicSocket(ch, nil),
		stream: "42",
		out:    out,
		logger: logger.NewNop(),
	}
}

func TestWatcherRejoinsAfterReconnect(t *testing.T) {
	ch, dialer, clk := newWatchChannel(t)
	require.NoError(t, ch.Connect(context.Background()))

	var out bytes.Buffer
	stop, err := newWatcher(ch, &out).start()
	require.NoError(t, err)
	assert.Equal(t, joinEvents, dialer.Last().EmittedEvents())

	// Server restart: the channel redials at once
	first := dialer.Last()
	first.Drop(transport.DisconnectServer)
	second := dialer.Last()
	require.NotSame(t, first, second)
	assert.Equal(t, joinEvents, second.EmittedEvents())

	// Network drop: the channel redials after the backoff delay
	second.Drop(transport.DisconnectTransport)
	clk.Advance(time.Second)
	third := dialer.Last()
	require.NotSame(t, second, third)
	assert.Equal(t, joinEvents, third.EmittedEvents())

	require.NoError(t, third.Deliver("chatMessage:42", map[string]interface{}{"username": "bob", "message": "hi", "createdAt": "12:00"}))
	require.NoError(t, third.Deliver("streamStats", map[string]interface{}{"streamId": "42", "viewers": 7}))
	assert.Contains(t, out.String(), "[12:00] bob: hi")
	assert.Contains(t, out.String(), "# viewers=7")

	stop()
	assert.Equal(t, append(joinEvents, "leaveChatRoom", "leaveStream"), third.EmittedEvents())
	assert.Zero(t, ch.HandlerCount(realtime.Event(realtime.KindStreamStats)))
}

func TestWatcherWaitsForFirstConnection(t *testing.T) {
	ch, dialer, clk := newWatchChannel(t)
	dialer.FailNext(stderrors.New("connection refused"))
	assert.Error(t, ch.Connect(context.Background()))
	require.False(t, ch.IsConnected())

	var out bytes.Buffer
	stop, err := newWatcher(ch, &out).start()
	require.NoError(t, err, "a channel still in backoff is not fatal")
	defer stop()

	clk.Advance(time.Second)
	require.True(t, ch.IsConnected())
	assert.Equal(t, joinEvents, dialer.Last().EmittedEvents())
}
