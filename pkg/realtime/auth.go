package realtime

import (
	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/aminofox/zenclient/pkg/logger"
	"github.com/aminofox/zenclient/pkg/metrics"
	"golang.org/x/time/rate"
)

// AuthSocketOptions configures an AuthSocket
type AuthSocketOptions struct {
	// ChatRatePerSecond limits SendChatMessage; 0 disables the limit
	ChatRatePerSecond float64

	// ChatBurst is the limiter burst
	ChatBurst int

	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// AuthSocket is the typed surface of the per-user channel
type AuthSocket struct {
	socket  Socket
	limiter *rate.Limiter
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewAuthSocket wraps s
func NewAuthSocket(s Socket, opts AuthSocketOptions) *AuthSocket {
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	a := &AuthSocket{
		socket:  s,
		logger:  opts.Logger.With(logger.String("channel", string(ChannelAuth))),
		metrics: opts.Metrics,
	}
	if opts.ChatRatePerSecond > 0 {
		burst := opts.ChatBurst
		if burst < 1 {
			burst = 1
		}
		a.limiter = rate.NewLimiter(rate.Limit(opts.ChatRatePerSecond), burst)
	}
	return a
}

// Socket returns the underlying channel
func (a *AuthSocket) Socket() Socket {
	return a.socket
}

// IsConnected reports whether the channel is up
func (a *AuthSocket) IsConnected() bool {
	return a.socket.IsConnected()
}

// StartStream announces the caller's stream going live
func (a *AuthSocket) StartStream(streamID string, data StreamData) error {
	if err := requireArg(a.logger, KindStartStream, "stream id", streamID); err != nil {
		return err
	}
	return a.socket.Emit(Event(KindStartStream), streamID, data)
}

// EndStream announces the caller's stream ending
func (a *AuthSocket) EndStream(streamID string) error {
	if err := requireArg(a.logger, KindEndStream, "stream id", streamID); err != nil {
		return err
	}
	return a.socket.Emit(Event(KindEndStream), streamID)
}

// SendChatMessage posts to a stream's chat
func (a *AuthSocket) SendChatMessage(streamID, message string) error {
	if err := requireArg(a.logger, KindSendChatMessage, "stream id", streamID); err != nil {
		return err
	}
	if err := requireArg(a.logger, KindSendChatMessage, "message", message); err != nil {
		return err
	}
	if a.limiter != nil && !a.limiter.Allow() {
		err := errors.New(errors.ErrCodeRateLimited, "chat rate limit exceeded")
		a.logger.Warn("Chat message dropped", logger.String("stream_id", streamID), logger.Err(err))
		a.metrics.EmitDropped(string(ChannelAuth), string(KindSendChatMessage), "rate_limited")
		return err
	}
	return a.socket.Emit(Event(KindSendChatMessage), ChatSend{StreamID: streamID, Message: message})
}

// BanUserInChat bans the author of msg
func (a *AuthSocket) BanUserInChat(msg ChatMessage, opts *BanOptions) error {
	return a.manageChat(msg, ChatActionBan, opts)
}

// UnbanUserInChat lifts a ban on the author of msg
func (a *AuthSocket) UnbanUserInChat(msg ChatMessage, opts *BanOptions) error {
	return a.manageChat(msg, ChatActionUnban, opts)
}

// PatchChatMessage edits or deletes msg
func (a *AuthSocket) PatchChatMessage(msg ChatMessage, action ChatAction) error {
	return a.manageChat(msg, action, nil)
}

func (a *AuthSocket) manageChat(msg ChatMessage, action ChatAction, opts *BanOptions) error {
	if err := requireArg(a.logger, KindManageChat, "action", string(action)); err != nil {
		return err
	}
	if opts == nil {
		return a.socket.Emit(Event(KindManageChat), msg, action)
	}
	return a.socket.Emit(Event(KindManageChat), msg, action, opts)
}

// OnStreamNotification handles notifications addressed to the user
func (a *AuthSocket) OnStreamNotification(h func(Notification)) *Subscription {
	return a.socket.On(Event(KindStreamNotification), typed(a.logger, h))
}

// OnNotifyStreamer handles streamer activity notices
func (a *AuthSocket) OnNotifyStreamer(h func(StreamerNotification)) *Subscription {
	return a.socket.On(Event(KindNotifyStreamer), typed(a.logger, h))
}

// OnStreamStats handles stats with history series for the user's own stream
func (a *AuthSocket) OnStreamStats(h func(StreamStatsSnapshot)) *Subscription {
	return a.socket.On(Event(KindStreamStats), statsHandler(a.logger, h))
}

// OnChatMessageError handles rejected chat messages
func (a *AuthSocket) OnChatMessageError(h func(ChatError)) *Subscription {
	return a.socket.On(Event(KindChatMessageError), typed(a.logger, h))
}

// OnBanUserStatus handles ban results
func (a *AuthSocket) OnBanUserStatus(h func(StatusReply)) *Subscription {
	return a.socket.On(Event(KindBanUserStatus), typed(a.logger, h))
}

// OnUnbanUserStatus handles unban results
func (a *AuthSocket) OnUnbanUserStatus(h func(StatusReply)) *Subscription {
	return a.socket.On(Event(KindUnbanUserStatus), typed(a.logger, h))
}

// Off removes sub from event, or every handler of event when sub is nil
func (a *AuthSocket) Off(event EventName, sub *Subscription) {
	a.socket.Off(event, sub)
}
