package realtime

import (
	"encoding/json"

	"github.com/aminofox/zenclient/pkg/logger"
)

// PublicSocket is the typed surface of the anonymous channel
type PublicSocket struct {
	socket Socket
	logger logger.Logger
}

// NewPublicSocket wraps s
func NewPublicSocket(s Socket, log logger.Logger) *PublicSocket {
	if log == nil {
		log = logger.NewNop()
	}
	return &PublicSocket{
		socket: s,
		logger: log.With(logger.String("channel", string(ChannelPublic))),
	}
}

// Socket returns the underlying channel
func (p *PublicSocket) Socket() Socket {
	return p.socket
}

// IsConnected reports whether the channel is up
func (p *PublicSocket) IsConnected() bool {
	return p.socket.IsConnected()
}

// JoinStream subscribes to a stream's broadcasts. statsOnly limits the
// subscription to stats updates.
func (p *PublicSocket) JoinStream(streamID string, statsOnly bool) error {
	if err := requireArg(p.logger, KindJoinStream, "stream id", streamID); err != nil {
		return err
	}
	return p.socket.Emit(Event(KindJoinStream), streamID, statsOnly)
}

// LeaveStream undoes JoinStream
func (p *PublicSocket) LeaveStream(streamID string) error {
	if err := requireArg(p.logger, KindLeaveStream, "stream id", streamID); err != nil {
		return err
	}
	return p.socket.Emit(Event(KindLeaveStream), streamID)
}

// JoinChatRoom subscribes to a stream's chat
func (p *PublicSocket) JoinChatRoom(streamID string) error {
	if err := requireArg(p.logger, KindJoinChatRoom, "stream id", streamID); err != nil {
		return err
	}
	return p.socket.Emit(Event(KindJoinChatRoom), streamID)
}

// LeaveChatRoom undoes JoinChatRoom
func (p *PublicSocket) LeaveChatRoom(streamID string) error {
	if err := requireArg(p.logger, KindLeaveChatRoom, "stream id", streamID); err != nil {
		return err
	}
	return p.socket.Emit(Event(KindLeaveChatRoom), streamID)
}

// GetAllMessages asks for the chat backlog; it arrives as allMessages
func (p *PublicSocket) GetAllMessages(streamID string) error {
	if err := requireArg(p.logger, KindGetAllMessages, "stream id", streamID); err != nil {
		return err
	}
	return p.socket.Emit(Event(KindGetAllMessages), streamID)
}

// OnPatchStream handles partial stream updates
func (p *PublicSocket) OnPatchStream(h func(StreamPatch)) *Subscription {
	return p.socket.On(Event(KindPatchStream), func(m Message) {
		if len(m.Args) == 0 {
			p.logger.Warn("patchStream without payload")
			return
		}
		patch := StreamPatch{Raw: m.Args[0]}
		if err := json.Unmarshal(m.Args[0], &patch.Stream); err != nil {
			p.logger.Warn("Dropping malformed payload", logger.String("event", m.Name.String()), logger.Err(err))
			return
		}
		h(patch)
	})
}

// OnStreamStarted handles stream start broadcasts
func (p *PublicSocket) OnStreamStarted(h func(Stream)) *Subscription {
	return p.socket.On(Event(KindStreamStarted), typed(p.logger, h))
}

// OnStreamEnded handles stream end broadcasts
func (p *PublicSocket) OnStreamEnded(h func(StreamEndedEvent)) *Subscription {
	return p.socket.On(Event(KindStreamEnded), typed(p.logger, h))
}

// OnStreamStats handles viewer counter updates
func (p *PublicSocket) OnStreamStats(h func(StreamStatsSnapshot)) *Subscription {
	return p.socket.On(Event(KindStreamStats), statsHandler(p.logger, h))
}

// OnChatMessage handles chat lines of joined rooms
func (p *PublicSocket) OnChatMessage(h func(ChatMessage)) *Subscription {
	return p.socket.On(Event(KindChatMessage), typed(p.logger, h))
}

// OnRoomChatMessage handles chat lines of one room
func (p *PublicSocket) OnRoomChatMessage(streamID string, h func(ChatMessage)) (*Subscription, error) {
	name, err := RoomEvent(KindChatMessage, streamID)
	if err != nil {
		p.logger.Error("Registration rejected", logger.Err(err))
		return nil, err
	}
	return p.socket.On(name, typed(p.logger, h)), nil
}

// OnAllMessages handles the chat backlog. A single object is delivered as
// a one-element backlog.
func (p *PublicSocket) OnAllMessages(h func([]ChatMessage)) *Subscription {
	return p.socket.On(Event(KindAllMessages), func(m Message) {
		var list []ChatMessage
		if err := m.Decode(&list); err == nil {
			h(list)
			return
		}
		var one ChatMessage
		if err := m.Decode(&one); err != nil {
			p.logger.Warn("Dropping malformed payload", logger.String("event", m.Name.String()), logger.Err(err))
			return
		}
		h([]ChatMessage{one})
	})
}

// Off removes sub from event, or every handler of event when sub is nil
func (p *PublicSocket) Off(event EventName, sub *Subscription) {
	p.socket.Off(event, sub)
}
