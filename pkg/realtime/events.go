package realtime

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aminofox/zenclient/pkg/errors"
)

// EventKind names an event known to the backend contract
type EventKind string

// Public channel events
const (
	KindJoinStream     EventKind = "joinStream"
	KindLeaveStream    EventKind = "leaveStream"
	KindJoinChatRoom   EventKind = "joinChatRoom"
	KindLeaveChatRoom  EventKind = "leaveChatRoom"
	KindGetAllMessages EventKind = "getAllMessages"
	KindPatchStream    EventKind = "patchStream"
	KindStreamStarted  EventKind = "streamStarted"
	KindStreamEnded    EventKind = "streamEnded"
	KindStreamStats    EventKind = "streamStats"
	KindChatMessage    EventKind = "chatMessage"
	KindAllMessages    EventKind = "allMessages"
)

// Authenticated channel events
const (
	KindStartStream        EventKind = "startStream"
	KindEndStream          EventKind = "endStream"
	KindSendChatMessage    EventKind = "sendChatMessage"
	KindManageChat         EventKind = "manageChat"
	KindStreamNotification EventKind = "streamNotification"
	KindNotifyStreamer     EventKind = "notifyStreamer"
	KindChatMessageError   EventKind = "chatMessageError"
	KindBanUserStatus      EventKind = "banUserStatus"
	KindUnbanUserStatus    EventKind = "unbanUserStatus"
)

// roomSeparator joins a kind and a room id in room-scoped wire names
const roomSeparator = ":"

// EventName is either a plain event kind or a kind scoped to one room.
// The zero value is invalid.
type EventName struct {
	kind EventKind
	room string
}

// Event returns the plain name for kind
func Event(kind EventKind) EventName {
	return EventName{kind: kind}
}

// RoomEvent returns kind scoped to roomID. An empty roomID is a usage error.
func RoomEvent(kind EventKind, roomID string) (EventName, error) {
	if roomID == "" {
		return EventName{}, errors.Wrap(errors.ErrCodeMissingRoomID,
			fmt.Sprintf("room id is required for %s", kind), errors.ErrMissingRoomID)
	}
	return EventName{kind: kind, room: roomID}, nil
}

// ParseEventName splits a wire name back into kind and room.
func ParseEventName(s string) EventName {
	kind, room, found := strings.Cut(s, roomSeparator)
	if !found || room == "" {
		return EventName{kind: EventKind(s)}
	}
	return EventName{kind: EventKind(kind), room: room}
}

// Kind returns the event kind
func (n EventName) Kind() EventKind {
	return n.kind
}

// Room returns the room id, empty for plain events
func (n EventName) Room() string {
	return n.room
}

// IsRoomScoped reports whether n carries a room id
func (n EventName) IsRoomScoped() bool {
	return n.room != ""
}

// Valid reports whether n names anything
func (n EventName) Valid() bool {
	return n.kind != ""
}

// String returns the fully qualified wire name
func (n EventName) String() string {
	if n.room == "" {
		return string(n.kind)
	}
	return string(n.kind) + roomSeparator + n.room
}

// Message is an inbound event handed to handlers. Args are the raw JSON
// arguments exactly as the server sent them.
type Message struct {
	Name EventName
	Args []json.RawMessage
}

// Decode unmarshals the first argument into v
func (m Message) Decode(v interface{}) error {
	return m.DecodeArg(0, v)
}

// DecodeArg unmarshals argument i into v
func (m Message) DecodeArg(i int, v interface{}) error {
	if i < 0 || i >= len(m.Args) {
		return errors.NewInvalidArgumentError("argument", fmt.Sprintf("%s carries %d arguments, wanted index %d", m.Name, len(m.Args), i))
	}
	return json.Unmarshal(m.Args[i], v)
}
