package transport

import (
	"encoding/json"
	"testing"

	"github.com/aminofox/zenclient/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePacket(t *testing.T) {
	tests := []struct {
		name   string
		packet Packet
		want   string
	}{
		{"connect default namespace", Packet{Type: PacketConnect}, "40"},
		{"connect namespace", Packet{Type: PacketConnect, Namespace: "/public"}, "40/public,"},
		{"disconnect namespace", Packet{Type: PacketDisconnect, Namespace: "/auth"}, "41/auth,"},
		{"event with ack", Packet{Type: PacketEvent, Namespace: "/public", AckID: 7, HasAck: true, Data: json.RawMessage(`["a"]`)}, `42/public,7["a"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EncodePacket(tt.packet))
		})
	}
}

func TestEncodeEvent(t *testing.T) {
	frame, err := EncodeEvent("/public", "joinStream", map[string]interface{}{"streamId": "s1"})
	require.NoError(t, err)
	assert.Equal(t, `42/public,["joinStream",{"streamId":"s1"}]`, frame)

	frame, err = EncodeEvent("/", "getAllMessages")
	require.NoError(t, err)
	assert.Equal(t, `42["getAllMessages"]`, frame)
}

func TestDecodePacket(t *testing.T) {
	p, err := DecodePacket(`2/public,["chatMessage_room1",{"message":"hi"}]`)
	require.NoError(t, err)
	assert.Equal(t, PacketEvent, p.Type)
	assert.Equal(t, "/public", p.Namespace)
	assert.False(t, p.HasAck)

	msg, err := EventMessage(p)
	require.NoError(t, err)
	assert.Equal(t, "chatMessage_room1", msg.Event)
	require.Len(t, msg.Args, 1)
	assert.JSONEq(t, `{"message":"hi"}`, string(msg.Args[0]))

	p, err = DecodePacket(`0/auth,{"sid":"abc"}`)
	require.NoError(t, err)
	assert.Equal(t, PacketConnect, p.Type)
	assert.Equal(t, "/auth", p.Namespace)

	p, err = DecodePacket(`1/auth,`)
	require.NoError(t, err)
	assert.Equal(t, PacketDisconnect, p.Type)
	assert.Empty(t, p.Data)

	p, err = DecodePacket(`2["x"]`)
	require.NoError(t, err)
	assert.Equal(t, "/", p.Namespace)

	p, err = DecodePacket(`212["x"]`)
	require.NoError(t, err)
	assert.True(t, p.HasAck)
	assert.Equal(t, 12, p.AckID)
}

func TestDecodePacketErrors(t *testing.T) {
	for _, in := range []string{"", "9", `51-["x",{"_placeholder":true}]`, `2/public,{not json`} {
		_, err := DecodePacket(in)
		assert.True(t, errors.IsCode(err, errors.ErrCodeProtocolError), "input %q", in)
	}

	_, err := EventMessage(Packet{Type: PacketEvent, Data: json.RawMessage(`[]`)})
	assert.Error(t, err)

	_, err = EventMessage(Packet{Type: PacketEvent, Data: json.RawMessage(`[1]`)})
	assert.Error(t, err)
}

func TestEngineURL(t *testing.T) {
	u, err := EngineURL("http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:3000/socket.io/?EIO=4&transport=websocket", u)

	u, err = EngineURL("wss://api.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/socket.io/?EIO=4&transport=websocket", u)

	_, err = EngineURL("ftp://x")
	assert.Error(t, err)
}

func TestDisconnectReason(t *testing.T) {
	assert.True(t, DisconnectServer.ServerInitiated())
	assert.False(t, DisconnectTransport.ServerInitiated())
	assert.False(t, DisconnectClient.ServerInitiated())
}
