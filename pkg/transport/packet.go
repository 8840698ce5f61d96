package transport

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aminofox/zenclient/pkg/errors"
)

// Engine.IO v4 packet types
const (
	engineOpen    byte = '0'
	engineClose   byte = '1'
	enginePing    byte = '2'
	enginePong    byte = '3'
	engineMessage byte = '4'
	engineNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type
type PacketType int

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

// Packet is a decoded Socket.IO packet
type Packet struct {
	Type      PacketType
	Namespace string
	AckID     int
	HasAck    bool
	Data      json.RawMessage
}

// openPayload is the Engine.IO handshake body
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// EncodePacket renders p as an Engine.IO message frame.
func EncodePacket(p Packet) string {
	var sb strings.Builder
	sb.WriteByte(engineMessage)
	sb.WriteString(strconv.Itoa(int(p.Type)))
	if p.Namespace != "" && p.Namespace != "/" {
		sb.WriteString(p.Namespace)
		sb.WriteByte(',')
	}
	if p.HasAck {
		sb.WriteString(strconv.Itoa(p.AckID))
	}
	if len(p.Data) > 0 {
		sb.Write(p.Data)
	}
	return sb.String()
}

// EncodeEvent renders an EVENT packet for namespace.
func EncodeEvent(namespace, event string, args ...interface{}) (string, error) {
	payload := make([]interface{}, 0, len(args)+1)
	payload = append(payload, event)
	payload = append(payload, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeProtocolError, "encode event "+event, err)
	}
	return EncodePacket(Packet{Type: PacketEvent, Namespace: namespace, Data: data}), nil
}

// DecodePacket parses the Socket.IO part of an Engine.IO message frame
// (the frame without its leading '4').
func DecodePacket(s string) (Packet, error) {
	var p Packet
	if s == "" {
		return p, errors.New(errors.ErrCodeProtocolError, "empty packet")
	}

	t := s[0]
	if t < '0' || t > '6' {
		return p, errors.New(errors.ErrCodeProtocolError, fmt.Sprintf("unknown packet type %q", t))
	}
	p.Type = PacketType(t - '0')
	s = s[1:]

	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return p, errors.New(errors.ErrCodeProtocolError, "binary packets are not supported")
	}

	p.Namespace = "/"
	if strings.HasPrefix(s, "/") {
		end := strings.IndexByte(s, ',')
		if end < 0 {
			p.Namespace = s
			return p, nil
		}
		p.Namespace = s[:end]
		s = s[end+1:]
	}

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(s[:i])
		if err != nil {
			return p, errors.Wrap(errors.ErrCodeProtocolError, "bad ack id", err)
		}
		p.AckID = id
		p.HasAck = true
		s = s[i:]
	}

	if s != "" {
		if !json.Valid([]byte(s)) {
			return p, errors.New(errors.ErrCodeProtocolError, "packet payload is not JSON")
		}
		p.Data = json.RawMessage(s)
	}
	return p, nil
}

// EventMessage splits an EVENT payload into its name and arguments.
func EventMessage(p Packet) (Message, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil {
		return Message{}, errors.Wrap(errors.ErrCodeProtocolError, "event payload is not an array", err)
	}
	if len(parts) == 0 {
		return Message{}, errors.New(errors.ErrCodeProtocolError, "event payload has no name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return Message{}, errors.Wrap(errors.ErrCodeProtocolError, "event name is not a string", err)
	}
	return Message{Event: name, Args: parts[1:]}, nil
}

// connectErrorMessage extracts the message of a CONNECT_ERROR payload.
func connectErrorMessage(p Packet) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Data, &body); err == nil && body.Message != "" {
		return body.Message
	}
	return string(p.Data)
}
