// Package engineio implements the Engine.IO v4 packet codec that socket.io
// runs on top of. Only the pieces needed by a websocket client and by a
// long-polling handshake probe are provided.
package engineio

import (
	"bytes"
	"fmt"
	"time"

	sockerrors "github.com/dostenterprises/socketlink/pkg/errors"
	json "github.com/json-iterator/go"
)

// Protocol is the Engine.IO protocol revision sent as the EIO query parameter
const Protocol = "4"

// recordSeparator splits packets inside a long-polling payload
const recordSeparator = 0x1e

// PacketType is the single-digit Engine.IO packet type
type PacketType byte

const (
	PacketOpen PacketType = iota
	PacketClose
	PacketPing
	PacketPong
	PacketMessage
	PacketUpgrade
	PacketNoop
)

func (t PacketType) String() string {
	switch t {
	case PacketOpen:
		return "open"
	case PacketClose:
		return "close"
	case PacketPing:
		return "ping"
	case PacketPong:
		return "pong"
	case PacketMessage:
		return "message"
	case PacketUpgrade:
		return "upgrade"
	case PacketNoop:
		return "noop"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Packet is one Engine.IO packet. Binary packets carry raw message data
// and are always of type message.
type Packet struct {
	Type   PacketType
	Data   []byte
	Binary bool
}

// Encode returns the frame for p. Text packets are the type digit followed
// by the data, binary packets are the data itself.
func Encode(p Packet) ([]byte, error) {
	if p.Type > PacketNoop {
		return nil, sockerrors.ProtocolError(fmt.Sprintf("cannot encode packet type %d", p.Type))
	}
	if p.Binary {
		if p.Type != PacketMessage {
			return nil, sockerrors.ProtocolError("binary packets must be messages")
		}
		return p.Data, nil
	}

	frame := make([]byte, 0, len(p.Data)+1)
	frame = append(frame, '0'+byte(p.Type))
	frame = append(frame, p.Data...)
	return frame, nil
}

// Decode parses a single websocket frame.
func Decode(frame []byte, binary bool) (Packet, error) {
	if binary {
		return Packet{Type: PacketMessage, Data: frame, Binary: true}, nil
	}
	if len(frame) == 0 {
		return Packet{}, sockerrors.ProtocolError("empty engine.io packet")
	}

	typ := frame[0]
	if typ < '0' || typ > '0'+byte(PacketNoop) {
		return Packet{}, sockerrors.ProtocolError(fmt.Sprintf("unknown engine.io packet type %q", typ))
	}

	return Packet{Type: PacketType(typ - '0'), Data: frame[1:]}, nil
}

// DecodePayload splits an HTTP long-polling response body into packets.
// Base64 binary packets ("b" prefix) are not supported.
func DecodePayload(body []byte) ([]Packet, error) {
	if len(body) == 0 {
		return nil, sockerrors.ProtocolError("empty engine.io payload")
	}

	parts := bytes.Split(body, []byte{recordSeparator})
	packets := make([]Packet, 0, len(parts))
	for _, part := range parts {
		if len(part) > 0 && part[0] == 'b' {
			return nil, sockerrors.ProtocolError("base64 binary packets are not supported")
		}
		p, err := Decode(part, false)
		if err != nil {
			return nil, err
		}
		packets = append(packets, p)
	}
	return packets, nil
}

// Handshake is the payload of the open packet
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// PingIntervalDuration returns the server ping interval
func (h Handshake) PingIntervalDuration() time.Duration {
	return time.Duration(h.PingInterval) * time.Millisecond
}

// PingTimeoutDuration returns how long the server waits for a pong
func (h Handshake) PingTimeoutDuration() time.Duration {
	return time.Duration(h.PingTimeout) * time.Millisecond
}

// ParseHandshake decodes the data of an open packet.
func ParseHandshake(p Packet) (Handshake, error) {
	var hs Handshake
	if p.Type != PacketOpen {
		return hs, sockerrors.ProtocolError(fmt.Sprintf("expected open packet, got %s", p.Type))
	}
	if err := json.Unmarshal(p.Data, &hs); err != nil {
		return hs, sockerrors.NewSocketError(sockerrors.ErrorTypeProtocol, "malformed engine.io handshake", err)
	}
	if hs.SID == "" {
		return hs, sockerrors.ProtocolError("engine.io handshake without sid")
	}
	return hs, nil
}
