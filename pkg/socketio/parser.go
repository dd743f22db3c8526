package socketio

import (
	"bytes"
	"fmt"
	"strconv"

	sockerrors "github.com/dostenterprises/socketlink/pkg/errors"
	json "github.com/json-iterator/go"
)

// PacketType is the socket.io (protocol v5) packet type carried inside an
// engine.io message packet.
type PacketType byte

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

func (t PacketType) String() string {
	switch t {
	case PacketConnect:
		return "CONNECT"
	case PacketDisconnect:
		return "DISCONNECT"
	case PacketEvent:
		return "EVENT"
	case PacketAck:
		return "ACK"
	case PacketConnectError:
		return "CONNECT_ERROR"
	case PacketBinaryEvent:
		return "BINARY_EVENT"
	case PacketBinaryAck:
		return "BINARY_ACK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// noID marks a packet without an ack id
const noID = -1

// Packet is a decoded socket.io packet. Data holds the raw JSON payload.
type Packet struct {
	Type      PacketType
	Namespace string
	ID        int
	Data      json.RawMessage
}

// EncodePacket renders p in the socket.io string format:
// <type>[/<namespace>,][<id>][<json data>]
func EncodePacket(p Packet) ([]byte, error) {
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return nil, sockerrors.ProtocolError("binary attachments are not supported")
	}
	if p.Type > PacketBinaryAck {
		return nil, sockerrors.ProtocolError(fmt.Sprintf("cannot encode packet type %d", p.Type))
	}

	var buf bytes.Buffer
	buf.WriteByte('0' + byte(p.Type))
	if p.Namespace != "" && p.Namespace != "/" {
		buf.WriteString(p.Namespace)
		buf.WriteByte(',')
	}
	if p.ID >= 0 {
		buf.WriteString(strconv.Itoa(p.ID))
	}
	buf.Write(p.Data)
	return buf.Bytes(), nil
}

// DecodePacket parses the data of an engine.io message packet.
func DecodePacket(data []byte) (Packet, error) {
	p := Packet{Namespace: "/", ID: noID}
	if len(data) == 0 {
		return p, sockerrors.ProtocolError("empty socket.io packet")
	}

	typ := data[0]
	if typ < '0' || typ > '0'+byte(PacketBinaryAck) {
		return p, sockerrors.ProtocolError(fmt.Sprintf("unknown socket.io packet type %q", typ))
	}
	p.Type = PacketType(typ - '0')
	if p.Type == PacketBinaryEvent || p.Type == PacketBinaryAck {
		return p, sockerrors.ProtocolError("binary attachments are not supported")
	}

	rest := data[1:]

	if len(rest) > 0 && rest[0] == '/' {
		end := bytes.IndexByte(rest, ',')
		if end < 0 {
			p.Namespace = string(rest)
			rest = nil
		} else {
			p.Namespace = string(rest[:end])
			rest = rest[end+1:]
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(string(rest[:digits]))
		if err != nil {
			return p, sockerrors.NewSocketError(sockerrors.ErrorTypeProtocol, "invalid ack id", err)
		}
		p.ID = id
		rest = rest[digits:]
	}

	if len(rest) > 0 {
		if !json.Valid(rest) {
			return p, sockerrors.ProtocolError("invalid socket.io payload")
		}
		p.Data = json.RawMessage(rest)
	}

	if err := validatePayload(p); err != nil {
		return p, err
	}
	return p, nil
}

func validatePayload(p Packet) error {
	switch p.Type {
	case PacketConnect, PacketConnectError:
		if len(p.Data) > 0 && p.Data[0] != '{' {
			return sockerrors.ProtocolError(fmt.Sprintf("%s payload must be an object", p.Type))
		}
	case PacketDisconnect:
		if len(p.Data) > 0 {
			return sockerrors.ProtocolError("DISCONNECT carries no payload")
		}
	case PacketEvent:
		if len(p.Data) == 0 || p.Data[0] != '[' {
			return sockerrors.ProtocolError("EVENT payload must be a non-empty array")
		}
	case PacketAck:
		if len(p.Data) == 0 || p.Data[0] != '[' || p.ID == noID {
			return sockerrors.ProtocolError("ACK needs an id and an array payload")
		}
	}
	return nil
}

// eventArgs splits an EVENT payload into its name and arguments.
func eventArgs(data json.RawMessage) (string, []any, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, sockerrors.NewSocketError(sockerrors.ErrorTypeProtocol, "malformed event payload", err)
	}
	if len(raw) == 0 {
		return "", nil, sockerrors.ProtocolError("event without a name")
	}
	name, ok := raw[0].(string)
	if !ok {
		return "", nil, sockerrors.ProtocolError("event name must be a string")
	}
	return name, raw[1:], nil
}

// eventPacket builds an EVENT packet for name and args.
func eventPacket(namespace, name string, args []any) (Packet, error) {
	payload := make([]any, 0, len(args)+1)
	payload = append(payload, name)
	payload = append(payload, args...)

	data, err := json.Marshal(payload)
	if err != nil {
		return Packet{}, sockerrors.NewSocketError(sockerrors.ErrorTypeProtocol, "cannot encode event arguments", err)
	}
	return Packet{Type: PacketEvent, Namespace: namespace, ID: noID, Data: data}, nil
}

// connectErrorMessage extracts the message of a CONNECT_ERROR payload.
func connectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if len(data) > 0 && json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	return "connection rejected by server"
}

// connectSID extracts the session id of a CONNECT reply.
func connectSID(data json.RawMessage) (string, error) {
	var body struct {
		SID string `json:"sid"`
	}
	if err := json.Unmarshal(data, &body); err != nil || body.SID == "" {
		return "", sockerrors.ProtocolError("CONNECT reply without sid")
	}
	return body.SID, nil
}
