package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	eiopacket "github.com/zishang520/engine.io-go-parser/packet"
	eioparser "github.com/zishang520/engine.io-go-parser/parser"
	eiotypes "github.com/zishang520/engine.io-go-parser/types"
	sioparser "github.com/zishang520/socket.io-go-parser/v2/parser"
)

var errBadPacket = errors.New("bad packet")

// Each websocket text frame carries exactly one Engine.IO v4 packet.
var eio = eioparser.Parserv4()

// handshake is the payload of the Engine.IO open packet.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
	MaxPayload   int    `json:"maxPayload"`
}

// frame is a decoded Engine.IO packet.
type frame struct {
	Type eiopacket.Type
	Data string
}

func decodeFrame(s string) (frame, error) {
	p, err := eio.DecodePacket(eiotypes.NewStringBufferString(s))
	if err != nil {
		return frame{}, fmt.Errorf("%w: %v", errBadPacket, err)
	}

	f := frame{Type: p.Type}
	if p.Data != nil {
		data, err := io.ReadAll(p.Data)
		if err != nil {
			return frame{}, fmt.Errorf("%w: %v", errBadPacket, err)
		}
		f.Data = string(data)
	}
	return f, nil
}

func encodeFrame(typ eiopacket.Type, data string) (string, error) {
	p := &eiopacket.Packet{Type: typ}
	if data != "" {
		p.Data = eiotypes.NewStringBufferString(data)
	}

	buf, err := eio.EncodePacket(p, false)
	if err != nil {
		return "", fmt.Errorf("encoding %s frame: %w", typ, err)
	}
	return buf.String(), nil
}

// packet is a decoded Socket.IO packet.
type packet struct {
	Type      sioparser.PacketType
	Namespace string
	Data      any
}

// decodePacket parses the Socket.IO part of an Engine.IO message. Binary
// packets are rejected; the backend only emits JSON.
func decodePacket(s string) (packet, error) {
	dec := sioparser.NewDecoder()
	defer dec.Destroy()

	var decoded *sioparser.Packet
	err := dec.On("decoded", func(args ...any) {
		if len(args) > 0 {
			decoded, _ = args[0].(*sioparser.Packet)
		}
	})
	if err != nil {
		return packet{}, err
	}

	if err := dec.Add(s); err != nil {
		return packet{}, fmt.Errorf("%w: %v", errBadPacket, err)
	}
	if decoded == nil || decoded.Type == sioparser.BINARY_EVENT || decoded.Type == sioparser.BINARY_ACK {
		return packet{}, fmt.Errorf("%w: binary packets are not supported", errBadPacket)
	}

	return packet{Type: decoded.Type, Namespace: decoded.Nsp, Data: decoded.Data}, nil
}

// encodePacket renders a Socket.IO packet wrapped in an Engine.IO message
// frame. data may be nil.
func encodePacket(typ sioparser.PacketType, namespace string, data any) (string, error) {
	if data != nil {
		if _, err := json.Marshal(data); err != nil {
			return "", fmt.Errorf("encoding packet payload: %w", err)
		}
	}

	bufs := sioparser.NewEncoder().Encode(&sioparser.Packet{Type: typ, Nsp: namespace, Data: data})
	if len(bufs) != 1 {
		return "", fmt.Errorf("%w: binary payloads are not supported", errBadPacket)
	}
	return encodeFrame(eiopacket.MESSAGE, bufs[0].String())
}

// Event is a server-emitted Socket.IO event.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Arg returns the i-th argument or nil when absent.
func (e Event) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// decodeEvent turns an EVENT packet's array into an Event. Arguments are
// re-encoded so callers decode them into their own types.
func decodeEvent(p packet) (Event, error) {
	parts, ok := p.Data.([]any)
	if !ok || len(parts) == 0 {
		return Event{}, fmt.Errorf("%w: event without name", errBadPacket)
	}

	name, ok := parts[0].(string)
	if !ok || name == "" {
		return Event{}, fmt.Errorf("%w: event name is not a string", errBadPacket)
	}

	args := make([]json.RawMessage, 0, len(parts)-1)
	for i, a := range parts[1:] {
		raw, err := json.Marshal(a)
		if err != nil {
			return Event{}, fmt.Errorf("%w: event argument %d: %v", errBadPacket, i, err)
		}
		args = append(args, raw)
	}

	return Event{Name: name, Args: args}, nil
}
