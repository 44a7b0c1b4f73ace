// Package push is a minimal Socket.IO v4 client (Engine.IO v4 over a
// websocket transport). It supports text events on one namespace, which is
// all the AgriAssist backend emits.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	eiopacket "github.com/zishang520/engine.io-go-parser/packet"
	sioparser "github.com/zishang520/socket.io-go-parser/v2/parser"
)

// ErrConnectRefused is returned when the server answers the Socket.IO
// connect with CONNECT_ERROR, typically because the token was rejected.
var ErrConnectRefused = errors.New("socket.io connect refused")

const (
	defaultPath   = "/socket.io/"
	writeTimeout  = 10 * time.Second
	handshakeWait = 20 * time.Second
)

// Options configures a Dial.
type Options struct {
	// URL is the server origin (http, https, ws or wss). A path other than
	// "/" replaces the default /socket.io/ path.
	URL string

	// Namespace defaults to "/".
	Namespace string

	// Auth is sent as the CONNECT payload (e.g. {"token": "..."}).
	Auth any

	// Header is added to the websocket upgrade request.
	Header http.Header

	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Conn is an established Socket.IO connection. ReadEvent must be called
// from a single goroutine; Emit and Close are safe for concurrent use.
type Conn struct {
	ws        *websocket.Conn
	namespace string
	sid       string
	readWait  time.Duration

	writeMu sync.Mutex
	closeMu sync.Once
}

// Endpoint converts an origin URL into the websocket URL of the Engine.IO
// transport.
func Endpoint(origin string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parsing push url %q: %w", origin, err)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("push url %q: unsupported scheme %q", origin, u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = defaultPath
	}

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Dial opens the websocket, completes the Engine.IO handshake and the
// Socket.IO namespace connect.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	endpoint, err := Endpoint(opts.URL)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, endpoint, opts.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	ns := opts.Namespace
	if ns == "" {
		ns = "/"
	}

	c := &Conn{ws: ws, namespace: ns}
	if err := c.handshake(ctx, opts.Auth); err != nil {
		ws.Close()
		return nil, err
	}

	return c, nil
}

// handshake consumes the Engine.IO open packet, sends CONNECT and waits for
// the server's CONNECT acknowledgement.
func (c *Conn) handshake(ctx context.Context, auth any) error {
	deadline := time.Now().Add(handshakeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.ws.SetReadDeadline(deadline)

	raw, err := c.readFrame()
	if err != nil {
		return fmt.Errorf("reading engine.io open: %w", err)
	}
	open, err := decodeFrame(raw)
	if err != nil {
		return fmt.Errorf("reading engine.io open: %w", err)
	}
	if open.Type != eiopacket.OPEN {
		return fmt.Errorf("%w: expected open, got %q", errBadPacket, raw)
	}

	var hs handshake
	if err := json.Unmarshal([]byte(open.Data), &hs); err != nil {
		return fmt.Errorf("%w: open payload: %v", errBadPacket, err)
	}
	if hs.PingInterval <= 0 {
		hs.PingInterval = 25000
	}
	if hs.PingTimeout <= 0 {
		hs.PingTimeout = 20000
	}
	c.readWait = time.Duration(hs.PingInterval+hs.PingTimeout) * time.Millisecond

	connect, err := encodePacket(sioparser.CONNECT, c.namespace, auth)
	if err != nil {
		return err
	}
	if err := c.writeFrame(connect); err != nil {
		return fmt.Errorf("sending connect: %w", err)
	}

	for {
		raw, err := c.readFrame()
		if err != nil {
			return fmt.Errorf("waiting for connect ack: %w", err)
		}

		p, ok, err := c.handleTransport(raw)
		if err != nil {
			return err
		}
		if !ok || p.Namespace != c.namespace {
			continue
		}

		switch p.Type {
		case sioparser.CONNECT:
			if ack, ok := p.Data.(map[string]any); ok {
				c.sid, _ = ack["sid"].(string)
			}
			c.ws.SetReadDeadline(time.Now().Add(c.readWait))
			return nil

		case sioparser.CONNECT_ERROR:
			return fmt.Errorf("%w: %s", ErrConnectRefused, connectErrorMessage(p.Data))
		}
	}
}

// ReadEvent blocks until the next server event. Pings are answered and
// non-event packets are skipped. A server DISCONNECT ends the connection
// with an error.
func (c *Conn) ReadEvent() (Event, error) {
	for {
		raw, err := c.readFrame()
		if err != nil {
			return Event{}, err
		}

		p, ok, err := c.handleTransport(raw)
		if err != nil {
			return Event{}, err
		}
		if !ok || p.Namespace != c.namespace {
			continue
		}

		switch p.Type {
		case sioparser.EVENT:
			ev, err := decodeEvent(p)
			if err != nil {
				return Event{}, &MalformedError{Err: err}
			}
			return ev, nil

		case sioparser.DISCONNECT:
			return Event{}, errors.New("server closed namespace")
		}
	}
}

// MalformedError wraps a single undecodable event. The connection is still
// usable after it.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string { return "malformed event: " + e.Err.Error() }
func (e *MalformedError) Unwrap() error { return e.Err }

// handleTransport processes Engine.IO framing. It returns the Socket.IO
// packet carried by a message frame, or ok=false for transport-only frames.
func (c *Conn) handleTransport(raw string) (packet, bool, error) {
	if raw == "" {
		return packet{}, false, nil
	}

	f, err := decodeFrame(raw)
	if err != nil {
		return packet{}, false, &MalformedError{Err: err}
	}

	switch f.Type {
	case eiopacket.PING:
		c.ws.SetReadDeadline(time.Now().Add(c.readWait))
		pong, err := encodeFrame(eiopacket.PONG, f.Data)
		if err != nil {
			return packet{}, false, err
		}
		if err := c.writeFrame(pong); err != nil {
			return packet{}, false, fmt.Errorf("sending pong: %w", err)
		}
		return packet{}, false, nil

	case eiopacket.CLOSE:
		return packet{}, false, errors.New("server closed transport")

	case eiopacket.MESSAGE:
		p, err := decodePacket(f.Data)
		if err != nil {
			return packet{}, false, &MalformedError{Err: err}
		}
		return p, true, nil
	}

	return packet{}, false, nil
}

// connectErrorMessage extracts the reason from a CONNECT_ERROR payload,
// which is either an object with a message or a bare string.
func connectErrorMessage(data any) string {
	switch v := data.(type) {
	case string:
		return v
	case map[string]any:
		msg, _ := v["message"].(string)
		return msg
	}
	return ""
}

// Emit sends an event with the given arguments.
func (c *Conn) Emit(event string, args ...any) error {
	payload := append([]any{event}, args...)
	frame, err := encodePacket(sioparser.EVENT, c.namespace, payload)
	if err != nil {
		return err
	}
	if err := c.writeFrame(frame); err != nil {
		return fmt.Errorf("emitting %s: %w", event, err)
	}
	return nil
}

// SID returns the Socket.IO session id assigned by the server.
func (c *Conn) SID() string {
	return c.sid
}

// Close sends DISCONNECT and closes the websocket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeMu.Do(func() {
		if frame, encErr := encodePacket(sioparser.DISCONNECT, c.namespace, nil); encErr == nil {
			_ = c.writeFrame(frame)
		}
		c.writeMu.Lock()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Conn) readFrame() (string, error) {
	typ, data, err := c.ws.ReadMessage()
	if err != nil {
		return "", err
	}
	if typ != websocket.TextMessage {
		return "", nil
	}
	return strings.TrimSpace(string(data)), nil
}

func (c *Conn) writeFrame(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}
