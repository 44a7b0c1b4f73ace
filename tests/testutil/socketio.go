package testutil

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientEvent is an event a connected client emitted to the server.
type ClientEvent struct {
	Name string
	Args []json.RawMessage
}

// SocketServer is a tiny Socket.IO v4 server speaking only what the client
// needs: handshake, token check on CONNECT, text events and ping/pong.
type SocketServer struct {
	token    string
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conns     map[*websocket.Conn]*sync.Mutex
	connects  int
	refuse    bool
	events    chan ClientEvent
	connected chan struct{}
}

// pingIntervalMS is advertised in the handshake; the server never pings,
// so clients rely on the read deadline it implies.
const pingIntervalMS = 25000

func newSocketServer(token string) *SocketServer {
	return &SocketServer{
		token:     token,
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		conns:     make(map[*websocket.Conn]*sync.Mutex),
		events:    make(chan ClientEvent, 64),
		connected: make(chan struct{}, 64),
	}
}

// Events yields events emitted by clients (e.g. join).
func (s *SocketServer) Events() <-chan ClientEvent { return s.events }

// Connected receives once per accepted Socket.IO CONNECT.
func (s *SocketServer) Connected() <-chan struct{} { return s.connected }

// Connects returns how many CONNECTs were accepted so far.
func (s *SocketServer) Connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects
}

// ActiveConns returns the number of live client websockets.
func (s *SocketServer) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// RefuseConnects makes subsequent CONNECTs fail with CONNECT_ERROR.
func (s *SocketServer) RefuseConnects(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuse = refuse
}

// Emit sends an event to every connected client.
func (s *SocketServer) Emit(event string, args ...any) {
	payload, _ := json.Marshal(append([]any{event}, args...))
	s.EmitRaw("42" + string(payload))
}

// EmitRaw sends a raw Engine.IO frame to every connected client.
func (s *SocketServer) EmitRaw(frame string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, wmu := range s.conns {
		wmu.Lock()
		_ = c.WriteMessage(websocket.TextMessage, []byte(frame))
		wmu.Unlock()
	}
}

// DropAll closes every client websocket abruptly, as a network drop would.
func (s *SocketServer) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
}

// CloseAll is DropAll for test cleanup.
func (s *SocketServer) CloseAll() { s.DropAll() }

func (s *SocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("EIO") != "4" || r.URL.Query().Get("transport") != "websocket" {
		http.Error(w, "unsupported transport", http.StatusBadRequest)
		return
	}

	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer c.Close()

	wmu := &sync.Mutex{}
	write := func(frame string) error {
		wmu.Lock()
		defer wmu.Unlock()
		return c.WriteMessage(websocket.TextMessage, []byte(frame))
	}

	open, _ := json.Marshal(map[string]any{
		"sid": "eio-1", "upgrades": []string{}, "pingInterval": pingIntervalMS, "pingTimeout": 20000, "maxPayload": 1000000,
	})
	if write("0"+string(open)) != nil {
		return
	}

	_, data, err := c.ReadMessage()
	if err != nil {
		return
	}
	frame := string(data)
	if !strings.HasPrefix(frame, "40") {
		return
	}
	var auth struct {
		Token string `json:"token"`
	}
	_ = json.Unmarshal([]byte(strings.TrimPrefix(frame, "40")), &auth)

	s.mu.Lock()
	refuse := s.refuse
	s.mu.Unlock()
	if refuse || auth.Token != s.token {
		_ = write(`44{"message":"unauthorized"}`)
		return
	}
	// Register before acknowledging so an Emit issued right after the
	// client's Dial returns is delivered.
	s.mu.Lock()
	s.conns[c] = wmu
	s.connects++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
	}()

	if write(`40{"sid":"sio-1"}`) != nil {
		return
	}

	select {
	case s.connected <- struct{}{}:
	default:
	}

	for {
		c.SetReadDeadline(time.Now().Add(time.Minute))
		_, data, err := c.ReadMessage()
		if err != nil {
			return
		}
		frame := string(data)
		switch {
		case strings.HasPrefix(frame, "42"):
			var parts []json.RawMessage
			if json.Unmarshal([]byte(frame[2:]), &parts) != nil || len(parts) == 0 {
				continue
			}
			var name string
			_ = json.Unmarshal(parts[0], &name)
			select {
			case s.events <- ClientEvent{Name: name, Args: parts[1:]}:
			default:
			}
		case strings.HasPrefix(frame, "41"):
			return
		}
	}
}
