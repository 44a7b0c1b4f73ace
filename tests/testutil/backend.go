package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// Backend is an in-memory stand-in for the AgriAssist REST API and its
// Socket.IO push channel, served from one httptest server.
type Backend struct {
	t      *testing.T
	server *httptest.Server
	Push   *SocketServer

	mu            sync.Mutex
	token         string
	userID        string
	notifications []map[string]any
	messages      []map[string]any
	users         map[string]map[string]any
	nextID        int
	calls         map[string]int

	// failures makes the next N calls of "METHOD /path" answer 500.
	failures map[string]int

	// holdList, when non-nil, blocks GET /notifications until it is closed.
	holdList    chan struct{}
	holdEntered chan struct{}
}

// NewBackend starts a backend that accepts token for userID. The server is
// closed when the test ends.
func NewBackend(t *testing.T, userID, token string) *Backend {
	t.Helper()

	b := &Backend{
		t:        t,
		token:    token,
		userID:   userID,
		users:    make(map[string]map[string]any),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
	b.AddUser(userID, "Session User", userID+"@example.com")

	b.Push = newSocketServer(token)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/notifications", b.handleNotifications)
	mux.HandleFunc("/api/notifications/", b.handleNotification)
	mux.HandleFunc("/api/messages", b.handleMessages)
	mux.HandleFunc("/api/auth/login", b.handleLogin)
	mux.Handle("/socket.io/", b.Push)

	b.server = httptest.NewServer(mux)
	t.Cleanup(func() {
		b.Push.CloseAll()
		b.server.Close()
	})

	return b
}

// URL is the server origin; the REST root is URL()+"/api".
func (b *Backend) URL() string { return b.server.URL }

// APIURL is the REST root.
func (b *Backend) APIURL() string { return b.server.URL + "/api" }

// AddUser registers a profile used to populate messages.
func (b *Backend) AddUser(id, name, email string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[id] = map[string]any{"_id": id, "name": name, "email": email}
}

// User returns the populated user object for id.
func (b *Backend) User(id string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.users[id]
}

// AddNotification appends a notification to the history.
func (b *Backend) AddNotification(id, typ, title string, read bool, at time.Time) map[string]any {
	n := map[string]any{
		"_id":       id,
		"type":      typ,
		"title":     title,
		"message":   title,
		"link":      "",
		"isRead":    read,
		"createdAt": at.UTC().Format(time.RFC3339Nano),
	}
	b.mu.Lock()
	b.notifications = append(b.notifications, n)
	b.mu.Unlock()
	return n
}

// AddMessage appends a message with populated participants to the history.
func (b *Backend) AddMessage(id, from, to, text string, read bool, at time.Time) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	m := b.newMessageLocked(id, from, to, text, "", read, at)
	b.messages = append(b.messages, m)
	return m
}

// Notification returns a stored notification by id.
func (b *Backend) Notification(id string) (map[string]any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notifications {
		if n["_id"] == id {
			return n, true
		}
	}
	return nil, false
}

// NotificationCount returns the number of stored notifications.
func (b *Backend) NotificationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.notifications)
}

// Calls returns how many times "METHOD /path" was requested.
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// FailNext makes the next n requests of route answer 500.
func (b *Backend) FailNext(route string, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[route] = n
}

// HoldNotificationList blocks GET /notifications until release is called.
// The returned channel receives once a request is blocked.
func (b *Backend) HoldNotificationList() (blocked <-chan struct{}, release func()) {
	hold := make(chan struct{})
	entered := make(chan struct{}, 1)

	b.mu.Lock()
	b.holdList = hold
	b.holdEntered = entered
	b.mu.Unlock()

	return entered, func() {
		b.mu.Lock()
		b.holdList = nil
		b.holdEntered = nil
		b.mu.Unlock()
		close(hold)
	}
}

func (b *Backend) newMessageLocked(id, from, to, text, product string, read bool, at time.Time) map[string]any {
	m := map[string]any{
		"_id":       id,
		"sender":    b.userLocked(from),
		"receiver":  b.userLocked(to),
		"text":      text,
		"isRead":    read,
		"createdAt": at.UTC().Format(time.RFC3339Nano),
	}
	if product != "" {
		m["product"] = product
	}
	return m
}

func (b *Backend) userLocked(id string) map[string]any {
	if u, ok := b.users[id]; ok {
		return u
	}
	return map[string]any{"_id": id, "name": id, "email": ""}
}

// begin records the call, checks the bearer token and applies injected
// failures. It reports whether the handler should continue.
func (b *Backend) begin(w http.ResponseWriter, r *http.Request, route string) bool {
	b.mu.Lock()
	b.calls[route]++
	fail := b.failures[route] > 0
	if fail {
		b.failures[route]--
	}
	b.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer "+b.token {
		reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid token"})
		return false
	}
	if fail {
		reply(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "injected failure"})
		return false
	}
	return true
}

func (b *Backend) handleNotifications(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " /notifications"
	if !b.begin(w, r, route) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		b.mu.Lock()
		hold, entered := b.holdList, b.holdEntered
		b.mu.Unlock()
		if hold != nil {
			if entered != nil {
				select {
				case entered <- struct{}{}:
				default:
				}
			}
			<-hold
		}

		b.mu.Lock()
		out := make([]map[string]any, len(b.notifications))
		copy(out, b.notifications)
		b.mu.Unlock()
		sort.SliceStable(out, func(i, j int) bool {
			return out[i]["createdAt"].(string) > out[j]["createdAt"].(string)
		})
		reply(w, http.StatusOK, map[string]any{"success": true, "data": out})

	case http.MethodDelete:
		b.mu.Lock()
		b.notifications = nil
		b.mu.Unlock()
		reply(w, http.StatusOK, map[string]any{"success": true})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *Backend) handleNotification(w http.ResponseWriter, r *http.Request) {
	if !b.begin(w, r, r.Method+" /notifications/:id") {
		return
	}
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range b.notifications {
		if n["_id"] == id {
			n["isRead"] = true
			reply(w, http.StatusOK, map[string]any{"success": true})
			return
		}
	}
	reply(w, http.StatusNotFound, map[string]any{"success": false, "message": "not found"})
}

func (b *Backend) handleMessages(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " /messages"
	if !b.begin(w, r, route) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		b.mu.Lock()
		out := make([]map[string]any, len(b.messages))
		copy(out, b.messages)
		b.mu.Unlock()
		reply(w, http.StatusOK, map[string]any{"success": true, "data": out})

	case http.MethodPost:
		var body struct {
			Receiver string `json:"receiver"`
			Text     string `json:"text"`
			Product  string `json:"product"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Receiver == "" {
			reply(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad body"})
			return
		}

		b.mu.Lock()
		b.nextID++
		id := "srv-" + strconv.Itoa(b.nextID)
		m := b.newMessageLocked(id, b.userID, body.Receiver, body.Text, body.Product, false, time.Now())
		b.messages = append(b.messages, m)
		b.mu.Unlock()

		reply(w, http.StatusCreated, map[string]any{"success": true, "data": m})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.calls["POST /auth/login"]++
	b.mu.Unlock()

	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Password != "secret" {
		reply(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "invalid credentials"})
		return
	}

	user := b.User(b.userID)
	reply(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   b.token,
		"user": map[string]any{
			"_id": user["_id"], "name": user["name"], "email": user["email"], "role": "user",
		},
	})
}

func reply(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

