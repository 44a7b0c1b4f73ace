package conn_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agriassist/internal/conn"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/tests/testutil"
)

const (
	userID = "u1"
	token  = "tok-u1"
)

func newManager(b *testutil.Backend) *conn.Manager {
	return conn.NewManager(conn.Config{
		URL:          b.URL(),
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
		Buffer:       8,
	}, zerolog.Nop(), nil)
}

func session() *model.Session {
	return &model.Session{UserID: userID, Token: token, Role: model.RoleUser}
}

func waitState(t *testing.T, c *conn.Connection, want conn.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want },
		2*time.Second, 5*time.Millisecond, "waiting for state %s", want)
}

func waitJoin(t *testing.T, b *testutil.Backend) string {
	t.Helper()
	for {
		select {
		case ev := <-b.Push.Events():
			if ev.Name != "join" {
				continue
			}
			require.Len(t, ev.Args, 1)
			var id string
			require.NoError(t, json.Unmarshal(ev.Args[0], &id))
			return id
		case <-time.After(2 * time.Second):
			t.Fatal("no join event")
			return ""
		}
	}
}

func TestOpen_JoinsUserRoom(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)
	defer m.Close()

	c, err := m.Open(session())
	require.NoError(t, err)

	assert.Equal(t, userID, waitJoin(t, b))
	waitState(t, c, conn.Connected)
	assert.Same(t, c, m.Current())
}

func TestOpen_InvalidSession(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)

	_, err := m.Open(&model.Session{UserID: "", Token: token, Role: model.RoleUser})
	require.ErrorIs(t, err, model.ErrInvalidSession)
	assert.Nil(t, m.Current())
}

func TestOpen_SameSessionReusesConnection(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)
	defer m.Close()

	first, err := m.Open(session())
	require.NoError(t, err)
	second, err := m.Open(session())
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestOpen_NewIdentityClosesPrevious(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)
	defer m.Close()

	first, err := m.Open(session())
	require.NoError(t, err)
	waitState(t, first, conn.Connected)

	other := &model.Session{UserID: "u2", Token: token, Role: model.RoleSeller}
	second, err := m.Open(other)
	require.NoError(t, err)

	select {
	case <-first.Done():
	default:
		t.Fatal("previous connection still running")
	}
	_, ok := <-first.Notifications()
	assert.False(t, ok, "previous channels are closed")

	waitState(t, second, conn.Connected)
	require.Eventually(t, func() bool { return b.Push.ActiveConns() == 1 },
		2*time.Second, 5*time.Millisecond)
}

func TestClose_Idempotent(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)

	c, err := m.Open(session())
	require.NoError(t, err)
	waitState(t, c, conn.Connected)

	m.Close()
	m.Close()
	c.Close()

	assert.False(t, c.Alive())
	assert.Equal(t, conn.Disconnected, c.State())
	assert.Nil(t, m.Current())
	require.Eventually(t, func() bool { return b.Push.ActiveConns() == 0 },
		2*time.Second, 5*time.Millisecond)
}

func TestConnection_DeliversTypedEvents(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	b.AddUser("u2", "Seller", "seller@example.com")
	m := newManager(b)
	defer m.Close()

	c, err := m.Open(session())
	require.NoError(t, err)
	waitJoin(t, b)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b.Push.Emit("notification", map[string]any{
		"_id": "n1", "type": "order", "title": "Order shipped", "message": "on its way",
		"isRead": false, "createdAt": at.Format(time.RFC3339),
	})
	b.Push.Emit("receive_message", map[string]any{
		"_id": "m1", "sender": b.User("u2"), "receiver": b.User(userID),
		"text": "hello", "createdAt": at.Format(time.RFC3339), "isRead": false,
	})
	b.Push.Emit("stockUpdated", map[string]any{"productId": "p1", "newStock": 7})

	select {
	case n := <-c.Notifications():
		assert.Equal(t, "n1", n.ID)
		assert.Equal(t, model.NotificationOrder, n.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no notification")
	}

	select {
	case msg := <-c.Messages():
		assert.Equal(t, "m1", msg.ID)
		assert.Equal(t, "u2", msg.SenderID())
	case <-time.After(2 * time.Second):
		t.Fatal("no message")
	}

	select {
	case u := <-c.StockUpdates():
		assert.Equal(t, model.StockUpdate{ProductID: "p1", NewStock: 7}, u)
	case <-time.After(2 * time.Second):
		t.Fatal("no stock update")
	}
}

func TestConnection_SkipsMalformedPayloads(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)
	defer m.Close()

	c, err := m.Open(session())
	require.NoError(t, err)
	waitJoin(t, b)

	b.Push.EmitRaw(`42["notification",`)
	b.Push.Emit("notification", map[string]any{"title": "missing id"})
	b.Push.Emit("receive_message", "not an object")
	b.Push.Emit("notification", map[string]any{
		"_id": "n2", "type": "system", "title": "ok", "message": "ok",
		"createdAt": time.Now().UTC().Format(time.RFC3339),
	})

	select {
	case n := <-c.Notifications():
		assert.Equal(t, "n2", n.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("valid notification not delivered after malformed ones")
	}
	assert.Equal(t, conn.Connected, c.State())
}

func TestConnection_ReconnectsAfterDrop(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)
	defer m.Close()

	c, err := m.Open(session())
	require.NoError(t, err)
	waitJoin(t, b)

	b.Push.DropAll()

	assert.Equal(t, userID, waitJoin(t, b), "rejoins after reconnect")
	waitState(t, c, conn.Connected)
	assert.GreaterOrEqual(t, b.Push.Connects(), 2)
}

func TestConnection_RefusedTokenKeepsRetrying(t *testing.T) {
	b := testutil.NewBackend(t, userID, token)
	m := newManager(b)
	defer m.Close()

	c, err := m.Open(&model.Session{UserID: userID, Token: "stale", Role: model.RoleUser})
	require.NoError(t, err, "network and auth failures are not surfaced by Open")

	time.Sleep(100 * time.Millisecond)
	assert.NotEqual(t, conn.Connected, c.State())
	assert.Equal(t, 0, b.Push.Connects())

	c.Close()
	assert.False(t, c.Alive())
}
