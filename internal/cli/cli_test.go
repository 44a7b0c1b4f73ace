package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agriassist/internal/credential"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/store"
	"github.com/nhle/agriassist/tests/testutil"
)

type harness struct {
	backend    *testutil.Backend
	vault      *credential.Vault
	configPath string
	cachePath  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	b := testutil.NewBackend(t, "u1", "tok")
	b.AddUser("u2", "Green Farm", "farm@example.com")

	dir := t.TempDir()
	h := &harness{
		backend:    b,
		vault:      credential.NewVault(keyring.NewArrayKeyring(nil)),
		configPath: filepath.Join(dir, "config.yaml"),
		cachePath:  filepath.Join(dir, "cache", "cache.db"),
	}

	cfg := fmt.Sprintf(`api:
  base_url: %s
  max_retries: 0
cache:
  enabled: true
  path: %s
log:
  level: error
  format: json
`, b.APIURL(), h.cachePath)
	require.NoError(t, os.WriteFile(h.configPath, []byte(cfg), 0o600))

	return h
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	require.NoError(t, h.vault.SaveSession(&model.Session{
		UserID: "u1", Token: "tok", Role: model.RoleUser, Name: "Ana",
	}))
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stderr bytes.Buffer
	env := &environment{
		openVault: func() (*credential.Vault, error) { return h.vault, nil },
		stderr:    &stderr,
	}
	defer env.close()

	var out bytes.Buffer
	root := newRootCmd(env)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", h.configPath))

	err := root.Execute()
	return out.String(), err
}

func TestLoginWithFlagsStoresSession(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "login", "--email", "u1@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Session User")

	sess, err := h.vault.LoadSession()
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)
	assert.Equal(t, "tok", sess.Token)
	assert.Equal(t, model.RoleUser, sess.Role)
}

func TestLoginRejected(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "login", "--email", "u1@example.com", "--password", "wrong")
	require.Error(t, err)

	_, err = h.vault.LoadSession()
	assert.ErrorIs(t, err, credential.ErrNoSession)
}

func TestCommandsNeedSession(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "notifications", "list")
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestNotificationsList(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	now := time.Now()
	h.backend.AddNotification("n1", "order", "Order shipped", false, now.Add(-time.Hour))
	h.backend.AddNotification("n2", "message", "New message", true, now)

	out, err := h.run(t, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Order shipped")
	assert.Contains(t, out, "New message")
	assert.Contains(t, out, "1 unread of 2")

	cache, err := store.NewSQLiteStore(h.cachePath)
	require.NoError(t, err)
	defer cache.Close()
	cached, err := cache.GetNotifications(t.Context(), "u1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestNotificationsRead(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.AddNotification("n1", "order", "Order shipped", false, time.Now())

	out, err := h.run(t, "notifications", "read", "n1")
	require.NoError(t, err)
	assert.Contains(t, out, "Marked n1 as read")

	n, ok := h.backend.Notification("n1")
	require.True(t, ok)
	assert.Equal(t, true, n["isRead"])

	_, err = h.run(t, "notifications", "read", "missing")
	assert.Error(t, err)
}

func TestNotificationsReadAll(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.AddNotification("n1", "order", "A", false, time.Now())
	h.backend.AddNotification("n2", "system", "B", false, time.Now())

	out, err := h.run(t, "notifications", "read", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "Marked 2 notification(s)")
	assert.Equal(t, 2, h.backend.Calls("PUT /notifications/:id"))
}

func TestNotificationsClear(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.AddNotification("n1", "order", "A", false, time.Now())

	out, err := h.run(t, "notifications", "clear", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
	assert.Equal(t, 0, h.backend.NotificationCount())
}

func TestSend(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	out, err := h.run(t, "send", "u2", "fresh", "tomatoes?")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent srv-1 to u2")
	assert.Equal(t, 1, h.backend.Calls("POST /messages"))

	_, err = h.run(t, "send", "u2", "   ")
	assert.Error(t, err)
	assert.Equal(t, 1, h.backend.Calls("POST /messages"))
}

func TestLogoutForgetsSessionAndCache(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.backend.AddNotification("n1", "order", "A", false, time.Now())
	_, err := h.run(t, "notifications", "list")
	require.NoError(t, err)

	out, err := h.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged out")

	_, err = h.vault.LoadSession()
	assert.ErrorIs(t, err, credential.ErrNoSession)

	cache, err := store.NewSQLiteStore(h.cachePath)
	require.NoError(t, err)
	defer cache.Close()
	cached, err := cache.GetNotifications(t.Context(), "u1")
	require.NoError(t, err)
	assert.Empty(t, cached)

	out, err = h.run(t, "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not logged in")
}
