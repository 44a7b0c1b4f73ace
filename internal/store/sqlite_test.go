package store_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/store"
	"github.com/nhle/agriassist/tests/testutil"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func notification(id string, read bool, at time.Time) model.Notification {
	return model.Notification{
		ID: id, Type: model.NotificationOrder, Title: "Order " + id,
		Message: "details", Link: "/orders/" + id, IsRead: read, CreatedAt: at,
	}
}

func notificationIDs(ns []model.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestMigrationsApplied(t *testing.T) {
	s := testutil.NewTestStore(t)

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	ctx := context.Background()

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.UpsertNotification(ctx, "u1", notification("n1", false, t0)))
	require.NoError(t, s.Close())

	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	ns, err := s.GetNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, notificationIDs(ns))
}

func TestNotifications_ReplaceKeepsOrder(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceNotifications(ctx, "u1", []model.Notification{
		notification("b", false, t0), notification("a", true, t0.Add(time.Hour)),
	}))
	require.NoError(t, s.ReplaceNotifications(ctx, "u1", []model.Notification{
		notification("c", false, t0), notification("b", true, t0),
	}))

	ns, err := s.GetNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, notificationIDs(ns))
	assert.True(t, ns[1].IsRead)

	got := ns[0]
	assert.Equal(t, model.NotificationOrder, got.Type)
	assert.Equal(t, "/orders/c", got.Link)
	assert.True(t, got.CreatedAt.Equal(t0))
}

func TestNotifications_UpsertGoesOnTop(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.ReplaceNotifications(ctx, "u1", []model.Notification{
		notification("a", false, t0), notification("b", false, t0),
	}))
	require.NoError(t, s.UpsertNotification(ctx, "u1", notification("p", false, t0)))
	require.NoError(t, s.UpsertNotification(ctx, "u1", notification("b", true, t0)))

	ns, err := s.GetNotifications(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "p", "a"}, notificationIDs(ns))
}

func TestNotifications_ScopedByUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNotification(ctx, "u1", notification("n1", false, t0)))
	require.NoError(t, s.UpsertNotification(ctx, "u2", notification("n1", false, t0)))

	require.NoError(t, s.MarkNotificationRead(ctx, "u1", "n1"))
	require.NoError(t, s.ClearNotifications(ctx, "u2"))

	u1, err := s.GetNotifications(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, u1, 1)
	assert.True(t, u1[0].IsRead)

	u2, err := s.GetNotifications(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, u2)
}

func TestMessages_RoundTrip(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	buyer := model.Participant{ID: "u1", Name: "Buyer", Email: "b@example.com"}
	seller := model.Participant{ID: "u2", Name: "Seller", Email: "s@example.com"}

	later := model.Message{ID: "m2", Sender: buyer, Receiver: seller, Text: "yes", CreatedAt: t0.Add(time.Minute)}
	first := model.Message{
		ID: "m1", Sender: seller, Receiver: buyer, Text: "fresh?", CreatedAt: t0,
		Product: &model.ProductRef{ID: "p1", Name: "Tomatoes"},
	}

	require.NoError(t, s.UpsertMessages(ctx, "u1", []model.Message{later, first}))
	first.IsRead = true
	require.NoError(t, s.UpsertMessages(ctx, "u1", []model.Message{first}))
	require.NoError(t, s.UpsertMessages(ctx, "u1", nil))

	msgs, err := s.GetMessages(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, "m1", msgs[0].ID)
	assert.True(t, msgs[0].IsRead)
	assert.Equal(t, seller, msgs[0].Sender)
	require.NotNil(t, msgs[0].Product)
	assert.Equal(t, model.ProductRef{ID: "p1", Name: "Tomatoes"}, *msgs[0].Product)

	assert.Equal(t, "m2", msgs[1].ID)
	assert.Nil(t, msgs[1].Product)
}

func TestPurgeUser(t *testing.T) {
	s := testutil.NewTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertNotification(ctx, "u1", notification("n1", false, t0)))
	require.NoError(t, s.UpsertMessages(ctx, "u1", []model.Message{{
		ID: "m1", Sender: model.Participant{ID: "u1"}, Receiver: model.Participant{ID: "u2"},
		Text: "x", CreatedAt: t0,
	}}))
	require.NoError(t, s.UpsertNotification(ctx, "u2", notification("n2", false, t0)))

	require.NoError(t, s.PurgeUser(ctx, "u1"))

	ns, _ := s.GetNotifications(ctx, "u1")
	msgs, _ := s.GetMessages(ctx, "u1")
	other, _ := s.GetNotifications(ctx, "u2")
	assert.Empty(t, ns)
	assert.Empty(t, msgs)
	assert.Len(t, other, 1)
}
