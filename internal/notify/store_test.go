package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/agriassist/internal/api"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/notify"
	"github.com/nhle/agriassist/tests/testutil"
)

const (
	userID = "u1"
	token  = "tok-u1"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T, opts ...notify.Option) (*testutil.Backend, *notify.Store) {
	t.Helper()
	b := testutil.NewBackend(t, userID, token)
	client := api.NewClient(b.APIURL(), token)
	return b, notify.New(client, opts...)
}

func ids(ns []model.Notification) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func pushed(id string, read bool) model.Notification {
	return model.Notification{
		ID: id, Type: model.NotificationMessage, Title: id, IsRead: read, CreatedAt: time.Now(),
	}
}

func TestLoadHistory(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "older", false, base)
	b.AddNotification("n2", "system", "newer", true, base.Add(time.Hour))
	b.AddNotification("n3", "success", "newest", false, base.Add(2*time.Hour))

	require.NoError(t, s.LoadHistory(context.Background()))

	assert.Equal(t, []string{"n3", "n2", "n1"}, ids(s.List()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestLoadHistory_FailureKeepsState(t *testing.T) {
	b, s := setup(t)
	s.OnPushed(pushed("p1", false))
	b.FailNext("GET /notifications", 1)

	err := s.LoadHistory(context.Background())
	require.Error(t, err)

	var apiErr *api.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"p1"}, ids(s.List()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestOnPushed_PrependsAndCounts(t *testing.T) {
	_, s := setup(t)

	s.OnPushed(pushed("a", false))
	s.OnPushed(pushed("b", true))
	s.OnPushed(pushed("c", false))

	assert.Equal(t, []string{"c", "b", "a"}, ids(s.List()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestOnPushed_RepeatedIDStaysUnique(t *testing.T) {
	_, s := setup(t)

	s.OnPushed(pushed("a", false))
	s.OnPushed(pushed("b", false))
	s.OnPushed(pushed("a", true))

	assert.Equal(t, []string{"a", "b"}, ids(s.List()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestMarkRead_DecrementsOnce(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "o", false, base)
	b.AddNotification("n2", "order", "o", true, base.Add(time.Minute))
	require.NoError(t, s.LoadHistory(context.Background()))
	require.Equal(t, 1, s.UnreadCount())

	assert.True(t, s.MarkRead(context.Background(), "n1"))
	assert.Equal(t, 0, s.UnreadCount())

	assert.False(t, s.MarkRead(context.Background(), "n1"), "already read")
	assert.False(t, s.MarkRead(context.Background(), "n2"), "read in history")
	assert.False(t, s.MarkRead(context.Background(), "missing"))
	assert.Equal(t, 0, s.UnreadCount())

	s.Wait()
	assert.Equal(t, 1, b.Calls("PUT /notifications/:id"))
	n, ok := b.Notification("n1")
	require.True(t, ok)
	assert.Equal(t, true, n["isRead"])
}

func TestMarkRead_FailureIsNotRolledBack(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "o", false, base)
	require.NoError(t, s.LoadHistory(context.Background()))
	b.FailNext("PUT /notifications/:id", 1)

	assert.True(t, s.MarkRead(context.Background(), "n1"))
	s.Wait()

	n, ok := s.Get("n1")
	require.True(t, ok)
	assert.True(t, n.IsRead)
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 1, b.Calls("PUT /notifications/:id"))
}

func TestMarkRead_OutlivesCallerContext(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "o", false, base)
	require.NoError(t, s.LoadHistory(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	s.MarkRead(ctx, "n1")
	cancel()
	s.Wait()

	n, _ := b.Notification("n1")
	assert.Equal(t, true, n["isRead"])
}

func TestMarkAllRead(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "o", false, base)
	b.AddNotification("n2", "order", "o", false, base.Add(time.Minute))
	b.AddNotification("n3", "order", "o", true, base.Add(2*time.Minute))
	require.NoError(t, s.LoadHistory(context.Background()))

	assert.Equal(t, 2, s.MarkAllRead(context.Background()))
	assert.Equal(t, 0, s.UnreadCount())

	s.Wait()
	assert.Equal(t, 2, b.Calls("PUT /notifications/:id"))
}

func TestClearAll(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "o", false, base)
	require.NoError(t, s.LoadHistory(context.Background()))

	require.NoError(t, s.ClearAll(context.Background()))

	assert.Empty(t, s.List())
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 0, b.NotificationCount())
}

func TestClearAll_FailureLeavesEverything(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "o", false, base)
	b.AddNotification("n2", "order", "o", true, base.Add(time.Minute))
	require.NoError(t, s.LoadHistory(context.Background()))
	before := s.List()
	b.FailNext("DELETE /notifications", 1)

	err := s.ClearAll(context.Background())

	require.Error(t, err)
	assert.Equal(t, before, s.List())
	assert.Equal(t, 1, s.UnreadCount())
	assert.Equal(t, 2, b.NotificationCount())
}

// raceReload pushes p1 while a history request is held open and returns the
// store after the reload completes.
func raceReload(t *testing.T, policy model.HistoryPolicy) *notify.Store {
	t.Helper()
	b, s := setup(t, notify.WithPolicy(policy))
	b.AddNotification("n1", "order", "history", false, base)

	blocked, release := b.HoldNotificationList()
	done := make(chan error, 1)
	go func() { done <- s.LoadHistory(context.Background()) }()

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("history request never reached the server")
	}
	s.OnPushed(pushed("p1", false))
	release()

	require.NoError(t, <-done)
	return s
}

func TestLoadHistory_MergeKeepsRacingPush(t *testing.T) {
	s := raceReload(t, model.HistoryMerge)

	assert.Equal(t, []string{"p1", "n1"}, ids(s.List()))
	assert.Equal(t, 2, s.UnreadCount())
}

func TestLoadHistory_ReplaceDropsRacingPush(t *testing.T) {
	s := raceReload(t, model.HistoryReplace)

	assert.Equal(t, []string{"n1"}, ids(s.List()))
	assert.Equal(t, 1, s.UnreadCount())
}

func TestLoadHistory_MergeDropsPushesBeforeReload(t *testing.T) {
	b, s := setup(t)
	b.AddNotification("n1", "order", "history", false, base)
	s.OnPushed(pushed("stale", false))

	require.NoError(t, s.LoadHistory(context.Background()))

	assert.Equal(t, []string{"n1"}, ids(s.List()), "the response is authoritative for earlier pushes")
}

func TestLoadHistory_KeepsReadMarkedDuringReload(t *testing.T) {
	for _, policy := range []model.HistoryPolicy{model.HistoryMerge, model.HistoryReplace} {
		t.Run(string(policy), func(t *testing.T) {
			b, s := setup(t, notify.WithPolicy(policy))
			b.AddNotification("n1", "order", "history", false, base)
			b.AddNotification("n2", "order", "other", false, base.Add(time.Minute))
			require.NoError(t, s.LoadHistory(context.Background()))
			b.FailNext("PUT /notifications/:id", 1)

			blocked, release := b.HoldNotificationList()
			done := make(chan error, 1)
			go func() { done <- s.LoadHistory(context.Background()) }()

			select {
			case <-blocked:
			case <-time.After(2 * time.Second):
				t.Fatal("history request never reached the server")
			}
			require.True(t, s.MarkRead(context.Background(), "n1"))
			s.Wait()
			assert.Equal(t, 1, s.UnreadCount())
			release()
			require.NoError(t, <-done)

			n, ok := s.Get("n1")
			require.True(t, ok)
			assert.True(t, n.IsRead)
			assert.Equal(t, 1, s.UnreadCount())

			n2, _ := s.Get("n2")
			assert.False(t, n2.IsRead)
		})
	}
}

func TestUnreadCountMatchesRecords(t *testing.T) {
	b, s := setup(t)
	for i, id := range []string{"h1", "h2", "h3", "h4"} {
		b.AddNotification(id, "order", id, i%2 == 0, base.Add(time.Duration(i)*time.Minute))
	}
	require.NoError(t, s.LoadHistory(context.Background()))

	s.OnPushed(pushed("p1", false))
	s.OnPushed(pushed("h1", false))
	s.MarkRead(context.Background(), "h2")
	s.OnPushed(pushed("p2", true))
	s.MarkAllRead(context.Background())
	s.OnPushed(pushed("p3", false))
	s.Wait()

	count := 0
	for _, n := range s.List() {
		if !n.IsRead {
			count++
		}
	}
	assert.Equal(t, count, s.UnreadCount())
	assert.Equal(t, 1, count)
}

func TestWarm(t *testing.T) {
	_, s := setup(t)
	s.Warm([]model.Notification{pushed("c1", false), pushed("c2", true)})
	assert.Equal(t, 1, s.UnreadCount())

	s.Warm([]model.Notification{pushed("other", false)})
	assert.Equal(t, []string{"c1", "c2"}, ids(s.List()), "warm only seeds an empty store")
}

type recordingCache struct {
	mu    sync.Mutex
	calls []string
}

func (c *recordingCache) record(s string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, s)
	return nil
}

func (c *recordingCache) ReplaceNotifications(context.Context, string, []model.Notification) error {
	return c.record("replace")
}

func (c *recordingCache) UpsertNotification(_ context.Context, _ string, n model.Notification) error {
	return c.record("upsert " + n.ID)
}

func (c *recordingCache) MarkNotificationRead(_ context.Context, _, id string) error {
	return c.record("read " + id)
}

func (c *recordingCache) ClearNotifications(context.Context, string) error {
	return c.record("clear")
}

func TestCacheWriteThrough(t *testing.T) {
	cache := &recordingCache{}
	b, s := setup(t, notify.WithCache(userID, cache))
	b.AddNotification("n1", "order", "o", false, base)

	require.NoError(t, s.LoadHistory(context.Background()))
	s.OnPushed(pushed("p1", false))
	s.MarkRead(context.Background(), "n1")
	require.NoError(t, s.ClearAll(context.Background()))
	s.Wait()

	assert.Equal(t, []string{"replace", "upsert p1", "read n1", "clear"}, cache.calls)
}
