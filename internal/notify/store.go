// Package notify keeps the session's notification collection: REST history
// merged with pushed records, newest first, with a running unread count.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/metrics"
	"github.com/nhle/agriassist/internal/model"
)

// API is the subset of the REST client the store needs.
type API interface {
	ListNotifications(ctx context.Context) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	ClearNotifications(ctx context.Context) error
}

// Cache persists a snapshot of the collection. Failures are logged and
// never affect the in-memory state.
type Cache interface {
	ReplaceNotifications(ctx context.Context, userID string, ns []model.Notification) error
	UpsertNotification(ctx context.Context, userID string, n model.Notification) error
	MarkNotificationRead(ctx context.Context, userID, id string) error
	ClearNotifications(ctx context.Context, userID string) error
}

const cacheTimeout = 5 * time.Second

// Option configures a Store.
type Option func(*Store)

// WithPolicy selects how history reloads combine with concurrent pushes.
func WithPolicy(p model.HistoryPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithCache writes every change through to c under userID.
func WithCache(userID string, c Cache) Option {
	return func(s *Store) {
		s.userID = userID
		s.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = logging.For(log, "notify") }
}

// WithMetrics records unread gauges and dedup hits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Store is safe for concurrent use.
type Store struct {
	api     API
	policy  model.HistoryPolicy
	userID  string
	cache   Cache
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	items  []model.Notification // newest first
	unread int

	// pushSeq numbers pushes; pushedAt remembers the sequence of each
	// pushed id so a reload can tell which pushes raced with it.
	pushSeq  uint64
	pushedAt map[string]uint64

	pending sync.WaitGroup
}

// New creates an empty store.
func New(api API, opts ...Option) *Store {
	s := &Store{
		api:      api,
		policy:   model.HistoryMerge,
		log:      zerolog.Nop(),
		pushedAt: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Warm seeds the collection from a cached snapshot. It is a no-op once the
// store holds records.
func (s *Store) Warm(ns []model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) > 0 {
		return
	}
	s.setLocked(ns)
}

// LoadHistory fetches the full history. On failure the collection is left
// as it was and the error is logged and returned.
//
// Under the merge policy, records pushed while the request was in flight
// and missing from the response are kept on top; under replace the
// response wins outright. Under both, a record already read locally stays
// read even when the response predates its confirmation.
func (s *Store) LoadHistory(ctx context.Context) error {
	s.mu.Lock()
	startSeq := s.pushSeq
	s.mu.Unlock()

	ns, err := s.api.ListNotifications(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("loading notification history")
		return fmt.Errorf("loading notification history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := ns
	if s.policy == model.HistoryMerge {
		inResponse := make(map[string]struct{}, len(ns))
		for _, n := range ns {
			inResponse[n.ID] = struct{}{}
		}

		var raced []model.Notification
		for _, n := range s.items {
			if s.pushedAt[n.ID] <= startSeq {
				continue
			}
			if _, ok := inResponse[n.ID]; !ok {
				raced = append(raced, n)
			}
		}
		if len(raced) > 0 {
			s.log.Debug().Int("count", len(raced)).Msg("keeping pushes that raced the reload")
			next = append(raced, ns...)
		}
	}

	for id, seq := range s.pushedAt {
		if seq <= startSeq {
			delete(s.pushedAt, id)
		}
	}

	s.keepLocalReadsLocked(next)
	s.setLocked(next)
	s.persist(func(ctx context.Context, c Cache) error { return c.ReplaceNotifications(ctx, s.userID, s.items) })

	return nil
}

// keepLocalReadsLocked marks read every record of ns that is read in the
// current collection.
func (s *Store) keepLocalReadsLocked(ns []model.Notification) {
	read := make(map[string]struct{})
	for _, n := range s.items {
		if n.IsRead {
			read[n.ID] = struct{}{}
		}
	}
	if len(read) == 0 {
		return
	}

	kept := 0
	for i := range ns {
		if _, ok := read[ns[i].ID]; ok && !ns[i].IsRead {
			ns[i].IsRead = true
			kept++
		}
	}
	if kept > 0 {
		s.log.Debug().Int("count", kept).Msg("keeping local reads over stale history")
	}
}

// setLocked replaces the collection, dropping repeated ids, and recounts.
func (s *Store) setLocked(ns []model.Notification) {
	seen := make(map[string]struct{}, len(ns))
	items := make([]model.Notification, 0, len(ns))
	unread := 0
	for _, n := range ns {
		if _, dup := seen[n.ID]; dup {
			continue
		}
		seen[n.ID] = struct{}{}
		items = append(items, n)
		if !n.IsRead {
			unread++
		}
	}
	s.items = items
	s.unread = unread
	s.metrics.UnreadNotifications(unread)
}

// OnPushed prepends a pushed record. A record whose id is already present
// replaces the old entry and moves to the top.
func (s *Store) OnPushed(n model.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(n.ID); i >= 0 {
		if !s.items[i].IsRead {
			s.unread--
		}
		s.items = append(s.items[:i], s.items[i+1:]...)
		s.metrics.Deduplicated()
	}

	s.items = append([]model.Notification{n}, s.items...)
	if !n.IsRead {
		s.unread++
	}

	s.pushSeq++
	s.pushedAt[n.ID] = s.pushSeq

	s.metrics.UnreadNotifications(s.unread)
	s.persist(func(ctx context.Context, c Cache) error { return c.UpsertNotification(ctx, s.userID, n) })
}

// MarkRead flips the record to read immediately and confirms with the
// backend in the background. A failed confirmation is logged and the local
// state is kept. It reports whether the record was found unread.
func (s *Store) MarkRead(ctx context.Context, id string) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 || s.items[i].IsRead {
		s.mu.Unlock()
		return false
	}
	s.items[i].IsRead = true
	s.unread--
	s.metrics.UnreadNotifications(s.unread)
	s.persist(func(ctx context.Context, c Cache) error { return c.MarkNotificationRead(ctx, s.userID, id) })
	s.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.api.MarkNotificationRead(ctx, id); err != nil {
			s.log.Warn().Err(err).Str(logging.ID, id).Msg("confirming notification read")
		}
	}()

	return true
}

// MarkAllRead marks every unread record read and returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context) int {
	var ids []string
	s.mu.Lock()
	for _, n := range s.items {
		if !n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	s.mu.Unlock()

	changed := 0
	for _, id := range ids {
		if s.MarkRead(ctx, id) {
			changed++
		}
	}
	return changed
}

// ClearAll deletes every notification on the backend and, only on success,
// empties the collection.
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.api.ClearNotifications(ctx); err != nil {
		s.log.Error().Err(err).Msg("clearing notifications")
		return fmt.Errorf("clearing notifications: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.unread = 0
	clear(s.pushedAt)
	s.metrics.UnreadNotifications(0)
	s.persist(func(ctx context.Context, c Cache) error { return c.ClearNotifications(ctx, s.userID) })

	return nil
}

// UnreadCount returns the number of unread records.
func (s *Store) UnreadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Notification, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (model.Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i], true
	}
	return model.Notification{}, false
}

// Wait blocks until every background read confirmation has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

func (s *Store) indexLocked(id string) int {
	for i, n := range s.items {
		if n.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persist(fn func(context.Context, Cache) error) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheTimeout)
	defer cancel()
	if err := fn(ctx, s.cache); err != nil {
		s.log.Warn().Err(err).Msg("updating notification cache")
	}
}
