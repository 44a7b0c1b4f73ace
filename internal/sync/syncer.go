// Package sync keeps a session's notification store and conversation
// aggregator current: it warms them from the local cache, loads REST
// history, drains the push connection and reloads history when the
// connection comes back.
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nhle/agriassist/internal/api"
	"github.com/nhle/agriassist/internal/chat"
	"github.com/nhle/agriassist/internal/conn"
	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/metrics"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/notify"
)

// SyncState represents the current state of history synchronisation.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

// SyncStatus holds the last known history sync outcome.
type SyncStatus struct {
	State    SyncState
	LastSync time.Time
	Error    error
}

// Triggers name why a history load ran.
const (
	TriggerInitial   = "initial"
	TriggerReconnect = "reconnect"
	TriggerPoll      = "poll"
	TriggerRefresh   = "refresh"
)

// ChangeKind says what a ResultMsg reports.
type ChangeKind int

const (
	NotificationPushed ChangeKind = iota
	MessagePushed
	ConnectionChanged
	HistoryLoaded
)

func (k ChangeKind) String() string {
	switch k {
	case NotificationPushed:
		return "notification"
	case MessagePushed:
		return "message"
	case ConnectionChanged:
		return "connection"
	case HistoryLoaded:
		return "history"
	default:
		return "unknown"
	}
}

// ResultMsg is a tea.Msg sent whenever synced state changes.
type ResultMsg struct {
	Kind    ChangeKind
	Trigger string

	Notification *model.Notification
	Message      *model.Message
	State        conn.State

	// Error is set when a history load failed; AuthError marks an expired
	// or revoked session.
	Error     error
	AuthError bool
}

// Events is the push surface of a connection.
type Events interface {
	Notifications() <-chan model.Notification
	Messages() <-chan model.Message
	StockUpdates() <-chan model.StockUpdate
	States() <-chan conn.State
}

// MessageLister loads message history.
type MessageLister interface {
	ListMessages(ctx context.Context) ([]model.Message, error)
}

// Cache is the snapshot the syncer warms from and writes messages to.
// Notifications are written through by the notification store itself.
type Cache interface {
	GetNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	GetMessages(ctx context.Context, userID string) ([]model.Message, error)
	UpsertMessages(ctx context.Context, userID string, msgs []model.Message) error
}

// fetchTimeout is the maximum time allowed for a single history load.
const fetchTimeout = 30 * time.Second

// Option configures a Syncer.
type Option func(*Syncer)

// WithConfig applies poll and resync settings.
func WithConfig(cfg model.SyncConfig) Option {
	return func(s *Syncer) { s.cfg = cfg }
}

// WithMessagePolicy selects whether message reloads rebuild the threads
// or merge into them.
func WithMessagePolicy(p model.HistoryPolicy) Option {
	return func(s *Syncer) { s.policy = p }
}

// WithCache warms from and writes through to c.
func WithCache(c Cache) Option {
	return func(s *Syncer) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Syncer) { s.log = logging.For(log, "sync") }
}

// WithMetrics records history loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Syncer) { s.metrics = m }
}

// Syncer is the single consumer of one connection's events.
type Syncer struct {
	userID   string
	events   Events
	notes    *notify.Store
	agg      *chat.Aggregator
	messages MessageLister
	cache    Cache
	cfg      model.SyncConfig
	policy   model.HistoryPolicy
	log      zerolog.Logger
	metrics  *metrics.Metrics
	limiter  *rate.Limiter

	resultCh  chan ResultMsg
	triggerCh chan string
	stockCh   chan model.StockUpdate
	stopCh    chan struct{}
	wg        gosync.WaitGroup

	mu            gosync.Mutex
	running       bool
	stopped       bool
	reloading     bool
	resyncPending bool
	status        SyncStatus
}

// New creates a Syncer for the aggregator's session user.
func New(
	events Events,
	notes *notify.Store,
	agg *chat.Aggregator,
	messages MessageLister,
	opts ...Option,
) *Syncer {
	s := &Syncer{
		userID:    agg.UserID(),
		events:    events,
		notes:     notes,
		agg:       agg,
		messages:  messages,
		policy:    model.HistoryMerge,
		log:       zerolog.Nop(),
		resultCh:  make(chan ResultMsg, 64),
		triggerCh: make(chan string, 4),
		stockCh:   make(chan model.StockUpdate, 16),
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	limit := rate.Inf
	if s.cfg.ResyncMinIntervalSec > 0 {
		limit = rate.Every(time.Duration(s.cfg.ResyncMinIntervalSec) * time.Second)
	}
	s.limiter = rate.NewLimiter(limit, 1)

	return s
}

// Start warms the stores, starts the background loop and returns a
// command that delivers the next ResultMsg.
func (s *Syncer) Start() tea.Cmd {
	s.mu.Lock()
	if s.running || s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.mu.Unlock()

	s.warm()

	s.wg.Add(1)
	go s.run()

	return s.WaitForNextResult()
}

// Stop halts the loop and waits for in-flight work.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

// Refresh requests an immediate history reload.
func (s *Syncer) Refresh() tea.Cmd {
	select {
	case s.triggerCh <- TriggerRefresh:
	default:
	}
	return nil
}

// Results exposes the result channel to non-TUI consumers.
func (s *Syncer) Results() <-chan ResultMsg {
	return s.resultCh
}

// StockUpdates yields pushed stock changes for the catalog view. Updates
// are dropped when nobody reads them.
func (s *Syncer) StockUpdates() <-chan model.StockUpdate {
	return s.stockCh
}

// Status returns the last history sync outcome.
func (s *Syncer) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// WaitForNextResult returns a tea.Cmd that waits for the next result.
// It should be issued again after each ResultMsg is handled.
func (s *Syncer) WaitForNextResult() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-s.resultCh:
			return msg
		case <-s.stopCh:
			return nil
		}
	}
}

func (s *Syncer) warm() {
	if s.cache == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if ns, err := s.cache.GetNotifications(ctx, s.userID); err != nil {
		s.log.Warn().Err(err).Msg("reading cached notifications")
	} else {
		s.notes.Warm(ns)
	}

	if msgs, err := s.cache.GetMessages(ctx, s.userID); err != nil {
		s.log.Warn().Err(err).Msg("reading cached messages")
	} else if len(msgs) > 0 {
		s.agg.Merge(msgs)
	}
}

// run drains the connection and schedules history loads until stopped.
func (s *Syncer) run() {
	defer s.wg.Done()

	s.startReload(TriggerInitial)

	var tick <-chan time.Time
	if s.cfg.PollIntervalSec > 0 {
		ticker := time.NewTicker(time.Duration(s.cfg.PollIntervalSec) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	notes := s.events.Notifications()
	msgs := s.events.Messages()
	stock := s.events.StockUpdates()
	states := s.events.States()
	connectedBefore := false

	for {
		select {
		case <-s.stopCh:
			return

		case n, ok := <-notes:
			if !ok {
				notes = nil
				continue
			}
			s.notes.OnPushed(n)
			s.sendResult(ResultMsg{Kind: NotificationPushed, Notification: &n})

		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				continue
			}
			if s.agg.Apply(m) {
				s.persistMessages([]model.Message{m})
				s.sendResult(ResultMsg{Kind: MessagePushed, Message: &m})
			}

		case u, ok := <-stock:
			if !ok {
				stock = nil
				continue
			}
			select {
			case s.stockCh <- u:
			default:
			}

		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			s.sendResult(ResultMsg{Kind: ConnectionChanged, State: st})
			if st != conn.Connected {
				continue
			}
			if connectedBefore && s.cfg.ResyncOnReconnect {
				s.resyncAfterReconnect()
			}
			connectedBefore = true

		case <-tick:
			s.startReload(TriggerPoll)

		case trigger := <-s.triggerCh:
			s.startReload(trigger)
		}
	}
}

// resyncAfterReconnect reloads history once the connection is back. A
// reconnect during a running load queues one more load, since the running
// one may have started before the outage ended.
func (s *Syncer) resyncAfterReconnect() {
	s.mu.Lock()
	if s.reloading {
		s.resyncPending = true
		s.mu.Unlock()
		s.log.Debug().Msg("reconnect resync queued behind running load")
		return
	}
	s.mu.Unlock()

	if !s.limiter.Allow() {
		s.log.Debug().Msg("reconnect resync throttled")
		return
	}
	s.startReload(TriggerReconnect)
}

// startReload loads history in the background so pushes keep flowing
// while the requests are in flight. Overlapping reloads are skipped.
func (s *Syncer) startReload(trigger string) {
	s.mu.Lock()
	if s.reloading {
		s.mu.Unlock()
		s.log.Debug().Str("trigger", trigger).Msg("history load already running")
		return
	}
	s.reloading = true
	s.status.State = SyncRunning
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.reload(trigger)
	}()
}

func (s *Syncer) reload(trigger string) {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	go func() {
		select {
		case <-s.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.metrics.HistoryLoad(trigger)
	s.log.Debug().Str("trigger", trigger).Msg("loading history")

	notesErr := s.notes.LoadHistory(ctx)

	msgs, msgsErr := s.messages.ListMessages(ctx)
	if msgsErr != nil {
		s.log.Warn().Err(msgsErr).Msg("loading message history")
	} else {
		if s.policy == model.HistoryReplace {
			s.agg.Load(msgs)
		} else {
			s.agg.Merge(msgs)
		}
		s.persistMessages(s.agg.Messages())
	}

	err := errors.Join(notesErr, msgsErr)

	s.mu.Lock()
	s.reloading = false
	pending := s.resyncPending
	s.resyncPending = false
	if err != nil {
		s.status.State = SyncError
		s.status.Error = err
	} else {
		s.status = SyncStatus{State: SyncIdle, LastSync: time.Now()}
	}
	s.mu.Unlock()

	s.sendResult(ResultMsg{
		Kind:      HistoryLoaded,
		Trigger:   trigger,
		Error:     err,
		AuthError: api.IsAuthError(err),
	})

	if pending {
		select {
		case s.triggerCh <- TriggerReconnect:
		case <-s.stopCh:
		}
	}
}

func (s *Syncer) persistMessages(msgs []model.Message) {
	if s.cache == nil || len(msgs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	if err := s.cache.UpsertMessages(ctx, s.userID, msgs); err != nil {
		s.log.Warn().Err(err).Msg("updating message cache")
	}
}

// sendResult sends a ResultMsg without blocking.
func (s *Syncer) sendResult(msg ResultMsg) {
	select {
	case s.resultCh <- msg:
	default:
		// Drop if channel is full to avoid blocking the syncer
	}
}
