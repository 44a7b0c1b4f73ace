// Package chat groups the session's messages into one conversation per
// counterparty and sends outbound messages.
package chat

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/metrics"
	"github.com/nhle/agriassist/internal/model"
)

type thread struct {
	model.Thread
	ids map[string]struct{}
}

// Aggregator maintains the threads of one session user. It is safe for
// concurrent use.
type Aggregator struct {
	userID  string
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	threads map[string]*thread
	active  string
}

// NewAggregator creates an empty aggregator for userID. m may be nil.
func NewAggregator(userID string, log zerolog.Logger, m *metrics.Metrics) *Aggregator {
	return &Aggregator{
		userID:  userID,
		log:     logging.For(log, "chat").With().Str(logging.UserID, userID).Logger(),
		metrics: m,
		threads: make(map[string]*thread),
	}
}

// UserID returns the session user the threads are relative to.
func (a *Aggregator) UserID() string { return a.userID }

// Load rebuilds every thread from history. The active selection survives.
func (a *Aggregator) Load(history []model.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.threads = make(map[string]*thread)
	for _, m := range history {
		a.applyLocked(m)
	}
	a.publishLocked()
}

// Merge applies every history message not seen yet and returns how many
// were added. Unlike Load it never drops messages already held.
func (a *Aggregator) Merge(history []model.Message) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	added := 0
	for _, m := range history {
		if a.applyLocked(m) {
			added++
		}
	}
	if added > 0 {
		a.publishLocked()
	}
	return added
}

// Apply merges one message and reports whether anything changed. Messages
// that do not involve the session user and ids already present are
// ignored.
func (a *Aggregator) Apply(m model.Message) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := a.applyLocked(m)
	if changed {
		a.publishLocked()
	}
	return changed
}

func (a *Aggregator) applyLocked(m model.Message) bool {
	cp, ok := m.Counterparty(a.userID)
	if !ok {
		a.metrics.ForeignMessage()
		a.log.Debug().Str(logging.ID, m.ID).Msg("ignoring message for another user")
		return false
	}

	t, ok := a.threads[cp.ID]
	if !ok {
		t = &thread{
			Thread: model.Thread{Counterparty: cp},
			ids:    make(map[string]struct{}),
		}
		a.threads[cp.ID] = t
	}

	if _, dup := t.ids[m.ID]; dup {
		a.metrics.Deduplicated()
		return false
	}
	t.ids[m.ID] = struct{}{}

	// Insert after every message at or before m so ties keep arrival order.
	i := sort.Search(len(t.Messages), func(i int) bool {
		return t.Messages[i].CreatedAt.After(m.CreatedAt)
	})
	t.Messages = append(t.Messages, model.Message{})
	copy(t.Messages[i+1:], t.Messages[i:])
	t.Messages[i] = m

	if !m.IsRead && m.SenderID() != a.userID {
		t.UnreadCount++
	}

	if i == len(t.Messages)-1 {
		t.LastMessage = m.Text
		t.LastMessageTime = m.CreatedAt
		if cp.Name != "" {
			t.Counterparty = cp
		}
		if m.Product != nil {
			t.Product = m.Product
		}
	} else if t.Product == nil && m.Product != nil {
		t.Product = m.Product
	}

	return true
}

// SetActive selects the thread shown in the chat view. An empty id clears
// the selection.
func (a *Aggregator) SetActive(counterpartyID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = counterpartyID
}

// Active returns the selected thread. A selected counterparty without
// messages yet yields an empty thread; ok is false only when nothing is
// selected.
func (a *Aggregator) Active() (model.Thread, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active == "" {
		return model.Thread{}, false
	}
	if t, ok := a.threads[a.active]; ok {
		return snapshot(t), true
	}
	return model.Thread{Counterparty: model.Participant{ID: a.active}}, true
}

// Thread returns a copy of the thread with counterpartyID.
func (a *Aggregator) Thread(counterpartyID string) (model.Thread, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.threads[counterpartyID]
	if !ok {
		return model.Thread{}, false
	}
	return snapshot(t), true
}

// Threads returns every thread, most recent conversation first.
func (a *Aggregator) Threads() []model.Thread {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]model.Thread, 0, len(a.threads))
	for _, t := range a.threads {
		out = append(out, snapshot(t))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].LastMessageTime.After(out[j].LastMessageTime)
		}
		return out[i].CounterpartyID() < out[j].CounterpartyID()
	})
	return out
}

// MarkThreadRead marks the thread's inbound messages read locally and
// returns how many changed.
func (a *Aggregator) MarkThreadRead(counterpartyID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.threads[counterpartyID]
	if !ok {
		return 0
	}

	changed := 0
	for i := range t.Messages {
		if !t.Messages[i].IsRead && t.Messages[i].SenderID() != a.userID {
			t.Messages[i].IsRead = true
			changed++
		}
	}
	t.UnreadCount = 0
	if changed > 0 {
		a.publishLocked()
	}
	return changed
}

// TotalUnread sums the unread counts of all threads.
func (a *Aggregator) TotalUnread() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.totalLocked()
}

// Messages returns every message of every thread.
func (a *Aggregator) Messages() []model.Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []model.Message
	for _, t := range a.threads {
		out = append(out, t.Messages...)
	}
	return out
}

func (a *Aggregator) totalLocked() int {
	n := 0
	for _, t := range a.threads {
		n += t.UnreadCount
	}
	return n
}

func (a *Aggregator) publishLocked() {
	a.metrics.UnreadMessages(a.totalLocked())
}

func snapshot(t *thread) model.Thread {
	out := t.Thread
	out.Messages = make([]model.Message, len(t.Messages))
	copy(out.Messages, t.Messages)
	return out
}
