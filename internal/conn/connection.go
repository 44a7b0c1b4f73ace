package conn

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/tomb.v2"

	"github.com/nhle/agriassist/internal/api"
	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/metrics"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/push"
)

// Event names emitted by the backend.
const (
	EventNotification = "notification"
	EventMessage      = "receive_message"
	EventStock        = "stockUpdated"

	joinEvent   = "join"
	dialTimeout = 30 * time.Second
)

// Connection is one session's push channel. Its event channels are closed
// when the connection terminates, so consumers can range over them.
type Connection struct {
	session model.Session
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	t tomb.Tomb

	notifications chan model.Notification
	messages      chan model.Message
	stock         chan model.StockUpdate
	states        chan State

	mu    sync.Mutex
	state State
}

func newConnection(sess model.Session, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Connection {
	return &Connection{
		session:       sess,
		cfg:           cfg,
		log:           log.With().Str(logging.UserID, sess.UserID).Logger(),
		metrics:       m,
		notifications: make(chan model.Notification, cfg.Buffer),
		messages:      make(chan model.Message, cfg.Buffer),
		stock:         make(chan model.StockUpdate, cfg.Buffer),
		states:        make(chan State, cfg.Buffer),
	}
}

func (c *Connection) start() {
	c.t.Go(c.run)
}

// Notifications yields pushed notification records.
func (c *Connection) Notifications() <-chan model.Notification { return c.notifications }

// Messages yields pushed chat messages.
func (c *Connection) Messages() <-chan model.Message { return c.messages }

// StockUpdates yields pushed stock level changes.
func (c *Connection) StockUpdates() <-chan model.StockUpdate { return c.stock }

// States yields state transitions. Transitions are dropped when nobody
// drains the channel; State always reports the latest value.
func (c *Connection) States() <-chan State { return c.states }

// Session returns the identity the connection is bound to.
func (c *Connection) Session() model.Session { return c.session }

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Alive reports whether the connection has not been closed.
func (c *Connection) Alive() bool {
	return c.t.Alive()
}

// Done is closed once the connection has fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.t.Dead()
}

// Close stops the connection and waits for its goroutines. It is
// idempotent.
func (c *Connection) Close() {
	c.t.Kill(nil)
	_ = c.t.Wait()
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.metrics.ConnectionState(int(s))
	c.log.Debug().Str(logging.State, s.String()).Msg("push state")

	select {
	case c.states <- s:
	default:
	}
}

// run dials, serves and redials with exponential backoff until the
// connection is closed.
func (c *Connection) run() error {
	defer func() {
		c.setState(Disconnected)
		close(c.notifications)
		close(c.messages)
		close(c.stock)
		close(c.states)
	}()

	ctx := c.t.Context(context.Background())

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			c.metrics.Reconnect()
		}
		c.setState(Connecting)

		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		pc, err := push.Dial(dialCtx, push.Options{
			URL:    c.cfg.URL,
			Auth:   map[string]string{"token": c.session.Token},
			Dialer: c.cfg.Dialer,
		})
		cancel()

		if err == nil {
			attempt = 0
			err = c.serve(pc)
		}

		c.setState(Disconnected)

		if !c.t.Alive() {
			return nil
		}

		wait := backoff(attempt, c.cfg.ReconnectMin, c.cfg.ReconnectMax)
		ev := c.log.Warn()
		if errors.Is(err, push.ErrConnectRefused) {
			ev = c.log.Error()
		}
		ev.Err(err).Dur("retry_in", wait).Msg("push channel down")

		select {
		case <-c.t.Dying():
			return nil
		case <-time.After(wait):
		}
	}
}

// serve announces presence and pumps events until the socket fails or the
// connection is closed.
func (c *Connection) serve(pc *push.Conn) error {
	done := make(chan struct{})
	defer close(done)
	defer pc.Close()

	go func() {
		select {
		case <-c.t.Dying():
			pc.Close()
		case <-done:
		}
	}()

	if err := pc.Emit(joinEvent, c.session.UserID); err != nil {
		return fmt.Errorf("joining user room: %w", err)
	}
	c.setState(Connected)

	for {
		ev, err := pc.ReadEvent()
		if err != nil {
			var malformed *push.MalformedError
			if errors.As(err, &malformed) {
				c.metrics.Malformed("frame")
				c.log.Warn().Err(err).Msg("skipping malformed frame")
				continue
			}
			return err
		}

		c.metrics.Event(ev.Name)
		if !c.dispatch(ev) {
			return nil
		}
	}
}

// dispatch decodes one event and hands it to its channel. It returns false
// when the connection is closing.
func (c *Connection) dispatch(ev push.Event) bool {
	switch ev.Name {
	case EventNotification:
		n, err := api.DecodeNotification(ev.Arg(0))
		if err != nil {
			c.skip(ev.Name, err)
			return true
		}
		select {
		case c.notifications <- n:
		case <-c.t.Dying():
			return false
		}

	case EventMessage:
		m, err := api.DecodeMessage(ev.Arg(0))
		if err != nil {
			c.skip(ev.Name, err)
			return true
		}
		select {
		case c.messages <- m:
		case <-c.t.Dying():
			return false
		}

	case EventStock:
		u, err := api.DecodeStockUpdate(ev.Arg(0))
		if err != nil {
			c.skip(ev.Name, err)
			return true
		}
		select {
		case c.stock <- u:
		case <-c.t.Dying():
			return false
		}

	default:
		c.log.Debug().Str(logging.Event, ev.Name).Msg("ignoring event")
	}

	return true
}

func (c *Connection) skip(event string, err error) {
	c.metrics.Malformed(event)
	c.log.Warn().Err(err).Str(logging.Event, event).Msg("skipping malformed payload")
}

// backoff returns min*2^attempt capped at max, with ±20% jitter.
func backoff(attempt int, min, max time.Duration) time.Duration {
	d := min
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	jitter := time.Duration(float64(d) * 0.2 * (2*rand.Float64() - 1))
	return d + jitter
}

// originOf strips the path from an API base URL.
func originOf(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing api base url %q: %w", base, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("api base url %q has no origin", base)
	}
	return u.Scheme + "://" + u.Host, nil
}
