// Package conn owns the session's push-channel connection: at most one per
// Manager, opened on login and closed on logout or identity change.
package conn

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/metrics"
	"github.com/nhle/agriassist/internal/model"
)

// Config configures the push connections a Manager opens.
type Config struct {
	// URL is the push origin, e.g. https://agriassist.example.com.
	URL string

	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// Buffer is the capacity of each event channel.
	Buffer int

	// Dialer overrides the websocket dialer (tests, proxies).
	Dialer *websocket.Dialer
}

// ConfigFrom builds a Config from the application settings. When no push
// URL is configured the API base URL's origin is used.
func ConfigFrom(app *model.AppConfig) (Config, error) {
	origin := app.Push.URL
	if origin == "" {
		var err error
		origin, err = originOf(app.API.BaseURL)
		if err != nil {
			return Config{}, err
		}
	}

	return Config{
		URL:          origin,
		ReconnectMin: time.Duration(app.Push.ReconnectMinMS) * time.Millisecond,
		ReconnectMax: time.Duration(app.Push.ReconnectMaxMS) * time.Millisecond,
		Buffer:       app.Push.Buffer,
	}, nil
}

// Manager guarantees at most one open Connection.
type Manager struct {
	cfg     Config
	log     zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	current *Connection
}

// NewManager creates a Manager. m may be nil.
func NewManager(cfg Config, log zerolog.Logger, m *metrics.Metrics) *Manager {
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = 500 * time.Millisecond
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	return &Manager{
		cfg:     cfg,
		log:     logging.For(log, "conn"),
		metrics: m,
	}
}

// Open starts a connection for sess. Any connection for a different
// session is closed first; reopening the same live session returns the
// existing connection. Network problems never fail Open: the connection
// keeps retrying in the background.
func (m *Manager) Open(sess *model.Session) (*Connection, error) {
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("opening push connection: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		if m.current.Alive() && m.current.session.Same(sess) {
			return m.current, nil
		}
		m.current.Close()
		m.current = nil
	}

	c := newConnection(*sess, m.cfg, m.log, m.metrics)
	c.start()
	m.current = c

	return c, nil
}

// Close tears down the current connection. It is a no-op when nothing is
// open.
func (m *Manager) Close() {
	m.mu.Lock()
	c := m.current
	m.current = nil
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
}

// Current returns the open connection, or nil.
func (m *Manager) Current() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
