package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/agriassist/internal/api"
	"github.com/nhle/agriassist/internal/chat"
	"github.com/nhle/agriassist/internal/conn"
	"github.com/nhle/agriassist/internal/credential"
	"github.com/nhle/agriassist/internal/logging"
	"github.com/nhle/agriassist/internal/metrics"
	"github.com/nhle/agriassist/internal/model"
	"github.com/nhle/agriassist/internal/notify"
	"github.com/nhle/agriassist/internal/store"
	appsync "github.com/nhle/agriassist/internal/sync"
)

// ErrNotLoggedIn is returned by commands that need a saved session.
var ErrNotLoggedIn = errors.New("not logged in, run `agriassist login` first")

type options struct {
	configPath  string
	logLevel    string
	metricsAddr string
}

// environment holds what every command shares: configuration, logger,
// metrics and the credential vault.
type environment struct {
	opts      options
	openVault func() (*credential.Vault, error)
	stderr    io.Writer

	cfg       *model.AppConfig
	log       zerolog.Logger
	logCloser io.Closer
	metrics   *metrics.Metrics
	reporter  *metrics.Reporter
}

func (e *environment) setup(cmd *cobra.Command) error {
	cfg, err := model.LoadConfig(e.opts.configPath)
	if err != nil {
		return err
	}
	if e.opts.logLevel != "" {
		cfg.Log.Level = e.opts.logLevel
	}
	if e.opts.metricsAddr != "" {
		cfg.Metrics.Addr = e.opts.metricsAddr
	}
	// The interactive UI owns the terminal, so it logs to a file.
	if isTUI(cmd) && cfg.Log.File == "" {
		cfg.Log.File = filepath.Join(model.ConfigDir(), "agriassist.log")
	}
	e.cfg = cfg

	log, closer, err := logging.New(cfg.Log, e.stderr)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	e.log, e.logCloser = log, closer

	if cfg.Metrics.Addr != "" {
		reg := metrics.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		r, err := metrics.Serve(cfg.Metrics.Addr, reg, e.log)
		if err != nil {
			return fmt.Errorf("serving metrics: %w", err)
		}
		e.metrics, e.reporter = m, r
		e.log.Info().Str("addr", r.Addr()).Msg("serving metrics")
	}

	return nil
}

func isTUI(cmd *cobra.Command) bool {
	return cmd.Name() == "tui" || !cmd.HasParent()
}

func (e *environment) close() {
	if e.reporter != nil {
		e.reporter.Shutdown()
	}
	if e.logCloser != nil {
		e.logCloser.Close()
	}
}

// client returns a REST client authenticated with token.
func (e *environment) client(token string) *api.Client {
	return api.NewClient(
		e.cfg.API.BaseURL,
		token,
		api.WithTimeout(time.Duration(e.cfg.API.TimeoutSec)*time.Second),
		api.WithMaxRetries(e.cfg.API.MaxRetries),
		api.WithLogger(logging.For(e.log, "api")),
		api.WithMetrics(e.metrics),
	)
}

func (e *environment) loadSession() (*credential.Vault, *model.Session, error) {
	vault, err := e.openVault()
	if err != nil {
		return nil, nil, err
	}
	sess, err := vault.LoadSession()
	if errors.Is(err, credential.ErrNoSession) {
		return vault, nil, ErrNotLoggedIn
	}
	if err != nil {
		return vault, nil, err
	}
	return vault, sess, nil
}

// openCache opens the local snapshot, or returns nil when it is disabled
// or unusable. The cache is an optimisation, so failures only warn.
func (e *environment) openCache() *store.SQLiteStore {
	if !e.cfg.Cache.Enabled {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.cfg.Cache.Path), 0o755); err != nil {
		e.log.Warn().Err(err).Msg("creating cache directory, continuing without cache")
		return nil
	}
	c, err := store.NewSQLiteStore(e.cfg.Cache.Path)
	if err != nil {
		e.log.Warn().Err(err).Str("path", e.cfg.Cache.Path).Msg("opening cache, continuing without cache")
		return nil
	}
	return c
}

// session is the set of components built for one logged-in user.
type session struct {
	sess       *model.Session
	client     *api.Client
	cache      *store.SQLiteStore
	notes      *notify.Store
	agg        *chat.Aggregator
	dispatcher *chat.Dispatcher
	manager    *conn.Manager
	syncer     *appsync.Syncer
}

// openSession builds the components for the saved session. withPush also
// opens the push connection and the synchroniser draining it.
func (e *environment) openSession(withPush bool) (*session, error) {
	_, sess, err := e.loadSession()
	if err != nil {
		return nil, err
	}

	s := &session{
		sess:   sess,
		client: e.client(sess.Token),
		cache:  e.openCache(),
	}

	noteOpts := []notify.Option{
		notify.WithPolicy(e.cfg.Notifications.HistoryPolicy),
		notify.WithLogger(e.log),
		notify.WithMetrics(e.metrics),
	}
	if s.cache != nil {
		noteOpts = append(noteOpts, notify.WithCache(sess.UserID, s.cache))
	}
	s.notes = notify.New(s.client, noteOpts...)
	s.agg = chat.NewAggregator(sess.UserID, e.log, e.metrics)
	s.dispatcher = chat.NewDispatcher(s.client, s.agg, e.log)

	if !withPush {
		return s, nil
	}

	cc, err := conn.ConfigFrom(e.cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.manager = conn.NewManager(cc, e.log, e.metrics)
	c, err := s.manager.Open(sess)
	if err != nil {
		s.Close()
		return nil, err
	}

	syncOpts := []appsync.Option{
		appsync.WithConfig(e.cfg.Sync),
		appsync.WithMessagePolicy(e.cfg.Notifications.HistoryPolicy),
		appsync.WithLogger(e.log),
		appsync.WithMetrics(e.metrics),
	}
	if s.cache != nil {
		syncOpts = append(syncOpts, appsync.WithCache(s.cache))
	}
	s.syncer = appsync.New(c, s.notes, s.agg, s.client, syncOpts...)

	return s, nil
}

// Close tears the session down: sync first, then the connection, then
// pending writes and the cache.
func (s *session) Close() {
	if s.syncer != nil {
		s.syncer.Stop()
	}
	if s.manager != nil {
		s.manager.Close()
	}
	s.notes.Wait()
	if s.cache != nil {
		s.cache.Close()
	}
}
