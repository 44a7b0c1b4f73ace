package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/agriassist/internal/model"
)

// logger fields
const (
	Component = "component"
	UserID    = "user_id"
	Event     = "event"
	ID        = "id"
	State     = "state"
)

// New builds the application logger from cfg. The returned closer releases
// the log file when cfg.File is set and is a no-op otherwise.
func New(cfg model.LogConfig, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out := stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("opening log file %s: %w", cfg.File, err)
		}
		out = f
		closer = f
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.Kitchen,
			NoColor:    cfg.File != "",
		}
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), closer, nil
}

// For returns a child logger tagged with the component name.
func For(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str(Component, component).Logger()
}

func parseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("parsing log level %q: %w", s, err)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
