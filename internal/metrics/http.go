package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Reporter serves a registry on /metrics.
type Reporter struct {
	server   *http.Server
	listener net.Listener
	log      zerolog.Logger
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Serve starts serving reg on addr in the background.
func Serve(addr string, reg *prometheus.Registry, log zerolog.Logger) (*Reporter, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	r := &Reporter{listener: ln, log: log.With().Str("component", "metrics").Logger()}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      r,
		ErrorHandling: promhttp.ContinueOnError,
	}))
	r.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := r.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	return r, nil
}

// Addr returns the bound address.
func (r *Reporter) Addr() string {
	return r.listener.Addr().String()
}

// Shutdown stops the server.
func (r *Reporter) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.server.Shutdown(ctx); err != nil {
		r.log.Error().Err(err).Msg("shutting down metrics server")
	}
}

// Println implements promhttp.Logger.
func (r *Reporter) Println(v ...interface{}) {
	r.log.Error().Msg(fmt.Sprint(v...))
}
