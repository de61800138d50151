// Package metrics exposes Prometheus metrics for the recorder.
//
// Key metrics:
//   - stream connection state, message and sequence gap counters
//   - writer insert/conflict/error counters
//   - buffer utilization
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mandippal/matchbook/internal/writer"
	"github.com/mandippal/matchbook/stream"
)

// Config holds metrics server settings.
type Config struct {
	Port int
	Path string
}

// StatsSource yields current stream statistics. *stream.Client satisfies
// this.
type StatsSource interface {
	Stats() stream.Stats
}

// WriterSource yields current writer statistics.
type WriterSource interface {
	Stats() writer.WriterMetrics
}

// Server collects recorder metrics and serves them over HTTP. Counters are
// refreshed from their sources on each scrape via collect callbacks.
type Server struct {
	cfg    Config
	logger *slog.Logger

	registry *prometheus.Registry

	streamState      prometheus.GaugeFunc
	messagesReceived prometheus.CounterFunc
	sequenceGaps     prometheus.CounterFunc
	resyncs          prometheus.CounterFunc
	reconnects       prometheus.CounterFunc
	subscriptions    prometheus.GaugeFunc

	writerInserts   *prometheus.GaugeVec
	writerConflicts *prometheus.GaugeVec
	writerErrors    *prometheus.GaugeVec

	mu      sync.Mutex
	writers map[string]WriterSource

	srv *http.Server
}

// NewServer creates a metrics server fed by the given stream client.
func NewServer(cfg Config, source StatsSource, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		writers:  make(map[string]WriterSource),
	}

	s.streamState = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "matchbook_stream_connected",
		Help: "1 when the stream is connected, 0 otherwise",
	}, func() float64 {
		if source.Stats().State == stream.Connected {
			return 1
		}
		return 0
	})
	s.messagesReceived = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "matchbook_stream_messages_received_total",
		Help: "Messages received over the stream",
	}, func() float64 {
		return float64(source.Stats().MessagesReceived)
	})
	s.sequenceGaps = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "matchbook_stream_sequence_gaps_total",
		Help: "Sequence gaps detected in book updates",
	}, func() float64 {
		return float64(source.Stats().SequenceGaps)
	})
	s.resyncs = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "matchbook_stream_resyncs_total",
		Help: "Book resynchronizations requested",
	}, func() float64 {
		return float64(source.Stats().Resyncs)
	})
	s.reconnects = prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "matchbook_stream_reconnects_total",
		Help: "Successful stream reconnections",
	}, func() float64 {
		return float64(source.Stats().Reconnects)
	})
	s.subscriptions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "matchbook_stream_subscriptions",
		Help: "Active stream subscriptions",
	}, func() float64 {
		return float64(source.Stats().Subscriptions)
	})

	labels := []string{"writer"}
	s.writerInserts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_writer_inserts_total",
		Help: "Rows inserted by each writer",
	}, labels)
	s.writerConflicts = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_writer_conflicts_total",
		Help: "Rows skipped as duplicates by each writer",
	}, labels)
	s.writerErrors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchbook_writer_errors_total",
		Help: "Failed batch flushes by each writer",
	}, labels)

	s.registry.MustRegister(
		s.streamState,
		s.messagesReceived,
		s.sequenceGaps,
		s.resyncs,
		s.reconnects,
		s.subscriptions,
		s.writerInserts,
		s.writerConflicts,
		s.writerErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return s
}

// RegisterWriter adds a writer whose stats are refreshed on each scrape.
func (s *Server) RegisterWriter(name string, source WriterSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writers[name] = source
}

// Handler returns the scrape handler, refreshing writer gauges first.
func (s *Server) Handler() http.Handler {
	inner := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.refreshWriters()
		inner.ServeHTTP(w, r)
	})
}

func (s *Server) refreshWriters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, src := range s.writers {
		m := src.Stats()
		s.writerInserts.WithLabelValues(name).Set(float64(m.Inserts))
		s.writerConflicts.WithLabelValues(name).Set(float64(m.Conflicts))
		s.writerErrors.WithLabelValues(name).Set(float64(m.Errors))
	}
}

// Start serves the metrics endpoint in the background.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Path, s.Handler())

	addr := net.JoinHostPort("", strconv.Itoa(s.cfg.Port))
	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
		}
	}()

	s.logger.Info("metrics server started", "addr", addr, "path", s.cfg.Path)
	return nil
}

// Stop shuts the metrics server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	return nil
}

// WaitReady polls until the metrics endpoint responds or the timeout
// expires. Used by tests and health checks.
func (s *Server) WaitReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://127.0.0.1:%d%s", s.cfg.Port, s.cfg.Path)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("metrics endpoint not ready after %s", timeout)
}
