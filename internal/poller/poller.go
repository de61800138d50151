// Package poller periodically captures reconstructed book views so the
// database holds a regular series of full snapshots between trade events.
package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mandippal/matchbook/internal/writer"
	"github.com/mandippal/matchbook/stream"
)

// BookSource provides the current reconstructed book for a market.
// *stream.Client satisfies this.
type BookSource interface {
	Book(market string) (stream.BookView, bool)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Capture interval (default: 1m)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
	}
}

// Poller periodically captures book views and forwards them to the
// snapshot writer buffer.
type Poller struct {
	cfg     Config
	source  BookSource
	markets []string
	output  *writer.GrowableBuffer[writer.SnapshotEvent]
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source BookSource, markets []string, output *writer.GrowableBuffer[writer.SnapshotEvent], logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		markets: markets,
		output:  output,
		logger:  logger,
	}
}

// Start begins the capture loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"markets", len(p.markets),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main capture loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.captureAll()
		}
	}
}

// captureAll snapshots every synced book. Out-of-sync books are skipped:
// a view between a gap and the recovery snapshot would be stale.
func (p *Poller) captureAll() {
	now := time.Now()
	var captured, skipped int

	for _, market := range p.markets {
		view, ok := p.source.Book(market)
		if !ok || !view.Synced {
			skipped++
			continue
		}

		p.output.Send(writer.SnapshotEvent{
			View:       view,
			CapturedAt: now,
		})
		captured++
	}

	p.logger.Debug("capture cycle complete",
		"captured", captured,
		"skipped", skipped,
	)
}
