package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mandippal/matchbook/stream"
)

// SnapshotEvent pairs a reconstructed book view with its capture time.
type SnapshotEvent struct {
	View       stream.BookView
	CapturedAt time.Time
}

// SnapshotWriter consumes SnapshotEvent from its input buffer and writes to
// the book_snapshots table.
type SnapshotWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *GrowableBuffer[SnapshotEvent]

	db DB

	// Batching
	batch       []bookSnapshotRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

// NewSnapshotWriter creates a new SnapshotWriter.
func NewSnapshotWriter(
	cfg WriterConfig,
	input *GrowableBuffer[SnapshotEvent],
	db DB,
	logger *slog.Logger,
) *SnapshotWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger,
		// Snapshots are captured on a timer, so batches stay small.
		batch: make([]bookSnapshotRow, 0, 100),
	}
}

// Start begins consuming events and writing to the database.
func (w *SnapshotWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("snapshot writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *SnapshotWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping snapshot writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("snapshot writer stopped")
	case <-ctx.Done():
		w.logger.Warn("snapshot writer stop timed out")
	}

	// Final flush runs on the caller's context: the run context is already
	// cancelled and would drop the remaining batch.
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *SnapshotWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *SnapshotWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			msg, ok := w.input.TryReceive()
			if !ok {
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleEvent(msg)
		}
	}
}

func (w *SnapshotWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

func (w *SnapshotWriter) handleEvent(ev SnapshotEvent) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a SnapshotEvent to a bookSnapshotRow.
func (w *SnapshotWriter) transform(ev SnapshotEvent) bookSnapshotRow {
	return bookSnapshotRow{
		SnapshotTs: ev.CapturedAt.UnixMicro(),
		Market:     ev.View.Market,
		Slot:       int64(ev.View.Slot),
		Seq:        int64(ev.View.Sequence),
		Bids:       levelsToJSONB(ev.View.Bids),
		Asks:       levelsToJSONB(ev.View.Asks),
		BestBid:    bestPrice(ev.View.Bids),
		BestAsk:    bestPrice(ev.View.Asks),
	}
}

// flush writes the current batch to the database.
func (w *SnapshotWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]bookSnapshotRow, 0, 100)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed snapshots",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch. A market's book at a given
// sequence is immutable, so duplicates are silently skipped.
func (w *SnapshotWriter) batchInsert(ctx context.Context, rows []bookSnapshotRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO book_snapshots (snapshot_ts, market, slot, seq, bids, asks, best_bid, best_ask)
			VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''))
			ON CONFLICT (market, seq) DO NOTHING
		`, r.SnapshotTs, r.Market, r.Slot, r.Seq, r.Bids, r.Asks, r.BestBid, r.BestAsk)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
