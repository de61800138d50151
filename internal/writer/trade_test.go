package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mandippal/matchbook/book"
	"github.com/mandippal/matchbook/stream"
)

// fakeDB records each batch it receives and the state of the context it was
// sent with. Every queued statement reports one affected row.
type fakeDB struct {
	mu      sync.Mutex
	sizes   []int
	ctxErrs []error
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizes = append(f.sizes, b.Len())
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return &fakeBatchResults{remaining: b.Len()}
}

func (f *fakeDB) totalRows() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sizes {
		n += s
	}
	return n
}

type fakeBatchResults struct {
	remaining int
}

func (r *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	if r.remaining == 0 {
		return pgconn.CommandTag{}, errors.New("no queued statements left")
	}
	r.remaining--
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeBatchResults) Query() (pgx.Rows, error) {
	return nil, errors.New("unexpected Query")
}

func (r *fakeBatchResults) QueryRow() pgx.Row {
	return nil
}

func (r *fakeBatchResults) Close() error {
	return nil
}

func TestTradeWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	buf := NewGrowableBuffer[TradeEvent](16)
	w := NewTradeWriter(cfg, buf, nil, nil)

	received := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	ev := TradeEvent{
		Trade: stream.Trade{
			Market:    "MKT1",
			ID:        "t-1",
			Price:     "9.75",
			Quantity:  "12",
			Side:      "buy",
			Timestamp: 1705328200000,
		},
		ReceivedAt: received,
	}

	row := w.transform(ev)

	if row.TradeID != "t-1" || row.Market != "MKT1" {
		t.Errorf("row = %+v", row)
	}
	if row.Price != "9.75" || row.Quantity != "12" {
		t.Errorf("row price/quantity = %s/%s", row.Price, row.Quantity)
	}
	if row.TakerSide != "buy" {
		t.Errorf("TakerSide = %s", row.TakerSide)
	}
	if row.ExchangeTs != 1705328200000 {
		t.Errorf("ExchangeTs = %d", row.ExchangeTs)
	}
	if row.ReceivedAt != received.UnixMicro() {
		t.Errorf("ReceivedAt = %d, want %d", row.ReceivedAt, received.UnixMicro())
	}
}

func TestTradeWriter_BatchAccumulation(t *testing.T) {
	cfg := WriterConfig{BatchSize: 100, FlushInterval: time.Hour}
	buf := NewGrowableBuffer[TradeEvent](16)
	w := NewTradeWriter(cfg, buf, nil, nil)

	for i := 0; i < 5; i++ {
		w.handleEvent(TradeEvent{
			Trade:      stream.Trade{ID: "t", Market: "MKT1"},
			ReceivedAt: time.Now(),
		})
	}

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	if len(w.batch) != 5 {
		t.Errorf("batch size = %d, want 5 (below threshold, no flush)", len(w.batch))
	}
}

func TestTradeWriter_StopFlushesRemaining(t *testing.T) {
	db := &fakeDB{}
	buf := NewGrowableBuffer[TradeEvent](16)
	w := NewTradeWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, buf, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		buf.Send(TradeEvent{
			Trade:      stream.Trade{ID: fmt.Sprintf("t-%d", i), Market: "MKT1"},
			ReceivedAt: time.Now(),
		})
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && buf.Len() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	// The batch never reached BatchSize, so only the final flush on Stop can
	// have written it. It must use a live context: the cancelled run context
	// would drop the rows.
	if got := db.totalRows(); got != 3 {
		t.Errorf("rows written = %d, want 3", got)
	}
	for i, err := range db.ctxErrs {
		if err != nil {
			t.Errorf("flush %d used a dead context: %v", i, err)
		}
	}
}

func TestSnapshotWriter_StopFlushesRemaining(t *testing.T) {
	db := &fakeDB{}
	buf := NewGrowableBuffer[SnapshotEvent](16)
	w := NewSnapshotWriter(WriterConfig{BatchSize: 100, FlushInterval: time.Hour}, buf, db, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	buf.Send(SnapshotEvent{
		View:       stream.BookView{Market: "MKT1", Sequence: 7, Synced: true},
		CapturedAt: time.Now(),
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && buf.Len() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := db.totalRows(); got != 1 {
		t.Errorf("rows written = %d, want 1", got)
	}
	for i, err := range db.ctxErrs {
		if err != nil {
			t.Errorf("flush %d used a dead context: %v", i, err)
		}
	}
}

func TestSnapshotWriter_Transform(t *testing.T) {
	cfg := DefaultWriterConfig()
	buf := NewGrowableBuffer[SnapshotEvent](16)
	w := NewSnapshotWriter(cfg, buf, nil, nil)

	captured := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	ev := SnapshotEvent{
		View: stream.BookView{
			Market:   "MKT1",
			Slot:     1000,
			Sequence: 42,
			Bids: []book.Level{
				{Price: "9.5", Quantity: "100"},
				{Price: "9.4", Quantity: "10"},
			},
			Asks:   []book.Level{{Price: "10.5", Quantity: "50"}},
			Synced: true,
		},
		CapturedAt: captured,
	}

	row := w.transform(ev)

	if row.Market != "MKT1" || row.Slot != 1000 || row.Seq != 42 {
		t.Errorf("row = %+v", row)
	}
	if row.SnapshotTs != captured.UnixMicro() {
		t.Errorf("SnapshotTs = %d", row.SnapshotTs)
	}
	if row.BestBid != "9.5" || row.BestAsk != "10.5" {
		t.Errorf("best = %s / %s", row.BestBid, row.BestAsk)
	}

	var bids []priceLevelJSON
	if err := json.Unmarshal(row.Bids, &bids); err != nil {
		t.Fatalf("bids not valid JSON: %v", err)
	}
	if len(bids) != 2 || bids[0].Price != "9.5" || bids[1].Price != "9.4" {
		t.Errorf("bids JSON = %+v, want best-first order preserved", bids)
	}
}

func TestLevelsToJSONB_Empty(t *testing.T) {
	data := levelsToJSONB(nil)
	if string(data) != "[]" {
		t.Errorf("levelsToJSONB(nil) = %s, want []", data)
	}
}

func TestBestPrice(t *testing.T) {
	if got := bestPrice(nil); got != "" {
		t.Errorf("bestPrice(nil) = %q, want empty", got)
	}
	levels := []book.Level{{Price: "9.5", Quantity: "1"}}
	if got := bestPrice(levels); got != "9.5" {
		t.Errorf("bestPrice = %q, want 9.5", got)
	}
}
