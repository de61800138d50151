// Package writer provides buffered batch writers that persist streamed
// market data into TimescaleDB.
package writer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mandippal/matchbook/book"
)

// DB is the subset of pgxpool.Pool the writers use.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     1000,
		FlushInterval: 5 * time.Second,
	}
}

// tradeRow represents a row to be inserted into the trades table.
type tradeRow struct {
	TradeID    string
	Market     string
	Price      string // NUMERIC, decimal string
	Quantity   string // NUMERIC, decimal string
	TakerSide  string // "buy" or "sell"
	ExchangeTs int64  // Milliseconds
	ReceivedAt int64  // Microseconds
}

// bookSnapshotRow represents a row for the book_snapshots table.
type bookSnapshotRow struct {
	SnapshotTs int64 // Microseconds
	Market     string
	Slot       int64
	Seq        int64
	Bids       []byte // JSONB: [{price, quantity}, ...] best first
	Asks       []byte // JSONB
	BestBid    string
	BestAsk    string
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// priceLevelJSON represents a price level in JSONB format.
type priceLevelJSON struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// levelsToJSONB converts book levels to JSONB bytes, preserving order.
func levelsToJSONB(levels []book.Level) []byte {
	result := make([]priceLevelJSON, len(levels))
	for i, level := range levels {
		result[i] = priceLevelJSON{
			Price:    level.Price,
			Quantity: level.Quantity,
		}
	}
	data, _ := json.Marshal(result)
	return data
}

// bestPrice returns the price of the first level, or "" if the side is empty.
func bestPrice(levels []book.Level) string {
	if len(levels) == 0 {
		return ""
	}
	return levels[0].Price
}
