// Package book maintains materialized local order books reconstructed from
// snapshot and incremental update streams.
package book

import (
	"sort"
	"strconv"
	"sync"
)

// Level is a single price level in an order book.
type Level struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	OrderCount uint32 `json:"orderCount,omitempty"`
}

// Change is an incremental mutation to a price level. A quantity of "0"
// removes the level; any other value inserts or replaces it.
type Change struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// Book holds the materialized order book for one market.
//
// All mutation happens on the message-delivery goroutine; the mutex only
// protects concurrent reads from caller code.
type Book struct {
	mu sync.RWMutex

	market   string
	slot     uint64
	sequence uint64
	bids     map[string]Level
	asks     map[string]Level
}

// New creates an empty book for the given market.
func New(market string) *Book {
	return &Book{
		market: market,
		bids:   make(map[string]Level),
		asks:   make(map[string]Level),
	}
}

// Market returns the market identifier.
func (b *Book) Market() string {
	return b.market
}

// Sequence returns the sequence number of the last applied message.
func (b *Book) Sequence() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.sequence
}

// Slot returns the ledger slot of the last applied message.
func (b *Book) Slot() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot
}

// ReplaceAll discards all current levels and installs the snapshot's levels.
func (b *Book) ReplaceAll(slot, sequence uint64, bids, asks []Level) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[string]Level, len(bids))
	b.asks = make(map[string]Level, len(asks))
	for _, l := range bids {
		if !isZero(l.Quantity) {
			b.bids[l.Price] = l
		}
	}
	for _, l := range asks {
		if !isZero(l.Quantity) {
			b.asks[l.Price] = l
		}
	}
	b.slot = slot
	b.sequence = sequence
}

// Apply mutates the book with the given level changes. The caller is
// responsible for sequence continuity; Apply trusts its input.
func (b *Book) Apply(slot, sequence uint64, bids, asks []Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	applyChanges(b.bids, bids)
	applyChanges(b.asks, asks)
	b.slot = slot
	b.sequence = sequence
}

func applyChanges(side map[string]Level, changes []Change) {
	for _, ch := range changes {
		if isZero(ch.Quantity) {
			delete(side, ch.Price)
			continue
		}
		side[ch.Price] = Level{Price: ch.Price, Quantity: ch.Quantity}
	}
}

// Bids returns the bid levels ordered best-first (descending price).
func (b *Book) Bids() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedLevels(b.bids, true)
}

// Asks returns the ask levels ordered best-first (ascending price).
func (b *Book) Asks() []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return sortedLevels(b.asks, false)
}

// BestBid returns the highest bid, if any.
func (b *Book) BestBid() (Level, bool) {
	bids := b.Bids()
	if len(bids) == 0 {
		return Level{}, false
	}
	return bids[0], true
}

// BestAsk returns the lowest ask, if any.
func (b *Book) BestAsk() (Level, bool) {
	asks := b.Asks()
	if len(asks) == 0 {
		return Level{}, false
	}
	return asks[0], true
}

// Depth returns the number of bid and ask levels.
func (b *Book) Depth() (bids, asks int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bids), len(b.asks)
}

// view returns the coordinates and both sorted sides under one read lock,
// so callers observe a single point in time.
func (b *Book) view() (slot, sequence uint64, bids, asks []Level) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.slot, b.sequence, sortedLevels(b.bids, true), sortedLevels(b.asks, false)
}

func sortedLevels(side map[string]Level, descending bool) []Level {
	levels := make([]Level, 0, len(side))
	for _, l := range side {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool {
		pi := priceValue(levels[i].Price)
		pj := priceValue(levels[j].Price)
		if descending {
			return pi > pj
		}
		return pi < pj
	})
	return levels
}

func priceValue(price string) float64 {
	v, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return 0
	}
	return v
}

func isZero(quantity string) bool {
	v, err := strconv.ParseFloat(quantity, 64)
	if err != nil {
		return false
	}
	return v == 0
}
