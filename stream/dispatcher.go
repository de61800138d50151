package stream

import (
	"log/slog"
	"sync"

	"github.com/mandippal/matchbook/book"
)

// dispatcher routes decoded inbound messages to the per-channel handler sets
// and owns the per-market book reconstructors. Book frames are applied to the
// reconstructor first; handlers only ever observe the materialized view, so a
// frame the reconstructor rejected is never surfaced.
//
// dispatch runs exclusively on the client's read loop goroutine; the mutex
// protects the books map against Subscribe/Unsubscribe from caller
// goroutines.
type dispatcher struct {
	logger   *slog.Logger
	registry *registry

	// resync is invoked when a reconstructor detects a sequence gap. Set by
	// the Client to issue a fresh subscribe for the market's book channel.
	resync func(market string)

	// onServerError receives inbound error frames, surfaced verbatim.
	onServerError func(*ErrorFrame)

	mu    sync.Mutex
	books map[string]*book.Reconstructor
}

func newDispatcher(registry *registry, logger *slog.Logger) *dispatcher {
	return &dispatcher{
		logger:   logger,
		registry: registry,
		books:    make(map[string]*book.Reconstructor),
	}
}

// ensureBook creates the reconstructor for a market if missing. Called when
// a book subscription is added.
func (d *dispatcher) ensureBook(market string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.books[market]; ok {
		return
	}
	d.books[market] = book.NewReconstructor(market, func() {
		if d.resync != nil {
			d.resync(market)
		}
	})
}

// dropBook discards a market's reconstructor. Called when the last book
// subscription for the market is removed.
func (d *dispatcher) dropBook(market string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.books, market)
}

// invalidateBooks marks every book as awaiting a snapshot. Called when the
// transport drops: replayed subscriptions will produce fresh snapshots.
func (d *dispatcher) invalidateBooks() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, rec := range d.books {
		rec.Invalidate()
	}
}

// bookView returns a read-only copy of a market's reconstructed book.
func (d *dispatcher) bookView(market string) (BookView, bool) {
	d.mu.Lock()
	rec, ok := d.books[market]
	d.mu.Unlock()
	if !ok {
		return BookView{}, false
	}
	return makeView(rec), true
}

func makeView(rec *book.Reconstructor) BookView {
	v := rec.View()
	return BookView{
		Market:   v.Market,
		Slot:     v.Slot,
		Sequence: v.Sequence,
		Bids:     v.Bids,
		Asks:     v.Asks,
		Synced:   v.Synced,
	}
}

// dispatch classifies one decoded message and fans it out to every matching
// subscriber.
func (d *dispatcher) dispatch(msg Inbound) {
	switch m := msg.(type) {
	case BookSnapshot:
		d.handleBookSnapshot(m)
	case BookDelta:
		d.handleBookDelta(m)
	case Trade:
		for _, sub := range d.registry.match(ChannelTrades, m.Market) {
			if h, ok := sub.handler.(TradeHandler); ok {
				h(m)
			}
		}
	case Ticker:
		for _, sub := range d.registry.match(ChannelTicker, m.Market) {
			if h, ok := sub.handler.(TickerHandler); ok {
				h(m)
			}
		}
	case OrderUpdate:
		for _, sub := range d.registry.match(ChannelOrders, m.Market) {
			if h, ok := sub.handler.(OrderUpdateHandler); ok {
				h(m)
			}
		}
	case Subscribed:
		d.logger.Debug("subscription acknowledged", "channel", m.Channel, "market", m.Market)
	case Unsubscribed:
		d.logger.Debug("unsubscribe acknowledged", "channel", m.Channel, "market", m.Market)
	case Pong:
		// Liveness only; no coupling to book state.
	case ErrorFrame:
		d.logger.Warn("server error frame", "code", m.Code, "message", m.Message, "request_id", m.RequestID)
		if d.onServerError != nil {
			d.onServerError(&m)
		}
	}
}

func (d *dispatcher) handleBookSnapshot(m BookSnapshot) {
	d.mu.Lock()
	rec, ok := d.books[m.Market]
	d.mu.Unlock()
	if !ok {
		d.logger.Debug("snapshot for unsubscribed market", "market", m.Market)
		return
	}

	rec.ApplySnapshot(m.Slot, m.Sequence, m.Bids, m.Asks)
	d.emitBook(rec, m.Market)
}

func (d *dispatcher) handleBookDelta(m BookDelta) {
	d.mu.Lock()
	rec, ok := d.books[m.Market]
	d.mu.Unlock()
	if !ok {
		return
	}

	if !rec.ApplyUpdate(m.Slot, m.Sequence, m.Bids, m.Asks) {
		// Either awaiting a snapshot or a gap; the reconstructor has already
		// requested a resync in the latter case. Nothing reaches handlers.
		return
	}
	d.emitBook(rec, m.Market)
}

func (d *dispatcher) emitBook(rec *book.Reconstructor, market string) {
	subs := d.registry.match(ChannelBook, market)
	if len(subs) == 0 {
		return
	}
	view := makeView(rec)
	for _, sub := range subs {
		if h, ok := sub.handler.(BookHandler); ok {
			h(view)
		}
	}
}
