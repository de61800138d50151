package stream

import (
	"testing"

	"github.com/google/uuid"
)

func TestRegistry_AddRemove(t *testing.T) {
	r := newRegistry()

	sub := r.add(ChannelTrades, "MKT", 0, TradeHandler(func(Trade) {}))
	if sub.ID == uuid.Nil {
		t.Error("expected non-nil subscription id")
	}
	if r.len() != 1 {
		t.Errorf("len = %d, want 1", r.len())
	}

	removed, ok := r.remove(sub.ID)
	if !ok || removed.ID != sub.ID {
		t.Errorf("remove = (%v, %v)", removed, ok)
	}
	if r.len() != 0 {
		t.Errorf("len = %d, want 0", r.len())
	}
}

func TestRegistry_RemoveUnknown(t *testing.T) {
	r := newRegistry()

	if _, ok := r.remove(uuid.New()); ok {
		t.Error("removing unknown id should report false")
	}
}

func TestRegistry_UniqueIDs(t *testing.T) {
	r := newRegistry()

	a := r.add(ChannelTrades, "MKT", 0, nil)
	b := r.add(ChannelTrades, "MKT", 0, nil)
	if a.ID == b.ID {
		t.Error("duplicate subscriptions must get distinct ids")
	}
	if r.len() != 2 {
		t.Errorf("len = %d, want 2 (duplicates are independent)", r.len())
	}
}

func TestRegistry_Match(t *testing.T) {
	r := newRegistry()
	r.add(ChannelTrades, "A", 0, nil)
	r.add(ChannelTrades, "B", 0, nil)
	r.add(ChannelBook, "A", 10, nil)

	matches := r.match(ChannelTrades, "A")
	if len(matches) != 1 || matches[0].Market != "A" {
		t.Errorf("match(trades, A) = %d subs, want exactly 1", len(matches))
	}

	if got := r.match(ChannelTicker, "A"); len(got) != 0 {
		t.Errorf("match(ticker, A) = %d subs, want 0", len(got))
	}
}

func TestRegistry_MatchOrdersIgnoresMarket(t *testing.T) {
	r := newRegistry()
	r.add(ChannelOrders, "", 0, nil)

	// Order updates carry a market, but the orders channel is user-scoped:
	// every orders subscription matches regardless.
	matches := r.match(ChannelOrders, "ANY-MARKET")
	if len(matches) != 1 {
		t.Errorf("match(orders, ANY-MARKET) = %d subs, want 1", len(matches))
	}
}

func TestRegistry_BookDepth(t *testing.T) {
	r := newRegistry()
	r.add(ChannelBook, "MKT", 25, nil)

	depth, ok := r.bookDepth("MKT")
	if !ok || depth != 25 {
		t.Errorf("bookDepth = (%d, %v), want (25, true)", depth, ok)
	}

	if _, ok := r.bookDepth("OTHER"); ok {
		t.Error("bookDepth for unsubscribed market should report false")
	}
}
