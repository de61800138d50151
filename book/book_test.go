package book

import (
	"testing"
)

func TestBook_ReplaceAll(t *testing.T) {
	b := New("MKT")

	b.ReplaceAll(100, 10,
		[]Level{{Price: "9.5", Quantity: "100"}, {Price: "9.8", Quantity: "50"}},
		[]Level{{Price: "10.2", Quantity: "75"}, {Price: "10.0", Quantity: "25"}},
	)

	if b.Sequence() != 10 {
		t.Errorf("Sequence = %d, want 10", b.Sequence())
	}
	if b.Slot() != 100 {
		t.Errorf("Slot = %d, want 100", b.Slot())
	}

	bids, asks := b.Depth()
	if bids != 2 || asks != 2 {
		t.Errorf("Depth = (%d, %d), want (2, 2)", bids, asks)
	}
}

func TestBook_ReplaceAll_DropsZeroQuantity(t *testing.T) {
	b := New("MKT")

	b.ReplaceAll(100, 10,
		[]Level{{Price: "9.5", Quantity: "100"}, {Price: "9.8", Quantity: "0"}},
		nil,
	)

	bids, _ := b.Depth()
	if bids != 1 {
		t.Errorf("bid depth = %d, want 1 (zero-quantity level should be dropped)", bids)
	}
}

func TestBook_BidOrdering(t *testing.T) {
	b := New("MKT")

	b.ReplaceAll(1, 1,
		[]Level{
			{Price: "9.1", Quantity: "10"},
			{Price: "9.9", Quantity: "20"},
			{Price: "9.5", Quantity: "30"},
		},
		nil,
	)

	bids := b.Bids()
	want := []string{"9.9", "9.5", "9.1"}
	for i, w := range want {
		if bids[i].Price != w {
			t.Errorf("bids[%d].Price = %s, want %s", i, bids[i].Price, w)
		}
	}

	best, ok := b.BestBid()
	if !ok || best.Price != "9.9" {
		t.Errorf("BestBid = %+v, want price 9.9", best)
	}
}

func TestBook_AskOrdering(t *testing.T) {
	b := New("MKT")

	b.ReplaceAll(1, 1,
		nil,
		[]Level{
			{Price: "10.5", Quantity: "10"},
			{Price: "10.1", Quantity: "20"},
			{Price: "10.9", Quantity: "30"},
		},
	)

	asks := b.Asks()
	want := []string{"10.1", "10.5", "10.9"}
	for i, w := range want {
		if asks[i].Price != w {
			t.Errorf("asks[%d].Price = %s, want %s", i, asks[i].Price, w)
		}
	}

	best, ok := b.BestAsk()
	if !ok || best.Price != "10.1" {
		t.Errorf("BestAsk = %+v, want price 10.1", best)
	}
}

func TestBook_Apply(t *testing.T) {
	b := New("MKT")
	b.ReplaceAll(100, 10,
		[]Level{{Price: "9.5", Quantity: "100"}},
		[]Level{{Price: "10.5", Quantity: "100"}},
	)

	// Replace an existing level, insert a new one, remove one.
	b.Apply(101, 11,
		[]Change{
			{Price: "9.5", Quantity: "40"}, // replace
			{Price: "9.0", Quantity: "60"}, // insert
		},
		[]Change{
			{Price: "10.5", Quantity: "0"}, // remove
		},
	)

	if b.Sequence() != 11 {
		t.Errorf("Sequence = %d, want 11", b.Sequence())
	}

	bids := b.Bids()
	if len(bids) != 2 {
		t.Fatalf("bid levels = %d, want 2", len(bids))
	}
	if bids[0].Price != "9.5" || bids[0].Quantity != "40" {
		t.Errorf("bids[0] = %+v, want 9.5 x 40 (absolute replace, not delta)", bids[0])
	}
	if bids[1].Price != "9.0" || bids[1].Quantity != "60" {
		t.Errorf("bids[1] = %+v, want 9.0 x 60", bids[1])
	}

	if _, ok := b.BestAsk(); ok {
		t.Error("ask side should be empty after removal")
	}
}

func TestBook_RemoveUnknownLevel(t *testing.T) {
	b := New("MKT")
	b.ReplaceAll(1, 1, []Level{{Price: "9.5", Quantity: "100"}}, nil)

	// Removing a level that does not exist is a no-op, not an error.
	b.Apply(2, 2, []Change{{Price: "8.0", Quantity: "0"}}, nil)

	bids, _ := b.Depth()
	if bids != 1 {
		t.Errorf("bid depth = %d, want 1", bids)
	}
}

func TestBook_EmptyAfterSnapshot(t *testing.T) {
	b := New("MKT")
	b.ReplaceAll(1, 5,
		[]Level{{Price: "9.5", Quantity: "100"}},
		[]Level{{Price: "10.5", Quantity: "100"}},
	)

	// A later snapshot fully replaces the previous contents.
	b.ReplaceAll(2, 20, nil, nil)

	bids, asks := b.Depth()
	if bids != 0 || asks != 0 {
		t.Errorf("Depth = (%d, %d), want (0, 0)", bids, asks)
	}
	if b.Sequence() != 20 {
		t.Errorf("Sequence = %d, want 20", b.Sequence())
	}
}
