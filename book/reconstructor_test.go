package book

import (
	"testing"
)

func TestReconstructor_InitialState(t *testing.T) {
	r := NewReconstructor("MKT", nil)

	if r.State() != StateAwaitingSnapshot {
		t.Errorf("State = %v, want awaiting_snapshot", r.State())
	}
}

func TestReconstructor_SnapshotSyncs(t *testing.T) {
	r := NewReconstructor("MKT", nil)

	r.ApplySnapshot(100, 10,
		[]Level{{Price: "9.5", Quantity: "100"}},
		[]Level{{Price: "10.5", Quantity: "100"}},
	)

	if r.State() != StateSynced {
		t.Errorf("State = %v, want synced", r.State())
	}
	if r.Book().Sequence() != 10 {
		t.Errorf("Sequence = %d, want 10", r.Book().Sequence())
	}
}

func TestReconstructor_ContiguousUpdate(t *testing.T) {
	r := NewReconstructor("MKT", nil)
	r.ApplySnapshot(100, 10, []Level{{Price: "9.5", Quantity: "100"}}, nil)

	applied := r.ApplyUpdate(101, 11, []Change{{Price: "9.6", Quantity: "50"}}, nil)
	if !applied {
		t.Fatal("contiguous update should be applied")
	}
	if r.Book().Sequence() != 11 {
		t.Errorf("Sequence = %d, want 11", r.Book().Sequence())
	}
	if r.State() != StateSynced {
		t.Errorf("State = %v, want synced", r.State())
	}
}

func TestReconstructor_GapDiscardsAndResyncs(t *testing.T) {
	resyncs := 0
	r := NewReconstructor("MKT", func() { resyncs++ })
	r.ApplySnapshot(100, 10, []Level{{Price: "9.5", Quantity: "100"}}, nil)

	// Sequence 12 after 10: a gap. The whole update must be discarded.
	applied := r.ApplyUpdate(102, 12, []Change{{Price: "9.6", Quantity: "50"}}, nil)
	if applied {
		t.Fatal("gapped update should be discarded")
	}
	if r.State() != StateAwaitingSnapshot {
		t.Errorf("State = %v, want awaiting_snapshot", r.State())
	}
	if resyncs != 1 {
		t.Errorf("resyncs = %d, want 1", resyncs)
	}

	// The book must not have been partially mutated.
	if r.Book().Sequence() != 10 {
		t.Errorf("Sequence = %d, want 10 (unchanged)", r.Book().Sequence())
	}
	bids, _ := r.Book().Depth()
	if bids != 1 {
		t.Errorf("bid depth = %d, want 1 (unchanged)", bids)
	}
}

func TestReconstructor_StaleSequenceIsGap(t *testing.T) {
	resyncs := 0
	r := NewReconstructor("MKT", func() { resyncs++ })
	r.ApplySnapshot(100, 10, nil, nil)

	// A replayed (old) sequence is treated exactly like a forward gap.
	if r.ApplyUpdate(100, 10, nil, nil) {
		t.Fatal("stale update should be discarded")
	}
	if resyncs != 1 {
		t.Errorf("resyncs = %d, want 1", resyncs)
	}
}

func TestReconstructor_UpdateWhileAwaitingSnapshot(t *testing.T) {
	resyncs := 0
	r := NewReconstructor("MKT", func() { resyncs++ })

	// No snapshot yet: updates are silently dropped and no resync is
	// requested (one is already in flight).
	if r.ApplyUpdate(100, 1, []Change{{Price: "9.5", Quantity: "10"}}, nil) {
		t.Fatal("update before snapshot should be discarded")
	}
	if resyncs != 0 {
		t.Errorf("resyncs = %d, want 0", resyncs)
	}
	if r.State() != StateAwaitingSnapshot {
		t.Errorf("State = %v, want awaiting_snapshot", r.State())
	}
}

func TestReconstructor_RecoveryAfterGap(t *testing.T) {
	r := NewReconstructor("MKT", nil)
	r.ApplySnapshot(100, 10, []Level{{Price: "9.5", Quantity: "100"}}, nil)

	// Gap drops the book out of sync.
	r.ApplyUpdate(105, 15, nil, nil)

	// Updates are discarded until the fresh snapshot lands, even if they
	// happen to look contiguous with the stale local sequence.
	if r.ApplyUpdate(101, 11, nil, nil) {
		t.Fatal("update while awaiting snapshot should be discarded")
	}

	// The fresh snapshot re-baselines at a newer sequence.
	r.ApplySnapshot(110, 20, []Level{{Price: "9.7", Quantity: "10"}}, nil)
	if r.State() != StateSynced {
		t.Errorf("State = %v, want synced", r.State())
	}

	if !r.ApplyUpdate(111, 21, []Change{{Price: "9.8", Quantity: "5"}}, nil) {
		t.Error("contiguous update after recovery snapshot should apply")
	}
}

func TestReconstructor_SnapshotAlwaysAccepted(t *testing.T) {
	r := NewReconstructor("MKT", nil)
	r.ApplySnapshot(100, 50, nil, nil)

	// Even a snapshot with a lower sequence replaces the book; snapshots
	// are authoritative.
	r.ApplySnapshot(90, 40, []Level{{Price: "1.0", Quantity: "1"}}, nil)
	if r.Book().Sequence() != 40 {
		t.Errorf("Sequence = %d, want 40", r.Book().Sequence())
	}
	if r.State() != StateSynced {
		t.Errorf("State = %v, want synced", r.State())
	}
}

func TestReconstructor_ConcurrentViewAndApply(t *testing.T) {
	r := NewReconstructor("MKT", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 500; i++ {
			r.ApplySnapshot(uint64(i), uint64(i), []Level{{Price: "9.5", Quantity: "1"}}, nil)
			r.Invalidate()
		}
	}()

	// Read concurrently with the apply/invalidate loop. A synced view must
	// always carry the snapshot's single bid level: View reads everything
	// under one lock, so state and levels can never be torn.
	for {
		select {
		case <-done:
			return
		default:
		}
		v := r.View()
		if v.Synced && len(v.Bids) != 1 {
			t.Fatalf("synced view with %d bids, want 1", len(v.Bids))
		}
		_ = r.State()
	}
}

func TestReconstructor_Invalidate(t *testing.T) {
	r := NewReconstructor("MKT", nil)
	r.ApplySnapshot(100, 10, []Level{{Price: "9.5", Quantity: "100"}}, nil)

	r.Invalidate()

	if r.State() != StateAwaitingSnapshot {
		t.Errorf("State = %v, want awaiting_snapshot", r.State())
	}
	// Levels survive invalidation; only the sync state is reset.
	bids, _ := r.Book().Depth()
	if bids != 1 {
		t.Errorf("bid depth = %d, want 1", bids)
	}
}
