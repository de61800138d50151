package book

import "sync"

// State is the synchronization state of a reconstructed book.
type State int

const (
	// StateAwaitingSnapshot means no authoritative baseline is held yet;
	// updates are discarded until the next snapshot arrives.
	StateAwaitingSnapshot State = iota

	// StateSynced means the book is contiguous with the update stream.
	StateSynced
)

func (s State) String() string {
	switch s {
	case StateAwaitingSnapshot:
		return "awaiting_snapshot"
	case StateSynced:
		return "synced"
	default:
		return "unknown"
	}
}

// View is one consistent observation of a reconstructed book: the levels,
// their sequence coordinates, and the sync state all read under a single
// lock acquisition.
type View struct {
	Market   string
	Slot     uint64
	Sequence uint64
	Bids     []Level
	Asks     []Level
	Synced   bool
}

// Reconstructor turns a (snapshot, update*) message sequence for one market
// into a materialized book, enforcing strict sequence contiguity.
//
// When an update's sequence is not exactly one past the local sequence, the
// update is discarded in full, the book falls back to StateAwaitingSnapshot,
// and the resync callback is invoked so the owner can request a fresh
// snapshot.
//
// Mutation happens on the message-delivery goroutine; the mutex makes the
// sync state and View safe to read from other goroutines.
type Reconstructor struct {
	mu     sync.Mutex
	book   *Book
	state  State
	resync func()
}

// NewReconstructor creates a reconstructor for one market. resync is called
// whenever a sequence gap forces the book back to StateAwaitingSnapshot; it
// may be nil.
func NewReconstructor(market string, resync func()) *Reconstructor {
	return &Reconstructor{
		book:   New(market),
		state:  StateAwaitingSnapshot,
		resync: resync,
	}
}

// Book returns the underlying materialized book.
func (r *Reconstructor) Book() *Book {
	return r.book
}

// State returns the current synchronization state.
func (r *Reconstructor) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// View returns the book's levels, coordinates, and sync state as one
// consistent copy. A concurrent apply can never tear the result.
func (r *Reconstructor) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot, sequence, bids, asks := r.book.view()
	return View{
		Market:   r.book.Market(),
		Slot:     slot,
		Sequence: sequence,
		Bids:     bids,
		Asks:     asks,
		Synced:   r.state == StateSynced,
	}
}

// ApplySnapshot unconditionally replaces the book with the snapshot's levels.
// Snapshots are the authoritative resync mechanism and are accepted
// regardless of the currently held sequence.
func (r *Reconstructor) ApplySnapshot(slot, sequence uint64, bids, asks []Level) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.book.ReplaceAll(slot, sequence, bids, asks)
	r.state = StateSynced
}

// ApplyUpdate applies an incremental update. It returns true if the update
// was applied, false if it was discarded (either because the book is still
// awaiting a snapshot, or because a sequence gap was detected).
func (r *Reconstructor) ApplyUpdate(slot, sequence uint64, bids, asks []Change) bool {
	r.mu.Lock()

	if r.state != StateSynced {
		// Predates the snapshot that will re-baseline state.
		r.mu.Unlock()
		return false
	}

	if sequence != r.book.Sequence()+1 {
		r.state = StateAwaitingSnapshot
		resync := r.resync
		r.mu.Unlock()
		if resync != nil {
			resync()
		}
		return false
	}

	r.book.Apply(slot, sequence, bids, asks)
	r.mu.Unlock()
	return true
}

// Invalidate forces the book back to StateAwaitingSnapshot without touching
// its levels. Used when the transport drops and the subscription will be
// replayed.
func (r *Reconstructor) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateAwaitingSnapshot
}
