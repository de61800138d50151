package stream

import (
	"sync"

	"github.com/google/uuid"
)

// Subscription is one logically active subscription. It lives in the
// Registry independently of connection state so that reconnects can replay
// it rather than recreate it.
type Subscription struct {
	ID      uuid.UUID
	Channel Channel
	Market  string // empty for the user-scoped orders channel
	Depth   int    // book channel only

	handler any
}

// registry tracks the set of logically active subscriptions.
type registry struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]*Subscription
}

func newRegistry() *registry {
	return &registry{
		subs: make(map[uuid.UUID]*Subscription),
	}
}

// add stores a new subscription under a fresh locally-unique id. It never
// fails and sends nothing over the wire.
func (r *registry) add(channel Channel, market string, depth int, handler any) *Subscription {
	sub := &Subscription{
		ID:      uuid.New(),
		Channel: channel,
		Market:  market,
		Depth:   depth,
		handler: handler,
	}

	r.mu.Lock()
	r.subs[sub.ID] = sub
	r.mu.Unlock()

	return sub
}

// remove deletes a subscription, returning it if it existed.
func (r *registry) remove(id uuid.UUID) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, false
	}
	delete(r.subs, id)
	return sub, true
}

// all returns a copy of every current subscription.
func (r *registry) all() []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	return out
}

// match returns every subscription for the given channel and market. The
// market comparison is skipped for the orders channel, which is user-scoped
// and carries no market.
func (r *registry) match(channel Channel, market string) []*Subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Subscription
	for _, sub := range r.subs {
		if sub.Channel != channel {
			continue
		}
		if channel != ChannelOrders && sub.Market != market {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// bookDepth returns the configured depth for a market's book channel and
// whether any book subscription exists for it.
func (r *registry) bookDepth(market string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, sub := range r.subs {
		if sub.Channel == ChannelBook && sub.Market == market {
			return sub.Depth, true
		}
	}
	return 0, false
}

// len returns the number of active subscriptions.
func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}
