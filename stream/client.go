// Package stream maintains a synchronized local copy of Matchbook market
// data over a single persistent websocket connection.
//
// One Client multiplexes every channel (book, trades, ticker, orders) over
// one transport. Subscriptions live in a registry that is independent of
// connection state: an unexpected drop triggers reconnection with
// exponential backoff and every registered subscription is replayed, so a
// reconnect is observable to callers only as a brief pause and a possible
// book resynchronization.
//
// All inbound dispatch, including book mutation, happens on a single read
// loop goroutine in delivery order; ordering is enforced by the protocol's
// sequence numbers rather than by locking.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Client owns the transport connection, the subscription registry, and the
// per-market book reconstructors.
type Client struct {
	cfg    Config
	logger *slog.Logger

	registry   *registry
	dispatcher *dispatcher

	mu             sync.Mutex
	state          ConnectionState
	tr             *transport
	attempts       int
	reconnectTimer *time.Timer
	closed         bool // Disconnect called; disables automatic reconnection
	onError        ErrorHandler
	onDisconnect   DisconnectHandler

	received   atomic.Int64
	gaps       atomic.Int64
	reconnects atomic.Int64
}

// New validates the configuration and creates a disconnected Client.
// Configuration mistakes (missing or malformed URL, inverted delays) are
// programming errors and fail here rather than at runtime.
func New(cfg Config) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	c := &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		registry: newRegistry(),
		state:    Disconnected,
	}
	c.dispatcher = newDispatcher(c.registry, c.logger)
	c.dispatcher.resync = c.resyncBook
	c.dispatcher.onServerError = func(e *ErrorFrame) { c.emitError(e) }
	return c, nil
}

// OnError registers a callback for transport-level errors and inbound error
// frames. Remote errors are surfaced verbatim and never retried.
func (c *Client) OnError(h ErrorHandler) {
	c.mu.Lock()
	c.onError = h
	c.mu.Unlock()
}

// OnDisconnect registers a callback invoked once per transition into
// Reconnecting (transient drop) or Disconnected (terminal).
func (c *Client) OnDisconnect(h DisconnectHandler) {
	c.mu.Lock()
	c.onDisconnect = h
	c.mu.Unlock()
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stats returns a point-in-time view of client counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()

	return Stats{
		State:            state,
		MessagesReceived: c.received.Load(),
		SequenceGaps:     c.gaps.Load(),
		Resyncs:          c.gaps.Load(),
		Reconnects:       c.reconnects.Load(),
		Subscriptions:    c.registry.len(),
	}
}

// Connect establishes the transport and returns once it is open. It is
// idempotent: a no-op when already connected or when a (re)connection is in
// flight. A previous Disconnect is cleared, making the client usable again;
// subscriptions registered before or between connects are retained and
// replayed.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return nil
	}
	c.closed = false
	c.attempts = 0
	c.state = Connecting
	c.mu.Unlock()

	tr := newTransport(c.cfg)
	if err := tr.connect(ctx); err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()
		return err
	}

	c.establish(tr)
	return nil
}

// Disconnect tears down the transport, cancels the ping ticker and any
// pending backoff timer, and permanently disables automatic reconnection.
// This is the only path that stops the client for good; it stays reusable
// via a fresh Connect. Subscriptions are retained across the cycle and will
// be replayed by the next successful Connect.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	alreadyDown := c.closed && c.state == Disconnected
	c.closed = true
	prev := c.state
	c.state = Disconnected
	tr := c.tr
	c.tr = nil
	c.mu.Unlock()

	if tr != nil {
		tr.close()
	}
	c.dispatcher.invalidateBooks()

	if !alreadyDown && prev != Disconnected {
		c.emitDisconnect()
	}
	return nil
}

// SubscribeBook registers a book subscription for a market. The handler
// receives the materialized book view after every applied snapshot or
// update; out-of-sequence messages never reach it.
func (c *Client) SubscribeBook(market string, depth int, handler BookHandler) uuid.UUID {
	sub := c.registry.add(ChannelBook, market, depth, handler)
	c.dispatcher.ensureBook(market)
	c.trySend(subscribeFrame{Type: "subscribe", Channel: ChannelBook, Market: market, Depth: depth})
	return sub.ID
}

// SubscribeTrades registers a trade-stream subscription for a market.
func (c *Client) SubscribeTrades(market string, handler TradeHandler) uuid.UUID {
	sub := c.registry.add(ChannelTrades, market, 0, handler)
	c.trySend(subscribeFrame{Type: "subscribe", Channel: ChannelTrades, Market: market})
	return sub.ID
}

// SubscribeTicker registers a ticker subscription for a market.
func (c *Client) SubscribeTicker(market string, handler TickerHandler) uuid.UUID {
	sub := c.registry.add(ChannelTicker, market, 0, handler)
	c.trySend(subscribeFrame{Type: "subscribe", Channel: ChannelTicker, Market: market})
	return sub.ID
}

// SubscribeOrders registers a subscription to the user-scoped order update
// channel, which carries no market.
func (c *Client) SubscribeOrders(handler OrderUpdateHandler) uuid.UUID {
	sub := c.registry.add(ChannelOrders, "", 0, handler)
	c.trySend(subscribeFrame{Type: "subscribe", Channel: ChannelOrders})
	return sub.ID
}

// Unsubscribe removes a subscription. Unknown ids are a no-op. An
// unsubscribe frame is sent only when no other subscription still needs the
// same channel and market.
func (c *Client) Unsubscribe(id uuid.UUID) {
	sub, ok := c.registry.remove(id)
	if !ok {
		return
	}

	remaining := c.registry.match(sub.Channel, sub.Market)
	if len(remaining) > 0 {
		return
	}

	if sub.Channel == ChannelBook {
		c.dispatcher.dropBook(sub.Market)
	}
	c.trySend(unsubscribeFrame{Type: "unsubscribe", Channel: sub.Channel, Market: sub.Market})
}

// Book returns a read-only copy of a market's reconstructed book. The second
// return is false when no book subscription exists for the market.
func (c *Client) Book(market string) (BookView, bool) {
	return c.dispatcher.bookView(market)
}

// establish installs a freshly opened transport, replays every registered
// subscription, and starts the session loop.
func (c *Client) establish(tr *transport) {
	c.mu.Lock()
	c.tr = tr
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	c.dispatcher.invalidateBooks()
	c.replayAll(tr)

	go c.run(tr)
}

// replayAll re-issues a subscribe frame for every registry entry. Safe to
// call repeatedly; it never mutates the registry.
func (c *Client) replayAll(tr *transport) {
	subs := c.registry.all()
	for _, sub := range subs {
		frame := subscribeFrame{Type: "subscribe", Channel: sub.Channel, Market: sub.Market, Depth: sub.Depth}
		if err := c.sendFrame(tr, frame); err != nil {
			c.logger.Warn("subscription replay failed",
				"channel", sub.Channel,
				"market", sub.Market,
				"error", err,
			)
		}
	}
	if len(subs) > 0 {
		c.logger.Info("replayed subscriptions", "count", len(subs))
	}
}

// run is the single session loop: it consumes inbound frames in delivery
// order, sends liveness pings, and reacts to transport failure. All book
// mutation happens here.
func (c *Client) run(tr *transport) {
	ping := time.NewTicker(c.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-tr.messages:
			if !ok {
				// Read loop ended. A requested close carries no error.
				select {
				case err := <-tr.errors:
					c.handleDrop(tr, err)
				default:
					c.handleDrop(tr, nil)
				}
				return
			}
			c.received.Add(1)
			inb, err := decodeInbound(msg.data)
			if err != nil {
				c.logger.Debug("undecodable frame", "error", err)
				continue
			}
			c.dispatcher.dispatch(inb)

		case err := <-tr.errors:
			c.handleDrop(tr, err)
			return

		case <-ping.C:
			frame := pingFrame{Type: "ping", Timestamp: time.Now().UnixMilli()}
			if err := c.sendFrame(tr, frame); err != nil {
				c.logger.Debug("ping send failed", "error", err)
			}
		}
	}
}

// handleDrop reacts to the transport ending. An intentional Disconnect has
// already detached the transport and is a no-op here; anything else is an
// unexpected drop that starts the reconnect state machine.
func (c *Client) handleDrop(tr *transport, err error) {
	if err != nil {
		c.emitError(err)
	}

	c.mu.Lock()
	if c.closed || c.tr != tr {
		c.mu.Unlock()
		return
	}
	c.tr = nil
	c.state = Reconnecting
	c.mu.Unlock()

	tr.close()
	c.dispatcher.invalidateBooks()
	c.logger.Warn("connection lost", "error", err)
	c.emitDisconnect()
	c.scheduleReconnect()
}

// scheduleReconnect arms a cancellable backoff timer for the next attempt,
// or abandons reconnection once the attempt budget is spent.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.state = Disconnected
		c.mu.Unlock()
		c.logger.Error("reconnection abandoned", "attempts", c.cfg.MaxReconnectAttempts)
		c.emitDisconnect()
		return
	}
	c.attempts++
	delay := backoffDelay(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.attempts)
	c.logger.Info("scheduling reconnect", "attempt", c.attempts, "delay", delay)
	c.reconnectTimer = time.AfterFunc(delay, c.tryReconnect)
	c.mu.Unlock()
}

// tryReconnect performs one reconnection attempt.
func (c *Client) tryReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	c.state = Connecting
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()

	tr := newTransport(c.cfg)
	if err := tr.connect(ctx); err != nil {
		c.emitError(err)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.state = Reconnecting
		c.mu.Unlock()
		c.scheduleReconnect()
		return
	}

	c.reconnects.Add(1)
	c.logger.Info("reconnected", "url", c.cfg.URL)
	c.establish(tr)
}

// backoffDelay computes min(base * 2^(attempt-1), max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max || delay < 0 {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// resyncBook requests a fresh snapshot for a market after a sequence gap by
// re-issuing the book subscribe. Gaps are an expected, self-healing
// condition and are not surfaced as errors.
func (c *Client) resyncBook(market string) {
	c.gaps.Add(1)
	depth, ok := c.registry.bookDepth(market)
	if !ok {
		return
	}
	c.logger.Warn("sequence gap, requesting resync", "market", market)
	c.trySend(subscribeFrame{Type: "subscribe", Channel: ChannelBook, Market: market, Depth: depth})
}

// trySend marshals and sends a frame when connected; when disconnected the
// frame is skipped, since the registry replay will cover it on the next
// connect.
func (c *Client) trySend(frame any) {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return
	}
	if err := c.sendFrame(tr, frame); err != nil {
		c.logger.Warn("frame send failed", "error", err)
	}
}

func (c *Client) sendFrame(tr *transport, frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return tr.send(data)
}

func (c *Client) emitError(err error) {
	c.mu.Lock()
	h := c.onError
	c.mu.Unlock()
	if h != nil {
		h(err)
	}
}

func (c *Client) emitDisconnect() {
	c.mu.Lock()
	h := c.onDisconnect
	c.mu.Unlock()
	if h != nil {
		h()
	}
}
