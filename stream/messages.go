package stream

import (
	"encoding/json"
	"fmt"

	"github.com/mandippal/matchbook/book"
)

// Channel identifies a subscription stream.
type Channel string

const (
	ChannelBook   Channel = "book"
	ChannelTrades Channel = "trades"
	ChannelOrders Channel = "orders"
	ChannelTicker Channel = "ticker"
)

// -----------------------------------------------------------------------------
// Outbound frames
// -----------------------------------------------------------------------------

type subscribeFrame struct {
	Type    string  `json:"type"`
	Channel Channel `json:"channel"`
	Market  string  `json:"market,omitempty"`
	Depth   int     `json:"depth,omitempty"`
}

type unsubscribeFrame struct {
	Type    string  `json:"type"`
	Channel Channel `json:"channel"`
	Market  string  `json:"market,omitempty"`
}

type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// -----------------------------------------------------------------------------
// Inbound frames
// -----------------------------------------------------------------------------

// Inbound is the closed set of server-to-client message kinds. Every concrete
// frame type implements it; decodeInbound is the only constructor.
type Inbound interface {
	inbound()
}

// Subscribed acknowledges a subscribe frame.
type Subscribed struct {
	Channel Channel `json:"channel"`
	Market  string  `json:"market,omitempty"`
}

// Unsubscribed acknowledges an unsubscribe frame.
type Unsubscribed struct {
	Channel Channel `json:"channel"`
	Market  string  `json:"market,omitempty"`
}

// BookSnapshot is a full replacement of a market's book state.
type BookSnapshot struct {
	Market   string       `json:"market"`
	Slot     uint64       `json:"slot"`
	Sequence uint64       `json:"sequence"`
	Bids     []book.Level `json:"bids"`
	Asks     []book.Level `json:"asks"`
}

// BookDelta is an incremental set of price-level changes relative to the
// immediately preceding sequence number.
type BookDelta struct {
	Market   string        `json:"market"`
	Slot     uint64        `json:"slot"`
	Sequence uint64        `json:"sequence"`
	Bids     []book.Change `json:"bids"`
	Asks     []book.Change `json:"asks"`
}

// Trade is an executed trade on a market.
type Trade struct {
	Market    string `json:"market"`
	ID        string `json:"id"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Side      string `json:"side"`
	Timestamp int64  `json:"timestamp"`
}

// Ticker is a best bid/ask and rolling-volume summary for a market.
type Ticker struct {
	Market         string `json:"market"`
	BestBid        string `json:"bestBid,omitempty"`
	BestAsk        string `json:"bestAsk,omitempty"`
	LastPrice      string `json:"lastPrice,omitempty"`
	Volume24h      string `json:"volume24h,omitempty"`
	PriceChange24h string `json:"priceChange24h,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// OrderUpdate is a change to one of the authenticated user's orders.
type OrderUpdate struct {
	Market            string `json:"market"`
	OrderID           string `json:"orderId"`
	ClientOrderID     string `json:"clientOrderId,omitempty"`
	Status            string `json:"status"`
	FilledQuantity    string `json:"filledQuantity"`
	RemainingQuantity string `json:"remainingQuantity"`
	AveragePrice      string `json:"averagePrice,omitempty"`
	Timestamp         int64  `json:"timestamp"`
}

// Pong is the server's reply to a ping frame.
type Pong struct {
	Timestamp int64 `json:"timestamp"`
}

// ErrorFrame is an explicit error reported by the server.
type ErrorFrame struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

func (e *ErrorFrame) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (Subscribed) inbound()   {}
func (Unsubscribed) inbound() {}
func (BookSnapshot) inbound() {}
func (BookDelta) inbound()    {}
func (Trade) inbound()        {}
func (Ticker) inbound()       {}
func (OrderUpdate) inbound()  {}
func (Pong) inbound()         {}
func (ErrorFrame) inbound()   {}

// messageEnvelope carries just the discriminator for a first-pass decode.
type messageEnvelope struct {
	Type string `json:"type"`
}

// decodeInbound parses a raw frame into its concrete message type.
func decodeInbound(data []byte) (Inbound, error) {
	var envelope messageEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	switch envelope.Type {
	case "subscribed":
		var msg Subscribed
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode subscribed: %w", err)
		}
		return msg, nil
	case "unsubscribed":
		var msg Unsubscribed
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode unsubscribed: %w", err)
		}
		return msg, nil
	case "book_snapshot":
		var msg BookSnapshot
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode book_snapshot: %w", err)
		}
		return msg, nil
	case "book_update":
		var msg BookDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode book_update: %w", err)
		}
		return msg, nil
	case "trade":
		var msg Trade
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode trade: %w", err)
		}
		return msg, nil
	case "ticker":
		var msg Ticker
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode ticker: %w", err)
		}
		return msg, nil
	case "order_update":
		var msg OrderUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode order_update: %w", err)
		}
		return msg, nil
	case "pong":
		var msg Pong
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode pong: %w", err)
		}
		return msg, nil
	case "error":
		var msg ErrorFrame
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decode error frame: %w", err)
		}
		return msg, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownMessage, envelope.Type)
	}
}
