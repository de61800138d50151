package api

import "time"

// Market describes one tradable market.
type Market struct {
	Address      string `json:"address"`
	BaseMint     string `json:"base_mint"`
	QuoteMint    string `json:"quote_mint"`
	BaseSymbol   string `json:"base_symbol,omitempty"`
	QuoteSymbol  string `json:"quote_symbol,omitempty"`
	BaseLotSize  uint64 `json:"base_lot_size"`
	QuoteLotSize uint64 `json:"quote_lot_size"`
	TickSize     uint64 `json:"tick_size"`
	TakerFeeBps  uint16 `json:"taker_fee_bps"`
	MakerFeeBps  int16  `json:"maker_fee_bps"`
}

// MarketsResponse from GET /v1/markets.
type MarketsResponse struct {
	Markets []Market `json:"markets"`
}

// PriceLevel is a single aggregated price level.
type PriceLevel struct {
	Price      uint64 `json:"price"`
	Quantity   uint64 `json:"quantity"`
	OrderCount uint32 `json:"order_count"`
}

// Orderbook from GET /v1/markets/{market}/orderbook. Carries the same
// slot/sequence coordinates as a streamed snapshot, so both are equally
// authoritative resync points.
type Orderbook struct {
	Market string       `json:"market"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
	Slot   uint64       `json:"slot"`
	Seq    uint64       `json:"seq"`
}

// Trade is one executed trade.
type Trade struct {
	ID        string    `json:"id"`
	Market    string    `json:"market"`
	Price     uint64    `json:"price"`
	Quantity  uint64    `json:"quantity"`
	TakerSide string    `json:"taker_side"`
	Timestamp time.Time `json:"timestamp"`
}

// TradesResponse from GET /v1/markets/{market}/trades.
type TradesResponse struct {
	Trades     []Trade `json:"trades"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Time   time.Time `json:"time"`
	Open   uint64    `json:"open"`
	High   uint64    `json:"high"`
	Low    uint64    `json:"low"`
	Close  uint64    `json:"close"`
	Volume uint64    `json:"volume"`
}

// CandlesResponse from GET /v1/markets/{market}/candles.
type CandlesResponse struct {
	Market   string   `json:"market"`
	Interval string   `json:"interval"`
	Candles  []Candle `json:"candles"`
}

// Order is one of a user's open orders.
type Order struct {
	OrderID        string    `json:"order_id"`
	Market         string    `json:"market"`
	Side           string    `json:"side"`
	Price          uint64    `json:"price"`
	Quantity       uint64    `json:"quantity"`
	FilledQuantity uint64    `json:"filled_quantity"`
	ClientOrderID  *uint64   `json:"client_order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// OrdersResponse from GET /v1/accounts/{owner}/orders.
type OrdersResponse struct {
	Orders []Order `json:"orders"`
}

// Balance is a user's funds in one market.
type Balance struct {
	Market      string `json:"market"`
	BaseFree    uint64 `json:"base_free"`
	BaseLocked  uint64 `json:"base_locked"`
	QuoteFree   uint64 `json:"quote_free"`
	QuoteLocked uint64 `json:"quote_locked"`
}

// BalancesResponse from GET /v1/accounts/{owner}/balances.
type BalancesResponse struct {
	Owner    string    `json:"owner"`
	Balances []Balance `json:"balances"`
}

// Transaction from the POST /v1/tx/* builders: a base64-encoded unsigned
// transaction plus the message to sign.
type Transaction struct {
	Transaction string `json:"transaction"`
	Message     string `json:"message"`
}

// GetTradesOptions configures a GetTrades request.
type GetTradesOptions struct {
	Limit  int
	Cursor string
}

// GetCandlesOptions configures a GetCandles request.
type GetCandlesOptions struct {
	Interval string
	Start    int64
	End      int64
	Limit    int
}

// PlaceOrderRequest for POST /v1/tx/place-order.
type PlaceOrderRequest struct {
	Market        string  `json:"market"`
	Owner         string  `json:"owner"`
	Side          string  `json:"side"`
	Price         uint64  `json:"price"`
	Quantity      uint64  `json:"quantity"`
	ClientOrderID *uint64 `json:"client_order_id,omitempty"`
}

// CancelOrderRequest for POST /v1/tx/cancel-order.
type CancelOrderRequest struct {
	Market  string `json:"market"`
	Owner   string `json:"owner"`
	OrderID string `json:"order_id"`
}

// DepositRequest for POST /v1/tx/deposit.
type DepositRequest struct {
	Market      string  `json:"market"`
	Owner       string  `json:"owner"`
	BaseAmount  *uint64 `json:"base_amount,omitempty"`
	QuoteAmount *uint64 `json:"quote_amount,omitempty"`
}

// WithdrawRequest for POST /v1/tx/withdraw.
type WithdrawRequest struct {
	Market      string  `json:"market"`
	Owner       string  `json:"owner"`
	BaseAmount  *uint64 `json:"base_amount,omitempty"`
	QuoteAmount *uint64 `json:"quote_amount,omitempty"`
}

// HealthResponse from GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
