package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mandippal/matchbook/book"
)

// Errors
var (
	ErrNotConnected = errors.New("not connected")
	ErrClosed       = errors.New("client closed")

	errUnknownMessage = errors.New("unknown message type")
)

// ConnectionState is the explicit state of the managed connection. It is
// owned exclusively by the Client; other code only observes it.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config configures a streaming Client.
type Config struct {
	// URL is the websocket endpoint (e.g. wss://stream.matchbook.example/v1/ws).
	URL string

	// PingInterval is how often a ping frame carrying the local time is sent.
	PingInterval time.Duration

	// ReconnectBaseDelay is the first backoff delay after an unexpected
	// disconnect. The delay doubles per consecutive failure up to
	// ReconnectMaxDelay.
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration

	// MaxReconnectAttempts bounds consecutive failed reconnection attempts
	// before reconnection is abandoned.
	MaxReconnectAttempts int

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration

	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration

	// BufferSize is the inbound message channel capacity.
	BufferSize int

	// Logger receives structured diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for everything but the URL.
func DefaultConfig() Config {
	return Config{
		PingInterval:         30 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		MaxReconnectAttempts: 10,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}

// applyDefaults fills zero fields from DefaultConfig.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.BufferSize == 0 {
		c.BufferSize = def.BufferSize
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// validate reports construction-time configuration mistakes.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("stream: URL is required")
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("stream: invalid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("stream: URL scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.ReconnectBaseDelay < 0 || c.ReconnectMaxDelay < 0 {
		return errors.New("stream: reconnect delays must be non-negative")
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		return fmt.Errorf("stream: ReconnectMaxDelay (%v) below ReconnectBaseDelay (%v)",
			c.ReconnectMaxDelay, c.ReconnectBaseDelay)
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("stream: MaxReconnectAttempts must be non-negative")
	}
	return nil
}

// BookView is a read-only copy of a market's reconstructed book, handed to
// book handlers and returned by Client.Book. Callers never receive a mutable
// reference to the live book.
type BookView struct {
	Market   string
	Slot     uint64
	Sequence uint64
	Bids     []book.Level
	Asks     []book.Level
	Synced   bool
}

// Handler signatures per channel.
type (
	BookHandler        func(BookView)
	TradeHandler       func(Trade)
	TickerHandler      func(Ticker)
	OrderUpdateHandler func(OrderUpdate)

	// ErrorHandler receives transport-level errors and inbound error frames.
	ErrorHandler func(error)

	// DisconnectHandler is invoked once per transition into Reconnecting
	// (transient drop) or Disconnected (terminal).
	DisconnectHandler func()
)

// Stats is a point-in-time view of client counters.
type Stats struct {
	State            ConnectionState
	MessagesReceived int64
	SequenceGaps     int64
	Resyncs          int64
	Reconnects       int64
	Subscriptions    int
}
