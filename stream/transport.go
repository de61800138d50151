package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// rawMessage wraps inbound frame bytes with the local receive timestamp.
type rawMessage struct {
	data       []byte
	receivedAt time.Time
}

// transport owns a single underlying websocket connection. A fresh transport
// is created for every (re)connection attempt; it is never reused after its
// connection ends.
type transport struct {
	url              string
	handshakeTimeout time.Duration
	writeTimeout     time.Duration
	logger           *slog.Logger

	conn *websocket.Conn

	messages chan rawMessage
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

func newTransport(cfg Config) *transport {
	return &transport{
		url:              cfg.URL,
		handshakeTimeout: cfg.HandshakeTimeout,
		writeTimeout:     cfg.WriteTimeout,
		logger:           cfg.Logger,
		messages:         make(chan rawMessage, cfg.BufferSize),
		errors:           make(chan error, 1),
		done:             make(chan struct{}),
	}
}

// connect dials the endpoint and starts the read loop.
func (t *transport) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: t.handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	go t.readLoop()

	t.logger.Debug("websocket connected", "url", t.url)
	return nil
}

// close tears the connection down. Safe to call more than once.
func (t *transport) close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	t.mu.Unlock()

	close(t.done)

	if t.conn != nil {
		t.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return t.conn.Close()
	}
	return nil
}

// send writes one framed text message.
func (t *transport) send(data []byte) error {
	t.mu.RLock()
	if !t.connected {
		t.mu.RUnlock()
		return ErrNotConnected
	}
	t.mu.RUnlock()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop pushes inbound frames onto the messages channel until the
// connection ends. The first read error after an unrequested close is
// surfaced on the errors channel.
func (t *transport) readLoop() {
	defer func() {
		t.mu.Lock()
		t.connected = false
		t.mu.Unlock()
		close(t.messages)
	}()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		_, data, err := t.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-t.done:
				// Close was requested; not an error.
			default:
				select {
				case t.errors <- err:
				default:
				}
			}
			return
		}

		select {
		case t.messages <- rawMessage{data: data, receivedAt: receivedAt}:
		case <-t.done:
			return
		default:
			t.logger.Warn("inbound buffer full, dropping message")
		}
	}
}
