// streamtest connects to the Matchbook WebSocket and prints parsed messages
// to the console.
// Usage: go run ./cmd/streamtest --url wss://ws.matchbook.dev --market <address>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mandippal/matchbook/stream"
)

func main() {
	url := flag.String("url", "wss://ws.matchbook.dev", "websocket url")
	market := flag.String("market", "", "market address to subscribe")
	depth := flag.Int("depth", 10, "book depth")
	verbose := flag.Bool("verbose", false, "print every book update")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if *market == "" {
		logger.Error("--market is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	cfg := stream.DefaultConfig()
	cfg.URL = *url
	cfg.Logger = logger

	client, err := stream.New(cfg)
	if err != nil {
		logger.Error("failed to create stream client", "error", err)
		os.Exit(1)
	}
	client.OnError(func(err error) {
		logger.Warn("stream error", "error", err)
	})
	client.OnDisconnect(func() {
		logger.Warn("stream disconnected", "state", client.State())
	})

	var lastPrint time.Time
	client.SubscribeBook(*market, *depth, func(view stream.BookView) {
		// Throttle book output unless verbose
		if !*verbose && time.Since(lastPrint) < time.Second {
			return
		}
		lastPrint = time.Now()

		bid, ask := "-", "-"
		if len(view.Bids) > 0 {
			bid = fmt.Sprintf("%s x %s", view.Bids[0].Price, view.Bids[0].Quantity)
		}
		if len(view.Asks) > 0 {
			ask = fmt.Sprintf("%s x %s", view.Asks[0].Price, view.Asks[0].Quantity)
		}
		fmt.Printf("[book] seq=%d slot=%d bid=%s ask=%s levels=%d/%d\n",
			view.Sequence, view.Slot, bid, ask, len(view.Bids), len(view.Asks))
	})

	client.SubscribeTrades(*market, func(t stream.Trade) {
		fmt.Printf("[trade] %s %s x %s (%s)\n", t.Side, t.Price, t.Quantity, t.ID)
	})

	if err := client.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	logger.Info("streaming", "market", *market, "depth", *depth)

	<-ctx.Done()

	stats := client.Stats()
	fmt.Printf("\nmessages=%d gaps=%d resyncs=%d reconnects=%d\n",
		stats.MessagesReceived, stats.SequenceGaps, stats.Resyncs, stats.Reconnects)
}
