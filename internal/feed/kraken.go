// Package feed contains the venue market-data feeds. Each feed owns a
// websocket connection, normalizes wire messages into domain events, and
// delivers them on an output channel that is closed when the feed stops.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbwatch/internal/config"
	"arbwatch/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// handshakeTimeout bounds the websocket dial.
	handshakeTimeout = 15 * time.Second

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// KrakenFeed subscribes to the Kraken v2 "book" channel for a single pair and
// emits per-side BookUpdate events. Prices and quantities are decoded as
// exact decimals straight from the wire text; a message that fails to decode
// tears the connection down rather than risking a corrupt book.
type KrakenFeed struct {
	wsURL         string
	pair          string
	depth         int
	streamTimeout time.Duration
	out           chan domain.BookUpdate
	logger        *slog.Logger
}

// NewKrakenFeed creates a feed for the configured pair. Updates are delivered
// on Updates(); the channel is closed when Run returns.
func NewKrakenFeed(cfg config.CexConfig, logger *slog.Logger) *KrakenFeed {
	return &KrakenFeed{
		wsURL:         cfg.WsURL,
		pair:          cfg.Pair,
		depth:         cfg.Depth,
		streamTimeout: cfg.StreamTimeout.Duration,
		out:           make(chan domain.BookUpdate, 64),
		logger:        logger.With(slog.String("component", "kraken_feed")),
	}
}

// Updates returns the channel of normalized book events.
func (f *KrakenFeed) Updates() <-chan domain.BookUpdate {
	return f.out
}

// Run connects, subscribes, and pumps book events until ctx is cancelled.
// Disconnects and decode failures trigger reconnection with exponential
// backoff; each fresh connection yields a new snapshot.
func (f *KrakenFeed) Run(ctx context.Context) error {
	defer close(f.out)

	delay := reconnectDelay
	for {
		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.WarnContext(ctx, "kraken ws disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *KrakenFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return fmt.Errorf("feed/kraken: connect: %w", err)
	}
	defer conn.Close()

	// Unblock the read loop when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		case <-done:
		}
	}()

	if err := f.subscribe(conn); err != nil {
		return err
	}
	f.logger.InfoContext(ctx, "kraken ws subscribed",
		slog.String("pair", f.pair),
		slog.Int("depth", f.depth),
	)

	for {
		if f.streamTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(f.streamTimeout))
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed/kraken: read: %w", domain.ErrWSDisconnect)
		}
		if err := f.handleMessage(ctx, raw); err != nil {
			return err
		}
	}
}

func (f *KrakenFeed) subscribe(conn *websocket.Conn) error {
	cmd := krakenSubscribe{
		Method: "subscribe",
		Params: krakenSubscribeParams{
			Channel:  "book",
			Symbol:   []string{f.pair},
			Depth:    f.depth,
			Snapshot: true,
		},
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("feed/kraken: marshal subscribe: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("feed/kraken: subscribe: %w", err)
	}
	return nil
}

func (f *KrakenFeed) handleMessage(ctx context.Context, raw []byte) error {
	var msg krakenMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("feed/kraken: decode message: %w", err)
	}

	switch {
	case msg.Method == "subscribe":
		if msg.Success != nil && !*msg.Success {
			return fmt.Errorf("feed/kraken: subscribe rejected: %s", msg.Error)
		}
		return nil
	case msg.Channel == "heartbeat" || msg.Channel == "status":
		return nil
	case msg.Channel == "book":
		snapshot := msg.Type == "snapshot"
		for _, data := range msg.Data {
			if data.Symbol != "" && data.Symbol != f.pair {
				continue
			}
			ts := data.Timestamp
			if ts.IsZero() {
				ts = time.Now().UTC()
			}
			// Asks first, then bids; only the first event of a snapshot
			// carries the reset marker.
			if err := f.emit(ctx, domain.SideAsk, data.Asks, snapshot, ts); err != nil {
				return err
			}
			if len(data.Asks) > 0 {
				snapshot = false
			}
			if err := f.emit(ctx, domain.SideBid, data.Bids, snapshot, ts); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func (f *KrakenFeed) emit(ctx context.Context, side domain.Side, levels []krakenLevel, snapshot bool, ts time.Time) error {
	if len(levels) == 0 && !snapshot {
		return nil
	}
	upd := domain.BookUpdate{
		Side:      side,
		Levels:    make([]domain.PriceLevel, 0, len(levels)),
		Snapshot:  snapshot,
		Timestamp: ts,
	}
	for _, lvl := range levels {
		if lvl.Price.Sign() <= 0 {
			return fmt.Errorf("feed/kraken: %w: price %s", domain.ErrInvalidPrice, lvl.Price)
		}
		if lvl.Qty.Sign() < 0 {
			return fmt.Errorf("feed/kraken: %w: qty %s", domain.ErrInvalidPrice, lvl.Qty)
		}
		upd.Levels = append(upd.Levels, domain.PriceLevel{Price: lvl.Price, Quantity: lvl.Qty})
	}
	select {
	case f.out <- upd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wire types for the Kraken websocket API v2.

type krakenSubscribe struct {
	Method string                `json:"method"`
	Params krakenSubscribeParams `json:"params"`
}

type krakenSubscribeParams struct {
	Channel  string   `json:"channel"`
	Symbol   []string `json:"symbol"`
	Depth    int      `json:"depth,omitempty"`
	Snapshot bool     `json:"snapshot"`
}

type krakenLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

type krakenBookData struct {
	Symbol    string        `json:"symbol"`
	Bids      []krakenLevel `json:"bids"`
	Asks      []krakenLevel `json:"asks"`
	Checksum  uint32        `json:"checksum"`
	Timestamp time.Time     `json:"timestamp"`
}

type krakenMessage struct {
	Channel string           `json:"channel"`
	Type    string           `json:"type"`
	Method  string           `json:"method"`
	Success *bool            `json:"success"`
	Error   string           `json:"error"`
	Data    []krakenBookData `json:"data"`
}
