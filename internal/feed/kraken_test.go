package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"arbwatch/internal/config"
	"arbwatch/internal/domain"
)

func testKrakenFeed() *KrakenFeed {
	return NewKrakenFeed(config.CexConfig{
		WsURL: "wss://ws.kraken.com/v2",
		Pair:  "SOL/USD",
		Depth: 10,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func drain(t *testing.T, ch <-chan domain.BookUpdate, n int) []domain.BookUpdate {
	t.Helper()
	out := make([]domain.BookUpdate, 0, n)
	for len(out) < n {
		select {
		case upd := <-ch:
			out = append(out, upd)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d of %d", len(out)+1, n)
		}
	}
	return out
}

func TestSnapshotEmitsAsksThenBids(t *testing.T) {
	f := testKrakenFeed()
	raw := []byte(`{"channel":"book","type":"snapshot","data":[{"symbol":"SOL/USD",
		"bids":[{"price":"100.25","qty":"5.0"},{"price":"100.00","qty":"2.0"}],
		"asks":[{"price":"100.5","qty":"1.5"}],
		"checksum":123,"timestamp":"2026-01-02T03:04:05.000000Z"}]}`)

	if err := f.handleMessage(context.Background(), raw); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	updates := drain(t, f.Updates(), 2)

	if updates[0].Side != domain.SideAsk {
		t.Fatalf("expected asks first, got %s", updates[0].Side)
	}
	if !updates[0].Snapshot {
		t.Fatal("first snapshot event must carry the reset marker")
	}
	if updates[1].Side != domain.SideBid || updates[1].Snapshot {
		t.Fatalf("expected non-reset bids second, got side=%s snapshot=%v", updates[1].Side, updates[1].Snapshot)
	}
	if len(updates[1].Levels) != 2 {
		t.Fatalf("expected 2 bid levels, got %d", len(updates[1].Levels))
	}
	if updates[0].Levels[0].Price.String() != "100.5" {
		t.Fatalf("ask price mismatch: %s", updates[0].Levels[0].Price)
	}
	if updates[0].Timestamp.IsZero() {
		t.Fatal("expected wire timestamp to be preserved")
	}
}

func TestUpdateEmitsOnlyChangedSides(t *testing.T) {
	f := testKrakenFeed()
	raw := []byte(`{"channel":"book","type":"update","data":[{"symbol":"SOL/USD",
		"bids":[{"price":"100.25","qty":"0"}],"asks":[],
		"checksum":456,"timestamp":"2026-01-02T03:04:06.000000Z"}]}`)

	if err := f.handleMessage(context.Background(), raw); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	updates := drain(t, f.Updates(), 1)

	if updates[0].Side != domain.SideBid {
		t.Fatalf("expected bid update, got %s", updates[0].Side)
	}
	if updates[0].Snapshot {
		t.Fatal("incremental update must not carry the reset marker")
	}
	if !updates[0].Levels[0].Quantity.IsZero() {
		t.Fatalf("expected zero-qty removal level, got %s", updates[0].Levels[0].Quantity)
	}

	select {
	case upd := <-f.Updates():
		t.Fatalf("unexpected extra update for empty side: %+v", upd)
	default:
	}
}

func TestHeartbeatAndStatusIgnored(t *testing.T) {
	f := testKrakenFeed()
	for _, raw := range []string{
		`{"channel":"heartbeat"}`,
		`{"channel":"status","type":"update","data":[]}`,
		`{"method":"subscribe","success":true,"result":{"channel":"book"}}`,
	} {
		if err := f.handleMessage(context.Background(), []byte(raw)); err != nil {
			t.Fatalf("handleMessage(%s): %v", raw, err)
		}
	}
	select {
	case upd := <-f.Updates():
		t.Fatalf("unexpected update: %+v", upd)
	default:
	}
}

func TestSubscribeRejectionIsFatal(t *testing.T) {
	f := testKrakenFeed()
	raw := []byte(`{"method":"subscribe","success":false,"error":"Currency pair not supported"}`)
	if err := f.handleMessage(context.Background(), raw); err == nil {
		t.Fatal("expected error for rejected subscription")
	}
}

func TestBadNumericTearsConnectionDown(t *testing.T) {
	f := testKrakenFeed()
	cases := []string{
		// malformed price text
		`{"channel":"book","type":"update","data":[{"symbol":"SOL/USD","bids":[{"price":"abc","qty":"1"}],"asks":[]}]}`,
		// non-positive price
		`{"channel":"book","type":"update","data":[{"symbol":"SOL/USD","bids":[{"price":"0","qty":"1"}],"asks":[]}]}`,
		// negative quantity
		`{"channel":"book","type":"update","data":[{"symbol":"SOL/USD","bids":[{"price":"100","qty":"-1"}],"asks":[]}]}`,
	}
	for _, raw := range cases {
		if err := f.handleMessage(context.Background(), []byte(raw)); err == nil {
			t.Fatalf("expected error for %s", raw)
		}
	}
}

func TestInvalidLevelWrapsDomainError(t *testing.T) {
	f := testKrakenFeed()
	raw := []byte(`{"channel":"book","type":"update","data":[{"symbol":"SOL/USD","bids":[{"price":"-5","qty":"1"}],"asks":[]}]}`)
	err := f.handleMessage(context.Background(), raw)
	if !errors.Is(err, domain.ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}

func TestOtherSymbolIgnored(t *testing.T) {
	f := testKrakenFeed()
	raw := []byte(`{"channel":"book","type":"update","data":[{"symbol":"BTC/USD","bids":[{"price":"60000","qty":"1"}],"asks":[]}]}`)
	if err := f.handleMessage(context.Background(), raw); err != nil {
		t.Fatalf("handleMessage: %v", err)
	}
	select {
	case upd := <-f.Updates():
		t.Fatalf("unexpected update for foreign symbol: %+v", upd)
	default:
	}
}
