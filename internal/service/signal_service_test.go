package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbwatch/internal/domain"
)

type fakeStore struct {
	inserted []domain.Signal
	err      error
}

func (f *fakeStore) Insert(_ context.Context, sig domain.Signal) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, sig)
	return nil
}

func (f *fakeStore) ListRecent(context.Context, int) ([]domain.Signal, error) { return nil, nil }
func (f *fakeStore) ListBefore(context.Context, time.Time) ([]domain.Signal, error) {
	return nil, nil
}

type fakeBus struct {
	published [][]byte
	appended  [][]byte
	pubErr    error
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	if f.pubErr != nil {
		return f.pubErr
	}
	if channel != SignalChannel {
		return errors.New("unexpected channel " + channel)
	}
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

func (f *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	if stream != SignalStream {
		return errors.New("unexpected stream " + stream)
	}
	f.appended = append(f.appended, payload)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type fakeNotifier struct {
	events []string
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.events = append(f.events, event)
	return f.err
}

func testSignal() domain.Signal {
	return domain.Signal{
		ID:          "sig-1",
		Direction:   domain.DirectionBuyCexSellDex,
		CexPrice:    decimal.RequireFromString("101"),
		DexPrice:    decimal.RequireFromString("102"),
		MidPrice:    decimal.RequireFromString("100.5"),
		BaseVolume:  decimal.NewFromInt(1),
		QuoteVolume: decimal.RequireFromString("102"),
		MarginPPM:   10,
		DetectedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEmitFansOutToAllConsumers(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{}
	notifier := &fakeNotifier{}
	svc := NewSignalService(store, bus, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := svc.Emit(context.Background(), testSignal()); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(store.inserted))
	}
	if len(bus.published) != 1 || len(bus.appended) != 1 {
		t.Fatalf("expected publish+append, got %d/%d", len(bus.published), len(bus.appended))
	}
	if len(notifier.events) != 1 || notifier.events[0] != "signal_detected" {
		t.Fatalf("expected signal_detected notification, got %v", notifier.events)
	}

	var evt signalEvent
	if err := json.Unmarshal(bus.published[0], &evt); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if evt.SignalID != "sig-1" || evt.CexPrice != "101" || evt.Direction != "buy_cex_sell_dex" {
		t.Fatalf("event payload mismatch: %+v", evt)
	}
}

func TestEmitStoreFailureIsFatal(t *testing.T) {
	store := &fakeStore{err: errors.New("connection refused")}
	bus := &fakeBus{}
	svc := NewSignalService(store, bus, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := svc.Emit(context.Background(), testSignal()); err == nil {
		t.Fatal("expected error from failed insert")
	}
	if len(bus.published) != 0 {
		t.Fatal("signal must not be published when persistence fails")
	}
}

func TestEmitBusFailureIsNonFatal(t *testing.T) {
	store := &fakeStore{}
	bus := &fakeBus{pubErr: errors.New("broken pipe")}
	notifier := &fakeNotifier{}
	svc := NewSignalService(store, bus, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := svc.Emit(context.Background(), testSignal()); err != nil {
		t.Fatalf("Emit should tolerate bus failures, got %v", err)
	}
	if len(notifier.events) != 1 {
		t.Fatal("notification must still be attempted after bus failure")
	}
}

func TestEmitWithNilDependencies(t *testing.T) {
	svc := NewSignalService(nil, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := svc.Emit(context.Background(), testSignal()); err != nil {
		t.Fatalf("Emit with nil deps: %v", err)
	}
}
