package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbwatch/internal/domain"
)

type stubStore struct {
	signals  []domain.Signal
	gotLimit int
	err      error
}

func (s *stubStore) Insert(context.Context, domain.Signal) error { return nil }

func (s *stubStore) ListRecent(_ context.Context, limit int) ([]domain.Signal, error) {
	s.gotLimit = limit
	return s.signals, s.err
}

func (s *stubStore) ListBefore(context.Context, time.Time) ([]domain.Signal, error) {
	return nil, nil
}

type stubPrices struct {
	vp  domain.VenuePrices
	err error
}

func (s *stubPrices) SetCexMid(context.Context, decimal.Decimal, time.Time) error   { return nil }
func (s *stubPrices) SetDexPrice(context.Context, decimal.Decimal, time.Time) error { return nil }
func (s *stubPrices) GetVenuePrices(context.Context) (domain.VenuePrices, error) {
	return s.vp, s.err
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler()
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
}

func TestGetStatusWithPrices(t *testing.T) {
	prices := &stubPrices{vp: domain.VenuePrices{
		CexMid:   decimal.RequireFromString("100.5"),
		CexAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		DexPrice: decimal.RequireFromString("102"),
		DexAt:    time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC),
	}}
	h := NewStatusHandler("watch", "SOL/USD", prices, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Mode   string `json:"mode"`
		Pair   string `json:"pair"`
		Venues map[string]struct {
			Price string `json:"price"`
		} `json:"venues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Mode != "watch" || body.Pair != "SOL/USD" {
		t.Fatalf("status mismatch: %+v", body)
	}
	if body.Venues["cex"].Price != "100.5" || body.Venues["dex"].Price != "102" {
		t.Fatalf("venue prices mismatch: %+v", body.Venues)
	}
}

func TestGetStatusBeforeFirstPrice(t *testing.T) {
	prices := &stubPrices{err: domain.ErrNotFound}
	h := NewStatusHandler("watch", "SOL/USD", prices, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when no prices observed yet, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := body["venues"]; ok {
		t.Fatal("venues must be omitted before first observation")
	}
}

func TestGetStatusCacheFailure(t *testing.T) {
	prices := &stubPrices{err: errors.New("connection refused")}
	h := NewStatusHandler("watch", "SOL/USD", prices, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestListRecentSignals(t *testing.T) {
	store := &stubStore{signals: []domain.Signal{{
		ID:          "sig-1",
		Direction:   domain.DirectionSellCexBuyDex,
		CexPrice:    decimal.RequireFromString("100"),
		DexPrice:    decimal.RequireFromString("99"),
		MidPrice:    decimal.RequireFromString("100.5"),
		BaseVolume:  decimal.NewFromInt(1),
		QuoteVolume: decimal.RequireFromString("0.01"),
		MarginPPM:   10,
		DetectedAt:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}}
	h := NewSignalHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/signals/recent?limit=10", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if store.gotLimit != 10 {
		t.Fatalf("expected limit 10 passed through, got %d", store.gotLimit)
	}
	var body struct {
		Signals []signalResponse `json:"signals"`
		Count   int              `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Count != 1 || body.Signals[0].CexPrice != "100" {
		t.Fatalf("response mismatch: %+v", body)
	}
}

func TestListRecentSignalsLimitCap(t *testing.T) {
	store := &stubStore{}
	h := NewSignalHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/signals/recent?limit=9999", nil))

	if store.gotLimit != 500 {
		t.Fatalf("expected limit capped at 500, got %d", store.gotLimit)
	}
}

func TestListRecentSignalsStoreError(t *testing.T) {
	store := &stubStore{err: errors.New("boom")}
	h := NewSignalHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := httptest.NewRecorder()
	h.ListRecent(rec, httptest.NewRequest(http.MethodGet, "/api/signals/recent", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
