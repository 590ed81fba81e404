package handler

import (
	"log/slog"
	"net/http"
	"time"

	"arbwatch/internal/domain"
)

// SignalHandler serves signal history from the store.
type SignalHandler struct {
	store  domain.SignalStore
	logger *slog.Logger
}

// NewSignalHandler creates a SignalHandler.
func NewSignalHandler(store domain.SignalStore, logger *slog.Logger) *SignalHandler {
	return &SignalHandler{
		store:  store,
		logger: logger.With(slog.String("handler", "signals")),
	}
}

// ListRecent responds with the most recent signals, newest first.
// GET /api/signals/recent?limit=N
func (h *SignalHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)

	sigs, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list recent signals failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list signals")
		return
	}

	out := make([]signalResponse, 0, len(sigs))
	for _, sig := range sigs {
		out = append(out, toSignalResponse(sig))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signals": out,
		"count":   len(out),
	})
}

// signalResponse is the JSON shape for a signal. Decimals are strings so
// clients receive exact values.
type signalResponse struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	CexPrice    string    `json:"cex_price"`
	DexPrice    string    `json:"dex_price"`
	MidPrice    string    `json:"mid_price"`
	BaseVolume  string    `json:"base_volume"`
	QuoteVolume string    `json:"quote_volume"`
	MarginPPM   int64     `json:"margin_ppm"`
	DetectedAt  time.Time `json:"detected_at"`
}

func toSignalResponse(sig domain.Signal) signalResponse {
	return signalResponse{
		ID:          sig.ID,
		Direction:   string(sig.Direction),
		CexPrice:    sig.CexPrice.String(),
		DexPrice:    sig.DexPrice.String(),
		MidPrice:    sig.MidPrice.String(),
		BaseVolume:  sig.BaseVolume.String(),
		QuoteVolume: sig.QuoteVolume.String(),
		MarginPPM:   sig.MarginPPM,
		DetectedAt:  sig.DetectedAt,
	}
}
