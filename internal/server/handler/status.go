package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"arbwatch/internal/domain"
)

// StatusHandler reports the run mode and the latest observed venue prices.
type StatusHandler struct {
	mode   string
	pair   string
	prices domain.PriceCache
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler. prices may be nil, in which case
// venue prices are omitted from the response.
func NewStatusHandler(mode, pair string, prices domain.PriceCache, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:   mode,
		pair:   pair,
		prices: prices,
		logger: logger.With(slog.String("handler", "status")),
	}
}

// GetStatus responds with the backend mode, watched pair, and latest prices.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode": h.mode,
		"pair": h.pair,
	}

	if h.prices != nil {
		vp, err := h.prices.GetVenuePrices(r.Context())
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// No prices observed yet; report status without them.
		case err != nil:
			h.logger.WarnContext(r.Context(), "venue prices unavailable",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusServiceUnavailable, "price cache unavailable")
			return
		default:
			resp["venues"] = map[string]any{
				"cex": venueEntry(vp.CexMid.String(), vp.CexAt),
				"dex": venueEntry(vp.DexPrice.String(), vp.DexAt),
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func venueEntry(price string, at time.Time) map[string]any {
	entry := map[string]any{"price": price}
	if !at.IsZero() {
		entry["observed_at"] = at.UTC().Format(time.RFC3339Nano)
	}
	return entry
}
