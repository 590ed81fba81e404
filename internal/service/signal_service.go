// Package service contains the application services that sit between the
// detection pipeline and the infrastructure adapters.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"arbwatch/internal/domain"
)

// SignalChannel is the pub/sub channel live signals are published on.
const SignalChannel = "signals"

// SignalStream is the durable stream signals are appended to.
const SignalStream = "signals:stream"

// Notifier delivers operator alerts for a named event type.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// SignalService records detected signals: it persists them, publishes them on
// the bus for live consumers, appends them to the durable stream, and alerts
// operators. It implements domain.SignalSink.
//
// Persistence failure is the only fatal outcome; fan-out failures are logged
// and delivery continues so one slow consumer cannot wedge detection.
type SignalService struct {
	store    domain.SignalStore
	bus      domain.SignalBus
	notifier Notifier
	logger   *slog.Logger
}

// NewSignalService creates a SignalService. store, bus, and notifier may each
// be nil, in which case the corresponding step is skipped.
func NewSignalService(store domain.SignalStore, bus domain.SignalBus, notifier Notifier, logger *slog.Logger) *SignalService {
	return &SignalService{
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "signal_service")),
	}
}

// Emit records a single detected signal.
func (s *SignalService) Emit(ctx context.Context, sig domain.Signal) error {
	if s.store != nil {
		if err := s.store.Insert(ctx, sig); err != nil {
			return fmt.Errorf("signal_service: insert signal %q: %w", sig.ID, err)
		}
	}

	evt, err := json.Marshal(signalEvent{
		Event:       "signal_detected",
		SignalID:    sig.ID,
		Direction:   string(sig.Direction),
		CexPrice:    sig.CexPrice.String(),
		DexPrice:    sig.DexPrice.String(),
		MidPrice:    sig.MidPrice.String(),
		BaseVolume:  sig.BaseVolume.String(),
		QuoteVolume: sig.QuoteVolume.String(),
		MarginPPM:   sig.MarginPPM,
		DetectedAt:  sig.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("signal_service: marshal signal %q: %w", sig.ID, err)
	}

	if s.bus != nil {
		if pubErr := s.bus.Publish(ctx, SignalChannel, evt); pubErr != nil {
			s.logger.WarnContext(ctx, "signal_service: publish failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", pubErr.Error()),
			)
		}
		if streamErr := s.bus.StreamAppend(ctx, SignalStream, evt); streamErr != nil {
			s.logger.WarnContext(ctx, "signal_service: stream append failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", streamErr.Error()),
			)
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("Arbitrage signal: %s", sig.Direction)
		message := fmt.Sprintf(
			"cex=%s dex=%s mid=%s base_vol=%s quote_vol=%s margin_ppm=%d",
			sig.CexPrice, sig.DexPrice, sig.MidPrice,
			sig.BaseVolume, sig.QuoteVolume, sig.MarginPPM,
		)
		if notifyErr := s.notifier.Notify(ctx, "signal_detected", title, message); notifyErr != nil {
			s.logger.WarnContext(ctx, "signal_service: notify failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", notifyErr.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "signal_service: signal recorded",
		slog.String("signal_id", sig.ID),
		slog.String("direction", string(sig.Direction)),
	)
	return nil
}

// signalEvent is the JSON shape published on the bus and stream. Decimal
// fields are rendered as strings to keep exact values on the wire.
type signalEvent struct {
	Event       string    `json:"event"`
	SignalID    string    `json:"signal_id"`
	Direction   string    `json:"direction"`
	CexPrice    string    `json:"cex_price"`
	DexPrice    string    `json:"dex_price"`
	MidPrice    string    `json:"mid_price"`
	BaseVolume  string    `json:"base_volume"`
	QuoteVolume string    `json:"quote_volume"`
	MarginPPM   int64     `json:"margin_ppm"`
	DetectedAt  time.Time `json:"detected_at"`
}
