// Package agent merges the CEX book stream and the DEX reference-price
// stream into one ordered sequence of state changes and runs detection after
// every event.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"arbwatch/internal/book"
	"arbwatch/internal/detector"
	"arbwatch/internal/domain"
)

// Agent owns the latest-state slots for both venues and drives the detector.
// It is the sole mutator of the book; detection reads happen synchronously
// between events, so no locking is needed.
type Agent struct {
	cfg    detector.Config
	bookCh <-chan domain.BookUpdate
	refCh  <-chan domain.RefPriceUpdate
	sink   domain.SignalSink
	prices domain.PriceCache // optional, for status reporting
	logger *slog.Logger

	cexBook  *book.Book
	refPrice decimal.Decimal
	refSet   bool
}

// New creates an agent reading from the two feed channels. prices may be nil.
func New(cfg detector.Config, bookCh <-chan domain.BookUpdate, refCh <-chan domain.RefPriceUpdate, sink domain.SignalSink, prices domain.PriceCache, logger *slog.Logger) *Agent {
	return &Agent{
		cfg:    cfg,
		bookCh: bookCh,
		refCh:  refCh,
		sink:   sink,
		prices: prices,
		logger: logger.With(slog.String("component", "agent")),
	}
}

// Run processes events until the context is cancelled or both feed channels
// are closed. Exhaustion of both sources is normal termination; a single
// closed source leaves the survivor running.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "agent started",
		slog.Int64("min_gain_margin_ppm", a.cfg.MinGainMarginPPM),
		slog.String("max_trade_volume", a.cfg.MaxTradeVolume.String()),
	)

	bookCh, refCh := a.bookCh, a.refCh
	for {
		if bookCh == nil && refCh == nil {
			a.logger.InfoContext(ctx, "both feed channels closed, shutting down")
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-bookCh:
			if !ok {
				bookCh = nil
				continue
			}
			a.handleBookUpdate(ctx, upd)
		case upd, ok := <-refCh:
			if !ok {
				refCh = nil
				continue
			}
			a.handleRefPrice(ctx, upd)
		}

		a.detect(ctx)
	}
}

func (a *Agent) handleBookUpdate(ctx context.Context, upd domain.BookUpdate) {
	if a.cexBook == nil || upd.Snapshot {
		a.cexBook = book.New()
	}
	a.cexBook.ApplyUpdates(upd.Side, upd.Levels)

	if a.prices != nil {
		if mid, ok := a.cexBook.MidPrice(); ok {
			if err := a.prices.SetCexMid(ctx, mid, time.Now().UTC()); err != nil {
				a.logger.WarnContext(ctx, "price cache update failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (a *Agent) handleRefPrice(ctx context.Context, upd domain.RefPriceUpdate) {
	a.refPrice = upd.Price
	a.refSet = true

	if a.prices != nil {
		if err := a.prices.SetDexPrice(ctx, upd.Price, time.Now().UTC()); err != nil {
			a.logger.WarnContext(ctx, "price cache update failed", slog.String("error", err.Error()))
		}
	}
}

// detect runs one detection pass. It is a no-op until at least one update
// has been received from each venue.
func (a *Agent) detect(ctx context.Context) {
	if a.cexBook == nil || !a.refSet {
		return
	}

	for _, sig := range detector.Detect(a.cexBook, a.refPrice, a.cfg) {
		a.logger.InfoContext(ctx, "arbitrage signal",
			slog.String("signal_id", sig.ID),
			slog.String("direction", string(sig.Direction)),
			slog.String("cex_price", sig.CexPrice.String()),
			slog.String("dex_price", sig.DexPrice.String()),
			slog.String("base_volume", sig.BaseVolume.String()),
			slog.String("quote_volume", sig.QuoteVolume.String()),
		)
		if a.sink == nil {
			continue
		}
		if err := a.sink.Emit(ctx, sig); err != nil {
			a.logger.WarnContext(ctx, "signal sink emit failed",
				slog.String("signal_id", sig.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
