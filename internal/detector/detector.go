// Package detector implements the arbitrage decision logic: a pure function
// from the current CEX book and DEX reference price to zero or more
// directional signals. It never fails; unavailable inputs (no book, no mid,
// insufficient depth) degrade to "no signal".
package detector

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arbwatch/internal/book"
	"arbwatch/internal/domain"
)

var million = decimal.NewFromInt(1_000_000)

// Config holds the immutable detection parameters.
type Config struct {
	// MinGainMarginPPM is the minimum required edge, expressed as parts per
	// million of the cost-side price.
	MinGainMarginPPM int64

	// MaxTradeVolume is the maximum base-asset volume to walk the book with.
	MaxTradeVolume decimal.Decimal
}

// marginFactor returns 1 + ppm/1e6.
func (c Config) marginFactor() decimal.Decimal {
	return decimal.NewFromInt(1).Add(decimal.NewFromInt(c.MinGainMarginPPM).Div(million))
}

// Detect evaluates both trade directions against the margin threshold and
// returns the signals that clear it. The comparison is strict: an edge
// exactly equal to the margin does not fire. The margin multiplies the cost
// side up before comparing, so the configured value always represents a
// minimum edge in ppm of the cost regardless of direction. CEX fees, DEX
// pool fees and gas are intentionally not modeled.
func Detect(b *book.Book, refPrice decimal.Decimal, cfg Config) []domain.Signal {
	if b == nil {
		return nil
	}
	mid, ok := b.MidPrice()
	if !ok {
		return nil
	}

	factor := cfg.marginFactor()
	var signals []domain.Signal

	// DEX price above CEX mid: buy base on the CEX asks, sell at the DEX
	// reference price.
	if refPrice.GreaterThan(mid) {
		if cexBuy, ok := b.AverageFillPrice(cfg.MaxTradeVolume, domain.SideAsk); ok {
			dexNetSell := refPrice
			if dexNetSell.GreaterThan(cexBuy.Mul(factor)) {
				signals = append(signals, domain.Signal{
					ID:          uuid.NewString(),
					Direction:   domain.DirectionBuyCexSellDex,
					CexPrice:    cexBuy,
					DexPrice:    refPrice,
					MidPrice:    mid,
					BaseVolume:  cfg.MaxTradeVolume,
					QuoteVolume: cfg.MaxTradeVolume.Mul(dexNetSell),
					MarginPPM:   cfg.MinGainMarginPPM,
					DetectedAt:  time.Now().UTC(),
				})
			}
		}
	}

	// DEX price below CEX mid: sell base into the CEX bids, buy back at the
	// DEX reference price.
	if refPrice.LessThan(mid) && refPrice.IsPositive() {
		if cexSell, ok := b.AverageFillPrice(cfg.MaxTradeVolume, domain.SideBid); ok {
			dexGrossBuy := refPrice
			if cexSell.GreaterThan(dexGrossBuy.Mul(factor)) {
				signals = append(signals, domain.Signal{
					ID:          uuid.NewString(),
					Direction:   domain.DirectionSellCexBuyDex,
					CexPrice:    cexSell,
					DexPrice:    refPrice,
					MidPrice:    mid,
					BaseVolume:  cfg.MaxTradeVolume,
					QuoteVolume: cfg.MaxTradeVolume.Div(dexGrossBuy),
					MarginPPM:   cfg.MinGainMarginPPM,
					DetectedAt:  time.Now().UTC(),
				})
			}
		}
	}

	return signals
}
