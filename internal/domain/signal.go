package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Direction indicates which way a detected arbitrage round trip runs.
type Direction string

const (
	// DirectionBuyCexSellDex means buy the base asset on the CEX order book
	// and sell it at the DEX reference price.
	DirectionBuyCexSellDex Direction = "buy_cex_sell_dex"

	// DirectionSellCexBuyDex means sell the base asset into the CEX order
	// book and buy it back at the DEX reference price.
	DirectionSellCexBuyDex Direction = "sell_cex_buy_dex"
)

// Signal is a detected cross-venue price discrepancy. It is fee-exclusive:
// a necessary-but-not-sufficient indication that a profitable round trip may
// exist, not an executable quote.
type Signal struct {
	ID          string
	Direction   Direction
	CexPrice    decimal.Decimal // average fill price walking the CEX book
	DexPrice    decimal.Decimal // DEX reference price used in the comparison
	MidPrice    decimal.Decimal // CEX mid at detection time
	BaseVolume  decimal.Decimal // units of the base asset
	QuoteVolume decimal.Decimal // units of the quote asset
	MarginPPM   int64           // configured minimum edge, parts per million
	DetectedAt  time.Time
}

// SignalSink receives signals emitted by the agent. Implementations must not
// retain references to the signal's decimal values beyond the call.
type SignalSink interface {
	Emit(ctx context.Context, sig Signal) error
}

// SignalStore persists signals and serves history queries.
type SignalStore interface {
	Insert(ctx context.Context, sig Signal) error
	ListRecent(ctx context.Context, limit int) ([]Signal, error)
	ListBefore(ctx context.Context, before time.Time) ([]Signal, error)
}
