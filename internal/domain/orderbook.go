package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies one side of an order book.
type Side int

const (
	SideBid Side = iota
	SideAsk
)

// String returns the lowercase side name.
func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	default:
		return "unknown"
	}
}

// PriceLevel is a single price+quantity entry in an order book. A quantity of
// exactly zero means "remove this price level" and is never stored.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// BookUpdate is a normalized order-book event from the CEX feed: a batch of
// level updates for one side, already decoded and validated by the feed.
// Snapshot marks the first event of a fresh snapshot; any previously held
// book state must be discarded before applying it.
type BookUpdate struct {
	Side      Side
	Levels    []PriceLevel
	Snapshot  bool
	Timestamp time.Time
}

// RefPriceUpdate is a normalized reference-price event from the DEX feed.
// The price fully replaces any previously observed value.
type RefPriceUpdate struct {
	Price     decimal.Decimal
	Timestamp time.Time
}

// VenuePrices bundles the latest observed price from each venue for status
// reporting.
type VenuePrices struct {
	CexMid   decimal.Decimal
	CexAt    time.Time
	DexPrice decimal.Decimal
	DexAt    time.Time
}
