// Package book maintains a single venue's two-sided price ladder and answers
// liquidity-aware price queries. All arithmetic is exact decimal; empty-book
// and insufficient-depth conditions are reported via a false second return,
// never an error.
package book

import (
	"sort"

	"github.com/shopspring/decimal"

	"arbwatch/internal/domain"
)

// bookSide is an ordered price->quantity mapping, ascending by price with
// unique keys and strictly positive quantities.
type bookSide struct {
	levels []domain.PriceLevel
}

// find returns the insertion index for price and whether an exact match
// exists there.
func (s *bookSide) find(price decimal.Decimal) (int, bool) {
	i := sort.Search(len(s.levels), func(i int) bool {
		return s.levels[i].Price.Cmp(price) >= 0
	})
	return i, i < len(s.levels) && s.levels[i].Price.Equal(price)
}

func (s *bookSide) apply(lvl domain.PriceLevel) {
	i, found := s.find(lvl.Price)
	if lvl.Quantity.IsZero() {
		// Removal of an absent level is a no-op.
		if found {
			s.levels = append(s.levels[:i], s.levels[i+1:]...)
		}
		return
	}
	if found {
		s.levels[i].Quantity = lvl.Quantity
		return
	}
	s.levels = append(s.levels, domain.PriceLevel{})
	copy(s.levels[i+1:], s.levels[i:])
	s.levels[i] = lvl
}

// Book is one venue's bid/ask ladder. It is not safe for concurrent use;
// the agent is its only mutator and detection reads happen between mutations.
type Book struct {
	bids bookSide
	asks bookSide
}

// New returns an empty book.
func New() *Book {
	return &Book{}
}

// ApplyUpdates applies a batch of level updates to one side, in order.
// A zero quantity removes the level; any other quantity inserts or
// overwrites it.
func (b *Book) ApplyUpdates(side domain.Side, updates []domain.PriceLevel) {
	s := b.side(side)
	for _, lvl := range updates {
		s.apply(lvl)
	}
}

func (b *Book) side(side domain.Side) *bookSide {
	if side == domain.SideBid {
		return &b.bids
	}
	return &b.asks
}

// BestBid returns the highest bid price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	if len(b.bids.levels) == 0 {
		return decimal.Decimal{}, false
	}
	return b.bids.levels[len(b.bids.levels)-1].Price, true
}

// BestAsk returns the lowest ask price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	if len(b.asks.levels) == 0 {
		return decimal.Decimal{}, false
	}
	return b.asks.levels[0].Price, true
}

// MidPrice returns the arithmetic mean of the best bid and best ask, or
// false when either side is empty.
func (b *Book) MidPrice() (decimal.Decimal, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return decimal.Decimal{}, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// AverageFillPrice simulates consuming liquidity against one side until
// target units are accumulated: asks are walked ascending from the best
// (buying), bids descending from the best (selling). It returns the
// volume-weighted average price, or false when the side's depth cannot fill
// the target. A zero or negative target returns zero without touching the
// book; callers are expected not to pass negative volumes.
func (b *Book) AverageFillPrice(target decimal.Decimal, side domain.Side) (decimal.Decimal, bool) {
	if target.Sign() <= 0 {
		return decimal.Zero, true
	}

	s := b.side(side)
	remaining := target
	totalCost := decimal.Zero

	for i := range s.levels {
		if remaining.IsZero() {
			break
		}
		lvl := s.levels[i]
		if side == domain.SideBid {
			lvl = s.levels[len(s.levels)-1-i]
		}
		take := decimal.Min(remaining, lvl.Quantity)
		totalCost = totalCost.Add(lvl.Price.Mul(take))
		remaining = remaining.Sub(take)
	}

	if !remaining.IsZero() {
		return decimal.Decimal{}, false
	}
	return totalCost.Div(target), true
}

// Depth returns the number of populated levels on one side.
func (b *Book) Depth(side domain.Side) int {
	return len(b.side(side).levels)
}
