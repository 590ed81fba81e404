package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// PriceCache holds the latest observed price from each venue.
type PriceCache interface {
	SetCexMid(ctx context.Context, mid decimal.Decimal, ts time.Time) error
	SetDexPrice(ctx context.Context, price decimal.Decimal, ts time.Time) error
	GetVenuePrices(ctx context.Context) (VenuePrices, error)
}

// StreamMessage represents a single entry from a durable signal stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub fan-out plus durable, ordered streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads serialized archives to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}
