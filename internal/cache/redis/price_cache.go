package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"arbwatch/internal/domain"
)

// PriceCache implements domain.PriceCache on a single Redis hash holding the
// latest observed price per venue. Prices are stored as exact decimal text;
// timestamps as Unix nanoseconds.
type PriceCache struct {
	rdb *redis.Client
	key string
}

const (
	fieldCexMid  = "cex_mid"
	fieldCexTs   = "cex_ts"
	fieldDexMid  = "dex_price"
	fieldDexTs   = "dex_ts"
	priceHashKey = "prices:latest"
)

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.rdb, key: priceHashKey}
}

// SetCexMid stores the latest CEX mid price.
func (pc *PriceCache) SetCexMid(ctx context.Context, mid decimal.Decimal, ts time.Time) error {
	return pc.set(ctx, fieldCexMid, fieldCexTs, mid, ts)
}

// SetDexPrice stores the latest DEX reference price.
func (pc *PriceCache) SetDexPrice(ctx context.Context, price decimal.Decimal, ts time.Time) error {
	return pc.set(ctx, fieldDexMid, fieldDexTs, price, ts)
}

func (pc *PriceCache) set(ctx context.Context, priceField, tsField string, price decimal.Decimal, ts time.Time) error {
	fields := map[string]interface{}{
		priceField: price.String(),
		tsField:    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, pc.key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", priceField, err)
	}
	return nil
}

// GetVenuePrices returns the latest price per venue. Venues that have not
// reported yet are left zero-valued; a fully empty hash yields
// domain.ErrNotFound.
func (pc *PriceCache) GetVenuePrices(ctx context.Context) (domain.VenuePrices, error) {
	vals, err := pc.rdb.HGetAll(ctx, pc.key).Result()
	if err != nil {
		return domain.VenuePrices{}, fmt.Errorf("redis: get venue prices: %w", err)
	}
	if len(vals) == 0 {
		return domain.VenuePrices{}, domain.ErrNotFound
	}

	var out domain.VenuePrices
	if out.CexMid, out.CexAt, err = parseVenue(vals, fieldCexMid, fieldCexTs); err != nil {
		return domain.VenuePrices{}, err
	}
	if out.DexPrice, out.DexAt, err = parseVenue(vals, fieldDexMid, fieldDexTs); err != nil {
		return domain.VenuePrices{}, err
	}
	return out, nil
}

func parseVenue(vals map[string]string, priceField, tsField string) (decimal.Decimal, time.Time, error) {
	raw, ok := vals[priceField]
	if !ok {
		return decimal.Decimal{}, time.Time{}, nil
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("redis: parse %s: %w", priceField, err)
	}
	tsNano, err := strconv.ParseInt(vals[tsField], 10, 64)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, fmt.Errorf("redis: parse %s: %w", tsField, err)
	}
	return price, time.Unix(0, tsNano).UTC(), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
