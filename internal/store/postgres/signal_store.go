package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"arbwatch/internal/domain"
)

// SignalStore implements domain.SignalStore using PostgreSQL. Prices and
// volumes are stored as NUMERIC so the exact detected values round-trip.
type SignalStore struct {
	pool *pgxpool.Pool
}

// NewSignalStore creates a SignalStore backed by the given connection pool.
func NewSignalStore(pool *pgxpool.Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

const signalSelectCols = `id, direction, cex_price, dex_price, mid_price,
	base_volume, quote_volume, margin_ppm, detected_at`

// Insert stores a detected signal.
func (s *SignalStore) Insert(ctx context.Context, sig domain.Signal) error {
	const query = `
		INSERT INTO signals (
			id, direction, cex_price, dex_price, mid_price,
			base_volume, quote_volume, margin_ppm, detected_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9
		)`

	_, err := s.pool.Exec(ctx, query,
		sig.ID, string(sig.Direction), sig.CexPrice, sig.DexPrice, sig.MidPrice,
		sig.BaseVolume, sig.QuoteVolume, sig.MarginPPM, sig.DetectedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

// ListRecent returns the most recent signals ordered by detection time.
func (s *SignalStore) ListRecent(ctx context.Context, limit int) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signals ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// ListBefore returns all signals detected strictly before the given time,
// oldest first. Used by the archiver to select rows due for export.
func (s *SignalStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error) {
	query := `SELECT ` + signalSelectCols + ` FROM signals
		WHERE detected_at < $1 ORDER BY detected_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list signals before %s: %w", before, err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// DeleteBefore removes signals detected strictly before the given time and
// returns the number of rows deleted.
func (s *SignalStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM signals WHERE detected_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete signals before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanSignals(rows pgxRows) ([]domain.Signal, error) {
	var sigs []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var direction string
		if err := rows.Scan(
			&sig.ID, &direction, &sig.CexPrice, &sig.DexPrice, &sig.MidPrice,
			&sig.BaseVolume, &sig.QuoteVolume, &sig.MarginPPM, &sig.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		sig.Direction = domain.Direction(direction)
		sigs = append(sigs, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate signals: %w", err)
	}
	return sigs, nil
}

var _ domain.SignalStore = (*SignalStore)(nil)
