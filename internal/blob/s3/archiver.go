package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"arbwatch/internal/domain"
)

// ArchiveStore is the narrow store surface the archiver needs: querying
// signals due for export and pruning them afterwards.
type ArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Signal, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SignalArchiver exports signals older than the retention window to object
// storage as JSONL and prunes them from the primary store once the upload
// succeeds. Archive keys are partitioned by the cutoff's year-month:
//
//	archive/signals/2026-01.jsonl
type SignalArchiver struct {
	writer        domain.BlobWriter
	store         ArchiveStore
	retentionDays int
	logger        *slog.Logger
}

// NewSignalArchiver creates an archiver with the given retention window.
func NewSignalArchiver(writer domain.BlobWriter, store ArchiveStore, retentionDays int, logger *slog.Logger) *SignalArchiver {
	return &SignalArchiver{
		writer:        writer,
		store:         store,
		retentionDays: retentionDays,
		logger:        logger.With(slog.String("component", "signal_archiver")),
	}
}

// ArchiveOnce exports and prunes all signals detected before the cutoff
// implied by the retention window. It returns the number of archived rows.
func (a *SignalArchiver) ArchiveOnce(ctx context.Context) (int64, error) {
	before := time.Now().UTC().AddDate(0, 0, -a.retentionDays)

	sigs, err := a.store.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive query: %w", err)
	}
	if len(sigs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(sigs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive marshal: %w", err)
	}

	path := archivePath(before)
	if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive upload: %w", err)
	}

	// Prune only after a verified upload.
	deleted, err := a.store.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(sigs)), fmt.Errorf("s3blob: archive prune: %w", err)
	}

	a.logger.InfoContext(ctx, "signals archived",
		slog.String("path", path),
		slog.Int("archived", len(sigs)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(sigs)), nil
}

// RunLoop runs ArchiveOnce on the given interval until ctx is cancelled.
func (a *SignalArchiver) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.ArchiveOnce(ctx); err != nil {
				a.logger.WarnContext(ctx, "archive run failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/signals/%s.jsonl", before.Format("2006-01"))
}

// signalRecord is the JSONL row shape. Decimal fields are rendered as
// strings so archived values stay exact.
type signalRecord struct {
	ID          string    `json:"id"`
	Direction   string    `json:"direction"`
	CexPrice    string    `json:"cex_price"`
	DexPrice    string    `json:"dex_price"`
	MidPrice    string    `json:"mid_price"`
	BaseVolume  string    `json:"base_volume"`
	QuoteVolume string    `json:"quote_volume"`
	MarginPPM   int64     `json:"margin_ppm"`
	DetectedAt  time.Time `json:"detected_at"`
}

func marshalJSONL(sigs []domain.Signal) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, sig := range sigs {
		rec := signalRecord{
			ID:          sig.ID,
			Direction:   string(sig.Direction),
			CexPrice:    sig.CexPrice.String(),
			DexPrice:    sig.DexPrice.String(),
			MidPrice:    sig.MidPrice.String(),
			BaseVolume:  sig.BaseVolume.String(),
			QuoteVolume: sig.QuoteVolume.String(),
			MarginPPM:   sig.MarginPPM,
			DetectedAt:  sig.DetectedAt,
		}
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
