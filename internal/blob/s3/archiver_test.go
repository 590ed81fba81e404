package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"arbwatch/internal/domain"
)

type fakeWriter struct {
	paths    []string
	payloads [][]byte
	err      error
}

func (f *fakeWriter) Put(_ context.Context, path string, data []byte, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.paths = append(f.paths, path)
	f.payloads = append(f.payloads, data)
	return nil
}

type fakeArchiveStore struct {
	signals []domain.Signal
	deleted bool
}

func (f *fakeArchiveStore) ListBefore(context.Context, time.Time) ([]domain.Signal, error) {
	return f.signals, nil
}

func (f *fakeArchiveStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	f.deleted = true
	return int64(len(f.signals)), nil
}

func archiveSignal(id string) domain.Signal {
	return domain.Signal{
		ID:         id,
		Direction:  domain.DirectionBuyCexSellDex,
		CexPrice:   decimal.RequireFromString("101.5"),
		DexPrice:   decimal.RequireFromString("103"),
		MidPrice:   decimal.RequireFromString("101"),
		BaseVolume: decimal.NewFromInt(1),
		MarginPPM:  10,
		DetectedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestArchiveOnceUploadsAndPrunes(t *testing.T) {
	writer := &fakeWriter{}
	store := &fakeArchiveStore{signals: []domain.Signal{archiveSignal("a"), archiveSignal("b")}}
	arch := NewSignalArchiver(writer, store, 90, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveOnce(context.Background())
	if err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 archived, got %d", n)
	}
	if !store.deleted {
		t.Fatal("expected prune after successful upload")
	}
	if len(writer.paths) != 1 {
		t.Fatalf("expected one upload, got %d", len(writer.paths))
	}

	lines := bytes.Split(bytes.TrimSpace(writer.payloads[0]), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSONL lines, got %d", len(lines))
	}
	var rec signalRecord
	if err := json.Unmarshal(lines[0], &rec); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if rec.ID != "a" || rec.CexPrice != "101.5" {
		t.Fatalf("record mismatch: %+v", rec)
	}
}

func TestArchiveOnceEmptyIsNoop(t *testing.T) {
	writer := &fakeWriter{}
	store := &fakeArchiveStore{}
	arch := NewSignalArchiver(writer, store, 90, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := arch.ArchiveOnce(context.Background())
	if err != nil {
		t.Fatalf("ArchiveOnce: %v", err)
	}
	if n != 0 || len(writer.paths) != 0 || store.deleted {
		t.Fatal("expected no upload or prune for empty store")
	}
}

func TestArchiveOnceDoesNotPruneOnUploadFailure(t *testing.T) {
	writer := &fakeWriter{err: errors.New("access denied")}
	store := &fakeArchiveStore{signals: []domain.Signal{archiveSignal("a")}}
	arch := NewSignalArchiver(writer, store, 90, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := arch.ArchiveOnce(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	if store.deleted {
		t.Fatal("must not prune when the upload failed")
	}
}
