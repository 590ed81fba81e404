package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type recordingSender struct {
	name   string
	titles []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	if r.err != nil {
		return r.err
	}
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := New([]Sender{sender}, []string{"signal_detected"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := n.Notify(context.Background(), "feed_error", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 0 {
		t.Fatal("filtered event must not be delivered")
	}

	if err := n.Notify(context.Background(), "signal_detected", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Fatal("allowed event must be delivered")
	}
}

func TestNotifyEmptyEventListAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := New([]Sender{sender}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := n.Notify(context.Background(), "anything", "t", "m"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.titles) != 1 {
		t.Fatal("expected delivery with no filter configured")
	}
}

func TestNotifyFailingSenderDoesNotBlockOthers(t *testing.T) {
	broken := &recordingSender{name: "broken", err: errors.New("timeout")}
	healthy := &recordingSender{name: "healthy"}
	n := New([]Sender{broken, healthy}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	err := n.Notify(context.Background(), "signal_detected", "t", "m")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Fatalf("error should name the failed sender: %v", err)
	}
	if len(healthy.titles) != 1 {
		t.Fatal("healthy sender must still receive the alert")
	}
}

func TestDiscordSenderPostsWebhook(t *testing.T) {
	var gotContentType string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		buf := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "Title", "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotContentType != "application/json" {
		t.Fatalf("unexpected content type %q", gotContentType)
	}
	if !strings.Contains(gotBody, "**Title**") {
		t.Fatalf("expected bold title in payload, got %s", gotBody)
	}
}

func TestDiscordSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	if err := d.Send(context.Background(), "Title", "body"); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
