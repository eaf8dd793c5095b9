package notification

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookNotifier_PostsTaggedEvent(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Event{
		Severity: SeverityWarning,
		Title:    "health degraded",
		Detail:   "exchange probe failed",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["source"] != "tradesentinel" {
		t.Errorf("expected source tag, got %q", got["source"])
	}
	if got["severity"] != "WARNING" || got["title"] != "health degraded" {
		t.Errorf("unexpected payload: %v", got)
	}
}

func TestWebhookNotifier_Non2xxIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Event{Severity: SeverityCritical, Title: "x"}); err == nil {
		t.Error("expected an error on a 5xx response")
	}
}

func TestLogNotifier_NeverFails(t *testing.T) {
	n := NewLogNotifier(slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := n.Send(context.Background(), Event{Severity: SeverityInfo, Title: "ok"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
