package alert

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tradesentinel/core/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRule(webhookURL string) *model.AlertRule {
	return &model.AlertRule{
		ID:            "rule-1",
		Name:          "RSI oversold alert",
		Symbol:        model.SymbolBTC,
		TriggerType:   model.TriggerIndicatorThreshold,
		Frequency:     model.FrequencyEveryTime,
		WebhookURL:    webhookURL,
		MessageFormat: "text",
	}
}

func TestDispatch_SuccessOnTruthySuccessField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF5m, Close: 100, BarOpenTime: time.Now()}

	sent, raw, err := d.Dispatch(context.Background(), rule, candle, "req_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Errorf("expected sent=true, got raw=%q", raw)
	}
}

func TestDispatch_NotSentOnFalseSuccessField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF5m, Close: 100, BarOpenTime: time.Now()}

	sent, _, err := d.Dispatch(context.Background(), rule, candle, "req_2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Error("expected sent=false when body.success is false")
	}
}

func TestDispatch_PostsEnvelopeToReceiverTriggerPath(t *testing.T) {
	var gotPath string
	var gotEnv map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotEnv)
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF1h, Close: 100, BarOpenTime: time.Now()}

	d.Dispatch(context.Background(), rule, candle, "req_path")
	if gotPath != "/webhook/alert/trigger" {
		t.Errorf("expected POST to /webhook/alert/trigger, got %q", gotPath)
	}
	nc, _ := gotEnv["notification_config"].(map[string]any)
	if nc["target_webhook"] != "https://receiver.example/hook" {
		t.Errorf("expected rule webhook in notification_config, got %v", nc)
	}
}

func TestDispatch_TruncatesRawResponse(t *testing.T) {
	long := strings.Repeat("x", 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(long))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF5m, Close: 100, BarOpenTime: time.Now()}

	sent, raw, _ := d.Dispatch(context.Background(), rule, candle, "req_trunc")
	if sent {
		t.Error("expected sent=false on a 5xx response")
	}
	if len(raw) > maxRawResponseLen {
		t.Errorf("raw response must be truncated to %d chars, got %d", maxRawResponseLen, len(raw))
	}
}

func TestDispatch_NotSentOn5xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF5m, Close: 100, BarOpenTime: time.Now()}

	sent, _, err := d.Dispatch(context.Background(), rule, candle, "req_3")
	if err != nil {
		t.Fatalf("dispatch failure must never surface as an error: %v", err)
	}
	if sent {
		t.Error("expected sent=false on a 5xx response")
	}
}

func TestDispatch_NotSentOnNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF5m, Close: 100, BarOpenTime: time.Now()}

	sent, _, _ := d.Dispatch(context.Background(), rule, candle, "req_4")
	if sent {
		t.Error("expected sent=false for a non-JSON response body")
	}
}

func TestDispatch_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, 2*time.Second, 2, time.Minute, discardLogger(), nil)
	rule := sampleRule("https://receiver.example/hook")
	candle := &model.CandleRecord{Timeframe: model.TF5m, Close: 100, BarOpenTime: time.Now()}

	for i := 0; i < 2; i++ {
		d.Dispatch(context.Background(), rule, candle, "req")
	}
	sent, raw, err := d.Dispatch(context.Background(), rule, candle, "req_open")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent {
		t.Error("expected sent=false once the circuit is open")
	}
	if raw == "" {
		t.Error("expected a raw response/error recorded even when the circuit is open")
	}
}

func TestTestWebhook_PostsProbeDirectly(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	d := NewDispatcher("http://unused", 2*time.Second, 5, time.Minute, discardLogger(), nil)
	sent, _, err := d.TestWebhook(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sent {
		t.Error("expected sent=true for a success probe response")
	}
	if gotBody["msg_type"] != "text" {
		t.Errorf("expected a text probe payload, got %v", gotBody)
	}
}

func TestBuildEnvelope_SignalRulePopulatesDetectedSignals(t *testing.T) {
	rule := sampleRule("http://example.test")
	rule.TriggerType = model.TriggerSignalDetection
	candle := &model.CandleRecord{
		Timeframe:   model.TF1h,
		BarOpenTime: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Signals:     []string{"RSI_OVERSOLD", "MA_GOLDEN_CROSS"},
	}
	env := buildEnvelope(rule, candle, "req_5")
	if len(env.TriggerData.DetectedSignals) != 2 {
		t.Fatalf("expected 2 detected signals, got %v", env.TriggerData.DetectedSignals)
	}
	if env.TriggerData.Strength != "moderate" {
		t.Errorf("expected strength=moderate for 2 signals, got %q", env.TriggerData.Strength)
	}
	if env.AlertType != "signal_alert" {
		t.Errorf("expected alert_type=signal_alert, got %q", env.AlertType)
	}
}
