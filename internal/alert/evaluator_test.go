package alert

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tradesentinel/core/internal/model"
)

type fakeRegistry struct {
	mu       sync.Mutex
	rules    []model.AlertRule
	triggers []model.TriggerHistory
}

func (f *fakeRegistry) Create(ctx context.Context, r *model.AlertRule) error { return nil }
func (f *fakeRegistry) Update(ctx context.Context, id string, patch map[string]any) (*model.AlertRule, error) {
	return nil, nil
}
func (f *fakeRegistry) Delete(ctx context.Context, id string) error { return nil }
func (f *fakeRegistry) Get(ctx context.Context, id string) (*model.AlertRule, error) { return nil, nil }
func (f *fakeRegistry) List(ctx context.Context, symbol *model.Symbol, activeOnly *bool, limit int) ([]model.AlertRule, error) {
	return f.rules, nil
}
func (f *fakeRegistry) ListActive(ctx context.Context) ([]model.AlertRule, error) {
	return f.rules, nil
}
func (f *fakeRegistry) RecordTrigger(ctx context.Context, ruleID string, h *model.TriggerHistory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, *h)
	for i := range f.rules {
		if f.rules[i].ID == ruleID {
			f.rules[i].TriggerCount++
			t := h.TriggeredAt
			f.rules[i].LastTriggeredAt = &t
		}
	}
	return nil
}
func (f *fakeRegistry) Stats(ctx context.Context, now time.Time) (model.AlertStats, error) {
	return model.AlertStats{}, nil
}

type fakeQueryStore struct {
	result model.QueryResult
}

func (s *fakeQueryStore) Upsert(ctx context.Context, c *model.CandleRecord) (bool, error) {
	return false, nil
}
func (s *fakeQueryStore) Exists(ctx context.Context, symbol model.Symbol, tf model.Timeframe, t time.Time) (bool, error) {
	return false, nil
}
func (s *fakeQueryStore) Window(ctx context.Context, symbol model.Symbol, tf model.Timeframe, n int) ([]model.CandleRecord, error) {
	return nil, nil
}
func (s *fakeQueryStore) Latest(ctx context.Context, symbol model.Symbol, tf model.Timeframe) (*model.CandleRecord, error) {
	return nil, nil
}
func (s *fakeQueryStore) Query(ctx context.Context, req model.QueryRequest) (model.QueryResult, error) {
	return s.result, nil
}
func (s *fakeQueryStore) FieldStats(ctx context.Context, symbol model.Symbol, timeframes []model.Timeframe, field model.Field, n int) ([]model.FieldStats, error) {
	return nil, nil
}
func (s *fakeQueryStore) RunRetention(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func TestEvaluator_Tick_SkipsOnceAlreadyTriggered(t *testing.T) {
	reg := &fakeRegistry{rules: []model.AlertRule{
		{ID: "r1", Name: "once rule", Frequency: model.FrequencyOnce, TriggerCount: 1, WebhookURL: "http://unused"},
	}}
	store := &fakeQueryStore{result: model.QueryResult{MatchedRecords: 1, Data: []model.CandleRecord{{Timeframe: model.TF5m}}}}
	disp := NewDispatcher("http://unused", time.Second, 5, time.Minute, discardLogger(), nil)

	ev := NewEvaluator(reg, store, disp, discardLogger(), nil)
	ev.Tick(context.Background(), time.Now())

	if len(reg.triggers) != 0 {
		t.Errorf("expected a once-frequency rule with trigger_count>0 to be skipped, got %d triggers", len(reg.triggers))
	}
}

func TestEvaluator_Tick_DispatchesOnMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	reg := &fakeRegistry{rules: []model.AlertRule{
		{ID: "r1", Name: "every-time rule", Frequency: model.FrequencyEveryTime, WebhookURL: srv.URL},
	}}
	store := &fakeQueryStore{result: model.QueryResult{MatchedRecords: 1, Data: []model.CandleRecord{{Timeframe: model.TF5m, Close: 100}}}}
	disp := NewDispatcher(srv.URL, 2*time.Second, 5, time.Minute, discardLogger(), nil)

	ev := NewEvaluator(reg, store, disp, discardLogger(), nil)
	ev.Tick(context.Background(), time.Now())

	if len(reg.triggers) != 1 {
		t.Fatalf("expected exactly one trigger recorded, got %d", len(reg.triggers))
	}
	if !reg.triggers[0].MessageSent {
		t.Error("expected message_sent=true for a 2xx/success webhook response")
	}
	if reg.rules[0].TriggerCount != 1 {
		t.Errorf("expected trigger_count incremented to 1, got %d", reg.rules[0].TriggerCount)
	}
}

func TestEvaluator_Tick_NoMatchDoesNotTrigger(t *testing.T) {
	reg := &fakeRegistry{rules: []model.AlertRule{
		{ID: "r1", Name: "every-time rule", Frequency: model.FrequencyEveryTime, WebhookURL: "http://unused"},
	}}
	store := &fakeQueryStore{result: model.QueryResult{MatchedRecords: 0}}
	disp := NewDispatcher("http://unused", time.Second, 5, time.Minute, discardLogger(), nil)

	ev := NewEvaluator(reg, store, disp, discardLogger(), nil)
	ev.Tick(context.Background(), time.Now())

	if len(reg.triggers) != 0 {
		t.Errorf("expected no trigger recorded when matched_records=0, got %d", len(reg.triggers))
	}
}

func TestEvaluator_Tick_DropsOverlappingTick(t *testing.T) {
	reg := &fakeRegistry{rules: nil}
	store := &fakeQueryStore{}
	disp := NewDispatcher("http://unused", time.Second, 5, time.Minute, discardLogger(), nil)
	ev := NewEvaluator(reg, store, disp, discardLogger(), nil)

	ev.running = true
	ev.Tick(context.Background(), time.Now())
	if ev.running != true {
		t.Error("a dropped tick must not clear the running flag set by the in-flight tick")
	}
}
