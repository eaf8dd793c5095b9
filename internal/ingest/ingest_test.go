package ingest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/tradesentinel/core/internal/model"
)

// fakeExchange returns a fixed, deterministic series of bars regardless of
// the requested limit, so tests can assert on exact upsert counts.
type fakeExchange struct {
	bars   []model.OHLCVBar
	err    error
	failOn model.Symbol
}

func (f *fakeExchange) FetchRecentOHLCV(ctx context.Context, symbol model.Symbol, tf model.Timeframe, limit int) ([]model.OHLCVBar, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && symbol == f.failOn {
		return nil, context.DeadlineExceeded
	}
	if limit < len(f.bars) {
		return f.bars[len(f.bars)-limit:], nil
	}
	return f.bars, nil
}

// memStore is a minimal in-memory model.CandleStore sufficient for ingest
// tests; it does not implement Query/FieldStats/RunRetention semantics
// beyond panicking, since ingest never calls them.
type memStore struct {
	rows map[string]*model.CandleRecord
	keys []string
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]*model.CandleRecord{}}
}

func (s *memStore) Upsert(ctx context.Context, c *model.CandleRecord) (bool, error) {
	k := c.Key()
	_, existed := s.rows[k]
	if !existed {
		s.keys = append(s.keys, k)
	}
	cp := *c
	s.rows[k] = &cp
	return !existed, nil
}

func (s *memStore) Exists(ctx context.Context, symbol model.Symbol, tf model.Timeframe, barOpenTime time.Time) (bool, error) {
	rec := &model.CandleRecord{Symbol: symbol, Timeframe: tf, BarOpenTime: barOpenTime}
	_, ok := s.rows[rec.Key()]
	return ok, nil
}

func (s *memStore) Window(ctx context.Context, symbol model.Symbol, tf model.Timeframe, n int) ([]model.CandleRecord, error) {
	var out []model.CandleRecord
	for _, k := range s.keys {
		r := s.rows[k]
		if r.Symbol == symbol && r.Timeframe == tf {
			out = append(out, *r)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out, nil
}

func (s *memStore) Latest(ctx context.Context, symbol model.Symbol, tf model.Timeframe) (*model.CandleRecord, error) {
	w, _ := s.Window(ctx, symbol, tf, 1)
	if len(w) == 0 {
		return nil, nil
	}
	return &w[len(w)-1], nil
}

func (s *memStore) Query(ctx context.Context, req model.QueryRequest) (model.QueryResult, error) {
	panic("not used by ingest tests")
}

func (s *memStore) FieldStats(ctx context.Context, symbol model.Symbol, timeframes []model.Timeframe, field model.Field, n int) ([]model.FieldStats, error) {
	panic("not used by ingest tests")
}

func (s *memStore) RunRetention(ctx context.Context, now time.Time) (int64, error) {
	panic("not used by ingest tests")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func barsSeries(n int, start time.Time, step time.Duration, startPrice float64) []model.OHLCVBar {
	out := make([]model.OHLCVBar, n)
	for i := 0; i < n; i++ {
		price := startPrice + float64(i)*0.1
		out[i] = model.OHLCVBar{
			BarOpenTime: start.Add(time.Duration(i) * step),
			Open:        price,
			High:        price + 0.5,
			Low:         price - 0.5,
			Close:       price,
			Volume:      100,
		}
	}
	return out
}

func TestBackfill_UpsertsEveryBar(t *testing.T) {
	store := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exch := &fakeExchange{bars: barsSeries(60, start, 5*time.Minute, 100)}
	p := New(exch, store, discardLogger(), nil)

	if err := p.Backfill(context.Background(), model.SymbolBTC, model.TF5m, 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.keys) != 60 {
		t.Fatalf("expected 60 rows upserted, got %d", len(store.keys))
	}
	last := store.rows[store.keys[len(store.keys)-1]]
	if last.RSI == nil {
		t.Error("expected RSI to be populated on the last bar after a 60-bar backfill")
	}
}

func TestTick_SkipsAlreadyStoredBars(t *testing.T) {
	store := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	all := barsSeries(55, start, 5*time.Minute, 100)
	exch := &fakeExchange{bars: all}
	p := New(exch, store, discardLogger(), nil)

	if err := p.Backfill(context.Background(), model.SymbolBTC, model.TF5m, 50); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}
	before := len(store.keys)

	exch.bars = all[len(all)-5:]
	if err := p.Tick(context.Background(), model.SymbolBTC, model.TF5m); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(store.keys) != before {
		t.Errorf("expected tick to skip already-stored bars, rows went from %d to %d", before, len(store.keys))
	}
}

func TestTick_AddsNewBar(t *testing.T) {
	store := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	all := barsSeries(50, start, 5*time.Minute, 100)
	exch := &fakeExchange{bars: all}
	p := New(exch, store, discardLogger(), nil)

	if err := p.Backfill(context.Background(), model.SymbolBTC, model.TF5m, 50); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}
	before := len(store.keys)

	newBar := model.OHLCVBar{
		BarOpenTime: start.Add(50 * 5 * time.Minute),
		Open:        105, High: 105.5, Low: 104.5, Close: 105, Volume: 100,
	}
	exch.bars = append(all, newBar)
	if err := p.Tick(context.Background(), model.SymbolBTC, model.TF5m); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(store.keys) != before+1 {
		t.Errorf("expected exactly one new row, went from %d to %d", before, len(store.keys))
	}
}

func TestUpsertAndRecompute_DropsInsaneOHLC(t *testing.T) {
	store := newMemStore()
	exch := &fakeExchange{}
	p := New(exch, store, discardLogger(), nil)

	bad := model.OHLCVBar{
		BarOpenTime: time.Now().UTC(),
		Open:        100, High: 90, Low: 80, Close: 100, Volume: 10,
	}
	if err := p.upsertAndRecompute(context.Background(), model.SymbolBTC, model.TF5m, bad); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.keys) != 0 {
		t.Error("expected the insane bar to be dropped, not stored")
	}
}

func TestRunAll_IsolatesPerPairFailures(t *testing.T) {
	store := newMemStore()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	exch := &fakeExchange{bars: barsSeries(5, start, 5*time.Minute, 100), failOn: model.SymbolETH}
	p := New(exch, store, discardLogger(), nil)

	// ETH/5m fails at the exchange and is ticked first; BTC/5m in the same
	// RunAll call must still be ingested, confirming RunAll doesn't stop
	// after the first failure.
	p.RunAll(context.Background(), []model.Symbol{model.SymbolETH, model.SymbolBTC}, []model.Timeframe{model.TF5m})

	if len(store.keys) == 0 {
		t.Error("expected the healthy pair to still be ingested despite the other pair's failure")
	}
}
