package model

import (
	"context"
	"time"
)

// CandleStore is the candle persistence port. All candle mutation funnels
// through this interface — no other component writes
// candle rows directly.
type CandleStore interface {
	// Upsert inserts c if (symbol, timeframe, bar_open_time) is new, or
	// updates its OHLCV/indicator/signal fields in place if it already
	// exists. Reports whether the row was newly created.
	Upsert(ctx context.Context, c *CandleRecord) (created bool, err error)

	// Exists reports whether the natural key is already stored, for the
	// ingestion pipeline's idempotency check.
	Exists(ctx context.Context, symbol Symbol, tf Timeframe, barOpenTime time.Time) (bool, error)

	// Window returns the most recent n bars for (symbol, timeframe), ordered
	// oldest-first, for indicator/signal recomputation.
	Window(ctx context.Context, symbol Symbol, tf Timeframe, n int) ([]CandleRecord, error)

	// Latest returns the single most recent bar for (symbol, timeframe).
	Latest(ctx context.Context, symbol Symbol, tf Timeframe) (*CandleRecord, error)

	// Query executes a compiled predicate tree.
	Query(ctx context.Context, req QueryRequest) (QueryResult, error)

	// FieldStats computes the historical-statistics helper for one
	// field over n recent bars of each requested timeframe.
	FieldStats(ctx context.Context, symbol Symbol, timeframes []Timeframe, field Field, n int) ([]FieldStats, error)

	// RunRetention deletes 5m/15m bars older than the retention window,
	// relative to now.
	RunRetention(ctx context.Context, now time.Time) (deleted int64, err error)
}

// AlertRegistry is the persistence port for alert rules and history.
type AlertRegistry interface {
	Create(ctx context.Context, r *AlertRule) error
	Update(ctx context.Context, id string, patch map[string]any) (*AlertRule, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*AlertRule, error)
	List(ctx context.Context, symbol *Symbol, activeOnly *bool, limit int) ([]AlertRule, error)
	ListActive(ctx context.Context) ([]AlertRule, error)

	// RecordTrigger atomically sets LastTriggeredAt/increments TriggerCount
	// and appends a TriggerHistory row.
	RecordTrigger(ctx context.Context, ruleID string, h *TriggerHistory) error

	Stats(ctx context.Context, now time.Time) (AlertStats, error)
}

// OHLCVBar is one bar returned by an exchange adapter.
type OHLCVBar struct {
	BarOpenTime time.Time
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
}

// ExchangeAdapter is the market-data port: pulls recent OHLCV bars for one
// (symbol, timeframe) pair from an external exchange.
type ExchangeAdapter interface {
	FetchRecentOHLCV(ctx context.Context, symbol Symbol, tf Timeframe, limit int) ([]OHLCVBar, error)
}

// Dispatcher is the outbound notification port: formats and delivers a trigger envelope.
type Dispatcher interface {
	Dispatch(ctx context.Context, rule *AlertRule, candle *CandleRecord, requestID string) (sent bool, rawResponse string, err error)
	TestWebhook(ctx context.Context, url string) (sent bool, rawResponse string, err error)
}
