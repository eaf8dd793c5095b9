// Package exchange implements the exchange adapter: it pulls recent
// OHLCV bars for configured (symbol, timeframe) pairs from one exchange's
// public REST API, rate-limited.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
)

// symbolMap translates internal symbol tags to exchange pairs.
var symbolMap = map[model.Symbol]string{
	model.SymbolBTC: "BTCUSDT",
	model.SymbolETH: "ETHUSDT",
}

// intervalMap translates internal timeframes to the exchange's interval
// query parameter.
var intervalMap = map[model.Timeframe]string{
	model.TF5m:  "5m",
	model.TF15m: "15m",
	model.TF1h:  "1h",
	model.TF1d:  "1d",
}

// Adapter implements model.ExchangeAdapter against an HTTP klines-style
// endpoint (symbol, interval, limit) -> [ms_ts, o, h, l, c, v] rows.
// It maintains no state across calls beyond connection metadata loaded at
// construction.
type Adapter struct {
	name       string
	baseURL    string
	httpClient *http.Client

	mu           sync.Mutex
	lastCallAt   time.Time
	minInterval  time.Duration
}

// NewAdapter creates an exchange adapter. minInterval is the bounded
// inter-call sleep enforced between requests within a batch.
func NewAdapter(name, baseURL string, timeout time.Duration, minInterval time.Duration) *Adapter {
	return &Adapter{
		name:        name,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		minInterval: minInterval,
	}
}

// throttle blocks until at least minInterval has elapsed since the last
// call, enforcing the exchange-side rate limit across the whole adapter.
func (a *Adapter) throttle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if wait := a.minInterval - time.Since(a.lastCallAt); wait > 0 {
		time.Sleep(wait)
	}
	a.lastCallAt = time.Now()
}

type klineRow [12]json.RawMessage

// FetchRecentOHLCV fetches up to limit bars for (symbol, tf), oldest-first
//. The most recent returned bar may be partial/still-forming.
func (a *Adapter) FetchRecentOHLCV(ctx context.Context, symbol model.Symbol, tf model.Timeframe, limit int) ([]model.OHLCVBar, error) {
	pair, ok := symbolMap[symbol]
	if !ok {
		return nil, &apperr.ValidationError{Field: "symbol", Message: fmt.Sprintf("unsupported symbol %q", symbol)}
	}
	interval, ok := intervalMap[tf]
	if !ok {
		return nil, &apperr.ValidationError{Field: "timeframe", Message: fmt.Sprintf("unsupported timeframe %q", tf)}
	}

	a.throttle()

	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d", a.baseURL, pair, interval, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperr.InternalError{Op: "exchange.FetchRecentOHLCV", Err: err}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.TransientUpstreamError{Op: "exchange.FetchRecentOHLCV", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperr.TransientUpstreamError{Op: "exchange.FetchRecentOHLCV", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var rows []klineRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, &apperr.TransientUpstreamError{Op: "exchange.FetchRecentOHLCV", Err: fmt.Errorf("decode response: %w", err)}
	}

	bars := make([]model.OHLCVBar, 0, len(rows))
	for _, row := range rows {
		bar, err := parseKlineRow(row)
		if err != nil {
			return nil, &apperr.TransientUpstreamError{Op: "exchange.FetchRecentOHLCV", Err: err}
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseKlineRow(row klineRow) (model.OHLCVBar, error) {
	var msTS int64
	var o, h, l, c, v string
	if err := json.Unmarshal(row[0], &msTS); err != nil {
		return model.OHLCVBar{}, fmt.Errorf("parse open time: %w", err)
	}
	if err := json.Unmarshal(row[1], &o); err != nil {
		return model.OHLCVBar{}, fmt.Errorf("parse open: %w", err)
	}
	if err := json.Unmarshal(row[2], &h); err != nil {
		return model.OHLCVBar{}, fmt.Errorf("parse high: %w", err)
	}
	if err := json.Unmarshal(row[3], &l); err != nil {
		return model.OHLCVBar{}, fmt.Errorf("parse low: %w", err)
	}
	if err := json.Unmarshal(row[4], &c); err != nil {
		return model.OHLCVBar{}, fmt.Errorf("parse close: %w", err)
	}
	if err := json.Unmarshal(row[5], &v); err != nil {
		return model.OHLCVBar{}, fmt.Errorf("parse volume: %w", err)
	}

	parse := func(s string) float64 {
		var f float64
		_, _ = fmt.Sscanf(s, "%f", &f)
		return f
	}

	return model.OHLCVBar{
		BarOpenTime: time.UnixMilli(msTS).UTC(),
		Open:        parse(o),
		High:        parse(h),
		Low:         parse(l),
		Close:       parse(c),
		Volume:      parse(v),
	}, nil
}
