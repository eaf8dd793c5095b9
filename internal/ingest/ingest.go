// Package ingest implements the ingestion pipeline: it pulls bars from
// the exchange adapter, upserts them into the candle store, and triggers
// indicator/signal recomputation on newly written bars. A historical
// Backfill seeds a (symbol, timeframe) pair's window; a periodic Tick keeps
// it current.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/tradesentinel/core/internal/indicator"
	"github.com/tradesentinel/core/internal/metrics"
	"github.com/tradesentinel/core/internal/model"
	"github.com/tradesentinel/core/internal/signal"
)

// tickFetchBars is how many of the most recent bars each incremental Tick
// pulls from the exchange: enough to catch a missed bar or two
// without re-fetching a full backfill window.
const tickFetchBars = 5

// Pipeline wires an exchange adapter and candle store together and drives
// both the one-shot backfill and the steady-state tick.
type Pipeline struct {
	exchange model.ExchangeAdapter
	store    model.CandleStore
	engine   *indicator.Engine
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// New constructs a Pipeline. m may be nil, in which case ingestion metrics
// are not recorded.
func New(exchange model.ExchangeAdapter, store model.CandleStore, log *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		exchange: exchange,
		store:    store,
		engine:   indicator.NewEngine(),
		log:      log,
		metrics:  m,
	}
}

// Backfill fetches the last `bars` OHLCV rows for (symbol, tf) and upserts
// every one of them, oldest first. It recomputes indicators/signals on each
// bar as it lands so that the window is fully populated by the time
// steady-state ticking begins.
func (p *Pipeline) Backfill(ctx context.Context, symbol model.Symbol, tf model.Timeframe, bars int) error {
	raw, err := p.fetch(ctx, symbol, tf, bars)
	if err != nil {
		return err
	}
	for _, bar := range raw {
		if err := p.upsertAndRecompute(ctx, symbol, tf, bar); err != nil {
			return err
		}
	}
	p.log.Info("backfill complete", "symbol", symbol, "timeframe", tf, "bars", len(raw))
	return nil
}

// fetch wraps the exchange call with the fetch-latency histogram and the
// per-(symbol,timeframe) fetched/error counters.
func (p *Pipeline) fetch(ctx context.Context, symbol model.Symbol, tf model.Timeframe, bars int) ([]model.OHLCVBar, error) {
	start := time.Now()
	raw, err := p.exchange.FetchRecentOHLCV(ctx, symbol, tf, bars)
	if p.metrics != nil {
		p.metrics.ExchangeFetchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.ExchangeErrorsTotal.WithLabelValues(string(symbol), string(tf)).Inc()
		}
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.BarsFetchedTotal.WithLabelValues(string(symbol), string(tf)).Add(float64(len(raw)))
	}
	return raw, nil
}

// Tick fetches the most recent bars for (symbol, tf) and upserts any that
// are new, recomputing indicators and
// signals on each newly written bar. A fetch or store failure for one pair
// is isolated by the caller (RunAll) and never blocks the others.
func (p *Pipeline) Tick(ctx context.Context, symbol model.Symbol, tf model.Timeframe) error {
	raw, err := p.fetch(ctx, symbol, tf, tickFetchBars)
	if err != nil {
		return err
	}
	for _, bar := range raw {
		exists, err := p.store.Exists(ctx, symbol, tf, bar.BarOpenTime)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := p.upsertAndRecompute(ctx, symbol, tf, bar); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) upsertAndRecompute(ctx context.Context, symbol model.Symbol, tf model.Timeframe, bar model.OHLCVBar) error {
	now := time.Now().UTC()
	rec := &model.CandleRecord{
		Symbol:      symbol,
		Timeframe:   tf,
		BarOpenTime: bar.BarOpenTime,
		Open:        bar.Open,
		High:        bar.High,
		Low:         bar.Low,
		Close:       bar.Close,
		Volume:      bar.Volume,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if !rec.OHLCSane() {
		p.log.Warn("dropping bar with insane OHLC bounds", "symbol", symbol, "timeframe", tf, "bar_open_time", bar.BarOpenTime)
		return nil
	}

	created, err := p.store.Upsert(ctx, rec)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	if p.metrics != nil {
		p.metrics.BarsUpsertedTotal.WithLabelValues(string(symbol), string(tf)).Inc()
	}

	window, err := p.store.Window(ctx, symbol, tf, signal.MinWindow)
	if err != nil {
		return err
	}
	if len(window) == 0 {
		return nil
	}

	indicatorStart := time.Now()
	p.engine.Compute(window)
	if p.metrics != nil {
		p.metrics.IndicatorComputeDur.Observe(time.Since(indicatorStart).Seconds())
	}
	last := &window[len(window)-1]
	last.Signals = signal.Detect(window)
	if p.metrics != nil && len(last.Signals) > 0 {
		p.metrics.SignalsDetectedTotal.Add(float64(len(last.Signals)))
	}

	if _, err := p.store.Upsert(ctx, last); err != nil {
		return err
	}
	return nil
}

// RunAll ticks every (symbol, timeframe) pair, isolating failures so a
// single exchange or store error does not stop the rest of the universe
// from being processed.
func (p *Pipeline) RunAll(ctx context.Context, symbols []model.Symbol, timeframes []model.Timeframe) {
	start := time.Now()
	for _, symbol := range symbols {
		for _, tf := range timeframes {
			if err := p.Tick(ctx, symbol, tf); err != nil {
				p.log.Error("tick failed", "symbol", symbol, "timeframe", tf, "error", err)
			}
		}
	}
	if p.metrics != nil {
		p.metrics.IngestTickDur.Observe(time.Since(start).Seconds())
	}
}
