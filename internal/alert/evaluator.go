package alert

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tradesentinel/core/internal/logger"
	"github.com/tradesentinel/core/internal/metrics"
	"github.com/tradesentinel/core/internal/model"
)

// Evaluator is a single long-running periodic task that checks
// every active rule once per tick and invokes the dispatcher on a match.
type Evaluator struct {
	registry   model.AlertRegistry
	store      model.CandleStore
	dispatcher model.Dispatcher
	log        *slog.Logger
	metrics    *metrics.Metrics

	mu      sync.Mutex
	running bool

	enabled  atomic.Bool
	lastTick atomic.Value // time.Time
}

// NewEvaluator constructs an Evaluator. Monitoring starts enabled; the
// inbound HTTP surface's monitoring/{start|stop|status} endpoints
// toggle it without restarting the process. m may be nil, in which case
// evaluation metrics are not recorded.
func NewEvaluator(registry model.AlertRegistry, store model.CandleStore, dispatcher model.Dispatcher, log *slog.Logger, m *metrics.Metrics) *Evaluator {
	e := &Evaluator{registry: registry, store: store, dispatcher: dispatcher, log: log, metrics: m}
	e.enabled.Store(true)
	return e
}

// SetEnabled turns alert evaluation on or off. While disabled, Tick is a
// no-op: the scheduler keeps firing on cadence, but each tick returns
// immediately, matching a "paused" rather than "stopped" task.
func (e *Evaluator) SetEnabled(on bool) { e.enabled.Store(on) }

// Enabled reports whether monitoring is currently active.
func (e *Evaluator) Enabled() bool { return e.enabled.Load() }

// Status summarizes the evaluator's current state for the monitoring/status
// endpoint.
type Status struct {
	Enabled  bool      `json:"enabled"`
	Running  bool      `json:"running"`
	LastTick time.Time `json:"last_tick,omitempty"`
}

// Status reports whether monitoring is enabled, whether a tick is currently
// in flight, and when the last tick fired.
func (e *Evaluator) Status() Status {
	e.mu.Lock()
	running := e.running
	e.mu.Unlock()
	var last time.Time
	if v, ok := e.lastTick.Load().(time.Time); ok {
		last = v
	}
	return Status{Enabled: e.enabled.Load(), Running: running, LastTick: last}
}

// Tick runs one evaluation pass over all active rules.
// Rule checks proceed in parallel; per-rule registry updates are
// linearizable by virtue of each rule being updated independently through
// RecordTrigger. A panic or error in one rule's evaluation is isolated and
// never affects another rule's outcome.
//
// Max-instances-per-task is 1: a tick that fires while the previous
// tick is still in flight is dropped.
func (e *Evaluator) Tick(ctx context.Context, now time.Time) error {
	e.lastTick.Store(now)
	if !e.enabled.Load() {
		return nil
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.log.Warn("alert evaluation tick skipped: previous tick still running")
		return nil
	}
	e.running = true
	e.mu.Unlock()
	start := time.Now()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		if e.metrics != nil {
			e.metrics.EvaluationTicksTotal.Inc()
			e.metrics.EvaluationTickDur.Observe(time.Since(start).Seconds())
		}
	}()

	rules, err := e.registry.ListActive(ctx)
	if err != nil {
		e.log.Error("alert evaluation tick: failed to load active rules", "error", err)
		return err
	}

	var wg sync.WaitGroup
	for i := range rules {
		rule := rules[i]
		if !rule.ShouldCheck(now) {
			continue
		}
		if e.metrics != nil {
			e.metrics.RulesCheckedTotal.Inc()
		}
		wg.Add(1)
		go func(r model.AlertRule) {
			defer wg.Done()
			e.evaluateRule(ctx, &r, now)
		}(rule)
	}
	wg.Wait()
	return nil
}

func (e *Evaluator) evaluateRule(ctx context.Context, rule *model.AlertRule, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("alert evaluation: rule panicked", "rule_id", rule.ID, "recovered", r)
		}
	}()

	req := model.QueryRequest{
		Symbol:     rule.Symbol,
		Timeframes: rule.Timeframes,
		Conditions: rule.TriggerConditions,
		Limit:      1,
		SortOrder:  model.SortDesc,
	}
	result, err := e.store.Query(ctx, req)
	if err != nil {
		e.log.Error("alert evaluation: query failed", "rule_id", rule.ID, "error", err)
		return
	}
	if result.MatchedRecords == 0 {
		return
	}
	if e.metrics != nil {
		e.metrics.RulesTriggeredTotal.Inc()
	}

	matched := result.Data[0]
	requestID := logger.GenerateRequestID(now)
	sent, raw, err := e.dispatcher.Dispatch(ctx, rule, &matched, requestID)
	if err != nil {
		e.log.Error("alert evaluation: dispatch failed", "rule_id", rule.ID, "error", err)
	}

	hist := &model.TriggerHistory{
		RuleID:        rule.ID,
		RuleName:      rule.Name,
		Symbol:        rule.Symbol,
		Timeframe:     matched.Timeframe,
		TriggeredAt:   now,
		MatchedCandle: matched,
		MessageSent:   sent,
		WebhookResp:   raw,
		RequestID:     requestID,
	}
	// RecordTrigger performs the atomic last_triggered_at/trigger_count
	// update and appends the history row; dispatch failure never
	// blocks this update.
	if err := e.registry.RecordTrigger(ctx, rule.ID, hist); err != nil {
		e.log.Error("alert evaluation: failed to record trigger", "rule_id", rule.ID, "error", err)
	}
}
