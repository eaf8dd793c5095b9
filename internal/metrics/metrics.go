// Package metrics exposes Prometheus counters/histograms/gauges for the
// core's scheduled tasks (ingestion, indicator compute, alert evaluation,
// dispatch) plus a liveness/health endpoint covering the exchange, store
// and webhook dependencies.
package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the core.
type Metrics struct {
	// Ingestion
	BarsFetchedTotal    *prometheus.CounterVec // labels: symbol, timeframe
	BarsUpsertedTotal   *prometheus.CounterVec // labels: symbol, timeframe
	ExchangeErrorsTotal *prometheus.CounterVec // labels: symbol, timeframe
	ExchangeFetchDur    prometheus.Histogram
	IngestTickDur       prometheus.Histogram

	// Indicator + signal engine
	IndicatorComputeDur prometheus.Histogram
	SignalsDetectedTotal prometheus.Counter

	// Alert evaluation
	EvaluationTicksTotal   prometheus.Counter
	RulesCheckedTotal      prometheus.Counter
	RulesTriggeredTotal    prometheus.Counter
	EvaluationTickDur      prometheus.Histogram

	// Dispatch
	WebhookDispatchTotal   *prometheus.CounterVec // labels: outcome=success|failure|circuit_open
	WebhookDispatchDur     prometheus.Histogram
	CircuitBreakerState    prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips    prometheus.Counter

	// Retention
	RetentionRowsDeletedTotal prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		BarsFetchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_bars_fetched_total",
			Help: "Total OHLCV bars fetched from the exchange adapter",
		}, []string{"symbol", "timeframe"}),
		BarsUpsertedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_bars_upserted_total",
			Help: "Total candle bars newly written to the store",
		}, []string{"symbol", "timeframe"}),
		ExchangeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_exchange_errors_total",
			Help: "Total exchange fetch failures",
		}, []string{"symbol", "timeframe"}),
		ExchangeFetchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_exchange_fetch_duration_seconds",
			Help:    "Exchange OHLCV fetch latency",
			Buckets: prometheus.DefBuckets,
		}),
		IngestTickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_ingest_tick_duration_seconds",
			Help:    "Duration of one full ingestion tick across the universe",
			Buckets: prometheus.DefBuckets,
		}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_indicator_compute_duration_seconds",
			Help:    "Indicator engine compute latency per bar",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		SignalsDetectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_signals_detected_total",
			Help: "Total signal tags attached to newly computed bars",
		}),

		EvaluationTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_evaluation_ticks_total",
			Help: "Total alert evaluation ticks run",
		}),
		RulesCheckedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_rules_checked_total",
			Help: "Total alert rule checks performed",
		}),
		RulesTriggeredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_rules_triggered_total",
			Help: "Total alert rule matches that fired a dispatch",
		}),
		EvaluationTickDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_evaluation_tick_duration_seconds",
			Help:    "Duration of one alert evaluation tick",
			Buckets: prometheus.DefBuckets,
		}),

		WebhookDispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradesentinel_webhook_dispatch_total",
			Help: "Total outbound webhook dispatch attempts by outcome",
		}, []string{"outcome"}),
		WebhookDispatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradesentinel_webhook_dispatch_duration_seconds",
			Help:    "Outbound webhook POST latency",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tradesentinel_webhook_circuit_breaker_state",
			Help: "Webhook circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_webhook_circuit_breaker_trips_total",
			Help: "Times the webhook circuit breaker tripped open",
		}),

		RetentionRowsDeletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradesentinel_retention_rows_deleted_total",
			Help: "Total candle rows deleted by the daily retention pass",
		}),
	}

	prometheus.MustRegister(
		m.BarsFetchedTotal,
		m.BarsUpsertedTotal,
		m.ExchangeErrorsTotal,
		m.ExchangeFetchDur,
		m.IngestTickDur,
		m.IndicatorComputeDur,
		m.SignalsDetectedTotal,
		m.EvaluationTicksTotal,
		m.RulesCheckedTotal,
		m.RulesTriggeredTotal,
		m.EvaluationTickDur,
		m.WebhookDispatchTotal,
		m.WebhookDispatchDur,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.RetentionRowsDeletedTotal,
	)

	return m
}

// HealthStatus tracks liveness of the core's dependencies for the health
// tick and the /healthz endpoint.
type HealthStatus struct {
	mu sync.RWMutex

	ExchangeOK       bool      `json:"exchange_ok"`
	StoreOK          bool      `json:"store_ok"`
	LastIngestTick   time.Time `json:"last_ingest_tick"`
	LastEvaluateTick time.Time `json:"last_evaluate_tick"`
	CircuitState     string    `json:"circuit_state"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetExchangeOK(v bool) {
	h.mu.Lock()
	h.ExchangeOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStoreOK(v bool) {
	h.mu.Lock()
	h.StoreOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastIngestTick(t time.Time) {
	h.mu.Lock()
	h.LastIngestTick = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEvaluateTick(t time.Time) {
	h.mu.Lock()
	h.LastEvaluateTick = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetCircuitState(state string) {
	h.mu.Lock()
	h.CircuitState = state
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	code := http.StatusOK
	if !h.ExchangeOK || !h.StoreOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	body := struct {
		Status           string `json:"status"`
		Uptime           string `json:"uptime"`
		ExchangeOK       bool   `json:"exchange_ok"`
		StoreOK          bool   `json:"store_ok"`
		LastIngestTick   string `json:"last_ingest_tick,omitempty"`
		LastEvaluateTick string `json:"last_evaluate_tick,omitempty"`
		CircuitState     string `json:"circuit_state,omitempty"`
	}{
		Status:       status,
		Uptime:       time.Since(h.StartedAt).Round(time.Second).String(),
		ExchangeOK:   h.ExchangeOK,
		StoreOK:      h.StoreOK,
		CircuitState: h.CircuitState,
	}
	if !h.LastIngestTick.IsZero() {
		body.LastIngestTick = h.LastIngestTick.Format(time.RFC3339)
	}
	if !h.LastEvaluateTick.IsZero() {
		body.LastEvaluateTick = h.LastEvaluateTick.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if code != http.StatusOK {
		w.WriteHeader(code)
	}
	json.NewEncoder(w).Encode(body)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
