// Command tradesentinel is the process composition root: it wires the
// exchange adapter, SQLite store (behind a Redis read cache), alert
// registry/evaluator/dispatcher, the inbound HTTP surface, and the
// scheduler's periodic tasks, and owns process startup and graceful
// shutdown.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradesentinel/core/config"
	"github.com/tradesentinel/core/internal/alert"
	"github.com/tradesentinel/core/internal/exchange"
	"github.com/tradesentinel/core/internal/httpapi"
	"github.com/tradesentinel/core/internal/ingest"
	"github.com/tradesentinel/core/internal/logger"
	"github.com/tradesentinel/core/internal/metrics"
	"github.com/tradesentinel/core/internal/model"
	"github.com/tradesentinel/core/internal/notification"
	"github.com/tradesentinel/core/internal/scheduler"
	"github.com/tradesentinel/core/internal/store/rediscache"
	"github.com/tradesentinel/core/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tradesentinel] starting core service...")

	cfg := config.Load()
	slogLog := logger.Init("tradesentinel", slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	os.MkdirAll("data", 0o755)

	// ---- Storage: SQLite single-writer store behind a Redis read cache ----
	sqlStore, err := sqlite.New(sqlite.Config{Path: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[tradesentinel] sqlite init failed: %v", err)
	}

	store, err := rediscache.New(rediscache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}, sqlStore, slogLog)
	if err != nil {
		log.Fatalf("[tradesentinel] rediscache init failed: %v", err)
	}
	defer store.Close()

	// ---- Metrics ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsServer := metrics.NewServer(cfg.MetricsAddr, health)
	metricsServer.Start()

	// ---- Exchange adapter ----
	exchangeAdapter := exchange.NewAdapter(cfg.ExchangeName, cfg.ExchangeBaseURL, cfg.RequestTimeout, time.Duration(cfg.RateLimitMs)*time.Millisecond)

	// ---- Ingestion pipeline ----
	pipeline := ingest.New(exchangeAdapter, store, slogLog, prom)

	// ---- Alert registry/evaluator/dispatcher ----
	registry := alert.NewService(sqlStore)
	dispatcher := alert.NewDispatcher(cfg.WebhookURL, cfg.WebhookTimeout, cfg.CircuitMaxFails, cfg.CircuitReset, slogLog, prom)
	evaluator := alert.NewEvaluator(sqlStore, store, dispatcher, slogLog, prom)

	// ---- Operator notifications: degraded health pages the configured
	// channel (or the process log in dev), independent of the alert-rule
	// dispatch path. ----
	opsNotifier := buildOpsNotifier(cfg, slogLog)

	// ---- Backfill the configured universe before steady-state ticking ----
	for _, symbol := range cfg.Symbols {
		for _, tf := range cfg.Timeframes {
			if err := pipeline.Backfill(ctx, symbol, tf, cfg.BackfillBars); err != nil {
				slogLog.Error("startup backfill failed", "symbol", symbol, "timeframe", tf, "error", err)
			}
		}
	}

	// ---- Scheduler: ingest tick, evaluate tick, health tick, daily retention ----
	runner := scheduler.New(slogLog, []scheduler.Task{
		{
			Name:     "ingest",
			Interval: cfg.IngestInterval,
			Fn: func(ctx context.Context, tick time.Time) error {
				pipeline.RunAll(ctx, cfg.Symbols, cfg.Timeframes)
				health.SetLastIngestTick(tick)
				return nil
			},
		},
		{
			Name:     "evaluate",
			Interval: cfg.EvaluateInterval,
			Fn: func(ctx context.Context, tick time.Time) error {
				err := evaluator.Tick(ctx, tick)
				health.SetLastEvaluateTick(tick)
				return err
			},
		},
		{
			Name:     "health",
			Interval: cfg.HealthInterval,
			Fn:       newHealthCheckTask(exchangeAdapter, store, dispatcher, health, opsNotifier),
		},
		{
			// Fires hourly; only the tick landing in the configured local
			// hour actually runs the pass, giving the daily-at-03:00
			// schedule without a cron dependency.
			Name:     "retention",
			Interval: time.Hour,
			Fn: func(ctx context.Context, tick time.Time) error {
				loc := cfg.Location()
				local := tick.In(loc)
				if local.Hour() != cfg.RetentionHour {
					return nil
				}
				deleted, err := store.RunRetention(ctx, tick)
				if err != nil {
					return err
				}
				if deleted > 0 {
					prom.RetentionRowsDeletedTotal.Add(float64(deleted))
					slogLog.Info("retention pass complete", "rows_deleted", deleted)
				}
				return nil
			},
		},
	})
	runner.Start(ctx)

	// ---- Inbound HTTP surface ----
	api := httpapi.New(registry, evaluator, store, slogLog)
	httpServer := &httpServer{addr: cfg.HTTPAddr, handler: api.Router()}
	httpServer.Start()

	log.Println("[tradesentinel] ╔════════════════════════════════════════════════════════╗")
	log.Println("[tradesentinel] ║  tradesentinel core active                              ║")
	log.Printf("[tradesentinel] ║  http api:     %-42s ║", cfg.HTTPAddr)
	log.Printf("[tradesentinel] ║  metrics/health: %-40s ║", cfg.MetricsAddr)
	log.Printf("[tradesentinel] ║  universe: %d symbols x %d timeframes %-14s ║", len(cfg.Symbols), len(cfg.Timeframes), "")
	log.Println("[tradesentinel] ╚════════════════════════════════════════════════════════╝")
	log.Println("[tradesentinel] all systems running. Press Ctrl+C to stop.")

	<-sigCh
	log.Println("[tradesentinel] shutdown signal received, draining in-flight ticks...")
	cancel()

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	httpServer.Stop(shutCtx)
	metricsServer.Stop(shutCtx)
	runner.Wait()

	log.Println("[tradesentinel] shutdown complete.")
}

// newHealthCheckTask returns the periodic health probe as a scheduler.Task
// Fn. It tracks the previous tick's healthy/degraded state in a closure
// (the health tick runs with max-instances-per-task=1, so this is never
// accessed concurrently) so it can notify an operator channel exactly once
// on the healthy-to-degraded transition, not on every subsequent tick.
func newHealthCheckTask(ex model.ExchangeAdapter, store model.CandleStore, dispatcher *alert.Dispatcher, health *metrics.HealthStatus, notifier notification.Notifier) func(context.Context, time.Time) error {
	wasHealthy := true
	return func(ctx context.Context, tick time.Time) error {
		_, exErr := ex.FetchRecentOHLCV(ctx, model.SymbolBTC, model.TF5m, 1)
		exchangeOK := exErr == nil
		health.SetExchangeOK(exchangeOK)

		_, storeErr := store.Latest(ctx, model.SymbolBTC, model.TF5m)
		storeOK := storeErr == nil
		health.SetStoreOK(storeOK)
		health.SetCircuitState(dispatcher.BreakerState())

		nowHealthy := exchangeOK && storeOK
		if wasHealthy && !nowHealthy && notifier != nil {
			notifier.Send(ctx, notification.Event{
				Severity: notification.SeverityWarning,
				Title:    "tradesentinel health degraded",
				Detail:   "exchange or store dependency failed its health probe",
			})
		}
		wasHealthy = nowHealthy
		return nil
	}
}

// buildOpsNotifier picks a notification.Notifier for operator-facing
// degraded-health alerts: Telegram if a bot token and chat id are
// configured, else a generic webhook, else process-log only.
func buildOpsNotifier(cfg *config.Config, log *slog.Logger) notification.Notifier {
	switch {
	case cfg.TelegramBotToken != "" && cfg.TelegramChatID != "":
		return notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case cfg.OpsNotifyWebhookURL != "":
		return notification.NewWebhookNotifier(cfg.OpsNotifyWebhookURL)
	default:
		return notification.NewLogNotifier(log)
	}
}

// httpServer runs the inbound API on its own listener.
type httpServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (s *httpServer) Start() {
	s.srv = &http.Server{Addr: s.addr, Handler: s.handler}
	go func() {
		log.Printf("[tradesentinel] http api listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[tradesentinel] http api server error: %v", err)
		}
	}()
}

func (s *httpServer) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
