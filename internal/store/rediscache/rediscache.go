// Package rediscache wraps a model.CandleStore with a Redis-backed latest-bar
// cache and pub/sub fan-out. The store's one mutation path (Upsert) is the
// single place that needs to update the cache and announce new signals, so
// the decorator hooks only there and delegates every read-path method.
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/tradesentinel/core/internal/model"
	"github.com/tradesentinel/core/internal/ringbuf"
)

// latestBarTTL bounds how long a cached latest-bar entry survives in Redis
// without being refreshed, so a crashed ingestion pipeline doesn't leave
// permanently stale reads for other processes sharing the cache.
const latestBarTTL = 10 * time.Minute

// windowCapacity is the size of each (symbol, timeframe) pair's in-process
// ring buffer. Only Latest reads from it; Window always goes to the
// underlying store.
const windowCapacity = 128

// updateChannelPrefix prefixes the Redis pub/sub channel a new/updated
// candle is announced on, keyed by symbol|timeframe, so any subscriber can
// react without polling.
const updateChannelPrefix = "candle:updated:"

// Config configures the Redis connection backing the cache.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Cache decorates an underlying model.CandleStore with a Redis latest-bar
// cache plus an in-process ring-buffer window per (symbol, timeframe), which
// lets Latest answer without a Redis or store round trip. All writes still funnel through the underlying store; the
// cache is strictly a read accelerator plus an update announcer.
type Cache struct {
	underlying model.CandleStore
	client     *goredis.Client
	log        *slog.Logger

	mu      sync.Mutex
	windows map[string]*ringbuf.Window
}

// New connects to Redis at cfg.Addr and wraps underlying.
func New(cfg Config, underlying model.CandleStore, log *slog.Logger) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}

	return &Cache{
		underlying: underlying,
		client:     client,
		log:        log,
		windows:    make(map[string]*ringbuf.Window),
	}, nil
}

// Close releases the Redis connection.
func (c *Cache) Close() error { return c.client.Close() }

func windowKey(symbol model.Symbol, tf model.Timeframe) string {
	return string(symbol) + "|" + string(tf)
}

func (c *Cache) windowFor(symbol model.Symbol, tf model.Timeframe) *ringbuf.Window {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := windowKey(symbol, tf)
	w, ok := c.windows[key]
	if !ok {
		w = ringbuf.New(windowCapacity)
		c.windows[key] = w
	}
	return w
}

// Upsert delegates to the underlying store, then — on success — refreshes
// the in-process window, writes the latest-bar cache entry to Redis, and
// publishes an update notification.
func (c *Cache) Upsert(ctx context.Context, rec *model.CandleRecord) (bool, error) {
	created, err := c.underlying.Upsert(ctx, rec)
	if err != nil {
		return false, err
	}

	c.windowFor(rec.Symbol, rec.Timeframe).Push(*rec)

	body, err := json.Marshal(rec)
	if err != nil {
		return created, nil
	}
	key := cacheKey(rec.Symbol, rec.Timeframe)
	if err := c.client.Set(ctx, key, body, latestBarTTL).Err(); err != nil {
		c.log.Warn("rediscache: latest-bar cache write failed", "key", key, "error", err)
	}
	if err := c.client.Publish(ctx, updateChannelPrefix+windowKey(rec.Symbol, rec.Timeframe), body).Err(); err != nil {
		c.log.Warn("rediscache: publish failed", "key", key, "error", err)
	}
	return created, nil
}

func cacheKey(symbol model.Symbol, tf model.Timeframe) string {
	return "candle:latest:" + windowKey(symbol, tf)
}

// Exists delegates straight through: idempotency checks must see the
// authoritative store state, not a possibly-stale cache.
func (c *Cache) Exists(ctx context.Context, symbol model.Symbol, tf model.Timeframe, barOpenTime time.Time) (bool, error) {
	return c.underlying.Exists(ctx, symbol, tf, barOpenTime)
}

// Window delegates straight through: indicator/signal recomputation needs
// the full authoritative window, not the bounded in-process cache.
func (c *Cache) Window(ctx context.Context, symbol model.Symbol, tf model.Timeframe, n int) ([]model.CandleRecord, error) {
	return c.underlying.Window(ctx, symbol, tf, n)
}

// Latest serves from the in-process window first, falling back to Redis,
// then the underlying store, populating the faster tiers as it goes. Rule
// queries still go through Query against the underlying store; Latest is
// for callers, such as the health probe, that only need the single newest
// bar cheaply.
func (c *Cache) Latest(ctx context.Context, symbol model.Symbol, tf model.Timeframe) (*model.CandleRecord, error) {
	if rec, ok := c.windowFor(symbol, tf).Latest(); ok {
		return &rec, nil
	}

	key := cacheKey(symbol, tf)
	body, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rec model.CandleRecord
		if jsonErr := json.Unmarshal(body, &rec); jsonErr == nil {
			c.windowFor(symbol, tf).Push(rec)
			return &rec, nil
		}
	} else if err != goredis.Nil {
		c.log.Warn("rediscache: latest-bar cache read failed", "key", key, "error", err)
	}

	rec, err := c.underlying.Latest(ctx, symbol, tf)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		c.windowFor(symbol, tf).Push(*rec)
	}
	return rec, nil
}

// Query delegates straight through: ad-hoc and alert-rule queries need the
// authoritative, possibly-multi-timeframe result set from the store.
func (c *Cache) Query(ctx context.Context, req model.QueryRequest) (model.QueryResult, error) {
	return c.underlying.Query(ctx, req)
}

// FieldStats delegates straight through.
func (c *Cache) FieldStats(ctx context.Context, symbol model.Symbol, timeframes []model.Timeframe, field model.Field, n int) ([]model.FieldStats, error) {
	return c.underlying.FieldStats(ctx, symbol, timeframes, field, n)
}

// RunRetention delegates straight through, then drops every in-process
// window so a stale window entry can't outlive its rows in the
// authoritative store.
func (c *Cache) RunRetention(ctx context.Context, now time.Time) (int64, error) {
	deleted, err := c.underlying.RunRetention(ctx, now)
	if err != nil {
		return deleted, err
	}
	c.mu.Lock()
	for key := range c.windows {
		delete(c.windows, key)
	}
	c.mu.Unlock()
	return deleted, nil
}

var _ model.CandleStore = (*Cache)(nil)
