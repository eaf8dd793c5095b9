// Package sqlite implements the candle store and alert registry
// persistence ports against a single-writer SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a single-writer SQLite-backed implementation of
// model.CandleStore and model.AlertRegistry.
type Store struct {
	db *sql.DB
}

// Config configures the SQLite store.
type Config struct {
	// Path is the database file path, e.g. "data/candles.db".
	Path string
}

// New opens (creating if absent) the SQLite database at cfg.Path in WAL
// mode and applies the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.Path)
	return &Store{db: db}, nil
}

// DB returns the underlying *sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol        TEXT    NOT NULL,
			timeframe     TEXT    NOT NULL,
			bar_open_time INTEGER NOT NULL,

			open   REAL NOT NULL,
			high   REAL NOT NULL,
			low    REAL NOT NULL,
			close  REAL NOT NULL,
			volume REAL NOT NULL,

			ma_5  REAL, ma_10 REAL, ma_20 REAL, ma_50 REAL,
			rsi   REAL,
			macd_line REAL, macd_signal REAL, macd_histogram REAL,
			stoch_k REAL, stoch_d REAL,
			skdj_k REAL, skdj_d REAL,
			bb_upper REAL, bb_middle REAL, bb_lower REAL,
			cci REAL,
			kdj_k REAL, kdj_d REAL, kdj_j REAL,

			signals    TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,

			PRIMARY KEY (symbol, timeframe, bar_open_time)
		);

		CREATE INDEX IF NOT EXISTS idx_candles_symbol_tf_time
			ON candles (symbol, timeframe, bar_open_time DESC);
		CREATE INDEX IF NOT EXISTS idx_candles_time
			ON candles (bar_open_time DESC);

		CREATE TABLE IF NOT EXISTS candle_signals (
			symbol        TEXT    NOT NULL,
			timeframe     TEXT    NOT NULL,
			bar_open_time INTEGER NOT NULL,
			signal        TEXT    NOT NULL,
			PRIMARY KEY (symbol, timeframe, bar_open_time, signal)
		);
		CREATE INDEX IF NOT EXISTS idx_candle_signals_signal
			ON candle_signals (signal);

		CREATE TABLE IF NOT EXISTS alert_rules (
			id                 TEXT PRIMARY KEY,
			name               TEXT NOT NULL,
			description        TEXT NOT NULL DEFAULT '',
			symbol             TEXT NOT NULL,
			timeframes         TEXT NOT NULL,
			trigger_type       TEXT NOT NULL,
			trigger_conditions TEXT NOT NULL,
			frequency          TEXT NOT NULL,
			webhook_url        TEXT NOT NULL,
			message_format     TEXT NOT NULL DEFAULT '',
			custom_message     TEXT NOT NULL DEFAULT '',
			is_active          INTEGER NOT NULL DEFAULT 1,
			created_at         INTEGER NOT NULL,
			updated_at         INTEGER NOT NULL,
			last_triggered_at  INTEGER,
			trigger_count      INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_alert_rules_symbol_active
			ON alert_rules (symbol, is_active);

		CREATE TABLE IF NOT EXISTS alert_history (
			id             TEXT PRIMARY KEY,
			rule_id        TEXT NOT NULL,
			rule_name      TEXT NOT NULL,
			symbol         TEXT NOT NULL,
			timeframe      TEXT NOT NULL,
			triggered_at   INTEGER NOT NULL,
			matched_candle TEXT NOT NULL,
			message_sent   INTEGER NOT NULL,
			webhook_resp   TEXT NOT NULL DEFAULT '',
			request_id     TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_alert_history_rule_time
			ON alert_history (rule_id, triggered_at DESC);
		CREATE INDEX IF NOT EXISTS idx_alert_history_triggered_at
			ON alert_history (triggered_at DESC);
	`)
	return err
}
