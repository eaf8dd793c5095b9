// Package model defines the core data types shared across the ingestion,
// indicator, signal, query and alert packages: candle records, the
// predicate/query language, and alert rule/history documents.
package model

import "time"

// Symbol is a closed-set instrument tag.
type Symbol string

const (
	SymbolBTC Symbol = "BTC"
	SymbolETH Symbol = "ETH"
)

// Valid reports whether s is one of the supported symbols.
func (s Symbol) Valid() bool {
	switch s {
	case SymbolBTC, SymbolETH:
		return true
	}
	return false
}

// Timeframe is a closed-set bar interval.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF1d  Timeframe = "1d"
)

// Duration returns the wall-clock span of one bar of this timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool {
	switch tf {
	case TF5m, TF15m, TF1h, TF1d:
		return true
	}
	return false
}

// MovingAverages holds the simple moving average ladder.
type MovingAverages struct {
	MA5  *float64 `json:"ma_5,omitempty"`
	MA10 *float64 `json:"ma_10,omitempty"`
	MA20 *float64 `json:"ma_20,omitempty"`
	MA50 *float64 `json:"ma_50,omitempty"`
}

// MACD holds the MACD(12,26,9) line/signal/histogram triple.
type MACD struct {
	Line      *float64 `json:"macd_line,omitempty"`
	Signal    *float64 `json:"macd_signal,omitempty"`
	Histogram *float64 `json:"macd_histogram,omitempty"`
}

// Stochastic holds a K/D pair. Stochastic-slow(14,3,3) is stored once and
// mirrored onto the "skdj" field name for backward compatibility; an
// implementation is free to treat SKDJ as a read-only alias of Stochastic.
type Stochastic struct {
	K *float64 `json:"k,omitempty"`
	D *float64 `json:"d,omitempty"`
}

// Bollinger holds the Bollinger(20,2) band triple.
type Bollinger struct {
	Upper  *float64 `json:"upper,omitempty"`
	Middle *float64 `json:"middle,omitempty"`
	Lower  *float64 `json:"lower,omitempty"`
}

// KDJ holds the KDJ(9,3) triple.
type KDJ struct {
	K *float64 `json:"k,omitempty"`
	D *float64 `json:"d,omitempty"`
	J *float64 `json:"j,omitempty"`
}

// CandleRecord is the primary entity of the system: one OHLCV bar plus the
// derived indicator set and signal tags computed for it. Natural key is
// (Symbol, Timeframe, BarOpenTime); the key is immutable once the row is
// first written by the ingestion pipeline.
type CandleRecord struct {
	Symbol      Symbol    `json:"symbol"`
	Timeframe   Timeframe `json:"timeframe"`
	BarOpenTime time.Time `json:"bar_open_time"`

	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`

	MA         MovingAverages `json:"ma"`
	RSI        *float64       `json:"rsi,omitempty"`
	MACD       MACD           `json:"macd"`
	Stochastic Stochastic     `json:"stochastic"`
	SKDJ       Stochastic     `json:"skdj"`
	Bollinger  Bollinger      `json:"bollinger"`
	CCI        *float64       `json:"cci,omitempty"`
	KDJ        KDJ            `json:"kdj"`

	Signals []string `json:"signals"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the natural key as a comparable string, used by idempotency
// checks and cache lookups.
func (c *CandleRecord) Key() string {
	return string(c.Symbol) + "|" + string(c.Timeframe) + "|" + c.BarOpenTime.UTC().Format(time.RFC3339)
}

// OHLCSane reports whether high/low bound open and close.
func (c *CandleRecord) OHLCSane() bool {
	maxOC := c.Open
	if c.Close > maxOC {
		maxOC = c.Close
	}
	minOC := c.Open
	if c.Close < minOC {
		minOC = c.Close
	}
	return c.High >= maxOC && c.Low <= minOC
}

// HasSignal reports whether tag is present in c.Signals.
func (c *CandleRecord) HasSignal(tag string) bool {
	for _, s := range c.Signals {
		if s == tag {
			return true
		}
	}
	return false
}
