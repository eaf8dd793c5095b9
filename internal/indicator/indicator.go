// Package indicator provides technical indicator calculations over candle
// windows. Each indicator type has a streaming Update/Value/Ready shape,
// but the engine feeds a fresh instance the whole loaded window on every
// recompute: indicators are written onto the most recent bar only, prior
// bars are never rewritten.
package indicator

import "github.com/tradesentinel/core/internal/model"

// Indicator is the interface implemented by all single-value indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA_20", "RSI_14").
	Name() string

	// Update feeds the next candle in window order and recalculates.
	Update(c model.CandleRecord)

	// Value returns the current calculated value. Meaningless if !Ready().
	Value() float64

	// Ready returns true once enough bars have been observed.
	Ready() bool
}

// MinWindow is the number of prior bars required before any indicator is
// computed: 50, the longest lookback in the battery.
const MinWindow = 50

// PreferredWindow is the window size the indicator engine attempts to load
// before falling back to whatever is available.
const PreferredWindow = 60

// ptr returns a pointer to v, used to populate the CandleRecord's nullable
// indicator fields. NaN collapses to nil.
func ptr(v float64) *float64 {
	if v != v { // NaN
		return nil
	}
	return &v
}
