package indicator

import "github.com/tradesentinel/core/internal/model"

// EMA calculates the Exponential Moving Average. O(1) per update — no
// window storage needed beyond the running value.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(c model.CandleRecord) {
	e.UpdateValue(c.Close)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count >= e.period }

// UpdateValue feeds a raw price through the EMA recurrence — used when EMA
// smooths a derived series rather than a close price (MACD's signal line
// smooths the MACD line, not OHLCV).
func (e *EMA) UpdateValue(price float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for the initial SMA seed
		e.sum += price
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	// EMA formula: EMA = (Price * multiplier) + (EMA_prev * (1 - multiplier))
	e.current = (price * e.multiplier) + (e.current * (1 - e.multiplier))
}
