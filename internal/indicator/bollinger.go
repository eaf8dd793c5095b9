package indicator

import (
	"math"

	"github.com/tradesentinel/core/internal/model"
)

// Bollinger computes the Bollinger(20, 2σ) band triple: middle = SMA(20),
// upper/lower = middle ± 2·stddev over the same window.
type Bollinger struct {
	period int
	k      float64
	buf    []float64
	idx    int
	count  int

	middle float64
	upper  float64
	lower  float64
}

// NewBollinger creates a Bollinger(period, k) calculator.
func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{
		period: period,
		k:      k,
		buf:    make([]float64, period),
	}
}

func (b *Bollinger) Name() string { return "BOLLINGER" }

func (b *Bollinger) Update(c model.CandleRecord) {
	b.buf[b.idx] = c.Close
	b.idx = (b.idx + 1) % b.period
	if b.count < b.period {
		b.count++
	}
	if b.count < b.period {
		return
	}

	sum := 0.0
	for _, v := range b.buf {
		sum += v
	}
	mean := sum / float64(b.period)

	variance := 0.0
	for _, v := range b.buf {
		d := v - mean
		variance += d * d
	}
	variance /= float64(b.period)
	stddev := math.Sqrt(variance)

	b.middle = mean
	b.upper = mean + b.k*stddev
	b.lower = mean - b.k*stddev
}

// Value returns the middle band (SMA).
func (b *Bollinger) Value() float64 { return b.middle }
func (b *Bollinger) Ready() bool    { return b.count >= b.period }

func (b *Bollinger) Upper() float64 { return b.upper }
func (b *Bollinger) Lower() float64 { return b.lower }

// Bandwidth returns (upper-lower)/middle, used by the signal engine's
// squeeze/expansion detection.
func (b *Bollinger) Bandwidth() float64 {
	if b.middle == 0 {
		return 0
	}
	return (b.upper - b.lower) / b.middle
}
