package indicator

import (
	"math"

	"github.com/tradesentinel/core/internal/model"
)

// SMA calculates the Simple Moving Average over a rolling window, using a
// preallocated circular buffer for a zero-allocation hot path.
type SMA struct {
	period  int
	buf     []float64 // preallocated circular buffer
	idx     int       // current write position
	count   int       // total values received
	sum     float64
	current float64
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) *SMA {
	return &SMA{
		period: period,
		buf:    make([]float64, period),
	}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(c model.CandleRecord) {
	price := c.Close

	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = price
	s.sum += price
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum / float64(s.period)
	}
}

func (s *SMA) Value() float64 { return s.current }
func (s *SMA) Ready() bool    { return s.count >= s.period }

// Values returns the SMA over the full closing-price window closes, one
// value per bar: NaN before the period-th bar, the running SMA from then on.
func Values(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	sma := NewSMA(period)
	for i, c := range closes {
		sma.Update(model.CandleRecord{Close: c})
		if sma.Ready() {
			out[i] = sma.Value()
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}
