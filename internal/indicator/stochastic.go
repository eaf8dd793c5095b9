package indicator

import "github.com/tradesentinel/core/internal/model"

// Stochastic computes the stochastic-slow(14,3,3) oscillator: raw %K over the lookback period, slow %K = SMA(smoothK) of
// raw %K, %D = SMA(smoothD) of slow %K.
type Stochastic struct {
	period  int
	highBuf []float64
	lowBuf  []float64
	idx     int
	count   int

	smoothK *SMA
	smoothD *SMA

	k float64
	d float64
}

// NewStochastic creates a Stochastic(period, smoothK, smoothD) calculator.
func NewStochastic(period, smoothK, smoothD int) *Stochastic {
	return &Stochastic{
		period:  period,
		highBuf: make([]float64, period),
		lowBuf:  make([]float64, period),
		smoothK: NewSMA(smoothK),
		smoothD: NewSMA(smoothD),
	}
}

func (s *Stochastic) Name() string { return "STOCHASTIC" }

func (s *Stochastic) Update(c model.CandleRecord) {
	s.highBuf[s.idx] = c.High
	s.lowBuf[s.idx] = c.Low
	s.idx = (s.idx + 1) % s.period
	if s.count < s.period {
		s.count++
	}
	if s.count < s.period {
		return
	}

	highest, lowest := s.highBuf[0], s.lowBuf[0]
	for i := 1; i < s.period; i++ {
		if s.highBuf[i] > highest {
			highest = s.highBuf[i]
		}
		if s.lowBuf[i] < lowest {
			lowest = s.lowBuf[i]
		}
	}

	rawK := 50.0
	if highest != lowest {
		rawK = (c.Close - lowest) / (highest - lowest) * 100.0
	}

	s.smoothK.Update(model.CandleRecord{Close: rawK})
	if !s.smoothK.Ready() {
		return
	}
	s.k = s.smoothK.Value()

	s.smoothD.Update(model.CandleRecord{Close: s.k})
	if s.smoothD.Ready() {
		s.d = s.smoothD.Value()
	}
}

// Value returns %K.
func (s *Stochastic) Value() float64 { return s.k }
func (s *Stochastic) Ready() bool    { return s.smoothD.Ready() }

// K returns the slow %K.
func (s *Stochastic) K() float64 { return s.k }

// D returns %D.
func (s *Stochastic) D() float64 { return s.d }
