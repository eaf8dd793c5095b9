package indicator

import (
	"math"

	"github.com/tradesentinel/core/internal/model"
)

// CCI computes the Commodity Channel Index(20) over typical price
// TP = (high+low+close)/3.
type CCI struct {
	period int
	buf    []float64 // typical prices
	idx    int
	count  int
	value  float64
}

// NewCCI creates a CCI(period) calculator.
func NewCCI(period int) *CCI {
	return &CCI{
		period: period,
		buf:    make([]float64, period),
	}
}

func (c *CCI) Name() string { return "CCI" }

func (c *CCI) Update(candle model.CandleRecord) {
	tp := (candle.High + candle.Low + candle.Close) / 3.0

	c.buf[c.idx] = tp
	c.idx = (c.idx + 1) % c.period
	if c.count < c.period {
		c.count++
	}
	if c.count < c.period {
		return
	}

	sum := 0.0
	for _, v := range c.buf {
		sum += v
	}
	mean := sum / float64(c.period)

	meanDev := 0.0
	for _, v := range c.buf {
		meanDev += math.Abs(v - mean)
	}
	meanDev /= float64(c.period)

	if meanDev == 0 {
		c.value = 0
		return
	}
	c.value = (tp - mean) / (0.015 * meanDev)
}

func (c *CCI) Value() float64 { return c.value }
func (c *CCI) Ready() bool    { return c.count >= c.period }
