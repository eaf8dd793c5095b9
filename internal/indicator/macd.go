package indicator

import "github.com/tradesentinel/core/internal/model"

// MACD computes the MACD(12,26,9) line/signal/histogram triple: an EMA-based
// oscillator. The line is fast EMA minus slow EMA; the signal is an
// EMA of the line itself, so Update must be fed in window order just like
// any other Indicator.
type MACD struct {
	fast   *EMA
	slow   *EMA
	signal *EMA
	line   float64
	hist   float64
	ready  bool
}

// NewMACD creates a MACD(fastPeriod, slowPeriod, signalPeriod) calculator.
func NewMACD(fastPeriod, slowPeriod, signalPeriod int) *MACD {
	return &MACD{
		fast:   NewEMA(fastPeriod),
		slow:   NewEMA(slowPeriod),
		signal: NewEMA(signalPeriod),
	}
}

func (m *MACD) Name() string { return "MACD" }

func (m *MACD) Update(c model.CandleRecord) {
	m.fast.Update(c)
	m.slow.Update(c)
	if !m.fast.Ready() || !m.slow.Ready() {
		return
	}
	m.line = m.fast.Value() - m.slow.Value()
	m.signal.UpdateValue(m.line)
	if m.signal.Ready() {
		m.hist = m.line - m.signal.Value()
		m.ready = true
	}
}

// Value returns the MACD line.
func (m *MACD) Value() float64 { return m.line }
func (m *MACD) Ready() bool    { return m.ready }

// Signal returns the signal-line EMA value.
func (m *MACD) Signal() float64 { return m.signal.Value() }

// Histogram returns line minus signal.
func (m *MACD) Histogram() float64 { return m.hist }
