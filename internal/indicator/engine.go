package indicator

import "github.com/tradesentinel/core/internal/model"

// Engine computes the full indicator battery for one (symbol, timeframe)
// window and writes the result onto the window's most recent bar only
//. It holds no cross-call state: every recompute starts from a fresh
// set of indicator instances fed the whole window in order, matching the
// windowed recomputation model rather than a live streaming one.
type Engine struct{}

// NewEngine creates an indicator engine. There is no configuration: periods
// are the defaults and are not user-tunable (closed indicator set).
func NewEngine() *Engine {
	return &Engine{}
}

// Compute loads window (oldest-first) and writes indicators onto
// window[len(window)-1]. Returns false without writing anything if the
// window has fewer than MinWindow prior bars (warm-up guard).
func (e *Engine) Compute(window []model.CandleRecord) bool {
	if len(window) < MinWindow {
		return false
	}

	ma5 := NewSMA(5)
	ma10 := NewSMA(10)
	ma20 := NewSMA(20)
	ma50 := NewSMA(50)
	rsi := NewRSI(14)
	macd := NewMACD(12, 26, 9)
	stoch := NewStochastic(14, 3, 3)
	boll := NewBollinger(20, 2)
	cci := NewCCI(20)
	kdj := NewKDJ(9)

	for _, c := range window {
		ma5.Update(c)
		ma10.Update(c)
		ma20.Update(c)
		ma50.Update(c)
		rsi.Update(c)
		macd.Update(c)
		stoch.Update(c)
		boll.Update(c)
		cci.Update(c)
		kdj.Update(c)
	}

	last := &window[len(window)-1]

	if ma5.Ready() {
		last.MA.MA5 = ptr(ma5.Value())
	}
	if ma10.Ready() {
		last.MA.MA10 = ptr(ma10.Value())
	}
	if ma20.Ready() {
		last.MA.MA20 = ptr(ma20.Value())
	}
	if ma50.Ready() {
		last.MA.MA50 = ptr(ma50.Value())
	}
	if rsi.Ready() {
		last.RSI = ptr(rsi.Value())
	}
	if macd.Ready() {
		last.MACD.Line = ptr(macd.Value())
		last.MACD.Signal = ptr(macd.Signal())
		last.MACD.Histogram = ptr(macd.Histogram())
	}
	if stoch.Ready() {
		k, d := ptr(stoch.K()), ptr(stoch.D())
		last.Stochastic.K = k
		last.Stochastic.D = d
		// Slow-KD alias: mirrored under "skdj" for backward compatibility.
		last.SKDJ.K = k
		last.SKDJ.D = d
	}
	if boll.Ready() {
		last.Bollinger.Upper = ptr(boll.Upper())
		last.Bollinger.Middle = ptr(boll.Value())
		last.Bollinger.Lower = ptr(boll.Lower())
	}
	if cci.Ready() {
		last.CCI = ptr(cci.Value())
	}
	if kdj.Ready() {
		last.KDJ.K = ptr(kdj.K())
		last.KDJ.D = ptr(kdj.D())
		last.KDJ.J = ptr(kdj.J())
	}

	return true
}
