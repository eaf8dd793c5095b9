package indicator

import (
	"math"
	"testing"

	"github.com/tradesentinel/core/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helper
// ────────────────────────────────────────────────────────────

func candle(close float64) model.CandleRecord {
	return model.CandleRecord{Open: close, High: close + 0.5, Low: close - 0.5, Close: close}
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA after candle 3: (100+102+104)/3 = 102.0000
	// SMA after candle 4: (102+104+103)/3 = 103.0000
	// SMA after candle 5: (104+103+105)/3 = 104.0000

	sma := NewSMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 103.0, 104.0}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(3)", sma.Value(), expected[i], 0.0001)
		}
	}
}

func TestSMA_Correctness_Period5(t *testing.T) {
	// Prices: 10, 11, 12, 13, 14, 15, 16
	// SMA(5) after candle 5: (10+11+12+13+14)/5 = 12.0
	// SMA(5) after candle 6: (11+12+13+14+15)/5 = 13.0
	// SMA(5) after candle 7: (12+13+14+15+16)/5 = 14.0

	sma := NewSMA(5)
	prices := []float64{10, 11, 12, 13, 14, 15, 16}
	expected := []float64{0, 0, 0, 0, 12.0, 13.0, 14.0}
	ready := []bool{false, false, false, false, true, true, true}

	for i, p := range prices {
		sma.Update(candle(p))
		if sma.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, sma.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "SMA(5)", sma.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// EMA(3): multiplier = 2/(3+1) = 0.5
	// Prices: 100, 102, 104, 103, 105
	//
	// Candle 3: initial EMA = (100+102+104)/3 = 102.0 (SMA seed)
	// Candle 4: EMA = 103*0.5 + 102.0*0.5 = 102.5
	// Candle 5: EMA = 105*0.5 + 102.5*0.5 = 103.75

	ema := NewEMA(3)
	prices := []float64{100, 102, 104, 103, 105}
	expected := []float64{0, 0, 102.0, 102.5, 103.75}
	ready := []bool{false, false, true, true, true}

	for i, p := range prices {
		ema.Update(candle(p))
		if ema.Ready() != ready[i] {
			t.Errorf("candle %d: Ready()=%v, want %v", i, ema.Ready(), ready[i])
		}
		if ready[i] {
			assertClose(t, "EMA(3)", ema.Value(), expected[i], 0.0001)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness (Wilder's Method)
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period5(t *testing.T) {
	// Prices: 44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84
	//
	// First RSI (after 6 candles, period=5):
	//   gains: +0.34, +0.72, +0.50 → sumGain=1.56 → avgGain=0.312
	//   losses: 0.25, 0.48         → sumLoss=0.73 → avgLoss=0.146
	//   RS = 0.312/0.146 = 2.13699
	//   RSI = 100 - 100/(1+2.13699) = 68.112

	prices := []float64{44, 44.34, 44.09, 43.61, 44.33, 44.83, 45.10, 45.42, 45.84}

	rsi := NewRSI(5)
	for i := 0; i <= 5; i++ {
		rsi.Update(candle(prices[i]))
	}
	assertClose(t, "RSI(5) candle 6", rsi.Value(), 68.112, 0.1)

	rsi.Update(candle(prices[6]))
	assertClose(t, "RSI(5) candle 7", rsi.Value(), 72.219, 0.1)

	rsi.Update(candle(prices[7]))
	assertClose(t, "RSI(5) candle 8", rsi.Value(), 76.658, 0.1)

	rsi.Update(candle(prices[8]))
	assertClose(t, "RSI(5) candle 9", rsi.Value(), 81.509, 0.2)
}

func TestRSI_AllUp_Is100(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100 + float64(i)))
	}
	assertClose(t, "RSI all up", rsi.Value(), 100.0, 0.001)
}

func TestRSI_AllDown_Is0(t *testing.T) {
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(200 - float64(i)))
	}
	assertClose(t, "RSI all down", rsi.Value(), 0.0, 0.001)
}

func TestRSI_Flat_Is100(t *testing.T) {
	// Flat prices: both avgGain and avgLoss are 0; by convention the
	// avgLoss==0 branch returns 100 regardless of avgGain.
	rsi := NewRSI(5)
	for i := 0; i < 10; i++ {
		rsi.Update(candle(100))
	}
	assertClose(t, "RSI flat", rsi.Value(), 100.0, 0.001)
}

// ────────────────────────────────────────────────────────────
// Cross-indicator: same data → correct ordering
// ────────────────────────────────────────────────────────────

func TestIndicators_TrendingUp_Ordering(t *testing.T) {
	sma5 := NewSMA(5)
	sma20 := NewSMA(20)
	ema5 := NewEMA(5)

	for i := 0; i < 30; i++ {
		c := candle(100 + float64(i))
		sma5.Update(c)
		sma20.Update(c)
		ema5.Update(c)
	}

	if sma5.Value() <= sma20.Value() {
		t.Errorf("SMA(5) should be > SMA(20) in uptrend: SMA5=%.2f, SMA20=%.2f", sma5.Value(), sma20.Value())
	}
	if ema5.Value() <= sma20.Value() {
		t.Errorf("EMA(5) should be > SMA(20) in uptrend: EMA5=%.2f, SMA20=%.2f", ema5.Value(), sma20.Value())
	}
}

func TestIndicators_TrendingDown_Ordering(t *testing.T) {
	sma5 := NewSMA(5)
	sma20 := NewSMA(20)

	for i := 0; i < 30; i++ {
		c := candle(200 - float64(i))
		sma5.Update(c)
		sma20.Update(c)
	}

	if sma5.Value() >= sma20.Value() {
		t.Errorf("SMA(5) should be < SMA(20) in downtrend: SMA5=%.2f, SMA20=%.2f", sma5.Value(), sma20.Value())
	}
}

func TestEMA_MoreResponsiveThanSMA(t *testing.T) {
	sma := NewSMA(10)
	ema := NewEMA(10)

	for i := 0; i < 20; i++ {
		c := candle(100)
		sma.Update(c)
		ema.Update(c)
	}

	c := candle(120)
	sma.Update(c)
	ema.Update(c)

	if ema.Value() <= sma.Value() {
		t.Errorf("EMA should react more than SMA to a sudden price jump: EMA=%.4f, SMA=%.4f", ema.Value(), sma.Value())
	}
}

// ────────────────────────────────────────────────────────────
// KDJ recurrence
// ────────────────────────────────────────────────────────────

func TestKDJ_FlatSeriesConvergesTo50(t *testing.T) {
	// With a flat high==low window, RSV defaults to 50 every bar, so K/D/J
	// converge to 50/50/50 regardless of the seed.
	kdj := NewKDJ(9)
	for i := 0; i < 12; i++ {
		kdj.Update(model.CandleRecord{High: 100, Low: 100, Close: 100})
	}
	assertClose(t, "KDJ K flat", kdj.K(), 50.0, 0.001)
	assertClose(t, "KDJ D flat", kdj.D(), 50.0, 0.001)
	assertClose(t, "KDJ J flat", kdj.J(), 50.0, 0.001)
}

func TestKDJ_NotReadyBeforeWindow(t *testing.T) {
	kdj := NewKDJ(9)
	for i := 0; i < 8; i++ {
		kdj.Update(model.CandleRecord{High: 110, Low: 90, Close: 100})
	}
	if kdj.Ready() {
		t.Errorf("KDJ should not be ready before %d bars", 9)
	}
}

// ────────────────────────────────────────────────────────────
// Bollinger bandwidth
// ────────────────────────────────────────────────────────────

func TestBollinger_FlatSeries_ZeroBandwidth(t *testing.T) {
	boll := NewBollinger(20, 2)
	for i := 0; i < 20; i++ {
		boll.Update(candle(100))
	}
	assertClose(t, "Bollinger middle", boll.Value(), 100.0, 0.001)
	assertClose(t, "Bollinger bandwidth", boll.Bandwidth(), 0.0, 0.001)
}

// ────────────────────────────────────────────────────────────
// Engine warm-up guard
// ────────────────────────────────────────────────────────────

func TestEngine_SkipsBelowMinWindow(t *testing.T) {
	e := NewEngine()
	window := make([]model.CandleRecord, MinWindow-1)
	for i := range window {
		window[i] = candle(100 + float64(i))
	}
	if e.Compute(window) {
		t.Fatal("Compute should return false for a window shorter than MinWindow")
	}
	if window[len(window)-1].RSI != nil {
		t.Fatal("indicators must not be written when the window is too short")
	}
}

func TestEngine_ComputesOnFullWindow(t *testing.T) {
	e := NewEngine()
	window := make([]model.CandleRecord, PreferredWindow)
	for i := range window {
		window[i] = candle(100 + float64(i)*0.5)
	}
	if !e.Compute(window) {
		t.Fatal("Compute should succeed with a full window")
	}
	last := window[len(window)-1]
	if last.MA.MA5 == nil || last.MA.MA20 == nil || last.MA.MA50 == nil {
		t.Fatal("moving averages should be populated")
	}
	if last.RSI == nil {
		t.Fatal("RSI should be populated")
	}
	if last.MACD.Line == nil || last.MACD.Signal == nil {
		t.Fatal("MACD should be populated")
	}
	// Slow-KD alias: skdj must mirror stochastic exactly.
	if last.Stochastic.K == nil || last.SKDJ.K == nil || *last.Stochastic.K != *last.SKDJ.K {
		t.Fatal("skdj must alias stochastic")
	}
	// Indicators are only written onto the most recent bar.
	if window[0].RSI != nil {
		t.Fatal("prior bars must not be retroactively rewritten")
	}
}
