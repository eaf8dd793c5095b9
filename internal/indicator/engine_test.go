package indicator

import (
	"testing"

	"github.com/tradesentinel/core/internal/model"
)

func series(n int, start float64, step float64) []model.CandleRecord {
	out := make([]model.CandleRecord, n)
	for i := 0; i < n; i++ {
		c := start + step*float64(i)
		out[i] = model.CandleRecord{Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000}
	}
	return out
}

func TestEngine_Compute_WritesOnlyLastBar(t *testing.T) {
	e := NewEngine()
	window := series(80, 100, 0.25)

	if !e.Compute(window) {
		t.Fatal("expected Compute to succeed with 80 bars")
	}
	for i := 0; i < len(window)-1; i++ {
		if window[i].MA.MA5 != nil {
			t.Fatalf("bar %d should not have been written, only the last bar", i)
		}
	}
	last := window[len(window)-1]
	if last.MA.MA5 == nil || last.MA.MA10 == nil || last.MA.MA20 == nil || last.MA.MA50 == nil {
		t.Fatal("expected all moving averages to be populated on the last bar")
	}
	if last.Bollinger.Upper == nil || last.Bollinger.Lower == nil {
		t.Fatal("expected Bollinger bands to be populated")
	}
	if last.CCI == nil {
		t.Fatal("expected CCI to be populated")
	}
	if last.KDJ.J == nil {
		t.Fatal("expected KDJ to be populated")
	}
}

func TestEngine_Compute_InsufficientHistorySkips(t *testing.T) {
	e := NewEngine()
	window := series(10, 100, 1)
	if e.Compute(window) {
		t.Fatal("expected Compute to skip a window shorter than MinWindow")
	}
}

func TestEngine_Compute_Idempotent(t *testing.T) {
	// feeding the same window twice produces identical indicator values
	// on the latest bar.
	e := NewEngine()
	w1 := series(70, 200, -0.5)
	w2 := series(70, 200, -0.5)

	e.Compute(w1)
	e.Compute(w2)

	l1, l2 := w1[len(w1)-1], w2[len(w2)-1]
	if *l1.RSI != *l2.RSI {
		t.Errorf("RSI mismatch across identical recomputes: %v vs %v", *l1.RSI, *l2.RSI)
	}
	if *l1.MA.MA20 != *l2.MA.MA20 {
		t.Errorf("MA20 mismatch across identical recomputes: %v vs %v", *l1.MA.MA20, *l2.MA.MA20)
	}
}
