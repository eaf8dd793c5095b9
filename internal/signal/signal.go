// Package signal derives the closed taxonomy of named trading signals from
// a candle window's already-computed indicators. Detect never
// raises: missing inputs (null indicator, insufficient history) silently
// suppress the corresponding tag.
package signal

import "github.com/tradesentinel/core/internal/model"

// Closed taxonomy.
const (
	RSIOversold   = "RSI_OVERSOLD"
	RSIOverbought = "RSI_OVERBOUGHT"

	RSIDivergenceBullish = "RSI_DIVERGENCE_BULLISH"
	RSIDivergenceBearish = "RSI_DIVERGENCE_BEARISH"

	MACDBullishCross = "MACD_BULLISH_CROSS"
	MACDBearishCross = "MACD_BEARISH_CROSS"
	MACDZeroCrossUp  = "MACD_ZERO_CROSS_UP"
	MACDZeroCrossDn  = "MACD_ZERO_CROSS_DOWN"

	MACDDivergenceBullish = "MACD_DIVERGENCE_BULLISH"
	MACDDivergenceBearish = "MACD_DIVERGENCE_BEARISH"

	MAGoldenCross        = "MA_GOLDEN_CROSS"
	MADeathCross         = "MA_DEATH_CROSS"
	MABullishArrangement = "MA_BULLISH_ARRANGEMENT"
	MABearishArrangement = "MA_BEARISH_ARRANGEMENT"
	PriceAboveMA50       = "PRICE_ABOVE_MA50"
	PriceBelowMA50       = "PRICE_BELOW_MA50"

	BBUpperTouch    = "BB_UPPER_TOUCH"
	BBLowerTouch    = "BB_LOWER_TOUCH"
	BBMiddleCrossUp = "BB_MIDDLE_CROSS_UP"
	BBMiddleCrossDn = "BB_MIDDLE_CROSS_DOWN"
	BBSqueeze       = "BB_SQUEEZE"
	BBExpansion     = "BB_EXPANSION"

	KDJOversold    = "KDJ_OVERSOLD"
	KDJOverbought  = "KDJ_OVERBOUGHT"
	KDJGoldenCross = "KDJ_GOLDEN_CROSS"
	KDJDeathCross  = "KDJ_DEATH_CROSS"

	StochOversold     = "STOCH_OVERSOLD"
	StochOverbought   = "STOCH_OVERBOUGHT"
	StochBullishCross = "STOCH_BULLISH_CROSS"
	StochBearishCross = "STOCH_BEARISH_CROSS"

	CCIOversold    = "CCI_OVERSOLD"
	CCIOverbought  = "CCI_OVERBOUGHT"
	CCIZeroCrossUp = "CCI_ZERO_CROSS_UP"
	CCIZeroCrossDn = "CCI_ZERO_CROSS_DOWN"

	VolumeSpike = "VOLUME_SPIKE"
	VolumeDry   = "VOLUME_DRY"
)

// MinWindow is the preferred window size the signal engine loads; Detect degrades
// gracefully with less, per-signal guard permitting.
const MinWindow = 100

// divergenceLookback is the number of trailing bars examined for RSI/MACD
// divergence.
const divergenceLookback = 5

// bbVolumeLookback is the number of prior bars (excluding curr) used by the
// Bollinger squeeze/expansion and volume spike/dry comparisons.
const bbVolumeLookback = 19

// Detect loads window (oldest-first, curr = last element) and returns a
// deduplicated set of taxonomy tags for the most recent bar. window must
// have at least 2 bars (curr, prev); the Bollinger squeeze/expansion,
// volume and divergence signals additionally require bbVolumeLookback+1 or
// divergenceLookback bars of history and silently abstain otherwise.
func Detect(window []model.CandleRecord) []string {
	if len(window) < 2 {
		return nil
	}
	curr := window[len(window)-1]
	prev := window[len(window)-2]

	seen := make(map[string]bool)
	add := func(tag string) { seen[tag] = true }

	detectRSI(curr, add)
	detectRSIDivergence(window, add)
	detectMACD(curr, prev, add)
	detectMACDDivergence(window, add)
	detectMA(curr, prev, add)
	detectBollinger(window, add)
	detectKDJ(curr, prev, add)
	detectStochastic(curr, prev, add)
	detectCCI(curr, prev, add)
	detectVolume(window, add)

	out := make([]string, 0, len(seen))
	for tag := range seen {
		out = append(out, tag)
	}
	return out
}

func detectRSI(curr model.CandleRecord, add func(string)) {
	if curr.RSI == nil {
		return
	}
	switch {
	case *curr.RSI < 30:
		add(RSIOversold)
	case *curr.RSI > 70:
		add(RSIOverbought)
	}
}

func detectMACD(curr, prev model.CandleRecord, add func(string)) {
	if curr.MACD.Line == nil || curr.MACD.Signal == nil || prev.MACD.Line == nil || prev.MACD.Signal == nil {
		return
	}
	prevDiff := *prev.MACD.Line - *prev.MACD.Signal
	currDiff := *curr.MACD.Line - *curr.MACD.Signal
	if prevDiff <= 0 && currDiff > 0 {
		add(MACDBullishCross)
	}
	if prevDiff >= 0 && currDiff < 0 {
		add(MACDBearishCross)
	}
	if prev.MACD.Line != nil && *prev.MACD.Line <= 0 && *curr.MACD.Line > 0 {
		add(MACDZeroCrossUp)
	}
	if prev.MACD.Line != nil && *prev.MACD.Line >= 0 && *curr.MACD.Line < 0 {
		add(MACDZeroCrossDn)
	}
}

func detectMA(curr, prev model.CandleRecord, add func(string)) {
	if curr.MA.MA5 != nil && curr.MA.MA20 != nil && prev.MA.MA5 != nil && prev.MA.MA20 != nil {
		prevDiff := *prev.MA.MA5 - *prev.MA.MA20
		currDiff := *curr.MA.MA5 - *curr.MA.MA20
		if prevDiff <= 0 && currDiff > 0 {
			add(MAGoldenCross)
		}
		if prevDiff >= 0 && currDiff < 0 {
			add(MADeathCross)
		}
	}
	if curr.MA.MA5 != nil && curr.MA.MA10 != nil && curr.MA.MA20 != nil && curr.MA.MA50 != nil {
		a, b, c, d := *curr.MA.MA5, *curr.MA.MA10, *curr.MA.MA20, *curr.MA.MA50
		if a > b && b > c && c > d {
			add(MABullishArrangement)
		}
		if a < b && b < c && c < d {
			add(MABearishArrangement)
		}
	}
	if curr.MA.MA50 != nil {
		if curr.Close > *curr.MA.MA50 {
			add(PriceAboveMA50)
		} else if curr.Close < *curr.MA.MA50 {
			add(PriceBelowMA50)
		}
	}
}

func detectBollinger(window []model.CandleRecord, add func(string)) {
	curr := window[len(window)-1]
	prev := window[len(window)-2]

	if curr.Bollinger.Upper != nil && curr.Close >= 0.995*(*curr.Bollinger.Upper) {
		add(BBUpperTouch)
	}
	if curr.Bollinger.Lower != nil && curr.Close <= 1.005*(*curr.Bollinger.Lower) {
		add(BBLowerTouch)
	}
	if curr.Bollinger.Middle != nil && prev.Bollinger.Middle != nil {
		if prev.Close <= *prev.Bollinger.Middle && curr.Close > *curr.Bollinger.Middle {
			add(BBMiddleCrossUp)
		}
		if prev.Close >= *prev.Bollinger.Middle && curr.Close < *curr.Bollinger.Middle {
			add(BBMiddleCrossDn)
		}
	}

	if len(window) < bbVolumeLookback+1 || curr.Bollinger.Upper == nil || curr.Bollinger.Lower == nil || curr.Bollinger.Middle == nil || *curr.Bollinger.Middle == 0 {
		return
	}
	currBandwidth := (*curr.Bollinger.Upper - *curr.Bollinger.Lower) / *curr.Bollinger.Middle

	prior := window[len(window)-1-bbVolumeLookback : len(window)-1]
	sum, count := 0.0, 0
	for _, b := range prior {
		if b.Bollinger.Upper == nil || b.Bollinger.Lower == nil || b.Bollinger.Middle == nil || *b.Bollinger.Middle == 0 {
			continue
		}
		sum += (*b.Bollinger.Upper - *b.Bollinger.Lower) / *b.Bollinger.Middle
		count++
	}
	if count == 0 {
		return
	}
	meanBandwidth := sum / float64(count)
	if currBandwidth < 0.8*meanBandwidth {
		add(BBSqueeze)
	}
	if currBandwidth > 1.2*meanBandwidth {
		add(BBExpansion)
	}
}

func detectKDJ(curr, prev model.CandleRecord, add func(string)) {
	if curr.KDJ.J == nil {
		return
	}
	switch {
	case *curr.KDJ.J < 0:
		add(KDJOversold)
	case *curr.KDJ.J > 100:
		add(KDJOverbought)
	}
	if curr.KDJ.K == nil || curr.KDJ.D == nil || prev.KDJ.K == nil || prev.KDJ.D == nil {
		return
	}
	prevDiff := *prev.KDJ.K - *prev.KDJ.D
	currDiff := *curr.KDJ.K - *curr.KDJ.D
	if prevDiff <= 0 && currDiff > 0 && *curr.KDJ.J < 80 {
		add(KDJGoldenCross)
	}
	if prevDiff >= 0 && currDiff < 0 && *curr.KDJ.J > 20 {
		add(KDJDeathCross)
	}
}

func detectStochastic(curr, prev model.CandleRecord, add func(string)) {
	if curr.Stochastic.K == nil || curr.Stochastic.D == nil {
		return
	}
	k, d := *curr.Stochastic.K, *curr.Stochastic.D
	if k < 20 && d < 20 {
		add(StochOversold)
	}
	if k > 80 && d > 80 {
		add(StochOverbought)
	}
	if prev.Stochastic.K == nil || prev.Stochastic.D == nil {
		return
	}
	prevDiff := *prev.Stochastic.K - *prev.Stochastic.D
	currDiff := k - d
	if prevDiff <= 0 && currDiff > 0 && k < 80 {
		add(StochBullishCross)
	}
	if prevDiff >= 0 && currDiff < 0 && k > 20 {
		add(StochBearishCross)
	}
}

func detectCCI(curr, prev model.CandleRecord, add func(string)) {
	if curr.CCI == nil {
		return
	}
	switch {
	case *curr.CCI < -100:
		add(CCIOversold)
	case *curr.CCI > 100:
		add(CCIOverbought)
	}
	if prev.CCI == nil {
		return
	}
	if *prev.CCI <= 0 && *curr.CCI > 0 {
		add(CCIZeroCrossUp)
	}
	if *prev.CCI >= 0 && *curr.CCI < 0 {
		add(CCIZeroCrossDn)
	}
}

func detectVolume(window []model.CandleRecord, add func(string)) {
	if len(window) < bbVolumeLookback+1 {
		return
	}
	curr := window[len(window)-1]
	prior := window[len(window)-1-bbVolumeLookback : len(window)-1]
	sum := 0.0
	for _, b := range prior {
		sum += b.Volume
	}
	mean := sum / float64(len(prior))
	if mean == 0 {
		return
	}
	if curr.Volume > 2*mean {
		add(VolumeSpike)
	}
	if curr.Volume < 0.5*mean {
		add(VolumeDry)
	}
}

// detectRSIDivergence implements RSI_DIVERGENCE_BULLISH/_BEARISH: over the
// last divergenceLookback bars, close makes a new extreme while RSI does
// not (higher-low / lower-high respectively).
func detectRSIDivergence(window []model.CandleRecord, add func(string)) {
	bars := lastN(window, divergenceLookback)
	if len(bars) < divergenceLookback {
		return
	}
	curr := bars[len(bars)-1]
	if curr.RSI == nil {
		return
	}

	lowestCloseIdx, highestCloseIdx := 0, 0
	for i, b := range bars {
		if b.Close < bars[lowestCloseIdx].Close {
			lowestCloseIdx = i
		}
		if b.Close > bars[highestCloseIdx].Close {
			highestCloseIdx = i
		}
	}

	last := len(bars) - 1
	if lowestCloseIdx == last && bars[lowestCloseIdx].RSI != nil {
		// New low in price; bullish divergence requires RSI making a
		// higher low than some earlier bar's RSI.
		for i := 0; i < last; i++ {
			if bars[i].RSI != nil && *curr.RSI > *bars[i].RSI {
				add(RSIDivergenceBullish)
				break
			}
		}
	}
	if highestCloseIdx == last && bars[highestCloseIdx].RSI != nil {
		for i := 0; i < last; i++ {
			if bars[i].RSI != nil && *curr.RSI < *bars[i].RSI {
				add(RSIDivergenceBearish)
				break
			}
		}
	}
}

// detectMACDDivergence is the MACD-line analog of detectRSIDivergence.
func detectMACDDivergence(window []model.CandleRecord, add func(string)) {
	bars := lastN(window, divergenceLookback)
	if len(bars) < divergenceLookback {
		return
	}
	curr := bars[len(bars)-1]
	if curr.MACD.Line == nil {
		return
	}

	lowestCloseIdx, highestCloseIdx := 0, 0
	for i, b := range bars {
		if b.Close < bars[lowestCloseIdx].Close {
			lowestCloseIdx = i
		}
		if b.Close > bars[highestCloseIdx].Close {
			highestCloseIdx = i
		}
	}

	last := len(bars) - 1
	if lowestCloseIdx == last {
		for i := 0; i < last; i++ {
			if bars[i].MACD.Line != nil && *curr.MACD.Line > *bars[i].MACD.Line {
				add(MACDDivergenceBullish)
				break
			}
		}
	}
	if highestCloseIdx == last {
		for i := 0; i < last; i++ {
			if bars[i].MACD.Line != nil && *curr.MACD.Line < *bars[i].MACD.Line {
				add(MACDDivergenceBearish)
				break
			}
		}
	}
}

func lastN(window []model.CandleRecord, n int) []model.CandleRecord {
	if len(window) < n {
		return nil
	}
	return window[len(window)-n:]
}
