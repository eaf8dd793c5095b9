package query

import (
	"sort"
	"time"

	"github.com/tradesentinel/core/internal/model"
)

// ExecuteOverTimeframe filters rows (already narrowed to one symbol and
// timeframe) by req.Conditions, sorts by req.SortBy/req.SortOrder (default
// timestamp desc), and caps the result by req.Limit. It returns the capped
// match slice plus len(rows), the number of rows it was given before
// filtering.
func ExecuteOverTimeframe(rows []model.CandleRecord, req model.QueryRequest, now time.Time) ([]model.CandleRecord, int, error) {
	total := len(rows)

	matched := make([]model.CandleRecord, 0, len(rows))
	for _, r := range rows {
		if req.Conditions != nil {
			ok, err := Evaluate(req.Conditions, &r, now)
			if err != nil {
				return nil, 0, err
			}
			if !ok {
				continue
			}
		}
		matched = append(matched, r)
	}

	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = model.FieldTimestamp
	}
	order := req.SortOrder
	if order == "" {
		order = model.SortDesc
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if order == model.SortDesc {
			return lessBy(matched[j], matched[i], sortBy)
		}
		return lessBy(matched[i], matched[j], sortBy)
	})

	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}
	return matched, total, nil
}

func lessBy(a, b model.CandleRecord, field model.Field) bool {
	if field == model.FieldTimestamp {
		return a.BarOpenTime.Before(b.BarOpenTime)
	}
	av, aok := numericField(field, &a)
	bv, bok := numericField(field, &b)
	if !aok || !bok {
		return false
	}
	return av < bv
}

// ComputeFieldStats implements the historical-statistics helper: over
// the n most-recent rows (oldest-first input, already capped by the caller),
// compute {count, min, max, avg, current, previous}, dropping nulls before
// aggregation.
func ComputeFieldStats(rows []model.CandleRecord, field model.Field, tf model.Timeframe) model.FieldStats {
	stats := model.FieldStats{Timeframe: tf}
	var values []float64
	for _, r := range rows {
		v, ok := numericField(field, &r)
		if !ok {
			continue
		}
		values = append(values, v)
	}
	stats.Count = len(values)
	if len(values) == 0 {
		return stats
	}

	min, max, sum := values[0], values[0], 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	avg := sum / float64(len(values))
	stats.Min = ptr(min)
	stats.Max = ptr(max)
	stats.Avg = ptr(avg)
	stats.Current = ptr(values[len(values)-1])
	if len(values) >= 2 {
		stats.Previous = ptr(values[len(values)-2])
	}
	return stats
}

func ptr(v float64) *float64 { return &v }
