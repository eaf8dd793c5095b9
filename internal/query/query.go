// Package query implements the predicate/query language: validating and
// evaluating a recursive Condition tree against candle records.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
)

// ParseTimestampValue parses an ISO-8601 string into a timestamp Value for
// use with before/after leaves, surfacing unparseable input as the
// malformed-predicate error kind.
func ParseTimestampValue(s string) (model.Value, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return model.Value{}, &apperr.ValidationError{Field: "value", Message: fmt.Sprintf("unparseable date %q", s)}
	}
	return model.TimestampValue(t), nil
}

// Validate walks cond and checks the closed field/operator sets plus the
// structural arity rules: NOT takes exactly one child, AND/OR take at
// least one, between takes a 2-element list.
func Validate(cond *model.Condition) error {
	if cond == nil {
		return &apperr.ValidationError{Field: "conditions", Message: "malformed predicate tree: nil condition"}
	}
	if cond.IsLeaf() {
		if !cond.Field.Valid() {
			return &apperr.ValidationError{Field: "field", Message: fmt.Sprintf("unknown field %q", cond.Field)}
		}
		if !cond.Operator.Valid() {
			return &apperr.ValidationError{Field: "operator", Message: fmt.Sprintf("unknown operator %q", cond.Operator)}
		}
		if cond.Operator == model.OpBetween && len(cond.Value.List) != 2 {
			return &apperr.ValidationError{Field: "value", Message: "between requires a list of exactly 2 values"}
		}
		return nil
	}

	switch cond.LogicalOp {
	case model.LogicalNot:
		if len(cond.Children) != 1 {
			return &apperr.ValidationError{Field: "children", Message: "NOT requires exactly one child"}
		}
	case model.LogicalAnd, model.LogicalOr:
		if len(cond.Children) < 1 {
			return &apperr.ValidationError{Field: "children", Message: fmt.Sprintf("%s requires at least one child", cond.LogicalOp)}
		}
	default:
		return &apperr.ValidationError{Field: "logical_op", Message: fmt.Sprintf("unknown logical operator %q", cond.LogicalOp)}
	}
	for _, child := range cond.Children {
		if err := Validate(child); err != nil {
			return err
		}
	}
	return nil
}

// Evaluate reports whether rec satisfies cond, as of now (for within_last).
// cond must already have passed Validate. Null indicator values never
// satisfy any comparison operator: they are treated as absent, not
// zero.
func Evaluate(cond *model.Condition, rec *model.CandleRecord, now time.Time) (bool, error) {
	if cond.IsLeaf() {
		return evalLeaf(cond, rec, now)
	}

	switch cond.LogicalOp {
	case model.LogicalNot:
		ok, err := Evaluate(cond.Children[0], rec, now)
		if err != nil {
			return false, err
		}
		return !ok, nil
	case model.LogicalAnd:
		for _, child := range cond.Children {
			ok, err := Evaluate(child, rec, now)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case model.LogicalOr:
		for _, child := range cond.Children {
			ok, err := Evaluate(child, rec, now)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &apperr.ValidationError{Field: "logical_op", Message: fmt.Sprintf("unknown logical operator %q", cond.LogicalOp)}
	}
}

func evalLeaf(cond *model.Condition, rec *model.CandleRecord, now time.Time) (bool, error) {
	switch cond.Field {
	case model.FieldSignals:
		return evalSignals(cond, rec)
	case model.FieldSymbol:
		return evalString(cond, string(rec.Symbol))
	case model.FieldTimeframe:
		return evalString(cond, string(rec.Timeframe))
	case model.FieldTimestamp:
		return evalTimestamp(cond, rec.BarOpenTime, now)
	}

	val, ok := numericField(cond.Field, rec)
	if !ok {
		// Null indicator: absent, never matches a comparison operator.
		return false, nil
	}
	return evalNumber(cond, val)
}

// numericField extracts a scalar field's value, reporting false if the
// field is a nullable indicator that has not yet been computed.
func numericField(f model.Field, rec *model.CandleRecord) (float64, bool) {
	switch f {
	case model.FieldOpen:
		return rec.Open, true
	case model.FieldHigh:
		return rec.High, true
	case model.FieldLow:
		return rec.Low, true
	case model.FieldClose:
		return rec.Close, true
	case model.FieldVolume:
		return rec.Volume, true
	case model.FieldMA5:
		return derefOK(rec.MA.MA5)
	case model.FieldMA10:
		return derefOK(rec.MA.MA10)
	case model.FieldMA20:
		return derefOK(rec.MA.MA20)
	case model.FieldMA50:
		return derefOK(rec.MA.MA50)
	case model.FieldRSI:
		return derefOK(rec.RSI)
	case model.FieldMACD:
		return derefOK(rec.MACD.Line)
	case model.FieldMACDS:
		return derefOK(rec.MACD.Signal)
	case model.FieldMACDH:
		return derefOK(rec.MACD.Histogram)
	case model.FieldStochK:
		return derefOK(rec.Stochastic.K)
	case model.FieldStochD:
		return derefOK(rec.Stochastic.D)
	case model.FieldBBUp:
		return derefOK(rec.Bollinger.Upper)
	case model.FieldBBMid:
		return derefOK(rec.Bollinger.Middle)
	case model.FieldBBLow:
		return derefOK(rec.Bollinger.Lower)
	case model.FieldCCI:
		return derefOK(rec.CCI)
	case model.FieldKDJK:
		return derefOK(rec.KDJ.K)
	case model.FieldKDJD:
		return derefOK(rec.KDJ.D)
	case model.FieldKDJJ:
		return derefOK(rec.KDJ.J)
	}
	return 0, false
}

func derefOK(p *float64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return *p, true
}

func evalNumber(cond *model.Condition, v float64) (bool, error) {
	switch cond.Operator {
	case model.OpEq:
		return v == cond.Value.Num, nil
	case model.OpNe:
		return v != cond.Value.Num, nil
	case model.OpGt:
		return v > cond.Value.Num, nil
	case model.OpGte:
		return v >= cond.Value.Num, nil
	case model.OpLt:
		return v < cond.Value.Num, nil
	case model.OpLte:
		return v <= cond.Value.Num, nil
	case model.OpIn:
		for _, item := range cond.Value.List {
			if item.Num == v {
				return true, nil
			}
		}
		return false, nil
	case model.OpNin:
		for _, item := range cond.Value.List {
			if item.Num == v {
				return false, nil
			}
		}
		return true, nil
	case model.OpBetween:
		lo, hi := cond.Value.List[0].Num, cond.Value.List[1].Num
		if lo > hi {
			lo, hi = hi, lo
		}
		return v >= lo && v <= hi, nil
	default:
		return false, &apperr.ValidationError{Field: "operator", Message: fmt.Sprintf("operator %q not applicable to a numeric field", cond.Operator)}
	}
}

func evalString(cond *model.Condition, v string) (bool, error) {
	lv := strings.ToLower(v)
	switch cond.Operator {
	case model.OpEq:
		return v == cond.Value.Str, nil
	case model.OpNe:
		return v != cond.Value.Str, nil
	case model.OpIn:
		for _, item := range cond.Value.List {
			if item.Str == v {
				return true, nil
			}
		}
		return false, nil
	case model.OpNin:
		for _, item := range cond.Value.List {
			if item.Str == v {
				return false, nil
			}
		}
		return true, nil
	case model.OpContains:
		return strings.Contains(lv, strings.ToLower(cond.Value.Str)), nil
	case model.OpNotContains:
		return !strings.Contains(lv, strings.ToLower(cond.Value.Str)), nil
	case model.OpStartsWith:
		return strings.HasPrefix(lv, strings.ToLower(cond.Value.Str)), nil
	case model.OpEndsWith:
		return strings.HasSuffix(lv, strings.ToLower(cond.Value.Str)), nil
	default:
		return false, &apperr.ValidationError{Field: "operator", Message: fmt.Sprintf("operator %q not applicable to a string field", cond.Operator)}
	}
}

// evalSignals implements contains/not_contains on the signals field. The
// value may be a single string (match that one tag) or a list (match if the
// record carries any tag in the list).
func evalSignals(cond *model.Condition, rec *model.CandleRecord) (bool, error) {
	switch cond.Operator {
	case model.OpContains:
		return anySignalPresent(cond.Value, rec), nil
	case model.OpNotContains:
		return !anySignalPresent(cond.Value, rec), nil
	default:
		return false, &apperr.ValidationError{Field: "operator", Message: fmt.Sprintf("operator %q not applicable to signals", cond.Operator)}
	}
}

func anySignalPresent(v model.Value, rec *model.CandleRecord) bool {
	if v.Kind == model.ValueList {
		for _, item := range v.List {
			if rec.HasSignal(item.Str) {
				return true
			}
		}
		return false
	}
	return rec.HasSignal(v.Str)
}

func evalTimestamp(cond *model.Condition, v time.Time, now time.Time) (bool, error) {
	switch cond.Operator {
	case model.OpWithinLast:
		hours := cond.Value.Num
		cutoff := now.Add(-time.Duration(hours * float64(time.Hour)))
		return !v.Before(cutoff), nil
	case model.OpBefore:
		return v.Before(cond.Value.Time), nil
	case model.OpAfter:
		return v.After(cond.Value.Time), nil
	case model.OpEq:
		return v.Equal(cond.Value.Time), nil
	case model.OpNe:
		return !v.Equal(cond.Value.Time), nil
	default:
		return false, &apperr.ValidationError{Field: "operator", Message: fmt.Sprintf("operator %q not applicable to timestamp", cond.Operator)}
	}
}
