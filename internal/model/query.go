package model

import "time"

// Field is a closed enumeration of addressable candle fields with explicit
// accessors, so predicate evaluation never reflects over struct members.
type Field string

const (
	FieldOpen      Field = "open"
	FieldHigh      Field = "high"
	FieldLow       Field = "low"
	FieldClose     Field = "close"
	FieldVolume    Field = "volume"
	FieldTimestamp Field = "timestamp"
	FieldTimeframe Field = "timeframe"
	FieldSymbol    Field = "symbol"
	FieldSignals   Field = "signals"

	FieldMA5    Field = "ma.ma_5"
	FieldMA10   Field = "ma.ma_10"
	FieldMA20   Field = "ma.ma_20"
	FieldMA50   Field = "ma.ma_50"
	FieldRSI    Field = "rsi"
	FieldMACD   Field = "macd.macd_line"
	FieldMACDS  Field = "macd.macd_signal"
	FieldMACDH  Field = "macd.macd_histogram"
	FieldStochK Field = "stochastic.k"
	FieldStochD Field = "stochastic.d"
	FieldBBUp   Field = "bollinger.upper"
	FieldBBMid  Field = "bollinger.middle"
	FieldBBLow  Field = "bollinger.lower"
	FieldCCI    Field = "cci"
	FieldKDJK   Field = "kdj.k"
	FieldKDJD   Field = "kdj.d"
	FieldKDJJ   Field = "kdj.j"
)

// knownFields is the closed field set used to validate predicates at parse
// time.
var knownFields = map[Field]bool{
	FieldOpen: true, FieldHigh: true, FieldLow: true, FieldClose: true, FieldVolume: true,
	FieldTimestamp: true, FieldTimeframe: true, FieldSymbol: true, FieldSignals: true,
	FieldMA5: true, FieldMA10: true, FieldMA20: true, FieldMA50: true,
	FieldRSI: true, FieldMACD: true, FieldMACDS: true, FieldMACDH: true,
	FieldStochK: true, FieldStochD: true,
	FieldBBUp: true, FieldBBMid: true, FieldBBLow: true,
	FieldCCI: true, FieldKDJK: true, FieldKDJD: true, FieldKDJJ: true,
}

// Valid reports whether f is a member of the closed field set.
func (f Field) Valid() bool { return knownFields[f] }

// Operator is a closed enumeration of predicate comparison operators.
type Operator string

const (
	OpEq           Operator = "eq"
	OpNe           Operator = "ne"
	OpGt           Operator = "gt"
	OpGte          Operator = "gte"
	OpLt           Operator = "lt"
	OpLte          Operator = "lte"
	OpIn           Operator = "in"
	OpNin          Operator = "nin"
	OpBetween      Operator = "between"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpStartsWith   Operator = "starts_with"
	OpEndsWith     Operator = "ends_with"
	OpWithinLast   Operator = "within_last"
	OpBefore       Operator = "before"
	OpAfter        Operator = "after"
)

var knownOperators = map[Operator]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNin: true, OpBetween: true,
	OpContains: true, OpNotContains: true, OpStartsWith: true, OpEndsWith: true,
	OpWithinLast: true, OpBefore: true, OpAfter: true,
}

// Valid reports whether op is a member of the closed operator set.
func (op Operator) Valid() bool { return knownOperators[op] }

// LogicalOp is the connective used by a predicate tree Node.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "AND"
	LogicalOr  LogicalOp = "OR"
	LogicalNot LogicalOp = "NOT"
)

// ValueKind discriminates the Value sum type.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueNumber
	ValueString
	ValueBool
	ValueList
	ValueTimestamp
)

// Value is a tagged union: Scalar(Number|String|Bool) | List(Scalar[]) |
// Timestamp(Instant). Exactly one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind   ValueKind
	Num    float64
	Str    string
	Bool   bool
	List   []Value
	Time   time.Time
}

// NumberValue constructs a numeric scalar Value.
func NumberValue(n float64) Value { return Value{Kind: ValueNumber, Num: n} }

// StringValue constructs a string scalar Value.
func StringValue(s string) Value { return Value{Kind: ValueString, Str: s} }

// BoolValue constructs a boolean scalar Value.
func BoolValue(b bool) Value { return Value{Kind: ValueBool, Bool: b} }

// ListValue constructs a list-of-scalar Value.
func ListValue(vs ...Value) Value { return Value{Kind: ValueList, List: vs} }

// TimestampValue constructs an instant Value.
func TimestampValue(t time.Time) Value { return Value{Kind: ValueTimestamp, Time: t} }

// Condition is the recursive predicate tree sum type: either a Leaf
// (field/operator/value) or a Node (logical op + children). Exactly one of
// the two shapes is populated in a well-formed tree.
type Condition struct {
	// Leaf shape.
	Field    Field
	Operator Operator
	Value    Value

	// Node shape.
	LogicalOp LogicalOp
	Children  []*Condition
}

// IsLeaf reports whether c is a leaf predicate rather than a logical node.
func (c *Condition) IsLeaf() bool { return c.LogicalOp == "" }

// Leaf builds a leaf predicate condition.
func Leaf(field Field, op Operator, value Value) *Condition {
	return &Condition{Field: field, Operator: op, Value: value}
}

// And builds an AND node over children.
func And(children ...*Condition) *Condition {
	return &Condition{LogicalOp: LogicalAnd, Children: children}
}

// Or builds an OR node over children.
func Or(children ...*Condition) *Condition {
	return &Condition{LogicalOp: LogicalOr, Children: children}
}

// Not builds a NOT node over exactly one child.
func Not(child *Condition) *Condition {
	return &Condition{LogicalOp: LogicalNot, Children: []*Condition{child}}
}

// SortOrder controls result ordering.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// QueryRequest is the input to the query engine.
type QueryRequest struct {
	Symbol     Symbol
	Timeframes []Timeframe
	Conditions *Condition
	Limit      int
	SortBy     Field
	SortOrder  SortOrder
}

// QueryResult is the output of the query engine.
type QueryResult struct {
	MatchedRecords  int
	Data            []CandleRecord
	TotalRecords    int
	ExecutionTimeMs float64
}

// FieldStats is the historical-statistics helper's per-timeframe result.
type FieldStats struct {
	Timeframe Timeframe
	Count     int
	Min       *float64
	Max       *float64
	Avg       *float64
	Current   *float64
	Previous  *float64
}
