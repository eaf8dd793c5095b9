package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// valueWire is the on-the-wire shape for Value: a tagged union encoded as a
// JSON object, used to persist/transmit a Condition tree (alert rules are
// stored with their trigger_conditions as JSON; the inbound query surface
// accepts the same shape).
type valueWire struct {
	Kind string      `json:"kind"`
	Num  float64     `json:"num,omitempty"`
	Str  string      `json:"str,omitempty"`
	Bool bool        `json:"bool,omitempty"`
	List []valueWire `json:"list,omitempty"`
	Time *time.Time  `json:"time,omitempty"`
}

func (v Value) toWire() valueWire {
	switch v.Kind {
	case ValueNumber:
		return valueWire{Kind: "number", Num: v.Num}
	case ValueString:
		return valueWire{Kind: "string", Str: v.Str}
	case ValueBool:
		return valueWire{Kind: "bool", Bool: v.Bool}
	case ValueTimestamp:
		t := v.Time
		return valueWire{Kind: "timestamp", Time: &t}
	case ValueList:
		list := make([]valueWire, len(v.List))
		for i, item := range v.List {
			list[i] = item.toWire()
		}
		return valueWire{Kind: "list", List: list}
	default:
		return valueWire{Kind: "none"}
	}
}

func (w valueWire) toValue() (Value, error) {
	switch w.Kind {
	case "", "none":
		return Value{}, nil
	case "number":
		return NumberValue(w.Num), nil
	case "string":
		return StringValue(w.Str), nil
	case "bool":
		return BoolValue(w.Bool), nil
	case "timestamp":
		if w.Time == nil {
			return Value{}, fmt.Errorf("value: timestamp kind missing time")
		}
		return TimestampValue(*w.Time), nil
	case "list":
		items := make([]Value, len(w.List))
		for i, item := range w.List {
			v, err := item.toValue()
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return ListValue(items...), nil
	default:
		return Value{}, fmt.Errorf("value: unknown kind %q", w.Kind)
	}
}

// MarshalJSON encodes v as its tagged-union wire form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toWire())
}

// UnmarshalJSON decodes v from its tagged-union wire form.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w valueWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	val, err := w.toValue()
	if err != nil {
		return err
	}
	*v = val
	return nil
}

// conditionWire is the on-the-wire shape for Condition: a leaf carries
// field/operator/value, a node carries logical_op/children. Exactly one
// shape is populated, mirroring the in-memory sum type.
type conditionWire struct {
	Field     Field            `json:"field,omitempty"`
	Operator  Operator         `json:"operator,omitempty"`
	Value     *valueWire       `json:"value,omitempty"`
	LogicalOp LogicalOp        `json:"logical_op,omitempty"`
	Children  []*conditionWire `json:"children,omitempty"`
}

// MarshalJSON encodes c as its leaf/node wire form.
func (c *Condition) MarshalJSON() ([]byte, error) {
	if c == nil {
		return []byte("null"), nil
	}
	if c.IsLeaf() {
		vw := c.Value.toWire()
		return json.Marshal(conditionWire{Field: c.Field, Operator: c.Operator, Value: &vw})
	}
	children := make([]*conditionWire, len(c.Children))
	for i, child := range c.Children {
		b, err := child.MarshalJSON()
		if err != nil {
			return nil, err
		}
		var cw conditionWire
		if err := json.Unmarshal(b, &cw); err != nil {
			return nil, err
		}
		children[i] = &cw
	}
	return json.Marshal(conditionWire{LogicalOp: c.LogicalOp, Children: children})
}

// UnmarshalJSON decodes c from its leaf/node wire form.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var w conditionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.LogicalOp != "" || len(w.Children) > 0 {
		children := make([]*Condition, len(w.Children))
		for i, cw := range w.Children {
			b, err := json.Marshal(cw)
			if err != nil {
				return err
			}
			child := &Condition{}
			if err := child.UnmarshalJSON(b); err != nil {
				return err
			}
			children[i] = child
		}
		c.LogicalOp = w.LogicalOp
		c.Children = children
		return nil
	}
	c.Field = w.Field
	c.Operator = w.Operator
	if w.Value != nil {
		val, err := w.Value.toValue()
		if err != nil {
			return err
		}
		c.Value = val
	}
	return nil
}
