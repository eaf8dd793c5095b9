package sqlite

import (
	"testing"

	"github.com/tradesentinel/core/internal/model"
)

func TestSignalPushdown(t *testing.T) {
	cases := []struct {
		name string
		cond *model.Condition
		want []string
	}{
		{
			name: "single tag",
			cond: model.Leaf(model.FieldSignals, model.OpContains, model.StringValue("MA_GOLDEN_CROSS")),
			want: []string{"MA_GOLDEN_CROSS"},
		},
		{
			name: "tag list",
			cond: model.Leaf(model.FieldSignals, model.OpContains,
				model.ListValue(model.StringValue("RSI_OVERSOLD"), model.StringValue("BB_LOWER_TOUCH"))),
			want: []string{"RSI_OVERSOLD", "BB_LOWER_TOUCH"},
		},
		{
			name: "nil condition",
			cond: nil,
			want: nil,
		},
		{
			name: "not_contains cannot push down",
			cond: model.Leaf(model.FieldSignals, model.OpNotContains, model.StringValue("RSI_OVERSOLD")),
			want: nil,
		},
		{
			name: "non-signals leaf",
			cond: model.Leaf(model.FieldClose, model.OpGt, model.NumberValue(100)),
			want: nil,
		},
		{
			name: "logical node evaluates in memory",
			cond: model.And(
				model.Leaf(model.FieldSignals, model.OpContains, model.StringValue("MA_GOLDEN_CROSS")),
				model.Leaf(model.FieldClose, model.OpGt, model.NumberValue(100)),
			),
			want: nil,
		},
		{
			name: "non-string list item",
			cond: model.Leaf(model.FieldSignals, model.OpContains,
				model.ListValue(model.NumberValue(1))),
			want: nil,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := signalPushdown(tc.cond)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("tag %d: expected %q, got %q", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	if got := placeholders(1); got != "?" {
		t.Errorf("expected \"?\", got %q", got)
	}
	if got := placeholders(3); got != "?,?,?" {
		t.Errorf("expected \"?,?,?\", got %q", got)
	}
}
