package httpapi

import (
	"encoding/json"
	"time"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
)

// ruleWire is the JSON shape of an AlertRule at the HTTP boundary. The
// domain type carries no json tags (it is persisted through database/sql,
// not encoding/json) so this wire struct owns the translation, the same
// separation query_json.go draws between in-memory Condition/Value and
// their persisted JSON form.
type ruleWire struct {
	requestEnvelope
	ID          string `json:"id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Symbol     model.Symbol      `json:"symbol"`
	Timeframes []model.Timeframe `json:"timeframes"`

	TriggerType       model.TriggerType `json:"trigger_type,omitempty"`
	TriggerConditions *model.Condition  `json:"trigger_conditions"`
	Frequency         model.Frequency   `json:"frequency"`

	WebhookURL    string `json:"webhook_url"`
	MessageFormat string `json:"message_format,omitempty"`
	CustomMessage string `json:"custom_message,omitempty"`

	IsActive bool `json:"is_active"`

	CreatedAt       time.Time  `json:"created_at,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	TriggerCount    int        `json:"trigger_count,omitempty"`
}

func (w *ruleWire) toRule() (*model.AlertRule, error) {
	if w.TriggerConditions == nil {
		return nil, &apperr.ValidationError{Field: "trigger_conditions", Message: "trigger_conditions is required"}
	}
	return &model.AlertRule{
		ID:                w.ID,
		Name:              w.Name,
		Description:       w.Description,
		Symbol:            w.Symbol,
		Timeframes:        w.Timeframes,
		TriggerType:       w.TriggerType,
		TriggerConditions: w.TriggerConditions,
		Frequency:         w.Frequency,
		WebhookURL:        w.WebhookURL,
		MessageFormat:     w.MessageFormat,
		CustomMessage:     w.CustomMessage,
		IsActive:          w.IsActive,
	}, nil
}

func fromRule(r *model.AlertRule) ruleWire {
	return ruleWire{
		ID:                r.ID,
		Name:              r.Name,
		Description:       r.Description,
		Symbol:            r.Symbol,
		Timeframes:        r.Timeframes,
		TriggerType:       r.TriggerType,
		TriggerConditions: r.TriggerConditions,
		Frequency:         r.Frequency,
		WebhookURL:        r.WebhookURL,
		MessageFormat:     r.MessageFormat,
		CustomMessage:     r.CustomMessage,
		IsActive:          r.IsActive,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		LastTriggeredAt:   r.LastTriggeredAt,
		TriggerCount:      r.TriggerCount,
	}
}

func toRuleWires(rules []model.AlertRule) []ruleWire {
	out := make([]ruleWire, len(rules))
	for i := range rules {
		out[i] = fromRule(&rules[i])
	}
	return out
}

// normalizePatch converts the raw JSON-decoded values of a PATCH body
// (strings, bools, []any, map[string]any) into the domain types the registry
// layer expects. Keys it does not recognize pass through untouched — the
// registry service is the boundary that rejects unknown fields, not
// this translation layer.
func normalizePatch(patch map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(patch))
	for key, v := range patch {
		switch key {
		case "symbol":
			s, ok := v.(string)
			if !ok {
				return nil, &apperr.ValidationError{Field: key, Message: "must be a string"}
			}
			out[key] = model.Symbol(s)
		case "trigger_type":
			s, ok := v.(string)
			if !ok {
				return nil, &apperr.ValidationError{Field: key, Message: "must be a string"}
			}
			out[key] = model.TriggerType(s)
		case "frequency":
			s, ok := v.(string)
			if !ok {
				return nil, &apperr.ValidationError{Field: key, Message: "must be a string"}
			}
			out[key] = model.Frequency(s)
		case "timeframes":
			list, ok := v.([]any)
			if !ok {
				return nil, &apperr.ValidationError{Field: key, Message: "must be a list of timeframes"}
			}
			tfs := make([]model.Timeframe, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, &apperr.ValidationError{Field: key, Message: "must be a list of timeframe strings"}
				}
				tfs = append(tfs, model.Timeframe(s))
			}
			out[key] = tfs
		case "trigger_conditions":
			// Round-trip through the Condition wire codec so the recursive
			// tree is rebuilt as the typed sum type.
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, &apperr.ValidationError{Field: key, Message: "malformed predicate tree"}
			}
			cond := &model.Condition{}
			if err := json.Unmarshal(raw, cond); err != nil {
				return nil, &apperr.ValidationError{Field: key, Message: "malformed predicate tree: " + err.Error()}
			}
			out[key] = cond
		default:
			out[key] = v
		}
	}
	return out, nil
}
