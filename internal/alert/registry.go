package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
	"github.com/tradesentinel/core/internal/query"
)

// allowedPatchFields is the closed set of AlertRule attributes a partial
// update may touch.
var allowedPatchFields = map[string]bool{
	"name": true, "description": true, "symbol": true, "timeframes": true,
	"trigger_type": true, "trigger_conditions": true, "frequency": true,
	"webhook_url": true, "message_format": true, "custom_message": true,
	"is_active": true,
}

// Service wraps a model.AlertRegistry with request-boundary validation and
// id/timestamp assignment.
type Service struct {
	registry model.AlertRegistry
}

// NewService constructs a registry Service.
func NewService(registry model.AlertRegistry) *Service {
	return &Service{registry: registry}
}

// Create validates rule and assigns a fresh id and timestamps before
// persisting it.
func (s *Service) Create(ctx context.Context, rule *model.AlertRule) (*model.AlertRule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rule.ID = uuid.NewString()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	rule.TriggerCount = 0
	rule.LastTriggeredAt = nil

	if err := s.registry.Create(ctx, rule); err != nil {
		return nil, wrapStore("alert.Create", err)
	}
	return rule, nil
}

// Update applies a partial update. Any key in patch outside
// allowedPatchFields is rejected as a ValidationError rather than silently
// ignored.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) (*model.AlertRule, error) {
	for key := range patch {
		if !allowedPatchFields[key] {
			return nil, &apperr.ValidationError{Field: key, Message: fmt.Sprintf("unknown field %q in update", key)}
		}
	}
	if cond, ok := patch["trigger_conditions"].(*model.Condition); ok {
		if err := query.Validate(cond); err != nil {
			return nil, err
		}
	}
	patch["updated_at"] = time.Now().UTC()

	rule, err := s.registry.Update(ctx, id, patch)
	if err != nil {
		return nil, wrapStore("alert.Update", err)
	}
	if rule == nil {
		return nil, &apperr.NotFoundError{Kind: "alert_rule", ID: id}
	}
	return rule, nil
}

// Delete removes the rule with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.registry.Delete(ctx, id); err != nil {
		return wrapStore("alert.Delete", err)
	}
	return nil
}

// Get fetches a single rule by id, surfacing a NotFoundError if absent.
func (s *Service) Get(ctx context.Context, id string) (*model.AlertRule, error) {
	rule, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, &apperr.NotFoundError{Kind: "alert_rule", ID: id}
	}
	return rule, nil
}

// List returns rules filtered by symbol/active flag, defaulting limit to
// 100.
func (s *Service) List(ctx context.Context, symbol *model.Symbol, activeOnly *bool, limit int) ([]model.AlertRule, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.registry.List(ctx, symbol, activeOnly, limit)
}

// Stats returns the point-in-time statistics aggregate.
func (s *Service) Stats(ctx context.Context, now time.Time) (model.AlertStats, error) {
	return s.registry.Stats(ctx, now)
}

// wrapStore classifies a registry failure: errors already carrying one of
// the apperr kinds (the SQLite layer tags everything it returns) pass
// through so validation/not-found outcomes keep their HTTP mapping; anything
// else is a StoreError.
func wrapStore(op string, err error) error {
	var (
		ve  *apperr.ValidationError
		nfe *apperr.NotFoundError
		se  *apperr.StoreError
		ie  *apperr.InternalError
	)
	if errors.As(err, &ve) || errors.As(err, &nfe) || errors.As(err, &se) || errors.As(err, &ie) {
		return err
	}
	return &apperr.StoreError{Op: op, Err: err}
}

// validateRule checks the boundary invariants a new rule must satisfy
// before it can be persisted.
func validateRule(rule *model.AlertRule) error {
	if rule.Name == "" {
		return &apperr.ValidationError{Field: "name", Message: "name is required"}
	}
	if !rule.Symbol.Valid() {
		return &apperr.ValidationError{Field: "symbol", Message: fmt.Sprintf("invalid symbol %q", rule.Symbol)}
	}
	if len(rule.Timeframes) == 0 {
		return &apperr.ValidationError{Field: "timeframes", Message: "at least one timeframe is required"}
	}
	for _, tf := range rule.Timeframes {
		if !tf.Valid() {
			return &apperr.ValidationError{Field: "timeframes", Message: fmt.Sprintf("invalid timeframe %q", tf)}
		}
	}
	switch rule.Frequency {
	case model.FrequencyOnce, model.FrequencyEveryTime, model.FrequencyHourly, model.FrequencyDaily:
	default:
		return &apperr.ValidationError{Field: "frequency", Message: fmt.Sprintf("invalid frequency %q", rule.Frequency)}
	}
	if rule.WebhookURL == "" {
		return &apperr.ValidationError{Field: "webhook_url", Message: "webhook_url is required"}
	}
	if rule.TriggerConditions == nil {
		return &apperr.ValidationError{Field: "trigger_conditions", Message: "trigger_conditions is required"}
	}
	return query.Validate(rule.TriggerConditions)
}
