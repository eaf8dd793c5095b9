package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/model"
)

// Create inserts a new alert rule row. The caller (internal/alert.Service)
// has already assigned ID/CreatedAt/UpdatedAt.
func (s *Store) Create(ctx context.Context, r *model.AlertRule) error {
	condJSON, err := json.Marshal(r.TriggerConditions)
	if err != nil {
		return &apperr.InternalError{Op: "sqlite.alert.Create", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (
			id, name, description, symbol, timeframes, trigger_type, trigger_conditions,
			frequency, webhook_url, message_format, custom_message, is_active,
			created_at, updated_at, last_triggered_at, trigger_count
		) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?, ?,?,?,?)
	`,
		r.ID, r.Name, r.Description, string(r.Symbol), joinTimeframes(r.Timeframes),
		string(r.TriggerType), string(condJSON),
		string(r.Frequency), r.WebhookURL, r.MessageFormat, r.CustomMessage, boolToInt(r.IsActive),
		r.CreatedAt.UTC().Unix(), r.UpdatedAt.UTC().Unix(), nullableTime(r.LastTriggeredAt), r.TriggerCount,
	)
	if err != nil {
		return &apperr.StoreError{Op: "sqlite.alert.Create", Err: err}
	}
	return nil
}

// applyPatch copies the typed fields of a validated patch map onto r.
// internal/alert.Service has already rejected any key outside its closed
// allowedPatchFields set.
func applyPatch(r *model.AlertRule, patch map[string]any) error {
	if v, ok := patch["name"]; ok {
		s, ok := v.(string)
		if !ok {
			return &apperr.ValidationError{Field: "name", Message: "must be a string"}
		}
		r.Name = s
	}
	if v, ok := patch["description"]; ok {
		s, ok := v.(string)
		if !ok {
			return &apperr.ValidationError{Field: "description", Message: "must be a string"}
		}
		r.Description = s
	}
	if v, ok := patch["symbol"]; ok {
		sym, ok := v.(model.Symbol)
		if !ok {
			return &apperr.ValidationError{Field: "symbol", Message: "must be a model.Symbol"}
		}
		r.Symbol = sym
	}
	if v, ok := patch["timeframes"]; ok {
		tfs, ok := v.([]model.Timeframe)
		if !ok {
			return &apperr.ValidationError{Field: "timeframes", Message: "must be a []model.Timeframe"}
		}
		r.Timeframes = tfs
	}
	if v, ok := patch["trigger_type"]; ok {
		tt, ok := v.(model.TriggerType)
		if !ok {
			return &apperr.ValidationError{Field: "trigger_type", Message: "must be a model.TriggerType"}
		}
		r.TriggerType = tt
	}
	if v, ok := patch["trigger_conditions"]; ok {
		cond, ok := v.(*model.Condition)
		if !ok {
			return &apperr.ValidationError{Field: "trigger_conditions", Message: "must be a *model.Condition"}
		}
		r.TriggerConditions = cond
	}
	if v, ok := patch["frequency"]; ok {
		f, ok := v.(model.Frequency)
		if !ok {
			return &apperr.ValidationError{Field: "frequency", Message: "must be a model.Frequency"}
		}
		r.Frequency = f
	}
	if v, ok := patch["webhook_url"]; ok {
		s, ok := v.(string)
		if !ok {
			return &apperr.ValidationError{Field: "webhook_url", Message: "must be a string"}
		}
		r.WebhookURL = s
	}
	if v, ok := patch["message_format"]; ok {
		s, ok := v.(string)
		if !ok {
			return &apperr.ValidationError{Field: "message_format", Message: "must be a string"}
		}
		r.MessageFormat = s
	}
	if v, ok := patch["custom_message"]; ok {
		s, ok := v.(string)
		if !ok {
			return &apperr.ValidationError{Field: "custom_message", Message: "must be a string"}
		}
		r.CustomMessage = s
	}
	if v, ok := patch["is_active"]; ok {
		b, ok := v.(bool)
		if !ok {
			return &apperr.ValidationError{Field: "is_active", Message: "must be a bool"}
		}
		r.IsActive = b
	}
	if v, ok := patch["updated_at"]; ok {
		t, ok := v.(time.Time)
		if !ok {
			return &apperr.ValidationError{Field: "updated_at", Message: "must be a time.Time"}
		}
		r.UpdatedAt = t
	}
	return nil
}

// Update applies a partial update (already boundary-validated by
// internal/alert.Service) by loading, mutating, and rewriting the full row.
func (s *Store) Update(ctx context.Context, id string, patch map[string]any) (*model.AlertRule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, &apperr.NotFoundError{Kind: "alert_rule", ID: id}
	}
	if err := applyPatch(rule, patch); err != nil {
		return nil, err
	}

	condJSON, err := json.Marshal(rule.TriggerConditions)
	if err != nil {
		return nil, &apperr.InternalError{Op: "sqlite.alert.Update", Err: err}
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE alert_rules SET
			name=?, description=?, symbol=?, timeframes=?, trigger_type=?, trigger_conditions=?,
			frequency=?, webhook_url=?, message_format=?, custom_message=?, is_active=?, updated_at=?
		WHERE id=?
	`,
		rule.Name, rule.Description, string(rule.Symbol), joinTimeframes(rule.Timeframes),
		string(rule.TriggerType), string(condJSON),
		string(rule.Frequency), rule.WebhookURL, rule.MessageFormat, rule.CustomMessage,
		boolToInt(rule.IsActive), rule.UpdatedAt.UTC().Unix(), id,
	)
	if err != nil {
		return nil, &apperr.StoreError{Op: "sqlite.alert.Update", Err: err}
	}
	return rule, nil
}

// Delete removes the rule with id. Deleting an absent id is a no-op, not an
// error — callers that need NotFoundError semantics check via Get first.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id=?`, id); err != nil {
		return &apperr.StoreError{Op: "sqlite.alert.Delete", Err: err}
	}
	return nil
}

// Get fetches a single rule by id, returning (nil, nil) if absent so the
// caller (internal/alert.Service) can surface its own NotFoundError.
func (s *Store) Get(ctx context.Context, id string) (*model.AlertRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id=?`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &apperr.StoreError{Op: "sqlite.alert.Get", Err: err}
	}
	return rule, nil
}

// List returns rules filtered by symbol/active flag, most-recently-created
// first, capped by limit.
func (s *Store) List(ctx context.Context, symbol *model.Symbol, activeOnly *bool, limit int) ([]model.AlertRule, error) {
	var (
		where []string
		args  []any
	)
	if symbol != nil {
		where = append(where, "symbol=?")
		args = append(args, string(*symbol))
	}
	if activeOnly != nil && *activeOnly {
		where = append(where, "is_active=1")
	}
	q := `SELECT ` + ruleColumns + ` FROM alert_rules`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &apperr.StoreError{Op: "sqlite.alert.List", Err: err}
	}
	defer rows.Close()

	var out []model.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, &apperr.StoreError{Op: "sqlite.alert.List", Err: err}
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

// ListActive returns every rule with is_active=true, for the evaluator's
// per-tick load.
func (s *Store) ListActive(ctx context.Context) ([]model.AlertRule, error) {
	active := true
	return s.List(ctx, nil, &active, 100000)
}

// RecordTrigger atomically increments trigger_count/sets last_triggered_at
// on the rule and appends a trigger_history row: dispatch outcome never
// gates this update.
func (s *Store) RecordTrigger(ctx context.Context, ruleID string, h *model.TriggerHistory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &apperr.StoreError{Op: "sqlite.alert.RecordTrigger", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE alert_rules SET last_triggered_at=?, trigger_count=trigger_count+1 WHERE id=?
	`, h.TriggeredAt.UTC().Unix(), ruleID)
	if err != nil {
		return &apperr.StoreError{Op: "sqlite.alert.RecordTrigger", Err: err}
	}

	candleJSON, err := json.Marshal(h.MatchedCandle)
	if err != nil {
		return &apperr.InternalError{Op: "sqlite.alert.RecordTrigger", Err: err}
	}
	if h.ID == "" {
		h.ID = uuid.NewString()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_history (
			id, rule_id, rule_name, symbol, timeframe, triggered_at,
			matched_candle, message_sent, webhook_resp, request_id
		) VALUES (?,?,?,?,?,?,?,?,?,?)
	`,
		h.ID, h.RuleID, h.RuleName, string(h.Symbol), string(h.Timeframe), h.TriggeredAt.UTC().Unix(),
		string(candleJSON), boolToInt(h.MessageSent), h.WebhookResp, h.RequestID,
	)
	if err != nil {
		return &apperr.StoreError{Op: "sqlite.alert.RecordTrigger", Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &apperr.StoreError{Op: "sqlite.alert.RecordTrigger", Err: err}
	}
	return nil
}

// Stats computes the point-in-time aggregate total/active rule
// counts, triggers today/this-hour (UTC boundaries), success rate over
// today's triggers, and the most recent trigger time across all rules.
func (s *Store) Stats(ctx context.Context, now time.Time) (model.AlertStats, error) {
	var stats model.AlertStats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_rules`).Scan(&stats.TotalRules); err != nil {
		return stats, &apperr.StoreError{Op: "sqlite.alert.Stats", Err: err}
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_rules WHERE is_active=1`).Scan(&stats.ActiveRules); err != nil {
		return stats, &apperr.StoreError{Op: "sqlite.alert.Stats", Err: err}
	}

	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Unix()
	hourStart := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, time.UTC).Unix()

	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alert_history WHERE triggered_at >= ?
	`, todayStart).Scan(&stats.TriggersToday); err != nil {
		return stats, &apperr.StoreError{Op: "sqlite.alert.Stats", Err: err}
	}
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alert_history WHERE triggered_at >= ?
	`, hourStart).Scan(&stats.TriggersThisHr); err != nil {
		return stats, &apperr.StoreError{Op: "sqlite.alert.Stats", Err: err}
	}

	var todaySent int
	if stats.TriggersToday > 0 {
		if err := s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM alert_history WHERE triggered_at >= ? AND message_sent=1
		`, todayStart).Scan(&todaySent); err != nil {
			return stats, &apperr.StoreError{Op: "sqlite.alert.Stats", Err: err}
		}
		stats.SuccessRate = float64(todaySent) / float64(stats.TriggersToday)
	}

	var lastCheck sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(triggered_at) FROM alert_history`).Scan(&lastCheck); err != nil {
		return stats, &apperr.StoreError{Op: "sqlite.alert.Stats", Err: err}
	}
	if lastCheck.Valid {
		t := time.Unix(lastCheck.Int64, 0).UTC()
		stats.LastCheckTime = &t
	}

	return stats, nil
}

const ruleColumns = `
	id, name, description, symbol, timeframes, trigger_type, trigger_conditions,
	frequency, webhook_url, message_format, custom_message, is_active,
	created_at, updated_at, last_triggered_at, trigger_count
`

// rowScanner abstracts over *sql.Row and *sql.Rows so scanRule serves both
// Get (single row) and List/ListActive (row iteration).
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.AlertRule, error) {
	var (
		r                          model.AlertRule
		symbol, timeframes         string
		triggerType, frequency     string
		condJSON                   string
		isActive                   int
		createdAt, updatedAt       int64
		lastTriggeredAt            sql.NullInt64
	)
	if err := row.Scan(
		&r.ID, &r.Name, &r.Description, &symbol, &timeframes, &triggerType, &condJSON,
		&frequency, &r.WebhookURL, &r.MessageFormat, &r.CustomMessage, &isActive,
		&createdAt, &updatedAt, &lastTriggeredAt, &r.TriggerCount,
	); err != nil {
		return nil, err
	}

	r.Symbol = model.Symbol(symbol)
	r.Timeframes = splitTimeframes(timeframes)
	r.TriggerType = model.TriggerType(triggerType)
	r.Frequency = model.Frequency(frequency)
	r.IsActive = isActive != 0
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	if lastTriggeredAt.Valid {
		t := time.Unix(lastTriggeredAt.Int64, 0).UTC()
		r.LastTriggeredAt = &t
	}

	cond := &model.Condition{}
	if err := json.Unmarshal([]byte(condJSON), cond); err != nil {
		return nil, fmt.Errorf("scanRule: decode trigger_conditions: %w", err)
	}
	r.TriggerConditions = cond

	return &r, nil
}

func joinTimeframes(tfs []model.Timeframe) string {
	parts := make([]string, len(tfs))
	for i, tf := range tfs {
		parts[i] = string(tf)
	}
	return strings.Join(parts, ",")
}

func splitTimeframes(s string) []model.Timeframe {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.Timeframe, len(parts))
	for i, p := range parts {
		out[i] = model.Timeframe(p)
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Unix()
}
