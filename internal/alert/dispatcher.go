// Package alert implements the alert registry CRUD surface, the periodic
// rule evaluator, and the notification dispatcher.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tradesentinel/core/internal/metrics"
	"github.com/tradesentinel/core/internal/model"
)

// alertTypeByTrigger is the fixed trigger_type -> alert_type map.
var alertTypeByTrigger = map[model.TriggerType]string{
	model.TriggerPriceThreshold:     "price_alert",
	model.TriggerIndicatorThreshold: "indicator_alert",
	model.TriggerSignalDetection:    "signal_alert",
	model.TriggerPatternMatch:       "pattern_alert",
	model.TriggerCustomQuery:        "custom_alert",
}

const maxRawResponseLen = 500

// envelope is the typed notification payload.
type envelope struct {
	RequestID          string             `json:"request_id"`
	AlertType          string             `json:"alert_type"`
	RuleID             string             `json:"rule_id"`
	RuleName           string             `json:"rule_name"`
	Symbol             string             `json:"symbol"`
	Timeframe          string             `json:"timeframe"`
	TriggerTime        string             `json:"trigger_time"`
	TriggerData        triggerData        `json:"trigger_data"`
	NotificationConfig notificationConfig `json:"notification_config"`
}

type triggerData struct {
	Description     string   `json:"description"`
	ActualValue     float64  `json:"actual_value,omitempty"`
	Threshold       float64  `json:"threshold,omitempty"`
	Comparison      string   `json:"comparison,omitempty"`
	CustomMessage   string   `json:"custom_message,omitempty"`
	DetectedSignals []string `json:"detected_signals,omitempty"`
	TargetSignals   []string `json:"target_signals,omitempty"`
	Strength        string   `json:"strength,omitempty"`
}

type notificationConfig struct {
	TargetWebhook string `json:"target_webhook"`
	MessageType   string `json:"message_type"`
	Frequency     string `json:"frequency"`
}

// Dispatcher implements model.Dispatcher: it builds the trigger envelope and
// POSTs it to the external alert receiver; the rule's own webhook URL rides inside
// notification_config for the receiver to fan out to. The outbound call is
// guarded by a circuit breaker so a dead receiver cannot be hammered every
// tick.
type Dispatcher struct {
	receiverURL string
	client      *http.Client
	breaker     *breaker
	log         *slog.Logger
	metrics     *metrics.Metrics
}

// NewDispatcher constructs a Dispatcher posting to receiverURL.
// maxFails/resetTimeout parameterize the shared circuit breaker. m may be
// nil, in which case dispatch metrics are not recorded.
func NewDispatcher(receiverURL string, timeout time.Duration, maxFails int, resetTimeout time.Duration, log *slog.Logger, m *metrics.Metrics) *Dispatcher {
	b := newBreaker(maxFails, resetTimeout)
	d := &Dispatcher{
		receiverURL: strings.TrimRight(receiverURL, "/"),
		client:      &http.Client{Timeout: timeout},
		breaker:     b,
		log:         log,
		metrics:     m,
	}
	if m != nil {
		b.onTransition = func(from, to BreakerState) {
			m.CircuitBreakerState.Set(float64(to))
			if to == BreakerOpen {
				m.CircuitBreakerTrips.Inc()
			}
		}
	}
	return d
}

// BreakerState reports the dispatch circuit's current state, for the health
// probe and the monitoring surface.
func (d *Dispatcher) BreakerState() string {
	return d.breaker.State().String()
}

// Dispatch builds the envelope for rule/candle and POSTs it to the alert
// receiver. A 2xx response with a truthy body.success is "sent"; anything
// else — transport failure, non-2xx, non-JSON body, or an open circuit — is
// "not sent", and the attempt is still recorded with the raw response or
// error string. Dispatch never returns an error that would block the
// evaluator's trigger-count update: failures are reported via the returned
// bool/rawResponse only.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *model.AlertRule, candle *model.CandleRecord, requestID string) (bool, string, error) {
	env := buildEnvelope(rule, candle, requestID)
	body, err := json.Marshal(env)
	if err != nil {
		return false, "", nil
	}

	sent, raw := d.post(ctx, d.receiverURL+"/webhook/alert/trigger", body)
	return sent, raw, nil
}

// TestWebhook posts a minimal probe payload directly to url, for the
// interactive side-channel test surface; it does not go through the
// typed envelope or the circuit breaker, since it is operator-invoked, not
// part of the tick loop.
func (d *Dispatcher) TestWebhook(ctx context.Context, url string) (bool, string, error) {
	body, _ := json.Marshal(map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": "test notification"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return false, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return false, truncate(err.Error()), nil
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxRawResponseLen*4))
	return isSuccess(resp.StatusCode, raw), truncate(string(raw)), nil
}

func (d *Dispatcher) post(ctx context.Context, url string, body []byte) (bool, string) {
	start := time.Now()
	var (
		statusCode int
		raw        []byte
	)
	err := d.breaker.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := d.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		statusCode = resp.StatusCode
		raw, _ = io.ReadAll(io.LimitReader(resp.Body, maxRawResponseLen*4))
		if statusCode < 200 || statusCode >= 300 {
			return fmt.Errorf("webhook returned status %d", statusCode)
		}
		return nil
	})
	if d.metrics != nil {
		d.metrics.WebhookDispatchDur.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if err == errBreakerOpen {
			d.log.Warn("webhook dispatch skipped: circuit open", "url", url)
			d.recordOutcome("circuit_open")
			return false, truncate("circuit open: " + err.Error())
		}
		d.recordOutcome("failure")
		if statusCode != 0 && len(raw) > 0 {
			// Non-2xx with a body: history keeps the receiver's words, not ours.
			return false, truncate(string(raw))
		}
		return false, truncate(err.Error())
	}
	sent := isSuccess(statusCode, raw)
	if sent {
		d.recordOutcome("success")
	} else {
		d.recordOutcome("failure")
	}
	return sent, truncate(string(raw))
}

func (d *Dispatcher) recordOutcome(outcome string) {
	if d.metrics != nil {
		d.metrics.WebhookDispatchTotal.WithLabelValues(outcome).Inc()
	}
}

func isSuccess(statusCode int, body []byte) bool {
	if statusCode < 200 || statusCode >= 300 {
		return false
	}
	var decoded struct {
		Success bool `json:"success"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return false
	}
	return decoded.Success
}

func truncate(s string) string {
	if len(s) <= maxRawResponseLen {
		return s
	}
	return s[:maxRawResponseLen]
}

func buildEnvelope(rule *model.AlertRule, candle *model.CandleRecord, requestID string) envelope {
	td := triggerData{
		Description:   rule.Description,
		CustomMessage: rule.CustomMessage,
	}

	switch rule.TriggerType {
	case model.TriggerSignalDetection:
		td.DetectedSignals = candle.Signals
		td.Strength = strength(len(candle.Signals))
	default:
		td.ActualValue = candle.Close
	}

	return envelope{
		RequestID:   requestID,
		AlertType:   alertTypeByTrigger[rule.TriggerType],
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Symbol:      string(rule.Symbol),
		Timeframe:   string(candle.Timeframe),
		TriggerTime: candle.BarOpenTime.UTC().Format(time.RFC3339),
		TriggerData: td,
		NotificationConfig: notificationConfig{
			TargetWebhook: rule.WebhookURL,
			MessageType:   rule.MessageFormat,
			Frequency:     string(rule.Frequency),
		},
	}
}

func strength(matchedSignals int) string {
	switch {
	case matchedSignals >= 3:
		return "strong"
	case matchedSignals == 2:
		return "moderate"
	default:
		return "weak"
	}
}
