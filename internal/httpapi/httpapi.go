// Package httpapi is the thin inbound HTTP surface:
// alert rule CRUD, ad-hoc predicate queries, stats, and monitoring control.
// It holds no business logic of its own: every handler decodes a request,
// calls into internal/alert or internal/query, and encodes the result.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/tradesentinel/core/internal/alert"
	"github.com/tradesentinel/core/internal/apperr"
	"github.com/tradesentinel/core/internal/logger"
	"github.com/tradesentinel/core/internal/model"
	"github.com/tradesentinel/core/internal/query"
)

// Server wires the alert Service/Evaluator and candle store into HTTP
// handlers.
type Server struct {
	registry  *alert.Service
	evaluator *alert.Evaluator
	store     model.CandleStore
	log       *slog.Logger
}

// New constructs a Server. Call Router to obtain the http.Handler.
func New(registry *alert.Service, evaluator *alert.Evaluator, store model.CandleStore, log *slog.Logger) *Server {
	return &Server{registry: registry, evaluator: evaluator, store: store, log: log}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/api/v1/alerts/rules", s.handleRulesCollection)
	mux.HandleFunc("/api/v1/alerts/rules/", s.handleRulesItem)
	mux.HandleFunc("/api/v1/alerts/query", s.handleQuery)
	mux.HandleFunc("/api/v1/alerts/stats", s.handleStats)
	mux.HandleFunc("/api/v1/alerts/monitoring/start", s.handleMonitoringStart)
	mux.HandleFunc("/api/v1/alerts/monitoring/stop", s.handleMonitoringStop)
	mux.HandleFunc("/api/v1/alerts/monitoring/status", s.handleMonitoringStatus)

	return mux
}

// requestEnvelope is the common inbound shape carrying an optional
// request_id: if absent, the server generates one.
type requestEnvelope struct {
	RequestID string `json:"request_id"`
}

func (s *Server) requestID(ctx requestEnvelope, now time.Time) string {
	if ctx.RequestID != "" {
		return ctx.RequestID
	}
	return logger.GenerateRequestID(now)
}

func (s *Server) handleRulesCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listRules(w, r)
	case http.MethodPost:
		s.createRule(w, r)
	default:
		s.writeError(w, &apperr.ValidationError{Field: "method", Message: "unsupported method"})
	}
}

func (s *Server) handleRulesItem(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/api/v1/alerts/rules/"):]
	if id == "" {
		s.writeError(w, &apperr.ValidationError{Field: "id", Message: "rule id is required"})
		return
	}
	switch r.Method {
	case http.MethodGet:
		s.getRule(w, r, id)
	case http.MethodPatch:
		s.patchRule(w, r, id)
	case http.MethodDelete:
		s.deleteRule(w, r, id)
	default:
		s.writeError(w, &apperr.ValidationError{Field: "method", Message: "unsupported method"})
	}
}

func (s *Server) listRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var symbol *model.Symbol
	if v := q.Get("symbol"); v != "" {
		sym := model.Symbol(v)
		symbol = &sym
	}
	var activeOnly *bool
	if v := q.Get("active_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, &apperr.ValidationError{Field: "active_only", Message: "must be a boolean"})
			return
		}
		activeOnly = &b
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	rules, err := s.registry.List(r.Context(), symbol, activeOnly, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": toRuleWires(rules)})
}

func (s *Server) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &apperr.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}
	rule, err := req.toRule()
	if err != nil {
		s.writeError(w, err)
		return
	}
	created, err := s.registry.Create(r.Context(), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fromRule(created))
}

func (s *Server) getRule(w http.ResponseWriter, r *http.Request, id string) {
	rule, err := s.registry.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromRule(rule))
}

func (s *Server) patchRule(w http.ResponseWriter, r *http.Request, id string) {
	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, &apperr.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}
	delete(patch, "request_id")
	patch, err := normalizePatch(patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	rule, err := s.registry.Update(r.Context(), id, patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fromRule(rule))
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.registry.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryRequestWire is the inbound shape for ad-hoc predicate execution.
type queryRequestWire struct {
	requestEnvelope
	Symbol     model.Symbol        `json:"symbol"`
	Timeframes []model.Timeframe   `json:"timeframes"`
	Conditions *model.Condition    `json:"conditions"`
	Limit      int                 `json:"limit"`
	SortBy     model.Field         `json:"sort_by"`
	SortOrder  model.SortOrder     `json:"sort_order"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, &apperr.ValidationError{Field: "method", Message: "POST only"})
		return
	}
	var req queryRequestWire
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, &apperr.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()})
		return
	}
	if req.Conditions != nil {
		if err := query.Validate(req.Conditions); err != nil {
			s.writeError(w, err)
			return
		}
	}
	result, err := s.store.Query(r.Context(), model.QueryRequest{
		Symbol:     req.Symbol,
		Timeframes: req.Timeframes,
		Conditions: req.Conditions,
		Limit:      req.Limit,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"request_id":       s.requestID(req.requestEnvelope, time.Now().UTC()),
		"matched_records":  result.MatchedRecords,
		"total_records":    result.TotalRecords,
		"execution_time_ms": result.ExecutionTimeMs,
		"data":             result.Data,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.registry.Stats(r.Context(), time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleMonitoringStart(w http.ResponseWriter, r *http.Request) {
	s.evaluator.SetEnabled(true)
	writeJSON(w, http.StatusOK, s.evaluator.Status())
}

func (s *Server) handleMonitoringStop(w http.ResponseWriter, r *http.Request) {
	s.evaluator.SetEnabled(false)
	writeJSON(w, http.StatusOK, s.evaluator.Status())
}

func (s *Server) handleMonitoringStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.evaluator.Status())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the structured failure envelope:
// { request_id, success: false, error_code, message }.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperr.HTTPStatus(err)
	if status >= 500 {
		s.log.Error("httpapi: request failed", "error", err)
	}
	writeJSON(w, status, map[string]any{
		"request_id": logger.GenerateRequestID(time.Now().UTC()),
		"success":    false,
		"error_code": apperr.Code(err),
		"message":    err.Error(),
	})
}
