package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"inidars/internal/audit"
	"inidars/internal/engine"
	"inidars/internal/intake"
	"inidars/internal/model"
	"inidars/internal/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/common/version"
	"github.com/sirupsen/logrus"
)

const (
	// OriginAPI labels events submitted through POST /api/events.
	OriginAPI = "api"

	maxEventBody     = 1 << 20
	defaultLogsLimit = 100
	maxLogsLimit     = 1000
)

type Handlers struct {
	engine         *engine.Engine
	logger         *logrus.Logger
	upgrader       websocket.Upgrader
	requestTimeout time.Duration
}

func NewHandlers(e *engine.Engine, logger *logrus.Logger) *Handlers {
	return &Handlers{
		engine:         e,
		logger:         logger,
		requestTimeout: time.Duration(e.Config.Intake.RequestTimeoutSeconds) * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				logger.Debugf("WebSocket origin check: %s", r.Header.Get("Origin"))
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Register mounts every /api route on router.
func (h *Handlers) Register(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/events", h.IngestEvent).Methods("POST")

	api.HandleFunc("/stream/alerts", h.StreamAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.GetAlerts).Methods("GET")
	api.HandleFunc("/alerts", h.ClearAlerts).Methods("DELETE")
	api.HandleFunc("/alerts/{id}", h.GetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id}", h.DeleteAlert).Methods("DELETE")

	api.HandleFunc("/stats", h.GetStats).Methods("GET")
	api.HandleFunc("/model/info", h.GetModelInfo).Methods("GET")
	api.HandleFunc("/rules", h.GetRules).Methods("GET")

	api.HandleFunc("/block-ip", h.BlockIP).Methods("POST")
	api.HandleFunc("/blocked-ips", h.GetBlockedIPs).Methods("GET")
	api.HandleFunc("/blocked-ips/{ip}", h.UnblockIP).Methods("DELETE")

	api.HandleFunc("/ip-history/{ip}", h.GetIPHistory).Methods("GET")
	api.HandleFunc("/actions/logs", h.GetActionLogs).Methods("GET")

	router.HandleFunc("/health", h.Health).Methods("GET")
}

// Events handlers
func (h *Handlers) IngestEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	event, err := model.DecodeEvent(body)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.requestTimeout)
	defer cancel()

	outcome, err := h.engine.Intake.SubmitAndWait(ctx, *event, OriginAPI)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	switch outcome.Status {
	case intake.OutcomeAlert:
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"status":        "success",
			"alert_created": true,
			"alert_id":      outcome.AlertID,
			"severity":      outcome.Severity,
			"threat_type":   outcome.ThreatType,
			"ml_score":      outcome.MLScore,
			"message":       fmt.Sprintf("Threat detected: %s", outcome.ThreatType),
		})
	case intake.OutcomeFailed:
		writeError(w, http.StatusInternalServerError, outcome.Message)
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":        "success",
			"alert_created": false,
			"ml_score":      outcome.MLScore,
			"message":       outcome.Message,
		})
	}
}

// Alerts handlers
func (h *Handlers) GetAlerts(w http.ResponseWriter, r *http.Request) {
	filter, err := alertFilterFromQuery(r)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	limit, err := parseLimit(r.URL.Query().Get("limit"), 0, 0)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	filter.Limit = limit

	writeJSON(w, http.StatusOK, h.engine.Alerts.List(filter))
}

func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.engine.Alerts.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (h *Handlers) DeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.engine.Alerts.Delete(id, actorFrom(r)); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Deleted alert %s", id),
	})
}

func (h *Handlers) ClearAlerts(w http.ResponseWriter, r *http.Request) {
	count := h.engine.Alerts.Clear(actorFrom(r))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"message": fmt.Sprintf("Cleared %d alerts", count),
		"count":   count,
	})
}

// Stats and model handlers
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats.Snapshot())
}

func (h *Handlers) GetModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"model": h.engine.ModelInfo(),
	})
}

func (h *Handlers) GetRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Rules.Rules())
}

// Reputation handlers
type blockRequest struct {
	IP       string `json:"ip"`
	Reason   string `json:"reason"`
	Duration string `json:"duration"`
}

func (h *Handlers) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	entry, created, err := h.engine.Reputation.Block(req.IP, req.Reason, req.Duration, actorFrom(r))
	if err != nil {
		h.writeErr(w, err)
		return
	}

	status := http.StatusOK
	message := fmt.Sprintf("Updated block on %s", entry.IP)
	if created {
		status = http.StatusCreated
		message = fmt.Sprintf("Blocked %s", entry.IP)
	}
	writeJSON(w, status, map[string]interface{}{
		"status":  "success",
		"message": message,
		"blocked": entry,
	})
}

func (h *Handlers) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := mux.Vars(r)["ip"]
	if err := h.engine.Reputation.Unblock(ip, actorFrom(r)); err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Unblocked %s", ip),
	})
}

func (h *Handlers) GetBlockedIPs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Reputation.List())
}

// Investigation and audit handlers
func (h *Handlers) GetIPHistory(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Investigator.Investigate(mux.Vars(r)["ip"])
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) GetActionLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit, err := parseLimit(query.Get("limit"), defaultLogsLimit, maxLogsLimit)
	if err != nil {
		h.writeErr(w, err)
		return
	}

	filter := audit.Filter{Target: query.Get("target")}
	if value := query.Get("action"); value != "" {
		kind, err := model.ParseActionKind(strings.ToUpper(value))
		if err != nil {
			h.writeErr(w, &model.ValidationError{Field: "action", Message: err.Error()})
			return
		}
		filter.Kind = kind
	}

	writeJSON(w, http.StatusOK, h.engine.Audit.List(filter, limit))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "healthy",
		"service":      "INIDARS",
		"version":      version.Version,
		"alerts_count": h.engine.Alerts.Count(),
		"model_mode":   h.engine.ModelInfo().Mode,
		"timestamp":    time.Now().UTC(),
	})
}

func alertFilterFromQuery(r *http.Request) (storage.AlertFilter, error) {
	query := r.URL.Query()
	filter := storage.AlertFilter{ThreatType: query.Get("threat_type")}

	if value := query.Get("severity"); value != "" {
		sev, err := model.ParseSeverity(value)
		if err != nil {
			return filter, &model.ValidationError{Field: "severity", Message: err.Error()}
		}
		filter.Severity = sev
	}

	if value := query.Get("ip"); value != "" {
		ip, err := model.CanonicalIP(value)
		if err != nil {
			return filter, err
		}
		filter.SourceIP = ip
	}

	return filter, nil
}

// parseLimit returns def for an empty value and clamps to max when max > 0.
func parseLimit(value string, def, max int) (int, error) {
	if value == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit < 0 {
		return 0, &model.ValidationError{Field: "limit", Message: "must be a non-negative integer"}
	}
	if max > 0 && (limit == 0 || limit > max) {
		limit = max
	}
	return limit, nil
}

func actorFrom(r *http.Request) string {
	if actor := strings.TrimSpace(r.Header.Get("X-Actor")); actor != "" {
		return actor
	}
	return model.ActorOperator
}

// writeErr maps engine errors onto HTTP status codes.
func (h *Handlers) writeErr(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "Alert not found")
	case errors.Is(err, model.ErrNotBlocked):
		writeError(w, http.StatusNotFound, "IP is not blocked")
	case errors.Is(err, model.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "Event queue is full, retry later")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "Timed out waiting for event processing")
	default:
		h.logger.Errorf("Request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// Helper functions
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
