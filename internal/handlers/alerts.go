package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/middleware"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

// AlertHandler exposes the alert lifecycle over HTTP
type AlertHandler struct {
	alertService *services.AlertService
}

// NewAlertHandler creates a new alert handler
func NewAlertHandler(alertService *services.AlertService) *AlertHandler {
	return &AlertHandler{alertService: alertService}
}

// SetupRoutes sets up alert routes
func (h *AlertHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/alerts", h.handleCreateAlert)
	mux.HandleFunc("GET /api/alerts", h.handleListAlerts)
	mux.HandleFunc("GET /api/alerts/stats", h.handleStats)
	mux.HandleFunc("GET /api/alerts/{fingerprint}", h.handleAlertDetail)
	mux.HandleFunc("POST /api/alerts/{fingerprint}/acknowledge", h.handleAcknowledge)
	mux.HandleFunc("POST /api/alerts/{fingerprint}/resolve", h.handleResolve)
	mux.HandleFunc("POST /api/escalations/run", h.handleRunEscalations)
}

// CreateAlertRequest is the body for POST /api/alerts
type CreateAlertRequest struct {
	Title    string                 `json:"title" validate:"required,max=255"`
	Message  string                 `json:"message"`
	Severity int                    `json:"severity" validate:"required,min=1,max=5"`
	Source   string                 `json:"source" validate:"required,max=64"`
	Metadata map[string]interface{} `json:"metadata"`
}

// TransitionRequest is the body for acknowledge/resolve calls
type TransitionRequest struct {
	Actor string `json:"actor" validate:"required,max=128"`
	Notes string `json:"notes" validate:"max=2048"`
}

// handleCreateAlert handles POST /api/alerts
func (h *AlertHandler) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	fingerprint, err := h.alertService.CreateAlert(r.Context(), req.Title, req.Message, req.Severity, req.Source, database.JSONB(req.Metadata))
	if err != nil {
		if isValidationError(err) {
			api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.Printf("AlertHandler: create failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to create alert")
		return
	}

	api.RespondJSON(w, http.StatusCreated, map[string]string{"fingerprint": fingerprint})
}

// handleListAlerts handles GET /api/alerts
func (h *AlertHandler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	alerts, err := h.alertService.GetOpenAlerts(limit)
	if err != nil {
		log.Printf("AlertHandler: list failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list alerts")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// handleAlertDetail handles GET /api/alerts/{fingerprint}
func (h *AlertHandler) handleAlertDetail(w http.ResponseWriter, r *http.Request) {
	fingerprint := r.PathValue("fingerprint")

	alert, actions, err := h.alertService.GetAlertDetails(fingerprint)
	if err != nil {
		log.Printf("AlertHandler: detail failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load alert")
		return
	}
	if alert == nil {
		api.RespondError(w, http.StatusNotFound, "Alert not found")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"alert":   alert,
		"actions": actions,
	})
}

// handleAcknowledge handles POST /api/alerts/{fingerprint}/acknowledge
func (h *AlertHandler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "acknowledge")
}

// handleResolve handles POST /api/alerts/{fingerprint}/resolve
func (h *AlertHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "resolve")
}

// handleTransition runs an acknowledge or resolve state change. A false
// result (unknown fingerprint or already transitioned) is a normal
// outcome reported with 200, not an error.
func (h *AlertHandler) handleTransition(w http.ResponseWriter, r *http.Request, kind string) {
	fingerprint := r.PathValue("fingerprint")

	var req TransitionRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Actor == "" {
		req.Actor = middleware.AuthenticatedUser(r.Context())
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	var updated bool
	var err error
	if kind == "acknowledge" {
		updated, err = h.alertService.AcknowledgeAlert(r.Context(), fingerprint, req.Actor, req.Notes)
	} else {
		updated, err = h.alertService.ResolveAlert(r.Context(), fingerprint, req.Actor, req.Notes)
	}
	if err != nil {
		log.Printf("AlertHandler: %s failed: %v", kind, err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update alert")
		return
	}

	api.RespondJSON(w, http.StatusOK, map[string]bool{"updated": updated})
}

// handleStats handles GET /api/alerts/stats
func (h *AlertHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			days = n
		}
	}

	stats, err := h.alertService.GetAlertStats(days)
	if err != nil {
		log.Printf("AlertHandler: stats failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to compute stats")
		return
	}
	api.RespondJSON(w, http.StatusOK, stats)
}

// handleRunEscalations handles POST /api/escalations/run (manual tick)
func (h *AlertHandler) handleRunEscalations(w http.ResponseWriter, r *http.Request) {
	escalated, err := h.alertService.ProcessEscalations(r.Context())
	if err != nil {
		log.Printf("AlertHandler: escalation run failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Escalation run failed")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]int{"escalated": escalated})
}

// isValidationError reports whether the service rejected the input before
// any write
func isValidationError(err error) bool {
	return errors.Is(err, services.ErrInvalidSeverity) ||
		errors.Is(err, services.ErrMissingTitle) ||
		errors.Is(err, services.ErrMissingSource)
}
