package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

// MetricsHandler accepts measurement samples from monitoring probes
type MetricsHandler struct {
	metricsService *services.MetricsService
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metricsService *services.MetricsService) *MetricsHandler {
	return &MetricsHandler{metricsService: metricsService}
}

// SetupRoutes sets up metric routes
func (h *MetricsHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/metrics", h.handleRecordMetric)
	mux.HandleFunc("GET /api/metrics/baseline", h.handleGetBaseline)
}

// RecordMetricRequest is the body for POST /api/metrics
type RecordMetricRequest struct {
	Type     string                 `json:"type" validate:"required,max=64"`
	Value    float64                `json:"value"`
	Unit     string                 `json:"unit" validate:"max=32"`
	Source   string                 `json:"source" validate:"required,max=64"`
	Metadata map[string]interface{} `json:"metadata"`
}

// handleRecordMetric handles POST /api/metrics
func (h *MetricsHandler) handleRecordMetric(w http.ResponseWriter, r *http.Request) {
	var req RecordMetricRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	err := h.metricsService.RecordMetric(r.Context(), req.Type, req.Value, req.Unit, req.Source, database.JSONB(req.Metadata))
	if err != nil {
		if errors.Is(err, services.ErrMissingMetricType) || errors.Is(err, services.ErrMissingMetricSource) {
			api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		log.Printf("MetricsHandler: record failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to record metric")
		return
	}
	api.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "recorded"})
}

// handleGetBaseline handles GET /api/metrics/baseline?type=&source=
func (h *MetricsHandler) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	metricType := r.URL.Query().Get("type")
	source := r.URL.Query().Get("source")
	if metricType == "" || source == "" {
		api.RespondError(w, http.StatusBadRequest, "type and source query parameters are required")
		return
	}

	baseline, err := h.metricsService.GetBaseline(metricType, source)
	if err != nil {
		log.Printf("MetricsHandler: baseline lookup failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load baseline")
		return
	}
	if baseline == nil {
		api.RespondError(w, http.StatusNotFound, "No baseline recorded")
		return
	}
	api.RespondJSON(w, http.StatusOK, baseline)
}
