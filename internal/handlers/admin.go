package handlers

import (
	"log"
	"net/http"
	"strconv"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/api"
	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/services"
)

// AdminHandler exposes escalation rules, the on-call schedule, and
// notification settings to the admin UI
type AdminHandler struct {
	db            *gorm.DB
	policyService *services.PolicyService
	oncallService *services.OnCallService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(db *gorm.DB, policyService *services.PolicyService, oncallService *services.OnCallService) *AdminHandler {
	return &AdminHandler{
		db:            db,
		policyService: policyService,
		oncallService: oncallService,
	}
}

// SetupRoutes sets up admin routes
func (h *AdminHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/escalation-rules", h.handleListRules)
	mux.HandleFunc("POST /api/escalation-rules", h.handleCreateRule)
	mux.HandleFunc("PUT /api/escalation-rules/{id}", h.handleUpdateRule)
	mux.HandleFunc("DELETE /api/escalation-rules/{id}", h.handleDeleteRule)

	mux.HandleFunc("GET /api/oncall", h.handleListOnCall)
	mux.HandleFunc("POST /api/oncall", h.handleCreateOnCall)
	mux.HandleFunc("PUT /api/oncall/{uuid}", h.handleUpdateOnCall)
	mux.HandleFunc("DELETE /api/oncall/{uuid}", h.handleDeleteOnCall)

	mux.HandleFunc("GET /api/settings/notifications", h.handleGetNotificationSettings)
	mux.HandleFunc("PUT /api/settings/notifications", h.handleUpdateNotificationSettings)
}

// ========== Escalation rules ==========

// EscalationRuleRequest is the body for rule create/update
type EscalationRuleRequest struct {
	Severity     int    `json:"severity" validate:"required,min=1,max=5"`
	Level        int    `json:"level" validate:"min=0,max=10"`
	DelayMinutes int    `json:"delay_minutes" validate:"min=0,max=10080"`
	NotifyMethod string `json:"notify_method" validate:"required,oneof=push email slack sms"`
	NotifyTarget string `json:"notify_target" validate:"max=255"`
	Active       *bool  `json:"active"`
}

func (h *AdminHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.policyService.ListRules()
	if err != nil {
		log.Printf("AdminHandler: list rules failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list rules")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

func (h *AdminHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req EscalationRuleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	rule := database.EscalationRule{
		Severity:     req.Severity,
		Level:        req.Level,
		DelayMinutes: req.DelayMinutes,
		NotifyMethod: req.NotifyMethod,
		NotifyTarget: req.NotifyTarget,
		Active:       true,
	}
	if req.Active != nil {
		rule.Active = *req.Active
	}
	if err := h.policyService.CreateRule(&rule); err != nil {
		log.Printf("AdminHandler: create rule failed: %v", err)
		api.RespondError(w, http.StatusConflict, "Failed to create rule (duplicate severity/level?)")
		return
	}
	api.RespondJSON(w, http.StatusCreated, rule)
}

func (h *AdminHandler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}

	var req EscalationRuleRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	updates := map[string]interface{}{
		"severity":      req.Severity,
		"level":         req.Level,
		"delay_minutes": req.DelayMinutes,
		"notify_method": req.NotifyMethod,
		"notify_target": req.NotifyTarget,
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if err := h.policyService.UpdateRule(uint(id), updates); err != nil {
		if err == gorm.ErrRecordNotFound {
			api.RespondError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Printf("AdminHandler: update rule failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update rule")
		return
	}
	api.RespondNoContent(w)
}

func (h *AdminHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, "Invalid rule ID")
		return
	}
	if err := h.policyService.DeleteRule(uint(id)); err != nil {
		if err == gorm.ErrRecordNotFound {
			api.RespondError(w, http.StatusNotFound, "Rule not found")
			return
		}
		log.Printf("AdminHandler: delete rule failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete rule")
		return
	}
	api.RespondNoContent(w)
}

// ========== On-call schedule ==========

// OnCallRequest is the body for schedule entry create/update
type OnCallRequest struct {
	Name      string `json:"name" validate:"required,max=128"`
	Email     string `json:"email" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"max=32"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Days      []int  `json:"days" validate:"dive,min=0,max=6"`
	Priority  int    `json:"priority" validate:"min=0,max=100"`
	Active    *bool  `json:"active"`
}

func (h *AdminHandler) handleListOnCall(w http.ResponseWriter, r *http.Request) {
	entries, err := h.oncallService.ListEntries()
	if err != nil {
		log.Printf("AdminHandler: list on-call failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to list on-call entries")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (h *AdminHandler) handleCreateOnCall(w http.ResponseWriter, r *http.Request) {
	var req OnCallRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	entry := database.OnCallEntry{
		Name:       req.Name,
		Email:      req.Email,
		Phone:      req.Phone,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		DaysOfWeek: daysToJSONB(req.Days),
		Priority:   req.Priority,
		Active:     true,
	}
	if req.Active != nil {
		entry.Active = *req.Active
	}
	if err := h.oncallService.CreateEntry(&entry); err != nil {
		log.Printf("AdminHandler: create on-call failed: %v", err)
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondJSON(w, http.StatusCreated, entry)
}

func (h *AdminHandler) handleUpdateOnCall(w http.ResponseWriter, r *http.Request) {
	entryUUID := r.PathValue("uuid")

	var req OnCallRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrors := api.Validate(req); fieldErrors != nil {
		api.RespondValidationError(w, fieldErrors)
		return
	}

	updates := map[string]interface{}{
		"name":         req.Name,
		"email":        req.Email,
		"phone":        req.Phone,
		"start_time":   req.StartTime,
		"end_time":     req.EndTime,
		"days_of_week": daysToJSONB(req.Days),
		"priority":     req.Priority,
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if err := h.oncallService.UpdateEntry(entryUUID, updates); err != nil {
		if err == gorm.ErrRecordNotFound {
			api.RespondError(w, http.StatusNotFound, "On-call entry not found")
			return
		}
		log.Printf("AdminHandler: update on-call failed: %v", err)
		api.RespondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	api.RespondNoContent(w)
}

func (h *AdminHandler) handleDeleteOnCall(w http.ResponseWriter, r *http.Request) {
	if err := h.oncallService.DeleteEntry(r.PathValue("uuid")); err != nil {
		if err == gorm.ErrRecordNotFound {
			api.RespondError(w, http.StatusNotFound, "On-call entry not found")
			return
		}
		log.Printf("AdminHandler: delete on-call failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to delete entry")
		return
	}
	api.RespondNoContent(w)
}

// daysToJSONB packs a weekday list into the storage shape
func daysToJSONB(days []int) database.JSONB {
	if days == nil {
		return nil
	}
	raw := make([]interface{}, len(days))
	for i, d := range days {
		raw[i] = d
	}
	return database.JSONB{"days": raw}
}

// ========== Notification settings ==========

// NotificationSettingsRequest is the body for settings updates. Secret
// fields are write-only: blank values leave the stored secret untouched.
type NotificationSettingsRequest struct {
	NtfyServer    string `json:"ntfy_server"`
	NtfyTopic     string `json:"ntfy_topic"`
	NtfyEnabled   bool   `json:"ntfy_enabled"`
	SMTPHost      string `json:"smtp_host"`
	SMTPPort      int    `json:"smtp_port"`
	SMTPFrom      string `json:"smtp_from"`
	SMTPUser      string `json:"smtp_user"`
	SMTPPassword  string `json:"smtp_password"`
	EmailEnabled  bool   `json:"email_enabled"`
	SlackBotToken string `json:"slack_bot_token"`
	SlackChannel  string `json:"slack_channel"`
	SlackEnabled  bool   `json:"slack_enabled"`
	SMSGatewayURL string `json:"sms_gateway_url"`
	SMSGatewayKey string `json:"sms_gateway_key"`
	SMSEnabled    bool   `json:"sms_enabled"`
}

func (h *AdminHandler) handleGetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := database.GetNotificationSettings(h.db)
	if err != nil {
		log.Printf("AdminHandler: load notification settings failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	api.RespondJSON(w, http.StatusOK, settings)
}

func (h *AdminHandler) handleUpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	current, err := database.GetNotificationSettings(h.db)
	if err != nil {
		log.Printf("AdminHandler: load notification settings failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}

	var req NotificationSettingsRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	incoming := database.NotificationSettings{
		ID:            current.ID,
		NtfyServer:    req.NtfyServer,
		NtfyTopic:     req.NtfyTopic,
		NtfyEnabled:   req.NtfyEnabled,
		SMTPHost:      req.SMTPHost,
		SMTPPort:      req.SMTPPort,
		SMTPFrom:      req.SMTPFrom,
		SMTPUser:      req.SMTPUser,
		SMTPPassword:  req.SMTPPassword,
		EmailEnabled:  req.EmailEnabled,
		SlackBotToken: req.SlackBotToken,
		SlackChannel:  req.SlackChannel,
		SlackEnabled:  req.SlackEnabled,
		SMSGatewayURL: req.SMSGatewayURL,
		SMSGatewayKey: req.SMSGatewayKey,
		SMSEnabled:    req.SMSEnabled,
	}
	// Blank secrets keep their stored values so the UI can resubmit the
	// masked form.
	if incoming.SMTPPassword == "" {
		incoming.SMTPPassword = current.SMTPPassword
	}
	if incoming.SlackBotToken == "" {
		incoming.SlackBotToken = current.SlackBotToken
	}
	if incoming.SMSGatewayKey == "" {
		incoming.SMSGatewayKey = current.SMSGatewayKey
	}
	if err := database.UpdateNotificationSettings(h.db, &incoming); err != nil {
		log.Printf("AdminHandler: update notification settings failed: %v", err)
		api.RespondError(w, http.StatusInternalServerError, "Failed to update settings")
		return
	}
	api.RespondNoContent(w)
}
