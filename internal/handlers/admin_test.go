package handlers

import (
	"net/http"
	"strings"
	"testing"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/services"
	"github.com/pulsewatch/pulsewatch/internal/testhelpers"
)

func newAdminMux(t *testing.T) (*http.ServeMux, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	if err := db.Create(&database.NotificationSettings{NtfyServer: "https://ntfy.sh", NtfyEnabled: true, SMTPPort: 587}).Error; err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}

	mux := http.NewServeMux()
	NewAdminHandler(db, services.NewPolicyService(db), services.NewOnCallService(db)).SetupRoutes(mux)
	return mux, db
}

func TestAdminHandler_EscalationRuleCRUD(t *testing.T) {
	mux, _ := newAdminMux(t)

	var created database.EscalationRule
	testhelpers.NewHTTPTestContext(t, "POST", "/api/escalation-rules", nil).
		WithJSONBody(map[string]interface{}{
			"severity":      5,
			"level":         1,
			"delay_minutes": 15,
			"notify_method": "email",
			"notify_target": "on-call",
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.ID == 0 || !created.Active {
		t.Errorf("unexpected created rule: %+v", created)
	}

	// Duplicate (severity, level) violates the unique index.
	testhelpers.NewHTTPTestContext(t, "POST", "/api/escalation-rules", nil).
		WithJSONBody(map[string]interface{}{
			"severity":      5,
			"level":         1,
			"notify_method": "sms",
		}).
		Execute(mux).
		AssertStatus(http.StatusConflict)

	var list struct {
		Rules []database.EscalationRule `json:"rules"`
	}
	testhelpers.NewHTTPTestContext(t, "GET", "/api/escalation-rules", nil).
		Execute(mux).AssertStatus(http.StatusOK).DecodeJSON(&list)
	if len(list.Rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(list.Rules))
	}

	testhelpers.NewHTTPTestContext(t, "PUT", "/api/escalation-rules/1", nil).
		WithJSONBody(map[string]interface{}{
			"severity":      5,
			"level":         1,
			"delay_minutes": 20,
			"notify_method": "email",
		}).
		Execute(mux).
		AssertStatus(http.StatusNoContent)

	testhelpers.NewHTTPTestContext(t, "DELETE", "/api/escalation-rules/1", nil).
		Execute(mux).AssertStatus(http.StatusNoContent)
	testhelpers.NewHTTPTestContext(t, "DELETE", "/api/escalation-rules/1", nil).
		Execute(mux).AssertStatus(http.StatusNotFound)
	testhelpers.NewHTTPTestContext(t, "DELETE", "/api/escalation-rules/abc", nil).
		Execute(mux).AssertStatus(http.StatusBadRequest)
}

func TestAdminHandler_EscalationRuleValidation(t *testing.T) {
	mux, _ := newAdminMux(t)

	// Unknown channel.
	testhelpers.NewHTTPTestContext(t, "POST", "/api/escalation-rules", nil).
		WithJSONBody(map[string]interface{}{
			"severity":      3,
			"level":         0,
			"notify_method": "carrier-pigeon",
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("notify_method")

	// Severity out of range.
	testhelpers.NewHTTPTestContext(t, "POST", "/api/escalation-rules", nil).
		WithJSONBody(map[string]interface{}{
			"severity":      7,
			"notify_method": "push",
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity)
}

func TestAdminHandler_OnCallCRUD(t *testing.T) {
	mux, _ := newAdminMux(t)

	var created database.OnCallEntry
	testhelpers.NewHTTPTestContext(t, "POST", "/api/oncall", nil).
		WithJSONBody(map[string]interface{}{
			"name":       "Alice",
			"email":      "alice@example.com",
			"start_time": "09:00",
			"end_time":   "17:00",
			"days":       []int{1, 2, 3, 4, 5},
			"priority":   1,
		}).
		Execute(mux).
		AssertStatus(http.StatusCreated).
		DecodeJSON(&created)
	if created.UUID == "" {
		t.Fatal("expected a UUID on the created entry")
	}
	if days := created.Days(); len(days) != 5 {
		t.Errorf("expected 5 days, got %v", days)
	}

	// Bad time format is rejected by the service.
	testhelpers.NewHTTPTestContext(t, "POST", "/api/oncall", nil).
		WithJSONBody(map[string]interface{}{
			"name":       "Bob",
			"start_time": "25:00",
			"end_time":   "17:00",
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity)

	// Bad email fails validation.
	testhelpers.NewHTTPTestContext(t, "POST", "/api/oncall", nil).
		WithJSONBody(map[string]interface{}{
			"name":       "Bob",
			"email":      "not-an-email",
			"start_time": "09:00",
			"end_time":   "17:00",
		}).
		Execute(mux).
		AssertStatus(http.StatusUnprocessableEntity).
		AssertBodyContains("email")

	testhelpers.NewHTTPTestContext(t, "PUT", "/api/oncall/"+created.UUID, nil).
		WithJSONBody(map[string]interface{}{
			"name":       "Alice",
			"start_time": "08:00",
			"end_time":   "16:00",
		}).
		Execute(mux).
		AssertStatus(http.StatusNoContent)

	var list struct {
		Entries []database.OnCallEntry `json:"entries"`
	}
	testhelpers.NewHTTPTestContext(t, "GET", "/api/oncall", nil).
		Execute(mux).AssertStatus(http.StatusOK).DecodeJSON(&list)
	if len(list.Entries) != 1 || list.Entries[0].StartTime != "08:00" {
		t.Errorf("unexpected entries: %+v", list.Entries)
	}

	testhelpers.NewHTTPTestContext(t, "DELETE", "/api/oncall/"+created.UUID, nil).
		Execute(mux).AssertStatus(http.StatusNoContent)
	testhelpers.NewHTTPTestContext(t, "DELETE", "/api/oncall/"+created.UUID, nil).
		Execute(mux).AssertStatus(http.StatusNotFound)
}

func TestAdminHandler_NotificationSettings(t *testing.T) {
	mux, db := newAdminMux(t)

	// Stored secrets never appear in responses.
	db.Model(&database.NotificationSettings{}).Where("id = ?", 1).
		Updates(map[string]interface{}{"smtp_password": "hunter2", "slack_bot_token": "xoxb-secret"})

	ctx := testhelpers.NewHTTPTestContext(t, "GET", "/api/settings/notifications", nil).
		Execute(mux).
		AssertStatus(http.StatusOK)
	body := ctx.Recorder.Body.String()
	for _, secret := range []string{"hunter2", "xoxb-secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("secret %q leaked in response: %s", secret, body)
		}
	}

	// Blank secrets in an update keep the stored values.
	testhelpers.NewHTTPTestContext(t, "PUT", "/api/settings/notifications", nil).
		WithJSONBody(map[string]interface{}{
			"ntfy_server":   "https://ntfy.example.com",
			"ntfy_topic":    "pulsewatch",
			"ntfy_enabled":  true,
			"smtp_host":     "mail.example.com",
			"smtp_port":     587,
			"smtp_from":     "alerts@example.com",
			"email_enabled": true,
		}).
		Execute(mux).
		AssertStatus(http.StatusNoContent)

	settings, err := database.GetNotificationSettings(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.NtfyServer != "https://ntfy.example.com" || !settings.EmailEnabled {
		t.Errorf("update not applied: %+v", settings)
	}
	if settings.SMTPPassword != "hunter2" {
		t.Errorf("blank smtp_password must keep the stored secret, got %q", settings.SMTPPassword)
	}
	if settings.SlackBotToken != "xoxb-secret" {
		t.Errorf("blank slack_bot_token must keep the stored secret, got %q", settings.SlackBotToken)
	}

	// Disabling a channel persists.
	testhelpers.NewHTTPTestContext(t, "PUT", "/api/settings/notifications", nil).
		WithJSONBody(map[string]interface{}{
			"ntfy_server":  "https://ntfy.example.com",
			"ntfy_enabled": false,
		}).
		Execute(mux).
		AssertStatus(http.StatusNoContent)
	settings, _ = database.GetNotificationSettings(db)
	if settings.NtfyEnabled {
		t.Error("expected ntfy to be disabled")
	}
}
