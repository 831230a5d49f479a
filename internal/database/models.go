package database

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("type assertion to []byte failed")
	}
}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// AlertStatus represents the lifecycle state of an alert
type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// Alert is one deduplicated incident. The fingerprint is derived from
// (source, title, calendar day); Epoch disambiguates lifecycle instances
// that reuse the same fingerprint after an earlier one was resolved.
type Alert struct {
	ID               uint        `gorm:"primaryKey" json:"id"`
	Fingerprint      string      `gorm:"type:varchar(16);not null;index;uniqueIndex:idx_fingerprint_epoch" json:"fingerprint"`
	Epoch            int         `gorm:"not null;default:0;uniqueIndex:idx_fingerprint_epoch" json:"epoch"`
	Title            string      `gorm:"type:varchar(255);not null" json:"title"`
	Message          string      `gorm:"type:text" json:"message"`
	Severity         int         `gorm:"not null;index" json:"severity"` // 1-5, 5 = most critical
	Source           string      `gorm:"type:varchar(64);not null;index" json:"source"`
	Status           AlertStatus `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	EscalationLevel  int         `gorm:"not null;default:0" json:"escalation_level"`
	NextEscalationAt *time.Time  `gorm:"index" json:"next_escalation_at,omitempty"`
	AcknowledgedAt   *time.Time  `json:"acknowledged_at,omitempty"`
	AcknowledgedBy   string      `gorm:"type:varchar(128)" json:"acknowledged_by,omitempty"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty"`
	ResolvedBy       string      `gorm:"type:varchar(128)" json:"resolved_by,omitempty"`
	Metadata         JSONB       `gorm:"type:jsonb" json:"metadata"`
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// IsOpen returns true if the alert has not been acknowledged or resolved
func (a *Alert) IsOpen() bool {
	return a.Status == AlertStatusOpen
}

// AlertActionType identifies a state-changing operation on an alert
type AlertActionType string

const (
	AlertActionCreate      AlertActionType = "create"
	AlertActionAcknowledge AlertActionType = "acknowledge"
	AlertActionResolve     AlertActionType = "resolve"
	AlertActionEscalate    AlertActionType = "escalate"
)

// AlertAction is an append-only audit record. Rows are never mutated;
// the retention job deletes them together with their purged alert.
type AlertAction struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Fingerprint string          `gorm:"type:varchar(16);not null;index" json:"fingerprint"`
	Action      AlertActionType `gorm:"type:varchar(20);not null" json:"action"`
	Actor       string          `gorm:"type:varchar(128);not null" json:"actor"`
	Notes       string          `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time       `gorm:"index" json:"created_at"`
}

func (AlertAction) TableName() string {
	return "alert_actions"
}

// EscalationRule defines one step of the escalation ladder for a severity.
// Level 0 carries the initial notification channel; for level N >= 1,
// DelayMinutes is the wait after level N-1 was sent.
type EscalationRule struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Severity     int       `gorm:"not null;uniqueIndex:idx_severity_level" json:"severity"`
	Level        int       `gorm:"not null;uniqueIndex:idx_severity_level" json:"level"`
	DelayMinutes int       `gorm:"not null;default:0" json:"delay_minutes"`
	NotifyMethod string    `gorm:"type:varchar(32);not null" json:"notify_method"` // push, email, slack, sms
	NotifyTarget string    `gorm:"type:varchar(255);not null" json:"notify_target"`
	// No column default: GORM would omit a false zero value on insert and
	// the default would win. Creation paths set Active explicitly.
	Active bool `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (EscalationRule) TableName() string {
	return "escalation_rules"
}

// OnCallEntry is a contact's availability window. Consulted by the
// notification layer when a rule's target is "on-call".
type OnCallEntry struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UUID       string    `gorm:"uniqueIndex;size:36;not null" json:"uuid"`
	Name       string    `gorm:"type:varchar(128);not null" json:"name"`
	Email      string    `gorm:"type:varchar(255)" json:"email"`
	Phone      string    `gorm:"type:varchar(32)" json:"phone"`
	StartTime  string    `gorm:"type:varchar(5);not null" json:"start_time"` // "HH:MM"
	EndTime    string    `gorm:"type:varchar(5);not null" json:"end_time"`   // "HH:MM", may wrap past midnight
	DaysOfWeek JSONB     `gorm:"type:jsonb" json:"days_of_week"`             // {"days": [0..6]}, 0 = Sunday
	Priority   int       `gorm:"not null;default:1" json:"priority"`         // lower wins
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (OnCallEntry) TableName() string {
	return "oncall_entries"
}

// Days returns the configured weekdays, empty when unset
func (o *OnCallEntry) Days() []int {
	if o.DaysOfWeek == nil {
		return nil
	}
	raw, ok := o.DaysOfWeek["days"].([]interface{})
	if !ok {
		return nil
	}
	days := make([]int, 0, len(raw))
	for _, d := range raw {
		switch v := d.(type) {
		case float64:
			days = append(days, int(v))
		case int:
			days = append(days, v)
		}
	}
	return days
}

// NotificationSettings stores transport configuration for all channels
type NotificationSettings struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	NtfyServer    string    `gorm:"type:varchar(255);default:'https://ntfy.sh'" json:"ntfy_server"`
	NtfyTopic     string    `gorm:"type:varchar(128)" json:"ntfy_topic"`
	NtfyEnabled   bool      `gorm:"default:true" json:"ntfy_enabled"`
	SMTPHost      string    `gorm:"type:varchar(255)" json:"smtp_host"`
	SMTPPort      int       `gorm:"default:587" json:"smtp_port"`
	SMTPFrom      string    `gorm:"type:varchar(255)" json:"smtp_from"`
	SMTPUser      string    `gorm:"type:varchar(255)" json:"smtp_user"`
	SMTPPassword  string    `gorm:"type:text" json:"-"`
	EmailEnabled  bool      `gorm:"default:false" json:"email_enabled"`
	SlackBotToken string    `gorm:"type:text" json:"-"`
	SlackChannel  string    `gorm:"type:varchar(128)" json:"slack_channel"`
	SlackEnabled  bool      `gorm:"default:false" json:"slack_enabled"`
	SMSGatewayURL string    `gorm:"type:text" json:"sms_gateway_url"`
	SMSGatewayKey string    `gorm:"type:text" json:"-"`
	SMSEnabled    bool      `gorm:"default:false" json:"sms_enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (NotificationSettings) TableName() string {
	return "notification_settings"
}
