package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
	"github.com/pulsewatch/pulsewatch/internal/events"
	"github.com/pulsewatch/pulsewatch/internal/notify"
)

const (
	// FingerprintLength is the hex-prefix width of alert fingerprints
	FingerprintLength = 16

	// SystemActor is recorded on actions performed by the service itself
	SystemActor = "system"
)

// Validation errors surfaced to callers before any write happens
var (
	ErrInvalidSeverity = errors.New("severity must be between 1 and 5")
	ErrMissingTitle    = errors.New("title is required")
	ErrMissingSource   = errors.New("source is required")
)

// AlertService is the alert lifecycle and escalation engine. It owns
// deduplication, the open/acknowledged/resolved state machine, and
// time-based escalation through the configured rule ladder.
type AlertService struct {
	db         *gorm.DB
	policy     *PolicyService
	dispatcher notify.Sender
	publisher  events.Publisher

	// now is swappable so tests can pin the clock
	now func() time.Time
}

// NewAlertService creates the alert engine with its collaborators injected
func NewAlertService(db *gorm.DB, policy *PolicyService, dispatcher notify.Sender, publisher events.Publisher) *AlertService {
	return &AlertService{
		db:         db,
		policy:     policy,
		dispatcher: dispatcher,
		publisher:  publisher,
		now:        time.Now,
	}
}

// SetClock overrides the service clock (tests only)
func (s *AlertService) SetClock(now func() time.Time) {
	s.now = now
}

// Fingerprint derives the deduplication key for an alert: identical
// (source, title) pairs produce the same fingerprint within one calendar
// day and a different one the next day.
func Fingerprint(source, title string, day time.Time) string {
	sum := sha256.Sum256([]byte(source + ":" + title + ":" + day.Format("2006-01-02")))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// CreateAlert records a new alert, or returns the existing fingerprint
// when an equivalent alert is already open today (deduplication). The
// initial notification is sent synchronously but best-effort: its failure
// never fails alert creation.
func (s *AlertService) CreateAlert(ctx context.Context, title, message string, severity int, source string, metadata database.JSONB) (string, error) {
	if strings.TrimSpace(title) == "" {
		return "", ErrMissingTitle
	}
	if strings.TrimSpace(source) == "" {
		return "", ErrMissingSource
	}
	if severity < 1 || severity > 5 {
		return "", ErrInvalidSeverity
	}

	now := s.now()
	fingerprint := Fingerprint(source, title, now)

	if existing, err := s.findOpenToday(fingerprint, now); err != nil {
		return "", err
	} else if existing != nil {
		log.Printf("Alert %s duplicate suppressed (source=%s title=%q)", fingerprint, source, title)
		return fingerprint, nil
	}

	// Epoch counts prior lifecycle instances of this fingerprint so a
	// re-created alert after resolve gets its own row under the
	// (fingerprint, epoch) unique index.
	var epoch int64
	if err := s.db.Model(&database.Alert{}).Where("fingerprint = ?", fingerprint).Count(&epoch).Error; err != nil {
		return "", err
	}

	nextEscalation, err := s.policy.NextEscalationFor(severity, 0, now)
	if err != nil {
		return "", err
	}

	alert := database.Alert{
		Fingerprint:      fingerprint,
		Epoch:            int(epoch),
		Title:            title,
		Message:          message,
		Severity:         severity,
		Source:           source,
		Status:           database.AlertStatusOpen,
		EscalationLevel:  0,
		NextEscalationAt: nextEscalation,
		Metadata:         metadata,
	}
	if err := s.db.Create(&alert).Error; err != nil {
		if isDuplicateKey(err) {
			// Lost a create race: the concurrent winner's row is the alert.
			log.Printf("Alert %s duplicate suppressed (concurrent create)", fingerprint)
			return fingerprint, nil
		}
		return "", fmt.Errorf("failed to create alert: %w", err)
	}

	s.appendAction(fingerprint, database.AlertActionCreate, source, "")

	// Initial notification uses the level-0 rule for this severity.
	if rule, err := s.policy.GetRule(severity, 0); err != nil {
		log.Printf("Alert %s: level-0 rule lookup failed: %v", fingerprint, err)
	} else if rule != nil {
		if !s.dispatcher.Send(ctx, rule.NotifyMethod, rule.NotifyTarget, title, message, severity) {
			log.Printf("Alert %s: initial notification failed on channel %s", fingerprint, rule.NotifyMethod)
		}
	}

	s.publish(events.AlertCreated, &alert, source)
	return fingerprint, nil
}

// AcknowledgeAlert transitions an open alert to acknowledged and stops
// further escalation. Returns false when the alert does not exist or has
// already left the open state (including races lost to a concurrent
// acknowledge), which callers treat as "nothing changed".
func (s *AlertService) AcknowledgeAlert(ctx context.Context, fingerprint, who, notes string) (bool, error) {
	if who == "" {
		who = SystemActor
	}
	now := s.now()

	result := s.db.Model(&database.Alert{}).
		Where("fingerprint = ? AND status = ?", fingerprint, database.AlertStatusOpen).
		Updates(map[string]interface{}{
			"status":             database.AlertStatusAcknowledged,
			"acknowledged_at":    now,
			"acknowledged_by":    who,
			"next_escalation_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("Alert %s: acknowledge ignored (not open or unknown)", fingerprint)
		return false, nil
	}

	s.appendAction(fingerprint, database.AlertActionAcknowledge, who, notes)

	alert, err := s.latestByFingerprint(fingerprint)
	if err == nil && alert != nil {
		s.sendConfirmation(ctx, alert, fmt.Sprintf("Acknowledged by %s", who))
		s.publish(events.AlertAcknowledged, alert, who)
	}
	return true, nil
}

// ResolveAlert transitions an open or acknowledged alert to resolved.
// Resolved is terminal; a second resolve returns false.
func (s *AlertService) ResolveAlert(ctx context.Context, fingerprint, who, notes string) (bool, error) {
	if who == "" {
		who = SystemActor
	}
	now := s.now()

	result := s.db.Model(&database.Alert{}).
		Where("fingerprint = ? AND status IN ?", fingerprint,
			[]database.AlertStatus{database.AlertStatusOpen, database.AlertStatusAcknowledged}).
		Updates(map[string]interface{}{
			"status":             database.AlertStatusResolved,
			"resolved_at":        now,
			"resolved_by":        who,
			"next_escalation_at": nil,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		log.Printf("Alert %s: resolve ignored (already resolved or unknown)", fingerprint)
		return false, nil
	}

	s.appendAction(fingerprint, database.AlertActionResolve, who, notes)

	alert, err := s.latestByFingerprint(fingerprint)
	if err == nil && alert != nil {
		s.sendConfirmation(ctx, alert, fmt.Sprintf("Resolved by %s", who))
		s.publish(events.AlertResolved, alert, who)
	}
	return true, nil
}

// ProcessEscalations finds open alerts whose escalation is due and sends
// the next-level notification for each. The level only advances when the
// send succeeds, so a failed send is retried on the next tick. Returns
// the number of alerts escalated.
func (s *AlertService) ProcessEscalations(ctx context.Context) (int, error) {
	now := s.now()

	var due []database.Alert
	err := s.db.Where("status = ? AND next_escalation_at IS NOT NULL AND next_escalation_at <= ?",
		database.AlertStatusOpen, now).
		Order("severity DESC, created_at ASC").
		Find(&due).Error
	if err != nil {
		return 0, err
	}

	escalated := 0
	for i := range due {
		if ctx.Err() != nil {
			return escalated, ctx.Err()
		}
		if s.escalateOne(ctx, &due[i], now) {
			escalated++
		}
	}
	return escalated, nil
}

// escalateOne advances a single due alert by one level. The update is
// guarded by the escalation level read earlier so overlapping scheduler
// runs cannot double-increment the same alert.
func (s *AlertService) escalateOne(ctx context.Context, alert *database.Alert, now time.Time) bool {
	nextLevel := alert.EscalationLevel + 1

	rule, err := s.policy.GetRule(alert.Severity, nextLevel)
	if err != nil {
		log.Printf("Alert %s: escalation rule lookup failed: %v", alert.Fingerprint, err)
		return false
	}
	if rule == nil {
		// Rule ladder exhausted (or the rule was deleted while scheduled):
		// stop escalating this alert.
		s.db.Model(&database.Alert{}).
			Where("fingerprint = ? AND status = ? AND escalation_level = ?",
				alert.Fingerprint, database.AlertStatusOpen, alert.EscalationLevel).
			Update("next_escalation_at", nil)
		return false
	}

	title := fmt.Sprintf("[Escalation L%d] %s", nextLevel, alert.Title)
	if !s.dispatcher.Send(ctx, rule.NotifyMethod, rule.NotifyTarget, title, alert.Message, alert.Severity) {
		log.Printf("Alert %s: escalation to level %d failed on channel %s, will retry next tick",
			alert.Fingerprint, nextLevel, rule.NotifyMethod)
		return false
	}

	nextEscalation, err := s.policy.NextEscalationFor(alert.Severity, nextLevel, now)
	if err != nil {
		log.Printf("Alert %s: next escalation lookup failed: %v", alert.Fingerprint, err)
		return false
	}

	result := s.db.Model(&database.Alert{}).
		Where("fingerprint = ? AND status = ? AND escalation_level = ?",
			alert.Fingerprint, database.AlertStatusOpen, alert.EscalationLevel).
		Updates(map[string]interface{}{
			"escalation_level":   nextLevel,
			"next_escalation_at": nextEscalation,
		})
	if result.Error != nil {
		log.Printf("Alert %s: escalation update failed: %v", alert.Fingerprint, result.Error)
		return false
	}
	if result.RowsAffected == 0 {
		// Alert changed state or was escalated by a concurrent run.
		log.Printf("Alert %s: escalation race lost, skipping", alert.Fingerprint)
		return false
	}

	s.appendAction(alert.Fingerprint, database.AlertActionEscalate, SystemActor,
		fmt.Sprintf("escalated to level %d via %s", nextLevel, rule.NotifyMethod))

	alert.EscalationLevel = nextLevel
	s.publish(events.AlertEscalated, alert, SystemActor)
	return true
}

// GetOpenAlerts returns open alerts, most severe and newest first
func (s *AlertService) GetOpenAlerts(limit int) ([]database.Alert, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	var alerts []database.Alert
	err := s.db.Where("status = ?", database.AlertStatusOpen).
		Order("severity DESC, created_at DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}

// GetAlertDetails returns the latest lifecycle instance for a fingerprint
// together with its action history, newest action first. Both return
// values are nil when the fingerprint is unknown.
func (s *AlertService) GetAlertDetails(fingerprint string) (*database.Alert, []database.AlertAction, error) {
	alert, err := s.latestByFingerprint(fingerprint)
	if err != nil {
		return nil, nil, err
	}
	if alert == nil {
		return nil, nil, nil
	}

	var actions []database.AlertAction
	err = s.db.Where("fingerprint = ?", fingerprint).
		Order("created_at DESC, id DESC").
		Find(&actions).Error
	if err != nil {
		return nil, nil, err
	}
	return alert, actions, nil
}

// AlertStats summarizes alert activity over a recent window
type AlertStats struct {
	WindowDays            int              `json:"window_days"`
	Total                 int64            `json:"total"`
	CountsByStatus        map[string]int64 `json:"counts_by_status"`
	CountsBySeverity      map[int]int64    `json:"counts_by_severity"`
	AvgResolutionMinutes  float64          `json:"avg_resolution_minutes"`
	EscalationRatePercent float64          `json:"escalation_rate_percent"`
}

// GetAlertStats computes counts by status and severity, the mean
// resolution latency, and the share of alerts escalated at least once,
// for alerts created within the window.
func (s *AlertService) GetAlertStats(windowDays int) (*AlertStats, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	if windowDays > 30 {
		windowDays = 30
	}
	cutoff := s.now().AddDate(0, 0, -windowDays)

	stats := &AlertStats{
		WindowDays:       windowDays,
		CountsByStatus:   make(map[string]int64),
		CountsBySeverity: make(map[int]int64),
	}

	var statusRows []struct {
		Status string
		Count  int64
	}
	err := s.db.Model(&database.Alert{}).
		Select("status, count(*) as count").
		Where("created_at >= ?", cutoff).
		Group("status").
		Scan(&statusRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range statusRows {
		stats.CountsByStatus[row.Status] = row.Count
		stats.Total += row.Count
	}

	var severityRows []struct {
		Severity int
		Count    int64
	}
	err = s.db.Model(&database.Alert{}).
		Select("severity, count(*) as count").
		Where("created_at >= ?", cutoff).
		Group("severity").
		Scan(&severityRows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range severityRows {
		stats.CountsBySeverity[row.Severity] = row.Count
	}

	// Resolution latency is computed in Go so the query stays portable
	// between postgres and the sqlite test driver.
	var resolved []database.Alert
	err = s.db.Select("created_at, resolved_at").
		Where("status = ? AND created_at >= ? AND resolved_at IS NOT NULL",
			database.AlertStatusResolved, cutoff).
		Find(&resolved).Error
	if err != nil {
		return nil, err
	}
	if len(resolved) > 0 {
		var totalMinutes float64
		for _, a := range resolved {
			totalMinutes += a.ResolvedAt.Sub(a.CreatedAt).Minutes()
		}
		stats.AvgResolutionMinutes = totalMinutes / float64(len(resolved))
	}

	if stats.Total > 0 {
		var escalatedCount int64
		err = s.db.Model(&database.Alert{}).
			Where("created_at >= ? AND escalation_level > 0", cutoff).
			Count(&escalatedCount).Error
		if err != nil {
			return nil, err
		}
		stats.EscalationRatePercent = float64(escalatedCount) / float64(stats.Total) * 100
	}

	return stats, nil
}

// CleanupOldAlerts purges resolved alerts older than the retention cutoff
// and then removes action rows whose alert no longer exists. The two
// deletes run as separate statements on purpose: holding one transaction
// across both would contend with live escalation processing.
func (s *AlertService) CleanupOldAlerts(retentionDays int) (int64, int64, error) {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	cutoff := s.now().AddDate(0, 0, -retentionDays)

	alerts := s.db.Where("status = ? AND resolved_at < ?", database.AlertStatusResolved, cutoff).
		Delete(&database.Alert{})
	if alerts.Error != nil {
		return 0, 0, alerts.Error
	}

	actions := s.db.Where("fingerprint NOT IN (?)",
		s.db.Model(&database.Alert{}).Select("fingerprint")).
		Delete(&database.AlertAction{})
	if actions.Error != nil {
		return alerts.RowsAffected, 0, actions.Error
	}

	if alerts.RowsAffected > 0 || actions.RowsAffected > 0 {
		log.Printf("Cleanup removed %d alerts and %d orphaned actions", alerts.RowsAffected, actions.RowsAffected)
	}
	return alerts.RowsAffected, actions.RowsAffected, nil
}

// findOpenToday returns the not-yet-resolved alert created today with the
// given fingerprint, or nil
func (s *AlertService) findOpenToday(fingerprint string, now time.Time) (*database.Alert, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var alert database.Alert
	err := s.db.Where("fingerprint = ? AND status <> ? AND created_at >= ?",
		fingerprint, database.AlertStatusResolved, dayStart).
		First(&alert).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// latestByFingerprint returns the newest lifecycle instance of a
// fingerprint, or nil when unknown
func (s *AlertService) latestByFingerprint(fingerprint string) (*database.Alert, error) {
	var alert database.Alert
	err := s.db.Where("fingerprint = ?", fingerprint).
		Order("epoch DESC").
		First(&alert).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

// appendAction writes one audit row; failures are logged, never fatal
func (s *AlertService) appendAction(fingerprint string, action database.AlertActionType, actor, notes string) {
	row := database.AlertAction{
		Fingerprint: fingerprint,
		Action:      action,
		Actor:       actor,
		Notes:       notes,
	}
	if err := s.db.Create(&row).Error; err != nil {
		log.Printf("Alert %s: failed to record %s action: %v", fingerprint, action, err)
	}
}

// sendConfirmation sends a best-effort status notification on the alert's
// level-0 channel
func (s *AlertService) sendConfirmation(ctx context.Context, alert *database.Alert, body string) {
	rule, err := s.policy.GetRule(alert.Severity, 0)
	if err != nil || rule == nil {
		return
	}
	if !s.dispatcher.Send(ctx, rule.NotifyMethod, rule.NotifyTarget, alert.Title, body, alert.Severity) {
		log.Printf("Alert %s: confirmation notification failed", alert.Fingerprint)
	}
}

// publish emits an alert lifecycle event when a publisher is wired
func (s *AlertService) publish(eventType events.AlertEventType, alert *database.Alert, actor string) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(events.AlertEvent{
		Type:        eventType,
		Fingerprint: alert.Fingerprint,
		Title:       alert.Title,
		Severity:    alert.Severity,
		Source:      alert.Source,
		Level:       alert.EscalationLevel,
		Actor:       actor,
		Timestamp:   s.now(),
	})
}

// isDuplicateKey detects unique-constraint violations across drivers
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
