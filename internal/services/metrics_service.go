package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// baselineAlpha is the smoothing factor of the exponential moving average
const baselineAlpha = 0.1

// Metric validation errors
var (
	ErrMissingMetricType   = errors.New("metric type is required")
	ErrMissingMetricSource = errors.New("metric source is required")
)

// AlertSink receives threshold-breach alerts. The metrics recorder holds
// a reference to the alert engine, never the other way around.
type AlertSink interface {
	CreateAlert(ctx context.Context, title, message string, severity int, source string, metadata database.JSONB) (string, error)
}

// MetricsService records measurement samples, maintains learned baselines,
// and raises alerts when samples cross configured thresholds.
type MetricsService struct {
	db   *gorm.DB
	sink AlertSink
	now  func() time.Time
}

// NewMetricsService creates a metrics recorder wired to an alert sink
// (which may be nil to disable threshold alerting)
func NewMetricsService(db *gorm.DB, sink AlertSink) *MetricsService {
	return &MetricsService{
		db:   db,
		sink: sink,
		now:  time.Now,
	}
}

// SetClock overrides the service clock (tests only)
func (s *MetricsService) SetClock(now func() time.Time) {
	s.now = now
}

// RecordMetric persists one sample, updates the baseline for its
// (type, source) pair, and checks the sample against the configured
// thresholds. Critical is checked before warning so critical wins.
func (s *MetricsService) RecordMetric(ctx context.Context, metricType string, value float64, unit, source string, metadata database.JSONB) error {
	if strings.TrimSpace(metricType) == "" {
		return ErrMissingMetricType
	}
	if strings.TrimSpace(source) == "" {
		return ErrMissingMetricSource
	}

	sample := database.MetricSample{
		MetricType: metricType,
		Value:      value,
		Unit:       unit,
		Source:     source,
		Metadata:   metadata,
		RecordedAt: s.now(),
	}
	if err := s.db.Create(&sample).Error; err != nil {
		return fmt.Errorf("failed to record metric: %w", err)
	}

	baseline, err := s.updateBaseline(metricType, source, value)
	if err != nil {
		log.Printf("Metric %s/%s: baseline update failed: %v", metricType, source, err)
	}

	s.checkThreshold(ctx, metricType, source, value, unit, baseline)
	return nil
}

// GetBaseline returns the learned baseline for a (type, source) pair,
// or nil when no sample has been recorded yet
func (s *MetricsService) GetBaseline(metricType, source string) (*database.MetricBaseline, error) {
	var baseline database.MetricBaseline
	err := s.db.Where("metric_type = ? AND source = ?", metricType, source).First(&baseline).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &baseline, nil
}

// updateBaseline applies the EMA update and returns the new baseline.
// The first sample seeds the baseline with its own value.
func (s *MetricsService) updateBaseline(metricType, source string, value float64) (float64, error) {
	var baseline database.MetricBaseline
	err := s.db.Where("metric_type = ? AND source = ?", metricType, source).First(&baseline).Error
	if err == gorm.ErrRecordNotFound {
		baseline = database.MetricBaseline{
			MetricType:  metricType,
			Source:      source,
			Baseline:    value,
			SampleCount: 1,
		}
		if err := s.db.Create(&baseline).Error; err != nil {
			return value, err
		}
		return value, nil
	}
	if err != nil {
		return value, err
	}

	newBaseline := baseline.Baseline*(1-baselineAlpha) + value*baselineAlpha
	err = s.db.Model(&baseline).Updates(map[string]interface{}{
		"baseline":     newBaseline,
		"sample_count": gorm.Expr("sample_count + 1"),
	}).Error
	return newBaseline, err
}

// checkThreshold raises an alert through the sink when the sample crosses
// the warning or critical cutoff for its metric type. Alert titles are
// deterministic per (cutoff, metric, source) so same-day repeats dedup.
func (s *MetricsService) checkThreshold(ctx context.Context, metricType, source string, value float64, unit string, baseline float64) {
	if s.sink == nil {
		return
	}

	var threshold database.MetricThreshold
	err := s.db.Where("metric_type = ? AND active = ?", metricType, true).First(&threshold).Error
	if err == gorm.ErrRecordNotFound {
		return
	}
	if err != nil {
		log.Printf("Metric %s/%s: threshold lookup failed: %v", metricType, source, err)
		return
	}

	var severity int
	var title string
	switch {
	case value >= threshold.CriticalThreshold:
		severity = 5
		title = fmt.Sprintf("Critical %s on %s", metricType, source)
	case value >= threshold.WarningThreshold:
		severity = 4
		title = fmt.Sprintf("High %s on %s", metricType, source)
	default:
		return
	}

	message := fmt.Sprintf("%s reached %.2f%s (warning %.2f, critical %.2f, baseline %.2f)",
		metricType, value, formatUnit(unit), threshold.WarningThreshold, threshold.CriticalThreshold, baseline)

	metadata := database.JSONB{
		"metric_type": metricType,
		"value":       value,
		"unit":        unit,
		"baseline":    baseline,
	}
	if _, err := s.sink.CreateAlert(ctx, title, message, severity, "performance", metadata); err != nil {
		log.Printf("Metric %s/%s: threshold alert failed: %v", metricType, source, err)
	}
}

func formatUnit(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}
