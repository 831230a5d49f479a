package database

import "time"

// MetricSample is one recorded measurement from a monitored source
type MetricSample struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MetricType string    `gorm:"type:varchar(64);not null;index" json:"metric_type"`
	Value      float64   `gorm:"not null" json:"value"`
	Unit       string    `gorm:"type:varchar(32)" json:"unit"`
	Source     string    `gorm:"type:varchar(64);not null;index" json:"source"`
	Metadata   JSONB     `gorm:"type:jsonb" json:"metadata"`
	RecordedAt time.Time `gorm:"not null;index" json:"recorded_at"`
}

func (MetricSample) TableName() string {
	return "metric_samples"
}

// MetricBaseline holds the exponentially-smoothed running average for a
// (metric type, source) pair. Updated after every sample.
type MetricBaseline struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MetricType  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_metric_source" json:"metric_type"`
	Source      string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_metric_source" json:"source"`
	Baseline    float64   `gorm:"not null" json:"baseline"`
	SampleCount int64     `gorm:"not null;default:0" json:"sample_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (MetricBaseline) TableName() string {
	return "metric_baselines"
}

// MetricThreshold defines the warning and critical cutoffs for a metric type
type MetricThreshold struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	MetricType        string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"metric_type"`
	WarningThreshold  float64   `gorm:"not null" json:"warning_threshold"`
	CriticalThreshold float64   `gorm:"not null" json:"critical_threshold"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (MetricThreshold) TableName() string {
	return "metric_thresholds"
}
