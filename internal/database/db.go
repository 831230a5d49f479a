package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// Connect establishes a connection to the PostgreSQL database
func Connect(dsn string, logLevel logger.LogLevel) error {
	var err error

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("Database connection established")
	return nil
}

// AutoMigrate runs database migrations
func AutoMigrate() error {
	log.Println("Running database migrations...")

	err := DB.AutoMigrate(
		&Alert{},
		&AlertAction{},
		&EscalationRule{},
		&OnCallEntry{},
		&NotificationSettings{},
		&MetricSample{},
		&MetricBaseline{},
		&MetricThreshold{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults creates default records if they don't exist
func InitializeDefaults() error {
	log.Println("Initializing default database records...")

	// Create the notification settings singleton if it doesn't exist
	var count int64
	DB.Model(&NotificationSettings{}).Count(&count)
	if count == 0 {
		defaults := &NotificationSettings{
			NtfyServer:  "https://ntfy.sh",
			NtfyEnabled: true,
			SMTPPort:    587,
		}
		if err := DB.Create(defaults).Error; err != nil {
			return fmt.Errorf("failed to create default notification settings: %w", err)
		}
		log.Println("Created default notification settings")
	}

	if err := seedMetricThresholds(DB); err != nil {
		return fmt.Errorf("failed to seed metric thresholds: %w", err)
	}

	return nil
}

// Default thresholds per metric type, used when seeding a fresh database.
var defaultMetricThresholds = []MetricThreshold{
	{MetricType: "cpu_load", WarningThreshold: 4.0, CriticalThreshold: 8.0, Active: true},
	{MetricType: "memory_pct", WarningThreshold: 85, CriticalThreshold: 95, Active: true},
	{MetricType: "disk_pct", WarningThreshold: 85, CriticalThreshold: 95, Active: true},
	{MetricType: "response_ms", WarningThreshold: 2000, CriticalThreshold: 5000, Active: true},
}

// seedMetricThresholds ensures a threshold row exists for each default
// metric type. Existing rows are left untouched so admin edits survive
// restarts.
func seedMetricThresholds(db *gorm.DB) error {
	for _, t := range defaultMetricThresholds {
		var existing MetricThreshold
		err := db.Where("metric_type = ?", t.MetricType).First(&existing).Error
		if err == nil {
			continue
		}
		if err != gorm.ErrRecordNotFound {
			return err
		}
		row := t
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to create threshold for %s: %w", t.MetricType, err)
		}
		log.Printf("Created default threshold for metric type: %s", t.MetricType)
	}
	return nil
}

// GetNotificationSettings retrieves notification settings from the database
func GetNotificationSettings(db *gorm.DB) (*NotificationSettings, error) {
	var settings NotificationSettings
	if err := db.First(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateNotificationSettings updates notification settings.
// Uses Save() so cleared boolean toggles are persisted too.
func UpdateNotificationSettings(db *gorm.DB, settings *NotificationSettings) error {
	return db.Save(settings).Error
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database connection
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
