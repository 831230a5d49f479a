package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// OnCallService manages the on-call schedule
type OnCallService struct {
	db *gorm.DB
}

// NewOnCallService creates a new on-call service
func NewOnCallService(db *gorm.DB) *OnCallService {
	return &OnCallService{db: db}
}

// ListEntries returns all schedule entries ordered by priority
func (s *OnCallService) ListEntries() ([]database.OnCallEntry, error) {
	var entries []database.OnCallEntry
	err := s.db.Order("priority ASC, id ASC").Find(&entries).Error
	return entries, err
}

// GetEntry retrieves a schedule entry by UUID
func (s *OnCallService) GetEntry(entryUUID string) (*database.OnCallEntry, error) {
	var entry database.OnCallEntry
	if err := s.db.Where("uuid = ?", entryUUID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateEntry inserts a new schedule entry
func (s *OnCallService) CreateEntry(entry *database.OnCallEntry) error {
	if err := validateTimeOfDay(entry.StartTime); err != nil {
		return fmt.Errorf("invalid start_time: %w", err)
	}
	if err := validateTimeOfDay(entry.EndTime); err != nil {
		return fmt.Errorf("invalid end_time: %w", err)
	}
	if entry.UUID == "" {
		entry.UUID = uuid.New().String()
	}
	return s.db.Create(entry).Error
}

// UpdateEntry updates a schedule entry by UUID
func (s *OnCallService) UpdateEntry(entryUUID string, updates map[string]interface{}) error {
	for _, key := range []string{"start_time", "end_time"} {
		if v, ok := updates[key].(string); ok {
			if err := validateTimeOfDay(v); err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
		}
	}
	result := s.db.Model(&database.OnCallEntry{}).Where("uuid = ?", entryUUID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteEntry deletes a schedule entry by UUID
func (s *OnCallService) DeleteEntry(entryUUID string) error {
	result := s.db.Where("uuid = ?", entryUUID).Delete(&database.OnCallEntry{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CurrentOnCall returns the highest-priority active entry whose window
// covers the given instant, or nil when nobody is on call.
func (s *OnCallService) CurrentOnCall(at time.Time) (*database.OnCallEntry, error) {
	var entries []database.OnCallEntry
	err := s.db.Where("active = ?", true).Order("priority ASC, id ASC").Find(&entries).Error
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entryCovers(&entries[i], at) {
			return &entries[i], nil
		}
	}
	return nil, nil
}

// entryCovers reports whether the entry's day and time-of-day window
// contains the instant. Windows whose end is before their start wrap
// past midnight (the wrapped portion belongs to the previous day's shift).
func entryCovers(entry *database.OnCallEntry, at time.Time) bool {
	start, err := parseTimeOfDay(entry.StartTime)
	if err != nil {
		return false
	}
	end, err := parseTimeOfDay(entry.EndTime)
	if err != nil {
		return false
	}

	minute := at.Hour()*60 + at.Minute()
	day := int(at.Weekday())

	if start <= end {
		return dayMatches(entry, day) && minute >= start && minute < end
	}

	// Wrapping shift, e.g. 22:00-06:00: match the evening part on the
	// shift's own day and the morning part on the following day.
	if minute >= start {
		return dayMatches(entry, day)
	}
	if minute < end {
		return dayMatches(entry, (day+6)%7)
	}
	return false
}

// dayMatches reports whether the entry is scheduled for the weekday.
// An entry with no configured days applies every day.
func dayMatches(entry *database.OnCallEntry, day int) bool {
	days := entry.Days()
	if len(days) == 0 {
		return true
	}
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

// parseTimeOfDay parses "HH:MM" into minutes since midnight
func parseTimeOfDay(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// validateTimeOfDay checks the "HH:MM" format
func validateTimeOfDay(value string) error {
	_, err := parseTimeOfDay(value)
	return err
}
