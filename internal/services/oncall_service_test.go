package services

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// at builds an instant on the given weekday at HH:MM. The base week is
// Sunday 2026-03-01 through Saturday 2026-03-07.
func at(weekday time.Weekday, hour, minute int) time.Time {
	return time.Date(2026, 3, 1+int(weekday), hour, minute, 0, 0, time.UTC)
}

func days(d ...int) database.JSONB {
	raw := make([]interface{}, len(d))
	for i, v := range d {
		raw[i] = float64(v)
	}
	return database.JSONB{"days": raw}
}

func TestOnCallService_CreateEntry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	entry := &database.OnCallEntry{
		Name:      "Alice",
		Email:     "alice@example.com",
		StartTime: "09:00",
		EndTime:   "17:00",
		Priority:  1,
		Active:    true,
	}
	if err := svc.CreateEntry(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.UUID == "" {
		t.Error("expected a UUID to be assigned")
	}

	fetched, err := svc.GetEntry(entry.UUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fetched.Name != "Alice" {
		t.Errorf("expected Alice, got %s", fetched.Name)
	}
}

func TestOnCallService_CreateEntry_RejectsBadTimes(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	bad := []database.OnCallEntry{
		{Name: "x", StartTime: "25:00", EndTime: "17:00"},
		{Name: "x", StartTime: "09:00", EndTime: "9am"},
		{Name: "x", StartTime: "", EndTime: "17:00"},
	}
	for _, entry := range bad {
		e := entry
		if err := svc.CreateEntry(&e); err == nil {
			t.Errorf("expected error for times %q-%q", entry.StartTime, entry.EndTime)
		}
	}
}

func TestOnCallService_CurrentOnCall_DayWindow(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	// Weekday business hours only (Mon-Fri).
	svc.CreateEntry(&database.OnCallEntry{
		Name: "Alice", Email: "alice@example.com",
		StartTime: "09:00", EndTime: "17:00",
		DaysOfWeek: days(1, 2, 3, 4, 5),
		Priority:   1, Active: true,
	})

	entry, err := svc.CurrentOnCall(at(time.Monday, 10, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry == nil || entry.Name != "Alice" {
		t.Errorf("expected Alice on Monday 10:00, got %+v", entry)
	}

	// Outside the time-of-day window.
	if entry, _ := svc.CurrentOnCall(at(time.Monday, 18, 0)); entry != nil {
		t.Errorf("expected nobody at 18:00, got %+v", entry)
	}
	// End boundary is exclusive.
	if entry, _ := svc.CurrentOnCall(at(time.Monday, 17, 0)); entry != nil {
		t.Errorf("expected nobody at exactly 17:00, got %+v", entry)
	}
	// Start boundary is inclusive.
	if entry, _ := svc.CurrentOnCall(at(time.Monday, 9, 0)); entry == nil {
		t.Error("expected coverage at exactly 09:00")
	}
	// Wrong weekday.
	if entry, _ := svc.CurrentOnCall(at(time.Sunday, 10, 0)); entry != nil {
		t.Errorf("expected nobody on Sunday, got %+v", entry)
	}
}

func TestOnCallService_CurrentOnCall_MidnightWrap(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	// Night shift Friday 22:00 through Saturday 06:00.
	svc.CreateEntry(&database.OnCallEntry{
		Name: "Bob", Phone: "+15550001",
		StartTime: "22:00", EndTime: "06:00",
		DaysOfWeek: days(5),
		Priority:   1, Active: true,
	})

	if entry, _ := svc.CurrentOnCall(at(time.Friday, 23, 0)); entry == nil || entry.Name != "Bob" {
		t.Errorf("expected Bob on Friday 23:00, got %+v", entry)
	}
	// The wrapped morning belongs to Friday's shift.
	if entry, _ := svc.CurrentOnCall(at(time.Saturday, 2, 0)); entry == nil || entry.Name != "Bob" {
		t.Errorf("expected Bob on Saturday 02:00, got %+v", entry)
	}
	if entry, _ := svc.CurrentOnCall(at(time.Saturday, 7, 0)); entry != nil {
		t.Errorf("expected nobody on Saturday 07:00, got %+v", entry)
	}
	// Thursday night is not covered.
	if entry, _ := svc.CurrentOnCall(at(time.Friday, 2, 0)); entry != nil {
		t.Errorf("expected nobody on Friday 02:00, got %+v", entry)
	}
}

func TestOnCallService_CurrentOnCall_PriorityAndFallback(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	// No days configured: covers every day.
	svc.CreateEntry(&database.OnCallEntry{
		Name: "Fallback", Email: "ops@example.com",
		StartTime: "00:00", EndTime: "23:59",
		Priority: 10, Active: true,
	})
	svc.CreateEntry(&database.OnCallEntry{
		Name: "Primary", Email: "alice@example.com",
		StartTime: "09:00", EndTime: "17:00",
		Priority: 1, Active: true,
	})

	if entry, _ := svc.CurrentOnCall(at(time.Tuesday, 10, 0)); entry == nil || entry.Name != "Primary" {
		t.Errorf("expected Primary during business hours, got %+v", entry)
	}
	if entry, _ := svc.CurrentOnCall(at(time.Tuesday, 20, 0)); entry == nil || entry.Name != "Fallback" {
		t.Errorf("expected Fallback in the evening, got %+v", entry)
	}
}

func TestOnCallService_CurrentOnCall_IgnoresInactive(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	svc.CreateEntry(&database.OnCallEntry{
		Name: "Disabled", StartTime: "00:00", EndTime: "23:59",
		Priority: 1, Active: false,
	})

	if entry, _ := svc.CurrentOnCall(at(time.Tuesday, 10, 0)); entry != nil {
		t.Errorf("expected inactive entries to be skipped, got %+v", entry)
	}
}

func TestOnCallService_UpdateAndDeleteEntry(t *testing.T) {
	db := setupTestDB(t)
	svc := NewOnCallService(db)

	entry := &database.OnCallEntry{
		Name: "Alice", StartTime: "09:00", EndTime: "17:00", Active: true,
	}
	if err := svc.CreateEntry(entry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.UpdateEntry(entry.UUID, map[string]interface{}{"end_time": "19:00"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	updated, _ := svc.GetEntry(entry.UUID)
	if updated.EndTime != "19:00" {
		t.Errorf("expected end_time 19:00, got %s", updated.EndTime)
	}

	// Updates validate times too.
	if err := svc.UpdateEntry(entry.UUID, map[string]interface{}{"end_time": "26:00"}); err == nil {
		t.Error("expected error for invalid end_time")
	}

	if err := svc.DeleteEntry(entry.UUID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.DeleteEntry(entry.UUID); err != gorm.ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound on double delete, got %v", err)
	}
	if err := svc.UpdateEntry("no-such-uuid", map[string]interface{}{"name": "x"}); err != gorm.ErrRecordNotFound {
		t.Errorf("expected ErrRecordNotFound for unknown entry, got %v", err)
	}
}
