package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	if err := db.AutoMigrate(&database.NotificationSettings{}, &database.OnCallEntry{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	if err := db.Create(&database.NotificationSettings{NtfyServer: "https://ntfy.sh", NtfyEnabled: true}).Error; err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}
	return db
}

// fakeNotifier records the last send and returns a configurable error
type fakeNotifier struct {
	err      error
	target   string
	title    string
	body     string
	severity int
	calls    int
}

func (f *fakeNotifier) Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error {
	f.calls++
	f.target = target
	f.title = title
	f.body = body
	f.severity = severity
	return f.err
}

// blockingNotifier waits for the context to expire
type blockingNotifier struct{}

func (b *blockingNotifier) Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error {
	<-ctx.Done()
	return ctx.Err()
}

// fixedResolver returns a static on-call entry and records the instant
// it was asked about
type fixedResolver struct {
	entry   *database.OnCallEntry
	err     error
	askedAt time.Time
}

func (r *fixedResolver) CurrentOnCall(at time.Time) (*database.OnCallEntry, error) {
	r.askedAt = at
	return r.entry, r.err
}

func TestDispatcher_UnknownChannel(t *testing.T) {
	d := NewDispatcher(setupTestDB(t), nil, time.Second)

	if d.Send(context.Background(), "carrier-pigeon", "", "title", "body", 3) {
		t.Error("expected false for an unregistered channel")
	}
}

func TestDispatcher_SendSuccess(t *testing.T) {
	d := NewDispatcher(setupTestDB(t), nil, time.Second)
	notifier := &fakeNotifier{}
	d.Register("push", notifier)

	if !d.Send(context.Background(), "push", "topic-1", "Database down", "details", 5) {
		t.Fatal("expected send to succeed")
	}
	if notifier.calls != 1 {
		t.Fatalf("expected 1 call, got %d", notifier.calls)
	}
	if notifier.target != "topic-1" || notifier.title != "Database down" || notifier.severity != 5 {
		t.Errorf("unexpected send: %+v", notifier)
	}
}

func TestDispatcher_SendFailure(t *testing.T) {
	d := NewDispatcher(setupTestDB(t), nil, time.Second)
	d.Register("push", &fakeNotifier{err: errors.New("boom")})

	if d.Send(context.Background(), "push", "", "title", "body", 3) {
		t.Error("expected false when the notifier errors")
	}
}

func TestDispatcher_Timeout(t *testing.T) {
	d := NewDispatcher(setupTestDB(t), nil, 50*time.Millisecond)
	d.Register("push", &blockingNotifier{})

	start := time.Now()
	if d.Send(context.Background(), "push", "", "title", "body", 3) {
		t.Error("expected false when the notifier exceeds the timeout")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("send should be bounded by the timeout, took %v", elapsed)
	}
}

func TestDispatcher_OnCallResolution(t *testing.T) {
	entry := &database.OnCallEntry{Name: "Alice", Email: "alice@example.com", Phone: "+15550001"}
	d := NewDispatcher(setupTestDB(t), &fixedResolver{entry: entry}, time.Second)

	email := &fakeNotifier{}
	sms := &fakeNotifier{}
	push := &fakeNotifier{}
	d.Register("email", email)
	d.Register("sms", sms)
	d.Register("push", push)

	ctx := context.Background()

	if !d.Send(ctx, "email", OnCallTarget, "t", "b", 4) {
		t.Fatal("expected email send to succeed")
	}
	if email.target != "alice@example.com" {
		t.Errorf("expected on-call email, got %q", email.target)
	}

	if !d.Send(ctx, "sms", OnCallTarget, "t", "b", 4) {
		t.Fatal("expected sms send to succeed")
	}
	if sms.target != "+15550001" {
		t.Errorf("expected on-call phone, got %q", sms.target)
	}

	// Push keeps its configured default topic instead of a contact.
	if !d.Send(ctx, "push", OnCallTarget, "t", "b", 4) {
		t.Fatal("expected push send to succeed")
	}
	if push.target != "" {
		t.Errorf("expected empty target for push, got %q", push.target)
	}
}

func TestDispatcher_OnCallUnavailable(t *testing.T) {
	ctx := context.Background()

	// No resolver wired.
	d := NewDispatcher(setupTestDB(t), nil, time.Second)
	d.Register("email", &fakeNotifier{})
	if d.Send(ctx, "email", OnCallTarget, "t", "b", 4) {
		t.Error("expected false without a schedule resolver")
	}

	// Nobody on call.
	d = NewDispatcher(setupTestDB(t), &fixedResolver{}, time.Second)
	d.Register("email", &fakeNotifier{})
	if d.Send(ctx, "email", OnCallTarget, "t", "b", 4) {
		t.Error("expected false when nobody is on call")
	}

	// Lookup failure.
	d = NewDispatcher(setupTestDB(t), &fixedResolver{err: errors.New("db gone")}, time.Second)
	d.Register("email", &fakeNotifier{})
	if d.Send(ctx, "email", OnCallTarget, "t", "b", 4) {
		t.Error("expected false when the lookup fails")
	}

	// Contact without the needed detail.
	d = NewDispatcher(setupTestDB(t), &fixedResolver{entry: &database.OnCallEntry{Name: "NoPhone", Email: "x@example.com"}}, time.Second)
	sms := &fakeNotifier{}
	d.Register("sms", sms)
	if d.Send(ctx, "sms", OnCallTarget, "t", "b", 4) {
		t.Error("expected false when the contact has no phone")
	}
	if sms.calls != 0 {
		t.Errorf("notifier must not be called, got %d calls", sms.calls)
	}
}

func TestDispatcher_OnCallUsesDispatcherClock(t *testing.T) {
	entry := &database.OnCallEntry{Name: "Alice", Email: "alice@example.com"}
	resolver := &fixedResolver{entry: entry}
	d := NewDispatcher(setupTestDB(t), resolver, time.Second)
	d.Register("email", &fakeNotifier{})

	pinned := time.Date(2026, 3, 6, 23, 30, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return pinned })

	if !d.Send(context.Background(), "email", OnCallTarget, "t", "b", 4) {
		t.Fatal("expected send to succeed")
	}
	if !resolver.askedAt.Equal(pinned) {
		t.Errorf("expected schedule lookup at %v, got %v", pinned, resolver.askedAt)
	}
}

func TestDispatcher_Channels(t *testing.T) {
	d := NewDispatcher(setupTestDB(t), nil, time.Second)
	d.Register("push", &fakeNotifier{})
	d.Register("email", &fakeNotifier{})

	channels := d.Channels()
	if len(channels) != 2 {
		t.Errorf("expected 2 channels, got %v", channels)
	}
}
