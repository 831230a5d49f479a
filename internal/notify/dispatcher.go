package notify

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// OnCallTarget is the rule target that routes to the current on-call contact
const OnCallTarget = "on-call"

// Notifier sends one notification over a single transport. Implementations
// must return an error on transport failure instead of panicking.
type Notifier interface {
	Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error
}

// ContactResolver resolves the "on-call" target to a concrete contact
type ContactResolver interface {
	CurrentOnCall(at time.Time) (*database.OnCallEntry, error)
}

// Sender is the interface the alert service depends on
type Sender interface {
	Send(ctx context.Context, channel, target, title, body string, severity int) bool
}

// Dispatcher routes notifications to registered channel notifiers.
// Transport configuration is read from the database on every send so
// admin edits take effect without a restart.
type Dispatcher struct {
	db        *gorm.DB
	notifiers map[string]Notifier
	resolver  ContactResolver
	timeout   time.Duration

	// now is swappable so tests can pin the clock
	now func() time.Time
}

// NewDispatcher creates a dispatcher with no channels registered
func NewDispatcher(db *gorm.DB, resolver ContactResolver, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		db:        db,
		notifiers: make(map[string]Notifier),
		resolver:  resolver,
		timeout:   timeout,
		now:       time.Now,
	}
}

// SetClock overrides the dispatcher clock (tests only)
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// Register adds a notifier for a channel name
func (d *Dispatcher) Register(channel string, notifier Notifier) {
	d.notifiers[channel] = notifier
}

// Channels returns the registered channel names
func (d *Dispatcher) Channels() []string {
	channels := make([]string, 0, len(d.notifiers))
	for name := range d.notifiers {
		channels = append(channels, name)
	}
	return channels
}

// Send delivers a notification over the named channel. It returns false on
// unknown channels and on any transport failure; callers treat false as
// "retry later" (escalation) or "log and ignore" (confirmations).
func (d *Dispatcher) Send(ctx context.Context, channel, target, title, body string, severity int) bool {
	notifier, ok := d.notifiers[channel]
	if !ok {
		log.Printf("Notification dropped: unknown channel %q", channel)
		return false
	}

	settings, err := database.GetNotificationSettings(d.db)
	if err != nil {
		log.Printf("Notification failed: could not load settings: %v", err)
		return false
	}

	if target == OnCallTarget {
		target, ok = d.resolveOnCall(channel)
		if !ok {
			return false
		}
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := notifier.Send(sendCtx, settings, target, title, body, severity); err != nil {
		log.Printf("Notification send failed on channel %s: %v", channel, err)
		return false
	}
	return true
}

// resolveOnCall maps the on-call schedule to a channel-specific target.
// Push and slack channels keep their configured default topic/channel.
func (d *Dispatcher) resolveOnCall(channel string) (string, bool) {
	if channel == "push" || channel == "slack" {
		return "", true
	}
	if d.resolver == nil {
		log.Printf("Notification dropped: on-call target but no schedule resolver configured")
		return "", false
	}
	entry, err := d.resolver.CurrentOnCall(d.now())
	if err != nil {
		log.Printf("Notification dropped: on-call lookup failed: %v", err)
		return "", false
	}
	if entry == nil {
		log.Printf("Notification dropped: nobody is on call")
		return "", false
	}

	switch channel {
	case "email":
		if entry.Email == "" {
			log.Printf("Notification dropped: on-call contact %s has no email", entry.Name)
			return "", false
		}
		return entry.Email, true
	case "sms":
		if entry.Phone == "" {
			log.Printf("Notification dropped: on-call contact %s has no phone", entry.Name)
			return "", false
		}
		return entry.Phone, true
	default:
		return "", true
	}
}
