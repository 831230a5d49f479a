package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// EmailNotifier sends notifications over SMTP. The send function is
// swappable for tests.
type EmailNotifier struct {
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates an SMTP email notifier
func NewEmailNotifier() *EmailNotifier {
	return &EmailNotifier{sendMail: smtp.SendMail}
}

// Send delivers the notification to the target address. The context
// deadline bounds the whole SMTP exchange via a dial check first; smtp.SendMail
// itself has no context support.
func (e *EmailNotifier) Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error {
	if !settings.EmailEnabled {
		return fmt.Errorf("email channel is disabled")
	}
	if settings.SMTPHost == "" || settings.SMTPFrom == "" {
		return fmt.Errorf("SMTP is not configured")
	}
	if target == "" {
		return fmt.Errorf("no recipient address")
	}

	addr := net.JoinHostPort(settings.SMTPHost, strconv.Itoa(settings.SMTPPort))

	// Probe reachability within the context deadline before the
	// context-unaware SMTP exchange.
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("SMTP server unreachable: %w", err)
	}
	conn.Close()

	var auth smtp.Auth
	if settings.SMTPUser != "" {
		auth = smtp.PlainAuth("", settings.SMTPUser, settings.SMTPPassword, settings.SMTPHost)
	}

	msg := buildEmailMessage(settings.SMTPFrom, target, severityPrefix(severity)+title, body)
	return e.sendMail(addr, auth, settings.SMTPFrom, []string{target}, msg)
}

// buildEmailMessage assembles a minimal RFC 5322 plain-text message
func buildEmailMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// severityPrefix prefixes email subjects for quick triage in inboxes
func severityPrefix(severity int) string {
	switch {
	case severity >= 5:
		return "[CRITICAL] "
	case severity == 4:
		return "[HIGH] "
	case severity == 3:
		return "[WARNING] "
	default:
		return "[INFO] "
	}
}
