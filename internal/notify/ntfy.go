package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// NtfyNotifier sends push notifications through an ntfy server
type NtfyNotifier struct {
	client *http.Client
}

// NewNtfyNotifier creates a push notifier using the given HTTP client
// (a default client is used when nil)
func NewNtfyNotifier(client *http.Client) *NtfyNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &NtfyNotifier{client: client}
}

// Send publishes the notification to the configured topic. A non-empty
// target overrides the default topic from settings.
func (n *NtfyNotifier) Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error {
	if !settings.NtfyEnabled {
		return fmt.Errorf("push channel is disabled")
	}

	topic := settings.NtfyTopic
	if target != "" {
		topic = target
	}
	if topic == "" {
		return fmt.Errorf("no ntfy topic configured")
	}

	url := strings.TrimRight(settings.NtfyServer, "/") + "/" + topic
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Title", title)
	req.Header.Set("Priority", ntfyPriority(severity))
	if severity >= 4 {
		req.Header.Set("Tags", "rotating_light")
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}
	return nil
}

// ntfyPriority maps alert severity 1-5 onto the ntfy priority scale
func ntfyPriority(severity int) string {
	switch {
	case severity >= 5:
		return "urgent"
	case severity == 4:
		return "high"
	case severity == 3:
		return "default"
	default:
		return "low"
	}
}
