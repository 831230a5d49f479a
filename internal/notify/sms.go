package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// SMSNotifier delivers notifications through an HTTP SMS gateway
type SMSNotifier struct {
	client *http.Client
}

// NewSMSNotifier creates an SMS notifier using the given HTTP client
// (a default client is used when nil)
func NewSMSNotifier(client *http.Client) *SMSNotifier {
	if client == nil {
		client = http.DefaultClient
	}
	return &SMSNotifier{client: client}
}

// smsPayload is the JSON body posted to the gateway
type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send posts the notification to the configured gateway. The message is
// the title plus a truncated body to stay within SMS limits.
func (s *SMSNotifier) Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error {
	if !settings.SMSEnabled {
		return fmt.Errorf("sms channel is disabled")
	}
	if settings.SMSGatewayURL == "" {
		return fmt.Errorf("sms gateway is not configured")
	}
	if target == "" {
		return fmt.Errorf("no recipient phone number")
	}

	message := title + ": " + body
	if len(message) > 300 {
		message = message[:297] + "..."
	}

	payload, err := json.Marshal(smsPayload{To: target, Message: message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.SMSGatewayURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if settings.SMSGatewayKey != "" {
		req.Header.Set("Authorization", "Bearer "+settings.SMSGatewayKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
