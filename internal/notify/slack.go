package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/pulsewatch/pulsewatch/internal/database"
)

// slackPoster is the slice of the Slack API the notifier uses
type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// SlackNotifier posts alert notifications to a Slack channel
type SlackNotifier struct {
	// newClient builds a client from the bot token; replaced in tests
	newClient func(token string) slackPoster
}

// NewSlackNotifier creates a Slack channel notifier
func NewSlackNotifier() *SlackNotifier {
	return &SlackNotifier{
		newClient: func(token string) slackPoster {
			return slack.New(token)
		},
	}
}

// Send posts the notification as a colored attachment. A non-empty target
// overrides the default channel from settings.
func (s *SlackNotifier) Send(ctx context.Context, settings *database.NotificationSettings, target, title, body string, severity int) error {
	if !settings.SlackEnabled {
		return fmt.Errorf("slack channel is disabled")
	}
	if settings.SlackBotToken == "" {
		return fmt.Errorf("slack bot token is not configured")
	}

	channel := settings.SlackChannel
	if target != "" {
		channel = target
	}
	if channel == "" {
		return fmt.Errorf("no slack channel configured")
	}

	attachment := slack.Attachment{
		Color: severityColor(severity),
		Title: title,
		Text:  body,
	}

	client := s.newClient(settings.SlackBotToken)
	_, _, err := client.PostMessageContext(ctx, channel, slack.MsgOptionAttachments(attachment))
	return err
}

// severityColor maps severity 1-5 onto Slack attachment colors
func severityColor(severity int) string {
	switch {
	case severity >= 5:
		return "#e01e5a" // red
	case severity == 4:
		return "#ec9a00" // orange
	case severity == 3:
		return "#e8b423" // yellow
	default:
		return "#2eb67d" // green
	}
}
