package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/beetleboard/pkg/service/slack"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken       string
	channelID      string
	suppressWindow time.Duration
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token (for sync failure notifications)",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("BEETLEBOARD_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-channel-id",
			Usage:       "Slack channel ID receiving sync failure notifications",
			Category:    "Slack",
			Destination: &x.channelID,
			Sources:     cli.EnvVars("BEETLEBOARD_SLACK_CHANNEL_ID"),
		},
		&cli.DurationFlag{
			Name:        "slack-suppress-window",
			Usage:       "Mute identical failure notifications for this long",
			Category:    "Slack",
			Value:       slack.DefaultSuppressWindow,
			Destination: &x.suppressWindow,
			Sources:     cli.EnvVars("BEETLEBOARD_SLACK_SUPPRESS_WINDOW"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.String("channel-id", x.channelID),
	)
}

// IsConfigured reports whether both token and channel are set
func (x *Slack) IsConfigured() bool {
	return x.botToken != "" && x.channelID != ""
}

// Configure returns the notifier, or nil when Slack is not configured
func (x *Slack) Configure() (*slack.Notifier, error) {
	if !x.IsConfigured() {
		return nil, nil
	}
	return slack.New(x.botToken, x.channelID, slack.WithSuppressWindow(x.suppressWindow))
}
