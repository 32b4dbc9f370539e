package slack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/slack-go/slack"
)

const (
	// DefaultSuppressWindow is how long an identical failure message stays muted
	DefaultSuppressWindow = 30 * time.Minute

	// Slack rejects section text longer than this
	maxSectionBytes = 3000
)

// Notifier posts sync failure reports to a Slack channel
type Notifier struct {
	api            *slack.Client
	channelID      string
	suppressWindow time.Duration
	now            func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// Option is a functional option for Notifier configuration
type Option func(*notifierConfig)

type notifierConfig struct {
	apiURL         string
	suppressWindow time.Duration
	now            func() time.Time
}

// WithAPIURL points the client at a different Slack API endpoint. The URL must end with a slash.
func WithAPIURL(url string) Option {
	return func(c *notifierConfig) {
		c.apiURL = url
	}
}

// WithSuppressWindow sets how long repeated identical failures are muted. Zero disables muting.
func WithSuppressWindow(d time.Duration) Option {
	return func(c *notifierConfig) {
		c.suppressWindow = d
	}
}

func withClock(now func() time.Time) Option {
	return func(c *notifierConfig) {
		c.now = now
	}
}

// New creates a Notifier with the provided bot token and destination channel
func New(token, channelID string, opts ...Option) (*Notifier, error) {
	if token == "" {
		return nil, goerr.New("Slack bot token is required")
	}
	if channelID == "" {
		return nil, goerr.New("Slack channel ID is required")
	}

	cfg := &notifierConfig{
		suppressWindow: DefaultSuppressWindow,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var clientOpts []slack.Option
	if cfg.apiURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(cfg.apiURL))
	}

	return &Notifier{
		api:            slack.New(token, clientOpts...),
		channelID:      channelID,
		suppressWindow: cfg.suppressWindow,
		now:            cfg.now,
		lastSent:       make(map[string]time.Time),
	}, nil
}

// NotifySyncFailure posts reason to the channel unless the same message was
// posted within the suppress window
func (n *Notifier) NotifySyncFailure(ctx context.Context, reason error) error {
	if reason == nil {
		return nil
	}

	msg := reason.Error()
	now := n.now()

	n.mu.Lock()
	if last, ok := n.lastSent[msg]; ok && n.suppressWindow > 0 && now.Sub(last) < n.suppressWindow {
		n.mu.Unlock()
		return nil
	}
	n.lastSent[msg] = now
	n.mu.Unlock()

	_, _, err := n.api.PostMessageContext(ctx, n.channelID,
		slack.MsgOptionText("Leaderboard sync failed: "+truncateToMaxBytes(msg, 200), false),
		slack.MsgOptionBlocks(buildFailureBlocks(reason, now)...),
	)
	if err != nil {
		n.mu.Lock()
		delete(n.lastSent, msg)
		n.mu.Unlock()
		return goerr.Wrap(err, "failed to post sync failure", goerr.V("channel_id", n.channelID))
	}
	return nil
}

func buildFailureBlocks(reason error, at time.Time) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "Leaderboard sync failed", false, false)),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, truncateToMaxBytes("```"+reason.Error()+"```", maxSectionBytes), false, false),
			nil, nil,
		),
	}

	var ge *goerr.Error
	if errors.As(reason, &ge) {
		values := ge.Values()
		if len(values) > 0 {
			keys := make([]string, 0, len(values))
			for k := range values {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			fields := make([]*slack.TextBlockObject, 0, len(keys))
			for _, k := range keys {
				// Slack allows at most 10 fields per section
				if len(fields) == 10 {
					break
				}
				text := truncateToMaxBytes(fmt.Sprintf("*%s*\n%v", k, values[k]), 2000)
				fields = append(fields, slack.NewTextBlockObject(slack.MarkdownType, text, false, false))
			}
			blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))
		}
	}

	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, "at "+at.UTC().Format(time.RFC3339), false, false),
	))
	return blocks
}

// truncateToMaxBytes cuts s to at most maxBytes without splitting a UTF-8 sequence
func truncateToMaxBytes(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
