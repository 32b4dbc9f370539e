package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
	"github.com/urfave/cli/v3"
)

// Upstream holds CLI flags for the Remilia API client
type Upstream struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	retries   int
	rps       float64
	burst     int
}

func (x *Upstream) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "upstream-base-url",
			Usage:       "Base URL of the Remilia API",
			Category:    "Upstream",
			Value:       remilia.DefaultBaseURL,
			Sources:     cli.EnvVars("BEETLEBOARD_UPSTREAM_BASE_URL"),
			Destination: &x.baseURL,
		},
		&cli.StringFlag{
			Name:        "upstream-user-agent",
			Usage:       "User-Agent sent to the Remilia API",
			Category:    "Upstream",
			Value:       remilia.DefaultUserAgent,
			Sources:     cli.EnvVars("BEETLEBOARD_UPSTREAM_USER_AGENT"),
			Destination: &x.userAgent,
		},
		&cli.DurationFlag{
			Name:        "upstream-timeout",
			Usage:       "Timeout of one upstream request attempt",
			Category:    "Upstream",
			Value:       remilia.DefaultTimeout,
			Sources:     cli.EnvVars("BEETLEBOARD_UPSTREAM_TIMEOUT"),
			Destination: &x.timeout,
		},
		&cli.IntFlag{
			Name:        "upstream-retries",
			Usage:       "Attempts per upstream request",
			Category:    "Upstream",
			Value:       remilia.DefaultMaxRetries,
			Sources:     cli.EnvVars("BEETLEBOARD_UPSTREAM_RETRIES"),
			Destination: &x.retries,
		},
		&cli.FloatFlag{
			Name:        "upstream-rps",
			Usage:       "Client side request rate limit in requests per second (0 disables)",
			Category:    "Upstream",
			Sources:     cli.EnvVars("BEETLEBOARD_UPSTREAM_RPS"),
			Destination: &x.rps,
		},
		&cli.IntFlag{
			Name:        "upstream-burst",
			Usage:       "Burst size of the client side rate limit",
			Category:    "Upstream",
			Value:       15,
			Sources:     cli.EnvVars("BEETLEBOARD_UPSTREAM_BURST"),
			Destination: &x.burst,
		},
	}
}

func (x Upstream) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", x.baseURL),
		slog.Duration("timeout", x.timeout),
		slog.Int("retries", x.retries),
		slog.Float64("rps", x.rps),
	)
}

// Configure creates the upstream client
func (x *Upstream) Configure() (*remilia.Client, error) {
	if x.retries < 1 {
		return nil, goerr.Wrap(ErrInvalidConfig, "upstream-retries must be at least 1", goerr.V(OptionKey, x.retries))
	}
	if x.timeout <= 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "upstream-timeout must be positive", goerr.V(OptionKey, x.timeout))
	}

	opts := []remilia.Option{
		remilia.WithBaseURL(x.baseURL),
		remilia.WithUserAgent(x.userAgent),
		remilia.WithTimeout(x.timeout),
		remilia.WithMaxRetries(x.retries),
	}
	if x.rps > 0 {
		opts = append(opts, remilia.WithRateLimit(x.rps, max(x.burst, 1)))
	}
	return remilia.New(opts...), nil
}
