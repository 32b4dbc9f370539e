package remilia

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/secmon-lab/beetleboard/pkg/utils/metrics"
	"github.com/secmon-lab/beetleboard/pkg/utils/safe"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL    = "https://remilia.com/api"
	DefaultUserAgent  = "RemiliaStats/2.0"
	DefaultTimeout    = 20 * time.Second
	DefaultMaxRetries = 3

	rateLimitStep     = 1500 * time.Millisecond
	rateLimitMaxDelay = 10 * time.Second
	backoffBase       = time.Second
	backoffMaxDelay   = 8 * time.Second

	maxBodySize = 32 << 20
)

var (
	// ErrUpstream is wrapped by every failure that exhausted the retry budget
	ErrUpstream = goerr.New("upstream request failed")

	// ErrInvalidPayload means a 2xx response could not be decoded into the expected shape
	ErrInvalidPayload = goerr.New("invalid upstream payload")
)

// StatusError is a non-2xx upstream response
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client implements Service over HTTP with retries
type Client struct {
	baseURL    string
	userAgent  string
	timeout    time.Duration
	maxRetries int
	httpClient *http.Client
	limiter    *rate.Limiter
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ Service = &Client{}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithTimeout sets the per-attempt timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit paces attempts to rps requests per second. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		httpClient: &http.Client{},
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) GetProfile(ctx context.Context, username string) (*Profile, error) {
	endpoint := c.baseURL + "/profile/~" + url.PathEscape(username)

	var profile Profile
	if err := c.FetchJSON(ctx, endpoint, &profile); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch profile", goerr.V("username", username))
	}
	if profile.User == nil {
		return nil, goerr.Wrap(ErrInvalidPayload, "profile has no user object", goerr.V("username", username))
	}
	return &profile, nil
}

func (c *Client) ListFriends(ctx context.Context, username string, page, limit int) ([]Friend, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("username", username)
	endpoint := c.baseURL + "/friends?" + q.Encode()

	var resp friendsResponse
	if err := c.FetchJSON(ctx, endpoint, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to fetch friends", goerr.V("username", username), goerr.V("page", page))
	}
	if resp.Friends == nil {
		return nil, goerr.Wrap(ErrInvalidPayload, "friends response has no friends array",
			goerr.V("username", username), goerr.V("page", page))
	}
	return *resp.Friends, nil
}

// FetchJSON GETs target and decodes the body into out. 429 responses wait
// linearly longer per attempt; other failures back off exponentially. An
// undecodable 2xx body fails with ErrInvalidPayload and is not retried.
func (c *Client) FetchJSON(ctx context.Context, target string, out any) error {
	label := endpointLabel(target)
	logger := logging.From(ctx)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return goerr.Wrap(err, "rate limiter wait aborted", goerr.V("url", target))
			}
		}

		body, err := c.attempt(ctx, target)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				metrics.UpstreamRequest(label, "invalid")
				return goerr.Wrap(ErrInvalidPayload, "failed to decode upstream body",
					goerr.V("url", target), goerr.V("cause", err.Error()))
			}
			metrics.UpstreamRequest(label, "ok")
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "upstream request cancelled", goerr.V("url", target))
		}

		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			metrics.UpstreamRequest(label, "rate_limited")
			if attempt == c.maxRetries {
				break
			}
			delay := min(rateLimitStep*time.Duration(attempt), rateLimitMaxDelay)
			metrics.UpstreamRetry("rate_limited")
			logger.Warn("Rate limited by upstream",
				slog.String("url", target),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
			if err := c.sleep(ctx, delay); err != nil {
				return goerr.Wrap(err, "upstream retry wait aborted", goerr.V("url", target))
			}
			continue
		}

		metrics.UpstreamRequest(label, "error")
		if attempt == c.maxRetries {
			break
		}
		delay := min(backoffBase<<(attempt-1), backoffMaxDelay)
		metrics.UpstreamRetry("error")
		logger.Warn("Upstream fetch failed, retrying",
			slog.String("url", target),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.Any("error", err))
		if err := c.sleep(ctx, delay); err != nil {
			return goerr.Wrap(err, "upstream retry wait aborted", goerr.V("url", target))
		}
	}

	return goerr.Wrap(fmt.Errorf("%w: %w", ErrUpstream, lastErr), "upstream retries exhausted",
		goerr.V("url", target), goerr.V("attempts", c.maxRetries))
}

func (c *Client) attempt(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.V("url", target))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to send request", goerr.V("url", target))
	}
	defer safe.DrainAndClose(ctx, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read body", goerr.V("url", target))
	}
	return body, nil
}

// endpointLabel reduces a URL to its first path segment below the API root for metrics
func endpointLabel(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return "unknown"
	}
	path := strings.TrimPrefix(u.Path, "/api")
	path = strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "root"
	}
	return path
}
