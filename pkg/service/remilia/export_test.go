package remilia

import (
	"context"
	"time"
)

// WithSleep replaces the retry wait so tests can record delays without waiting
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

var EndpointLabel = endpointLabel
