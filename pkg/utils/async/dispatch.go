package async

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

// Dispatch runs task in a new goroutine detached from the caller's cancellation.
// The request-scoped logger is carried over; errors and panics are logged and reported.
func Dispatch(ctx context.Context, name string, task func(ctx context.Context) error) <-chan struct{} {
	bgCtx := logging.With(context.Background(), logging.From(ctx).With("task", name))
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				_ = errutil.Handle(bgCtx, goerr.New("panic in async task", goerr.V("panic", r)), "async task panicked")
			}
		}()

		if err := task(bgCtx); err != nil {
			_ = errutil.Handle(bgCtx, err, "async task failed")
		}
	}()

	return done
}
