package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/utils/async"
)

func TestDispatch(t *testing.T) {
	t.Run("runs task after caller context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		var taskErr error

		done := async.Dispatch(ctx, "test", func(ctx context.Context) error {
			close(started)
			time.Sleep(10 * time.Millisecond)
			taskErr = ctx.Err()
			return nil
		})
		<-started
		cancel()
		<-done

		gt.NoError(t, taskErr)
	})

	t.Run("recovers from panic", func(t *testing.T) {
		done := async.Dispatch(context.Background(), "panic", func(ctx context.Context) error {
			panic("boom")
		})
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("dispatch did not finish")
		}
	})

	t.Run("swallows task error", func(t *testing.T) {
		done := async.Dispatch(context.Background(), "error", func(ctx context.Context) error {
			return errors.New("failed")
		})
		<-done
	})
}
