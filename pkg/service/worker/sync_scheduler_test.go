package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/service/worker"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
)

type fakeSyncer struct {
	mu       sync.Mutex
	runs     atomic.Int32
	passes   []model.SyncPass
	block    chan struct{}
	started  chan struct{}
	err      error
	passErr  error
	panicky  bool
	runLimit int
}

func (f *fakeSyncer) Run(ctx context.Context) (*model.Snapshot, error) {
	f.runs.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return &model.Snapshot{}, nil
}

func (f *fakeSyncer) RunPass(ctx context.Context, pass model.SyncPass) (*usecase.PassResult, error) {
	f.mu.Lock()
	f.passes = append(f.passes, pass)
	f.mu.Unlock()
	if f.panicky {
		panic("pass crashed")
	}
	if f.passErr != nil {
		return nil, f.passErr
	}
	result := &usecase.PassResult{Pass: pass, Next: model.NextPass(pass)}
	if result.Next == nil {
		result.Snapshot = &model.Snapshot{}
	}
	return result, nil
}

func (f *fakeSyncer) RunPasses(ctx context.Context, limit int) (*model.Snapshot, error) {
	f.runLimit = limit
	return &model.Snapshot{}, nil
}

func (f *fakeSyncer) passCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.passes)
}

type fakeResetter struct{ resets atomic.Int32 }

func (r *fakeResetter) Reset() { r.resets.Add(1) }

type fakeNotifier struct{ errs []error }

func (n *fakeNotifier) NotifySyncFailure(ctx context.Context, reason error) error {
	n.errs = append(n.errs, reason)
	return nil
}

func TestNewSyncScheduler(t *testing.T) {
	t.Run("rejects invalid schedule", func(t *testing.T) {
		_, err := worker.NewSyncScheduler(&fakeSyncer{}, "not a cron")
		gt.Value(t, err).NotNil()
	})

	t.Run("empty schedule uses default", func(t *testing.T) {
		s, err := worker.NewSyncScheduler(&fakeSyncer{}, "")
		gt.NoError(t, err).Required()
		gt.Value(t, s.Status().Schedule).Equal(worker.DefaultSchedule)
		gt.Value(t, s.Status().Timezone).Equal("UTC")
	})
}

func TestTriggerManual(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects while a sync is in progress", func(t *testing.T) {
		syncer := &fakeSyncer{block: make(chan struct{}), started: make(chan struct{})}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		done := make(chan error)
		go func() {
			_, err := s.TriggerManual(ctx)
			done <- err
		}()
		<-syncer.started

		status := s.Status()
		gt.B(t, status.IsSyncInProgress).True()
		gt.B(t, status.IsManualSyncRunning).True()

		_, err = s.TriggerManual(ctx)
		gt.B(t, errors.Is(err, usecase.ErrSyncInProgress)).True()

		// scheduled ticks are skipped too
		syncer.started = nil
		s.RunScheduled(ctx)
		gt.Value(t, syncer.runs.Load()).Equal(int32(1))

		close(syncer.block)
		gt.NoError(t, <-done)
		gt.B(t, s.Status().IsSyncInProgress).False()
		gt.Value(t, s.Status().LastSuccess).NotNil()
	})

	t.Run("failure resets store and notifies", func(t *testing.T) {
		syncer := &fakeSyncer{err: goerr.Wrap(usecase.ErrIncompleteSync, "gate")}
		resetter := &fakeResetter{}
		notifier := &fakeNotifier{}
		s, err := worker.NewSyncScheduler(syncer, "", worker.WithResetter(resetter), worker.WithNotifier(notifier))
		gt.NoError(t, err).Required()

		_, err = s.TriggerManual(ctx)
		gt.B(t, errors.Is(err, usecase.ErrIncompleteSync)).True()
		gt.Value(t, resetter.resets.Load()).Equal(int32(1))
		gt.Array(t, notifier.errs).Length(1)
		gt.String(t, s.Status().LastError).Contains("incomplete sync")
		gt.B(t, s.Status().IsSyncInProgress).False()
	})
}

func TestScheduledRunUsesPasses(t *testing.T) {
	syncer := &fakeSyncer{}
	s, err := worker.NewSyncScheduler(syncer, "", worker.WithPassLimit(500))
	gt.NoError(t, err).Required()

	s.RunScheduled(context.Background())
	gt.Value(t, syncer.runLimit).Equal(500)
	gt.Value(t, syncer.runs.Load()).Equal(int32(0))
}

func TestTriggerPass(t *testing.T) {
	ctx := context.Background()

	t.Run("flag held from first pass until final pass", func(t *testing.T) {
		syncer := &fakeSyncer{}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		first := model.PlanPasses(30, 10)
		result, err := s.TriggerPass(ctx, *first)
		gt.NoError(t, err).Required()
		gt.B(t, s.Status().IsSyncInProgress).True()

		_, err = s.TriggerManual(ctx)
		gt.B(t, errors.Is(err, usecase.ErrSyncInProgress)).True()

		result, err = s.TriggerPass(ctx, *result.Next)
		gt.NoError(t, err).Required()
		result, err = s.TriggerPass(ctx, *result.Next)
		gt.NoError(t, err).Required()
		gt.Value(t, result.Next).Nil()
		gt.B(t, s.Status().IsSyncInProgress).False()
	})

	t.Run("first pass rejected while in progress", func(t *testing.T) {
		syncer := &fakeSyncer{}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		_, err = s.TriggerPass(ctx, *model.PlanPasses(30, 10))
		gt.NoError(t, err).Required()
		_, err = s.TriggerPass(ctx, *model.PlanPasses(30, 10))
		gt.B(t, errors.Is(err, usecase.ErrSyncInProgress)).True()
	})

	t.Run("failure releases flag", func(t *testing.T) {
		syncer := &fakeSyncer{passErr: goerr.New("boom")}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		_, err = s.TriggerPass(ctx, *model.PlanPasses(30, 10))
		gt.Value(t, err).NotNil()
		gt.B(t, s.Status().IsSyncInProgress).False()
	})

	t.Run("later pass rejected while a manual sync runs", func(t *testing.T) {
		syncer := &fakeSyncer{block: make(chan struct{}), started: make(chan struct{})}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		done := make(chan error)
		go func() {
			_, err := s.TriggerManual(ctx)
			done <- err
		}()
		<-syncer.started

		_, err = s.TriggerPass(ctx, model.SyncPass{Pass: 2, TotalPasses: 3, Offset: 10, Limit: 10})
		gt.B(t, errors.Is(err, usecase.ErrSyncInProgress)).True()
		gt.Value(t, syncer.passCount()).Equal(0)
		gt.B(t, s.Status().IsSyncInProgress).True()

		close(syncer.block)
		gt.NoError(t, <-done)
		gt.B(t, s.Status().IsSyncInProgress).False()
	})

	t.Run("later pass continues after a restart", func(t *testing.T) {
		syncer := &fakeSyncer{}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		result, err := s.TriggerPass(ctx, model.SyncPass{Pass: 2, TotalPasses: 3, Offset: 10, Limit: 10})
		gt.NoError(t, err).Required()
		gt.B(t, s.Status().IsSyncInProgress).True()

		_, err = s.TriggerPass(ctx, *result.Next)
		gt.NoError(t, err).Required()
		gt.B(t, s.Status().IsSyncInProgress).False()
	})

	t.Run("panic releases flag", func(t *testing.T) {
		syncer := &fakeSyncer{panicky: true}
		s, err := worker.NewSyncScheduler(syncer, "")
		gt.NoError(t, err).Required()

		func() {
			defer func() {
				gt.Value(t, recover()).NotNil()
			}()
			_, _ = s.TriggerPass(ctx, *model.PlanPasses(30, 10))
		}()
		gt.B(t, s.Status().IsSyncInProgress).False()

		_, err = s.TriggerManual(ctx)
		gt.NoError(t, err)
	})

	t.Run("chained passes run to completion", func(t *testing.T) {
		syncer := &fakeSyncer{}
		s, err := worker.NewSyncScheduler(syncer, "", worker.WithChainPasses(true))
		gt.NoError(t, err).Required()

		_, err = s.TriggerPass(ctx, *model.PlanPasses(30, 10))
		gt.NoError(t, err).Required()

		deadline := time.Now().Add(5 * time.Second)
		for s.Status().IsSyncInProgress && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}
		gt.B(t, s.Status().IsSyncInProgress).False()
		gt.Value(t, syncer.passCount()).Equal(3)
	})
}

func TestSchedulerStartStop(t *testing.T) {
	syncer := &fakeSyncer{}
	s, err := worker.NewSyncScheduler(syncer, "0 0 1 1 *", worker.WithInitialDelay(10*time.Millisecond))
	gt.NoError(t, err).Required()

	gt.NoError(t, s.Start(context.Background())).Required()
	gt.B(t, s.Status().IsRunning).True()

	deadline := time.Now().Add(5 * time.Second)
	for syncer.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	gt.Value(t, syncer.runs.Load()).Equal(int32(1))

	s.Stop()
	gt.B(t, s.Status().IsRunning).False()
}
