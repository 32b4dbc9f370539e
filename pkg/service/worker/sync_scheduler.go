package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
	"github.com/secmon-lab/beetleboard/pkg/utils/async"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

const (
	DefaultSchedule     = "0 */4 * * *"
	DefaultInitialDelay = 10 * time.Second
)

// Syncer is the sync use case as driven by the scheduler
type Syncer interface {
	Run(ctx context.Context) (*model.Snapshot, error)
	RunPass(ctx context.Context, pass model.SyncPass) (*usecase.PassResult, error)
	RunPasses(ctx context.Context, limit int) (*model.Snapshot, error)
}

// Resetter drops a possibly broken store connection
type Resetter interface {
	Reset()
}

// SyncScheduler runs the sync on a cron schedule and guards manual triggers.
//
// Architecture assumptions:
// - Single server instance; the in-progress flag is process local
// - Cross-process coordination is left to the external scheduler
type SyncScheduler struct {
	syncer       Syncer
	schedule     string
	initialDelay time.Duration
	passLimit    int
	chainPasses  bool
	resetter     Resetter
	notifier     interfaces.Notifier
	now          func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	mu          sync.Mutex
	started     bool
	stopped     bool
	inProgress  bool
	holder      syncHolder
	nextRun     *time.Time
	lastRun     *time.Time
	lastSuccess *time.Time
	lastError   string
}

type SchedulerOption func(*SyncScheduler)

// syncHolder is the kind of sync holding the in-progress flag
type syncHolder int

const (
	holderScheduled syncHolder = iota
	holderManual
	holderPass
)

func WithInitialDelay(d time.Duration) SchedulerOption {
	return func(s *SyncScheduler) {
		s.initialDelay = d
	}
}

// WithPassLimit makes scheduled runs split the population into passes
func WithPassLimit(limit int) SchedulerOption {
	return func(s *SyncScheduler) {
		s.passLimit = limit
	}
}

// WithChainPasses dispatches the next pass in the background after each non-final pass
func WithChainPasses(enabled bool) SchedulerOption {
	return func(s *SyncScheduler) {
		s.chainPasses = enabled
	}
}

func WithResetter(r Resetter) SchedulerOption {
	return func(s *SyncScheduler) {
		s.resetter = r
	}
}

func WithNotifier(n interfaces.Notifier) SchedulerOption {
	return func(s *SyncScheduler) {
		s.notifier = n
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *SyncScheduler) {
		s.now = now
	}
}

// NewSyncScheduler creates a scheduler for the cron expression schedule, evaluated in UTC
func NewSyncScheduler(syncer Syncer, schedule string, opts ...SchedulerOption) (*SyncScheduler, error) {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if !gronx.IsValid(schedule) {
		return nil, goerr.New("invalid sync schedule", goerr.V("schedule", schedule))
	}

	s := &SyncScheduler{
		syncer:       syncer,
		schedule:     schedule,
		initialDelay: DefaultInitialDelay,
		now:          time.Now,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins the schedule loop in the background. The first run happens
// after the initial delay.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return goerr.New("sync scheduler already started")
	}
	s.started = true
	s.mu.Unlock()

	logging.Default().Info("Sync scheduler starting",
		"schedule", s.schedule,
		"initial_delay", s.initialDelay.String())

	go s.loop(ctx)
	return nil
}

// Stop signals the loop to stop and waits for a running scheduled sync to return
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	logging.Default().Info("Sync scheduler stopping")
	close(s.stopCh)
	<-s.doneCh
	logging.Default().Info("Sync scheduler stopped")
}

func (s *SyncScheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	wait := s.initialDelay
	for {
		next := s.now().Add(wait)
		s.mu.Lock()
		s.nextRun = &next
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			s.runScheduled(ctx)
		case <-s.stopCh:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		}

		var err error
		wait, err = s.untilNextTick()
		if err != nil {
			_ = errutil.Handle(ctx, err, "failed to compute next sync time")
			return
		}
	}
}

func (s *SyncScheduler) untilNextTick() (time.Duration, error) {
	now := s.now().UTC()
	next, err := gronx.NextTickAfter(s.schedule, now, false)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to compute next tick", goerr.V("schedule", s.schedule))
	}
	return next.Sub(now), nil
}

// claim takes the in-progress flag. It returns false when a sync is already running.
func (s *SyncScheduler) claim(holder syncHolder) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress {
		return false
	}
	s.inProgress = true
	s.holder = holder
	return true
}

// claimContinuation takes the flag for a pass after the first one. The flag
// may already be held by the same pass chain, or be free after a restart, but
// never by a scheduled or manual run.
func (s *SyncScheduler) claimContinuation() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inProgress && s.holder != holderPass {
		return false
	}
	s.inProgress = true
	s.holder = holderPass
	return true
}

func (s *SyncScheduler) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress = false
	s.holder = holderScheduled
}

func (s *SyncScheduler) runScheduled(ctx context.Context) {
	if !s.claim(holderScheduled) {
		logging.From(ctx).Info("Skipping scheduled sync, another sync is in progress")
		return
	}
	defer s.release()

	if s.passLimit > 0 {
		_, _ = s.record(ctx, func(ctx context.Context) (*model.Snapshot, error) {
			return s.syncer.RunPasses(ctx, s.passLimit)
		})
		return
	}
	_, _ = s.record(ctx, s.syncer.Run)
}

// record runs fn and keeps its outcome for Status. After a failure the store
// connection is reset and the notifier is called.
func (s *SyncScheduler) record(ctx context.Context, fn func(ctx context.Context) (*model.Snapshot, error)) (*model.Snapshot, error) {
	started := s.now()
	s.mu.Lock()
	s.lastRun = &started
	s.mu.Unlock()

	snapshot, err := fn(ctx)
	s.finish(ctx, err)
	return snapshot, err
}

func (s *SyncScheduler) finish(ctx context.Context, err error) {
	if err == nil {
		now := s.now()
		s.mu.Lock()
		s.lastSuccess = &now
		s.lastError = ""
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.lastError = err.Error()
	s.mu.Unlock()

	_ = errutil.Handle(ctx, err, "sync failed")
	if s.resetter != nil {
		s.resetter.Reset()
	}
	if s.notifier != nil {
		if nerr := s.notifier.NotifySyncFailure(ctx, err); nerr != nil {
			logging.From(ctx).Warn("Failed to notify sync failure", slog.Any("error", nerr))
		}
	}
}

// TriggerManual runs a sync now. It fails with ErrSyncInProgress while another sync runs.
func (s *SyncScheduler) TriggerManual(ctx context.Context) (*model.Snapshot, error) {
	if !s.claim(holderManual) {
		return nil, goerr.Wrap(usecase.ErrSyncInProgress, "manual sync rejected")
	}
	defer s.release()

	return s.record(ctx, s.syncer.Run)
}

// TriggerBackground claims the flag and runs a sync detached from ctx
func (s *SyncScheduler) TriggerBackground(ctx context.Context) error {
	if !s.claim(holderManual) {
		return goerr.Wrap(usecase.ErrSyncInProgress, "background sync rejected")
	}

	async.Dispatch(ctx, "background-sync", func(ctx context.Context) error {
		defer s.release()
		_, err := s.record(ctx, s.syncer.Run)
		return err
	})
	return nil
}

// TriggerPass runs one pass. The first pass claims the in-progress flag and
// the final pass, any failure or a panic releases it. Later passes are
// rejected while a scheduled or manual sync holds the flag.
func (s *SyncScheduler) TriggerPass(ctx context.Context, pass model.SyncPass) (*usecase.PassResult, error) {
	var claimed bool
	if pass.Pass <= 1 {
		claimed = s.claim(holderPass)
	} else {
		claimed = s.claimContinuation()
	}
	if !claimed {
		return nil, goerr.Wrap(usecase.ErrSyncInProgress, "sync pass rejected", goerr.V("pass", pass.Pass))
	}

	held := false
	defer func() {
		if !held {
			s.release()
		}
	}()

	if pass.Pass <= 1 {
		started := s.now()
		s.mu.Lock()
		s.lastRun = &started
		s.mu.Unlock()
	}

	result, err := s.syncer.RunPass(ctx, pass)
	if err != nil {
		s.finish(ctx, err)
		return nil, err
	}
	if result.Next == nil {
		s.finish(ctx, nil)
		return result, nil
	}

	// the chain keeps the flag until its final pass
	held = true
	if s.chainPasses {
		next := *result.Next
		async.Dispatch(ctx, "sync-pass", func(ctx context.Context) error {
			_, err := s.TriggerPass(ctx, next)
			return err
		})
	}
	return result, nil
}

// Status returns a snapshot of the scheduler state
func (s *SyncScheduler) Status() model.SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.SchedulerStatus{
		IsRunning:           s.started && !s.stopped,
		IsManualSyncRunning: s.inProgress && s.holder != holderScheduled,
		IsSyncInProgress:    s.inProgress,
		Schedule:            s.schedule,
		Timezone:            "UTC",
		NextRun:             s.nextRun,
		LastRun:             s.lastRun,
		LastSuccess:         s.lastSuccess,
		LastError:           s.lastError,
	}
}
