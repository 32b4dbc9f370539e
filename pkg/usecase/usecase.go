package usecase

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model/config"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
)

type UseCases struct {
	repo     interfaces.LeaderboardRepository
	upstream remilia.Service
	pipeline config.Pipeline
	archiver interfaces.Archiver
	clock    *clock

	Discovery   *DiscoveryUseCase
	Profile     *ProfileUseCase
	Sync        *SyncUseCase
	Leaderboard *LeaderboardUseCase
	Cache       *CacheUseCase
}

// clock bundles time and randomness so tests run without wall-clock delays
type clock struct {
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Option func(*UseCases)

func WithPipeline(cfg config.Pipeline) Option {
	return func(uc *UseCases) {
		uc.pipeline = cfg
	}
}

func WithArchiver(archiver interfaces.Archiver) Option {
	return func(uc *UseCases) {
		uc.archiver = archiver
	}
}

// WithClock replaces time.Now for budgets and timestamps
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.clock.now = now
	}
}

// WithSleeper replaces the delay between pages and batches
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(uc *UseCases) {
		uc.clock.sleep = sleep
	}
}

// WithRandom replaces the [0,1) source used by random user picks
func WithRandom(random func() float64) Option {
	return func(uc *UseCases) {
		uc.clock.random = random
	}
}

func New(repo interfaces.LeaderboardRepository, upstream remilia.Service, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		upstream: upstream,
		pipeline: config.DefaultPipeline(),
		clock: &clock{
			now:    time.Now,
			sleep:  sleepContext,
			random: rand.Float64,
		},
	}

	for _, opt := range opts {
		opt(uc)
	}

	uc.Discovery = NewDiscoveryUseCase(repo, upstream, uc.pipeline.Discovery, uc.clock)
	uc.Profile = NewProfileUseCase(repo, upstream, uc.pipeline.Sync, uc.clock)
	uc.Sync = NewSyncUseCase(repo, uc.Discovery, uc.Profile, uc.pipeline.Sync, uc.archiver, uc.clock)
	uc.Leaderboard = NewLeaderboardUseCase(repo, uc.clock)
	uc.Cache = NewCacheUseCase(repo)

	return uc
}
