package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/domain/model/config"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/secmon-lab/beetleboard/pkg/utils/metrics"
	"golang.org/x/sync/errgroup"
)

// SyncUseCase orchestrates discovery, batched profile fetches and publication
type SyncUseCase struct {
	repo      interfaces.LeaderboardRepository
	discovery *DiscoveryUseCase
	profile   *ProfileUseCase
	cfg       config.Sync
	archiver  interfaces.Archiver
	clock     *clock
}

// PassResult is the outcome of one pass. Snapshot is set only by the final pass.
type PassResult struct {
	Pass      model.SyncPass
	Next      *model.SyncPass
	Processed int
	Fetched   int
	Snapshot  *model.Snapshot
}

func NewSyncUseCase(repo interfaces.LeaderboardRepository, discovery *DiscoveryUseCase, profile *ProfileUseCase, cfg config.Sync, archiver interfaces.Archiver, clk *clock) *SyncUseCase {
	return &SyncUseCase{
		repo:      repo,
		discovery: discovery,
		profile:   profile,
		cfg:       cfg,
		archiver:  archiver,
		clock:     clk,
	}
}

// PassLimit is the configured number of usernames per pass, 0 for single pass runs
func (uc *SyncUseCase) PassLimit() int {
	return uc.cfg.PassLimit
}

func withSyncID(ctx context.Context, attrs ...any) context.Context {
	id := uuid.NewString()
	if v7, err := uuid.NewV7(); err == nil {
		id = v7.String()
	}
	return logging.With(ctx, logging.From(ctx).With(append([]any{slog.String("sync_id", id)}, attrs...)...))
}

func finish(start, end time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.SyncFinished(result, end.Sub(start))
}

// Run performs a complete single-pass sync and publishes the result
func (uc *SyncUseCase) Run(ctx context.Context) (snapshot *model.Snapshot, err error) {
	ctx = withSyncID(ctx)
	logger := logging.From(ctx)
	start := uc.clock.now()
	defer func() { finish(start, uc.clock.now(), err) }()

	logger.Info("Sync started")

	usernames, err := uc.discovery.DiscoverAll(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "discovery failed")
	}

	m := model.NewSyncMetrics(start)
	m.SetTotalUsers(len(usernames))

	records, err := uc.fetchAll(ctx, usernames, m, start)
	if err != nil {
		return nil, err
	}

	snapshot, err = uc.Publish(ctx, records, len(usernames), m)
	if err != nil {
		return nil, goerr.Wrap(err, "sync not published",
			goerr.V("fetched", len(records)),
			goerr.V("expected", len(usernames)))
	}

	logger.Info("Sync finished",
		slog.Int("users", len(snapshot.Records)),
		slog.Int("cache_hits", m.CacheHits()),
		slog.Int("failed", m.FailedFetches()),
		slog.Int("invalid", m.InvalidProfiles()),
		slog.Duration("duration", uc.clock.now().Sub(start)))
	return snapshot, nil
}

// RunPass processes usernames[Offset:Offset+Limit] and merges the records
// into the partial results. The first pass discovers the population and fixes
// it for the rest of the chain, so later passes slice the same list even when
// discovery was interrupted. The final pass publishes the union against that
// population.
func (uc *SyncUseCase) RunPass(ctx context.Context, pass model.SyncPass) (*PassResult, error) {
	if err := pass.Validate(); err != nil {
		return nil, err
	}
	return uc.runPass(ctx, pass, uc.passPopulation)
}

// RunPasses runs every pass of a sync split into passes of limit usernames
func (uc *SyncUseCase) RunPasses(ctx context.Context, limit int) (*model.Snapshot, error) {
	usernames, err := uc.discovery.DiscoverAll(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "discovery failed")
	}

	pass := model.PlanPasses(len(usernames), limit)
	if pass == nil {
		return nil, goerr.Wrap(ErrNoUsersFetched, "no passes to run",
			goerr.V("users", len(usernames)), goerr.V("limit", limit))
	}
	if err := uc.repo.SavePassUsers(ctx, usernames, uc.cfg.SnapshotTTL); err != nil {
		return nil, goerr.Wrap(err, "failed to save pass population", goerr.V("users", len(usernames)))
	}

	fixed := func(context.Context, model.SyncPass) ([]model.Username, error) {
		return usernames, nil
	}
	for pass != nil {
		result, err := uc.runPass(ctx, *pass, fixed)
		if err != nil {
			return nil, err
		}
		if result.Snapshot != nil {
			return result.Snapshot, nil
		}
		pass = result.Next
	}
	return nil, goerr.New("passes ended without publishing")
}

type populationFunc func(ctx context.Context, pass model.SyncPass) ([]model.Username, error)

// passPopulation discovers and stores the population on the first pass and
// reads the stored one on later passes. Discovery is the fallback when the
// stored population expired.
func (uc *SyncUseCase) passPopulation(ctx context.Context, pass model.SyncPass) ([]model.Username, error) {
	if pass.Pass > 1 {
		usernames, err := uc.repo.GetPassUsers(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read pass population")
		}
		if len(usernames) > 0 {
			return usernames, nil
		}
		logging.From(ctx).Warn("Pass population missing, discovering again")
	}

	usernames, err := uc.discovery.DiscoverAll(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "discovery failed")
	}
	if pass.Pass == 1 {
		if err := uc.repo.SavePassUsers(ctx, usernames, uc.cfg.SnapshotTTL); err != nil {
			return nil, goerr.Wrap(err, "failed to save pass population", goerr.V("users", len(usernames)))
		}
	}
	return usernames, nil
}

func (uc *SyncUseCase) runPass(ctx context.Context, pass model.SyncPass, population populationFunc) (result *PassResult, err error) {
	ctx = withSyncID(ctx, slog.Int("pass", pass.Pass), slog.Int("total_passes", pass.TotalPasses))
	logger := logging.From(ctx)
	start := uc.clock.now()
	defer func() { finish(start, uc.clock.now(), err) }()

	usernames, err := population(ctx, pass)
	if err != nil {
		return nil, err
	}

	if pass.Pass == 1 {
		if err := uc.repo.DeletePartial(ctx); err != nil {
			return nil, goerr.Wrap(err, "failed to clear partial results")
		}
	}

	lo := min(pass.Offset, len(usernames))
	hi := min(pass.Offset+pass.Limit, len(usernames))
	slice := usernames[lo:hi]

	m := model.NewSyncMetrics(start)
	m.SetTotalUsers(len(usernames))

	logger.Info("Sync pass started", slog.Int("offset", lo), slog.Int("users", len(slice)))
	records, err := uc.fetchAll(ctx, slice, m, start)
	if err != nil {
		return nil, err
	}

	partial, err := uc.repo.GetPartial(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read partial results")
	}
	merged := append(partial, records...)

	result = &PassResult{
		Pass:      pass,
		Next:      model.NextPass(pass),
		Processed: len(slice),
		Fetched:   len(records),
	}

	if !pass.IsFinal() {
		if err := uc.repo.SavePartial(ctx, merged, uc.cfg.SnapshotTTL); err != nil {
			return nil, goerr.Wrap(err, "failed to save partial results", goerr.V("records", len(merged)))
		}
		logger.Info("Sync pass finished", slog.Int("fetched", len(records)), slog.Int("accumulated", len(merged)))
		return result, nil
	}

	snapshot, err := uc.Publish(ctx, merged, len(usernames), m)
	if err != nil {
		return nil, goerr.Wrap(err, "sync not published",
			goerr.V("fetched", len(merged)),
			goerr.V("expected", len(usernames)))
	}
	if err := uc.repo.DeletePartial(ctx); err != nil {
		logger.Warn("Failed to delete partial results", slog.Any("error", err))
	}
	if err := uc.repo.DeletePassUsers(ctx); err != nil {
		logger.Warn("Failed to delete pass population", slog.Any("error", err))
	}

	result.Snapshot = snapshot
	logger.Info("Final sync pass published", slog.Int("users", len(snapshot.Records)))
	return result, nil
}

// fetchAll fetches usernames in batches. Each batch is split into chunks
// fetched concurrently. When the budget measured from start is exceeded after
// a batch, the remaining batches are skipped.
func (uc *SyncUseCase) fetchAll(ctx context.Context, usernames []model.Username, m *model.SyncMetrics, start time.Time) ([]model.StatRecord, error) {
	logger := logging.From(ctx)
	records := make([]model.StatRecord, 0, len(usernames))

	for lo := 0; lo < len(usernames); lo += uc.cfg.BatchSize {
		hi := min(lo+uc.cfg.BatchSize, len(usernames))
		batch := usernames[lo:hi]

		for c := 0; c < len(batch); c += uc.cfg.Concurrency {
			chunk := batch[c:min(c+uc.cfg.Concurrency, len(batch))]
			records = append(records, uc.fetchChunk(ctx, chunk, m)...)
		}

		if ctx.Err() != nil {
			return nil, goerr.Wrap(ctx.Err(), "sync cancelled", goerr.V("processed", hi))
		}

		logger.Debug("Batch finished",
			slog.Int("processed", hi),
			slog.Int("total", len(usernames)),
			slog.Int("records", len(records)))

		if hi >= len(usernames) {
			break
		}
		if elapsed := uc.clock.now().Sub(start); elapsed > uc.cfg.Budget {
			logger.Warn("Sync budget exceeded, stopping early",
				slog.Int("processed", hi),
				slog.Int("total", len(usernames)),
				slog.Duration("elapsed", elapsed))
			break
		}
		if err := uc.clock.sleep(ctx, uc.cfg.BatchDelay); err != nil {
			return nil, goerr.Wrap(err, "sync cancelled", goerr.V("processed", hi))
		}
	}
	return records, nil
}

// fetchChunk fetches usernames concurrently and returns records in input order
func (uc *SyncUseCase) fetchChunk(ctx context.Context, chunk []model.Username, m *model.SyncMetrics) []model.StatRecord {
	results := make([]*model.StatRecord, len(chunk))

	var g errgroup.Group
	g.SetLimit(uc.cfg.Concurrency)
	for i, username := range chunk {
		g.Go(func() error {
			results[i] = uc.profile.FetchProfile(ctx, username, m)
			return nil
		})
	}
	_ = g.Wait()

	records := make([]model.StatRecord, 0, len(chunk))
	for _, r := range results {
		if r != nil {
			records = append(records, *r)
		}
	}
	return records
}
