package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/secmon-lab/beetleboard/pkg/utils/metrics"
)

// Publish ranks records and replaces the published snapshot. Nothing is
// written when records is empty or covers less than the completion
// threshold of expected users.
func (uc *SyncUseCase) Publish(ctx context.Context, records []model.StatRecord, expected int, m *model.SyncMetrics) (*model.Snapshot, error) {
	unique := dedupRecords(records)
	if len(unique) == 0 {
		return nil, goerr.Wrap(ErrNoUsersFetched, "nothing to publish", goerr.V("expected", expected))
	}
	if expected <= 0 {
		expected = len(unique)
	}

	completion := float64(len(unique)) / float64(expected)
	if completion < uc.cfg.CompletionThreshold {
		return nil, goerr.Wrap(ErrIncompleteSync, "completion rate below publication threshold",
			goerr.V("fetched", len(unique)),
			goerr.V("expected", expected),
			goerr.V("completion_rate", completion),
			goerr.V("threshold", uc.cfg.CompletionThreshold))
	}

	ranked := RankRecords(unique)
	now := uc.clock.now()
	meta := buildMetadata(ranked, expected, completion, now)
	if m != nil {
		meta.SyncMetrics = m.Telemetry(now, len(ranked))
	}

	if err := uc.repo.PublishSnapshot(ctx, ranked, &meta, uc.cfg.SnapshotTTL); err != nil {
		return nil, goerr.Wrap(err, "failed to publish snapshot", goerr.V("users", len(ranked)))
	}

	metrics.Published(len(ranked), now)
	logging.From(ctx).Info("Published leaderboard",
		slog.Int("users", meta.TotalUsers),
		slog.Int("expected", expected),
		slog.Float64("completion_rate", meta.CompletionRate))

	snapshot := &model.Snapshot{Records: ranked, Meta: meta}
	if uc.archiver != nil {
		if err := uc.archiver.Archive(ctx, snapshot); err != nil {
			_ = errutil.Handle(ctx, err, "failed to archive snapshot")
		}
	}
	return snapshot, nil
}

func buildMetadata(ranked []model.RankedRecord, expected int, completion float64, now time.Time) model.SyncMetadata {
	meta := model.SyncMetadata{
		LastUpdated:    now,
		TotalUsers:     len(ranked),
		ExpectedUsers:  expected,
		CompletionRate: completion * 100,
	}
	for _, r := range ranked {
		meta.TotalPokes += r.Pokes
		meta.TotalSocialCredit += r.SocialCredit
		if r.Beetles > 0 {
			meta.ActiveUsers++
		}
	}
	if len(ranked) > 0 {
		meta.TopBeetles = ranked[0].Beetles
	}
	return meta
}
