package usecase

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

type CacheUseCase struct {
	repo interfaces.LeaderboardRepository
}

func NewCacheUseCase(repo interfaces.LeaderboardRepository) *CacheUseCase {
	return &CacheUseCase{repo: repo}
}

// Flush removes every pipeline key so the next sync starts from scratch
func (uc *CacheUseCase) Flush(ctx context.Context) (*model.FlushResult, error) {
	result, err := uc.repo.Flush(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to flush cache")
	}
	logging.From(ctx).Info("Cache flushed",
		slog.Any("keys", result.Specific),
		slog.Int("stats_keys", result.StatsKeys),
		slog.Int("progress_keys", result.ProgressKeys))
	return result, nil
}

func (uc *CacheUseCase) Status(ctx context.Context) (*model.CacheStatus, error) {
	status, err := uc.repo.Status(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read cache status")
	}
	return status, nil
}
