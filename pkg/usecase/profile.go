package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/domain/model/config"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/secmon-lab/beetleboard/pkg/utils/metrics"
)

// ProfileUseCase fetches per-user stats through the stats cache
type ProfileUseCase struct {
	repo     interfaces.LeaderboardRepository
	upstream remilia.Service
	cfg      config.Sync
	clock    *clock
}

func NewProfileUseCase(repo interfaces.LeaderboardRepository, upstream remilia.Service, cfg config.Sync, clk *clock) *ProfileUseCase {
	return &ProfileUseCase{
		repo:     repo,
		upstream: upstream,
		cfg:      cfg,
		clock:    clk,
	}
}

// FetchProfile returns the stats of username, or nil when the user could not
// be fetched. Failures are counted in m and never returned.
func (uc *ProfileUseCase) FetchProfile(ctx context.Context, username model.Username, m *model.SyncMetrics) *model.StatRecord {
	logger := logging.From(ctx).With(slog.String("username", username))

	cached, err := uc.repo.GetStats(ctx, username)
	if err != nil {
		logger.Warn("Failed to read stats cache", slog.Any("error", err))
	}
	if cached != nil {
		m.AddCacheHit()
		metrics.ProfileFetch(metrics.ProfileCacheHit)
		return cached
	}

	profile, err := uc.upstream.GetProfile(ctx, username)
	if err != nil {
		if errors.Is(err, remilia.ErrInvalidPayload) {
			m.AddInvalid()
			metrics.ProfileFetch(metrics.ProfileInvalid)
			logger.Warn("Invalid profile payload", slog.Any("error", err))
			return nil
		}
		m.AddFailure()
		metrics.ProfileFetch(metrics.ProfileFailure)
		logger.Warn("Failed to fetch profile", slog.Any("error", err))
		return nil
	}

	record := toStatRecord(username, profile.User)
	m.AddSuccess()
	metrics.ProfileFetch(metrics.ProfileSuccess)

	if err := uc.repo.SaveStats(ctx, record, uc.cfg.StatsTTL); err != nil {
		logger.Warn("Failed to cache stats", slog.Any("error", err))
	}
	return record
}

// LiveProfile fetches the current upstream profile and refreshes the stats
// cache. The cache refresh is best effort.
func (uc *ProfileUseCase) LiveProfile(ctx context.Context, username model.Username) (*remilia.Profile, error) {
	profile, err := uc.upstream.GetProfile(ctx, username)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch live profile", goerr.V("username", username))
	}

	record := toStatRecord(username, profile.User)
	if err := uc.repo.SaveStats(ctx, record, uc.cfg.StatsTTL); err != nil {
		logging.From(ctx).Warn("Failed to refresh stats cache",
			slog.String("username", username), slog.Any("error", err))
	}
	return profile, nil
}

func nonNegative(n remilia.Number) int64 {
	return max(n.Int64(), 0)
}

// toStatRecord normalizes an upstream user. Missing counts are zero and
// negative counts are clamped to zero.
func toStatRecord(requested model.Username, user *remilia.ProfileUser) *model.StatRecord {
	record := &model.StatRecord{
		Username:    requested,
		DisplayName: requested,
	}
	if user == nil {
		return record
	}

	if user.Username != "" {
		record.Username = user.Username
	}
	if user.DisplayName != "" {
		record.DisplayName = user.DisplayName
	}
	record.PfpURL = user.PfpURL
	record.Beetles = nonNegative(user.Beetles)
	record.Pokes = nonNegative(user.Pokes)
	if user.SocialCredit != nil {
		record.SocialCredit = nonNegative(user.SocialCredit.Score)
	}
	return record
}
