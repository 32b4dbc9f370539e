package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/domain/model/config"
	"github.com/secmon-lab/beetleboard/pkg/service/remilia"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

// DiscoveryUseCase builds the username population by crawling the friend
// lists of the seed users
type DiscoveryUseCase struct {
	repo     interfaces.LeaderboardRepository
	upstream remilia.Service
	cfg      config.Discovery
	clock    *clock
}

func NewDiscoveryUseCase(repo interfaces.LeaderboardRepository, upstream remilia.Service, cfg config.Discovery, clk *clock) *DiscoveryUseCase {
	return &DiscoveryUseCase{
		repo:     repo,
		upstream: upstream,
		cfg:      cfg,
		clock:    clk,
	}
}

// usernameSet keeps first-seen order
type usernameSet struct {
	seen  map[model.Username]struct{}
	names []model.Username
}

func newUsernameSet() *usernameSet {
	return &usernameSet{seen: make(map[model.Username]struct{})}
}

func (s *usernameSet) add(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	if _, ok := s.seen[name]; ok {
		return
	}
	s.seen[name] = struct{}{}
	s.names = append(s.names, name)
}

// DiscoverAll returns the population of usernames to sync. A cached list is
// returned as is. The list is cached only when every seed crawl completed, so
// an interrupted crawl resumes from its checkpoint on the next call while
// finished seeds are served from their checkpoints.
func (uc *DiscoveryUseCase) DiscoverAll(ctx context.Context) ([]model.Username, error) {
	logger := logging.From(ctx)

	cached, err := uc.repo.GetUserList(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read cached user list")
	}
	if len(cached) > 0 {
		logger.Info("Using cached user list", slog.Int("users", len(cached)))
		return cached, nil
	}

	set := newUsernameSet()
	complete := true
	var finished []model.Username
	for _, seed := range uc.cfg.Seeds {
		names, done, err := uc.crawlSeed(ctx, seed)
		if err != nil {
			return nil, err
		}
		if done {
			finished = append(finished, seed)
		} else {
			complete = false
		}
		for _, name := range names {
			set.add(name)
		}
	}
	// A seed may not appear in its own friend list
	for _, seed := range uc.cfg.Seeds {
		set.add(seed)
	}

	if len(set.names) < uc.cfg.MinPopulation {
		// Finished crawls are redone next time instead of replaying a short list
		uc.deleteProgress(ctx, finished)
		return nil, goerr.Wrap(ErrDiscoveryFailed, "discovered population below sanity floor",
			goerr.V("found", len(set.names)),
			goerr.V("min_population", uc.cfg.MinPopulation))
	}

	if !complete {
		logger.Warn("Discovery interrupted, user list not cached", slog.Int("users", len(set.names)))
		return set.names, nil
	}

	if err := uc.repo.SaveUserList(ctx, set.names, uc.cfg.UserListTTL); err != nil {
		return nil, goerr.Wrap(err, "failed to cache user list", goerr.V("users", len(set.names)))
	}
	uc.deleteProgress(ctx, uc.cfg.Seeds)
	logger.Info("Discovered users", slog.Int("users", len(set.names)))
	return set.names, nil
}

// crawlSeed pages through the friend list of seed. It returns done=false when
// the crawl was checkpointed because of the seed budget or a failed page.
func (uc *DiscoveryUseCase) crawlSeed(ctx context.Context, seed model.Username) ([]model.Username, bool, error) {
	logger := logging.From(ctx).With(slog.String("seed", seed))
	start := uc.clock.now()

	page := 1
	var names []model.Username

	progress, err := uc.repo.GetProgress(ctx, seed)
	if err != nil {
		return nil, false, goerr.Wrap(err, "failed to read discovery progress", goerr.V("seed", seed))
	}
	if progress != nil && progress.Complete {
		logger.Debug("Seed crawl already complete", slog.Int("found", len(progress.Usernames)))
		return progress.Usernames, true, nil
	}
	if progress != nil && progress.NextPage > 0 {
		page = progress.NextPage
		names = append(names, progress.Usernames...)
		logger.Info("Resuming seed crawl", slog.Int("page", page), slog.Int("found", len(names)))
	}

	for {
		friends, err := uc.upstream.ListFriends(ctx, seed, page, uc.cfg.PageSize)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, goerr.Wrap(ctx.Err(), "discovery cancelled", goerr.V("seed", seed))
			}
			logger.Warn("Friend page failed, checkpointing seed",
				slog.Int("page", page), slog.Any("error", err))
			uc.checkpoint(ctx, seed, page, names)
			return names, false, nil
		}

		for _, f := range friends {
			if name := strings.TrimSpace(f.DisplayUsername); name != "" {
				names = append(names, name)
			}
		}

		if len(friends) < uc.cfg.PageSize {
			uc.save(ctx, &model.DiscoveryProgress{
				Seed:      seed,
				Complete:  true,
				Usernames: names,
				Timestamp: uc.clock.now(),
			})
			logger.Info("Seed crawl complete", slog.Int("pages", page), slog.Int("found", len(names)))
			return names, true, nil
		}
		page++

		if uc.clock.now().Sub(start) > uc.cfg.SeedBudget {
			logger.Warn("Seed budget exceeded, checkpointing seed",
				slog.Int("next_page", page), slog.Int("found", len(names)))
			uc.checkpoint(ctx, seed, page, names)
			return names, false, nil
		}

		if err := uc.clock.sleep(ctx, uc.cfg.PageDelay); err != nil {
			return nil, false, goerr.Wrap(err, "discovery cancelled", goerr.V("seed", seed))
		}
	}
}

func (uc *DiscoveryUseCase) checkpoint(ctx context.Context, seed model.Username, nextPage int, names []model.Username) {
	uc.save(ctx, &model.DiscoveryProgress{
		Seed:      seed,
		NextPage:  nextPage,
		Usernames: names,
		Timestamp: uc.clock.now(),
	})
}

func (uc *DiscoveryUseCase) save(ctx context.Context, progress *model.DiscoveryProgress) {
	if err := uc.repo.SaveProgress(ctx, progress, uc.cfg.ProgressTTL); err != nil {
		logging.From(ctx).Warn("Failed to save discovery progress",
			slog.String("seed", progress.Seed), slog.Any("error", err))
	}
}

func (uc *DiscoveryUseCase) deleteProgress(ctx context.Context, seeds []model.Username) {
	for _, seed := range seeds {
		if err := uc.repo.DeleteProgress(ctx, seed); err != nil {
			logging.From(ctx).Warn("Failed to delete discovery progress",
				slog.String("seed", seed), slog.Any("error", err))
		}
	}
}
