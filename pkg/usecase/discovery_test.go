package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
)

func TestDiscoverAll(t *testing.T) {
	ctx := context.Background()

	t.Run("unions seed friends and the seeds themselves", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = []string{"x", "y"}
		env.upstream.friends["b"] = []string{"y", "z"}
		uc := env.useCases(testPipeline())

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal([]string{"x", "y", "z", "a", "b"})

		cached, err := env.repo.GetUserList(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, cached).Equal(got)
	})

	t.Run("cached list makes no friend list calls", func(t *testing.T) {
		env := newTestEnv()
		gt.NoError(t, env.repo.SaveUserList(ctx, []string{"p", "q"}, time.Hour)).Required()
		uc := env.useCases(testPipeline())

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal([]string{"p", "q"})
		gt.Value(t, env.upstream.friendCallCount()).Equal(0)
	})

	t.Run("pages until a short page and trims names", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = []string{"u1", " u2 ", "", "u3", "u4"}
		pipeline := testPipeline()
		pipeline.Discovery.Seeds = []string{"a"}
		uc := env.useCases(pipeline)

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal([]string{"u1", "u2", "u3", "u4", "a"})

		// 5 friends at page size 2 need pages 1, 2 and a short page 3
		gt.Value(t, env.upstream.friendCallCount()).Equal(3)
	})

	t.Run("population below floor fails without caching", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = []string{"x"}
		pipeline := testPipeline()
		pipeline.Discovery.MinPopulation = 100
		uc := env.useCases(pipeline)

		_, err := uc.Discovery.DiscoverAll(ctx)
		gt.B(t, errors.Is(err, usecase.ErrDiscoveryFailed)).True()

		cached, err := env.repo.GetUserList(ctx)
		gt.NoError(t, err)
		gt.Value(t, cached).Nil()

		progress, err := env.repo.GetProgress(ctx, "a")
		gt.NoError(t, err)
		gt.Value(t, progress).Nil()
	})

	t.Run("resumes from checkpoint", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = []string{"f1", "f2", "f3", "f4", "f5"}
		gt.NoError(t, env.repo.SaveProgress(ctx, &model.DiscoveryProgress{
			Seed:      "a",
			NextPage:  3,
			Usernames: []string{"f1", "f2", "f3", "f4"},
		}, time.Hour)).Required()

		pipeline := testPipeline()
		pipeline.Discovery.Seeds = []string{"a"}
		uc := env.useCases(pipeline)

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal([]string{"f1", "f2", "f3", "f4", "f5", "a"})
		gt.Value(t, env.upstream.friendCalls[0].page).Equal(3)
		gt.Value(t, env.upstream.friendCallCount()).Equal(1)

		progress, err := env.repo.GetProgress(ctx, "a")
		gt.NoError(t, err)
		gt.Value(t, progress).Nil()
	})

	t.Run("seed budget checkpoints and skips caching", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = usernames("f", 10)
		env.upstream.friends["b"] = []string{"g1"}
		pipeline := testPipeline()
		pipeline.Discovery.PageDelay = time.Minute
		pipeline.Discovery.SeedBudget = 90 * time.Second
		uc := env.useCases(pipeline)

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		// page 1 at t=0, sleep 1m, page 2 at t=1m, sleep, page 3 at t=2m exceeds the budget
		gt.Value(t, got).Equal([]string{"f0000", "f0001", "f0002", "f0003", "f0004", "f0005", "g1", "a", "b"})

		progress, err := env.repo.GetProgress(ctx, "a")
		gt.NoError(t, err).Required()
		gt.Value(t, progress).NotNil()
		gt.Value(t, progress.NextPage).Equal(4)
		gt.Array(t, progress.Usernames).Length(6)

		cached, err := env.repo.GetUserList(ctx)
		gt.NoError(t, err)
		gt.Value(t, cached).Nil()
	})

	t.Run("failed page checkpoints the seed and continues", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = usernames("f", 5)
		env.upstream.friends["b"] = []string{"g1"}
		env.upstream.failPage["a"] = 2
		uc := env.useCases(testPipeline())

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal([]string{"f0000", "f0001", "g1", "a", "b"})

		progress, err := env.repo.GetProgress(ctx, "a")
		gt.NoError(t, err).Required()
		gt.Value(t, progress.NextPage).Equal(2)
		gt.Value(t, progress.Usernames).Equal([]string{"f0000", "f0001"})
	})

	t.Run("finished seeds are not crawled again until the list is cached", func(t *testing.T) {
		env := newTestEnv()
		env.upstream.friends["a"] = usernames("f", 10)
		env.upstream.friends["b"] = []string{"g1"}
		pipeline := testPipeline()
		pipeline.Discovery.PageDelay = time.Minute
		pipeline.Discovery.SeedBudget = 90 * time.Second
		uc := env.useCases(pipeline)

		_, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		// a stops after 3 pages, b finishes in one
		gt.Value(t, env.upstream.friendCallCount()).Equal(4)

		progress, err := env.repo.GetProgress(ctx, "b")
		gt.NoError(t, err).Required()
		gt.Value(t, progress).NotNil()
		gt.B(t, progress.Complete).True()
		gt.Value(t, progress.Usernames).Equal([]string{"g1"})

		got, err := uc.Discovery.DiscoverAll(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, got).Equal(append(usernames("f", 10), "g1", "a", "b"))

		// a resumes at page 4 and finishes on the empty page 6, b is not requested
		gt.Value(t, env.upstream.friendCallCount()).Equal(7)
		for _, c := range env.upstream.friendCalls[4:] {
			gt.Value(t, c.seed).Equal("a")
		}

		cached, err := env.repo.GetUserList(ctx)
		gt.NoError(t, err).Required()
		gt.Value(t, cached).Equal(got)

		for _, seed := range []string{"a", "b"} {
			progress, err := env.repo.GetProgress(ctx, seed)
			gt.NoError(t, err)
			gt.Value(t, progress).Nil()
		}
	})
}
