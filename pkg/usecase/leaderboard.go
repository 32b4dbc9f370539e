package usecase

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/domain/types"
)

const (
	DefaultPageLimit = 25
	MaxPageLimit     = 100

	// Random picks favor the top of the board
	randomTopSlice  = 1000
	randomTopChance = 0.7
)

// LeaderboardUseCase serves read-only views of the published snapshot
type LeaderboardUseCase struct {
	repo  interfaces.LeaderboardRepository
	clock *clock
}

func NewLeaderboardUseCase(repo interfaces.LeaderboardRepository, clk *clock) *LeaderboardUseCase {
	return &LeaderboardUseCase{repo: repo, clock: clk}
}

func (uc *LeaderboardUseCase) snapshot(ctx context.Context) ([]model.RankedRecord, error) {
	records, err := uc.repo.GetSnapshot(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read snapshot")
	}
	if records == nil {
		return nil, goerr.Wrap(ErrSnapshotUnavailable, "no snapshot published yet")
	}
	return records, nil
}

func metricOf(field types.SortField) func(*model.RankedRecord) int64 {
	switch field {
	case types.SortFieldPokes:
		return func(r *model.RankedRecord) int64 { return r.Pokes }
	case types.SortFieldSocialCredit:
		return func(r *model.RankedRecord) int64 { return r.SocialCredit }
	default:
		return func(r *model.RankedRecord) int64 { return r.Beetles }
	}
}

// rankOf maps the sort field to the rank reported in each row. Username
// sorting reports the beetles rank.
func rankOf(field types.SortField, r *model.RankedRecord) int {
	switch field {
	case types.SortFieldPokes:
		return r.PokesRank
	case types.SortFieldSocialCredit:
		return r.SocialCreditRank
	default:
		return r.Rank
	}
}

// List searches, sorts and paginates the snapshot
func (uc *LeaderboardUseCase) List(ctx context.Context, q model.LeaderboardQuery) (*model.LeaderboardPage, error) {
	if q.Page < 1 || q.Limit < 1 || q.Limit > MaxPageLimit {
		return nil, goerr.Wrap(ErrInvalidQuery, "invalid pagination parameters",
			goerr.V("page", q.Page), goerr.V("limit", q.Limit))
	}
	if !q.SortBy.IsValid() || !q.SortDirection.IsValid() {
		return nil, goerr.Wrap(ErrInvalidQuery, "invalid sort parameters",
			goerr.V("sort_by", q.SortBy), goerr.V("sort_direction", q.SortDirection))
	}

	records, err := uc.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	meta, err := uc.repo.GetMetadata(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read metadata")
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	filtered := make([]model.RankedRecord, 0, len(records))
	for _, r := range records {
		if search == "" ||
			strings.Contains(strings.ToLower(r.Username), search) ||
			strings.Contains(strings.ToLower(r.DisplayName), search) {
			filtered = append(filtered, r)
		}
	}

	var compare func(a, b model.RankedRecord) int
	if q.SortBy == types.SortFieldUsername {
		compare = func(a, b model.RankedRecord) int {
			return cmp.Compare(strings.ToLower(a.Username), strings.ToLower(b.Username))
		}
	} else {
		metric := metricOf(q.SortBy)
		compare = func(a, b model.RankedRecord) int {
			return cmp.Compare(metric(&a), metric(&b))
		}
	}
	if q.SortDirection == types.SortDesc {
		asc := compare
		compare = func(a, b model.RankedRecord) int { return asc(b, a) }
	}
	slices.SortStableFunc(filtered, compare)

	total := len(filtered)
	pages := (total + q.Limit - 1) / q.Limit
	lo := min((q.Page-1)*q.Limit, total)
	hi := min(lo+q.Limit, total)

	users := make([]model.RankedRecord, 0, hi-lo)
	for _, r := range filtered[lo:hi] {
		if meta != nil {
			r.Rank = rankOf(q.SortBy, &r)
		} else {
			r.Rank, r.PokesRank, r.SocialCreditRank = 0, 0, 0
		}
		users = append(users, r)
	}

	page := &model.LeaderboardPage{
		Users: users,
		Pagination: model.Pagination{
			Page:    q.Page,
			Limit:   q.Limit,
			Total:   total,
			Pages:   pages,
			HasNext: q.Page < pages,
			HasPrev: q.Page > 1,
		},
		Meta: model.PageMeta{TotalUsers: len(records)},
	}
	if meta != nil {
		lastUpdated := meta.LastUpdated
		page.Meta.LastUpdated = &lastUpdated
		page.Meta.TotalPokes = meta.TotalPokes
		page.Meta.ActiveUsers = meta.ActiveUsers
		if meta.TotalUsers > 0 {
			page.Meta.TotalUsers = meta.TotalUsers
		}
	}
	if q.Search != "" {
		s := q.Search
		page.Meta.SearchQuery = &s
	}
	return page, nil
}

// Random picks a username, from the top of the board 70% of the time and
// from the whole board otherwise
func (uc *LeaderboardUseCase) Random(ctx context.Context) (model.Username, error) {
	records, err := uc.snapshot(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", goerr.Wrap(ErrSnapshotUnavailable, "snapshot is empty")
	}

	pool := records
	if uc.clock.random() < randomTopChance {
		pool = records[:min(randomTopSlice, len(records))]
	}
	idx := min(int(uc.clock.random()*float64(len(pool))), len(pool)-1)
	return pool[idx].Username, nil
}

// Lookup returns the ranked record of username, matched case-insensitively
func (uc *LeaderboardUseCase) Lookup(ctx context.Context, username model.Username) (*model.RankedRecord, error) {
	records, err := uc.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if strings.EqualFold(records[i].Username, username) {
			return &records[i], nil
		}
	}
	return nil, goerr.Wrap(ErrUserNotFound, "user not in leaderboard", goerr.V("username", username))
}
