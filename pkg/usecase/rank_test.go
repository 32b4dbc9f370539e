package usecase_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
)

func beetleRecords(values ...int64) []model.StatRecord {
	records := make([]model.StatRecord, len(values))
	for i, v := range values {
		records[i] = model.StatRecord{Username: string(rune('a' + i)), Beetles: v}
	}
	return records
}

func beetleRanks(ranked []model.RankedRecord) []int {
	out := make([]int, len(ranked))
	for i, r := range ranked {
		out[i] = r.Rank
	}
	return out
}

func TestRankRecords(t *testing.T) {
	t.Run("competition ranking leaves gaps after ties", func(t *testing.T) {
		ranked := usecase.RankRecords(beetleRecords(10, 10, 8, 8, 8, 1))
		gt.Value(t, beetleRanks(ranked)).Equal([]int{1, 1, 3, 3, 3, 6})
	})

	t.Run("input order does not matter", func(t *testing.T) {
		ranked := usecase.RankRecords(beetleRecords(1, 8, 10, 8, 10, 8))
		gt.Value(t, beetleRanks(ranked)).Equal([]int{1, 1, 3, 3, 3, 6})
	})

	t.Run("each metric is ranked independently", func(t *testing.T) {
		ranked := usecase.RankRecords([]model.StatRecord{
			{Username: "x", Beetles: 50, Pokes: 5, SocialCredit: 1},
			{Username: "y", Beetles: 50, Pokes: 3, SocialCredit: 9},
			{Username: "z", Beetles: 20, Pokes: 3, SocialCredit: 9},
		})

		byName := map[string]model.RankedRecord{}
		for _, r := range ranked {
			byName[r.Username] = r
		}
		gt.Value(t, []int{byName["x"].Rank, byName["y"].Rank, byName["z"].Rank}).Equal([]int{1, 1, 3})
		gt.Value(t, []int{byName["x"].PokesRank, byName["y"].PokesRank, byName["z"].PokesRank}).Equal([]int{1, 2, 2})
		gt.Value(t, []int{byName["x"].SocialCreditRank, byName["y"].SocialCreditRank, byName["z"].SocialCreditRank}).Equal([]int{3, 1, 1})
	})

	t.Run("ordered by beetles then username", func(t *testing.T) {
		ranked := usecase.RankRecords([]model.StatRecord{
			{Username: "carol", Beetles: 5},
			{Username: "alice", Beetles: 5},
			{Username: "bob", Beetles: 9},
		})
		names := []string{ranked[0].Username, ranked[1].Username, ranked[2].Username}
		gt.Value(t, names).Equal([]string{"bob", "alice", "carol"})
	})

	t.Run("duplicates keep the first record", func(t *testing.T) {
		ranked := usecase.RankRecords([]model.StatRecord{
			{Username: "a", Beetles: 5},
			{Username: "a", Beetles: 100},
			{Username: "b", Beetles: 1},
		})
		gt.Array(t, ranked).Length(2)
		gt.Value(t, ranked[0].Beetles).Equal(int64(5))
	})

	t.Run("empty input", func(t *testing.T) {
		gt.Array(t, usecase.RankRecords(nil)).Length(0)
	})
}
