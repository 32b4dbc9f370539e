package usecase

import (
	"cmp"
	"slices"

	"github.com/secmon-lab/beetleboard/pkg/domain/model"
)

// dedupRecords keeps the first record of each username
func dedupRecords(records []model.StatRecord) []model.StatRecord {
	seen := make(map[model.Username]struct{}, len(records))
	out := make([]model.StatRecord, 0, len(records))
	for _, r := range records {
		if _, ok := seen[r.Username]; ok {
			continue
		}
		seen[r.Username] = struct{}{}
		out = append(out, r)
	}
	return out
}

// byMetricDesc orders by the metric descending, then username ascending
func byMetricDesc(metric func(*model.RankedRecord) int64) func(a, b *model.RankedRecord) int {
	return func(a, b *model.RankedRecord) int {
		if c := cmp.Compare(metric(b), metric(a)); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	}
}

// assignCompetitionRanks ranks records already sorted by metric descending.
// Tied values share a rank and the next distinct value takes its 1-based
// position, so [10,10,8] ranks [1,1,3].
func assignCompetitionRanks(sorted []*model.RankedRecord, metric func(*model.RankedRecord) int64, set func(*model.RankedRecord, int)) {
	rank := 0
	for i, r := range sorted {
		if i == 0 || metric(r) != metric(sorted[i-1]) {
			rank = i + 1
		}
		set(r, rank)
	}
}

// RankRecords deduplicates records by username and assigns competition ranks
// for beetles, pokes and social credit. The result is in beetles-descending
// order with ties broken by username.
func RankRecords(records []model.StatRecord) []model.RankedRecord {
	unique := dedupRecords(records)
	ranked := make([]model.RankedRecord, len(unique))
	for i, r := range unique {
		ranked[i] = model.RankedRecord{StatRecord: r}
	}

	ptrs := make([]*model.RankedRecord, len(ranked))
	for i := range ranked {
		ptrs[i] = &ranked[i]
	}

	metrics := []struct {
		value func(*model.RankedRecord) int64
		set   func(*model.RankedRecord, int)
	}{
		{
			value: func(r *model.RankedRecord) int64 { return r.Beetles },
			set:   func(r *model.RankedRecord, rank int) { r.Rank = rank },
		},
		{
			value: func(r *model.RankedRecord) int64 { return r.Pokes },
			set:   func(r *model.RankedRecord, rank int) { r.PokesRank = rank },
		},
		{
			value: func(r *model.RankedRecord) int64 { return r.SocialCredit },
			set:   func(r *model.RankedRecord, rank int) { r.SocialCreditRank = rank },
		},
	}
	for _, m := range metrics {
		slices.SortFunc(ptrs, byMetricDesc(m.value))
		assignCompetitionRanks(ptrs, m.value, m.set)
	}

	slices.SortFunc(ranked, func(a, b model.RankedRecord) int {
		return byMetricDesc(func(r *model.RankedRecord) int64 { return r.Beetles })(&a, &b)
	})
	return ranked
}
