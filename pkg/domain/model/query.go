package model

import (
	"time"

	"github.com/secmon-lab/beetleboard/pkg/domain/types"
)

// LeaderboardQuery is a read-side listing request
type LeaderboardQuery struct {
	Page          int
	Limit         int
	Search        string
	SortBy        types.SortField
	SortDirection types.SortDirection
}

type Pagination struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

type PageMeta struct {
	LastUpdated *time.Time `json:"lastUpdated"`
	TotalUsers  int        `json:"totalUsers"`
	TotalPokes  int64      `json:"totalPokes"`
	ActiveUsers int        `json:"activeUsers"`
	SearchQuery *string    `json:"searchQuery"`
}

// LeaderboardPage is one page of the published snapshot. Rank in each row is
// the rank of the metric the page is sorted by.
type LeaderboardPage struct {
	Users      []RankedRecord `json:"users"`
	Pagination Pagination     `json:"pagination"`
	Meta       PageMeta       `json:"meta"`
}

// CacheStatus reports which pipeline keys are present in the store
type CacheStatus struct {
	KeyStatus        map[string]bool `json:"keyStatus"`
	StatsKeyCount    int             `json:"statsKeyCount"`
	ProgressKeyCount int             `json:"progressKeyCount"`
}

// FlushResult reports what a cache flush removed
type FlushResult struct {
	Specific     []string `json:"specific"`
	StatsKeys    int      `json:"statsKeys"`
	ProgressKeys int      `json:"progressKeys"`
	TotalDeleted int      `json:"total"`
}
