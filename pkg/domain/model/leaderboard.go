package model

import "time"

// Username is the opaque identifier of a user on the upstream network
type Username = string

// StatRecord is the normalized stats of one user produced by a single profile fetch.
// A sync never mutates a StatRecord; each run creates fresh ones.
type StatRecord struct {
	Username     Username `json:"username"`
	DisplayName  string   `json:"displayName"`
	PfpURL       string   `json:"pfpUrl"`
	Beetles      int64    `json:"beetles"`
	Pokes        int64    `json:"pokes"`
	SocialCredit int64    `json:"socialCredit"`
}

// RankedRecord is a StatRecord with competition ranks for each metric
type RankedRecord struct {
	StatRecord
	Rank             int `json:"rank"`
	PokesRank        int `json:"pokesRank"`
	SocialCreditRank int `json:"socialCreditRank"`
}

// SyncTelemetry is the per-run counters published with the snapshot
type SyncTelemetry struct {
	TotalUsers        int       `json:"totalUsers"`
	SuccessfulFetches int       `json:"successfulFetches"`
	FailedFetches     int       `json:"failedFetches"`
	InvalidProfiles   int       `json:"invalidProfiles"`
	CacheHits         int       `json:"cacheHits"`
	StartTime         time.Time `json:"startTime"`
	TotalDuration     int64     `json:"totalDuration"` // milliseconds
	SuccessRate       float64   `json:"successRate"`   // percent of expected users
}

// SyncMetadata is the aggregate published atomically alongside the snapshot
type SyncMetadata struct {
	LastUpdated       time.Time     `json:"lastUpdated"`
	TotalUsers        int           `json:"totalUsers"`
	ExpectedUsers     int           `json:"expectedUsers"`
	CompletionRate    float64       `json:"completionRate"`
	TotalPokes        int64         `json:"totalPokes"`
	TotalSocialCredit int64         `json:"totalSocialCredit"`
	ActiveUsers       int           `json:"activeUsers"`
	TopBeetles        int64         `json:"topBeetles"`
	SyncMetrics       SyncTelemetry `json:"syncMetrics"`
}

// Snapshot is one complete, internally consistent leaderboard state
type Snapshot struct {
	Records []RankedRecord
	Meta    SyncMetadata
}
