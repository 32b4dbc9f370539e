package model

import (
	"sync/atomic"
	"time"
)

// SyncMetrics accumulates counters for one sync run. Safe for concurrent use by
// the fetch goroutines of a chunk.
type SyncMetrics struct {
	StartTime time.Time

	totalUsers        atomic.Int64
	successfulFetches atomic.Int64
	failedFetches     atomic.Int64
	invalidProfiles   atomic.Int64
	cacheHits         atomic.Int64
}

func NewSyncMetrics(start time.Time) *SyncMetrics {
	return &SyncMetrics{StartTime: start}
}

func (m *SyncMetrics) SetTotalUsers(n int) { m.totalUsers.Store(int64(n)) }
func (m *SyncMetrics) AddSuccess()         { m.successfulFetches.Add(1) }
func (m *SyncMetrics) AddFailure()         { m.failedFetches.Add(1) }
func (m *SyncMetrics) AddInvalid()         { m.invalidProfiles.Add(1) }
func (m *SyncMetrics) AddCacheHit()        { m.cacheHits.Add(1) }

func (m *SyncMetrics) TotalUsers() int        { return int(m.totalUsers.Load()) }
func (m *SyncMetrics) SuccessfulFetches() int { return int(m.successfulFetches.Load()) }
func (m *SyncMetrics) FailedFetches() int     { return int(m.failedFetches.Load()) }
func (m *SyncMetrics) InvalidProfiles() int   { return int(m.invalidProfiles.Load()) }
func (m *SyncMetrics) CacheHits() int         { return int(m.cacheHits.Load()) }

// Resolved is the number of usernames that produced a record, from upstream or cache
func (m *SyncMetrics) Resolved() int {
	return m.SuccessfulFetches() + m.CacheHits()
}

// Telemetry freezes the counters at now. successRate is resolved records over
// expected users, in percent.
func (m *SyncMetrics) Telemetry(now time.Time, records int) SyncTelemetry {
	t := SyncTelemetry{
		TotalUsers:        m.TotalUsers(),
		SuccessfulFetches: m.SuccessfulFetches(),
		FailedFetches:     m.FailedFetches(),
		InvalidProfiles:   m.InvalidProfiles(),
		CacheHits:         m.CacheHits(),
		StartTime:         m.StartTime,
		TotalDuration:     now.Sub(m.StartTime).Milliseconds(),
	}
	if t.TotalUsers > 0 {
		t.SuccessRate = float64(records) / float64(t.TotalUsers) * 100
	}
	return t
}
