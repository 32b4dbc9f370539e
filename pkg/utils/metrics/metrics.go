package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beetleboard_upstream_requests_total",
		Help: "Upstream API requests by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	upstreamRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beetleboard_upstream_retries_total",
		Help: "Upstream API retries by reason (rate_limited, error)",
	}, []string{"reason"})

	profileFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beetleboard_profile_fetches_total",
		Help: "Profile fetch results (success, failure, invalid, cache_hit)",
	}, []string{"result"})

	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beetleboard_sync_runs_total",
		Help: "Sync runs by result",
	}, []string{"result"})

	syncDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beetleboard_sync_duration_seconds",
		Help:    "Wall-clock duration of sync runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 11),
	})

	leaderboardUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beetleboard_leaderboard_users",
		Help: "Number of users in the last published snapshot",
	})

	lastPublishTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beetleboard_last_publish_timestamp_seconds",
		Help: "Unix time of the last published snapshot",
	})
)

// Profile fetch results
const (
	ProfileSuccess  = "success"
	ProfileFailure  = "failure"
	ProfileInvalid  = "invalid"
	ProfileCacheHit = "cache_hit"
)

func UpstreamRequest(endpoint, outcome string) {
	upstreamRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
}

func UpstreamRetry(reason string) {
	upstreamRetriesTotal.WithLabelValues(reason).Inc()
}

func ProfileFetch(result string) {
	profileFetchesTotal.WithLabelValues(result).Inc()
}

// SyncFinished records the outcome of one sync run or pass
func SyncFinished(result string, duration time.Duration) {
	syncRunsTotal.WithLabelValues(result).Inc()
	syncDurationSeconds.Observe(duration.Seconds())
}

// Published records a successfully published snapshot
func Published(users int, at time.Time) {
	leaderboardUsers.Set(float64(users))
	lastPublishTimestamp.Set(float64(at.Unix()))
}
