package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/beetleboard/pkg/domain/model"
)

// LeaderboardRepository is the typed view over the KVStore keys owned by the pipeline.
// Get methods return (nil, nil) when the key is absent or expired.
type LeaderboardRepository interface {
	GetSnapshot(ctx context.Context) ([]model.RankedRecord, error)
	GetMetadata(ctx context.Context) (*model.SyncMetadata, error)
	// PublishSnapshot replaces snapshot and metadata. On failure the previously
	// published snapshot stays visible. Stores without BatchWriter may expose
	// the new snapshot with the old metadata between the two writes.
	PublishSnapshot(ctx context.Context, records []model.RankedRecord, meta *model.SyncMetadata, ttl time.Duration) error

	GetUserList(ctx context.Context) ([]model.Username, error)
	SaveUserList(ctx context.Context, usernames []model.Username, ttl time.Duration) error

	GetStats(ctx context.Context, username model.Username) (*model.StatRecord, error)
	SaveStats(ctx context.Context, record *model.StatRecord, ttl time.Duration) error

	GetProgress(ctx context.Context, seed model.Username) (*model.DiscoveryProgress, error)
	SaveProgress(ctx context.Context, progress *model.DiscoveryProgress, ttl time.Duration) error
	DeleteProgress(ctx context.Context, seed model.Username) error

	GetPartial(ctx context.Context) ([]model.StatRecord, error)
	SavePartial(ctx context.Context, records []model.StatRecord, ttl time.Duration) error
	DeletePartial(ctx context.Context) error

	// Pass users is the population fixed by the first pass of a pass chain
	GetPassUsers(ctx context.Context) ([]model.Username, error)
	SavePassUsers(ctx context.Context, usernames []model.Username, ttl time.Duration) error
	DeletePassUsers(ctx context.Context) error

	Flush(ctx context.Context) (*model.FlushResult, error)
	Status(ctx context.Context) (*model.CacheStatus, error)
}
