package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

// Store keys owned by the sync pipeline
const (
	SnapshotKey       = "leaderboard-snapshot"
	MetaKey           = "leaderboard-meta"
	UserListKey       = "user-list-cache"
	PartialKey        = "leaderboard-partial"
	PassUsersKey      = "leaderboard-pass-users"
	StatsKeyPrefix    = "leaderboard-stats:"
	ProgressKeyPrefix = "friends-progress:"
)

// FixedKeys are the single-instance keys removed by Flush
var FixedKeys = []string{SnapshotKey, MetaKey, UserListKey, PartialKey, PassUsersKey}

func StatsKey(username model.Username) string {
	return StatsKeyPrefix + username
}

func ProgressKey(seed model.Username) string {
	return ProgressKeyPrefix + seed
}

// Leaderboard is the typed repository over a KVStore
type Leaderboard struct {
	provider interfaces.StoreProvider
}

var _ interfaces.LeaderboardRepository = &Leaderboard{}

func NewLeaderboard(provider interfaces.StoreProvider) *Leaderboard {
	return &Leaderboard{provider: provider}
}

// getJSON decodes key into out. It returns false when the key is absent.
func (r *Leaderboard) getJSON(ctx context.Context, key string, out any) (bool, error) {
	store, err := r.provider.Store(ctx)
	if err != nil {
		return false, err
	}

	raw, err := store.Get(ctx, key)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, goerr.Wrap(err, "failed to read key", goerr.V("key", key))
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return false, goerr.Wrap(err, "failed to decode stored value", goerr.V("key", key))
	}
	return true, nil
}

func (r *Leaderboard) setJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return goerr.Wrap(err, "failed to encode value", goerr.V("key", key))
	}

	store, err := r.provider.Store(ctx)
	if err != nil {
		return err
	}
	if err := store.Set(ctx, key, raw, ttl); err != nil {
		return goerr.Wrap(err, "failed to write key", goerr.V("key", key))
	}
	return nil
}

func (r *Leaderboard) delete(ctx context.Context, keys ...string) error {
	store, err := r.provider.Store(ctx)
	if err != nil {
		return err
	}
	if err := store.Delete(ctx, keys...); err != nil {
		return goerr.Wrap(err, "failed to delete keys", goerr.V("keys", keys))
	}
	return nil
}

func (r *Leaderboard) GetSnapshot(ctx context.Context) ([]model.RankedRecord, error) {
	var records []model.RankedRecord
	found, err := r.getJSON(ctx, SnapshotKey, &records)
	if err != nil || !found {
		return nil, err
	}
	return records, nil
}

func (r *Leaderboard) GetMetadata(ctx context.Context) (*model.SyncMetadata, error) {
	var meta model.SyncMetadata
	found, err := r.getJSON(ctx, MetaKey, &meta)
	if err != nil || !found {
		return nil, err
	}
	return &meta, nil
}

// PublishSnapshot writes snapshot and metadata. Stores implementing
// BatchWriter write both keys at once. Otherwise the snapshot is written
// first and restored to its previous value if the metadata write fails.
// On such stores a reader can briefly see the new snapshot next to the
// previous metadata while the two writes are in flight.
func (r *Leaderboard) PublishSnapshot(ctx context.Context, records []model.RankedRecord, meta *model.SyncMetadata, ttl time.Duration) error {
	if records == nil {
		records = []model.RankedRecord{}
	}
	rawRecords, err := json.Marshal(records)
	if err != nil {
		return goerr.Wrap(err, "failed to encode snapshot")
	}
	rawMeta, err := json.Marshal(meta)
	if err != nil {
		return goerr.Wrap(err, "failed to encode metadata")
	}

	store, err := r.provider.Store(ctx)
	if err != nil {
		return err
	}

	if bw, ok := store.(interfaces.BatchWriter); ok {
		if err := bw.SetMany(ctx, []interfaces.KVEntry{
			{Key: SnapshotKey, Value: rawRecords},
			{Key: MetaKey, Value: rawMeta},
		}, ttl); err != nil {
			return goerr.Wrap(err, "failed to publish snapshot", goerr.V("records", len(records)))
		}
		return nil
	}

	prev, err := store.Get(ctx, SnapshotKey)
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return goerr.Wrap(err, "failed to read previous snapshot")
	}

	if err := store.Set(ctx, SnapshotKey, rawRecords, ttl); err != nil {
		return goerr.Wrap(err, "failed to write snapshot", goerr.V("records", len(records)))
	}

	if err := store.Set(ctx, MetaKey, rawMeta, ttl); err != nil {
		var restoreErr error
		if prev != nil {
			restoreErr = store.Set(ctx, SnapshotKey, prev, ttl)
		} else {
			restoreErr = store.Delete(ctx, SnapshotKey)
		}
		if restoreErr != nil {
			logging.From(ctx).Error("failed to restore previous snapshot", "error", restoreErr)
		}
		return goerr.Wrap(err, "failed to write metadata", goerr.V("records", len(records)))
	}
	return nil
}

func (r *Leaderboard) GetUserList(ctx context.Context) ([]model.Username, error) {
	var usernames []model.Username
	found, err := r.getJSON(ctx, UserListKey, &usernames)
	if err != nil || !found {
		return nil, err
	}
	return usernames, nil
}

func (r *Leaderboard) SaveUserList(ctx context.Context, usernames []model.Username, ttl time.Duration) error {
	return r.setJSON(ctx, UserListKey, usernames, ttl)
}

func (r *Leaderboard) GetStats(ctx context.Context, username model.Username) (*model.StatRecord, error) {
	var record model.StatRecord
	found, err := r.getJSON(ctx, StatsKey(username), &record)
	if err != nil || !found {
		return nil, err
	}
	return &record, nil
}

func (r *Leaderboard) SaveStats(ctx context.Context, record *model.StatRecord, ttl time.Duration) error {
	return r.setJSON(ctx, StatsKey(record.Username), record, ttl)
}

func (r *Leaderboard) GetProgress(ctx context.Context, seed model.Username) (*model.DiscoveryProgress, error) {
	var progress model.DiscoveryProgress
	found, err := r.getJSON(ctx, ProgressKey(seed), &progress)
	if err != nil || !found {
		return nil, err
	}
	return &progress, nil
}

func (r *Leaderboard) SaveProgress(ctx context.Context, progress *model.DiscoveryProgress, ttl time.Duration) error {
	return r.setJSON(ctx, ProgressKey(progress.Seed), progress, ttl)
}

func (r *Leaderboard) DeleteProgress(ctx context.Context, seed model.Username) error {
	return r.delete(ctx, ProgressKey(seed))
}

func (r *Leaderboard) GetPartial(ctx context.Context) ([]model.StatRecord, error) {
	var records []model.StatRecord
	found, err := r.getJSON(ctx, PartialKey, &records)
	if err != nil || !found {
		return nil, err
	}
	return records, nil
}

func (r *Leaderboard) SavePartial(ctx context.Context, records []model.StatRecord, ttl time.Duration) error {
	return r.setJSON(ctx, PartialKey, records, ttl)
}

func (r *Leaderboard) DeletePartial(ctx context.Context) error {
	return r.delete(ctx, PartialKey)
}

func (r *Leaderboard) GetPassUsers(ctx context.Context) ([]model.Username, error) {
	var usernames []model.Username
	found, err := r.getJSON(ctx, PassUsersKey, &usernames)
	if err != nil || !found {
		return nil, err
	}
	return usernames, nil
}

func (r *Leaderboard) SavePassUsers(ctx context.Context, usernames []model.Username, ttl time.Duration) error {
	return r.setJSON(ctx, PassUsersKey, usernames, ttl)
}

func (r *Leaderboard) DeletePassUsers(ctx context.Context) error {
	return r.delete(ctx, PassUsersKey)
}

// Flush removes every pipeline key including all per-user stats and progress checkpoints
func (r *Leaderboard) Flush(ctx context.Context) (*model.FlushResult, error) {
	store, err := r.provider.Store(ctx)
	if err != nil {
		return nil, err
	}

	result := &model.FlushResult{}
	for _, key := range FixedKeys {
		if _, err := store.Get(ctx, key); err == nil {
			result.Specific = append(result.Specific, key)
		}
	}
	if err := store.Delete(ctx, FixedKeys...); err != nil {
		return nil, goerr.Wrap(err, "failed to delete pipeline keys")
	}

	statsKeys, err := store.Scan(ctx, StatsKeyPrefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan stats keys")
	}
	if err := store.Delete(ctx, statsKeys...); err != nil {
		return nil, goerr.Wrap(err, "failed to delete stats keys", goerr.V("count", len(statsKeys)))
	}

	progressKeys, err := store.Scan(ctx, ProgressKeyPrefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan progress keys")
	}
	if err := store.Delete(ctx, progressKeys...); err != nil {
		return nil, goerr.Wrap(err, "failed to delete progress keys", goerr.V("count", len(progressKeys)))
	}

	result.StatsKeys = len(statsKeys)
	result.ProgressKeys = len(progressKeys)
	result.TotalDeleted = len(result.Specific) + result.StatsKeys + result.ProgressKeys
	return result, nil
}

// Status reports presence of the fixed keys and counts of per-user keys
func (r *Leaderboard) Status(ctx context.Context) (*model.CacheStatus, error) {
	store, err := r.provider.Store(ctx)
	if err != nil {
		return nil, err
	}

	status := &model.CacheStatus{KeyStatus: make(map[string]bool, len(FixedKeys))}
	for _, key := range FixedKeys {
		_, err := store.Get(ctx, key)
		switch {
		case err == nil:
			status.KeyStatus[key] = true
		case errors.Is(err, interfaces.ErrKeyNotFound):
			status.KeyStatus[key] = false
		default:
			return nil, goerr.Wrap(err, "failed to check key", goerr.V("key", key))
		}
	}

	statsKeys, err := store.Scan(ctx, StatsKeyPrefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan stats keys")
	}
	progressKeys, err := store.Scan(ctx, ProgressKeyPrefix)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan progress keys")
	}
	status.StatsKeyCount = len(statsKeys)
	status.ProgressKeyCount = len(progressKeys)
	return status, nil
}
