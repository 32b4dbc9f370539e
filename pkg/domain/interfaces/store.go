package interfaces

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// ErrKeyNotFound is wrapped by every KVStore when a key is absent or expired
var ErrKeyNotFound = goerr.New("key not found")

// KVStore is the durable cache shared by the sync pipeline and the read side.
// Each operation is atomic per key; there are no cross-key transactions.
type KVStore interface {
	// Get returns the value of key, or an error wrapping ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error

	// Scan returns all live keys starting with prefix
	Scan(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

// KVEntry is one key/value pair of a batch write
type KVEntry struct {
	Key   string
	Value []byte
}

// BatchWriter is implemented by stores that can write several keys all-or-nothing
type BatchWriter interface {
	SetMany(ctx context.Context, entries []KVEntry, ttl time.Duration) error
}

// StoreProvider hands out the current store handle, connecting lazily
type StoreProvider interface {
	Store(ctx context.Context) (KVStore, error)
}
