package pebble

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
)

// Values are stored as an 8 byte big-endian unix-nano expiry followed by the payload.
// An expiry of zero means the key never expires.
const envelopeHeader = 8

// Pebble is a KVStore on a local pebble database
type Pebble struct {
	db  *pebble.DB
	now func() time.Time
}

var (
	_ interfaces.KVStore     = &Pebble{}
	_ interfaces.BatchWriter = &Pebble{}
)

type Option func(*Pebble)

func WithClock(now func() time.Time) Option {
	return func(p *Pebble) {
		p.now = now
	}
}

func New(dir string, opts ...Option) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open pebble database", goerr.V("dir", dir))
	}

	p := &Pebble{db: db, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pebble) encode(value []byte, ttl time.Duration) []byte {
	buf := make([]byte, envelopeHeader+len(value))
	var expireAt int64
	if ttl > 0 {
		expireAt = p.now().Add(ttl).UnixNano()
	}
	binary.BigEndian.PutUint64(buf[:envelopeHeader], uint64(expireAt))
	copy(buf[envelopeHeader:], value)
	return buf
}

// decode returns the payload and false when the envelope is expired or malformed
func (p *Pebble) decode(raw []byte) ([]byte, bool) {
	if len(raw) < envelopeHeader {
		return nil, false
	}
	expireAt := int64(binary.BigEndian.Uint64(raw[:envelopeHeader]))
	if expireAt != 0 && p.now().UnixNano() >= expireAt {
		return nil, false
	}
	out := make([]byte, len(raw)-envelopeHeader)
	copy(out, raw[envelopeHeader:])
	return out, true
}

func (p *Pebble) Get(ctx context.Context, key string) ([]byte, error) {
	raw, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, goerr.Wrap(interfaces.ErrKeyNotFound, "key not found in pebble", goerr.V("key", key))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get key from pebble", goerr.V("key", key))
	}
	defer closer.Close()

	value, ok := p.decode(raw)
	if !ok {
		return nil, goerr.Wrap(interfaces.ErrKeyNotFound, "key expired in pebble", goerr.V("key", key))
	}
	return value, nil
}

func (p *Pebble) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := p.db.Set([]byte(key), p.encode(value, ttl), pebble.Sync); err != nil {
		return goerr.Wrap(err, "failed to set key in pebble", goerr.V("key", key))
	}
	return nil
}

// SetMany commits all entries in one pebble batch
func (p *Pebble) SetMany(ctx context.Context, entries []interfaces.KVEntry, ttl time.Duration) error {
	batch := p.db.NewBatch()
	defer batch.Close()

	for _, e := range entries {
		if err := batch.Set([]byte(e.Key), p.encode(e.Value, ttl), nil); err != nil {
			return goerr.Wrap(err, "failed to stage key in pebble batch", goerr.V("key", e.Key))
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return goerr.Wrap(err, "failed to commit pebble batch", goerr.V("entries", len(entries)))
	}
	return nil
}

func (p *Pebble) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	batch := p.db.NewBatch()
	defer batch.Close()

	for _, key := range keys {
		if err := batch.Delete([]byte(key), nil); err != nil {
			return goerr.Wrap(err, "failed to stage delete in pebble batch", goerr.V("key", key))
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return goerr.Wrap(err, "failed to delete keys from pebble", goerr.V("keys", keys))
	}
	return nil
}

func (p *Pebble) Scan(ctx context.Context, prefix string) ([]string, error) {
	opts := &pebble.IterOptions{LowerBound: []byte(prefix)}
	if upper := prefixUpperBound([]byte(prefix)); upper != nil {
		opts.UpperBound = upper
	}

	iter, err := p.db.NewIter(opts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create pebble iterator", goerr.V("prefix", prefix))
	}
	defer iter.Close()

	var keys []string
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), []byte(prefix)) {
			break
		}
		if _, ok := p.decode(iter.Value()); !ok {
			continue
		}
		keys = append(keys, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate pebble", goerr.V("prefix", prefix))
	}
	return keys, nil
}

func (p *Pebble) Close() error {
	if err := p.db.Close(); err != nil {
		return goerr.Wrap(err, "failed to close pebble database")
	}
	return nil
}

// prefixUpperBound returns the smallest key greater than every key with prefix,
// or nil when no such key exists.
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil
}
