package firestore

import (
	"context"
	"encoding/base64"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// Firestore documents are limited to 1 MiB. Values are split into parts
	// below that size with room left for the other fields.
	maxPartSize = 900 * 1024

	// Maximum writes per Firestore transaction
	maxTxWrites = 500
)

// kvDoc is the Firestore persistence model of one key. Parts beyond the
// first are stored in the "parts" subcollection as partDoc.
type kvDoc struct {
	Key      string     `firestore:"key"`
	Value    []byte     `firestore:"value"`
	Parts    int        `firestore:"parts"`
	ExpireAt *time.Time `firestore:"expire_at"`
}

type partDoc struct {
	Value    []byte     `firestore:"value"`
	ExpireAt *time.Time `firestore:"expire_at"`
}

// Document IDs cannot contain '/', so keys are encoded
func docID(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (f *Firestore) docRef(key string) *firestore.DocumentRef {
	return f.collection().Doc(docID(key))
}

func partRef(doc *firestore.DocumentRef, n int) *firestore.DocumentRef {
	return doc.Collection(PartsCollection).Doc(strconv.Itoa(n))
}

func expireAt(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl).UTC()
	return &t
}

func isExpired(t *time.Time) bool {
	return t != nil && !time.Now().Before(*t)
}

func splitParts(value []byte) [][]byte {
	if len(value) <= maxPartSize {
		return [][]byte{value}
	}
	var parts [][]byte
	for start := 0; start < len(value); start += maxPartSize {
		end := min(start+maxPartSize, len(value))
		parts = append(parts, value[start:end])
	}
	return parts
}

func (f *Firestore) Get(ctx context.Context, key string) ([]byte, error) {
	ref := f.docRef(key)
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(interfaces.ErrKeyNotFound, "key not found in firestore", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to get key from firestore", goerr.V("key", key))
	}

	var doc kvDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal kv document", goerr.V("key", key))
	}
	// TTL deletion in Firestore is lazy, so expiry is checked on read too
	if isExpired(doc.ExpireAt) {
		return nil, goerr.Wrap(interfaces.ErrKeyNotFound, "key expired in firestore", goerr.V("key", key))
	}
	if doc.Parts <= 1 {
		return doc.Value, nil
	}

	refs := make([]*firestore.DocumentRef, 0, doc.Parts-1)
	for n := 1; n < doc.Parts; n++ {
		refs = append(refs, partRef(ref, n))
	}
	snaps, err := f.client.GetAll(ctx, refs)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get kv parts", goerr.V("key", key), goerr.V("parts", doc.Parts))
	}

	value := doc.Value
	for i, ps := range snaps {
		if !ps.Exists() {
			return nil, goerr.New("kv part is missing", goerr.V("key", key), goerr.V("part", i+1))
		}
		var part partDoc
		if err := ps.DataTo(&part); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal kv part", goerr.V("key", key), goerr.V("part", i+1))
		}
		value = append(value, part.Value...)
	}
	return value, nil
}

func (f *Firestore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return f.SetMany(ctx, []interfaces.KVEntry{{Key: key, Value: value}}, ttl)
}

// SetMany writes all entries and their parts in a single transaction
func (f *Firestore) SetMany(ctx context.Context, entries []interfaces.KVEntry, ttl time.Duration) error {
	exp := expireAt(ttl)

	writes := 0
	for _, e := range entries {
		writes += len(splitParts(e.Value))
	}
	if writes > maxTxWrites {
		return goerr.New("too many firestore writes for one transaction",
			goerr.V("writes", writes), goerr.V("limit", maxTxWrites))
	}

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, e := range entries {
			parts := splitParts(e.Value)
			ref := f.docRef(e.Key)
			if err := tx.Set(ref, &kvDoc{
				Key:      e.Key,
				Value:    parts[0],
				Parts:    len(parts),
				ExpireAt: exp,
			}); err != nil {
				return goerr.Wrap(err, "failed to stage kv document", goerr.V("key", e.Key))
			}
			for n := 1; n < len(parts); n++ {
				if err := tx.Set(partRef(ref, n), &partDoc{Value: parts[n], ExpireAt: exp}); err != nil {
					return goerr.Wrap(err, "failed to stage kv part", goerr.V("key", e.Key), goerr.V("part", n))
				}
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to write kv documents", goerr.V("entries", len(entries)))
	}
	return nil
}

func (f *Firestore) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		ref := f.docRef(key)
		err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return nil
				}
				return goerr.Wrap(err, "failed to get kv document")
			}

			var doc kvDoc
			if err := snap.DataTo(&doc); err != nil {
				return goerr.Wrap(err, "failed to unmarshal kv document")
			}
			for n := 1; n < doc.Parts; n++ {
				if err := tx.Delete(partRef(ref, n)); err != nil {
					return goerr.Wrap(err, "failed to stage kv part delete", goerr.V("part", n))
				}
			}
			return tx.Delete(ref)
		})
		if err != nil {
			return goerr.Wrap(err, "failed to delete key from firestore", goerr.V("key", key))
		}
	}
	return nil
}

func (f *Firestore) Scan(ctx context.Context, prefix string) ([]string, error) {
	query := f.collection().Select("key", ExpireAtField).Where("key", ">=", prefix)
	if prefix != "" {
		query = query.Where("key", "<", prefix+"\uf8ff")
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var keys []string
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan kv documents", goerr.V("prefix", prefix))
		}

		var doc kvDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal kv document", goerr.V("docID", snap.Ref.ID))
		}
		if isExpired(doc.ExpireAt) {
			continue
		}
		keys = append(keys, doc.Key)
	}
	return keys, nil
}
