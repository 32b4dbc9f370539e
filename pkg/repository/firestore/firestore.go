package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
)

// CollectionName is the collection holding one document per key. The TTL
// policy on ExpireAtField is configured by the migrate command.
const (
	CollectionName  = "kv"
	PartsCollection = "parts"
	ExpireAtField   = "expire_at"
)

type Firestore struct {
	client           *firestore.Client
	collectionPrefix string
}

var (
	_ interfaces.KVStore     = &Firestore{}
	_ interfaces.BatchWriter = &Firestore{}
)

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.collectionPrefix = prefix
	}
}

func New(ctx context.Context, projectID, databaseID string, opts ...Option) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID),
			goerr.V("databaseID", databaseID))
	}

	f := &Firestore{client: client}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// CollectionID returns the collection name after applying prefix
func CollectionID(prefix string) string {
	if prefix != "" {
		return prefix + "_" + CollectionName
	}
	return CollectionName
}

func (f *Firestore) collection() *firestore.CollectionRef {
	return f.client.Collection(CollectionID(f.collectionPrefix))
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
