package archive

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
)

// document is the archived object body
type document struct {
	Meta  model.SyncMetadata   `json:"meta"`
	Users []model.RankedRecord `json:"users"`
}

// GCS writes each published snapshot to a Cloud Storage bucket as JSON
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

type Option func(*GCS)

// WithPrefix places objects under prefix inside the bucket
func WithPrefix(prefix string) Option {
	return func(g *GCS) {
		g.prefix = prefix
	}
}

// New creates a GCS archiver using application default credentials
func New(ctx context.Context, bucket string, opts ...Option) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.New("archive bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	g := &GCS{client: client, bucket: bucket}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

func (g *GCS) Close() error {
	if err := g.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client")
	}
	return nil
}

// Archive uploads snapshot as <prefix>/snapshots/<YYYY>/<MM>/<DD>/<timestamp>.json
func (g *GCS) Archive(ctx context.Context, snapshot *model.Snapshot) error {
	if snapshot == nil {
		return nil
	}

	name := objectName(g.prefix, snapshot.Meta.LastUpdated)
	body, err := encode(snapshot)
	if err != nil {
		return err
	}

	w := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to write snapshot object", goerr.V("bucket", g.bucket), goerr.V("object", name))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to finalize snapshot object", goerr.V("bucket", g.bucket), goerr.V("object", name))
	}

	logging.From(ctx).Info("Archived leaderboard snapshot",
		"bucket", g.bucket,
		"object", name,
		"users", len(snapshot.Records))
	return nil
}

func objectName(prefix string, at time.Time) string {
	at = at.UTC()
	return path.Join(prefix, "snapshots", at.Format("2006/01/02"), at.Format("20060102T150405Z")+".json")
}

func encode(snapshot *model.Snapshot) ([]byte, error) {
	body, err := json.Marshal(document{Meta: snapshot.Meta, Users: snapshot.Records})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode snapshot")
	}
	return body, nil
}
