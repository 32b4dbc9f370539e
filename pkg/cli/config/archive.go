package config

import (
	"context"
	"log/slog"

	"github.com/secmon-lab/beetleboard/pkg/service/archive"
	"github.com/urfave/cli/v3"
)

type Archive struct {
	bucket string
	prefix string
}

func (x *Archive) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket receiving a copy of every published snapshot",
			Category:    "Archive",
			Sources:     cli.EnvVars("BEETLEBOARD_ARCHIVE_BUCKET"),
			Destination: &x.bucket,
		},
		&cli.StringFlag{
			Name:        "archive-prefix",
			Usage:       "Object prefix inside the archive bucket",
			Category:    "Archive",
			Sources:     cli.EnvVars("BEETLEBOARD_ARCHIVE_PREFIX"),
			Destination: &x.prefix,
		},
	}
}

func (x Archive) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("bucket", x.bucket),
		slog.String("prefix", x.prefix),
	)
}

// Configure returns the archiver, or nil when no bucket is set
func (x *Archive) Configure(ctx context.Context) (*archive.GCS, error) {
	if x.bucket == "" {
		return nil, nil
	}
	return archive.New(ctx, x.bucket, archive.WithPrefix(x.prefix))
}
