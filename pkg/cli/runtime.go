package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/cli/config"
	"github.com/secmon-lab/beetleboard/pkg/domain/interfaces"
	"github.com/secmon-lab/beetleboard/pkg/repository"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// pipelineConfig groups the flags every sync capable command shares
type pipelineConfig struct {
	store    config.Store
	upstream config.Upstream
	pipeline config.Pipeline
	slack    config.Slack
	archive  config.Archive
}

func (x *pipelineConfig) Flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, x.store.Flags()...)
	flags = append(flags, x.upstream.Flags()...)
	flags = append(flags, x.pipeline.Flags()...)
	flags = append(flags, x.slack.Flags()...)
	flags = append(flags, x.archive.Flags()...)
	return flags
}

// runtime is the wired object graph of one process
type runtime struct {
	conn     *repository.Connector
	uc       *usecase.UseCases
	notifier interfaces.Notifier
	closers  []func() error
}

func (x *pipelineConfig) build(ctx context.Context) (_ *runtime, err error) {
	pipeline, err := x.pipeline.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load pipeline policy")
	}

	conn, err := x.store.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure store")
	}

	upstream, err := x.upstream.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure upstream client")
	}

	rt := &runtime{conn: conn}
	rt.closers = append(rt.closers, func() error { return conn.Disconnect(context.Background()) })
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	ucOpts := []usecase.Option{usecase.WithPipeline(pipeline)}

	archiver, err := x.archive.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure snapshot archive")
	}
	if archiver != nil {
		ucOpts = append(ucOpts, usecase.WithArchiver(archiver))
		rt.closers = append(rt.closers, archiver.Close)
		logging.Default().Info("Snapshot archive enabled", "archive", x.archive)
	}

	notifier, err := x.slack.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to configure slack notifier")
	}
	if notifier != nil {
		rt.notifier = notifier
		logging.Default().Info("Slack notification enabled", "slack", x.slack)
	}

	rt.uc = usecase.New(repository.NewLeaderboard(conn), upstream, ucOpts...)

	logging.Default().Info("Pipeline configured",
		"upstream", x.upstream,
		"seeds", pipeline.Discovery.Seeds,
		"batch_size", pipeline.Sync.BatchSize,
		"concurrency", pipeline.Sync.Concurrency,
		"pass_limit", pipeline.Sync.PassLimit)
	return rt, nil
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			logging.Default().Error("failed to close resource", "error", err.Error())
		}
	}
}
