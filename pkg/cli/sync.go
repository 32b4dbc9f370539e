package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/domain/model"
	"github.com/secmon-lab/beetleboard/pkg/utils/errutil"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdSync() *cli.Command {
	var pipelineCfg pipelineConfig

	return &cli.Command{
		Name:  "sync",
		Usage: "Run one leaderboard sync and exit",
		Flags: pipelineCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			rt, err := pipelineCfg.build(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			var snapshot *model.Snapshot
			if limit := rt.uc.Sync.PassLimit(); limit > 0 {
				snapshot, err = rt.uc.Sync.RunPasses(ctx, limit)
			} else {
				snapshot, err = rt.uc.Sync.Run(ctx)
			}
			if err != nil {
				if rt.notifier != nil {
					if nerr := rt.notifier.NotifySyncFailure(ctx, err); nerr != nil {
						_ = errutil.Handle(ctx, nerr, "failed to notify sync failure")
					}
				}
				return goerr.Wrap(err, "sync failed")
			}

			printSummary(os.Stdout, snapshot)
			logging.Default().Info("Sync completed", "users", len(snapshot.Records))
			return nil
		},
	}
}

func printSummary(w io.Writer, snapshot *model.Snapshot) {
	meta := snapshot.Meta
	m := meta.SyncMetrics

	title := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgWhite)
	good := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)

	_, _ = title.Fprintln(w, "Leaderboard published")
	row := func(name string, value any, c *color.Color) {
		_, _ = label.Fprintf(w, "  %-20s", name)
		_, _ = c.Fprintln(w, fmt.Sprint(value))
	}

	row("users", meta.TotalUsers, good)
	row("expected", meta.ExpectedUsers, label)
	completion := good
	if meta.CompletionRate < 95 {
		completion = warn
	}
	row("completion", fmt.Sprintf("%.1f%%", meta.CompletionRate), completion)
	row("top beetles", meta.TopBeetles, label)
	row("total pokes", meta.TotalPokes, label)
	row("active users", meta.ActiveUsers, label)

	failed := label
	if m.FailedFetches > 0 {
		failed = warn
	}
	row("fetched", m.SuccessfulFetches, good)
	row("cache hits", m.CacheHits, label)
	row("failed", m.FailedFetches, failed)
	row("invalid", m.InvalidProfiles, label)
	row("duration", fmt.Sprintf("%.1fs", float64(m.TotalDuration)/1000), label)

	if len(snapshot.Records) > 0 {
		top := snapshot.Records[0]
		row("leader", fmt.Sprintf("%s (%d beetles)", top.Username, top.Beetles), good)
	}
}
