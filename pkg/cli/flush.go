package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/beetleboard/pkg/cli/config"
	"github.com/secmon-lab/beetleboard/pkg/repository"
	"github.com/secmon-lab/beetleboard/pkg/usecase"
	"github.com/secmon-lab/beetleboard/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdFlush() *cli.Command {
	var storeCfg config.Store
	var statusOnly bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "status",
			Usage:       "Report which pipeline keys exist without deleting anything",
			Destination: &statusOnly,
		},
	}
	flags = append(flags, storeCfg.Flags()...)

	return &cli.Command{
		Name:  "flush",
		Usage: "Delete every pipeline key from the store",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			conn, err := storeCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure store")
			}
			defer func() {
				if err := conn.Disconnect(ctx); err != nil {
					logging.Default().Error("failed to close store", "error", err.Error())
				}
			}()

			cache := usecase.NewCacheUseCase(repository.NewLeaderboard(conn))
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			if statusOnly {
				status, err := cache.Status(ctx)
				if err != nil {
					return err
				}
				return enc.Encode(status)
			}

			result, err := cache.Flush(ctx)
			if err != nil {
				return err
			}
			logging.Default().Info("Cache flushed", "deleted", result.TotalDeleted)
			return enc.Encode(result)
		},
	}
}
