package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	domainConfig "github.com/secmon-lab/beetleboard/pkg/domain/model/config"
	"github.com/urfave/cli/v3"
)

// Pipeline holds the path of the optional TOML policy file
type Pipeline struct {
	path      string
	passLimit int
}

// pipelineFile is the TOML layout. Absent keys keep their defaults.
type pipelineFile struct {
	Discovery struct {
		Seeds         []string `toml:"seeds"`
		PageSize      *int     `toml:"page_size"`
		PageDelay     *string  `toml:"page_delay"`
		SeedBudget    *string  `toml:"seed_budget"`
		MinPopulation *int     `toml:"min_population"`
		UserListTTL   *string  `toml:"user_list_ttl"`
		ProgressTTL   *string  `toml:"progress_ttl"`
	} `toml:"discovery"`

	Sync struct {
		BatchSize           *int     `toml:"batch_size"`
		Concurrency         *int     `toml:"concurrency"`
		BatchDelay          *string  `toml:"batch_delay"`
		Budget              *string  `toml:"budget"`
		CompletionThreshold *float64 `toml:"completion_threshold"`
		PassLimit           *int     `toml:"pass_limit"`
		StatsTTL            *string  `toml:"stats_ttl"`
		SnapshotTTL         *string  `toml:"snapshot_ttl"`
	} `toml:"sync"`
}

func (x *Pipeline) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "pipeline-config",
			Usage:       "Path of the TOML file with [discovery] and [sync] policy tables",
			Category:    "Pipeline",
			Sources:     cli.EnvVars("BEETLEBOARD_PIPELINE_CONFIG"),
			Destination: &x.path,
		},
		&cli.IntFlag{
			Name:        "pass-limit",
			Usage:       "Usernames per sync pass, overriding the policy file (0 keeps the file value)",
			Category:    "Pipeline",
			Sources:     cli.EnvVars("BEETLEBOARD_PASS_LIMIT"),
			Destination: &x.passLimit,
		},
	}
}

func (x Pipeline) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", x.path),
		slog.Int("pass_limit", x.passLimit),
	)
}

// Configure returns the default policy overlaid with the file, if one is set
func (x *Pipeline) Configure() (domainConfig.Pipeline, error) {
	cfg := domainConfig.DefaultPipeline()

	if x.path != "" {
		data, err := os.ReadFile(x.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return cfg, goerr.Wrap(ErrConfigNotFound, "pipeline config not found", goerr.V(ConfigPathKey, x.path))
			}
			return cfg, goerr.Wrap(err, "failed to read pipeline config", goerr.V(ConfigPathKey, x.path))
		}

		cfg, err = ParsePipeline(data, cfg)
		if err != nil {
			return cfg, goerr.Wrap(err, "failed to parse pipeline config", goerr.V(ConfigPathKey, x.path))
		}
	}

	if x.passLimit < 0 {
		return cfg, goerr.Wrap(ErrInvalidConfig, "pass-limit must not be negative", goerr.V(OptionKey, x.passLimit))
	}
	if x.passLimit > 0 {
		cfg.Sync.PassLimit = x.passLimit
	}

	if err := cfg.Validate(); err != nil {
		return cfg, goerr.Wrap(ErrInvalidConfig, err.Error())
	}
	return cfg, nil
}

// ParsePipeline overlays the TOML document data onto base
func ParsePipeline(data []byte, base domainConfig.Pipeline) (domainConfig.Pipeline, error) {
	var file pipelineFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return base, goerr.Wrap(ErrInvalidConfig, err.Error())
	}

	cfg := base
	d, s := file.Discovery, file.Sync

	if d.Seeds != nil {
		cfg.Discovery.Seeds = d.Seeds
	}
	setInt(&cfg.Discovery.PageSize, d.PageSize)
	setInt(&cfg.Discovery.MinPopulation, d.MinPopulation)
	setInt(&cfg.Sync.BatchSize, s.BatchSize)
	setInt(&cfg.Sync.Concurrency, s.Concurrency)
	setInt(&cfg.Sync.PassLimit, s.PassLimit)
	if s.CompletionThreshold != nil {
		cfg.Sync.CompletionThreshold = *s.CompletionThreshold
	}

	durations := []struct {
		key string
		src *string
		dst *time.Duration
	}{
		{"discovery.page_delay", d.PageDelay, &cfg.Discovery.PageDelay},
		{"discovery.seed_budget", d.SeedBudget, &cfg.Discovery.SeedBudget},
		{"discovery.user_list_ttl", d.UserListTTL, &cfg.Discovery.UserListTTL},
		{"discovery.progress_ttl", d.ProgressTTL, &cfg.Discovery.ProgressTTL},
		{"sync.batch_delay", s.BatchDelay, &cfg.Sync.BatchDelay},
		{"sync.budget", s.Budget, &cfg.Sync.Budget},
		{"sync.stats_ttl", s.StatsTTL, &cfg.Sync.StatsTTL},
		{"sync.snapshot_ttl", s.SnapshotTTL, &cfg.Sync.SnapshotTTL},
	}
	for _, item := range durations {
		if item.src == nil {
			continue
		}
		v, err := time.ParseDuration(*item.src)
		if err != nil {
			return base, goerr.Wrap(ErrInvalidConfig, "invalid duration",
				goerr.V(OptionKey, item.key), goerr.V("value", *item.src))
		}
		*item.dst = v
	}

	return cfg, nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
