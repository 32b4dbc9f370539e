package config

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Discovery is the policy of the seed friend-list crawl
type Discovery struct {
	Seeds         []string
	PageSize      int
	PageDelay     time.Duration
	SeedBudget    time.Duration // wall-clock budget per seed crawl
	MinPopulation int           // sanity floor below which discovery fails
	UserListTTL   time.Duration
	ProgressTTL   time.Duration
}

// Sync is the policy of the batch orchestrator and the publication gate
type Sync struct {
	BatchSize           int
	Concurrency         int
	BatchDelay          time.Duration
	Budget              time.Duration
	CompletionThreshold float64 // fraction of expected users required to publish
	PassLimit           int     // usernames per pass; 0 runs everything in one pass
	StatsTTL            time.Duration
	SnapshotTTL         time.Duration
}

// Pipeline holds both policies
type Pipeline struct {
	Discovery Discovery
	Sync      Sync
}

func DefaultDiscovery() Discovery {
	return Discovery{
		Seeds:         []string{"remilia_jackson", "xultra"},
		PageSize:      1000,
		PageDelay:     500 * time.Millisecond,
		SeedBudget:    2 * time.Minute,
		MinPopulation: 100,
		UserListTTL:   24 * time.Hour,
		ProgressTTL:   24 * time.Hour,
	}
}

func DefaultSync() Sync {
	return Sync{
		BatchSize:           50,
		Concurrency:         15,
		BatchDelay:          1500 * time.Millisecond,
		Budget:              13 * time.Minute,
		CompletionThreshold: 0.85,
		StatsTTL:            5 * time.Hour,
		SnapshotTTL:         24 * time.Hour,
	}
}

func DefaultPipeline() Pipeline {
	return Pipeline{Discovery: DefaultDiscovery(), Sync: DefaultSync()}
}

func (d Discovery) Validate() error {
	if len(d.Seeds) == 0 {
		return goerr.New("at least one seed is required")
	}
	for _, seed := range d.Seeds {
		if seed == "" {
			return goerr.New("seed must not be empty")
		}
	}
	if d.PageSize <= 0 {
		return goerr.New("page size must be positive", goerr.V("page_size", d.PageSize))
	}
	if d.PageDelay < 0 || d.SeedBudget <= 0 {
		return goerr.New("invalid discovery durations",
			goerr.V("page_delay", d.PageDelay), goerr.V("seed_budget", d.SeedBudget))
	}
	if d.MinPopulation < 0 {
		return goerr.New("min population must not be negative", goerr.V("min_population", d.MinPopulation))
	}
	return nil
}

func (s Sync) Validate() error {
	if s.BatchSize <= 0 || s.Concurrency <= 0 {
		return goerr.New("batch size and concurrency must be positive",
			goerr.V("batch_size", s.BatchSize), goerr.V("concurrency", s.Concurrency))
	}
	if s.BatchDelay < 0 || s.Budget <= 0 {
		return goerr.New("invalid sync durations",
			goerr.V("batch_delay", s.BatchDelay), goerr.V("budget", s.Budget))
	}
	if s.CompletionThreshold <= 0 || s.CompletionThreshold > 1 {
		return goerr.New("completion threshold must be in (0, 1]", goerr.V("completion_threshold", s.CompletionThreshold))
	}
	if s.PassLimit < 0 {
		return goerr.New("pass limit must not be negative", goerr.V("pass_limit", s.PassLimit))
	}
	return nil
}

func (p Pipeline) Validate() error {
	if err := p.Discovery.Validate(); err != nil {
		return goerr.Wrap(err, "invalid discovery policy")
	}
	if err := p.Sync.Validate(); err != nil {
		return goerr.Wrap(err, "invalid sync policy")
	}
	return nil
}
