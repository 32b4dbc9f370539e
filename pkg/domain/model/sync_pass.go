package model

import "github.com/m-mizutani/goerr/v2"

// SyncPass describes one invocation of a multi-invocation sync. Passes are 1-based;
// each covers usernames[Offset:Offset+Limit] of the discovered population.
type SyncPass struct {
	Pass        int `json:"pass"`
	TotalPasses int `json:"totalPasses"`
	Offset      int `json:"offset"`
	Limit       int `json:"limit"`
}

// IsFinal reports whether this pass publishes the leaderboard
func (p SyncPass) IsFinal() bool {
	return p.Pass >= p.TotalPasses
}

// Validate checks the descriptor is internally consistent
func (p SyncPass) Validate() error {
	if p.Pass < 1 || p.TotalPasses < p.Pass || p.Offset < 0 || p.Limit < 1 {
		return goerr.Wrap(ErrInvalidSyncPass, "pass out of range",
			goerr.V("pass", p.Pass),
			goerr.V("total_passes", p.TotalPasses),
			goerr.V("offset", p.Offset),
			goerr.V("limit", p.Limit))
	}
	return nil
}

// PlanPasses returns the first pass of a sync over total users split into passes of limit users.
// It returns nil when there is nothing to do.
func PlanPasses(total, limit int) *SyncPass {
	if total <= 0 || limit <= 0 {
		return nil
	}
	return &SyncPass{
		Pass:        1,
		TotalPasses: (total + limit - 1) / limit,
		Offset:      0,
		Limit:       limit,
	}
}

// NextPass returns the descriptor following current, or nil after the final pass
func NextPass(current SyncPass) *SyncPass {
	if current.IsFinal() {
		return nil
	}
	return &SyncPass{
		Pass:        current.Pass + 1,
		TotalPasses: current.TotalPasses,
		Offset:      current.Offset + current.Limit,
		Limit:       current.Limit,
	}
}
