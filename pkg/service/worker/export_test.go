package worker

import "context"

// RunScheduled runs one scheduled tick synchronously
func (s *SyncScheduler) RunScheduled(ctx context.Context) {
	s.runScheduled(ctx)
}
