package model

import "time"

// SchedulerStatus is the read-only view of the sync scheduler
type SchedulerStatus struct {
	IsRunning           bool       `json:"isRunning"`
	IsManualSyncRunning bool       `json:"isManualSyncRunning"`
	IsSyncInProgress    bool       `json:"isSyncInProgress"`
	Schedule            string     `json:"schedule"`
	Timezone            string     `json:"timezone"`
	NextRun             *time.Time `json:"nextRun,omitempty"`
	LastRun             *time.Time `json:"lastRun,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
}
