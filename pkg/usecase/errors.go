package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Run-fatal sync errors. The previously published snapshot is left untouched.
	ErrDiscoveryFailed = errors.New("user discovery failed")
	ErrNoUsersFetched  = errors.New("no users fetched")
	ErrIncompleteSync  = errors.New("incomplete sync")

	ErrSyncInProgress = errors.New("sync already in progress")

	// Read side errors
	ErrSnapshotUnavailable = errors.New("leaderboard snapshot unavailable")
	ErrInvalidQuery        = errors.New("invalid leaderboard query")
	ErrUserNotFound        = errors.New("user not found")
)
