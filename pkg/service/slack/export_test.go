package slack

// Export internal functions and types for testing
var (
	// WithClock is exported for testing suppress windows
	TestWithClock = withClock

	// TruncateToMaxBytes is exported for testing UTF-8 truncation
	TruncateToMaxBytes = truncateToMaxBytes
)
