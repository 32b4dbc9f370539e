package config

import "time"

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, channelID string, suppressWindow time.Duration) *Slack {
	return &Slack{
		botToken:       botToken,
		channelID:      channelID,
		suppressWindow: suppressWindow,
	}
}

// NewStoreForTest creates a Store config for testing purposes
func NewStoreForTest(backend, pebblePath, redisURL, projectID string) *Store {
	return &Store{
		backend:            backend,
		pebblePath:         pebblePath,
		redisURL:           redisURL,
		firestoreProjectID: projectID,
	}
}

// NewPipelineForTest creates a Pipeline config for testing purposes
func NewPipelineForTest(path string, passLimit int) *Pipeline {
	return &Pipeline{path: path, passLimit: passLimit}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

// NewUpstreamForTest creates an Upstream config for testing purposes
func NewUpstreamForTest(baseURL string, timeout time.Duration, retries int, rps float64) *Upstream {
	return &Upstream{baseURL: baseURL, timeout: timeout, retries: retries, rps: rps, burst: 1}
}

var ParseLevel = parseLevel
