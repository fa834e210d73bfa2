package limits

// Size limits for the daemon API

const (
	// JSON caps API request and response payloads (1MB). The app list and
	// health snapshot are small; anything larger indicates a broken client.
	JSON = 1 << 20

	// ErrorBody is the maximum size for error response bodies (1KB)
	// Used when parsing error messages from failed API calls
	ErrorBody = 1024
)
