package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and friends so callers can
// use errors.Is() for programmatic handling.
var (
	// ErrNoTarget is returned when no file to scan was given.
	ErrNoTarget = errors.New("no target specified: provide one or more file paths")

	// ErrNoHost is returned when the ICAP server host is empty.
	ErrNoHost = errors.New("no ICAP server host configured")

	// ErrInvalidPort is returned when the port is outside 1-65535.
	ErrInvalidPort = errors.New("invalid port: must be between 1 and 65535")

	// ErrNoEndpoint is returned when the ICAP service name is empty.
	ErrNoEndpoint = errors.New("no ICAP endpoint configured")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidMaxFileSize is returned when the file size limit is negative.
	ErrInvalidMaxFileSize = errors.New("invalid max file size: must not be negative")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidProxy is returned when the proxy URL cannot be turned into a dialer.
	ErrInvalidProxy = errors.New("invalid proxy URL")

	// ErrInvalidEnv is returned when an ICAP_* environment variable cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment variable")

	// ErrUnknownServer is returned when a named server profile does not exist.
	ErrUnknownServer = errors.New("unknown server profile")
)
