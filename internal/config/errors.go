package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() and describe the first
// invalid setting found. Callers can match them with errors.Is().
var (
	// ErrNoTarget is returned when the scan command is given no URL.
	ErrNoTarget = errors.New("no target specified: provide one or more URLs to scan")

	// ErrInvalidServiceURL is returned when the classification service URL
	// is empty, relative, or not http(s).
	ErrInvalidServiceURL = errors.New("invalid service URL: must be an absolute http or https URL")

	// ErrInvalidEndpoint is returned when the classification endpoint path
	// does not start with a slash.
	ErrInvalidEndpoint = errors.New("invalid endpoint: must be a path starting with /")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is
	// set but not in host:port form.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")

	// ErrInvalidListenAddress is returned when the daemon listen address is
	// not in host:port form.
	ErrInvalidListenAddress = errors.New("invalid listen address: expected host:port")

	// ErrUnknownCredentialBackend is returned for a credential backend other
	// than "database" or "keyring".
	ErrUnknownCredentialBackend = errors.New("unknown credential backend: want database or keyring")
)
