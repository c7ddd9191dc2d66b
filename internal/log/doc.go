// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// The SecureHandler masks:
//   - HTTP headers and attributes carrying credentials (X-API-KEY,
//     Authorization, Cookie, companyApiKey)
//   - values shaped like secrets (bearer tokens, JWTs, long opaque keys)
//   - passwords and credential query parameters inside logged URLs
//
// Even in verbose mode the API key used to authenticate to the
// classification service never reaches the log output.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//	logger.Info("classify request", "url", scanURL, "x-api-key", key)
//	slog.SetDefault(logger)
package log
