package classifier

import "errors"

// Causes wrapped inside a model.ScanError of kind KindMalformedResponse.
var (
	// ErrNotJSON is returned when the service body is not a JSON object.
	ErrNotJSON = errors.New("response is not a JSON object")

	// ErrNoVerdict is returned when none of the known verdict fields are
	// present in the response.
	ErrNoVerdict = errors.New("response has no verdict field")

	// ErrWrongVerdictType is returned when a verdict field is present but
	// holds a value of the wrong type or an unknown label.
	ErrWrongVerdictType = errors.New("verdict field has an unexpected value")

	// ErrResponseTooLarge is returned when the body exceeds the configured
	// size limit.
	ErrResponseTooLarge = errors.New("response body exceeds size limit")
)

// ErrInvalidProxyAddress is returned by New when the proxy address is not
// in "host:port" form.
var ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
