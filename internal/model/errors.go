package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// URL validation errors.
var (
	// ErrEmptyURL is returned when no URL is available for a tab.
	ErrEmptyURL = errors.New("no URL provided")

	// ErrMalformedURL is returned when the URL cannot be parsed or is not a
	// navigable absolute URL.
	ErrMalformedURL = errors.New("malformed URL")

	// ErrUnsupportedScheme is returned for URLs that are not http or https,
	// such as chrome:// or file:// pages.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// ErrorKind classifies why a scan did not produce a verdict.
// Every kind is scoped to the single scan that triggered it.
type ErrorKind int

const (
	// KindNone means the scan succeeded.
	KindNone ErrorKind = iota

	// KindInvalidInput means no usable URL was available. Not retried.
	KindInvalidInput

	// KindMissingCredential means the deployment requires an API key and
	// none is configured. No network call is made.
	KindMissingCredential

	// KindServiceError means the service answered with a non-2xx status.
	KindServiceError

	// KindUnreachable means the service could not be reached (connection
	// refused, DNS failure, timeout).
	KindUnreachable

	// KindMalformedResponse means the service answered 2xx but the verdict
	// field was absent or of the wrong shape.
	KindMalformedResponse

	// KindSuperseded means the tab navigated away or a newer scan replaced
	// this one before it completed. Superseded results are never displayed.
	KindSuperseded

	// KindCanceled means the caller stopped waiting, for example on Ctrl-C.
	// The shared call may still complete for other waiters.
	KindCanceled

	// KindCredentialUnavailable means the credential store could not be
	// read. Distinct from KindMissingCredential, where the store works but
	// holds no key.
	KindCredentialUnavailable
)

var kindNames = map[ErrorKind]string{
	KindNone:              "",
	KindInvalidInput:      "invalid_input",
	KindMissingCredential: "missing_credential",
	KindServiceError:      "service_error",
	KindUnreachable:       "unreachable",
	KindMalformedResponse: "malformed_response",
	KindSuperseded:        "superseded",
	KindCanceled:          "canceled",

	KindCredentialUnavailable: "credential_unavailable",
}

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseErrorKind converts a wire name back into an ErrorKind.
func ParseErrorKind(s string) (ErrorKind, error) {
	s = strings.TrimSpace(s)
	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}
	return KindNone, fmt.Errorf("unknown error kind %q", s)
}

// MarshalJSON encodes the kind by name.
func (k ErrorKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a kind from its name.
func (k *ErrorKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseErrorKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Message returns the text shown to the user for a failed scan.
// statusCode is only used by KindServiceError.
func (k ErrorKind) Message(statusCode int) string {
	switch k {
	case KindNone:
		return ""
	case KindInvalidInput:
		return "Error: Could not determine."
	case KindMissingCredential:
		return "API key missing."
	case KindServiceError:
		if statusCode > 0 {
			return fmt.Sprintf("Service error (HTTP %d).", statusCode)
		}
		return "Service error."
	case KindUnreachable:
		return "Could not connect to the server."
	case KindMalformedResponse:
		return "Unexpected response from the server."
	case KindSuperseded:
		return "Scan cancelled: the page changed."
	case KindCanceled:
		return "Scan cancelled."
	case KindCredentialUnavailable:
		return "Could not read the stored API key."
	default:
		return "Unable to fetch prediction."
	}
}

// Sentinels for errors.Is matching against a *ScanError.
var (
	ErrInvalidInput      = &ScanError{Kind: KindInvalidInput}
	ErrMissingCredential = &ScanError{Kind: KindMissingCredential}
	ErrServiceError      = &ScanError{Kind: KindServiceError}
	ErrUnreachable       = &ScanError{Kind: KindUnreachable}
	ErrMalformedResponse = &ScanError{Kind: KindMalformedResponse}
	ErrSuperseded        = &ScanError{Kind: KindSuperseded}
	ErrCanceled          = &ScanError{Kind: KindCanceled}

	ErrCredentialUnavailable = &ScanError{Kind: KindCredentialUnavailable}
)

// ScanError is the error returned by a failed classification.
type ScanError struct {
	// Kind is the taxonomy bucket.
	Kind ErrorKind

	// StatusCode is the HTTP status for KindServiceError.
	StatusCode int

	// Err is the underlying cause, if any.
	Err error
}

// NewScanError wraps err with a kind.
func NewScanError(kind ErrorKind, err error) *ScanError {
	return &ScanError{Kind: kind, Err: err}
}

// NewServiceError creates a KindServiceError carrying the HTTP status.
func NewServiceError(statusCode int) *ScanError {
	return &ScanError{
		Kind:       KindServiceError,
		StatusCode: statusCode,
		Err:        fmt.Errorf("HTTP error! Status: %d", statusCode),
	}
}

// Error implements error.
func (e *ScanError) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying cause.
func (e *ScanError) Unwrap() error {
	return e.Err
}

// Is matches any *ScanError of the same kind, so the package sentinels can
// be used with errors.Is.
func (e *ScanError) Is(target error) bool {
	var t *ScanError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the ErrorKind from err. Errors that are not ScanErrors
// are treated as KindUnreachable, and nil as KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var se *ScanError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnreachable
}

// StatusCodeOf extracts the HTTP status from a ScanError, or 0.
func StatusCodeOf(err error) int {
	var se *ScanError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
