package model

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// TabID identifies a browser tab. Zero is not a valid tab.
type TabID int64

// String returns the decimal form of the tab identifier.
func (t TabID) String() string {
	return fmt.Sprintf("%d", int64(t))
}

// Valid reports whether the identifier refers to a real tab.
func (t TabID) Valid() bool {
	return t > 0
}

// Origin describes what triggered a scan.
type Origin int

const (
	// OriginUserClick is a scan requested explicitly from the popup.
	OriginUserClick Origin = iota

	// OriginAutoNavigate is a scan issued by the page probe when a tab
	// finishes loading.
	OriginAutoNavigate
)

// String returns the wire name of the origin.
func (o Origin) String() string {
	switch o {
	case OriginUserClick:
		return "user_click"
	case OriginAutoNavigate:
		return "auto_navigate"
	default:
		return "unknown"
	}
}

// ParseOrigin converts a wire name back into an Origin.
func ParseOrigin(s string) (Origin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user_click", "":
		return OriginUserClick, nil
	case "auto_navigate":
		return OriginAutoNavigate, nil
	default:
		return OriginUserClick, fmt.Errorf("unknown scan origin %q", s)
	}
}

// MarshalJSON encodes the origin by name.
func (o Origin) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// UnmarshalJSON decodes an origin from its name.
func (o *Origin) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOrigin(s)
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ScanRequest asks the coordinator to classify the URL loaded in a tab.
// It is created when a tab finishes loading or the user clicks "scan",
// consumed immediately and never stored.
type ScanRequest struct {
	// TabID is the tab the URL was captured from. Results and badge updates
	// are keyed by this value.
	TabID TabID `json:"tab_id"`

	// URL is the page address to classify.
	URL string `json:"url"`

	// Origin records whether the user or a navigation triggered the scan.
	Origin Origin `json:"origin"`
}

// NewScanRequest creates a request with a normalized URL.
// The URL is kept as given when it cannot be normalized; Validate reports
// the problem later.
func NewScanRequest(tab TabID, rawURL string, origin Origin) ScanRequest {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		normalized = strings.TrimSpace(rawURL)
	}
	return ScanRequest{TabID: tab, URL: normalized, Origin: origin}
}

// Validate checks that the request can be sent to the classification
// service. It returns a ScanError of kind KindInvalidInput on failure.
func (r ScanRequest) Validate() error {
	if !r.TabID.Valid() {
		return NewScanError(KindInvalidInput, fmt.Errorf("invalid tab id %d", r.TabID))
	}
	if _, err := NormalizeURL(r.URL); err != nil {
		return NewScanError(KindInvalidInput, err)
	}
	return nil
}

// NormalizeURL checks that raw is a navigable http(s) URL and returns it
// with a lower-cased scheme and an ASCII (punycode) host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEmptyURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("%w: %q is not absolute", ErrMalformedURL, raw)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrMalformedURL, raw)
	}

	// IP literals are not subject to IDNA processing.
	if net.ParseIP(host) != nil {
		u.Host = strings.ToLower(u.Host)
		return u.String(), nil
	}

	ascii, err := idna.Lookup.ToASCII(strings.ToLower(host))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}
	if port := u.Port(); port != "" {
		u.Host = ascii + ":" + port
	} else {
		u.Host = ascii
	}

	return u.String(), nil
}

// HostOf returns the host of a URL, or an empty string if it has none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// ScanResult is the coordinator's answer to one ScanRequest.
// It has no identity beyond the request that produced it: a result is only
// meaningful when matched to the TabID and URL of that request.
type ScanResult struct {
	// TabID is the tab that originated the request.
	TabID TabID `json:"tab_id"`

	// URL is the URL that was classified.
	URL string `json:"url"`

	// Origin is copied from the request.
	Origin Origin `json:"origin"`

	// IsPhishing is the verdict. It is only meaningful when Error is empty.
	IsPhishing bool `json:"is_phishing"`

	// Error is the user-facing message for a failed scan.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies a failed scan.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// StatusCode is the HTTP status returned by the service, when known.
	StatusCode int `json:"status_code,omitempty"`

	// ScannedAt is when the result was produced.
	ScannedAt time.Time `json:"scanned_at"`
}

// NewScanResult creates a successful result for the request.
func NewScanResult(req ScanRequest, isPhishing bool) ScanResult {
	return ScanResult{
		TabID:      req.TabID,
		URL:        req.URL,
		Origin:     req.Origin,
		IsPhishing: isPhishing,
		StatusCode: 200,
		ScannedAt:  time.Now(),
	}
}

// NewFailedResult creates a result describing why the request failed.
func NewFailedResult(req ScanRequest, err error) ScanResult {
	kind := KindOf(err)
	res := ScanResult{
		TabID:     req.TabID,
		URL:       req.URL,
		Origin:    req.Origin,
		Error:     kind.Message(StatusCodeOf(err)),
		ErrorKind: kind,
		ScannedAt: time.Now(),
	}
	res.StatusCode = StatusCodeOf(err)
	return res
}

// Failed reports whether the scan did not produce a verdict.
func (r ScanResult) Failed() bool {
	return r.Error != "" || r.ErrorKind != KindNone
}

// Matches reports whether the result belongs to the given tab and URL.
func (r ScanResult) Matches(tab TabID, rawURL string) bool {
	return r.TabID == tab && r.URL == rawURL
}

// Verdict labels shown to the user.
const (
	StatusPhishing = "Phishing Detected!"
	StatusSafe     = "Safe Website"
	StatusScanning = "Scanning..."
	RiskHigh       = "High Risk"
	RiskLow        = "Low Risk"
	RiskAnalyzing  = "Analyzing..."
)

// StatusText returns the status line for a verdict or the error message for
// a failed scan.
func (r ScanResult) StatusText() string {
	if r.Failed() {
		return r.Error
	}
	if r.IsPhishing {
		return StatusPhishing
	}
	return StatusSafe
}

// RiskLabel returns the risk label for a verdict, or an empty string for a
// failed scan.
func (r ScanResult) RiskLabel() string {
	if r.Failed() {
		return ""
	}
	if r.IsPhishing {
		return RiskHigh
	}
	return RiskLow
}
