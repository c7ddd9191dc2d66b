package config

import (
	"net"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/phishguard/internal/model"
)

// Default configuration values.
const (
	// DefaultServiceURL is where the locally hosted classification service
	// listens out of the box.
	DefaultServiceURL = "http://127.0.0.1:5000"

	// DefaultEndpoint is the canonical classification path. Older service
	// builds exposed /classify; it can still be selected in the config file.
	DefaultEndpoint = "/predict"

	// DefaultTimeout bounds a single classification round trip. The service
	// renders the page in a headless browser, so a few seconds is normal.
	DefaultTimeout = 30 * time.Second

	// DefaultBatchSize is the number of URLs scanned concurrently by the
	// scan command.
	DefaultBatchSize = 4

	// DefaultMaxBodySize limits how much of a service response is read.
	DefaultMaxBodySize = 1 * 1024 * 1024 // 1MB

	// DefaultListenAddress is where the coordinator daemon listens.
	DefaultListenAddress = "127.0.0.1:7878"

	// DefaultWarningPage is the page a tab is redirected to under the
	// redirect policy.
	DefaultWarningPage = "/warning.html"

	// DefaultUserAgent identifies PhishGuard to the classification service.
	DefaultUserAgent = "PhishGuard/1.0 (+https://github.com/nao1215/phishguard)"

	// CredentialBackendDatabase stores the API key in the SQLite settings table.
	CredentialBackendDatabase = "database"

	// CredentialBackendKeyring stores the API key in the OS keychain.
	CredentialBackendKeyring = "keyring"

	// AppName is the application name used for XDG directory paths.
	AppName = "phishguard"
)

// Config holds all configuration options for PhishGuard.
// It is populated from defaults, then the optional config file, then CLI
// flags, and passed through the application explicitly.
type Config struct {
	// ServiceURL is the base URL of the classification service.
	ServiceURL string

	// Endpoint is the classification path appended to ServiceURL.
	Endpoint string

	// Timeout bounds each classification request.
	Timeout time.Duration

	// RequireAPIKey makes the coordinator refuse to contact the service
	// when no API key is stored.
	RequireAPIKey bool

	// RetryUnreachable enables a single retry when the service cannot be
	// reached. No other failure is ever retried.
	RetryUnreachable bool

	// ProxyAddress is an optional SOCKS5 proxy ("host:port") used to reach
	// the classification service.
	ProxyAddress string

	// MaxBodySize is the maximum response body size in bytes to read.
	// Set to 0 to use the default.
	MaxBodySize int64

	// UserAgent is the User-Agent header sent to the service.
	UserAgent string

	// Policy decides what happens to a page judged phishing, beyond the
	// badge which is always set.
	Policy model.DetectionPolicy

	// WarningPage is the redirect target under the redirect policy.
	WarningPage string

	// CredentialBackend selects where the API key is persisted.
	CredentialBackend string

	// ListenAddress is the address the coordinator daemon listens on.
	ListenAddress string

	// ServerURL makes the scan command talk to a running daemon instead of
	// running a coordinator in-process. Empty means in-process.
	ServerURL string

	// BatchSize is the number of concurrent scans for multiple targets.
	BatchSize int

	// Verbose enables debug logging.
	Verbose bool

	// LogJSON switches log output to JSON.
	LogJSON bool

	// ConfigFilePath is the path to the configuration file.
	// If empty, .phishguard is searched in the current and home directories.
	ConfigFilePath string

	// JSONReport enables JSON report output. Mutually exclusive with
	// MarkdownReport.
	JSONReport bool

	// MarkdownReport enables Markdown report output. Mutually exclusive with
	// JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for the report. Empty means stdout.
	ReportFile string

	// DBDir is the directory holding the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/phishguard on Linux).
	DBDir string

	// Targets is the list of URLs to scan.
	Targets []string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		ServiceURL:        DefaultServiceURL,
		Endpoint:          DefaultEndpoint,
		Timeout:           DefaultTimeout,
		RequireAPIKey:     true,
		MaxBodySize:       DefaultMaxBodySize,
		UserAgent:         DefaultUserAgent,
		Policy:            model.PolicyBadge,
		WarningPage:       DefaultWarningPage,
		CredentialBackend: CredentialBackendDatabase,
		ListenAddress:     DefaultListenAddress,
		BatchSize:         DefaultBatchSize,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for PhishGuard.
// On Linux: ~/.local/share/phishguard
// On macOS: ~/Library/Application Support/phishguard
// On Windows: %LOCALAPPDATA%\phishguard
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for PhishGuard.
// On Linux: ~/.config/phishguard
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ClassifyURL returns the full URL of the classification endpoint.
func (c *Config) ClassifyURL() string {
	return strings.TrimRight(c.ServiceURL, "/") + c.Endpoint
}

// Validate checks if the configuration is valid and returns the first
// problem found.
func (c *Config) Validate() error {
	if !isHTTPURL(c.ServiceURL) {
		return ErrInvalidServiceURL
	}

	if !strings.HasPrefix(c.Endpoint, "/") {
		return ErrInvalidEndpoint
	}

	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}

	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}

	if c.ProxyAddress != "" && !isHostPort(c.ProxyAddress) {
		return ErrInvalidProxyAddress
	}

	if !isHostPort(c.ListenAddress) {
		return ErrInvalidListenAddress
	}

	if c.CredentialBackend != CredentialBackendDatabase && c.CredentialBackend != CredentialBackendKeyring {
		return ErrUnknownCredentialBackend
	}

	if c.ServerURL != "" && !isHTTPURL(c.ServerURL) {
		return ErrInvalidServiceURL
	}

	return nil
}

// ValidateScan validates the configuration for the scan command, which
// additionally needs at least one target.
func (c *Config) ValidateScan() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	return c.Validate()
}

// isHTTPURL reports whether s is an absolute http(s) URL with a host.
func isHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isHostPort reports whether s is in host:port form with a non-empty host
// and a port between 1 and 65535.
func isHostPort(s string) bool {
	host, port, err := net.SplitHostPort(s)
	if err != nil || host == "" || port == "" {
		return false
	}
	p, err := net.LookupPort("tcp", port)
	return err == nil && p >= 1 && p <= 65535
}
