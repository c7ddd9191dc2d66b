package config

import (
	"fmt"
	"time"

	"github.com/nao1215/phishguard/internal/model"
)

// ServiceSection configures the classification service.
type ServiceSection struct {
	// URL is the base URL of the service.
	URL string `yaml:"url,omitempty"`

	// Endpoint is the classification path, "/predict" or "/classify".
	Endpoint string `yaml:"endpoint,omitempty"`

	// Timeout bounds one classification request.
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// RequireAPIKey refuses to scan without a stored API key.
	// A pointer so that an explicit false can be told apart from unset.
	RequireAPIKey *bool `yaml:"require_api_key,omitempty"`

	// RetryUnreachable retries once when the service cannot be reached.
	RetryUnreachable *bool `yaml:"retry_unreachable,omitempty"`

	// Proxy is an optional SOCKS5 proxy address.
	Proxy string `yaml:"proxy,omitempty"`

	// MaxBodySize caps the response body size in bytes.
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// PolicySection configures what happens on a phishing verdict.
type PolicySection struct {
	// OnPhishing is one of badge, block, alert or redirect.
	OnPhishing string `yaml:"on_phishing,omitempty"`

	// WarningPage is the redirect target under the redirect policy.
	WarningPage string `yaml:"warning_page,omitempty"`
}

// CredentialSection configures API key storage.
type CredentialSection struct {
	// Backend is "database" or "keyring".
	Backend string `yaml:"backend,omitempty"`
}

// ServerSection configures the coordinator daemon.
type ServerSection struct {
	// Listen is the daemon listen address.
	Listen string `yaml:"listen,omitempty"`
}

// DatabaseSection configures the scan log database.
type DatabaseSection struct {
	// Dir is the directory holding the SQLite database.
	Dir string `yaml:"dir,omitempty"`
}

// File represents the structure of the .phishguard configuration file.
type File struct {
	Service    ServiceSection    `yaml:"service,omitempty"`
	Policy     PolicySection     `yaml:"policy,omitempty"`
	Credential CredentialSection `yaml:"credential,omitempty"`
	Server     ServerSection     `yaml:"server,omitempty"`
	Database   DatabaseSection   `yaml:"database,omitempty"`
}

// Apply copies every value set in the file onto cfg.
// Unset values leave the current cfg values untouched.
func (f *File) Apply(cfg *Config) error {
	if f.Service.URL != "" {
		cfg.ServiceURL = f.Service.URL
	}
	if f.Service.Endpoint != "" {
		cfg.Endpoint = f.Service.Endpoint
	}
	if f.Service.Timeout != 0 {
		cfg.Timeout = f.Service.Timeout
	}
	if f.Service.RequireAPIKey != nil {
		cfg.RequireAPIKey = *f.Service.RequireAPIKey
	}
	if f.Service.RetryUnreachable != nil {
		cfg.RetryUnreachable = *f.Service.RetryUnreachable
	}
	if f.Service.Proxy != "" {
		cfg.ProxyAddress = f.Service.Proxy
	}
	if f.Service.MaxBodySize != 0 {
		cfg.MaxBodySize = f.Service.MaxBodySize
	}

	if f.Policy.OnPhishing != "" {
		policy, err := model.ParseDetectionPolicy(f.Policy.OnPhishing)
		if err != nil {
			return fmt.Errorf("policy.on_phishing: %w", err)
		}
		cfg.Policy = policy
	}
	if f.Policy.WarningPage != "" {
		cfg.WarningPage = f.Policy.WarningPage
	}

	if f.Credential.Backend != "" {
		cfg.CredentialBackend = f.Credential.Backend
	}

	if f.Server.Listen != "" {
		cfg.ListenAddress = f.Server.Listen
	}

	if f.Database.Dir != "" {
		cfg.DBDir = f.Database.Dir
	}

	return nil
}
