// Package probe reacts to page loads in a tab.
//
// On every completed load the probe reports the new URL to the coordinator
// and asks for exactly one automatic classification. It never retries and
// never turns a failure into a safe verdict. When a page is judged phishing
// the configured Warner acts on it according to the detection policy.
package probe

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nao1215/phishguard/internal/model"
)

// Coordinator is the part of the coordinator the probe talks to.
// *coordinator.Coordinator and *server.Client implement it.
type Coordinator interface {
	Navigate(tab model.TabID, rawURL string) error
	Classify(ctx context.Context, req model.ScanRequest) (model.ScanResult, error)
}

// Outcome is what the probe learned about a page.
type Outcome int

const (
	// OutcomeUnknown means no verdict is available: the scan failed or was
	// superseded.
	OutcomeUnknown Outcome = iota

	// OutcomeSafe means the service judged the page legitimate.
	OutcomeSafe

	// OutcomePhishing means the service judged the page phishing.
	OutcomePhishing
)

// String returns a lower-case name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSafe:
		return "safe"
	case OutcomePhishing:
		return "phishing"
	default:
		return "unknown"
	}
}

// Options configures a Probe.
type Options struct {
	// Policy selects what happens on a phishing verdict beyond the badge.
	Policy model.DetectionPolicy

	// WarningPage is the redirect target for model.PolicyRedirect.
	// Empty means DefaultWarningPage.
	WarningPage string

	// Warner acts on phishing verdicts. Nil means a LogWarner.
	Warner Warner

	// Logger receives probe logs. Nil means slog.Default().
	Logger *slog.Logger
}

// Probe issues automatic scans on page load.
type Probe struct {
	coordinator Coordinator
	policy      model.DetectionPolicy
	warningPage string
	warner      Warner
	logger      *slog.Logger
}

// New creates a Probe.
func New(coordinator Coordinator, opts Options) *Probe {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	warningPage := opts.WarningPage
	if warningPage == "" {
		warningPage = DefaultWarningPage
	}
	warner := opts.Warner
	if warner == nil {
		warner = NewLogWarner(logger)
	}
	return &Probe{
		coordinator: coordinator,
		policy:      opts.Policy,
		warningPage: warningPage,
		warner:      warner,
		logger:      logger,
	}
}

// Policy returns the detection policy.
func (p *Probe) Policy() model.DetectionPolicy {
	return p.policy
}

// OnPageLoad handles a completed load of rawURL in tab.
func (p *Probe) OnPageLoad(ctx context.Context, tab model.TabID, rawURL string) Outcome {
	if err := p.coordinator.Navigate(tab, rawURL); err != nil {
		p.logger.Debug("navigation not recorded", "tab", tab, "url", rawURL, "error", err)
		return OutcomeUnknown
	}

	result, err := p.coordinator.Classify(ctx, model.NewScanRequest(tab, rawURL, model.OriginAutoNavigate))
	switch {
	case errors.Is(err, model.ErrSuperseded):
		p.logger.Debug("auto scan superseded", "tab", tab, "url", rawURL)
		return OutcomeUnknown
	case errors.Is(err, model.ErrMissingCredential):
		p.logger.Warn("no API key set, skipping auto scan", "tab", tab)
		return OutcomeUnknown
	case err != nil:
		p.logger.Warn("auto scan failed", "tab", tab, "url", rawURL, "error_kind", model.KindOf(err), "error", err)
		return OutcomeUnknown
	case result.Failed():
		return OutcomeUnknown
	case !result.IsPhishing:
		return OutcomeSafe
	}

	if p.policy != model.PolicyBadge {
		w := Warning{
			TabID:       tab,
			URL:         result.URL,
			Policy:      p.policy,
			Message:     WarningText,
			WarningPage: p.warningPage,
		}
		if werr := p.warner.Warn(ctx, w); werr != nil {
			p.logger.Error("failed to act on phishing verdict", "tab", tab, "policy", p.policy, "error", werr)
		}
	}
	return OutcomePhishing
}
