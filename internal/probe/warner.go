package probe

import (
	"context"
	"log/slog"

	"github.com/nao1215/phishguard/internal/model"
)

// DefaultWarningPage is the redirect target used when none is configured.
const DefaultWarningPage = "/warning.html"

// WarningText is shown in place of, or over, a phishing page.
const WarningText = "Warning: This website is flagged as phishing!"

// Warning asks a Warner to act on one phishing page.
type Warning struct {
	// TabID is the tab showing the page.
	TabID model.TabID `json:"tab_id"`

	// URL is the page judged phishing.
	URL string `json:"url"`

	// Policy is the action to take.
	Policy model.DetectionPolicy `json:"policy"`

	// Message is the text to show for block and alert.
	Message string `json:"message"`

	// WarningPage is the redirect target for redirect.
	WarningPage string `json:"warning_page,omitempty"`
}

// Warner acts on phishing verdicts in the tab's page.
type Warner interface {
	Warn(ctx context.Context, w Warning) error
}

// WarnerFunc adapts a function to Warner.
type WarnerFunc func(ctx context.Context, w Warning) error

// Warn implements Warner.
func (f WarnerFunc) Warn(ctx context.Context, w Warning) error {
	return f(ctx, w)
}

// LogWarner only logs the action it would take. It is used when no page
// runtime is attached.
type LogWarner struct {
	logger *slog.Logger
}

// NewLogWarner creates a LogWarner.
func NewLogWarner(logger *slog.Logger) *LogWarner {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogWarner{logger: logger}
}

// Warn implements Warner.
func (l *LogWarner) Warn(_ context.Context, w Warning) error {
	switch w.Policy {
	case model.PolicyBlock:
		l.logger.Warn("blocking phishing page", "tab", w.TabID, "url", w.URL)
	case model.PolicyAlert:
		l.logger.Warn(w.Message, "tab", w.TabID, "url", w.URL)
	case model.PolicyRedirect:
		l.logger.Warn("redirecting phishing page", "tab", w.TabID, "url", w.URL, "to", w.WarningPage)
	default:
		l.logger.Warn("phishing page detected", "tab", w.TabID, "url", w.URL)
	}
	return nil
}
