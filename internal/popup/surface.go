// Package popup implements the UI surface a user opens to scan the active
// tab on demand.
//
// A Surface moves through Idle, Scanning and one of Safe, Phishing or
// Error, and is redrawn by a Renderer after every transition. Results of a
// scan that a newer scan on the same surface replaced are discarded. Pushed
// auto-scan results are shown only when they belong to the tab and URL the
// surface displays and no scan of its own is in flight.
package popup

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nao1215/phishguard/internal/model"
)

// Coordinator is the part of the coordinator a surface talks to.
// *coordinator.Coordinator and *server.Client implement it.
type Coordinator interface {
	Classify(ctx context.Context, req model.ScanRequest) (model.ScanResult, error)
	SaveCredential(ctx context.Context, key string) error
}

// State is the surface's display state.
type State int

const (
	// StateIdle shows nothing.
	StateIdle State = iota

	// StateScanning waits for the coordinator.
	StateScanning

	// StateSafe shows a legitimate verdict.
	StateSafe

	// StatePhishing shows a phishing verdict and the warning.
	StatePhishing

	// StateError shows why the scan failed.
	StateError
)

// String returns a lower-case name for the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateSafe:
		return "safe"
	case StatePhishing:
		return "phishing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// APIKeySaved is the notice shown once a key has been stored.
const APIKeySaved = "API Key saved!"

// View is everything a Renderer draws.
type View struct {
	// State is the display state.
	State State

	// TabID is the tab the surface is attached to.
	TabID model.TabID

	// URL is the URL being or last scanned.
	URL string

	// Status is the status line: a verdict, "Scanning..." or an error
	// message.
	Status string

	// Risk is the risk label, or "Analyzing..." while scanning.
	Risk string

	// Notice is a transient message such as APIKeySaved.
	Notice string
}

// ShowWarning reports whether the phishing warning is visible.
func (v View) ShowWarning() bool {
	return v.State == StatePhishing
}

// Renderer draws a View.
type Renderer interface {
	Render(v View) error
}

// Surface is one open UI surface. It is safe for concurrent use.
type Surface struct {
	coordinator Coordinator
	renderer    Renderer
	logger      *slog.Logger

	mu   sync.Mutex
	view View
	// seq identifies the latest scan; a finished scan with an older seq
	// was replaced.
	seq uint64
}

// New creates an idle Surface. renderer may be nil.
func New(coordinator Coordinator, renderer Renderer, logger *slog.Logger) *Surface {
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		coordinator: coordinator,
		renderer:    renderer,
		logger:      logger,
	}
}

// View returns the current view.
func (s *Surface) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Scan classifies rawURL shown in tab and returns the view it lands in.
// The returned error is the scan failure, if any. A scan replaced by a
// newer one returns model.ErrSuperseded and leaves the view alone.
func (s *Surface) Scan(ctx context.Context, tab model.TabID, rawURL string) (View, error) {
	req := model.NewScanRequest(tab, rawURL, model.OriginUserClick)

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.view = View{
		State:  StateScanning,
		TabID:  tab,
		URL:    req.URL,
		Status: model.StatusScanning,
		Risk:   model.RiskAnalyzing,
	}
	s.renderLocked()
	s.mu.Unlock()

	result, err := s.coordinator.Classify(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.seq {
		s.logger.Debug("discarding replaced scan", "tab", tab, "url", req.URL)
		return s.view, model.ErrSuperseded
	}

	if errors.Is(err, model.ErrSuperseded) {
		// The tab moved on; the verdict no longer describes it.
		s.view = View{TabID: tab}
		s.renderLocked()
		return s.view, err
	}

	s.view = viewOf(result)
	s.renderLocked()
	return s.view, err
}

// Apply shows a pushed result. It reports whether the view changed.
func (s *Surface) Apply(result model.ScanResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.view.State == StateScanning || s.view.URL == "" {
		return false
	}
	if !result.Matches(s.view.TabID, s.view.URL) || result.Failed() {
		return false
	}

	s.view = viewOf(result)
	s.renderLocked()
	return true
}

// SaveAPIKey stores key through the coordinator and shows APIKeySaved.
func (s *Surface) SaveAPIKey(ctx context.Context, key string) error {
	if err := s.coordinator.SaveCredential(ctx, strings.TrimSpace(key)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.view.Notice = APIKeySaved
	s.renderLocked()
	return nil
}

// Dismiss returns the surface to Idle. A scan in flight is discarded when
// it completes.
func (s *Surface) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.view = View{}
}

// renderLocked draws the current view. s.mu must be held.
func (s *Surface) renderLocked() {
	if s.renderer == nil {
		return
	}
	if err := s.renderer.Render(s.view); err != nil {
		s.logger.Warn("failed to render popup", "error", err)
	}
}

// viewOf maps a scan result to its terminal view.
func viewOf(result model.ScanResult) View {
	v := View{
		TabID:  result.TabID,
		URL:    result.URL,
		Status: result.StatusText(),
		Risk:   result.RiskLabel(),
	}
	switch {
	case result.Failed():
		v.State = StateError
	case result.IsPhishing:
		v.State = StatePhishing
	default:
		v.State = StateSafe
	}
	return v
}
