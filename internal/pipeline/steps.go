package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/phishguard/internal/badge"
	"github.com/nao1215/phishguard/internal/model"
)

// BadgeStep updates the badge of the result's tab.
// A phishing verdict sets the warning badge, a safe verdict clears it, and
// failed results are ignored.
type BadgeStep struct {
	store  *badge.Store
	logger *slog.Logger
}

// NewBadgeStep creates a badge step writing to store.
func NewBadgeStep(store *badge.Store, logger *slog.Logger) *BadgeStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgeStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *BadgeStep) Name() string {
	return "badge"
}

// Do executes the badge step.
func (s *BadgeStep) Do(_ context.Context, result *model.ScanResult) error {
	b, changed := s.store.Apply(*result)
	if changed {
		s.logger.Debug("badge updated", "tab", result.TabID, "badge", b.Text)
	}
	return nil
}

// Recorder persists completed scans. *database.Store implements it.
type Recorder interface {
	RecordScan(ctx context.Context, result model.ScanResult) (int64, error)
}

// RecordStep appends the result to the scan log.
type RecordStep struct {
	recorder Recorder
}

// NewRecordStep creates a scan log step.
func NewRecordStep(recorder Recorder) *RecordStep {
	return &RecordStep{recorder: recorder}
}

// Name returns the step name.
func (s *RecordStep) Name() string {
	return "record"
}

// Do executes the record step.
func (s *RecordStep) Do(ctx context.Context, result *model.ScanResult) error {
	_, err := s.recorder.RecordScan(ctx, *result)
	return err
}

// NotifyStep hands the result to a publisher, typically the coordinator's
// subscriber fan-out.
type NotifyStep struct {
	publish func(model.ScanResult)
}

// NewNotifyStep creates a notification step.
func NewNotifyStep(publish func(model.ScanResult)) *NotifyStep {
	return &NotifyStep{publish: publish}
}

// Name returns the step name.
func (s *NotifyStep) Name() string {
	return "notify"
}

// Do executes the notify step.
func (s *NotifyStep) Do(_ context.Context, result *model.ScanResult) error {
	s.publish(*result)
	return nil
}
