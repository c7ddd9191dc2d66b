package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/nao1215/phishguard/internal/badge"
	"github.com/nao1215/phishguard/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, result *model.ScanResult) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, result *model.ScanResult) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, result)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func phishingResult(tab model.TabID) *model.ScanResult {
	r := model.NewScanResult(model.NewScanRequest(tab, "http://evil.test", model.OriginAutoNavigate), true)
	return &r
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.continueOnError {
			t.Error("expected continueOnError to default to false")
		}
	})

	t.Run("applies WithContinueOnError option", func(t *testing.T) {
		t.Parallel()

		p := New(WithContinueOnError(true))
		if !p.continueOnError {
			t.Error("expected continueOnError to be true")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddStep(&mockStep{name: "first"})
	p.AddSteps(&mockStep{name: "second"}, &mockStep{name: "third"})

	if p.StepCount() != 3 {
		t.Fatalf("expected 3 steps, got %d", p.StepCount())
	}

	expected := []string{"first", "second", "third"}
	for i, name := range p.StepNames() {
		if name != expected[i] {
			t.Errorf("step %d: got %q, expected %q", i, name, expected[i])
		}
	}
}

// TestPipelineExecute tests pipeline execution.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("executes all steps in order", func(t *testing.T) {
		t.Parallel()

		executionOrder := make([]string, 0)
		record := func(name string) func(context.Context, *model.ScanResult) error {
			return func(_ context.Context, _ *model.ScanResult) error {
				executionOrder = append(executionOrder, name)
				return nil
			}
		}

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{name: "step-1", doFunc: record("step-1")})
		p.AddStep(NewStepFunc("step-2", record("step-2")))

		if err := p.Execute(context.Background(), phishingResult(1)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(executionOrder) != 2 || executionOrder[0] != "step-1" || executionOrder[1] != "step-2" {
			t.Errorf("wrong execution order: %v", executionOrder)
		}
	})

	t.Run("stops on first error by default", func(t *testing.T) {
		t.Parallel()

		expectedErr := errors.New("step failed")
		next := &mockStep{name: "should-not-run"}

		p := New(WithLogger(quietLogger()))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(_ context.Context, _ *model.ScanResult) error {
				return expectedErr
			},
		})
		p.AddStep(next)

		if err := p.Execute(context.Background(), phishingResult(1)); !errors.Is(err, expectedErr) {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if next.callCount != 0 {
			t.Error("second step should not have been called")
		}
	})

	t.Run("continues on error when configured", func(t *testing.T) {
		t.Parallel()

		next := &mockStep{name: "should-run"}

		p := New(WithContinueOnError(true), WithLogger(quietLogger()))
		p.AddStep(&mockStep{
			name: "failing-step",
			doFunc: func(_ context.Context, _ *model.ScanResult) error {
				return errors.New("step failed")
			},
		})
		p.AddStep(next)

		if err := p.Execute(context.Background(), phishingResult(1)); err != nil {
			t.Errorf("expected nil error with continueOnError, got %v", err)
		}
		if next.callCount != 1 {
			t.Error("second step should have been called")
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		step := &mockStep{name: "should-not-run"}
		p := New(WithLogger(quietLogger()))
		p.AddStep(step)

		if err := p.Execute(ctx, phishingResult(1)); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if step.callCount != 0 {
			t.Error("step should not have been called")
		}
	})
}

// fakeRecorder collects recorded results.
type fakeRecorder struct {
	mu      sync.Mutex
	results []model.ScanResult
	err     error
}

func (f *fakeRecorder) RecordScan(_ context.Context, result model.ScanResult) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.results = append(f.results, result)
	return int64(len(f.results)), nil
}

// TestPostVerdictSteps tests the badge, record and notify steps together,
// including a failing scan log that must not hide the badge.
func TestPostVerdictSteps(t *testing.T) {
	t.Parallel()

	t.Run("all steps act on the result", func(t *testing.T) {
		t.Parallel()

		badges := badge.NewStore()
		recorder := &fakeRecorder{}
		var published []model.ScanResult

		p := New(WithContinueOnError(true), WithLogger(quietLogger()))
		p.AddSteps(
			NewBadgeStep(badges, quietLogger()),
			NewRecordStep(recorder),
			NewNotifyStep(func(r model.ScanResult) { published = append(published, r) }),
		)

		if err := p.Execute(context.Background(), phishingResult(5)); err != nil {
			t.Fatalf("Execute() failed: %v", err)
		}
		if badges.Get(5) != model.WarningBadge() {
			t.Errorf("badge = %+v, want warning", badges.Get(5))
		}
		if len(recorder.results) != 1 {
			t.Errorf("recorded %d results, want 1", len(recorder.results))
		}
		if len(published) != 1 || published[0].TabID != 5 {
			t.Errorf("published = %+v", published)
		}
		if got := p.StepNames(); got[0] != "badge" || got[1] != "record" || got[2] != "notify" {
			t.Errorf("step names = %v", got)
		}
	})

	t.Run("record failure does not block notify", func(t *testing.T) {
		t.Parallel()

		badges := badge.NewStore()
		notified := false

		p := New(WithContinueOnError(true), WithLogger(quietLogger()))
		p.AddSteps(
			NewBadgeStep(badges, nil),
			NewRecordStep(&fakeRecorder{err: errors.New("disk full")}),
			NewNotifyStep(func(model.ScanResult) { notified = true }),
		)

		if err := p.Execute(context.Background(), phishingResult(2)); err != nil {
			t.Fatalf("Execute() failed: %v", err)
		}
		if badges.Get(2).Cleared() {
			t.Error("badge should be set despite record failure")
		}
		if !notified {
			t.Error("notify should run despite record failure")
		}
	})
}
