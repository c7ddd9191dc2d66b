package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/phishguard/internal/credential"
	"github.com/nao1215/phishguard/internal/model"
)

// gate blocks a fake classification call until opened.
type gate struct {
	ch   chan struct{}
	once sync.Once
}

func newGate() *gate {
	return &gate{ch: make(chan struct{})}
}

func (g *gate) open() {
	g.once.Do(func() { close(g.ch) })
}

type fakeCall struct {
	url    string
	apiKey string
}

// fakeClassifier answers from fixed tables and can hold calls at a gate.
type fakeClassifier struct {
	mu           sync.Mutex
	calls        []fakeCall
	verdicts     map[string]bool
	errs         map[string]error
	gates        map[string]*gate
	cancelled    []string
	ignoreCancel bool
}

func newFakeClassifier() *fakeClassifier {
	return &fakeClassifier{
		verdicts: map[string]bool{},
		errs:     map[string]error{},
		gates:    map[string]*gate{},
	}
}

func (f *fakeClassifier) Predict(ctx context.Context, rawURL, apiKey string) (bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{url: rawURL, apiKey: apiKey})
	g := f.gates[rawURL]
	f.mu.Unlock()

	if g != nil {
		if f.ignoreCancel {
			<-g.ch
		} else {
			select {
			case <-g.ch:
			case <-ctx.Done():
				f.mu.Lock()
				f.cancelled = append(f.cancelled, rawURL)
				f.mu.Unlock()
				return false, model.NewScanError(model.KindUnreachable, ctx.Err())
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[rawURL]; err != nil {
		return false, err
	}
	return f.verdicts[rawURL], nil
}

func (f *fakeClassifier) hold(rawURL string) *gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := newGate()
	f.gates[rawURL] = g
	return g
}

func (f *fakeClassifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClassifier) callsSnapshot() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeClassifier) cancelledSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cancelled...)
}

// waitStarted waits until the classifier has received a call for rawURL.
func (f *fakeClassifier) waitStarted(t *testing.T, rawURL string) {
	t.Helper()

	eventually(t, "classification of "+rawURL+" to start", func() bool {
		for _, call := range f.callsSnapshot() {
			if call.url == rawURL {
				return true
			}
		}
		return false
	})
}

// eventually polls cond until it holds or two seconds pass.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestCoordinator builds a coordinator with an in-memory key store and
// closes it when the test ends.
func newTestCoordinator(t *testing.T, fake *fakeClassifier, apiKey string, opts Options) *Coordinator {
	t.Helper()

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	c := New(fake, credential.NewMemoryStore(apiKey), opts)
	t.Cleanup(c.Close)
	return c
}

// waitForWaiters blocks until the in-flight call of tab has n waiters.
func waitForWaiters(t *testing.T, c *Coordinator, tab model.TabID, n int) {
	t.Helper()

	eventually(t, fmt.Sprintf("tab %d to reach %d waiters", tab, n), func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		ts := c.tabs[tab]
		return ts != nil && ts.flight != nil && ts.flight.waiters >= n
	})
}

type classifyOutcome struct {
	result model.ScanResult
	err    error
}

// classifyAsync runs Classify in a goroutine and returns its outcome channel.
func classifyAsync(c *Coordinator, req model.ScanRequest) <-chan classifyOutcome {
	out := make(chan classifyOutcome, 1)
	go func() {
		r, err := c.Classify(context.Background(), req)
		out <- classifyOutcome{result: r, err: err}
	}()
	return out
}

func receive(t *testing.T, ch <-chan classifyOutcome) classifyOutcome {
	t.Helper()

	select {
	case o := <-ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("Classify did not return")
		return classifyOutcome{}
	}
}
