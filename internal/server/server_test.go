package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/phishguard/internal/coordinator"
	"github.com/nao1215/phishguard/internal/credential"
	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/popup"
)

// staticClassifier answers from a verdict table.
type staticClassifier struct {
	mu       sync.Mutex
	verdicts map[string]bool
	errs     map[string]error
	keys     []string
}

func (s *staticClassifier) Predict(_ context.Context, rawURL, apiKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, apiKey)
	if err := s.errs[rawURL]; err != nil {
		return false, err
	}
	return s.verdicts[rawURL], nil
}

type fixture struct {
	coord  *coordinator.Coordinator
	server *Server
	http   *httptest.Server
	client *Client
	fake   *staticClassifier
}

func newFixture(t *testing.T, apiKey string, policy model.DetectionPolicy) *fixture {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	fake := &staticClassifier{
		verdicts: map[string]bool{"http://evil.test": true},
		errs:     map[string]error{"http://down.test": model.NewServiceError(500)},
	}
	coord := coordinator.New(fake, credential.NewMemoryStore(apiKey), coordinator.Options{
		RequireAPIKey: true,
		Logger:        logger,
	})
	t.Cleanup(coord.Close)

	s := New(coord, Options{Policy: policy, Logger: logger})
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Close)

	client, err := NewClient(ts.URL, ts.Client(), logger)
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	return &fixture{coord: coord, server: s, http: ts, client: client, fake: fake}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyBadge)

	resp, err := f.http.Client().Get(f.http.URL + PathHealth)
	if err != nil {
		t.Fatalf("GET %s failed: %v", PathHealth, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestClient_Classify(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "acme", model.PolicyBadge)
	ctx := context.Background()

	result, err := f.client.Classify(ctx, model.NewScanRequest(3, "http://evil.test", model.OriginUserClick))
	if err != nil {
		t.Fatalf("Classify() failed: %v", err)
	}
	if !result.IsPhishing || result.StatusText() != "Phishing Detected!" || result.RiskLabel() != "High Risk" {
		t.Errorf("result = %+v", result)
	}

	status, err := f.client.Status(ctx, 3)
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.Badge != model.WarningBadge() || status.URL != "http://evil.test" {
		t.Errorf("status = %+v", status)
	}

	result, err = f.client.Classify(ctx, model.NewScanRequest(3, "http://down.test", model.OriginUserClick))
	if !errors.Is(err, model.ErrServiceError) {
		t.Fatalf("Classify() error = %v, want ErrServiceError", err)
	}
	if result.StatusText() != "Service error (HTTP 500)." || model.StatusCodeOf(err) != 500 {
		t.Errorf("failed result = %+v, err %v", result, err)
	}
	if status, _ := f.client.Status(ctx, 3); status.Badge != model.WarningBadge() {
		t.Errorf("badge changed after a failed scan: %+v", status.Badge)
	}
}

func TestClient_MissingCredentialThenSave(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "", model.PolicyBadge)
	ctx := context.Background()
	req := model.NewScanRequest(1, "https://example.com", model.OriginUserClick)

	result, err := f.client.Classify(ctx, req)
	if !errors.Is(err, model.ErrMissingCredential) || result.StatusText() != "API key missing." {
		t.Fatalf("Classify() = %+v, %v", result, err)
	}

	if err := f.client.SaveCredential(ctx, " "); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("SaveCredential(blank) = %v", err)
	}
	if err := f.client.SaveCredential(ctx, "new-key"); err != nil {
		t.Fatalf("SaveCredential() failed: %v", err)
	}

	result, err = f.client.Classify(ctx, req)
	if err != nil || result.StatusText() != "Safe Website" {
		t.Fatalf("Classify() = %+v, %v", result, err)
	}

	f.fake.mu.Lock()
	keys := append([]string(nil), f.fake.keys...)
	f.fake.mu.Unlock()
	if len(keys) != 1 || keys[0] != "new-key" {
		t.Errorf("keys sent = %v", keys)
	}
}

func TestClient_Tabs(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyBadge)
	ctx := context.Background()

	if err := f.client.Navigate(5, "https://example.com"); err != nil {
		t.Fatalf("Navigate() failed: %v", err)
	}
	if status, _ := f.client.Status(ctx, 5); status.URL != "https://example.com" {
		t.Errorf("status url = %q", status.URL)
	}
	if err := f.client.CloseTab(ctx, 5); err != nil {
		t.Fatalf("CloseTab() failed: %v", err)
	}
	if status, _ := f.client.Status(ctx, 5); status.URL != "" {
		t.Errorf("status after close = %+v", status)
	}

	if err := f.client.Navigate(0, "https://example.com"); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("Navigate(0) = %v, want ErrInvalidInput", err)
	}
	if _, err := f.client.Status(ctx, -2); !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("Status(-2) = %v, want ErrInvalidInput", err)
	}
}

func TestClient_PageLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyBadge)
	ctx := context.Background()

	tests := []struct {
		url  string
		want string
	}{
		{url: "http://evil.test", want: "phishing"},
		{url: "https://example.com", want: "safe"},
		{url: "http://down.test", want: "unknown"},
	}
	for i, tt := range tests {
		got, err := f.client.PageLoad(ctx, model.TabID(i+1), tt.url)
		if err != nil {
			t.Fatalf("PageLoad(%s) failed: %v", tt.url, err)
		}
		if got != tt.want {
			t.Errorf("PageLoad(%s) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestPostMessage_BadRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyBadge)

	resp, err := f.http.Client().Post(f.http.URL+PathMessages, "application/json", strings.NewReader("{not json"))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestClient_Send(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyBadge)

	resp, err := f.client.Send(context.Background(), coordinator.Message{ID: "x", Kind: coordinator.MessageKind("reboot")})
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}
	if resp.OK || resp.ID != "x" || resp.ErrorKind != model.KindInvalidInput {
		t.Errorf("response = %+v", resp)
	}
}

func TestNewClient(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"ftp://127.0.0.1", "::bad"} {
		if _, err := NewClient(raw, nil, nil); err == nil {
			t.Errorf("NewClient(%q) should fail", raw)
		}
	}
	if _, err := NewClient("http://127.0.0.1:7878/", nil, nil); err != nil {
		t.Errorf("NewClient() failed: %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	client, err := NewClient(addr, nil, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	result, err := client.Classify(context.Background(), model.NewScanRequest(1, "https://example.com", model.OriginUserClick))
	if !errors.Is(err, model.ErrUnreachable) || result.StatusText() != "Could not connect to the server." {
		t.Errorf("Classify() = %+v, %v", result, err)
	}
}

// waitForClients waits until the hub has n clients.
func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", h.ClientCount(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyRedirect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := f.client.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	waitForClients(t, f.server.Hub(), 1)

	if _, err := f.client.PageLoad(ctx, 4, "http://evil.test"); err != nil {
		t.Fatalf("PageLoad() failed: %v", err)
	}

	got := map[string]Envelope{}
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case env, ok := <-events:
			if !ok {
				t.Fatal("events stream closed early")
			}
			got[env.Type] = env
		case <-timeout:
			t.Fatalf("received %d envelopes, want 2", len(got))
		}
	}

	completed := got[EnvelopeScanCompleted]
	if completed.Event == nil || !completed.Event.Result.IsPhishing || completed.Event.Badge != model.WarningBadge() {
		t.Errorf("scan_completed = %+v", completed)
	}
	action := got[EnvelopePhishingAction]
	if action.Warning == nil || action.Warning.Policy != model.PolicyRedirect || action.Warning.WarningPage != "/warning.html" || action.Warning.TabID != 4 {
		t.Errorf("phishing_action = %+v", action)
	}

	// Pushed results drive an open surface showing the same tab and URL.
	surface := popup.New(f.client, nil, slog.New(slog.DiscardHandler))
	if _, err := surface.Scan(ctx, 4, "http://evil.test"); err != nil {
		t.Fatalf("Scan() failed: %v", err)
	}
	if !surface.Apply(completed.Event.Result) {
		t.Error("surface should accept the matching pushed result")
	}
}

func TestEvents_ServerClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "k", model.PolicyBadge)

	events, err := f.client.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	waitForClients(t, f.server.Hub(), 1)

	f.server.Close()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("no envelope expected")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events stream not closed after server Close")
	}
	if n := f.server.Hub().ClientCount(); n != 0 {
		t.Errorf("clients after Close = %d", n)
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()

	tests := []struct {
		origin string
		want   bool
	}{
		{origin: "", want: true},
		{origin: "chrome-extension://abcdef", want: true},
		{origin: "moz-extension://abcdef", want: true},
		{origin: "http://127.0.0.1:7878", want: true},
		{origin: "https://evil.test", want: false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:7878/v1/events", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(r); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
