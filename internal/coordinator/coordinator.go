package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/phishguard/internal/badge"
	"github.com/nao1215/phishguard/internal/credential"
	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/pipeline"
)

// Classifier asks the external service for a verdict.
// *classifier.Client implements it.
type Classifier interface {
	Predict(ctx context.Context, rawURL, apiKey string) (bool, error)
}

// Options configures a Coordinator.
type Options struct {
	// RequireAPIKey refuses to contact the service when no key is stored.
	RequireAPIKey bool

	// Recorder appends accepted results to the scan log. Nil disables it.
	Recorder pipeline.Recorder

	// ExtraSteps run after the built-in post-verdict steps.
	ExtraSteps []pipeline.Step

	// SubscriberBuffer is the event channel capacity per subscriber.
	// Zero means 16.
	SubscriberBuffer int

	// Logger receives coordinator logs. Nil means slog.Default().
	Logger *slog.Logger
}

// TabStatus is the coordinator's view of one tab.
type TabStatus struct {
	// TabID is the tab.
	TabID model.TabID `json:"tab_id"`

	// URL is the URL the tab currently shows, as last reported.
	URL string `json:"url,omitempty"`

	// Badge is the tab's current badge.
	Badge model.Badge `json:"badge"`

	// Scanning is true while a classification call is in flight.
	Scanning bool `json:"scanning"`

	// Last is the most recent accepted result, if any.
	Last *model.ScanResult `json:"last,omitempty"`
}

// flight is one in-flight classification call.
type flight struct {
	id     string
	req    model.ScanRequest
	cancel context.CancelFunc
	done   chan struct{}

	// waiters counts callers sharing this call, under Coordinator.mu.
	waiters int

	// The fields below are written under Coordinator.mu before done is
	// closed and only read after.
	settled bool
	result  model.ScanResult
	err     error
}

// tabState is the per-tab bookkeeping.
type tabState struct {
	currentURL string
	flight     *flight
	last       *model.ScanResult
}

// Coordinator serializes classification per tab and applies verdicts.
// It is safe for concurrent use.
type Coordinator struct {
	classifier  Classifier
	credentials credential.Store
	badges      *badge.Store
	pipeline    *pipeline.Pipeline
	requireKey  bool
	logger      *slog.Logger
	subBuffer   int

	mu     sync.Mutex
	tabs   map[model.TabID]*tabState
	closed bool

	// effectsTail is closed when the pipeline run of the most recently
	// accepted result has finished. Guarded by mu.
	effectsTail chan struct{}

	// subsMu guards subs and subsClosed. It is never held together with mu.
	subsMu     sync.Mutex
	subs       map[string]chan Event
	subsClosed bool

	// flights tracks classification goroutines for Close.
	flights sync.WaitGroup
}

// New creates a Coordinator.
func New(classifier Classifier, credentials credential.Store, opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	subBuffer := opts.SubscriberBuffer
	if subBuffer <= 0 {
		subBuffer = 16
	}

	effectsTail := make(chan struct{})
	close(effectsTail)

	c := &Coordinator{
		classifier:  classifier,
		credentials: credentials,
		badges:      badge.NewStore(),
		requireKey:  opts.RequireAPIKey,
		logger:      logger,
		subBuffer:   subBuffer,
		tabs:        make(map[model.TabID]*tabState),
		effectsTail: effectsTail,
		subs:        make(map[string]chan Event),
	}

	p := pipeline.New(pipeline.WithContinueOnError(true), pipeline.WithLogger(logger))
	p.AddStep(pipeline.NewBadgeStep(c.badges, logger))
	if opts.Recorder != nil {
		p.AddStep(pipeline.NewRecordStep(opts.Recorder))
	}
	p.AddStep(pipeline.NewNotifyStep(c.publish))
	p.AddSteps(opts.ExtraSteps...)
	c.pipeline = p

	return c
}

// Badges returns the badge store.
func (c *Coordinator) Badges() *badge.Store {
	return c.badges
}

// tab returns the state for id, creating it. c.mu must be held.
func (c *Coordinator) tab(id model.TabID) *tabState {
	ts, ok := c.tabs[id]
	if !ok {
		ts = &tabState{}
		c.tabs[id] = ts
	}
	return ts
}

// Classify returns the verdict for req.
//
// Invalid requests fail with model.ErrInvalidInput and a missing key (when
// required) with model.ErrMissingCredential; neither contacts the service.
// A cancelled ctx returns model.ErrCanceled.
// A call superseded by a newer URL on the same tab, or by navigation,
// returns model.ErrSuperseded. Cancelling ctx only stops this caller from
// waiting; the shared call keeps running for other waiters.
//
// On failure the returned result carries the error kind and user-facing
// message.
func (c *Coordinator) Classify(ctx context.Context, req model.ScanRequest) (model.ScanResult, error) {
	if err := req.Validate(); err != nil {
		return model.NewFailedResult(req, err), err
	}

	apiKey, err := c.apiKey(ctx)
	if err != nil {
		return model.NewFailedResult(req, err), err
	}

	f, err := c.join(req, apiKey)
	if err != nil {
		return model.NewFailedResult(req, err), err
	}

	select {
	case <-f.done:
		result := f.result
		result.Origin = req.Origin
		return result, f.err
	case <-ctx.Done():
		err := model.NewScanError(model.KindCanceled, ctx.Err())
		return model.NewFailedResult(req, err), err
	}
}

// apiKey reads the stored key. It returns a MissingCredential error when
// the key is required but absent, and a CredentialUnavailable error when
// the key is required but the store cannot be read.
func (c *Coordinator) apiKey(ctx context.Context) (string, error) {
	key, err := c.credentials.Get(ctx)
	switch {
	case errors.Is(err, credential.ErrNotFound):
		key = ""
	case err != nil && c.requireKey:
		c.logger.Error("failed to read API key", "backend", c.credentials.Backend(), "error", err)
		return "", model.NewScanError(model.KindCredentialUnavailable, err)
	case err != nil:
		c.logger.Warn("failed to read API key, scanning without one", "backend", c.credentials.Backend(), "error", err)
		key = ""
	}

	if key == "" && c.requireKey {
		c.logger.Warn("no API key set, not contacting the classification service")
		return "", model.NewScanError(model.KindMissingCredential, credential.ErrNotFound)
	}
	return key, nil
}

// join returns the in-flight call for req, starting one when needed.
func (c *Coordinator) join(req model.ScanRequest, apiKey string) (*flight, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, model.NewScanError(model.KindUnreachable, errors.New("coordinator closed"))
	}

	ts := c.tab(req.TabID)
	ts.currentURL = req.URL

	if f := ts.flight; f != nil {
		if f.req.URL == req.URL {
			f.waiters++
			c.logger.Debug("joining in-flight scan", "tab", req.TabID, "url", req.URL, "flight", f.id, "waiters", f.waiters)
			return f, nil
		}
		c.supersede(ts, "newer request")
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &flight{
		id:      uuid.NewString(),
		req:     req,
		cancel:  cancel,
		done:    make(chan struct{}),
		waiters: 1,
	}
	ts.flight = f

	c.logger.Debug("starting scan", "tab", req.TabID, "url", req.URL, "origin", req.Origin, "flight", f.id)

	c.flights.Add(1)
	go c.run(ctx, f, apiKey)

	return f, nil
}

// supersede cancels the tab's in-flight call and releases its waiters with
// ErrSuperseded. c.mu must be held.
func (c *Coordinator) supersede(ts *tabState, reason string) {
	f := ts.flight
	if f == nil {
		return
	}
	ts.flight = nil

	c.logger.Debug("scan superseded", "tab", f.req.TabID, "url", f.req.URL, "flight", f.id, "reason", reason)

	f.cancel()
	f.settled = true
	f.err = fmt.Errorf("%s: %w", reason, model.ErrSuperseded)
	f.result = model.NewFailedResult(f.req, model.ErrSuperseded)
	close(f.done)
}

// run performs the classification call for f without holding any lock.
func (c *Coordinator) run(ctx context.Context, f *flight, apiKey string) {
	defer c.flights.Done()
	defer f.cancel()

	start := time.Now()
	isPhishing, err := c.classifier.Predict(ctx, f.req.URL, apiKey)

	var result model.ScanResult
	if err != nil {
		result = model.NewFailedResult(f.req, err)
	} else {
		result = model.NewScanResult(f.req, isPhishing)
	}

	c.mu.Lock()
	if f.settled {
		c.mu.Unlock()
		c.logger.Debug("discarding late result", "tab", f.req.TabID, "url", f.req.URL, "flight", f.id)
		return
	}

	f.settled = true
	f.result = result
	f.err = err

	ts := c.tabs[f.req.TabID]
	accepted := ts != nil && ts.flight == f && ts.currentURL == f.req.URL
	if ts != nil && ts.flight == f {
		ts.flight = nil
	}
	if !accepted {
		f.err = model.ErrSuperseded
		f.result = model.NewFailedResult(f.req, model.ErrSuperseded)
		close(f.done)
		c.mu.Unlock()
		c.logger.Debug("discarding stale result", "tab", f.req.TabID, "url", f.req.URL, "flight", f.id)
		return
	}

	stored := result
	ts.last = &stored

	// Pipelines run in acceptance order: wait for the previous run to
	// finish, after mu is released.
	prev := c.effectsTail
	mine := make(chan struct{})
	c.effectsTail = mine
	c.mu.Unlock()
	<-prev

	c.logger.Info("scan completed",
		"tab", f.req.TabID,
		"url", f.req.URL,
		"phishing", result.IsPhishing,
		"error_kind", result.ErrorKind,
		"elapsed", time.Since(start),
	)

	// The pipeline must finish even when the flight context is done.
	if perr := c.pipeline.Execute(context.WithoutCancel(ctx), &result); perr != nil {
		c.logger.Error("post-verdict pipeline failed", "tab", f.req.TabID, "error", perr)
	}
	close(mine)

	close(f.done)
}

// Navigate records that tab now shows rawURL. An in-flight call for a
// different URL is superseded.
func (c *Coordinator) Navigate(tab model.TabID, rawURL string) error {
	req := model.NewScanRequest(tab, rawURL, model.OriginAutoNavigate)
	if !tab.Valid() {
		return model.NewScanError(model.KindInvalidInput, fmt.Errorf("invalid tab id %d", tab))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ts := c.tab(tab)
	ts.currentURL = req.URL
	if ts.flight != nil && ts.flight.req.URL != req.URL {
		c.supersede(ts, "navigation")
	}
	return nil
}

// CloseTab forgets tab and supersedes its in-flight call.
func (c *Coordinator) CloseTab(tab model.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.tabs[tab]; ok {
		c.supersede(ts, "tab closed")
		delete(c.tabs, tab)
	}
	c.badges.Forget(tab)
}

// Status returns the coordinator's view of tab.
func (c *Coordinator) Status(tab model.TabID) TabStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := TabStatus{TabID: tab, Badge: c.badges.Get(tab)}
	if ts, ok := c.tabs[tab]; ok {
		status.URL = ts.currentURL
		status.Scanning = ts.flight != nil
		if ts.last != nil {
			last := *ts.last
			status.Last = &last
		}
	}
	return status
}

// SaveCredential stores the API key. Blank keys fail with
// model.ErrInvalidInput. Nothing else changes.
func (c *Coordinator) SaveCredential(ctx context.Context, key string) error {
	if err := c.credentials.Set(ctx, key); err != nil {
		if errors.Is(err, credential.ErrEmptyKey) {
			return model.NewScanError(model.KindInvalidInput, err)
		}
		return fmt.Errorf("failed to save API key: %w", err)
	}
	c.logger.Info("API key saved", "backend", c.credentials.Backend(), "fingerprint", credential.Fingerprint(key))
	return nil
}

// Close supersedes every in-flight call, waits for their goroutines and
// closes all subscriber channels. Classify fails after Close.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, ts := range c.tabs {
		c.supersede(ts, "coordinator closed")
	}
	c.mu.Unlock()

	c.flights.Wait()

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	c.subsClosed = true
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
}
