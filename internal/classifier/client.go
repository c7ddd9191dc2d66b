package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/net/proxy"

	"github.com/nao1215/phishguard/internal/config"
	"github.com/nao1215/phishguard/internal/model"
)

// APIKeyHeader is the request header carrying the API key.
const APIKeyHeader = "X-API-KEY"

// retryDelay is the pause before the single retry of an unreachable service.
const retryDelay = 500 * time.Millisecond

// Options configures a Client.
type Options struct {
	// URL is the full classification endpoint, e.g.
	// "http://127.0.0.1:5000/predict".
	URL string

	// Timeout bounds one round trip. Zero means config.DefaultTimeout.
	Timeout time.Duration

	// ProxyAddress routes requests through a SOCKS5 proxy when set.
	ProxyAddress string

	// MaxBodySize caps how much of the response is read. Zero means
	// config.DefaultMaxBodySize.
	MaxBodySize int64

	// UserAgent is sent on every request.
	UserAgent string

	// RetryUnreachable allows one extra attempt when the service cannot be
	// reached. Service errors and malformed responses are never retried.
	RetryUnreachable bool

	// Logger receives debug output. Nil discards it.
	Logger *slog.Logger

	// Transport overrides the HTTP transport. Tests use it to count or fail
	// requests; ProxyAddress is ignored when it is set.
	Transport http.RoundTripper
}

// OptionsFromConfig builds Options from the application configuration.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		URL:              cfg.ClassifyURL(),
		Timeout:          cfg.Timeout,
		ProxyAddress:     cfg.ProxyAddress,
		MaxBodySize:      cfg.MaxBodySize,
		UserAgent:        cfg.UserAgent,
		RetryUnreachable: cfg.RetryUnreachable,
		Logger:           logger,
	}
}

// Client talks to the classification service. It is safe for concurrent
// use; each Predict call is an independent request.
type Client struct {
	url         string
	httpClient  *http.Client
	maxBodySize int64
	retry       bool
	logger      *slog.Logger
}

// New creates a Client. It does not contact the service.
func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("classifier: service URL is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = config.DefaultTimeout
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = config.DefaultMaxBodySize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	base := opts.Transport
	if base == nil {
		transport, err := newTransport(opts.ProxyAddress)
		if err != nil {
			return nil, err
		}
		base = transport
	}

	headers := map[string]string{}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	return &Client{
		url: opts.URL,
		httpClient: &http.Client{
			Transport: &headerInjectingTransport{base: base, headers: headers},
			Timeout:   opts.Timeout,
			// The service is a single endpoint; following redirects would
			// resend the API key to wherever it points.
			CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		maxBodySize: opts.MaxBodySize,
		retry:       opts.RetryUnreachable,
		logger:      opts.Logger,
	}, nil
}

// newTransport returns a transport that dials directly, or through a SOCKS5
// proxy when proxyAddress is set.
func newTransport(proxyAddress string) (*http.Transport, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     30 * time.Second,
	}
	if proxyAddress == "" {
		return transport, nil
	}

	if _, port, err := net.SplitHostPort(proxyAddress); err != nil || port == "" {
		return nil, ErrInvalidProxyAddress
	} else if n, err := strconv.Atoi(port); err != nil || n < 1 || n > 65535 {
		return nil, ErrInvalidProxyAddress
	}

	dialer, err := proxy.SOCKS5("tcp", proxyAddress, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
	}

	transport.Proxy = nil
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
	} else {
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	}
	return transport, nil
}

// URL returns the classification endpoint.
func (c *Client) URL() string {
	return c.url
}

// predictRequest is the JSON body sent to the service.
type predictRequest struct {
	URL string `json:"url"`
}

// Predict asks the service whether rawURL is a phishing page. apiKey is sent
// in the X-API-KEY header when it is not empty. All errors are
// *model.ScanError values.
func (c *Client) Predict(ctx context.Context, rawURL, apiKey string) (bool, error) {
	isPhishing, err := c.predictOnce(ctx, rawURL, apiKey)
	if err == nil || !c.retry || model.KindOf(err) != model.KindUnreachable || ctx.Err() != nil {
		return isPhishing, err
	}

	c.logger.Debug("classification service unreachable, retrying once", "url", rawURL, "error", err)

	timer := time.NewTimer(retryDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, model.NewScanError(model.KindUnreachable, ctx.Err())
	case <-timer.C:
	}

	return c.predictOnce(ctx, rawURL, apiKey)
}

func (c *Client) predictOnce(ctx context.Context, rawURL, apiKey string) (bool, error) {
	payload, err := json.Marshal(predictRequest{URL: rawURL})
	if err != nil {
		return false, model.NewScanError(model.KindInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return false, model.NewScanError(model.KindUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if apiKey != "" {
		req.Header.Set(APIKeyHeader, apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, model.NewScanError(model.KindUnreachable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("classification response",
		"url", rawURL,
		"status", resp.StatusCode,
		"elapsed", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a bounded amount so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBodySize)) //nolint:errcheck // best-effort drain
		return false, model.NewServiceError(resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return false, model.NewScanError(model.KindUnreachable, err)
	}
	if int64(len(body)) > c.maxBodySize {
		return false, model.NewScanError(model.KindMalformedResponse, ErrResponseTooLarge)
	}

	return ParseVerdict(body)
}

// headerInjectingTransport wraps an http.RoundTripper to inject
// fixed headers into every request.
type headerInjectingTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}
	return t.base.RoundTrip(clone)
}
