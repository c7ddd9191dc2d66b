package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nao1215/phishguard/internal/coordinator"
	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/popup"
	"github.com/nao1215/phishguard/internal/probe"
)

// navigateTimeout bounds the navigation and tab hooks, which take no
// context.
const navigateTimeout = 5 * time.Second

// ErrUnexpectedStatus is returned when the server answers with a status the
// client does not expect.
var ErrUnexpectedStatus = errors.New("unexpected status from phishguard server")

// Client talks to a running Server. It implements the coordinator
// interfaces of the probe and popup packages.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *slog.Logger
}

var (
	_ probe.Coordinator = (*Client)(nil)
	_ popup.Coordinator = (*Client)(nil)
)

// NewClient creates a Client for the server at baseURL. httpClient may be
// nil.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    u,
		httpClient: httpClient,
		dialer:     websocket.DefaultDialer,
		logger:     logger,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

// do sends a JSON request and decodes a JSON answer into out when out is
// not nil. Transport failures are model.KindUnreachable.
func (c *Client) do(ctx context.Context, method, path string, in, out any, wantStatus int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.NewScanError(model.KindUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		var failed coordinator.Response
		if derr := json.NewDecoder(resp.Body).Decode(&failed); derr == nil && failed.ErrorKind != model.KindNone {
			return model.NewScanError(failed.ErrorKind, errors.New(failed.Error))
		}
	}
	if resp.StatusCode != wantStatus {
		return fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return model.NewScanError(model.KindMalformedResponse, err)
	}
	return nil
}

// Send posts msg to the message endpoint.
func (c *Client) Send(ctx context.Context, msg coordinator.Message) (coordinator.Response, error) {
	var resp coordinator.Response
	if err := c.do(ctx, http.MethodPost, PathMessages, msg, &resp, http.StatusOK); err != nil {
		return coordinator.Response{}, err
	}
	return resp, nil
}

// Classify implements probe.Coordinator and popup.Coordinator.
func (c *Client) Classify(ctx context.Context, req model.ScanRequest) (model.ScanResult, error) {
	resp, err := c.Send(ctx, coordinator.Message{
		Kind:   coordinator.MessageScan,
		TabID:  req.TabID,
		URL:    req.URL,
		Origin: req.Origin,
	})
	if err != nil {
		return model.NewFailedResult(req, err), err
	}
	if resp.Result == nil {
		err := responseError(resp)
		if resp.OK {
			err = model.NewScanError(model.KindMalformedResponse, errors.New("scan response has no result"))
		}
		return model.NewFailedResult(req, err), err
	}
	if !resp.OK {
		return *resp.Result, responseError(resp)
	}
	return *resp.Result, nil
}

// responseError rebuilds the coordinator error carried by a failed
// Response.
func responseError(resp coordinator.Response) error {
	se := model.NewScanError(resp.ErrorKind, errors.New(resp.Error))
	if resp.Result != nil {
		se.StatusCode = resp.Result.StatusCode
	}
	return se
}

// SaveCredential implements popup.Coordinator.
func (c *Client) SaveCredential(ctx context.Context, key string) error {
	resp, err := c.Send(ctx, coordinator.Message{Kind: coordinator.MessageSaveCredential, APIKey: key})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

// Navigate implements probe.Coordinator.
func (c *Client) Navigate(tab model.TabID, rawURL string) error {
	ctx, cancel := context.WithTimeout(context.Background(), navigateTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, tabPath(tab)+"/navigate", urlBody{URL: rawURL}, nil, http.StatusNoContent)
}

// PageLoad reports a completed page load and returns the probe outcome.
func (c *Client) PageLoad(ctx context.Context, tab model.TabID, rawURL string) (string, error) {
	var resp pageLoadResponse
	if err := c.do(ctx, http.MethodPost, tabPath(tab)+"/load", urlBody{URL: rawURL}, &resp, http.StatusOK); err != nil {
		return "", err
	}
	return resp.Outcome, nil
}

// Status returns the server's view of tab.
func (c *Client) Status(ctx context.Context, tab model.TabID) (coordinator.TabStatus, error) {
	var status coordinator.TabStatus
	if err := c.do(ctx, http.MethodGet, tabPath(tab), nil, &status, http.StatusOK); err != nil {
		return coordinator.TabStatus{}, err
	}
	return status, nil
}

// CloseTab forgets tab on the server.
func (c *Client) CloseTab(ctx context.Context, tab model.TabID) error {
	return c.do(ctx, http.MethodDelete, tabPath(tab), nil, nil, http.StatusNoContent)
}

// Subscribe connects to the events stream. The channel is closed when the
// connection ends or ctx is done.
func (c *Client) Subscribe(ctx context.Context) (<-chan Envelope, error) {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path += PathEvents

	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck,gosec // body is unused
	}
	if err != nil {
		return nil, model.NewScanError(model.KindUnreachable, err)
	}

	out := make(chan Envelope, clientBuffer)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close() //nolint:errcheck // unblocks the reader
	})

	go func() {
		defer close(out)
		defer stop()
		defer conn.Close() //nolint:errcheck // nothing to report

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
					c.logger.Debug("events stream ended", "error", err)
				}
				return
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func tabPath(tab model.TabID) string {
	return "/v1/tabs/" + tab.String()
}
