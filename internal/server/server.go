// Package server exposes the coordinator over a local HTTP API.
//
// Browser-side probes report navigation and page loads, UI surfaces send
// Messages and subscribe to the events websocket. Client is the matching
// remote implementation of the probe and popup coordinator interfaces.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/phishguard/internal/coordinator"
	"github.com/nao1215/phishguard/internal/model"
	"github.com/nao1215/phishguard/internal/probe"
)

// Routes.
const (
	PathHealth   = "/healthz"
	PathMessages = "/v1/messages"
	PathEvents   = "/v1/events"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 64 << 10

func init() {
	gin.SetMode(gin.ReleaseMode)
}

// Options configures a Server.
type Options struct {
	// Policy and WarningPage configure the page-load probe.
	Policy      model.DetectionPolicy
	WarningPage string

	// Logger receives request and server logs. Nil means slog.Default().
	Logger *slog.Logger
}

// Server serves the coordinator API.
type Server struct {
	coord  *coordinator.Coordinator
	probe  *probe.Probe
	hub    *Hub
	engine *gin.Engine
	logger *slog.Logger

	unsubscribe func()
	pumpDone    chan struct{}
	closeOnce   sync.Once
}

// New creates a Server and starts forwarding coordinator events to
// websocket clients. Call Close to stop.
func New(coord *coordinator.Coordinator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hub := NewHub(logger)
	s := &Server{
		coord:    coord,
		hub:      hub,
		logger:   logger,
		pumpDone: make(chan struct{}),
	}
	s.probe = probe.New(coord, probe.Options{
		Policy:      opts.Policy,
		WarningPage: opts.WarningPage,
		Warner:      hub,
		Logger:      logger,
	})

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(logger))
	s.routes(engine)
	s.engine = engine

	events, unsubscribe := coord.Subscribe()
	s.unsubscribe = unsubscribe
	go func() {
		defer close(s.pumpDone)
		hub.Pump(context.Background(), events)
	}()

	return s
}

func (s *Server) routes(r *gin.Engine) {
	r.GET(PathHealth, s.health)
	r.POST(PathMessages, s.postMessage)
	r.GET(PathEvents, func(c *gin.Context) {
		s.hub.ServeWS(c.Writer, c.Request)
	})

	tabs := r.Group("/v1/tabs")
	{
		tabs.GET("/:id", s.getTab)
		tabs.POST("/:id/navigate", s.navigate)
		tabs.POST("/:id/load", s.pageLoad)
		tabs.DELETE("/:id", s.closeTab)
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the events hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("listening", "address", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Close stops event forwarding and disconnects websocket clients. The
// coordinator itself is left open.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.unsubscribe()
		<-s.pumpDone
		s.hub.Close()
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "subscribers": s.hub.ClientCount()})
}

func (s *Server) postMessage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)

	var msg coordinator.Message
	if err := c.ShouldBindJSON(&msg); err != nil {
		badRequest(c, fmt.Errorf("invalid message: %w", err))
		return
	}
	c.JSON(http.StatusOK, s.coord.Handle(c.Request.Context(), msg))
}

// urlBody is the request body of the navigate and load hooks.
type urlBody struct {
	URL string `json:"url"`
}

func (s *Server) navigate(c *gin.Context) {
	tab, body, ok := s.tabAndURL(c)
	if !ok {
		return
	}
	if err := s.coord.Navigate(tab, body.URL); err != nil {
		badRequest(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// pageLoadResponse answers a page-load hook.
type pageLoadResponse struct {
	TabID   model.TabID `json:"tab_id"`
	URL     string      `json:"url"`
	Outcome string      `json:"outcome"`
}

func (s *Server) pageLoad(c *gin.Context) {
	tab, body, ok := s.tabAndURL(c)
	if !ok {
		return
	}
	outcome := s.probe.OnPageLoad(c.Request.Context(), tab, body.URL)
	c.JSON(http.StatusOK, pageLoadResponse{TabID: tab, URL: body.URL, Outcome: outcome.String()})
}

func (s *Server) getTab(c *gin.Context) {
	tab, ok := tabParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.coord.Status(tab))
}

func (s *Server) closeTab(c *gin.Context) {
	tab, ok := tabParam(c)
	if !ok {
		return
	}
	s.coord.CloseTab(tab)
	c.Status(http.StatusNoContent)
}

func (s *Server) tabAndURL(c *gin.Context) (model.TabID, urlBody, bool) {
	tab, ok := tabParam(c)
	if !ok {
		return 0, urlBody{}, false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
	var body urlBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Errorf("invalid body: %w", err))
		return 0, urlBody{}, false
	}
	return tab, body, true
}

// tabParam parses the :id path parameter and answers 400 when it is not a
// valid tab.
func tabParam(c *gin.Context) (model.TabID, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	tab := model.TabID(id)
	if err != nil || !tab.Valid() {
		badRequest(c, fmt.Errorf("invalid tab id %q", c.Param("id")))
		return 0, false
	}
	return tab, true
}

// badRequest answers 400 with a failed coordinator.Response.
func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, coordinator.Response{
		OK:        false,
		Error:     err.Error(),
		ErrorKind: model.KindInvalidInput,
	})
}

// requestLogger logs every request at debug level, and failures at warn.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"elapsed", time.Since(start),
		}
		if status >= http.StatusBadRequest {
			logger.Warn("request failed", attrs...)
			return
		}
		logger.Debug("request", attrs...)
	}
}
