// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves location-list queries over HTTP.
//
// Every request gets its own headless workspace and Source over the
// shared language server pool, so notices and caches never leak between
// requests. Results stream as JSON lines (render.Line) over a chunked
// response or a websocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/locate/services/locate/config"
	"github.com/AleutianAI/locate/services/locate/host"
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/source"
)

// Pool is the language server pool the API queries.
type Pool interface {
	source.ServerDirectory
	source.Transport
	OpenDocument(ctx context.Context, path, text string) error
	Describe() []lsp.ServerStatus
	RootPath() string
}

// defaults are the reloadable query defaults.
type defaults struct {
	name   string
	params source.Params
}

// Server is the locate HTTP API.
//
// Thread Safety: safe for concurrent use. ApplyConfig may be called while
// requests are being served; runs already started keep their defaults.
type Server struct {
	pool    Pool
	logger  *slog.Logger
	limiter *rate.Limiter
	metrics http.Handler
	router  *gin.Engine

	mu       sync.RWMutex
	defaults defaults
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewServer creates the API server for cfg over pool.
//
// Description:
//
//	Builds the gin router with otelgin tracing, request ids, and (when
//	cfg.API.RateLimit > 0) a token-bucket limiter on the query routes.
//
// Inputs:
//
//	cfg - Loaded configuration; its query defaults can be replaced later
//	      with ApplyConfig.
//	pool - The shared language server pool.
func NewServer(cfg *config.Config, pool Pool, opts ...Option) *Server {
	s := &Server{
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "api"))
	if cfg.API.RateLimit > 0 {
		burst := cfg.API.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.API.RateLimit), burst)
	}
	s.ApplyConfig(cfg)
	s.router = s.newRouter()
	return s
}

// ApplyConfig replaces the query defaults (name, timeout, silence,
// highlights). Server list and address changes need a restart.
func (s *Server) ApplyConfig(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = defaults{name: cfg.Name, params: cfg.Params()}
	s.logger.Info("query defaults applied",
		slog.String("name", cfg.Name),
		slog.Int("timeout_ms", cfg.TimeoutMS),
		slog.String("silent", string(cfg.Silent)))
}

func (s *Server) currentDefaults() defaults {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaults
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("locate-api"))
	router.Use(requestID())

	v1 := router.Group("/v1/locate")
	{
		v1.GET("/health", s.HandleHealth)
		v1.POST("/gather", s.rateLimit(), s.HandleGather)
		v1.GET("/ws", s.rateLimit(), s.HandleWebSocket)
	}
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}
	return router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// =============================================================================
// Query Setup
// =============================================================================

// requestError is a failure before a run starts.
type requestError struct {
	status int
	code   string
	err    error
}

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func (e *requestError) response() ErrorResponse {
	return ErrorResponse{Error: e.err.Error(), Code: e.code}
}

// newRequest returns a GatherRequest pre-filled with the current defaults,
// ready to have a body decoded over it.
func (s *Server) newRequest() (GatherRequest, defaults) {
	d := s.currentDefaults()
	return GatherRequest{Params: d.params}, d
}

// start builds the per-request workspace and Source and begins the run.
//
// Description:
//
//	Validates the params, opens the target document (from req.Text or
//	disk) in a window, enables the pool, and starts gathering. A target
//	that cannot be opened is not an error here; the run reports it as
//	"Buffer not found".
//
// Outputs:
//
//	*source.Stream - The running query.
//	error - *requestError with the HTTP status and code.
func (s *Server) start(ctx context.Context, req GatherRequest, d defaults, sink host.NoticeSink, logger *slog.Logger) (*source.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, &requestError{http.StatusBadRequest, CodeInvalidParameter, err}
	}

	path, err := lsp.URIToPath(req.TextDocument.URI)
	if err != nil {
		return nil, &requestError{http.StatusBadRequest, CodeInvalidParameter, err}
	}

	cwd := req.Cwd
	if cwd == "" {
		cwd = s.pool.RootPath()
	}
	ws := host.NewWorkspace(cwd, sink)

	buf := -1
	if req.Text != nil {
		buf = ws.OpenText(path, *req.Text)
	} else if n, err := ws.OpenFile(path); err == nil {
		buf = n
	} else {
		logger.Debug("target not opened", slog.String("path", path), slog.String("error", err.Error()))
	}
	if buf > 0 {
		if _, err := ws.Show(buf, cwd); err != nil {
			return nil, &requestError{http.StatusInternalServerError, CodeInternal, err}
		}
	}

	src := source.NewSource(ws, s.pool, s.pool,
		source.WithName(d.name),
		source.WithLogger(logger),
		source.WithDefaultHighlights(d.params.Highlights),
	)
	if err := src.Init(ctx, req.Silent); err != nil {
		return nil, &requestError{http.StatusServiceUnavailable, CodeNotInitialized, err}
	}

	if req.Text != nil && buf > 0 {
		if err := s.pool.OpenDocument(ctx, path, *req.Text); err != nil {
			logger.Warn("didOpen failed", slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	stream, err := src.Gather(ctx, req.Params)
	switch {
	case err == nil:
		return stream, nil
	case errors.Is(err, source.ErrInvalidParameter):
		return nil, &requestError{http.StatusBadRequest, CodeInvalidParameter, err}
	case errors.Is(err, source.ErrNotInitialized):
		return nil, &requestError{http.StatusServiceUnavailable, CodeNotInitialized, err}
	default:
		return nil, &requestError{http.StatusInternalServerError, CodeInternal, err}
	}
}
