// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/locate/services/locate/api"
	"github.com/AleutianAI/locate/services/locate/config"
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/telemetry"
)

// serveOptions are the flags of `locate serve`.
type serveOptions struct {
	addr string
	root string
}

var serveOpts serveOptions

func runServe(cmd *cobra.Command, _ []string) error {
	root, err := workingDir(serveOpts.root)
	if err != nil {
		return err
	}
	addr := cfg.API.Addr
	if serveOpts.addr != "" {
		addr = serveOpts.addr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()

	if logger.Slog().Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	pool := lsp.NewPool(root, cfg.Servers)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("language server shutdown", slog.String("error", err.Error()))
		}
	}()
	// Servers that fail here are retried by the first request.
	if err := pool.Enable(ctx); err != nil {
		logger.Warn("language servers not started", slog.String("error", err.Error()))
	}

	opts := []api.Option{api.WithLogger(logger.Slog())}
	if h := providers.MetricsHandler(); h != nil {
		opts = append(opts, api.WithMetricsHandler(h))
	}
	server := api.NewServer(cfg, pool, opts...)

	watchConfig(ctx, server.ApplyConfig)

	return server.Run(ctx, addr)
}

// telemetryConfig overlays the config file's exporter choices on the
// environment defaults.
func telemetryConfig(c *config.Config) telemetry.Config {
	tc := telemetry.DefaultConfig()
	if c.Telemetry.TraceExporter != "" {
		tc.TraceExporter = c.Telemetry.TraceExporter
	}
	if c.Telemetry.MetricExporter != "" {
		tc.MetricExporter = c.Telemetry.MetricExporter
	}
	if c.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.Telemetry.OTLPEndpoint
	}
	return tc
}

// watchConfig reloads the query defaults when the config file changes.
// Nothing is watched when the file does not exist.
func watchConfig(ctx context.Context, apply func(*config.Config)) {
	path := configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			logger.Debug("config not watched", slog.String("error", err.Error()))
			return
		}
	}
	if _, err := os.Stat(path); err != nil {
		logger.Debug("config not watched", slog.String("path", path), slog.String("error", err.Error()))
		return
	}

	watcher, err := config.NewWatcher(path, apply)
	if err != nil {
		logger.Warn("config not watched", slog.String("path", path), slog.String("error", err.Error()))
		return
	}
	go watcher.Start(ctx)
}
