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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/locate/services/locate/config"
	"github.com/AleutianAI/locate/services/locate/host"
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/render"
	"github.com/AleutianAI/locate/services/locate/source"
)

// errQueryFailed marks a run whose failure was already reported as a
// notice; main exits 1 without printing it again.
var errQueryFailed = errors.New("query failed")

// shutdownTimeout bounds the language server shutdown handshake.
const shutdownTimeout = 5 * time.Second

// queryOptions are the flags of `locate query`.
type queryOptions struct {
	timeout    int
	silent     string
	highlights []string
	stdin      bool
	json       bool
	color      string
	cwd        string
}

var queryOpts queryOptions

// queryTarget is a parsed `locate query` command line.
type queryTarget struct {
	params source.Params
	path   string
	cwd    string
}

func runQuery(cmd *cobra.Command, args []string) error {
	cwd, err := workingDir(queryOpts.cwd)
	if err != nil {
		return err
	}
	target, err := parseQuery(cfg, args, queryOpts, cwd, cmd.Flags().Changed)
	if err != nil {
		return err
	}

	mode := render.ModeJSON
	if !queryOpts.json {
		if mode, err = render.ParseMode(queryOpts.color); err != nil {
			return fmt.Errorf("--color: %w", err)
		}
	}

	var text *string
	if queryOpts.stdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		s := string(data)
		text = &s
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := render.NewWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)
	pool := lsp.NewPool(target.cwd, cfg.Servers)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Debug("language server shutdown", slog.String("error", err.Error()))
		}
	}()

	summary, err := query(ctx, pool, w, target, text)
	if err != nil {
		return err
	}
	switch summary.Outcome() {
	case "error", "buffer_not_found", "not_supported":
		return errQueryFailed
	}
	return nil
}

// queryPool is what query needs from lsp.Pool.
type queryPool interface {
	source.ServerDirectory
	source.Transport
	OpenDocument(ctx context.Context, path, text string) error
}

// query runs one query against pool and writes its events to w.
//
// Description:
//
//	Opens the target in a headless workspace (from text when given,
//	otherwise from disk) and shows it in a window. A target that cannot
//	be opened is left to the run, which reports "Buffer not found".
//
// Outputs:
//
//	source.Summary - The run summary.
//	error - Setup failures and output write errors.
func query(ctx context.Context, pool queryPool, w render.Writer, target queryTarget, text *string) (source.Summary, error) {
	ws := host.NewWorkspace(target.cwd, render.Sink{W: w})

	buf := -1
	if text != nil {
		buf = ws.OpenText(target.path, *text)
	} else if n, err := ws.OpenFile(target.path); err == nil {
		buf = n
	} else {
		logger.Debug("target not opened", slog.String("path", target.path), slog.String("error", err.Error()))
	}
	if buf > 0 {
		if _, err := ws.Show(buf, target.cwd); err != nil {
			return source.Summary{}, err
		}
	}

	src := source.NewSource(ws, pool, pool,
		source.WithName(cfg.Name),
		source.WithLogger(logger.Slog()),
		source.WithDefaultHighlights(cfg.Highlights),
	)
	if err := src.Init(ctx, target.params.Silent); err != nil {
		return source.Summary{}, errQueryFailed
	}

	if text != nil {
		if err := pool.OpenDocument(ctx, target.path, *text); err != nil {
			logger.Warn("didOpen failed", slog.String("path", target.path), slog.String("error", err.Error()))
		}
	}

	stream, err := src.Gather(ctx, target.params)
	if err != nil {
		return source.Summary{}, err
	}
	return render.Drain(stream, w)
}

// parseQuery builds the query params from the command line.
//
// Description:
//
//	args are <method> <file> <line> <character>. The method may carry
//	the "textDocument/" prefix. line and character are 1-based and are
//	converted to the 0-based LSP position; character counts UTF-16 code
//	units. Flags override the config defaults only when set.
//
// Inputs:
//
//	changed - Reports whether a flag was given (cmd.Flags().Changed).
func parseQuery(c *config.Config, args []string, opts queryOptions, cwd string, changed func(string) bool) (queryTarget, error) {
	method := lsp.Method(strings.TrimPrefix(args[0], "textDocument/"))
	if !method.Valid() {
		return queryTarget{}, fmt.Errorf("unknown method %q", args[0])
	}

	path := args[1]
	if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}
	path = filepath.Clean(path)

	line, err := parsePositive("line", args[2])
	if err != nil {
		return queryTarget{}, err
	}
	character, err := parsePositive("character", args[3])
	if err != nil {
		return queryTarget{}, err
	}

	params := c.Params()
	params.Method = method
	params.TextDocument = &lsp.TextDocumentIdentifier{URI: lsp.PathToURI(path)}
	params.Position = &lsp.Position{Line: line - 1, Character: character - 1}
	if changed("timeout") {
		params.Timeout = opts.timeout
	}
	if changed("silent") {
		params.Silent = source.Silence(opts.silent)
	}
	if len(opts.highlights) > 0 {
		groups, err := parseHighlights(opts.highlights)
		if err != nil {
			return queryTarget{}, err
		}
		params.Highlights = groups.Merge(params.Highlights)
	}

	if err := params.Validate(); err != nil {
		return queryTarget{}, err
	}
	return queryTarget{params: params, path: path, cwd: cwd}, nil
}

func parsePositive(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", name, value)
	}
	if n < 1 {
		return 0, fmt.Errorf("%s is 1-based, got %d", name, n)
	}
	return n, nil
}

// parseHighlights parses repeated key=Group values.
func parseHighlights(values []string) (source.HighlightGroups, error) {
	var groups source.HighlightGroups
	for _, v := range values {
		key, group, ok := strings.Cut(v, "=")
		if !ok || group == "" {
			return groups, fmt.Errorf("--highlight %q: want key=Group", v)
		}
		switch key {
		case source.HighlightPath:
			groups.Path = group
		case source.HighlightLineNr:
			groups.LineNr = group
		case source.HighlightWord:
			groups.Word = group
		default:
			return groups, fmt.Errorf("--highlight %q: unknown key %q (want path, lineNr or word)", v, key)
		}
	}
	return groups, nil
}
