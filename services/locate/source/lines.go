// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package source

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/locate/services/locate/cache"
	"github.com/AleutianAI/locate/services/locate/text"
)

// lineResolver returns the text of source lines for one run.
//
// Description:
//
//	Lines of loaded buffers come from the editor host and are cached by
//	buffer and line. Everything else is read from disk once per file.
//	Both caches belong to a single run and are cleared when it ends.
//
// Thread Safety:
//
//	Safe for concurrent use.
type lineResolver struct {
	host     EditorHost
	bufLines *cache.Flight[string]
	files    *cache.Flight[[]string]
	logger   *slog.Logger
}

func newLineResolver(host EditorHost, logger *slog.Logger) *lineResolver {
	return &lineResolver{
		host:     host,
		bufLines: cache.NewFlight[string]("buffer_line"),
		files:    cache.NewFlight[[]string]("file"),
		logger:   logger,
	}
}

// Line returns zero-based line of the document, preferring buf when it is
// a loaded buffer. It never fails: unknown lines resolve to "".
func (r *lineResolver) Line(ctx context.Context, buf int, path string, line int) string {
	if buf <= 0 {
		return r.fileLine(ctx, path, line)
	}
	return r.bufLines.Get(ctx, cache.LineKey(buf, line), func(ctx context.Context) string {
		text, ok, err := r.host.BufferLine(ctx, buf, line+1)
		if err != nil {
			r.logger.Debug("buffer line unavailable, reading file",
				slog.Int("buffer", buf),
				slog.Int("line", line),
				slog.String("error", err.Error()),
			)
		} else if ok {
			return text
		}
		return r.fileLine(ctx, path, line)
	})
}

func (r *lineResolver) fileLine(ctx context.Context, path string, line int) string {
	lines := r.files.Get(ctx, path, func(ctx context.Context) []string {
		data, err := r.host.ReadFile(ctx, path)
		if err != nil {
			r.logger.Debug("file unreadable",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			return []string{}
		}
		return text.SplitLines(string(data))
	})
	if line < 0 || line >= len(lines) {
		return ""
	}
	return lines[line]
}

// clear discards both caches.
func (r *lineResolver) clear() {
	r.bufLines.Clear()
	r.files.Clear()
}

// cached returns the number of cached buffer lines and files.
func (r *lineResolver) cached() (lines, files int) {
	return r.bufLines.Len(), r.files.Len()
}
