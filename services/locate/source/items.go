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
	"path/filepath"
	"strconv"

	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/text"
	"golang.org/x/sync/errgroup"
)

// maxItemWorkers bounds concurrent item builds for one server reply.
const maxItemWorkers = 16

// itemBuilder turns locations into items.
type itemBuilder struct {
	host   EditorHost
	lines  *lineResolver
	names  highlightNames
	groups HighlightGroups
	cwd    string
	logger *slog.Logger
}

// Build converts locs into items, keeping their order.
//
// Description:
//
//	Locations are resolved concurrently. A location whose URI cannot be
//	turned into a path is dropped and logged.
//
// Outputs:
//
//	[]Item - One item per usable location, in input order.
//	error - Non-nil only if ctx was cancelled.
func (b *itemBuilder) Build(ctx context.Context, locs []lsp.Location) ([]Item, error) {
	built := make([]*Item, len(locs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxItemWorkers)
	for i, loc := range locs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			item, ok := b.buildItem(gctx, loc)
			if ok {
				built[i] = &item
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(built))
	for _, item := range built {
		if item != nil {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (b *itemBuilder) buildItem(ctx context.Context, loc lsp.Location) (Item, bool) {
	path, err := lsp.URIToPath(loc.URI)
	if err != nil {
		b.logger.Debug("dropping location", slog.String("uri", loc.URI), slog.String("error", err.Error()))
		return Item{}, false
	}

	buf, err := b.host.BufferNumber(ctx, path)
	if err != nil {
		buf = -1
	}

	relPath := relativePath(b.cwd, path)
	start, end := loc.Range.Start, loc.Range.End
	line := b.lines.Line(ctx, buf, path, start.Line)

	wordPos := text.ByteOffset(line, start.Character)
	wordEnd := -1
	if start.Line == end.Line {
		wordEnd = end.Character
	}
	wordLen := len(text.Slice(line, start.Character, wordEnd))

	lineNr := start.Line + 1
	col := wordPos + 1
	pos := strconv.Itoa(lineNr) + " col " + strconv.Itoa(col)

	action := ActionData{Path: path, LineNr: lineNr, Col: col, Text: line}
	if buf > 0 {
		action.BufNr = buf
	}

	return Item{
		Word:   relPath + "|" + pos + "|" + line,
		Action: action,
		Highlights: []Highlight{
			{Name: b.names.path, HLGroup: b.groups.Path, Col: 1, Width: len(relPath)},
			{Name: b.names.lineNr, HLGroup: b.groups.LineNr, Col: 1 + len(relPath) + 1, Width: len(pos)},
			{Name: b.names.word, HLGroup: b.groups.Word, Col: 1 + len(relPath) + 1 + len(pos) + 1 + wordPos, Width: wordLen},
		},
	}, true
}

// relativePath returns path relative to cwd, or path itself when no
// relative form exists.
func relativePath(cwd, path string) string {
	if cwd == "" {
		return path
	}
	rel, err := filepath.Rel(cwd, path)
	if err != nil {
		return path
	}
	return rel
}
