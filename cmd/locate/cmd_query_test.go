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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/locate/pkg/logging"
	"github.com/AleutianAI/locate/services/locate/config"
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/render"
	"github.com/AleutianAI/locate/services/locate/source"
)

func unchanged(string) bool { return false }

func TestParseQuery(t *testing.T) {
	c := config.Default()

	t.Run("converts to zero-based position", func(t *testing.T) {
		target, err := parseQuery(c, []string{"definition", "main.go", "3", "15"}, queryOptions{}, "/work", unchanged)
		require.NoError(t, err)

		assert.Equal(t, lsp.MethodDefinition, target.params.Method)
		assert.Equal(t, lsp.Position{Line: 2, Character: 14}, *target.params.Position)
		assert.Equal(t, filepath.Join("/work", "main.go"), target.path)
		assert.Equal(t, lsp.PathToURI(filepath.Join("/work", "main.go")), target.params.TextDocument.URI)
		assert.Equal(t, "/work", target.cwd)
	})

	t.Run("accepts request names", func(t *testing.T) {
		target, err := parseQuery(c, []string{"textDocument/typeDefinition", "/abs/a.go", "1", "1"}, queryOptions{}, "/work", unchanged)
		require.NoError(t, err)
		assert.Equal(t, lsp.MethodTypeDefinition, target.params.Method)
		assert.Equal(t, "/abs/a.go", target.path)
	})

	t.Run("keeps config defaults without flags", func(t *testing.T) {
		opts := queryOptions{timeout: 5, silent: "silent!"}
		target, err := parseQuery(c, []string{"references", "a.go", "1", "1"}, opts, "/work", unchanged)
		require.NoError(t, err)
		assert.Equal(t, c.TimeoutMS, target.params.Timeout)
		assert.Equal(t, c.Silent, target.params.Silent)
		assert.Equal(t, c.Highlights, target.params.Highlights)
	})

	t.Run("flags override defaults", func(t *testing.T) {
		opts := queryOptions{timeout: 250, silent: "silent", highlights: []string{"word=Search"}}
		changed := func(name string) bool { return name == "timeout" || name == "silent" }
		target, err := parseQuery(c, []string{"references", "a.go", "1", "1"}, opts, "/work", changed)
		require.NoError(t, err)
		assert.Equal(t, 250, target.params.Timeout)
		assert.Equal(t, source.SilenceInfo, target.params.Silent)
		assert.Equal(t, "Search", target.params.Highlights.Word)
		assert.Equal(t, c.Highlights.Path, target.params.Highlights.Path)
	})

	errCases := []struct {
		name string
		args []string
		opts queryOptions
	}{
		{"unknown method", []string{"hover", "a.go", "1", "1"}, queryOptions{}},
		{"zero line", []string{"definition", "a.go", "0", "1"}, queryOptions{}},
		{"zero character", []string{"definition", "a.go", "1", "0"}, queryOptions{}},
		{"non-numeric line", []string{"definition", "a.go", "x", "1"}, queryOptions{}},
		{"bad highlight", []string{"definition", "a.go", "1", "1"}, queryOptions{highlights: []string{"word"}}},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseQuery(c, tc.args, tc.opts, "/work", unchanged)
			assert.Error(t, err)
		})
	}

	t.Run("invalid silence", func(t *testing.T) {
		changed := func(name string) bool { return name == "silent" }
		_, err := parseQuery(c, []string{"definition", "a.go", "1", "1"}, queryOptions{silent: "loud"}, "/work", changed)
		assert.ErrorIs(t, err, source.ErrInvalidParameter)
	})
}

func TestParseHighlights(t *testing.T) {
	groups, err := parseHighlights([]string{"path=Title", "lineNr=Comment", "word=Search"})
	require.NoError(t, err)
	assert.Equal(t, source.HighlightGroups{Path: "Title", LineNr: "Comment", Word: "Search"}, groups)

	groups, err = parseHighlights([]string{"word=Identifier", "word=Search"})
	require.NoError(t, err)
	assert.Equal(t, "Search", groups.Word, "later values win")

	for _, bad := range []string{"word", "word=", "col=Search"} {
		_, err := parseHighlights([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestResolveLevel(t *testing.T) {
	level, err := resolveLevel(queryCmd, "info")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelWarn, level, "query raises info to warn")

	level, err = resolveLevel(queryCmd, "error")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelError, level)

	level, err = resolveLevel(serveCmd, "debug")
	require.NoError(t, err)
	assert.Equal(t, logging.LevelDebug, level)

	_, err = resolveLevel(&cobra.Command{Use: "x"}, "loud")
	assert.Error(t, err)
}

func TestWriteServers(t *testing.T) {
	statuses := []lsp.ServerStatus{
		{Name: "gopls", Command: "gopls", State: "ready", Version: "v0.16.0",
			Capabilities: []lsp.Capability{lsp.CapabilityDefinition, lsp.CapabilityReferences}},
		{Name: "pyright", Command: "pyright-langserver", State: "stopped"},
	}

	t.Run("table", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, writeServers(&out, statuses, false))
		text := out.String()
		assert.Contains(t, text, "NAME")
		assert.Contains(t, text, "gopls")
		assert.Contains(t, text, "definitionProvider, referencesProvider")
		assert.Contains(t, text, "pyright-langserver")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, writeServers(&out, statuses, true))
		var decoded []lsp.ServerStatus
		require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
		assert.Equal(t, statuses, decoded)
	})
}

// =============================================================================
// query
// =============================================================================

// stubPool answers every request with fixed locations.
type stubPool struct {
	locations []lsp.Location
	enableErr error

	mu     sync.Mutex
	opened map[string]string
}

func (p *stubPool) Enable(context.Context) error { return p.enableErr }

func (p *stubPool) Servers(context.Context, int, string) ([]string, error) {
	return []string{"stub"}, nil
}

func (p *stubPool) Supports(context.Context, string, lsp.Capability) (bool, error) {
	return true, nil
}

func (p *stubPool) Request(_ context.Context, _, token, _ string, _ interface{}) (<-chan lsp.Response, func(), error) {
	raw, err := json.Marshal(p.locations)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan lsp.Response, 1)
	ch <- lsp.Response{ID: lsp.ID(token), Result: raw}
	return ch, func() {}, nil
}

func (p *stubPool) OpenDocument(_ context.Context, path, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened == nil {
		p.opened = make(map[string]string)
	}
	p.opened[path] = text
	return nil
}

func withGlobals(t *testing.T) {
	t.Helper()
	prevCfg, prevLogger := cfg, logger
	cfg, logger = config.Default(), logging.Discard()
	t.Cleanup(func() { cfg, logger = prevCfg, prevLogger })
}

func decodeLines(t *testing.T, data []byte) []render.Line {
	t.Helper()
	var lines []render.Line
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var line render.Line
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestQuery(t *testing.T) {
	withGlobals(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() { run() }\n"), 0o644))
	loc := lsp.Location{
		URI:   lsp.PathToURI(path),
		Range: lsp.Range{Start: lsp.Position{Line: 2, Character: 14}, End: lsp.Position{Line: 2, Character: 17}},
	}

	target, err := parseQuery(cfg, []string{"references", "main.go", "3", "15"}, queryOptions{}, dir, unchanged)
	require.NoError(t, err)

	t.Run("streams items and a summary", func(t *testing.T) {
		pool := &stubPool{locations: []lsp.Location{loc}}
		var out bytes.Buffer

		summary, err := query(context.Background(), pool, render.NewJSONWriter(&out), target, nil)
		require.NoError(t, err)
		assert.Equal(t, "ok", summary.Outcome())
		assert.Equal(t, 1, summary.Items)

		var items, summaries int
		for _, line := range decodeLines(t, out.Bytes()) {
			switch line.Type {
			case render.LineItem:
				items++
				assert.Equal(t, "main.go|3 col 15|func main() { run() }", line.Item.Word)
			case render.LineSummary:
				summaries++
				assert.Equal(t, "ok", line.Summary.Outcome)
			}
		}
		assert.Equal(t, 1, items)
		assert.Equal(t, 1, summaries)
	})

	t.Run("unsaved text is sent to the servers", func(t *testing.T) {
		pool := &stubPool{locations: []lsp.Location{loc}}
		text := "package main\n\nfunc main() { run() } // edited\n"
		var out bytes.Buffer

		_, err := query(context.Background(), pool, render.NewJSONWriter(&out), target, &text)
		require.NoError(t, err)
		assert.Equal(t, text, pool.opened[path])
	})

	t.Run("missing file reports buffer not found", func(t *testing.T) {
		missing, err := parseQuery(cfg, []string{"references", "gone.go", "1", "1"}, queryOptions{}, dir, unchanged)
		require.NoError(t, err)
		var out bytes.Buffer

		summary, err := query(context.Background(), &stubPool{}, render.NewJSONWriter(&out), missing, nil)
		require.NoError(t, err)
		assert.Equal(t, "buffer_not_found", summary.Outcome())
	})

	t.Run("setup failure", func(t *testing.T) {
		pool := &stubPool{enableErr: lsp.ErrNoServers}
		var out bytes.Buffer

		_, err := query(context.Background(), pool, render.NewJSONWriter(&out), target, nil)
		assert.ErrorIs(t, err, errQueryFailed)
		assert.Contains(t, out.String(), "Can not enable language servers")
	})
}
