// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/locate/services/locate/host"
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItem() source.Item {
	return source.Item{
		Word:   "pkg/a.go|3 col 5|\tfoo(bar)",
		Action: source.ActionData{Path: "/p/pkg/a.go", LineNr: 3, Col: 5, Text: "\tfoo(bar)"},
		Highlights: []source.Highlight{
			{Name: "source/locate/path", HLGroup: "Directory", Col: 1, Width: 8},
			{Name: "source/locate/lineNr", HLGroup: "LineNr", Col: 10, Width: 7},
			{Name: "source/locate/word", HLGroup: "Special", Col: 19, Width: 3},
		},
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeAuto, false},
		{"auto", ModeAuto, false},
		{"always", ModeColor, false},
		{"Never", ModePlain, false},
		{"json", ModeJSON, false},
		{"xml", ModeAuto, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		assert.Equal(t, tt.wantErr, err != nil, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestMode_Resolve(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, ModePlain, ModeAuto.Resolve(&buf), "buffers are not terminals")
	assert.Equal(t, ModeJSON, ModeJSON.Resolve(&buf))
	assert.Equal(t, ModeColor, ModeColor.Resolve(&buf))

	t.Setenv("NO_COLOR", "1")
	assert.Equal(t, ModePlain, ModeAuto.Resolve(os.Stdout))
}

func TestTheme_PaintPlain(t *testing.T) {
	theme := NewTheme(&bytes.Buffer{}, false)
	item := sampleItem()
	assert.Equal(t, item.Word, theme.Paint(item), "plain output is the word itself, tabs included")
}

func TestTheme_PaintColor(t *testing.T) {
	theme := NewTheme(&bytes.Buffer{}, true)
	item := sampleItem()
	out := theme.Paint(item)

	assert.Contains(t, out, "\x1b[")
	assert.Contains(t, out, "|\t", "unstyled text keeps its tabs")
	assert.Equal(t, item.Word, stripANSI(out))
}

func TestTheme_PaintClampsSpans(t *testing.T) {
	theme := NewTheme(&bytes.Buffer{}, true)
	item := source.Item{
		Word: "a.go|1 col 1|x",
		Highlights: []source.Highlight{
			{HLGroup: "Directory", Col: 1, Width: 4},
			{HLGroup: "LineNr", Col: 3, Width: 5},
			{HLGroup: "Special", Col: 14, Width: 50},
			{HLGroup: "Special", Col: 20, Width: 2},
			{HLGroup: "NoSuchGroup", Col: 6, Width: 0},
		},
	}
	assert.Equal(t, item.Word, stripANSI(theme.Paint(item)))

	_, ok := theme.Style("NoSuchGroup")
	assert.False(t, ok)
	_, ok = theme.Style("Directory")
	assert.True(t, ok)
}

func TestTerminalWriter_SplitsStreams(t *testing.T) {
	var out, diag bytes.Buffer
	w := NewWriter(&out, &diag, ModePlain)

	require.NoError(t, w.Item(sampleItem()))
	require.NoError(t, w.Notice(source.Notice{Message: "[locate]: Retrieved references"}))
	require.NoError(t, w.Summary(source.Summary{Method: lsp.MethodReferences, Items: 1, Servers: 2, Failed: 1}))

	assert.Equal(t, sampleItem().Word+"\n", out.String())
	assert.Contains(t, diag.String(), "[locate]: Retrieved references")
	assert.Contains(t, diag.String(), "1 items from 2 servers (1 failed)")
}

func TestJSONWriter(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, nil, ModeJSON)

	require.NoError(t, w.Item(sampleItem()))
	require.NoError(t, w.Notice(source.Notice{Message: "[locate]: No references found", Error: true}))
	require.NoError(t, w.Summary(source.Summary{Method: lsp.MethodReferences, Cancelled: true}))

	lines := decodeLines(t, &out)
	require.Len(t, lines, 3)

	assert.Equal(t, LineItem, lines[0].Type)
	require.NotNil(t, lines[0].Item)
	assert.Equal(t, sampleItem().Word, lines[0].Item.Word)
	assert.Equal(t, "Directory", lines[0].Item.Highlights[0].HLGroup)

	assert.Equal(t, LineNotice, lines[1].Type)
	assert.True(t, lines[1].Notice.Error)

	assert.Equal(t, LineSummary, lines[2].Type)
	assert.Equal(t, "cancelled", lines[2].Summary.Outcome)
	assert.Equal(t, "references", lines[2].Summary.Method)
}

func TestJSONWriter_KeepsBufNrOmitted(t *testing.T) {
	var out bytes.Buffer
	w := NewJSONWriter(&out)
	require.NoError(t, w.Item(sampleItem()))
	assert.NotContains(t, out.String(), "bufNr")
	assert.Contains(t, out.String(), `"hl_group":"Directory"`)
}

// staticServer answers every request with the same locations.
type staticServer struct {
	locations []lsp.Location
}

func (s staticServer) Enable(context.Context) error { return nil }

func (s staticServer) Servers(context.Context, int, string) ([]string, error) {
	return []string{"static"}, nil
}

func (s staticServer) Supports(context.Context, string, lsp.Capability) (bool, error) {
	return true, nil
}

func (s staticServer) Request(_ context.Context, _, token, _ string, _ interface{}) (<-chan lsp.Response, func(), error) {
	raw, err := json.Marshal(s.locations)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan lsp.Response, 1)
	ch <- lsp.Response{ID: lsp.ID(token), Result: raw}
	return ch, func() {}, nil
}

func TestDrain_WritesItemsNoticesAndSummary(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() {}\n"), 0o644))

	var out bytes.Buffer
	w := NewJSONWriter(&out)
	ws := host.NewWorkspace(dir, Sink{W: w})
	buf, err := ws.OpenFile(path)
	require.NoError(t, err)
	_, err = ws.Show(buf, dir)
	require.NoError(t, err)

	server := staticServer{locations: []lsp.Location{
		{URI: lsp.PathToURI(path), Range: lsp.Range{Start: lsp.Position{Line: 2, Character: 5}, End: lsp.Position{Line: 2, Character: 9}}},
	}}
	src := source.NewSource(ws, server, server)
	require.NoError(t, src.Init(context.Background(), source.SilenceNone))

	p := source.DefaultParams()
	p.Method = lsp.MethodDefinition
	p.TextDocument = &lsp.TextDocumentIdentifier{URI: lsp.PathToURI(path)}
	p.Position = &lsp.Position{Line: 2, Character: 6}

	stream, err := src.Gather(context.Background(), p)
	require.NoError(t, err)
	summary, err := Drain(stream, w)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Items)

	var types []string
	for _, line := range decodeLines(t, &out) {
		types = append(types, line.Type)
	}
	require.Len(t, types, 4)
	assert.Equal(t, LineNotice, types[0], "the streaming notice precedes every item")
	assert.ElementsMatch(t, []string{LineItem, LineNotice}, types[1:3])
	assert.Equal(t, LineSummary, types[3])
}

func decodeLines(t *testing.T, r *bytes.Buffer) []Line {
	t.Helper()
	var lines []Line
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var line Line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line), sc.Text())
		lines = append(lines, line)
	}
	return lines
}

// stripANSI removes SGR sequences.
func stripANSI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
