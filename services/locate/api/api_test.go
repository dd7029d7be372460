// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/locate/services/locate/config"
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/render"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePool answers every request with fixed locations after delay.
type fakePool struct {
	root      string
	locations []lsp.Location
	delay     time.Duration
	enableErr error

	mu     sync.Mutex
	opened map[string]string

	// aborted is closed the first time a request ends without replying.
	aborted     chan struct{}
	abortedOnce sync.Once
}

func newFakePool(root string, locs ...lsp.Location) *fakePool {
	return &fakePool{root: root, locations: locs, opened: make(map[string]string), aborted: make(chan struct{})}
}

func (p *fakePool) Enable(context.Context) error { return p.enableErr }

func (p *fakePool) Servers(context.Context, int, string) ([]string, error) {
	return []string{"fake"}, nil
}

func (p *fakePool) Supports(context.Context, string, lsp.Capability) (bool, error) {
	return true, nil
}

func (p *fakePool) Request(ctx context.Context, _, token, _ string, _ interface{}) (<-chan lsp.Response, func(), error) {
	raw, err := json.Marshal(p.locations)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan lsp.Response, 1)
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(p.delay):
			ch <- lsp.Response{ID: lsp.ID(token), Result: raw}
		case <-ctx.Done():
			p.abortedOnce.Do(func() { close(p.aborted) })
		case <-done:
			p.abortedOnce.Do(func() { close(p.aborted) })
		}
	}()
	var once sync.Once
	return ch, func() { once.Do(func() { close(done) }) }, nil
}

func (p *fakePool) OpenDocument(_ context.Context, path, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opened[path] = text
	return nil
}

func (p *fakePool) Describe() []lsp.ServerStatus {
	return []lsp.ServerStatus{{Name: "fake", Command: "fake", State: "ready", Capabilities: []lsp.Capability{lsp.CapabilityReferences}}}
}

func (p *fakePool) RootPath() string { return p.root }

func (p *fakePool) openedText(path string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	text, ok := p.opened[path]
	return text, ok
}

// project writes main.go and returns its path and a pool pointing at the
// identifier on line 3.
func project(t *testing.T) (string, *fakePool) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(path, []byte("package main\n\nfunc main() { run() }\n"), 0o644))
	pool := newFakePool(dir, lsp.Location{
		URI:   lsp.PathToURI(path),
		Range: lsp.Range{Start: lsp.Position{Line: 2, Character: 14}, End: lsp.Position{Line: 2, Character: 17}},
	})
	return path, pool
}

func gatherBody(path string, extra map[string]interface{}) *bytes.Reader {
	body := map[string]interface{}{
		"method":       "references",
		"textDocument": map[string]string{"uri": lsp.PathToURI(path)},
		"position":     map[string]int{"line": 2, "character": 15},
	}
	for k, v := range extra {
		body[k] = v
	}
	data, _ := json.Marshal(body)
	return bytes.NewReader(data)
}

func readLines(t *testing.T, r io.Reader) []render.Line {
	t.Helper()
	var lines []render.Line
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var line render.Line
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line), sc.Text())
		lines = append(lines, line)
	}
	return lines
}

func postGather(t *testing.T, s *Server, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/locate/gather", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s := NewServer(config.Default(), newFakePool("/proj"))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/locate/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "locate", resp.Name)
	assert.Equal(t, "/proj", resp.Root)
	require.Len(t, resp.Servers, 1)
	assert.Equal(t, "ready", resp.Servers[0].State)
}

func TestHandleGather_StreamsLines(t *testing.T) {
	path, pool := project(t)
	s := NewServer(config.Default(), pool)

	w := postGather(t, s, gatherBody(path, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	lines := readLines(t, w.Body)
	require.Len(t, lines, 4)
	assert.Equal(t, render.LineNotice, lines[0].Type)
	assert.Equal(t, "[locate]: Retrieving references...", lines[0].Notice.Message)

	var item *render.Line
	for i := range lines[1:3] {
		if lines[1+i].Type == render.LineItem {
			item = &lines[1+i]
		}
	}
	require.NotNil(t, item, "an item line is streamed")
	assert.Equal(t, "main.go|3 col 15|func main() { run() }", item.Item.Word)
	assert.Equal(t, 1, item.Item.Action.BufNr)

	last := lines[3]
	require.Equal(t, render.LineSummary, last.Type)
	assert.Equal(t, "ok", last.Summary.Outcome)
	assert.Equal(t, 1, last.Summary.Items)
}

func TestHandleGather_UnsavedText(t *testing.T) {
	path, pool := project(t)
	s := NewServer(config.Default(), pool)

	text := "package main\n\nfunc main() { run() } // edited\n"
	w := postGather(t, s, gatherBody(path, map[string]interface{}{"text": text}))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Contains(t, w.Body.String(), "// edited")
	opened, ok := pool.openedText(path)
	assert.True(t, ok, "unsaved text is sent with didOpen")
	assert.Equal(t, text, opened)
}

func TestHandleGather_MissingFileReportsBufferNotFound(t *testing.T) {
	_, pool := project(t)
	s := NewServer(config.Default(), pool)

	w := postGather(t, s, gatherBody(filepath.Join(pool.root, "gone.go"), nil))
	require.Equal(t, http.StatusOK, w.Code)

	lines := readLines(t, w.Body)
	require.Len(t, lines, 2)
	assert.True(t, lines[0].Notice.Error)
	assert.Contains(t, lines[0].Notice.Message, "Buffer not found")
	assert.Equal(t, "buffer_not_found", lines[1].Summary.Outcome)
}

func TestHandleGather_Errors(t *testing.T) {
	path, pool := project(t)

	tests := []struct {
		name       string
		body       io.Reader
		enableErr  error
		wantStatus int
		wantCode   string
	}{
		{"malformed body", strings.NewReader("{"), nil, http.StatusBadRequest, CodeInvalidRequest},
		{"unknown method", gatherBody(path, map[string]interface{}{"method": "hover"}), nil, http.StatusBadRequest, CodeInvalidParameter},
		{"bad silence", gatherBody(path, map[string]interface{}{"silent": "loud"}), nil, http.StatusBadRequest, CodeInvalidParameter},
		{"servers unavailable", gatherBody(path, nil), lsp.ErrNoServers, http.StatusServiceUnavailable, CodeNotInitialized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool.enableErr = tt.enableErr
			s := NewServer(config.Default(), pool)

			w := postGather(t, s, tt.body)
			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
	pool.enableErr = nil
}

func TestHandleGather_SetupNoticeInDetails(t *testing.T) {
	path, pool := project(t)
	pool.enableErr = errors.New("spawn failed")
	s := NewServer(config.Default(), pool)

	w := postGather(t, s, gatherBody(path, nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "[locate]: Can not enable language servers. Are they installed?", resp.Details)
}

func TestRateLimit(t *testing.T) {
	path, pool := project(t)
	cfg := config.Default()
	cfg.API.RateLimit = 0.001
	cfg.API.Burst = 1
	s := NewServer(cfg, pool)

	first := postGather(t, s, gatherBody(path, nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := postGather(t, s, gatherBody(path, nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.Equal(t, CodeRateLimited, resp.Code)

	health := httptest.NewRecorder()
	s.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/v1/locate/health", nil))
	assert.Equal(t, http.StatusOK, health.Code, "health is not rate limited")
}

func TestApplyConfig_ChangesDefaults(t *testing.T) {
	path, pool := project(t)
	s := NewServer(config.Default(), pool)

	cfg := config.Default()
	cfg.Name = "refs"
	cfg.Silent = "silent"
	s.ApplyConfig(cfg)

	w := postGather(t, s, gatherBody(path, nil))
	require.Equal(t, http.StatusOK, w.Code)
	lines := readLines(t, w.Body)
	require.Len(t, lines, 2, "info notices are silenced by the new default")
	assert.Equal(t, "source/refs/path", lines[0].Item.Highlights[0].Name)

	w = postGather(t, s, gatherBody(path, map[string]interface{}{"silent": ""}))
	lines = readLines(t, w.Body)
	assert.Equal(t, "[refs]: Retrieving references...", lines[0].Notice.Message, "request fields override defaults")
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("locate_runs_total 1\n"))
	})
	s := NewServer(config.Default(), newFakePool("/proj"), WithMetricsHandler(metrics))

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "locate_runs_total")

	bare := NewServer(config.Default(), newFakePool("/proj"))
	w = httptest.NewRecorder()
	bare.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func dialWS(t *testing.T, s *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/locate/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, stop string) []render.Line {
	t.Helper()
	var lines []render.Line
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var line render.Line
		require.NoError(t, conn.ReadJSON(&line))
		lines = append(lines, line)
		if line.Type == stop {
			return lines
		}
	}
}

func TestHandleWebSocket(t *testing.T) {
	path, pool := project(t)
	s := NewServer(config.Default(), pool)
	conn := dialWS(t, s)

	body, err := io.ReadAll(gatherBody(path, nil))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))
	lines := readUntil(t, conn, render.LineSummary)
	assert.Len(t, lines, 4)
	assert.Equal(t, "ok", lines[len(lines)-1].Summary.Outcome)

	bad, err := io.ReadAll(gatherBody(path, map[string]interface{}{"method": "hover"}))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, bad))
	lines = readUntil(t, conn, render.LineError)
	assert.Equal(t, CodeInvalidParameter, lines[len(lines)-1].Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("nope")))
	lines = readUntil(t, conn, render.LineError)
	assert.Equal(t, CodeInvalidRequest, lines[len(lines)-1].Error.Code)
}

func TestHandleWebSocket_CloseCancelsRun(t *testing.T) {
	path, pool := project(t)
	pool.delay = time.Hour
	s := NewServer(config.Default(), pool)
	conn := dialWS(t, s)

	body, err := io.ReadAll(gatherBody(path, map[string]interface{}{"timeout": 0}))
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, body))

	lines := readUntil(t, conn, render.LineNotice)
	assert.Contains(t, lines[0].Notice.Message, "Retrieving references")
	require.NoError(t, conn.Close())

	select {
	case <-pool.aborted:
	case <-time.After(5 * time.Second):
		t.Fatal("closing the websocket did not cancel the pending request")
	}
}
