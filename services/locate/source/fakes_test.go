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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/locate/services/locate/lsp"
)

// =============================================================================
// FAKE EDITOR HOST
// =============================================================================

type fakeHost struct {
	mu sync.Mutex

	windows  map[string]int
	contexts map[int]WindowContext
	buffers  map[string]int
	bufLines map[int][]string
	files    map[string]string

	bufLineCalls  int
	readFileCalls int
	notices       []Notice
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		windows:  make(map[string]int),
		contexts: make(map[int]WindowContext),
		buffers:  make(map[string]int),
		bufLines: make(map[int][]string),
		files:    make(map[string]string),
	}
}

// show opens path in buffer buf, displayed in window win with cwd.
func (h *fakeHost) show(win, buf int, path, cwd string, lines ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.windows[path] = win
	h.contexts[win] = WindowContext{Buffer: buf, Cwd: cwd}
	h.buffers[path] = buf
	h.bufLines[buf] = lines
}

func (h *fakeHost) FindWindow(_ context.Context, path string) (int, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	win, ok := h.windows[path]
	return win, ok, nil
}

func (h *fakeHost) WindowContext(_ context.Context, win int) (WindowContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	wc, ok := h.contexts[win]
	if !ok {
		return WindowContext{}, fmt.Errorf("no window %d", win)
	}
	return wc, nil
}

func (h *fakeHost) BufferNumber(_ context.Context, path string) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if buf, ok := h.buffers[path]; ok {
		return buf, nil
	}
	return -1, nil
}

func (h *fakeHost) BufferLine(_ context.Context, buf, lnum int) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bufLineCalls++
	lines := h.bufLines[buf]
	if lnum < 1 || lnum > len(lines) {
		return "", false, nil
	}
	return lines[lnum-1], true, nil
}

func (h *fakeHost) ReadFile(_ context.Context, path string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readFileCalls++
	text, ok := h.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return []byte(text), nil
}

func (h *fakeHost) Notify(_ context.Context, notice Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, notice)
}

func (h *fakeHost) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.notices))
	for _, n := range h.notices {
		out = append(out, n.Message)
	}
	return out
}

func (h *fakeHost) errorMessages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, n := range h.notices {
		if n.Error {
			out = append(out, n.Message)
		}
	}
	return out
}

func (h *fakeHost) calls() (bufLines, files int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bufLineCalls, h.readFileCalls
}

// =============================================================================
// FAKE SERVERS
// =============================================================================

// reply describes how a fake server answers.
type reply struct {
	delay  time.Duration
	never  bool
	result interface{}
	err    *lsp.ResponseError
}

type fakeServers struct {
	mu sync.Mutex

	enableErr error
	names     []string
	caps      map[string]map[lsp.Capability]bool
	replies   map[string]reply

	// supportsErr fails Supports for the named servers.
	supportsErr map[string]error

	requests map[string]int
	params   map[string]json.RawMessage
	methods  map[string]string
	pending  map[string]bool
}

func newFakeServers() *fakeServers {
	return &fakeServers{
		caps:        make(map[string]map[lsp.Capability]bool),
		supportsErr: make(map[string]error),
		replies:     make(map[string]reply),
		requests:    make(map[string]int),
		params:      make(map[string]json.RawMessage),
		methods:     make(map[string]string),
		pending:     make(map[string]bool),
	}
}

func (f *fakeServers) add(name string, r reply, caps ...lsp.Capability) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	f.caps[name] = make(map[lsp.Capability]bool)
	for _, c := range caps {
		f.caps[name][c] = true
	}
	f.replies[name] = r
}

func (f *fakeServers) Enable(context.Context) error {
	return f.enableErr
}

func (f *fakeServers) Servers(context.Context, int, string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...), nil
}

func (f *fakeServers) Supports(_ context.Context, server string, c lsp.Capability) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.supportsErr[server]; err != nil {
		return false, err
	}
	caps, ok := f.caps[server]
	if !ok {
		return false, lsp.ErrUnknownServer
	}
	return caps[c], nil
}

func (f *fakeServers) Request(ctx context.Context, server, token, method string, params interface{}) (<-chan lsp.Response, func(), error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, nil, err
	}

	f.mu.Lock()
	r := f.replies[server]
	f.requests[server]++
	f.params[server] = raw
	f.methods[server] = method
	f.pending[token] = true
	f.mu.Unlock()

	ch := make(chan lsp.Response, 1)
	release := func() {
		f.mu.Lock()
		delete(f.pending, token)
		f.mu.Unlock()
	}
	if r.never {
		return ch, release, nil
	}

	resp := lsp.Response{JSONRPC: "2.0", ID: lsp.ID(token), Error: r.err}
	if r.err == nil {
		resp.Result, _ = json.Marshal(r.result)
	}
	go func() {
		select {
		case <-time.After(r.delay):
			ch <- resp
		case <-ctx.Done():
		}
	}()
	return ch, release, nil
}

func (f *fakeServers) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.requests {
		n += c
	}
	return n
}

func (f *fakeServers) pendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// =============================================================================
// HELPERS
// =============================================================================

func loc(path string, sl, sc, el, ec int) lsp.Location {
	return lsp.Location{
		URI: lsp.PathToURI(path),
		Range: lsp.Range{
			Start: lsp.Position{Line: sl, Character: sc},
			End:   lsp.Position{Line: el, Character: ec},
		},
	}
}

func query(method lsp.Method, path string, line, character int) Params {
	p := DefaultParams()
	p.Method = method
	p.TextDocument = &lsp.TextDocumentIdentifier{URI: lsp.PathToURI(path)}
	p.Position = &lsp.Position{Line: line, Character: character}
	return p
}

func hasMessage(messages []string, substr string) bool {
	for _, m := range messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}
