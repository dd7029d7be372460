// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package host provides a headless editor for running queries outside an
// editor: buffers, windows and a notice sink.
package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/locate/services/locate/source"
	"github.com/AleutianAI/locate/services/locate/text"
)

// FirstWindowID is the id of the first window, as in Vim.
const FirstWindowID = 1000

// Sentinel errors for workspace operations.
var (
	// ErrNoBuffer indicates an unknown buffer number.
	ErrNoBuffer = errors.New("no such buffer")

	// ErrNoWindow indicates an unknown window id.
	ErrNoWindow = errors.New("no such window")
)

// NoticeSink receives the notices of a workspace.
type NoticeSink interface {
	Notice(ctx context.Context, notice source.Notice)
}

// NoticeFunc adapts a function to NoticeSink.
type NoticeFunc func(ctx context.Context, notice source.Notice)

// Notice implements NoticeSink.
func (f NoticeFunc) Notice(ctx context.Context, notice source.Notice) {
	f(ctx, notice)
}

type buffer struct {
	number int
	path   string
	lines  []string
}

type window struct {
	id     int
	buffer int
	cwd    string
}

// Workspace is an in-memory editor implementing source.EditorHost.
//
// Description:
//
//	Buffers hold the text of open files, either read from disk or supplied
//	as unsaved text. Windows show buffers and carry a working directory.
//	Files without a buffer are read from disk on demand.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Workspace struct {
	mu      sync.RWMutex
	cwd     string
	buffers map[int]*buffer
	byPath  map[string]int
	windows map[int]*window
	nextBuf int
	nextWin int
	sink    NoticeSink
}

var _ source.EditorHost = (*Workspace)(nil)

// NewWorkspace creates an empty workspace. Relative paths resolve against
// cwd. sink may be nil to drop notices.
func NewWorkspace(cwd string, sink NoticeSink) *Workspace {
	return &Workspace{
		cwd:     cwd,
		buffers: make(map[int]*buffer),
		byPath:  make(map[string]int),
		windows: make(map[int]*window),
		nextBuf: 1,
		nextWin: FirstWindowID,
		sink:    sink,
	}
}

// Cwd returns the workspace directory.
func (w *Workspace) Cwd() string {
	return w.cwd
}

// Abs resolves path against the workspace directory.
func (w *Workspace) Abs(path string) string {
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.cwd, path)
	}
	return filepath.Clean(path)
}

// OpenFile loads path from disk into a buffer and returns its number.
// A file that is already open keeps its buffer.
func (w *Workspace) OpenFile(path string) (int, error) {
	path = w.Abs(path)
	w.mu.RLock()
	buf, ok := w.byPath[path]
	w.mu.RUnlock()
	if ok {
		return buf, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	return w.OpenText(path, string(data)), nil
}

// OpenText loads unsaved text for path into a buffer, replacing the text
// of an existing buffer for path.
func (w *Workspace) OpenText(path, content string) int {
	path = w.Abs(path)
	lines := text.SplitLines(content)

	w.mu.Lock()
	defer w.mu.Unlock()
	if buf, ok := w.byPath[path]; ok {
		w.buffers[buf].lines = lines
		return buf
	}
	buf := w.nextBuf
	w.nextBuf++
	w.buffers[buf] = &buffer{number: buf, path: path, lines: lines}
	w.byPath[path] = buf
	return buf
}

// Show opens a window on buf with working directory cwd. An empty cwd
// uses the workspace directory.
func (w *Workspace) Show(buf int, cwd string) (int, error) {
	if cwd == "" {
		cwd = w.cwd
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.buffers[buf]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrNoBuffer, buf)
	}
	win := w.nextWin
	w.nextWin++
	w.windows[win] = &window{id: win, buffer: buf, cwd: cwd}
	return win, nil
}

// FindWindow returns the lowest window showing path.
func (w *Workspace) FindWindow(_ context.Context, path string) (int, bool, error) {
	path = w.Abs(path)
	w.mu.RLock()
	defer w.mu.RUnlock()
	buf, ok := w.byPath[path]
	if !ok {
		return 0, false, nil
	}
	found := 0
	for id, win := range w.windows {
		if win.buffer == buf && (found == 0 || id < found) {
			found = id
		}
	}
	return found, found != 0, nil
}

// WindowContext returns the buffer and working directory of win.
func (w *Workspace) WindowContext(_ context.Context, win int) (source.WindowContext, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	wn, ok := w.windows[win]
	if !ok {
		return source.WindowContext{}, fmt.Errorf("%w: %d", ErrNoWindow, win)
	}
	return source.WindowContext{Buffer: wn.buffer, Cwd: wn.cwd}, nil
}

// BufferNumber returns the buffer of path, or -1.
func (w *Workspace) BufferNumber(_ context.Context, path string) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if buf, ok := w.byPath[w.Abs(path)]; ok {
		return buf, nil
	}
	return -1, nil
}

// BufferLine returns the 1-based line lnum of buf.
func (w *Workspace) BufferLine(_ context.Context, buf, lnum int) (string, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	b, ok := w.buffers[buf]
	if !ok {
		return "", false, fmt.Errorf("%w: %d", ErrNoBuffer, buf)
	}
	if lnum < 1 || lnum > len(b.lines) {
		return "", false, nil
	}
	return b.lines[lnum-1], true, nil
}

// ReadFile reads path from disk.
func (w *Workspace) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(w.Abs(path))
}

// Notify forwards notice to the sink.
func (w *Workspace) Notify(ctx context.Context, notice source.Notice) {
	if w.sink != nil {
		w.sink.Notice(ctx, notice)
	}
}
