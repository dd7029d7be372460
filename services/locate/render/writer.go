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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/AleutianAI/locate/services/locate/source"
)

// =============================================================================
// Line Envelope
// =============================================================================

// Line types.
const (
	LineItem    = "item"
	LineNotice  = "notice"
	LineSummary = "summary"
	LineError   = "error"
)

// Line is one JSON line of a streamed run. Exactly one payload field is
// set, matching Type.
type Line struct {
	Type    string        `json:"type"`
	Item    *source.Item  `json:"item,omitempty"`
	Notice  *NoticeLine   `json:"notice,omitempty"`
	Summary *SummaryLine  `json:"summary,omitempty"`
	Error   *ErrorPayload `json:"error,omitempty"`
}

// NoticeLine is the JSON form of a source.Notice.
type NoticeLine struct {
	Message string `json:"message"`
	Error   bool   `json:"error"`
}

// SummaryLine is the JSON form of a source.Summary.
type SummaryLine struct {
	Method     string  `json:"method"`
	Outcome    string  `json:"outcome"`
	Items      int     `json:"items"`
	Servers    int     `json:"servers"`
	Failed     int     `json:"failed"`
	Cancelled  bool    `json:"cancelled"`
	DurationMS float64 `json:"duration_ms"`
}

// ErrorPayload reports a request that failed before a run started.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// NewSummaryLine converts a run summary.
func NewSummaryLine(s source.Summary) *SummaryLine {
	return &SummaryLine{
		Method:     string(s.Method),
		Outcome:    s.Outcome(),
		Items:      s.Items,
		Servers:    s.Servers,
		Failed:     s.Failed,
		Cancelled:  s.Cancelled,
		DurationMS: float64(s.Duration.Microseconds()) / 1000,
	}
}

// =============================================================================
// Writer
// =============================================================================

// Writer renders the events of a run.
//
// Thread Safety: implementations are safe for concurrent use. Notices
// arrive from dispatch goroutines while items are being written.
type Writer interface {
	Item(item source.Item) error
	Notice(notice source.Notice) error
	Summary(summary source.Summary) error
}

// NewWriter returns the writer for mode. Items go to out; in terminal
// modes notices and the summary go to diag so that out stays parseable.
// A nil diag means os.Stderr.
func NewWriter(out, diag io.Writer, mode Mode) Writer {
	if diag == nil {
		diag = os.Stderr
	}
	switch mode.Resolve(out) {
	case ModeJSON:
		return NewJSONWriter(out)
	case ModeColor:
		return &terminalWriter{out: out, diag: diag, theme: NewTheme(out, true)}
	default:
		return &terminalWriter{out: out, diag: diag, theme: NewTheme(out, false)}
	}
}

// terminalWriter prints one painted item per line.
type terminalWriter struct {
	mu    sync.Mutex
	out   io.Writer
	diag  io.Writer
	theme *Theme
}

func (w *terminalWriter) Item(item source.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, w.theme.Paint(item))
	return err
}

func (w *terminalWriter) Notice(n source.Notice) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.diag, w.theme.Notice(n))
	return err
}

func (w *terminalWriter) Summary(s source.Summary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	text := fmt.Sprintf("%d items from %d servers", s.Items, s.Servers)
	if s.Failed > 0 {
		text += fmt.Sprintf(" (%d failed)", s.Failed)
	}
	if s.Cancelled {
		text += " (cancelled)"
	}
	text += fmt.Sprintf(" in %s", s.Duration.Round(time.Microsecond))
	_, err := fmt.Fprintln(w.diag, w.theme.Muted(text))
	return err
}

// JSONWriter encodes every event as a Line.
type JSONWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
	out io.Writer
}

// NewJSONWriter returns a JSON-lines writer. HTML escaping is off so
// source text survives unchanged.
func NewJSONWriter(out io.Writer) *JSONWriter {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return &JSONWriter{enc: enc, out: out}
}

// Write encodes one line and flushes out if it supports http.Flusher.
func (w *JSONWriter) Write(line Line) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(line); err != nil {
		return err
	}
	if f, ok := w.out.(interface{ Flush() }); ok {
		f.Flush()
	}
	return nil
}

func (w *JSONWriter) Item(item source.Item) error {
	return w.Write(Line{Type: LineItem, Item: &item})
}

func (w *JSONWriter) Notice(n source.Notice) error {
	return w.Write(Line{Type: LineNotice, Notice: &NoticeLine{Message: n.Message, Error: n.Error}})
}

func (w *JSONWriter) Summary(s source.Summary) error {
	return w.Write(Line{Type: LineSummary, Summary: NewSummaryLine(s)})
}

// =============================================================================
// Notice Sink
// =============================================================================

// Sink forwards workspace notices to a Writer. It satisfies the host
// package's NoticeSink.
type Sink struct {
	W Writer
}

// Notice writes n, dropping write errors.
func (s Sink) Notice(_ context.Context, n source.Notice) {
	_ = s.W.Notice(n)
}

// Drain writes every batch of stream to w and then its summary.
//
// Description:
//
//	Drain consumes the stream until its batch channel closes. A write
//	error stops writing but the stream is still drained so the run can
//	finalize. The summary is always written when no write failed.
//
// Outputs:
//
//	source.Summary - The run summary.
//	error - The first write error.
func Drain(stream *source.Stream, w Writer) (source.Summary, error) {
	var werr error
	for batch := range stream.Batches() {
		if werr != nil {
			continue
		}
		for _, item := range batch {
			if err := w.Item(item); err != nil {
				werr = err
				break
			}
		}
	}
	summary := stream.Summary()
	if werr != nil {
		return summary, werr
	}
	return summary, w.Summary(summary)
}
