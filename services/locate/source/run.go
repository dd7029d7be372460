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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/locate/services/locate/lsp"
)

// =============================================================================
// RUN STATE
// =============================================================================

// runState is the lifecycle state of one run.
type runState int

const (
	stateIdle runState = iota
	stateResolving
	stateDispatching
	stateStreaming
	stateDraining
	stateCancelled
	stateFinalized
)

// String returns a human-readable state name.
func (s runState) String() string {
	names := []string{"idle", "resolving", "dispatching", "streaming", "draining", "cancelled", "finalized"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// SUMMARY
// =============================================================================

// Summary describes a finished run.
type Summary struct {
	Method lsp.Method `json:"method"`

	// Items is the number of items delivered to the consumer.
	Items int `json:"items"`

	// Servers is the number of capable servers queried.
	Servers int `json:"servers"`

	// Failed is the number of servers that errored or timed out.
	Failed int `json:"failed"`

	// Cancelled is true if the consumer cancelled the run.
	Cancelled bool `json:"cancelled"`

	// Err is ErrBufferNotFound or ErrNotSupported for runs that ended
	// before dispatching, or nil.
	Err error `json:"-"`

	// Duration is the wall time of the run. Wire formats carry it in
	// their own unit (render.SummaryLine.DurationMS).
	Duration time.Duration `json:"-"`
}

// Outcome is a short label for metrics and logs.
func (s Summary) Outcome() string {
	switch {
	case errors.Is(s.Err, ErrBufferNotFound):
		return "buffer_not_found"
	case errors.Is(s.Err, ErrNotSupported):
		return "not_supported"
	case s.Err != nil:
		return "error"
	case s.Cancelled:
		return "cancelled"
	case s.Items == 0:
		return "empty"
	}
	return "ok"
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is the output of one run.
//
// Description:
//
//	Batches delivers item batches in arrival order and is closed once the
//	run is finalized. A consumer that stops reading early must cancel the
//	context passed to Gather so the run can finish.
type Stream struct {
	batches chan []Item
	done    chan struct{}
	summary Summary
}

// Batches returns the item batches.
func (s *Stream) Batches() <-chan []Item {
	return s.batches
}

// Done is closed once the run is finalized.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Summary waits for the run to finish and returns its summary.
func (s *Stream) Summary() Summary {
	<-s.done
	return s.summary
}

// Collect drains the stream and returns every item.
func (s *Stream) Collect() ([]Item, Summary) {
	var items []Item
	for batch := range s.batches {
		items = append(items, batch...)
	}
	return items, s.Summary()
}

// =============================================================================
// RUN
// =============================================================================

// run is one execution of a query.
//
// Thread Safety:
//
//	A run is driven by a single goroutine. Its caches and notifier are
//	shared with the dispatcher goroutines.
type run struct {
	source   *Source
	params   Params
	groups   HighlightGroups
	names    highlightNames
	lines    *lineResolver
	notifier *notifier
	stream   *Stream
	logger   *slog.Logger

	state     runState
	streaming bool
	started   time.Time
}

func (r *run) setState(state runState) {
	r.logger.Debug("run state", slog.String("from", r.state.String()), slog.String("to", state.String()))
	r.state = state
}

// execute drives the run to completion and closes the stream.
func (r *run) execute(ctx context.Context) {
	ctx, span := startGatherSpan(ctx, r.source.name, r.params)
	r.started = time.Now()
	r.stream.summary.Method = r.params.Method

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("run panicked", slog.Any("panic", p))
			r.stream.summary.Err = fmt.Errorf("run panicked: %v", p)
		}
		r.finalize(ctx)
		endSpan(span, r.stream.summary.Err)
		close(r.stream.batches)
		close(r.stream.done)
	}()

	r.stream.summary.Err = r.gather(ctx)
}

// gather resolves the target, dispatches and forwards batches.
func (r *run) gather(ctx context.Context) error {
	method := r.params.Method
	host := r.source.host

	r.setState(stateResolving)
	path, err := lsp.URIToPath(r.params.TextDocument.URI)
	if err != nil {
		r.notifier.error(ctx, "Buffer not found: %s", r.params.TextDocument.URI)
		return fmt.Errorf("%w: %v", ErrBufferNotFound, err)
	}
	win, ok, err := host.FindWindow(ctx, path)
	if err != nil || !ok {
		r.notifier.error(ctx, "Buffer not found: %s", path)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrBufferNotFound, path, err)
		}
		return fmt.Errorf("%w: %s", ErrBufferNotFound, path)
	}
	wc, err := host.WindowContext(ctx, win)
	if err != nil {
		r.notifier.error(ctx, "Buffer not found: %s", path)
		return fmt.Errorf("%w: window %d: %v", ErrBufferNotFound, win, err)
	}

	r.setState(stateDispatching)
	servers, listed, err := capableServers(ctx, r.source.directory, wc.Buffer, path, method, r.logger)
	if err != nil {
		r.logger.Warn("server lookup failed", slog.String("error", err.Error()))
	}
	if len(servers) == 0 {
		// Both cases read the same to the user.
		if listed == 0 {
			r.logger.Debug("no servers for buffer", slog.Int("buffer", wc.Buffer), slog.String("path", path))
		} else {
			r.logger.Debug("no capable server", slog.Int("servers", listed))
		}
		r.notifier.error(ctx, "Retrieving %s not supported", method)
		return ErrNotSupported
	}
	r.stream.summary.Servers = len(servers)

	d := &dispatcher{
		transport: r.source.transport,
		builder: &itemBuilder{
			host:   host,
			lines:  r.lines,
			names:  r.names,
			groups: r.groups,
			cwd:    wc.Cwd,
			logger: r.logger,
		},
		notifier: r.notifier,
		method:   method,
		params:   method.Params(*r.params.TextDocument, *r.params.Position),
		timeout:  r.params.Timeout,
		logger:   r.logger,
	}

	r.setState(stateStreaming)
	r.streaming = true
	r.notifier.info(ctx, "Retrieving %s...", method)

	cancelled := false
	for batch := range d.Dispatch(ctx, servers) {
		if batch.err != nil && !cancelled && ctx.Err() == nil {
			r.stream.summary.Failed++
		}
		if cancelled || len(batch.items) == 0 {
			continue
		}
		if ctx.Err() != nil {
			cancelled = true
			r.setState(stateCancelled)
			continue
		}
		select {
		case r.stream.batches <- batch.items:
			r.stream.summary.Items += len(batch.items)
		case <-ctx.Done():
			cancelled = true
			r.setState(stateCancelled)
		}
	}
	if !cancelled && ctx.Err() != nil {
		cancelled = true
		r.setState(stateCancelled)
	}
	if !cancelled {
		r.setState(stateDraining)
	}
	r.stream.summary.Cancelled = cancelled
	return nil
}

// finalize clears the caches and reports the result. Runs exactly once.
func (r *run) finalize(ctx context.Context) {
	r.lines.clear()
	r.setState(stateFinalized)

	summary := &r.stream.summary
	summary.Duration = time.Since(r.started)
	recordRun(ctx, string(r.params.Method), summary.Outcome())

	if r.streaming {
		if summary.Items > 0 {
			r.notifier.info(ctx, "Retrieved %s", r.params.Method)
		} else {
			r.notifier.info(ctx, "No %s found", r.params.Method)
		}
	}

	r.logger.Info("run finished",
		slog.String("outcome", summary.Outcome()),
		slog.Int("items", summary.Items),
		slog.Int("servers", summary.Servers),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", summary.Duration),
	)
}
