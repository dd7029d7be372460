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
	"fmt"
	"log/slog"
	"sync"
)

// DefaultName is the source name used in notices and highlight names.
const DefaultName = "locate"

// Option configures a Source.
type Option func(*Source)

// WithName sets the source name.
func WithName(name string) Option {
	return func(s *Source) {
		if name != "" {
			s.name = name
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDefaultHighlights replaces DefaultHighlights for this source.
func WithDefaultHighlights(groups HighlightGroups) Option {
	return func(s *Source) {
		s.defaults = groups.Merge(DefaultHighlights)
	}
}

// readyState is present once Init has succeeded.
type readyState struct {
	names highlightNames
}

// Source answers location-list queries by asking every capable language
// server and streaming the merged results.
//
// Description:
//
//	A Source starts uninitialized. Init enables the language servers; only
//	then does Gather accept queries. Each Gather call is an independent
//	run with its own caches.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent runs share nothing but the
//	collaborators.
type Source struct {
	name      string
	host      EditorHost
	directory ServerDirectory
	transport Transport
	defaults  HighlightGroups
	logger    *slog.Logger

	mu    sync.RWMutex
	ready *readyState
}

// NewSource creates an uninitialized source.
func NewSource(host EditorHost, directory ServerDirectory, transport Transport, opts ...Option) *Source {
	s := &Source{
		name:      DefaultName,
		host:      host,
		directory: directory,
		transport: transport,
		defaults:  DefaultHighlights,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "source"), slog.String("source", s.name))
	return s
}

// Name returns the source name.
func (s *Source) Name() string {
	return s.name
}

// Ready returns true once Init has succeeded.
func (s *Source) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready != nil
}

// Init enables the language servers.
//
// Description:
//
//	On failure the source stays uninitialized, so every Gather fails with
//	ErrNotInitialized, and a setup notice is shown unless silence is
//	SilenceAll. Init is a no-op on a ready source.
//
// Errors:
//
//	ErrSetup - the server directory could not be enabled
func (s *Source) Init(ctx context.Context, silence Silence) error {
	if s.Ready() {
		return nil
	}

	if err := s.directory.Enable(ctx); err != nil {
		n := &notifier{host: s.host, name: s.name, silence: silence, logger: s.logger}
		n.error(ctx, "Can not enable language servers. Are they installed?")
		s.logger.Error("enable language servers", slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", ErrSetup, err)
	}

	s.mu.Lock()
	s.ready = &readyState{names: newHighlightNames(s.name)}
	s.mu.Unlock()

	s.logger.Info("source ready")
	return nil
}

// Gather starts a run for p and returns its stream.
//
// Description:
//
//	p is validated before anything else happens. The run executes in its
//	own goroutine and stops forwarding batches when ctx is cancelled;
//	cancellation is not an error. The stream's batch channel is closed once
//	the run is finalized.
//
// Errors:
//
//	*ParamError (ErrInvalidParameter) - p is malformed
//	ErrNotInitialized - Init has not succeeded
func (s *Source) Gather(ctx context.Context, p Params) (*Stream, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	r, err := s.prepare(p)
	if err != nil {
		return nil, err
	}
	go r.execute(ctx)
	return r.stream, nil
}

// prepare builds the run for validated params.
func (s *Source) prepare(p Params) (*run, error) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	if ready == nil {
		return nil, ErrNotInitialized
	}

	logger := s.logger.With(slog.String("method", string(p.Method)))
	return &run{
		source: s,
		params: p,
		groups: p.Highlights.Merge(s.defaults),
		names:  ready.names,
		lines:  newLineResolver(s.host, logger),
		notifier: &notifier{
			host:    s.host,
			name:    s.name,
			silence: p.Silent,
			logger:  logger,
		},
		stream: &Stream{
			batches: make(chan []Item),
			done:    make(chan struct{}),
		},
		logger: logger,
	}, nil
}
