// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultStartupTimeout bounds the initialize handshake of each server.
const DefaultStartupTimeout = 30 * time.Second

// ServerStatus summarizes one configured server.
type ServerStatus struct {
	Name         string       `json:"name"`
	Command      string       `json:"command"`
	State        string       `json:"state"`
	Capabilities []Capability `json:"capabilities"`
	Version      string       `json:"version,omitempty"`
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithStartupTimeout overrides DefaultStartupTimeout.
func WithStartupTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.startupTimeout = d
		}
	}
}

// Pool manages the configured language servers of one workspace.
//
// Description:
//
//	Pool is the server directory and the transport of a Locate source:
//	it knows which servers exist, which files each one handles and what
//	each one supports, and it routes correlated requests to them by name.
//
// Thread Safety:
//
//	Safe for concurrent use.
type Pool struct {
	rootPath       string
	configs        []ServerConfig
	startupTimeout time.Duration

	mu       sync.RWMutex
	servers  map[string]*Server
	order    []string
	enabled  bool
	shutdown bool
}

// NewPool creates a pool for rootPath. No server is started until Enable.
func NewPool(rootPath string, configs []ServerConfig, opts ...PoolOption) *Pool {
	p := &Pool{
		rootPath:       rootPath,
		configs:        configs,
		startupTimeout: DefaultStartupTimeout,
		servers:        make(map[string]*Server),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RootPath returns the workspace root.
func (p *Pool) RootPath() string {
	return p.rootPath
}

// Enable starts every configured server.
//
// Description:
//
//	Servers are started concurrently. A server that fails to start is
//	logged and skipped. Enable succeeds when at least one server is ready
//	and is a no-op once it has succeeded.
//
// Errors:
//
//	ErrNoServers - nothing is configured or every server failed to start
func (p *Pool) Enable(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		return ErrServerNotRunning
	}
	if p.enabled {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if len(p.configs) == 0 {
		return fmt.Errorf("%w: no servers configured", ErrNoServers)
	}

	started := make([]*Server, len(p.configs))
	failures := make([]error, len(p.configs))

	var g errgroup.Group
	for i, cfg := range p.configs {
		g.Go(func() error {
			startCtx, cancel := context.WithTimeout(ctx, p.startupTimeout)
			defer cancel()

			server := NewServer(cfg, p.rootPath)
			err := server.Start(startCtx)
			recordServerSpawn(ctx, cfg.Name, err == nil)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", cfg.Name, err)
				return nil
			}
			started[i] = server
			return nil
		})
	}
	_ = g.Wait()

	ready := 0
	for _, server := range started {
		if server != nil {
			p.add(server)
			ready++
		}
	}
	if ready == 0 {
		return fmt.Errorf("%w: %w", ErrNoServers, errors.Join(failures...))
	}

	for _, err := range failures {
		if err != nil {
			slog.Warn("LSP server unavailable", slog.String("error", err.Error()))
		}
	}

	p.mu.Lock()
	p.enabled = true
	p.mu.Unlock()
	return nil
}

// add registers a started server.
func (p *Pool) add(server *Server) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.servers[server.Name()]; !exists {
		p.order = append(p.order, server.Name())
	}
	p.servers[server.Name()] = server
}

// get returns the named server or ErrUnknownServer.
func (p *Pool) get(name string) (*Server, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	server, ok := p.servers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, name)
	}
	return server, nil
}

// Servers returns the ready servers configured for path, in config order.
// buffer is accepted for parity with editor hosts and is not used.
func (p *Pool) Servers(_ context.Context, _ int, path string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.order))
	for _, name := range p.order {
		server := p.servers[name]
		if server.State() == ServerStateReady && server.Config().Handles(path) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Supports reports whether the named server advertised capability.
func (p *Pool) Supports(_ context.Context, name string, capability Capability) (bool, error) {
	server, err := p.get(name)
	if err != nil {
		return false, err
	}
	caps := server.Capabilities()
	return caps.Has(capability), nil
}

// Request sends a request to the named server, correlated by token.
//
// Description:
//
//	The reply channel receives exactly one response. The caller must call
//	the returned release function when it stops waiting so the waiter is
//	deregistered even if the reply never arrives.
func (p *Pool) Request(ctx context.Context, name, token, method string, params interface{}) (<-chan Response, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	server, err := p.get(name)
	if err != nil {
		return nil, nil, err
	}
	return server.Begin(token, method, params)
}

// OpenDocument sends textDocument/didOpen with unsaved text to every ready
// server configured for path.
func (p *Pool) OpenDocument(ctx context.Context, path, text string) error {
	names, err := p.Servers(ctx, 0, path)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range names {
		server, err := p.get(name)
		if err != nil {
			continue
		}
		params := DidOpenTextDocumentParams{
			TextDocument: TextDocumentItem{
				URI:        PathToURI(path),
				LanguageID: server.Config().LanguageID,
				Version:    1,
				Text:       text,
			},
		}
		if err := server.Notify("textDocument/didOpen", params); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Describe returns the status of every configured server in config order.
func (p *Pool) Describe() []ServerStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]ServerStatus, 0, len(p.configs))
	for _, cfg := range p.configs {
		status := ServerStatus{Name: cfg.Name, Command: cfg.Command, State: ServerStateStopped.String()}
		if server, ok := p.servers[cfg.Name]; ok {
			status.State = server.State().String()
			caps := server.Capabilities()
			for _, m := range Methods {
				if caps.Has(m.Capability()) {
					status.Capabilities = append(status.Capabilities, m.Capability())
				}
			}
			if info := server.Info(); info != nil {
				status.Version = info.Version
			}
		}
		out = append(out, status)
	}
	return out
}

// Shutdown stops every server. Safe to call more than once.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.shutdown = true
	servers := make([]*Server, 0, len(p.servers))
	for _, server := range p.servers {
		servers = append(servers, server)
	}
	p.mu.Unlock()

	var g errgroup.Group
	for _, server := range servers {
		g.Go(func() error {
			return server.Shutdown(ctx)
		})
	}
	return g.Wait()
}
