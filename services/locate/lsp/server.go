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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// SERVER CONFIG
// =============================================================================

// ServerConfig describes how to launch one language server.
type ServerConfig struct {
	// Name identifies the server in notices and requests (e.g. "gopls").
	Name string `yaml:"name" json:"name" validate:"required"`

	// Command is the executable to run.
	Command string `yaml:"command" json:"command" validate:"required"`

	// Args are passed to Command.
	Args []string `yaml:"args" json:"args,omitempty"`

	// Extensions restricts the server to files with these extensions
	// (".go"). Empty means every file.
	Extensions []string `yaml:"extensions" json:"extensions,omitempty" validate:"dive,startswith=."`

	// LanguageID is sent with textDocument/didOpen.
	LanguageID string `yaml:"language_id" json:"language_id,omitempty"`

	// InitializationOptions are passed verbatim in the initialize request.
	InitializationOptions map[string]interface{} `yaml:"initialization_options" json:"initialization_options,omitempty"`
}

// Handles returns true if the server is configured for path.
func (c ServerConfig) Handles(path string) bool {
	if len(c.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Extensions {
		if strings.ToLower(e) == ext {
			return true
		}
	}
	return false
}

// =============================================================================
// SERVER STATE
// =============================================================================

// ServerState represents the lifecycle state of an LSP server.
type ServerState int

const (
	// ServerStateUninitialized is the initial state before Start is called.
	ServerStateUninitialized ServerState = iota

	// ServerStateStarting means the server process is starting.
	ServerStateStarting

	// ServerStateReady means the server is initialized and ready for requests.
	ServerStateReady

	// ServerStateStopping means the server is shutting down.
	ServerStateStopping

	// ServerStateStopped means the server has terminated.
	ServerStateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "ready", "stopping", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// =============================================================================
// SERVER
// =============================================================================

// Server represents a running LSP server process.
//
// Description:
//
//	Manages the lifecycle of an LSP server process, including starting,
//	initializing, and shutting down. Requests are sent through Begin with
//	a caller-supplied correlation token.
//
// Thread Safety:
//
//	Safe for concurrent use after Start() returns successfully.
type Server struct {
	config   ServerConfig
	rootPath string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	protocol     *Protocol
	capabilities ServerCapabilities
	info         *ServerInfo

	state   ServerState
	stateMu sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	readDone chan struct{}
}

// NewServer creates a new server instance (not started).
func NewServer(config ServerConfig, rootPath string) *Server {
	return &Server{
		config:   config,
		rootPath: rootPath,
		state:    ServerStateUninitialized,
		readDone: make(chan struct{}),
	}
}

// Start starts the LSP server process and initializes it.
//
// Description:
//
//	Starts the server process, establishes communication, and performs
//	the LSP initialize handshake. On success, the server is ready to
//	receive requests.
//
// Errors:
//
//	ErrServerNotInstalled - Server binary not found
//	ErrServerAlreadyStarted - Start called on a non-uninitialized server
//	ErrInitializeFailed - LSP initialize handshake failed
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.stateMu.Lock()
	if s.state != ServerStateUninitialized {
		s.stateMu.Unlock()
		return ErrServerAlreadyStarted
	}
	s.state = ServerStateStarting
	s.stateMu.Unlock()

	path, err := exec.LookPath(s.config.Command)
	if err != nil {
		s.setState(ServerStateStopped)
		slog.Warn("LSP server not installed",
			slog.String("server", s.config.Name),
			slog.String("command", s.config.Command),
		)
		return fmt.Errorf("%w: %s", ErrServerNotInstalled, s.config.Command)
	}

	slog.Info("Starting LSP server",
		slog.String("server", s.config.Name),
		slog.String("command", path),
		slog.String("root_path", s.rootPath),
	)

	// Server context is independent of the caller's context.
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.cmd = exec.CommandContext(s.ctx, path, s.config.Args...)
	s.cmd.Dir = s.rootPath

	s.stdin, err = s.cmd.StdinPipe()
	if err != nil {
		s.cleanup()
		return fmt.Errorf("stdin pipe: %w", err)
	}

	s.stdout, err = s.cmd.StdoutPipe()
	if err != nil {
		s.cleanup()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := s.cmd.Start(); err != nil {
		s.cleanup()
		return fmt.Errorf("start process: %w", err)
	}

	s.attach(NewProtocol(s.stdout, s.stdin))

	if err := s.initialize(ctx); err != nil {
		_ = s.Shutdown(ctx)
		return fmt.Errorf("%w: %v", ErrInitializeFailed, err)
	}

	s.setState(ServerStateReady)

	slog.Info("LSP server ready",
		slog.String("server", s.config.Name),
		slog.Bool("declaration", s.capabilities.Has(CapabilityDeclaration)),
		slog.Bool("definition", s.capabilities.Has(CapabilityDefinition)),
		slog.Bool("implementation", s.capabilities.Has(CapabilityImplementation)),
		slog.Bool("references", s.capabilities.Has(CapabilityReferences)),
		slog.Bool("type_definition", s.capabilities.Has(CapabilityTypeDefinition)),
	)

	return nil
}

// attach installs the protocol and starts its read loop.
func (s *Server) attach(p *Protocol) {
	s.protocol = p
	if s.ctx == nil {
		s.ctx, s.cancel = context.WithCancel(context.Background())
	}
	go func() {
		defer close(s.readDone)
		if err := s.protocol.ReadLoop(s.ctx); err != nil && s.ctx.Err() == nil {
			slog.Warn("LSP read loop stopped",
				slog.String("server", s.config.Name),
				slog.String("error", err.Error()),
			)
			s.protocol.Close()
			s.setState(ServerStateStopped)
		}
	}()
}

// initialize performs the LSP initialize handshake.
func (s *Server) initialize(ctx context.Context) error {
	link := &LinkCapabilities{LinkSupport: true}
	rootURI := PathToURI(s.rootPath)
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				Declaration:    link,
				Definition:     link,
				Implementation: link,
				TypeDefinition: link,
				References:     &struct{}{},
			},
		},
		WorkspaceFolders: []WorkspaceFolder{
			{URI: rootURI, Name: filepath.Base(s.rootPath)},
		},
	}
	if s.config.InitializationOptions != nil {
		params.InitializationOptions = s.config.InitializationOptions
	}

	resp, err := s.protocol.SendRequest(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize request: %w", err)
	}

	var result InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return fmt.Errorf("parse initialize result: %w", err)
	}
	s.capabilities = result.Capabilities
	s.info = result.ServerInfo

	if err := s.protocol.SendNotification("initialized", struct{}{}); err != nil {
		return fmt.Errorf("initialized notification: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
//
// Description:
//
//	Sends shutdown and exit messages to the server, then waits for the
//	process to terminate. If the server doesn't respond, it is killed.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stateMu.Lock()
	if s.state == ServerStateStopped || s.state == ServerStateStopping {
		s.stateMu.Unlock()
		return nil
	}
	s.state = ServerStateStopping
	s.stateMu.Unlock()

	slog.Info("Shutting down LSP server", slog.String("server", s.config.Name))

	defer s.cleanup()

	if s.protocol != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		_, _ = s.protocol.SendRequest(shutdownCtx, "shutdown", nil)
		_ = s.protocol.SendNotification("exit", nil)
		s.protocol.Close()
	}

	if s.stdin != nil {
		_ = s.stdin.Close()
	}

	if s.cmd != nil && s.cmd.Process != nil {
		done := make(chan error, 1)
		go func() { done <- s.cmd.Wait() }()

		select {
		case <-time.After(5 * time.Second):
			_ = s.cmd.Process.Kill()
			<-done
		case <-done:
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	if s.protocol != nil {
		select {
		case <-s.readDone:
		case <-time.After(time.Second):
		}
	}

	return nil
}

// cleanup releases resources and sets state to stopped.
func (s *Server) cleanup() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.stdin != nil {
		_ = s.stdin.Close()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	s.setState(ServerStateStopped)
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current server state.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Name returns the configured server name.
func (s *Server) Name() string {
	return s.config.Name
}

// Config returns the server configuration.
func (s *Server) Config() ServerConfig {
	return s.config
}

// Capabilities returns the capabilities reported during initialization.
func (s *Server) Capabilities() ServerCapabilities {
	return s.capabilities
}

// Info returns the serverInfo reported during initialization, if any.
func (s *Server) Info() *ServerInfo {
	return s.info
}

// =============================================================================
// REQUEST METHODS
// =============================================================================

// Begin sends a request correlated by token and returns its reply channel.
//
// Description:
//
//	See Protocol.Begin. The release function must always be called.
func (s *Server) Begin(token, method string, params interface{}) (<-chan Response, func(), error) {
	if s.State() != ServerStateReady {
		return nil, nil, ErrServerNotRunning
	}
	return s.protocol.Begin(token, method, params)
}

// Notify sends an LSP notification.
func (s *Server) Notify(method string, params interface{}) error {
	if s.State() != ServerStateReady {
		return ErrServerNotRunning
	}
	return s.protocol.SendNotification(method, params)
}

func (s *Server) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}
