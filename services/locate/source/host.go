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

	"github.com/AleutianAI/locate/services/locate/lsp"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// WindowContext is what the source needs to know about a window.
type WindowContext struct {
	// Buffer is the buffer displayed in the window.
	Buffer int

	// Cwd is the working directory of the window.
	Cwd string
}

// Notice is a user-facing message.
type Notice struct {
	// Message is the formatted text, prefixed with "[<source name>]: ".
	Message string

	// Error marks warnings and failures.
	Error bool

	// Silence is the level the notice passed.
	Silence Silence
}

// EditorHost exposes the editor state a query needs.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Line lookups for
//	different locations run in parallel.
type EditorHost interface {
	// FindWindow returns a window showing path. ok is false if none does.
	FindWindow(ctx context.Context, path string) (win int, ok bool, err error)

	// WindowContext returns the buffer and working directory of win.
	WindowContext(ctx context.Context, win int) (WindowContext, error)

	// BufferNumber returns the buffer loaded for path, or a value <= 0.
	BufferNumber(ctx context.Context, path string) (int, error)

	// BufferLine returns the 1-based line lnum of buf. ok is false if the
	// buffer has no such line.
	BufferLine(ctx context.Context, buf, lnum int) (text string, ok bool, err error)

	// ReadFile returns the contents of path on disk.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// Notify shows a notice to the user.
	Notify(ctx context.Context, notice Notice)
}

// ServerDirectory knows which language servers exist and what they support.
type ServerDirectory interface {
	// Enable makes the language servers available. Called once by Init.
	Enable(ctx context.Context) error

	// Servers lists the servers attached to buf, which shows path.
	Servers(ctx context.Context, buf int, path string) ([]string, error)

	// Supports reports whether server advertises capability.
	Supports(ctx context.Context, server string, capability lsp.Capability) (bool, error)
}

// Transport sends one correlated request to a server.
//
// Description:
//
//	Request registers token, sends the request and returns a channel that
//	receives exactly one reply. The caller must call release once it stops
//	waiting, whether a reply arrived or not.
type Transport interface {
	Request(ctx context.Context, server, token, method string, params interface{}) (reply <-chan lsp.Response, release func(), err error)
}
