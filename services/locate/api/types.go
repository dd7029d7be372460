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
	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/AleutianAI/locate/services/locate/source"
)

// Error codes.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeInvalidParameter = "INVALID_PARAMETER"
	CodeNotInitialized   = "NOT_INITIALIZED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL"
)

// GatherRequest is the body of POST /v1/locate/gather and of every
// websocket message.
//
// Fields left out take the server's configured defaults.
type GatherRequest struct {
	source.Params

	// Text is unsaved content of the target document. When set, it is
	// used instead of the file on disk and sent to the language servers
	// with textDocument/didOpen.
	Text *string `json:"text,omitempty"`

	// Cwd is the directory item paths are shown relative to. Default:
	// the workspace root.
	Cwd string `json:"cwd,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is one of the Code* constants.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// HealthResponse is returned by GET /v1/locate/health.
type HealthResponse struct {
	Status  string             `json:"status"`
	Name    string             `json:"name"`
	Root    string             `json:"root"`
	Servers []lsp.ServerStatus `json:"servers"`
}
