// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lsp provides the Language Server Protocol plumbing used by Locate.
//
// Locate asks every capable language server for a location list (definition,
// references, ...) and merges the answers. This package owns everything that
// talks to the servers; the aggregation itself lives in package source.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────────────┐
//	│                               Pool                                   │
//	│   ServerDirectory (Servers, Supports)      Transport (Request)       │
//	│        │                                          │                  │
//	│        ▼                                          ▼                  │
//	│   Server (gopls) ── Protocol ── Broker      Server (pyright) ── ...  │
//	└──────────────────────────────────────────────────────────────────────┘
//
// # Components
//
//   - Pool: Starts the configured servers and routes requests to them by name
//   - Server: Manages one language server process and its capabilities
//   - Protocol: Content-Length framed JSON-RPC over stdin/stdout
//   - Broker: One-shot reply waiters keyed by correlation token
//   - ParseLocationList / FilterLocal: Location normalization
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
//
// # Example
//
//	pool := lsp.NewPool(rootPath, configs)
//	if err := pool.Enable(ctx); err != nil {
//	    return err
//	}
//	defer pool.Shutdown(context.Background())
package lsp
