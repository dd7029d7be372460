// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command locate asks every attached language server for a location list
// and prints the merged results.
//
// Usage:
//
//	locate query definition main.go 12 7
//	locate query references ./pkg/server.go 40 3 --json
//	locate servers
//	locate serve --addr :8080
//
// Example requests against `locate serve`:
//
//	# Health check
//	curl http://localhost:8080/v1/locate/health
//
//	# Stream a definition lookup
//	curl -N -X POST http://localhost:8080/v1/locate/gather \
//	  -H "Content-Type: application/json" \
//	  -d '{"method": "definition",
//	       "textDocument": {"uri": "file:///path/to/main.go"},
//	       "position": {"line": 11, "character": 6}}'
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	err := rootCmd.Execute()
	if logger != nil {
		_ = logger.Close()
	}
	if err != nil {
		if !errors.Is(err, errQueryFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
