// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package source gathers location lists from language servers.
//
// A query names a method (declaration, definition, implementation,
// references or typeDefinition) and a document position. The Source finds
// the window showing the document, asks every capable server at once and
// streams one batch of items per answering server, in arrival order.
//
// # Run Lifecycle
//
//	idle -> resolving -> dispatching -> streaming -> draining|cancelled -> finalized
//
// A run that cannot find its buffer or a capable server ends early with a
// notice. Every run clears its line caches when it is finalized, including
// runs cancelled by the consumer.
//
// # Items
//
// Each item label reads "<relative path>|<line> col <col>|<text>". Columns
// and highlight widths are byte offsets, computed from the UTF-16 positions
// servers report.
//
// # Collaborators
//
// The editor is reached through EditorHost, servers through
// ServerDirectory and Transport. lsp.Pool implements the latter two.
package source
