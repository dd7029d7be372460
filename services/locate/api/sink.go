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
	"context"
	"sync"

	"github.com/AleutianAI/locate/services/locate/render"
	"github.com/AleutianAI/locate/services/locate/source"
)

// noticeQueue holds notices until the response status is decided, then
// forwards them to the attached writer.
type noticeQueue struct {
	mu      sync.Mutex
	w       render.Writer
	pending []source.Notice
}

// Notice implements host.NoticeSink.
func (q *noticeQueue) Notice(_ context.Context, n source.Notice) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.w == nil {
		q.pending = append(q.pending, n)
		return
	}
	_ = q.w.Notice(n)
}

// attach flushes queued notices to w and forwards later ones directly.
func (q *noticeQueue) attach(w render.Writer) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, n := range q.pending {
		_ = w.Notice(n)
	}
	q.pending = nil
	q.w = w
}

// drained returns the notices that were never attached.
func (q *noticeQueue) drained() []source.Notice {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}
