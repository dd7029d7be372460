// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package host

import (
	"context"
	"log/slog"
	"sync"

	"github.com/AleutianAI/locate/services/locate/source"
)

// LogSink writes notices to a logger.
type LogSink struct {
	Logger *slog.Logger
}

// Notice implements NoticeSink.
func (s LogSink) Notice(ctx context.Context, notice source.Notice) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	if notice.Error {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, notice.Message, slog.Bool("notice", true))
}

// RecordSink keeps every notice in memory.
type RecordSink struct {
	mu      sync.Mutex
	notices []source.Notice
}

// Notice implements NoticeSink.
func (s *RecordSink) Notice(_ context.Context, notice source.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice)
}

// Notices returns a copy of the recorded notices.
func (s *RecordSink) Notices() []source.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]source.Notice(nil), s.notices...)
}
