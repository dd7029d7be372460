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
)

// notifier formats notices and applies the silence level.
//
// Every notice is logged whether or not it reaches the host.
type notifier struct {
	host    EditorHost
	name    string
	silence Silence
	logger  *slog.Logger
}

func (n *notifier) info(ctx context.Context, format string, args ...interface{}) {
	n.send(ctx, false, fmt.Sprintf(format, args...))
}

func (n *notifier) error(ctx context.Context, format string, args ...interface{}) {
	n.send(ctx, true, fmt.Sprintf(format, args...))
}

func (n *notifier) send(ctx context.Context, isError bool, message string) {
	if isError {
		n.logger.Warn(message, slog.String("source", n.name))
	} else {
		n.logger.Debug(message, slog.String("source", n.name))
	}
	if !n.silence.Allows(isError) {
		return
	}
	n.host.Notify(context.WithoutCancel(ctx), Notice{
		Message: "[" + n.name + "]: " + message,
		Error:   isError,
		Silence: n.silence,
	})
}
