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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Per-server request outcomes, used as metric attributes.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeTimeout   = "timeout"
	outcomeCancelled = "cancelled"
)

// serverBatch is the contribution of one server.
type serverBatch struct {
	server string
	items  []Item
	err    error
}

// backendError is an error reported by a language server.
type backendError struct {
	code    int
	message string
}

func (e *backendError) Error() string {
	return e.message
}

// dispatcher fans one query out to every capable server.
type dispatcher struct {
	transport Transport
	builder   *itemBuilder
	notifier  *notifier
	method    lsp.Method
	params    interface{}
	timeout   int
	logger    *slog.Logger
}

// capableServers lists the servers of buf that support method.
//
// Description:
//
//	A server whose capabilities cannot be read is logged and skipped;
//	the remaining servers are still checked.
//
// Outputs:
//
//	[]string - Capable servers, in directory order.
//	int - Number of servers before the capability filter.
//	error - Only when the server list itself cannot be read.
func capableServers(ctx context.Context, dir ServerDirectory, buf int, path string, method lsp.Method, logger *slog.Logger) ([]string, int, error) {
	servers, err := dir.Servers(ctx, buf, path)
	if err != nil {
		return nil, 0, fmt.Errorf("list servers: %w", err)
	}
	capability := method.Capability()
	capable := make([]string, 0, len(servers))
	for _, server := range servers {
		ok, err := dir.Supports(ctx, server, capability)
		if err != nil {
			logger.Warn("capability lookup failed",
				slog.String("server", server),
				slog.String("error", err.Error()))
			continue
		}
		if ok {
			capable = append(capable, server)
		}
	}
	return capable, len(servers), nil
}

// Dispatch queries every server concurrently.
//
// Description:
//
//	One goroutine per server sends the request and waits for its reply
//	or the timeout. Batches are delivered in arrival order. A failing or
//	timed out server yields an empty batch and a warning; it never delays
//	or cancels the others. The returned channel is closed once every
//	server goroutine has exited.
//
// Thread Safety:
//
//	Cancelling ctx makes every goroutine return promptly without a
//	warning.
func (d *dispatcher) Dispatch(ctx context.Context, servers []string) <-chan serverBatch {
	results := make(chan serverBatch, len(servers))

	var g errgroup.Group
	for _, server := range servers {
		g.Go(func() error {
			items, err := d.query(ctx, server)
			if err != nil && ctx.Err() == nil {
				d.notifier.error(ctx, "Failed to retrieve %s for %s: %s", d.method, server, d.failureMessage(err))
			}
			results <- serverBatch{server: server, items: items, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()
	return results
}

// query performs the request to one server.
func (d *dispatcher) query(ctx context.Context, server string) (items []Item, err error) {
	ctx, span := startServerSpan(ctx, server, string(d.method))
	start := time.Now()
	defer func() {
		outcome := outcomeOK
		switch {
		case errors.Is(err, ErrTimeout):
			outcome = outcomeTimeout
		case err != nil && ctx.Err() != nil:
			outcome = outcomeCancelled
		case err != nil:
			outcome = outcomeError
		}
		recordServerRequest(ctx, server, string(d.method), outcome, time.Since(start), len(items))
		d.logger.Debug("server request finished",
			slog.String("server", server),
			slog.String("outcome", outcome),
			slog.Int("items", len(items)),
			slog.Duration("duration", time.Since(start)),
		)
		endSpan(span, err)
	}()

	reqCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(d.timeout)*time.Millisecond)
		defer cancel()
	}

	token := uuid.NewString()
	reply, release, err := d.transport.Request(reqCtx, server, token, d.method.RequestName(), d.params)
	if err != nil {
		return nil, err
	}
	defer release()

	var resp lsp.Response
	select {
	case r, ok := <-reply:
		if !ok {
			return nil, lsp.ErrServerNotRunning
		}
		resp = r
	case <-reqCtx.Done():
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrTimeout
	}

	if resp.Error != nil {
		return nil, &backendError{code: resp.Error.Code, message: lsp.ErrorMessage(resp.Error)}
	}

	locs, err := lsp.ParseLocationList(resp.Result)
	if err != nil {
		return nil, err
	}
	return d.builder.Build(ctx, lsp.FilterLocal(locs))
}

// failureMessage is the text shown for a failed server.
func (d *dispatcher) failureMessage(err error) string {
	if errors.Is(err, ErrTimeout) {
		return fmt.Sprintf("Timed out in %d msec", d.timeout)
	}
	return err.Error()
}
