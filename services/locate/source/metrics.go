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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for source operations.
var (
	tracer = otel.Tracer("locate.source")
	meter  = otel.Meter("locate.source")
)

var (
	runsTotal       metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestTimeouts metric.Int64Counter
	batchItems      metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"locate_runs_total",
			metric.WithDescription("Total number of location-list runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestDuration, err = meter.Float64Histogram(
			"locate_server_request_duration_seconds",
			metric.WithDescription("Duration of per-server location requests"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTimeouts, err = meter.Int64Counter(
			"locate_server_timeouts_total",
			metric.WithDescription("Total number of per-server request timeouts"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		batchItems, err = meter.Int64Histogram(
			"locate_batch_items",
			metric.WithDescription("Number of items in each server batch"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, method, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	))
}

func recordServerRequest(ctx context.Context, server, method, outcome string, d time.Duration, items int) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("server", server),
		attribute.String("method", method),
		attribute.String("outcome", outcome),
	)
	requestDuration.Record(ctx, d.Seconds(), attrs)
	if outcome == outcomeTimeout {
		requestTimeouts.Add(ctx, 1, metric.WithAttributes(attribute.String("server", server)))
	}
	if outcome == outcomeOK {
		batchItems.Record(ctx, int64(items), metric.WithAttributes(attribute.String("server", server)))
	}
}

// startGatherSpan creates the span of one run.
func startGatherSpan(ctx context.Context, source string, p Params) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Source.Gather",
		trace.WithAttributes(
			attribute.String("locate.source", source),
			attribute.String("locate.method", string(p.Method)),
			attribute.String("locate.uri", p.TextDocument.URI),
			attribute.Int("locate.line", p.Position.Line),
			attribute.Int("locate.character", p.Position.Character),
		),
	)
}

// startServerSpan creates the span of one server request.
func startServerSpan(ctx context.Context, server string, method string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Dispatch.Server",
		trace.WithAttributes(
			attribute.String("locate.server", server),
			attribute.String("locate.method", method),
		),
	)
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
