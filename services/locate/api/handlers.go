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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/locate/services/locate/render"
)

// HandleHealth handles GET /v1/locate/health.
//
// Response:
//
//	200 OK: HealthResponse
func (s *Server) HandleHealth(c *gin.Context) {
	d := s.currentDefaults()
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Name:    d.name,
		Root:    s.pool.RootPath(),
		Servers: s.pool.Describe(),
	})
}

// HandleGather handles POST /v1/locate/gather.
//
// Description:
//
//	Runs one query and streams its events as JSON lines
//	(application/x-ndjson): notices and item lines in arrival order,
//	then one summary line. A client disconnect cancels the run.
//
// Request Body:
//
//	GatherRequest
//
// Response:
//
//	200 OK: stream of render.Line
//	400 Bad Request: INVALID_REQUEST or INVALID_PARAMETER
//	429 Too Many Requests: RATE_LIMITED
//	503 Service Unavailable: NOT_INITIALIZED
func (s *Server) HandleGather(c *gin.Context) {
	logger := s.requestLogger(c, "HandleGather")

	req, d := s.newRequest()
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  CodeInvalidRequest,
		})
		return
	}

	queue := &noticeQueue{}
	stream, err := s.start(c.Request.Context(), req, d, queue, logger)
	if err != nil {
		var rerr *requestError
		if !errors.As(err, &rerr) {
			rerr = &requestError{http.StatusInternalServerError, CodeInternal, err}
		}
		resp := rerr.response()
		if dropped := queue.drained(); len(dropped) > 0 {
			resp.Details = dropped[len(dropped)-1].Message
		}
		logger.Warn("gather rejected", slog.String("code", rerr.code), slog.String("error", err.Error()))
		c.JSON(rerr.status, resp)
		return
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	w := render.NewJSONWriter(c.Writer)
	queue.attach(w)
	summary, err := render.Drain(stream, w)
	if err != nil {
		logger.Warn("response write failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("gather served",
		slog.String("method", string(summary.Method)),
		slog.String("outcome", summary.Outcome()),
		slog.Int("items", summary.Items))
}
