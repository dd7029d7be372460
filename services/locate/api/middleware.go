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
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	ctxRequestID    = "request_id"
)

// requestID copies or creates X-Request-ID and stores it on the context.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Set(ctxRequestID, id)
		c.Next()
	}
}

// rateLimit rejects requests beyond the configured rate with 429.
func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		r := s.limiter.Reserve()
		if !r.OK() {
			s.reject(c)
			return
		}
		if delay := r.Delay(); delay > 0 {
			r.Cancel()
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			s.reject(c)
			return
		}
		c.Next()
	}
}

func (s *Server) reject(c *gin.Context) {
	s.logger.Warn("rate limited",
		slog.String("request_id", c.GetString(ctxRequestID)),
		slog.String("path", c.FullPath()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
		Error: "rate limit exceeded",
		Code:  CodeRateLimited,
	})
}

// requestLogger returns the server logger tagged with the request id.
func (s *Server) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return s.logger.With(
		slog.String("request_id", c.GetString(ctxRequestID)),
		slog.String("handler", handler),
	)
}
