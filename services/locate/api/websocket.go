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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/locate/services/locate/render"
	"github.com/AleutianAI/locate/services/locate/source"
)

// wsQueueSize bounds the requests a client may send ahead of the run in
// progress.
const wsQueueSize = 8

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
}

// wsWriter sends each render.Line as one text message.
type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) write(line render.Line) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.conn.WriteJSON(line)
}

func (w *wsWriter) Item(item source.Item) error {
	return w.write(render.Line{Type: render.LineItem, Item: &item})
}

func (w *wsWriter) Notice(n source.Notice) error {
	return w.write(render.Line{Type: render.LineNotice, Notice: &render.NoticeLine{Message: n.Message, Error: n.Error}})
}

func (w *wsWriter) Summary(s source.Summary) error {
	return w.write(render.Line{Type: render.LineSummary, Summary: render.NewSummaryLine(s)})
}

func (w *wsWriter) fail(code string, err error) error {
	return w.write(render.Line{Type: render.LineError, Error: &render.ErrorPayload{Error: err.Error(), Code: code}})
}

// HandleWebSocket handles GET /v1/locate/ws.
//
// Description:
//
//	Upgrades to a websocket. Each text message is a GatherRequest; runs
//	execute one at a time in message order and stream render.Line
//	messages, ending with a summary line (or an error line when the
//	request is rejected). Closing the connection cancels the run in
//	progress.
//
// Thread Safety: one reader goroutine decodes messages; the handler
// goroutine runs queries; writes are serialized by wsWriter.
func (s *Server) HandleWebSocket(c *gin.Context) {
	logger := s.requestLogger(c, "HandleWebSocket")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	w := &wsWriter{conn: conn}
	messages := make(chan json.RawMessage, wsQueueSize)

	go func() {
		defer cancel()
		defer close(messages)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				logger.Debug("websocket closed", slog.String("error", err.Error()))
				return
			}
			select {
			case messages <- data:
			default:
				_ = w.fail(CodeRateLimited, errors.New("too many pending requests"))
			}
		}
	}()

	for data := range messages {
		if ctx.Err() != nil {
			return
		}
		s.serveMessage(ctx, w, data, logger)
	}
}

// serveMessage runs one websocket query.
func (s *Server) serveMessage(ctx context.Context, w *wsWriter, data json.RawMessage, logger *slog.Logger) {
	req, d := s.newRequest()
	if err := json.Unmarshal(data, &req); err != nil {
		_ = w.fail(CodeInvalidRequest, errors.New("invalid request body"))
		return
	}

	queue := &noticeQueue{}
	stream, err := s.start(ctx, req, d, queue, logger)
	if err != nil {
		var rerr *requestError
		code := CodeInternal
		if errors.As(err, &rerr) {
			code = rerr.code
		}
		_ = w.fail(code, err)
		return
	}

	queue.attach(w)
	summary, err := render.Drain(stream, w)
	if err != nil {
		logger.Debug("websocket write failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("websocket gather served",
		slog.String("method", string(summary.Method)),
		slog.String("outcome", summary.Outcome()),
		slog.Int("items", summary.Items))
}
