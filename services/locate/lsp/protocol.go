// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// JSONRPCVersion is the JSON-RPC version used by LSP.
const JSONRPCVersion = "2.0"

// =============================================================================
// JSON-RPC MESSAGE TYPES
// =============================================================================

// ID is a JSON-RPC request id. Locate always sends string ids; numeric ids
// sent by a server are kept in their decimal form.
type ID string

// UnmarshalJSON accepts both string and number ids.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	if string(data) == "null" {
		*id = ""
		return nil
	}
	*id = ID(data)
	return nil
}

// Request represents a JSON-RPC request.
type Request struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the correlation token of the request.
	ID string `json:"id"`

	// Method is the method to invoke.
	Method string `json:"method"`

	// Params contains the method parameters.
	Params interface{} `json:"params,omitempty"`
}

// Response represents a JSON-RPC response.
type Response struct {
	// JSONRPC is the protocol version, always "2.0".
	JSONRPC string `json:"jsonrpc"`

	// ID is the request identifier this response corresponds to.
	ID ID `json:"id"`

	// Result contains the method result (mutually exclusive with Error).
	Result json.RawMessage `json:"result,omitempty"`

	// Error contains error information (mutually exclusive with Result).
	Error *ResponseError `json:"error,omitempty"`
}

// ResponseError represents a JSON-RPC error.
type ResponseError struct {
	// Code is the error code.
	Code int `json:"code"`

	// Message is a short description of the error.
	Message string `json:"message"`

	// Data contains additional error information.
	Data interface{} `json:"data,omitempty"`
}

// Notification represents a JSON-RPC notification (no ID, no response).
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// incoming is the union of everything a server may send.
type incoming struct {
	ID     *ID             `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *ResponseError  `json:"error"`
}

// =============================================================================
// PROTOCOL HANDLER
// =============================================================================

// Protocol handles JSON-RPC communication over stdin/stdout.
//
// Description:
//
//	Implements the LSP base protocol using Content-Length headers.
//	Replies are correlated to requests through a Broker keyed by the
//	request id, which doubles as the caller's correlation token.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple goroutines can send requests
//	and notifications simultaneously.
type Protocol struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
	pending *Broker[string, Response]
	closed  atomic.Bool
}

// NewProtocol creates a new protocol handler.
//
// Inputs:
//
//	r - Reader for server responses (e.g., stdout pipe)
//	w - Writer for client requests (e.g., stdin pipe)
//
// Outputs:
//
//	*Protocol - The protocol handler
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &Protocol{
		reader:  reader,
		writer:  w,
		pending: NewBroker[string, Response](),
	}
}

// Begin registers a reply waiter for token and sends the request.
//
// Description:
//
//	The waiter is registered before the request is written so a fast reply
//	cannot be lost. The returned release function must be called once the
//	caller stops waiting, whether the reply arrived or not.
//
// Inputs:
//
//	token - Unique correlation token, used as the JSON-RPC id
//	method - The LSP method to invoke (e.g., "textDocument/definition")
//	params - Method parameters (will be JSON-marshaled)
//
// Outputs:
//
//	<-chan Response - Receives the single reply
//	func() - Releases the waiter registration
//	error - Non-nil if the protocol is closed or the write failed
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) Begin(token, method string, params interface{}) (<-chan Response, func(), error) {
	if p.closed.Load() {
		return nil, nil, ErrServerNotRunning
	}

	reply, release, err := p.pending.Register(token)
	if err != nil {
		return nil, nil, err
	}

	req := Request{
		JSONRPC: JSONRPCVersion,
		ID:      token,
		Method:  method,
		Params:  params,
	}
	if err := p.writeMessage(req); err != nil {
		release()
		return nil, nil, fmt.Errorf("write request: %w", err)
	}
	return reply, release, nil
}

// SendRequest sends a request and waits for the response.
//
// Description:
//
//	Sends a JSON-RPC request to the server and blocks until a response
//	is received or the context is cancelled. A server-reported error is
//	returned as *LSPError.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) SendRequest(ctx context.Context, method string, params interface{}) (*Response, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}

	reply, release, err := p.Begin(uuid.NewString(), method, params)
	if err != nil {
		return nil, err
	}
	defer release()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrRequestTimeout, ctx.Err())
	case resp, ok := <-reply:
		if !ok {
			return nil, ErrServerNotRunning
		}
		if resp.Error != nil {
			return nil, &LSPError{
				Code:    resp.Error.Code,
				Message: resp.Error.Message,
				Data:    resp.Error.Data,
			}
		}
		return &resp, nil
	}
}

// SendNotification sends a notification (no response expected).
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) SendNotification(method string, params interface{}) error {
	if p.closed.Load() {
		return ErrServerNotRunning
	}

	notif := Notification{
		JSONRPC: JSONRPCVersion,
		Method:  method,
		Params:  params,
	}
	return p.writeMessage(notif)
}

// Pending returns the number of requests still waiting for a reply.
func (p *Protocol) Pending() int {
	return p.pending.Pending()
}

// writeMessage marshals and writes a message with Content-Length header.
func (p *Protocol) writeMessage(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))
	if _, err := p.writer.Write([]byte(header)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := p.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// ReadLoop reads messages from the server and dispatches responses.
//
// Description:
//
//	Continuously reads messages from the server. Responses are matched
//	to pending requests; requests from the server are refused with
//	MethodNotFound; notifications are ignored. Call this in a goroutine
//	after starting the server.
//
// Thread Safety:
//
//	Must be called from a single goroutine.
func (p *Protocol) ReadLoop(ctx context.Context) error {
	if p.reader == nil {
		return fmt.Errorf("no reader configured")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, err := p.readMessage()
		if err != nil {
			if err == io.EOF {
				return ErrServerCrashed
			}
			if p.closed.Load() {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		p.handleMessage(msg)
	}
}

// readMessage reads a single message from the server.
func (p *Protocol) readMessage() (json.RawMessage, error) {
	var contentLength int

	for {
		line, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimSpace(line)

		// Empty line marks end of headers
		if line == "" {
			break
		}

		if strings.HasPrefix(line, "Content-Length:") {
			lenStr := strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:"))
			var err error
			contentLength, err = strconv.Atoi(lenStr)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length value %q: %w", lenStr, err)
			}
			if contentLength < 0 {
				return nil, fmt.Errorf("negative Content-Length: %d", contentLength)
			}
		}
	}

	if contentLength == 0 {
		return nil, fmt.Errorf("missing or zero Content-Length header")
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(p.reader, body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return body, nil
}

// handleMessage dispatches a received message.
func (p *Protocol) handleMessage(msg json.RawMessage) {
	var in incoming
	if err := json.Unmarshal(msg, &in); err != nil {
		slog.Debug("Dropping malformed LSP message", slog.String("error", err.Error()))
		return
	}
	if in.ID == nil {
		return // notification
	}

	if in.Method != "" {
		// Server-to-client request; Locate implements none of them.
		reply := struct {
			JSONRPC string         `json:"jsonrpc"`
			ID      ID             `json:"id"`
			Error   *ResponseError `json:"error"`
		}{
			JSONRPC: JSONRPCVersion,
			ID:      *in.ID,
			Error:   &ResponseError{Code: -32601, Message: "method not found: " + in.Method},
		}
		if err := p.writeMessage(reply); err != nil {
			slog.Debug("Failed to refuse server request",
				slog.String("method", in.Method),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	p.pending.Resolve(string(*in.ID), Response{
		JSONRPC: JSONRPCVersion,
		ID:      *in.ID,
		Result:  in.Result,
		Error:   in.Error,
	})
}

// Close marks the protocol as closed.
//
// Description:
//
//	Prevents further sends and fails all pending requests with an error
//	response. Does not close underlying readers/writers.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) Close() {
	p.closed.Store(true)
	p.pending.Close(func(token string) Response {
		return Response{
			JSONRPC: JSONRPCVersion,
			ID:      ID(token),
			Error: &ResponseError{
				Code:    -32099,
				Message: "server connection closed",
			},
		}
	})
}
