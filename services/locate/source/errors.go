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
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for source operations.
var (
	// ErrNotInitialized indicates Gather was called before a successful Init.
	ErrNotInitialized = errors.New("source not initialized")

	// ErrSetup indicates the language servers could not be enabled.
	ErrSetup = errors.New("language servers could not be enabled")

	// ErrInvalidParameter indicates malformed query parameters.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBufferNotFound indicates no window shows the target document.
	ErrBufferNotFound = errors.New("buffer not found")

	// ErrNotSupported indicates no server supports the requested method.
	ErrNotSupported = errors.New("method not supported")

	// ErrTimeout indicates a server did not answer within the query timeout.
	ErrTimeout = errors.New("request timed out")
)

// ParamError reports a query parameter that failed validation.
//
// Description:
//
//	Names the offending field by its JSON name and carries the rejected
//	value. Unwraps to ErrInvalidParameter.
type ParamError struct {
	Field string
	Value interface{}
}

// Error implements error.
func (e *ParamError) Error() string {
	value, err := json.Marshal(e.Value)
	if err != nil {
		value = []byte(fmt.Sprintf("%v", e.Value))
	}
	return fmt.Sprintf("invalid parameter: %s: %s", e.Field, value)
}

// Unwrap returns ErrInvalidParameter.
func (e *ParamError) Unwrap() error {
	return ErrInvalidParameter
}
