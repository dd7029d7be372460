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
	"errors"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/go-playground/validator/v10"
)

// DefaultTimeout is the per-server request timeout in milliseconds.
const DefaultTimeout = 10000

// =============================================================================
// SILENCE
// =============================================================================

// Silence controls which notices reach the editor host.
type Silence string

const (
	// SilenceNone shows every notice.
	SilenceNone Silence = ""

	// SilenceInfo suppresses informational notices.
	SilenceInfo Silence = "silent"

	// SilenceAll suppresses every notice, errors included.
	SilenceAll Silence = "silent!"
)

// Valid returns true for the three known levels.
func (s Silence) Valid() bool {
	return s == SilenceNone || s == SilenceInfo || s == SilenceAll
}

// Allows reports whether a notice of the given kind passes this level.
func (s Silence) Allows(isError bool) bool {
	if isError {
		return s != SilenceAll
	}
	return s == SilenceNone
}

// =============================================================================
// HIGHLIGHTS
// =============================================================================

// Highlight keys, in the order spans are laid out on an item.
const (
	HighlightPath   = "path"
	HighlightLineNr = "lineNr"
	HighlightWord   = "word"
)

// HighlightGroups maps each highlighted segment to a highlight group name.
// Empty fields fall back to DefaultHighlights.
type HighlightGroups struct {
	Path   string `json:"path,omitempty" yaml:"path,omitempty" validate:"omitempty,hlgroup"`
	LineNr string `json:"lineNr,omitempty" yaml:"lineNr,omitempty" validate:"omitempty,hlgroup"`
	Word   string `json:"word,omitempty" yaml:"word,omitempty" validate:"omitempty,hlgroup"`
}

// DefaultHighlights are the groups used when none are given.
var DefaultHighlights = HighlightGroups{
	Path:   "Directory",
	LineNr: "LineNr",
	Word:   "Special",
}

// Merge returns h with empty fields taken from defaults.
func (h HighlightGroups) Merge(defaults HighlightGroups) HighlightGroups {
	if h.Path == "" {
		h.Path = defaults.Path
	}
	if h.LineNr == "" {
		h.LineNr = defaults.LineNr
	}
	if h.Word == "" {
		h.Word = defaults.Word
	}
	return h
}

// =============================================================================
// PARAMS
// =============================================================================

// Params are the parameters of one query.
//
// Description:
//
//	Method, TextDocument and Position are required. Highlights may be
//	partial. Timeout is in milliseconds; zero or less waits forever.
type Params struct {
	Method       lsp.Method                  `json:"method" validate:"required,lspmethod"`
	TextDocument *lsp.TextDocumentIdentifier `json:"textDocument" validate:"required"`
	Position     *lsp.Position               `json:"position" validate:"required"`
	Highlights   HighlightGroups             `json:"highlights"`
	Silent       Silence                     `json:"silent" validate:"silence"`
	Timeout      int                         `json:"timeout"`
}

// DefaultParams returns params with the default timeout and silence.
func DefaultParams() Params {
	return Params{Timeout: DefaultTimeout, Silent: SilenceNone}
}

// TimeoutDuration converts Timeout to a duration. Zero means no timeout.
func (p Params) TimeoutDuration() time.Duration {
	if p.Timeout <= 0 {
		return 0
	}
	return time.Duration(p.Timeout) * time.Millisecond
}

// Validate checks p and returns a *ParamError for the first bad field.
func (p Params) Validate() error {
	err := paramsValidate.Struct(p)
	if err == nil {
		if !lsp.IsFileURI(p.TextDocument.URI) {
			return &ParamError{Field: "textDocument", Value: p.TextDocument}
		}
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ParamError{Field: "params", Value: p}
	}
	first := verrs[0]
	field := first.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	// Report nested failures against the top-level parameter.
	if i := strings.Index(field, "."); i >= 0 {
		field = field[:i]
	}
	return &ParamError{Field: field, Value: topLevelValue(p, field)}
}

func topLevelValue(p Params, field string) interface{} {
	switch field {
	case "method":
		return p.Method
	case "textDocument":
		return p.TextDocument
	case "position":
		return p.Position
	case "highlights":
		return p.Highlights
	case "silent":
		return p.Silent
	case "timeout":
		return p.Timeout
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// paramsValidate is the validator instance for query params.
// Initialized in init() with custom validators.
var paramsValidate *validator.Validate

var hlGroupPattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

func init() {
	paramsValidate = NewValidator()
}

// NewValidator returns a validator that knows the lspmethod, silence and
// hlgroup tags and reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("lspmethod", validateMethod)
	_ = v.RegisterValidation("silence", validateSilence, true)
	_ = v.RegisterValidation("hlgroup", validateHighlightGroup)
	return v
}

func validateMethod(fl validator.FieldLevel) bool {
	return lsp.Method(fl.Field().String()).Valid()
}

func validateSilence(fl validator.FieldLevel) bool {
	return Silence(fl.Field().String()).Valid()
}

func validateHighlightGroup(fl validator.FieldLevel) bool {
	return hlGroupPattern.MatchString(fl.Field().String())
}
