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
	"testing"
	"time"

	"github.com/AleutianAI/locate/services/locate/lsp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilence_Allows(t *testing.T) {
	assert.True(t, SilenceNone.Allows(false))
	assert.True(t, SilenceNone.Allows(true))
	assert.False(t, SilenceInfo.Allows(false))
	assert.True(t, SilenceInfo.Allows(true))
	assert.False(t, SilenceAll.Allows(false))
	assert.False(t, SilenceAll.Allows(true))
	assert.False(t, Silence("quiet").Valid())
}

func TestHighlightGroups_Merge(t *testing.T) {
	got := HighlightGroups{LineNr: "Number"}.Merge(DefaultHighlights)
	assert.Equal(t, HighlightGroups{Path: "Directory", LineNr: "Number", Word: "Special"}, got)
}

func TestParams_TimeoutDuration(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 10*time.Second, p.TimeoutDuration())

	p.Timeout = 0
	assert.Zero(t, p.TimeoutDuration())
	p.Timeout = -5
	assert.Zero(t, p.TimeoutDuration())
}

func TestParams_DecodeJSON(t *testing.T) {
	raw := `{
		"method": "references",
		"textDocument": {"uri": "file:///proj/a.go"},
		"position": {"line": 3, "character": 7},
		"highlights": {"word": "Search", "unknown": "Ignored"},
		"silent": "silent"
	}`
	p := DefaultParams()
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.NoError(t, p.Validate())

	assert.Equal(t, lsp.MethodReferences, p.Method)
	assert.Equal(t, DefaultTimeout, p.Timeout, "unset timeout keeps the default")
	assert.Equal(t, SilenceInfo, p.Silent)
	assert.Equal(t, "Search", p.Highlights.Word)
}

func TestParamError(t *testing.T) {
	err := &ParamError{Field: "timeout", Value: "soon"}
	assert.Equal(t, `invalid parameter: timeout: "soon"`, err.Error())
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRelativePath(t *testing.T) {
	assert.Equal(t, "pkg/a.go", relativePath("/proj", "/proj/pkg/a.go"))
	assert.Equal(t, "../other/b.go", relativePath("/proj", "/other/b.go"))
	assert.Equal(t, "/proj/a.go", relativePath("", "/proj/a.go"))
}
