// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render writes location-list items, notices and run summaries to
// a terminal or as JSON lines.
//
// Terminal output paints each item's highlight spans with the style of its
// highlight group (Directory, LineNr, Special, ...). JSON output emits one
// Line envelope per event; the HTTP API streams the same envelope.
package render

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode selects the output format.
type Mode string

const (
	// ModeAuto picks ModeColor for terminals and ModePlain otherwise.
	ModeAuto Mode = "auto"

	// ModeColor paints highlight spans with ANSI colors.
	ModeColor Mode = "color"

	// ModePlain writes item words without styling.
	ModePlain Mode = "plain"

	// ModeJSON writes one JSON Line per event.
	ModeJSON Mode = "json"
)

// ParseMode converts a flag value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ModeAuto, nil
	case "color", "colour", "always":
		return ModeColor, nil
	case "plain", "never", "none":
		return ModePlain, nil
	case "json", "machine":
		return ModeJSON, nil
	default:
		return ModeAuto, fmt.Errorf("unknown output mode %q", s)
	}
}

// Resolve replaces ModeAuto with ModeColor or ModePlain depending on
// whether w is a terminal. NO_COLOR forces ModePlain.
func (m Mode) Resolve(w io.Writer) Mode {
	if m != ModeAuto {
		return m
	}
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if IsTerminal(w) {
		return ModeColor
	}
	return ModePlain
}

// IsTerminal reports whether w is an *os.File attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
