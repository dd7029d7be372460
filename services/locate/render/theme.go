// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/AleutianAI/locate/services/locate/source"
)

// Palette
var (
	ColorTeal    = lipgloss.Color("#2CD7C7")
	ColorOcean   = lipgloss.Color("#157483")
	ColorSlate   = lipgloss.Color("#5C7A84")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Theme maps highlight group names to styles.
//
// Thread Safety: a Theme is read-only after construction.
type Theme struct {
	base   lipgloss.Style
	groups map[string]lipgloss.Style
	info   lipgloss.Style
	err    lipgloss.Style
	muted  lipgloss.Style
}

// NewTheme builds the default theme for w. color forces ANSI output even
// when w is not a terminal; otherwise every style renders as plain text.
func NewTheme(w io.Writer, color bool) *Theme {
	r := lipgloss.NewRenderer(w)
	if color {
		r.SetColorProfile(termenv.ANSI256)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	// Source lines keep their tabs.
	base := r.NewStyle().TabWidth(lipgloss.NoTabConversion)

	return &Theme{
		base: base,
		groups: map[string]lipgloss.Style{
			"Directory":  base.Foreground(ColorTeal),
			"LineNr":     base.Foreground(ColorSlate),
			"Special":    base.Foreground(ColorWarning).Bold(true),
			"Identifier": base.Foreground(ColorOcean),
			"Search":     base.Reverse(true),
			"ErrorMsg":   base.Foreground(ColorError),
			"WarningMsg": base.Foreground(ColorWarning),
			"Comment":    base.Foreground(ColorSlate).Italic(true),
			"Title":      base.Foreground(ColorTeal).Bold(true),
		},
		info:  base.Foreground(ColorSlate),
		err:   base.Foreground(ColorError),
		muted: base.Foreground(ColorSlate).Faint(true),
	}
}

// Style returns the style of a highlight group. Unknown groups get an
// empty style.
func (t *Theme) Style(group string) (lipgloss.Style, bool) {
	s, ok := t.groups[group]
	if !ok {
		return t.base, false
	}
	return s, true
}

// Paint renders an item's Word with its highlight spans applied.
//
// Description:
//
//	Spans are applied in column order. Spans are byte ranges of Word; a
//	span overlapping an earlier one is trimmed to its unpainted part and
//	spans past the end of Word are clamped.
func (t *Theme) Paint(item source.Item) string {
	word := item.Word
	spans := append([]source.Highlight(nil), item.Highlights...)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Col < spans[j].Col })

	var b strings.Builder
	pos := 0
	for _, h := range spans {
		start := h.Col - 1
		end := start + h.Width
		if start < pos {
			start = pos
		}
		if end > len(word) {
			end = len(word)
		}
		if start >= end {
			continue
		}
		b.WriteString(word[pos:start])
		style, _ := t.Style(h.HLGroup)
		b.WriteString(style.Render(word[start:end]))
		pos = end
	}
	b.WriteString(word[pos:])
	return b.String()
}

// Notice renders a notice message in the info or error style.
func (t *Theme) Notice(n source.Notice) string {
	if n.Error {
		return t.err.Render(n.Message)
	}
	return t.info.Render(n.Message)
}

// Muted renders secondary text such as summaries.
func (t *Theme) Muted(s string) string {
	return t.muted.Render(s)
}
