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

// Item is one entry of a location list.
type Item struct {
	// Word is the display label: "<relative path>|<line> col <col>|<text>".
	Word string `json:"word"`

	// Action tells the consumer where to jump.
	Action ActionData `json:"action"`

	// Highlights are the path, position and word spans of Word.
	Highlights []Highlight `json:"highlights"`
}

// ActionData locates an item in a file.
type ActionData struct {
	// BufNr is the loaded buffer, omitted when the file is not open.
	BufNr int `json:"bufNr,omitempty"`

	// Path is the absolute file path.
	Path string `json:"path"`

	// LineNr is the 1-based line.
	LineNr int `json:"lineNr"`

	// Col is the 1-based byte column.
	Col int `json:"col"`

	// Text is the source line.
	Text string `json:"text"`
}

// Highlight is a span of an item's Word. Col is 1-based and Col and Width
// count bytes.
type Highlight struct {
	Name    string `json:"name"`
	HLGroup string `json:"hl_group"`
	Col     int    `json:"col"`
	Width   int    `json:"width"`
}

// highlightNames are the span names of one source.
type highlightNames struct {
	path   string
	lineNr string
	word   string
}

func newHighlightNames(source string) highlightNames {
	prefix := "source/" + source + "/"
	return highlightNames{
		path:   prefix + HighlightPath,
		lineNr: prefix + HighlightLineNr,
		word:   prefix + HighlightWord,
	}
}
