// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package text converts LSP positions into the byte offsets editors use.
//
// LSP counts characters in UTF-16 code units. Editors address columns by
// byte, so every highlight column and width is computed here from the
// UTF-8 bytes of the line.
package text

import (
	"regexp"
	"unicode/utf16"
	"unicode/utf8"
)

var lineBreak = regexp.MustCompile(`\r\n|\n|\r`)

// SplitLines splits s on "\r\n", "\n" and "\r".
//
// A trailing line break yields a trailing empty line, so the result always
// has one element more than the number of breaks.
func SplitLines(s string) []string {
	return lineBreak.Split(s, -1)
}

// ByteOffset returns the byte offset in line of the UTF-16 code unit
// offset units.
//
// Description:
//
//	Offsets past the end of the line clamp to len(line). An offset that
//	falls between the two halves of a surrogate pair resolves to the start
//	of that character. Invalid UTF-8 bytes count as one unit each.
//
// Examples:
//
//	ByteOffset("日本語 foo", 4) == 10
//	ByteOffset("abc", 99) == 3
func ByteOffset(line string, units int) int {
	if units <= 0 {
		return 0
	}
	count := 0
	for i := 0; i < len(line); {
		r, size := utf8.DecodeRuneInString(line[i:])
		width := utf16.RuneLen(r)
		if width < 1 {
			width = 1
		}
		if count+width > units {
			return i
		}
		count += width
		i += size
		if count == units {
			return i
		}
	}
	return len(line)
}

// Slice returns the bytes of line between the UTF-16 offsets start and
// end. A negative end means the rest of the line. An end before start
// yields the empty string.
func Slice(line string, start, end int) string {
	from := ByteOffset(line, start)
	if end < 0 {
		return line[from:]
	}
	to := ByteOffset(line, end)
	if to < from {
		return ""
	}
	return line[from:to]
}
