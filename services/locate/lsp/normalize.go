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
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// =============================================================================
// URI HELPERS
// =============================================================================

// PathToURI converts an absolute file path to a file:// URI.
//
// Description:
//
//	Properly encodes the path for use in a file:// URI, handling special
//	characters like spaces, unicode, and other reserved characters.
func PathToURI(path string) string {
	if !filepath.IsAbs(path) {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
	}
	u := &url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	return u.String()
}

// URIToPath converts a file:// URI to an absolute file path.
func URIToPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("parse uri %q: %w", uri, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("not a file uri: %q", uri)
	}
	return filepath.FromSlash(u.Path), nil
}

// IsFileURI returns true if uri addresses a file on the local machine.
func IsFileURI(uri string) bool {
	return strings.HasPrefix(uri, "file:///")
}

// =============================================================================
// LOCATION NORMALIZATION
// =============================================================================

// NormalizeLink converts a LocationLink to a Location.
//
// The target selection range names the symbol itself and is preferred over
// the enclosing target range.
func NormalizeLink(link LocationLink) Location {
	return Location{URI: link.TargetURI, Range: link.TargetSelectionRange}
}

// rawLocation decodes either wire shape of a location list element.
type rawLocation struct {
	URI                  string `json:"uri"`
	Range                Range  `json:"range"`
	TargetURI            string `json:"targetUri"`
	TargetSelectionRange Range  `json:"targetSelectionRange"`
}

func (r rawLocation) location() Location {
	if r.TargetURI != "" {
		return NormalizeLink(LocationLink{
			TargetURI:            r.TargetURI,
			TargetSelectionRange: r.TargetSelectionRange,
		})
	}
	return Location{URI: r.URI, Range: r.Range}
}

// ParseLocationList parses the result of a location-list request.
//
// Description:
//
//	Accepts null, a single Location, an array of Locations, or an array
//	of LocationLinks (a single LocationLink is accepted as well). Links
//	are normalized with NormalizeLink. Non-file URIs are kept; use
//	FilterLocal to drop them.
//
// Outputs:
//
//	[]Location - Locations in reply order, empty for null input
//	error - ErrInvalidResponse if data is not a location list
func ParseLocationList(data json.RawMessage) ([]Location, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	if data[0] == '[' {
		var raws []rawLocation
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		locations := make([]Location, 0, len(raws))
		for _, raw := range raws {
			locations = append(locations, raw.location())
		}
		return locations, nil
	}

	var raw rawLocation
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if raw.URI == "" && raw.TargetURI == "" {
		return nil, fmt.Errorf("%w: object without uri", ErrInvalidResponse)
	}
	return []Location{raw.location()}, nil
}

// FilterLocal drops locations that do not address a local file.
//
// Other schemes (jdt://, untitled:, ...) cannot be resolved to a line of
// local text and are silently skipped.
func FilterLocal(locations []Location) []Location {
	out := make([]Location, 0, len(locations))
	for _, loc := range locations {
		if IsFileURI(loc.URI) {
			out = append(out, loc)
		}
	}
	return out
}
