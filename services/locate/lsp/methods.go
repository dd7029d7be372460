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

// Method is a location-list request kind.
type Method string

// Location-list methods. The string value is the suffix of the
// textDocument/* request name.
const (
	MethodDeclaration    Method = "declaration"
	MethodDefinition     Method = "definition"
	MethodImplementation Method = "implementation"
	MethodReferences     Method = "references"
	MethodTypeDefinition Method = "typeDefinition"
)

// Methods lists every supported location-list method.
var Methods = []Method{
	MethodDeclaration,
	MethodDefinition,
	MethodImplementation,
	MethodReferences,
	MethodTypeDefinition,
}

// Valid returns true if m is one of Methods.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// RequestName returns the JSON-RPC method name, e.g. "textDocument/definition".
func (m Method) RequestName() string {
	return "textDocument/" + string(m)
}

// Capability returns the server capability a method requires.
func (m Method) Capability() Capability {
	switch m {
	case MethodDeclaration:
		return CapabilityDeclaration
	case MethodDefinition:
		return CapabilityDefinition
	case MethodImplementation:
		return CapabilityImplementation
	case MethodReferences:
		return CapabilityReferences
	case MethodTypeDefinition:
		return CapabilityTypeDefinition
	}
	return ""
}

// Params builds the request parameters for m.
//
// references additionally asks the server to leave out the declaration
// itself; every other method sends the bare position params.
func (m Method) Params(doc TextDocumentIdentifier, pos Position) interface{} {
	params := TextDocumentPositionParams{TextDocument: doc, Position: pos}
	if m == MethodReferences {
		return ReferenceParams{
			TextDocumentPositionParams: params,
			Context:                    ReferenceContext{IncludeDeclaration: false},
		}
	}
	return params
}

// Capability is a named server feature.
type Capability string

// Capabilities needed by the location-list methods.
const (
	CapabilityDeclaration    Capability = "declarationProvider"
	CapabilityDefinition     Capability = "definitionProvider"
	CapabilityImplementation Capability = "implementationProvider"
	CapabilityReferences     Capability = "referencesProvider"
	CapabilityTypeDefinition Capability = "typeDefinitionProvider"
)
