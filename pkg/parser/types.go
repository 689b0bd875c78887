// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package parser runs Tree-sitter grammars over source files and emits, in a
// single AST pass, both structural entities and the relations between them.
// It descends from the per-language parser_go.go/parser_typescript.go
// walkers in kraklabs/cie, generalized behind one
// table-driven visitor (see visitor.go) so the same walk handles all twelve
// languages spec.md §6 names instead of one hand-written walker per
// language.
package parser

import (
	"github.com/kraklabs/codegraph/pkg/core"
)

// AbstractEdge is an unresolved relation emitted by the parser before
// cross-file resolution: it names its target by qualified-name-ish text plus
// a scope hint, and the indexer's resolve stage turns it into a concrete
// core.Edge once the whole repository's symbol table exists.
type AbstractEdge struct {
	FromNodeID        string
	TargetName        string // unqualified or dotted name as written at the call site
	TargetLanguageHint core.Language
	Kind              core.EdgeKind
	// ScopeFile is the file the reference was seen in, used to prefer
	// same-file/same-package resolution over a same-named symbol elsewhere.
	ScopeFile string
}

// DiagnosticSeverity classifies a parse diagnostic.
type DiagnosticSeverity string

const (
	SeverityWarning DiagnosticSeverity = "warning"
	SeverityError   DiagnosticSeverity = "error"
)

// Diagnostic reports a non-fatal condition encountered while parsing a file
// (syntax errors Tree-sitter recovered from, an oversized file that was
// skipped, and so on). Diagnostics never abort the indexer.
type Diagnostic struct {
	Severity DiagnosticSeverity
	Code     string // e.g. "partial_parse", "oversized_file"
	Message  string
	Line     int
}

// ExtractionResult is everything parse() produces for one file.
type ExtractionResult struct {
	FilePath string
	Language core.Language
	Nodes    []core.Node
	// Edges holds the Contains edges the walk emits eagerly: both endpoints
	// are known the instant an entity node is created, so these never need
	// the indexer's cross-file resolution pass the way AbstractEdges do.
	Edges         []core.Edge
	AbstractEdges []AbstractEdge
	Diagnostics   []Diagnostic
	// PartialParse is true when the file had Tree-sitter ERROR nodes but
	// entities around them were still extracted (spec.md §4.1).
	PartialParse bool
}
