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

// Package core defines the entities, relations and identifiers shared by
// every other CodeGraph package: the parser emits them, the graph store
// persists them, the vector index embeds them, and the query surface reads
// them back.
package core

import "time"

// Kind identifies the structural role of a Node.
type Kind string

const (
	KindRepository     Kind = "Repository"
	KindDirectory      Kind = "Directory"
	KindFile           Kind = "File"
	KindModule         Kind = "Module"
	KindClass          Kind = "Class"
	KindFunction       Kind = "Function"
	KindMethod         Kind = "Method"
	KindVariable       Kind = "Variable"
	KindImport         Kind = "Import"
	KindAPI            Kind = "Api"
	KindEmbeddingBlock Kind = "EmbeddingBlock"
)

// EdgeKind identifies the semantic relation an Edge carries.
type EdgeKind string

const (
	EdgeContains   EdgeKind = "Contains"
	EdgePartOf     EdgeKind = "PartOf"
	EdgeDeclares   EdgeKind = "Declares"
	EdgeCalls      EdgeKind = "Calls"
	EdgeUses       EdgeKind = "Uses"
	EdgeImports    EdgeKind = "Imports"
	EdgeDependsOn  EdgeKind = "DependsOn"
	EdgeIndexedAs  EdgeKind = "IndexedAs"
	EdgeTaggedWith EdgeKind = "TaggedWith"
	EdgeVersion    EdgeKind = "Version"
)

// Language tags a Node or parser grammar by source language.
type Language string

const (
	LangRust       Language = "rust"
	LangTypeScript Language = "typescript"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
	LangGo         Language = "go"
	LangJava       Language = "java"
	LangC          Language = "c"
	LangCPP        Language = "cpp"
	LangSwift      Language = "swift"
	LangCSharp     Language = "csharp"
	LangRuby       Language = "ruby"
	LangPHP        Language = "php"
	LangUnknown    Language = ""
)

// Location pinpoints a Node within its source file.
type Location struct {
	FilePath  string
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
}

// Value is the dynamic value type carried in a Node/Edge properties map.
// It is intentionally a plain `any` alias: properties are heterogeneous
// (strings, ints, bools, nested maps) the same way CozoDB's Datalog
// rows carried mixed-type columns.
type Value = any

// Node is a structural program entity: a file, a class, a function, ...
//
// Identity is stable across reindexes: NewNodeID derives a deterministic
// UUID from (repositoryID, filePath, qualifiedName, kind, startByte) so the
// same logical entity keeps the same id as long as its declaration site
// doesn't move.
type Node struct {
	ID            string
	Kind          Kind
	Label         string
	QualifiedName string
	Language      Language
	Location      Location
	ContentHash   string // hex-encoded SHA-256 of the source slice
	Properties    map[string]Value
	EmbeddingID   string // empty when no embedding has been generated yet
	Version       uint64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Edge is a directed relation between two Nodes.
type Edge struct {
	ID         string
	From       string
	To         string
	Kind       EdgeKind
	Properties map[string]Value
	Weight     float32
	CreatedAt  time.Time
}

// Embedding is a dense vector associated with exactly one Node.
type Embedding struct {
	ID          string
	NodeID      string
	Vector      []float32
	ModelName   string
	ContentHash string
	Metadata    EmbeddingMetadata
}

// EmbeddingMetadata records where the embedded text came from.
type EmbeddingMetadata struct {
	FilePath   string
	StartLine  int
	EndLine    int
	TokenCount int
}

// DefaultWeight is the default edge weight used when ranking does not override it.
const DefaultWeight float32 = 1.0
