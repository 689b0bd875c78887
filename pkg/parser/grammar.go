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

package parser

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/csharp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/php"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/swift"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/codegraph/pkg/core"
)

// entityRole says what a matched node production becomes.
type entityRole int

const (
	roleModule entityRole = iota
	roleClass
	roleFunction
	roleMethod
	roleVariable
	roleImport
)

// productionSpec describes one Tree-sitter node type that should become an
// entity, and how to pull its name/fields out of the concrete syntax tree.
// This generalizes the per-language extractGoFunctionDeclaration/
// extractGoTypeSpec/... family: instead of one
// Go function per node type per language, a table drives one shared walker.
type productionSpec struct {
	NodeType    string
	Role        entityRole
	NameField   string   // ChildByFieldName name carrying the identifier, "" if NameFields used
	NameFields  []string // tried in order when a node has more than one naming shape
	BodyField   string   // field whose subtree is walked for nested entities/calls
	ReceiverField string // for methods: field carrying the receiver/self type (Go, Python's self is implicit)
}

// languageGrammar bundles a Tree-sitter grammar with the production table
// that tells the generic visitor how to read it.
type languageGrammar struct {
	Language     *sitter.Language
	Productions  []productionSpec
	CallNodeType string   // node type representing a call expression
	CalleeField  string   // field on the call node naming the callee
	ImportSpecs  []productionSpec
	// ImportCallNames names callee identifiers that make a call-shaped node
	// an import instead of a Calls edge (Ruby's require/require_relative are
	// ordinary `call` nodes, not a dedicated import production).
	ImportCallNames map[string]bool
}

var grammars = map[core.Language]languageGrammar{
	core.LangGo: {
		Language: golang.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_declaration", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "method_declaration", Role: roleMethod, NameField: "name", BodyField: "body", ReceiverField: "receiver"},
			{NodeType: "type_spec", Role: roleClass, NameField: "name", BodyField: "type"},
			{NodeType: "func_literal", Role: roleFunction, BodyField: "body"},
			{NodeType: "var_spec", Role: roleVariable, NameField: "name"},
			{NodeType: "const_spec", Role: roleVariable, NameField: "name"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "import_spec", Role: roleImport, NameFields: []string{"name", "path"}},
		},
	},
	core.LangPython: {
		Language: python.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_definition", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "class_definition", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "call",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "import_statement", Role: roleImport},
			{NodeType: "import_from_statement", Role: roleImport},
		},
	},
	core.LangTypeScript: {
		Language: typescript.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_declaration", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "method_definition", Role: roleMethod, NameField: "name", BodyField: "body"},
			{NodeType: "class_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
			{NodeType: "interface_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "import_statement", Role: roleImport},
		},
	},
	core.LangJavaScript: {
		Language: javascript.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_declaration", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "method_definition", Role: roleMethod, NameField: "name", BodyField: "body"},
			{NodeType: "class_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "import_statement", Role: roleImport},
		},
	},
	core.LangJava: {
		Language: java.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "method_declaration", Role: roleMethod, NameField: "name", BodyField: "body"},
			{NodeType: "class_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
			{NodeType: "interface_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "method_invocation",
		CalleeField:  "name",
		ImportSpecs: []productionSpec{
			{NodeType: "import_declaration", Role: roleImport},
		},
	},
	core.LangC: {
		Language: c.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_definition", Role: roleFunction, BodyField: "body"},
			{NodeType: "struct_specifier", Role: roleClass, NameField: "name"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "preproc_include", Role: roleImport},
		},
	},
	core.LangCPP: {
		Language: cpp.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_definition", Role: roleFunction, BodyField: "body"},
			{NodeType: "class_specifier", Role: roleClass, NameField: "name"},
			{NodeType: "struct_specifier", Role: roleClass, NameField: "name"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "preproc_include", Role: roleImport},
		},
	},
	core.LangRust: {
		Language: rust.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_item", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "impl_item", Role: roleClass, NameField: "type", BodyField: "body"},
			{NodeType: "struct_item", Role: roleClass, NameField: "name"},
			{NodeType: "trait_item", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "use_declaration", Role: roleImport},
		},
	},
	core.LangSwift: {
		Language: swift.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_declaration", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "class_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "import_declaration", Role: roleImport},
		},
	},
	core.LangCSharp: {
		Language: csharp.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "method_declaration", Role: roleMethod, NameField: "name", BodyField: "body"},
			{NodeType: "class_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
			{NodeType: "interface_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "invocation_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "using_directive", Role: roleImport},
		},
	},
	core.LangRuby: {
		Language: ruby.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "method", Role: roleMethod, NameField: "name", BodyField: "body"},
			{NodeType: "class", Role: roleClass, NameField: "name", BodyField: "body"},
			{NodeType: "module", Role: roleModule, NameField: "name", BodyField: "body"},
		},
		CallNodeType:    "call",
		CalleeField:     "method",
		ImportCallNames: map[string]bool{"require": true, "require_relative": true},
	},
	core.LangPHP: {
		Language: php.GetLanguage(),
		Productions: []productionSpec{
			{NodeType: "function_definition", Role: roleFunction, NameField: "name", BodyField: "body"},
			{NodeType: "method_declaration", Role: roleMethod, NameField: "name", BodyField: "body"},
			{NodeType: "class_declaration", Role: roleClass, NameField: "name", BodyField: "body"},
		},
		CallNodeType: "function_call_expression",
		CalleeField:  "function",
		ImportSpecs: []productionSpec{
			{NodeType: "namespace_use_declaration", Role: roleImport},
		},
	},
}

// grammarFor returns the registered grammar for a language, and whether one
// exists.
func grammarFor(lang core.Language) (languageGrammar, bool) {
	g, ok := grammars[lang]
	return g, ok
}
