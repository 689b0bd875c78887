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
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/codegraph/pkg/core"
)

// walkState carries the per-file mutable state the generic visitor threads
// through its single pre-order pass: the enclosing-entity stack (so every
// new entity can emit a Contains edge from whatever currently encloses it),
// plus the accumulated output.
type walkState struct {
	repositoryID string
	filePath     string
	lang         core.Language
	grammar      languageGrammar
	content      []byte

	stack   []string // stack of enclosing node ids, innermost last
	anonSeq int

	result        ExtractionResult
	containsEdges []containsEdge
}

func (w *walkState) top() string {
	if len(w.stack) == 0 {
		return ""
	}
	return w.stack[len(w.stack)-1]
}

// containsEdge is a concrete Contains edge: both endpoints are always known
// the moment an entity is emitted, so unlike Calls/Uses it never needs the
// indexer's cross-file resolution pass.
type containsEdge struct{ From, To string }

// walk runs the single pre-order traversal described in spec.md §4.1: it
// walks the whole tree once, pushing an enclosing-entity id whenever it
// enters an entity production and popping it on the way back out, emitting
// Contains edges eagerly and abstract Calls/Uses edges for every call-shaped
// node it passes.
func walk(root *sitter.Node, st *walkState) {
	walkNode(root, st)
}

func walkNode(n *sitter.Node, st *walkState) {
	if n == nil {
		return
	}

	if n.IsError() {
		st.result.PartialParse = true
	}

	typ := n.Type()

	if spec, ok := matchProduction(st.grammar.Productions, typ); ok {
		node, pushed := buildEntityNode(n, st, spec)
		if node != nil {
			emitNode(st, *node)
		}
		if pushed {
			st.stack = append(st.stack, node.ID)
			walkChildren(n, st)
			st.stack = st.stack[:len(st.stack)-1]
			return
		}
		walkChildren(n, st)
		return
	}

	if spec, ok := matchProduction(st.grammar.ImportSpecs, typ); ok {
		if imp := buildImportNode(n, st, spec); imp != nil {
			emitNode(st, *imp)
		}
		walkChildren(n, st)
		return
	}

	if st.grammar.CallNodeType != "" && typ == st.grammar.CallNodeType {
		if isImportCall(n, st) {
			if imp := buildImportNode(n, st, productionSpec{Role: roleImport}); imp != nil {
				emitNode(st, *imp)
			}
		} else {
			emitCallEdge(n, st)
		}
	}

	walkChildren(n, st)
}

// emitNode appends a fully-formed entity node and, if something currently
// encloses it, records a Contains edge from that enclosing node.
func emitNode(st *walkState, n core.Node) {
	st.result.Nodes = append(st.result.Nodes, n)
	if parent := st.top(); parent != "" {
		st.containsEdges = append(st.containsEdges, containsEdge{From: parent, To: n.ID})
	}
}

func walkChildren(n *sitter.Node, st *walkState) {
	count := int(n.NamedChildCount())
	for i := 0; i < count; i++ {
		walkNode(n.NamedChild(i), st)
	}
}

func matchProduction(specs []productionSpec, nodeType string) (productionSpec, bool) {
	for _, s := range specs {
		if s.NodeType == nodeType {
			return s, true
		}
	}
	return productionSpec{}, false
}

func nameFromNode(n *sitter.Node, content []byte, spec productionSpec) string {
	if spec.NameField != "" {
		if id := n.ChildByFieldName(spec.NameField); id != nil {
			return id.Content(content)
		}
	}
	for _, f := range spec.NameFields {
		if id := n.ChildByFieldName(f); id != nil {
			return id.Content(content)
		}
	}
	return ""
}

func kindForRole(role entityRole) core.Kind {
	switch role {
	case roleModule:
		return core.KindModule
	case roleClass:
		return core.KindClass
	case roleFunction:
		return core.KindFunction
	case roleMethod:
		return core.KindMethod
	case roleVariable:
		return core.KindVariable
	default:
		return core.KindVariable
	}
}

func buildEntityNode(n *sitter.Node, st *walkState, spec productionSpec) (*core.Node, bool) {
	name := nameFromNode(n, st.content, spec)
	if name == "" {
		st.anonSeq++
		name = anonName(spec.Role, st.anonSeq)
	}

	qualified := name
	if spec.Role == roleMethod && spec.ReceiverField != "" {
		if recv := n.ChildByFieldName(spec.ReceiverField); recv != nil {
			qualified = strings.TrimSpace(recv.Content(st.content)) + "." + name
		}
	} else if len(st.stack) > 0 {
		// Nested entities keep their bare name as the qualified name: the
		// stack holds ids, not labels, so no enclosing label is prepended
		// here. Same-name entities in different files still get distinct
		// ids, because the node id includes the file path.
		qualified = name
	}

	start := int(n.StartByte())
	end := int(n.EndByte())
	id := core.NewNodeID(st.repositoryID, st.filePath, qualified, kindForRole(spec.Role), start)

	node := core.Node{
		ID:            id,
		Kind:          kindForRole(spec.Role),
		Label:         name,
		QualifiedName: qualified,
		Language:      st.lang,
		Location: core.Location{
			FilePath:  st.filePath,
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			StartByte: start,
			EndByte:   end,
		},
		ContentHash: core.ContentHash([]byte(n.Content(st.content))),
		Properties:  map[string]core.Value{},
	}
	return &node, true
}

func buildImportNode(n *sitter.Node, st *walkState, spec productionSpec) *core.Node {
	text := strings.TrimSpace(n.Content(st.content))
	if text == "" {
		return nil
	}
	start := int(n.StartByte())
	id := core.NewNodeID(st.repositoryID, st.filePath, text, core.KindImport, start)
	node := core.Node{
		ID:            id,
		Kind:          core.KindImport,
		Label:         text,
		QualifiedName: text,
		Language:      st.lang,
		Location: core.Location{
			FilePath:  st.filePath,
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
			StartByte: start,
			EndByte:   int(n.EndByte()),
		},
		ContentHash: core.ContentHash([]byte(text)),
		Properties:  map[string]core.Value{},
	}
	return &node
}

// emitCallEdge records an abstract Calls edge from whatever function/method
// currently encloses the call site to the callee's unqualified name.
// Resolution to a concrete (from, to) edge is the indexer's job (spec.md
// §4.1: "resolution is the indexer's job").
func emitCallEdge(n *sitter.Node, st *walkState) {
	caller := st.top()
	if caller == "" {
		return
	}
	callee := n.ChildByFieldName(st.grammar.CalleeField)
	if callee == nil {
		return
	}
	target := strings.TrimSpace(callee.Content(st.content))
	if target == "" {
		return
	}
	st.result.AbstractEdges = append(st.result.AbstractEdges, AbstractEdge{
		FromNodeID:         caller,
		TargetName:         target,
		TargetLanguageHint: st.lang,
		Kind:               core.EdgeCalls,
		ScopeFile:          st.filePath,
	})
}

// isImportCall reports whether a call-shaped node is actually an import
// statement in disguise (Ruby's require/require_relative), per the
// grammar's ImportCallNames set.
func isImportCall(n *sitter.Node, st *walkState) bool {
	if len(st.grammar.ImportCallNames) == 0 {
		return false
	}
	callee := n.ChildByFieldName(st.grammar.CalleeField)
	if callee == nil {
		return false
	}
	return st.grammar.ImportCallNames[strings.TrimSpace(callee.Content(st.content))]
}

func anonName(role entityRole, seq int) string {
	switch role {
	case roleFunction:
		return "anonymous_func_" + strconv.Itoa(seq)
	default:
		return "anonymous_" + strconv.Itoa(seq)
	}
}
