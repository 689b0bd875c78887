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

package indexer

import (
	"sort"
	"strings"

	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/parser"
)

// symbolTable indexes every node discovered in one run by the names a
// reference might use to find it, generalizing the pkg/ingestion/resolver.go
// symbol table (which only ever needed to resolve
// Go package-qualified calls) to a language-agnostic
// TargetName+ScopeFile contract: an AbstractEdge's target is resolved
// first against symbols declared in the same file, then against symbols
// anywhere in the repository with a matching qualified or unqualified name.
type symbolTable struct {
	byQualifiedName map[string][]core.Node
	byFileAndName   map[string][]core.Node // key: file + "\x00" + unqualified name
	byUnqualified   map[string][]core.Node
}

func buildSymbolTable(nodes []core.Node) *symbolTable {
	st := &symbolTable{
		byQualifiedName: make(map[string][]core.Node),
		byFileAndName:   make(map[string][]core.Node),
		byUnqualified:   make(map[string][]core.Node),
	}
	for _, n := range nodes {
		if n.Kind != core.KindFunction && n.Kind != core.KindMethod && n.Kind != core.KindClass && n.Kind != core.KindModule {
			continue
		}
		st.byQualifiedName[n.QualifiedName] = append(st.byQualifiedName[n.QualifiedName], n)

		unqualified := unqualifiedName(n.QualifiedName)
		st.byUnqualified[unqualified] = append(st.byUnqualified[unqualified], n)
		st.byFileAndName[n.Location.FilePath+"\x00"+unqualified] = append(st.byFileAndName[n.Location.FilePath+"\x00"+unqualified], n)
	}
	return st
}

func unqualifiedName(qualifiedName string) string {
	if i := strings.LastIndexAny(qualifiedName, ".:/"); i >= 0 {
		return qualifiedName[i+1:]
	}
	return qualifiedName
}

// resolve looks up an AbstractEdge's target, preferring a same-file
// declaration, then a unique repository-wide match on qualified name, then
// a unique repository-wide match on unqualified name. An ambiguous or
// missing target resolves to nil, which the caller counts as unresolved
// rather than guessing (spec.md §4.1: "a call that cannot be resolved to
// exactly one candidate is left unresolved, never wired to an arbitrary
// guess").
func (st *symbolTable) resolve(e parser.AbstractEdge) *core.Node {
	if hit := uniqueMatch(st.byFileAndName[e.ScopeFile+"\x00"+e.TargetName]); hit != nil {
		return hit
	}
	if hit := uniqueMatch(st.byQualifiedName[e.TargetName]); hit != nil {
		return hit
	}
	if hit := uniqueMatch(st.byUnqualified[unqualifiedName(e.TargetName)]); hit != nil {
		return hit
	}
	return nil
}

func uniqueMatch(candidates []core.Node) *core.Node {
	if len(candidates) != 1 {
		return nil
	}
	return &candidates[0]
}

// resolveAbstractEdges turns every AbstractEdge into a concrete core.Edge
// once the whole repository's entities are known, returning the resolved
// edges plus a count of references that could not be resolved to exactly
// one target.
func resolveAbstractEdges(repositoryID string, nodes []core.Node, abstract []parser.AbstractEdge) ([]core.Edge, int) {
	st := buildSymbolTable(nodes)

	var edges []core.Edge
	unresolved := 0
	for _, ae := range abstract {
		target := st.resolve(ae)
		if target == nil {
			unresolved++
			continue
		}
		edges = append(edges, core.Edge{
			ID:     core.NewEdgeID(ae.FromNodeID, target.ID, ae.Kind),
			From:   ae.FromNodeID,
			To:     target.ID,
			Kind:   ae.Kind,
			Weight: core.DefaultWeight,
		})
	}

	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, unresolved
}
