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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/parser"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscoverFindsSupportedFilesLargestFirst(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.go", "package a")
	writeFile(t, root, "big.go", "package a\n\nfunc Big() {}\n// padding padding padding padding")
	writeFile(t, root, "README.md", "not source")
	writeFile(t, root, "vendor/dep.go", "package dep")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main")

	files, err := Discover(DiscoverOptions{Root: root})
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, f.RelPath)
	}
	assert.Equal(t, []string{"big.go", "small.go"}, names)
}

func TestDiscoverHonorsExcludeGlobs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "src/main_test.go", "package main")

	files, err := Discover(DiscoverOptions{Root: root, ExcludeGlobs: []string{"*_test.go"}})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "src/main.go", files[0].RelPath)
}

func TestDiscoverSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "huge.go", "package a\n"+string(make([]byte, 100)))

	files, err := Discover(DiscoverOptions{Root: root, MaxFileSize: 16})
	require.NoError(t, err)
	assert.Empty(t, files)
}

func testNode(id, qname, file string, kind core.Kind) core.Node {
	return core.Node{ID: id, QualifiedName: qname, Kind: kind, Location: core.Location{FilePath: file}}
}

func TestResolveAbstractEdgesPrefersSameFileThenQualifiedName(t *testing.T) {
	nodes := []core.Node{
		testNode("callee-same-file", "pkg.Helper", "a.go", core.KindFunction),
		testNode("callee-other-file", "other.Helper", "b.go", core.KindFunction),
		testNode("caller", "pkg.Caller", "a.go", core.KindFunction),
	}
	abstract := []parser.AbstractEdge{
		{FromNodeID: "caller", TargetName: "Helper", Kind: core.EdgeCalls, ScopeFile: "a.go"},
	}

	edges, unresolved := resolveAbstractEdges("repo", nodes, abstract)
	assert.Equal(t, 0, unresolved)
	require.Len(t, edges, 1)
	assert.Equal(t, "caller", edges[0].From)
	assert.Equal(t, "callee-same-file", edges[0].To)
	assert.Equal(t, core.EdgeCalls, edges[0].Kind)
}

func TestResolveAbstractEdgesLeavesAmbiguousTargetsUnresolved(t *testing.T) {
	nodes := []core.Node{
		testNode("n1", "pkg1.Ambiguous", "a.go", core.KindFunction),
		testNode("n2", "pkg2.Ambiguous", "b.go", core.KindFunction),
		testNode("caller", "pkg.Caller", "c.go", core.KindFunction),
	}
	abstract := []parser.AbstractEdge{
		{FromNodeID: "caller", TargetName: "Ambiguous", Kind: core.EdgeCalls, ScopeFile: "c.go"},
	}

	edges, unresolved := resolveAbstractEdges("repo", nodes, abstract)
	assert.Equal(t, 1, unresolved)
	assert.Empty(t, edges)
}

func TestResolveAbstractEdgesMatchesQualifiedNameAcrossFiles(t *testing.T) {
	nodes := []core.Node{
		testNode("n1", "pkg.Unique", "a.go", core.KindFunction),
		testNode("caller", "other.Caller", "b.go", core.KindFunction),
	}
	abstract := []parser.AbstractEdge{
		{FromNodeID: "caller", TargetName: "pkg.Unique", Kind: core.EdgeUses, ScopeFile: "b.go"},
	}

	edges, unresolved := resolveAbstractEdges("repo", nodes, abstract)
	assert.Equal(t, 0, unresolved)
	require.Len(t, edges, 1)
	assert.Equal(t, "n1", edges[0].To)
}

func TestMergeNodeSetsOverlayWins(t *testing.T) {
	base := []core.Node{testNode("x", "pkg.X", "a.go", core.KindFunction)}
	overlay := []core.Node{{ID: "x", QualifiedName: "pkg.XRenamed", Kind: core.KindFunction, Location: core.Location{FilePath: "a.go"}}}

	merged := mergeNodeSets(base, overlay)
	require.Len(t, merged, 1)
	assert.Equal(t, "pkg.XRenamed", merged[0].QualifiedName)
}
