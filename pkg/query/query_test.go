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

package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/graphstore"
)

func openTestStore(t *testing.T) *graphstore.Store {
	t.Helper()
	s, err := graphstore.Open(graphstore.Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func node(id, qname string, kind core.Kind, public bool) core.Node {
	now := time.Now().UTC()
	return core.Node{
		ID: id, Kind: kind, Label: qname, QualifiedName: qname, Language: core.LangGo,
		Location:    core.Location{FilePath: "pkg/a.go", StartLine: 1, EndLine: 2},
		ContentHash: "deadbeef",
		Properties:  map[string]core.Value{PublicProperty: public},
		Version:     1, CreatedAt: now, UpdatedAt: now,
	}
}

func putEdge(t *testing.T, s *graphstore.Store, from, to string, kind core.EdgeKind) {
	t.Helper()
	require.NoError(t, s.PutEdge(context.Background(), core.Edge{
		ID: core.NewEdgeID(from, to, kind), From: from, To: to, Kind: kind, Weight: core.DefaultWeight,
	}))
}

func TestEngineGetSubgraph(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := New(s, nil, nil, nil)

	root := node("root", "pkg.Root", core.KindFile, false)
	child := node("child", "pkg.Child", core.KindClass, false)
	require.NoError(t, s.PutNode(ctx, root))
	require.NoError(t, s.PutNode(ctx, child))
	putEdge(t, s, "root", "child", core.EdgeContains)

	sg, err := e.GetSubgraph(ctx, "root", 1, nil)
	require.NoError(t, err)
	assert.Len(t, sg.Nodes, 2)
	assert.Len(t, sg.Edges, 1)
	assert.False(t, sg.Truncated)
}

func TestEngineTransitiveAndReverseDependencies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := New(s, nil, nil, nil)

	a := node("a", "pkg.A", core.KindFunction, false)
	b := node("b", "pkg.B", core.KindFunction, false)
	c := node("c", "pkg.C", core.KindFunction, false)
	for _, n := range []core.Node{a, b, c} {
		require.NoError(t, s.PutNode(ctx, n))
	}
	putEdge(t, s, "a", "b", core.EdgeDependsOn)
	putEdge(t, s, "b", "c", core.EdgeDependsOn)

	trans, err := e.TransitiveDependencies(ctx, "a", 2)
	require.NoError(t, err)
	ids := nodeIDs(trans.Nodes)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
	assert.False(t, trans.Truncated)

	rev, err := e.ReverseDependencies(ctx, "c", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, nodeIDs(rev.Nodes))
}

func TestEngineCallChainFindsShortestPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := New(s, nil, nil, nil)

	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.PutNode(ctx, node(id, "pkg."+id, core.KindFunction, false)))
	}
	putEdge(t, s, "a", "b", core.EdgeCalls)
	putEdge(t, s, "b", "d", core.EdgeCalls)
	putEdge(t, s, "a", "c", core.EdgeCalls)
	putEdge(t, s, "c", "d", core.EdgeCalls)

	path, err := e.CallChain(ctx, "a", "d", 5)
	require.NoError(t, err)
	require.Len(t, path, 3)
	assert.Equal(t, "a", path[0])
	assert.Equal(t, "d", path[2])
	assert.Equal(t, "b", path[1]) // lexicographic tie-break over "b" vs "c"
}

func TestEngineCallChainNoPath(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := New(s, nil, nil, nil)

	require.NoError(t, s.PutNode(ctx, node("a", "pkg.a", core.KindFunction, false)))
	require.NoError(t, s.PutNode(ctx, node("b", "pkg.b", core.KindFunction, false)))

	path, err := e.CallChain(ctx, "a", "b", 3)
	require.NoError(t, err)
	assert.Nil(t, path)
}

func TestEngineAPISurfaceFiltersToPublic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	e := New(s, nil, nil, nil)

	module := node("mod", "pkg", core.KindModule, false)
	pub := node("pub", "pkg.Pub", core.KindFunction, true)
	priv := node("priv", "pkg.priv", core.KindFunction, false)
	for _, n := range []core.Node{module, pub, priv} {
		require.NoError(t, s.PutNode(ctx, n))
	}
	putEdge(t, s, "mod", "pub", core.EdgeDeclares)
	putEdge(t, s, "mod", "priv", core.EdgeDeclares)

	surface, err := e.APISurface(ctx, "mod")
	require.NoError(t, err)
	require.Len(t, surface, 1)
	assert.Equal(t, "pub", surface[0].ID)
}

func nodeIDs(nodes []core.Node) []string {
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
