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

package graphstore

import (
	"context"
	"testing"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testNode(id, qname string, kind core.Kind) core.Node {
	now := time.Now().UTC()
	return core.Node{
		ID:            id,
		Kind:          kind,
		Label:         qname,
		QualifiedName: qname,
		Language:      core.LangGo,
		Location:      core.Location{FilePath: "pkg/a.go", StartLine: 1, EndLine: 2},
		ContentHash:   "deadbeef",
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestStorePutGetNode(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n := testNode("node-a", "pkg.A", core.KindClass)
	require.NoError(t, s.PutNode(ctx, n))

	got, err := s.GetNode(ctx, "node-a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n.QualifiedName, got.QualifiedName)
	assert.Equal(t, n.Kind, got.Kind)
}

func TestStoreGetNodeMissing(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetNode(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStoreConcurrentGetNodeCoalesces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.PutNode(ctx, testNode(string(rune('a'+i)), "pkg.N", core.KindFunction)))
	}

	results := make(chan *core.Node, 10)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		go func() {
			n, err := s.GetNode(ctx, id)
			require.NoError(t, err)
			results <- n
		}()
	}
	for i := 0; i < 10; i++ {
		n := <-results
		require.NotNil(t, n)
	}
}

func TestStorePutEdgeAndNeighbors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testNode("a", "pkg.A", core.KindClass)
	b := testNode("b", "pkg.B", core.KindMethod)
	require.NoError(t, s.PutNode(ctx, a))
	require.NoError(t, s.PutNode(ctx, b))
	require.NoError(t, s.PutEdge(ctx, core.Edge{ID: core.NewEdgeID("a", "b", core.EdgeContains), From: "a", To: "b", Kind: core.EdgeContains}))

	out, err := s.Neighbors(ctx, "a", DirectionOut, core.EdgeContains)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].NodeID)

	in, err := s.Neighbors(ctx, "b", DirectionIn, core.EdgeContains)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "a", in[0].NodeID)
}

func TestStoreDeleteNodeRemovesIncidentEdges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	a := testNode("a", "pkg.A", core.KindClass)
	b := testNode("b", "pkg.B", core.KindMethod)
	require.NoError(t, s.PutNode(ctx, a))
	require.NoError(t, s.PutNode(ctx, b))
	require.NoError(t, s.PutEdge(ctx, core.Edge{ID: core.NewEdgeID("a", "b", core.EdgeContains), From: "a", To: "b", Kind: core.EdgeContains}))

	require.NoError(t, s.DeleteNode(ctx, "a"))

	got, err := s.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	out, err := s.Neighbors(ctx, "a", DirectionOut, "")
	require.NoError(t, err)
	assert.Empty(t, out)

	in, err := s.Neighbors(ctx, "b", DirectionIn, "")
	require.NoError(t, err)
	assert.Empty(t, in)
}

func TestStoreSubgraphBFS(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	nodes := []core.Node{
		testNode("root", "pkg.Root", core.KindFile),
		testNode("mid", "pkg.Mid", core.KindClass),
		testNode("leaf", "pkg.Leaf", core.KindMethod),
	}
	for _, n := range nodes {
		require.NoError(t, s.PutNode(ctx, n))
	}
	require.NoError(t, s.PutEdge(ctx, core.Edge{ID: core.NewEdgeID("root", "mid", core.EdgeContains), From: "root", To: "mid", Kind: core.EdgeContains}))
	require.NoError(t, s.PutEdge(ctx, core.Edge{ID: core.NewEdgeID("mid", "leaf", core.EdgeContains), From: "mid", To: "leaf", Kind: core.EdgeContains}))

	subNodes, subEdges, err := s.Subgraph(ctx, "root", 2, nil)
	require.NoError(t, err)
	assert.Len(t, subNodes, 3)
	assert.Len(t, subEdges, 2)

	shallow, _, err := s.Subgraph(ctx, "root", 1, nil)
	require.NoError(t, err)
	assert.Len(t, shallow, 2)
}

func TestStoreSubgraphFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	root := testNode("root", "pkg.Root", core.KindFile)
	class := testNode("class", "pkg.Class", core.KindClass)
	require.NoError(t, s.PutNode(ctx, root))
	require.NoError(t, s.PutNode(ctx, class))
	require.NoError(t, s.PutEdge(ctx, core.Edge{ID: core.NewEdgeID("root", "class", core.EdgeContains), From: "root", To: "class", Kind: core.EdgeContains}))

	subNodes, _, err := s.Subgraph(ctx, "root", 1, func(n core.Node) bool { return n.Kind != core.KindClass })
	require.NoError(t, err)
	assert.Len(t, subNodes, 1)
}

func TestStoreTransactionRunsWork(t *testing.T) {
	s := openTestStore(t)
	err := s.Transaction(context.Background(), func(txn *badger.Txn) error {
		return txn.Set(metaKey("test_key"), []byte("test_value"))
	})
	require.NoError(t, err)
}
