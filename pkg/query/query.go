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

// Package query implements C9, the read surface over the graph and vector
// index: semantic search, subgraph extraction, reverse/transitive
// dependency walks, call-chain discovery, and API surface listing. It
// replaces pkg/tools, which drove the same five shapes of
// question through a CozoDB Datalog client (Querier.Query(ctx, script));
// here every operation is a direct call into graphstore.Store and
// vectorindex.Index instead of a generated query string, but the result
// shapes (ranked hits, bounded subgraphs, truncation flags) are the ones
// pkg/tools/semantic.go and pkg/tools/trace.go already established.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/vectorindex"
)

// Defaults for the query surface, per spec.md §6: "default_k (default 10),
// max_depth (default 5), node_budget (default 10_000)".
const (
	DefaultK         = 10
	DefaultMaxDepth  = 5
	DefaultNodeBudget = 10_000
)

// Engine answers every C9 operation against a graph store, a vector index,
// and an embedding client, the three components every operation below
// composes.
type Engine struct {
	store    *graphstore.Store
	index    vectorindex.Index
	embedder *embedding.Client
	logger   *slog.Logger
}

// New builds an Engine. A nil logger defaults to slog.Default().
func New(store *graphstore.Store, index vectorindex.Index, embedder *embedding.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, index: index, embedder: embedder, logger: logger}
}

// Hit is one semantic_search result: a hydrated node plus its similarity
// score, non-increasing across the returned slice.
type Hit struct {
	Node  core.Node
	Score float32
}

// SemanticSearchOptions narrows a search the way pkg/tools' own
// SemanticSearchArgs did (role/path filters), minus the CozoDB-specific
// formatting concerns that lived alongside it.
type SemanticSearchOptions struct {
	K      int
	Filter vectorindex.Filter
}

// SemanticSearch implements "semantic_search(text, k, filter?) -> nodes with
// scores" (spec.md §4.8): embed the query via C2, search C4, hydrate node
// payloads via C5. Scores are cosine similarities in [-1, 1] and the
// returned slice is ordered by score, non-increasing (spec.md §8 testable
// property 5).
func (e *Engine) SemanticSearch(ctx context.Context, text string, opts SemanticSearchOptions) ([]Hit, error) {
	if opts.K <= 0 {
		opts.K = DefaultK
	}

	results, err := e.embedder.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("semantic_search embed query: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("semantic_search: no embedding returned for query")
	}

	matches, err := e.index.Search(results[0].Vector, opts.K, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("semantic_search index search: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.NodeID
	}
	nodes, err := e.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("semantic_search hydrate nodes: %w", err)
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		n := nodes[m.NodeID]
		if n == nil {
			continue // embedding outlived its node (delete_node missed the index entry); skip rather than fail the whole search.
		}
		hits = append(hits, Hit{Node: *n, Score: m.Score})
	}
	return hits, nil
}

// Subgraph is the (nodes, edges) pair get_subgraph and the dependency walks
// return, plus the truncation flag spec.md §4.8 requires of the
// budget-bounded operations.
type Subgraph struct {
	Nodes     []core.Node
	Edges     []core.Edge
	Truncated bool
}

// GetSubgraph implements "get_subgraph(root_id, depth, filter?) -> (nodes,
// edges)" (spec.md §4.8) directly on top of graphstore.Store.Subgraph, which
// already performs the deterministic BFS this operation needs.
func (e *Engine) GetSubgraph(ctx context.Context, rootID string, depth int, filter graphstore.Filter) (*Subgraph, error) {
	if depth <= 0 {
		depth = DefaultMaxDepth
	}
	nodes, edges, err := e.store.Subgraph(ctx, rootID, depth, filter)
	if err != nil {
		return nil, err
	}
	return &Subgraph{Nodes: nodes, Edges: edges}, nil
}

// ReverseDependencies implements "reverse_dependencies(node_id, depth)"
// (spec.md §4.8): a budget-bounded BFS against the adj_in CF, returning
// every node that (transitively) depends on node_id.
func (e *Engine) ReverseDependencies(ctx context.Context, nodeID string, depth int) (*Subgraph, error) {
	return e.dependencyWalk(ctx, nodeID, depth, graphstore.DirectionIn)
}

// TransitiveDependencies implements "transitive_dependencies(node_id,
// depth)" (spec.md §4.8): the same walk against adj_out, returning every
// node node_id (transitively) depends on.
func (e *Engine) TransitiveDependencies(ctx context.Context, nodeID string, depth int) (*Subgraph, error) {
	return e.dependencyWalk(ctx, nodeID, depth, graphstore.DirectionOut)
}

// dependencyWalk is the shared bounded-BFS body behind both dependency
// directions: "worst-case bounded by depth and a per-query node budget;
// exceeding the budget returns a partial result flagged truncated = true"
// (spec.md §4.8).
func (e *Engine) dependencyWalk(ctx context.Context, nodeID string, depth int, dir graphstore.Direction) (*Subgraph, error) {
	if depth <= 0 {
		depth = DefaultMaxDepth
	}

	visited := map[string]bool{nodeID: true}
	frontier := []string{nodeID}
	var edges []core.Edge
	seenEdge := map[string]bool{}
	truncated := false

	for d := 0; d < depth && len(frontier) > 0 && !truncated; d++ {
		var next []string
		for _, id := range frontier {
			nbs, err := e.store.Neighbors(ctx, id, dir, "")
			if err != nil {
				return nil, err
			}
			sort.Slice(nbs, func(i, j int) bool {
				if nbs[i].Kind != nbs[j].Kind {
					return nbs[i].Kind < nbs[j].Kind
				}
				return nbs[i].NodeID < nbs[j].NodeID
			})
			for _, nb := range nbs {
				from, to := id, nb.NodeID
				if dir == graphstore.DirectionIn {
					from, to = nb.NodeID, id
				}
				edgeID := core.NewEdgeID(from, to, nb.Kind)
				if !seenEdge[edgeID] {
					seenEdge[edgeID] = true
					edges = append(edges, core.Edge{ID: edgeID, From: from, To: to, Kind: nb.Kind, Weight: core.DefaultWeight})
				}
				if visited[nb.NodeID] {
					continue
				}
				if len(visited) >= DefaultNodeBudget {
					truncated = true
					break
				}
				visited[nb.NodeID] = true
				next = append(next, nb.NodeID)
			}
			if truncated {
				break
			}
		}
		frontier = next
	}

	ids := make([]string, 0, len(visited))
	for id := range visited {
		ids = append(ids, id)
	}
	hydrated, err := e.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}
	nodes := make([]core.Node, 0, len(ids))
	for _, id := range ids {
		if n := hydrated[id]; n != nil {
			nodes = append(nodes, *n)
		}
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	return &Subgraph{Nodes: nodes, Edges: edges, Truncated: truncated}, nil
}
