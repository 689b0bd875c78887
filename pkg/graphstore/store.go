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

// Package graphstore is C5: durable storage of nodes, edges, embedding
// metadata, and the secondary indices the query surface traverses. It
// replaces the CozoDB/Datalog EmbeddedBackend (pkg/storage, pkg/cozodb)
// with github.com/dgraph-io/badger/v4, an embedded ordered
// key-value engine with the same column-family-like key-prefix shape,
// ACID transactions, and a WAL — without the CGO binding CozoDB required
// (see DESIGN.md for the full rationale).
package graphstore

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kraklabs/codegraph/internal/coreerr"
	"github.com/kraklabs/codegraph/pkg/core"
)

// SchemaVersion is bumped whenever the key/record encoding changes in a way
// that requires a migration or a refusal to open an older store.
const SchemaVersion = 1

// Direction selects which adjacency CF a neighbors() scan reads.
type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

// Store is C5's handle: a Badger database plus the read-coalescing and
// adaptive write-batching layers described in spec.md §4.4.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	coal   *coalescer
	batch  *adaptiveBatcher
}

// Options configures Open.
type Options struct {
	Dir    string
	Logger *slog.Logger
	// InMemory runs Badger with no on-disk files, for tests.
	InMemory bool
}

// Open opens (creating if absent) the store at opts.Dir, replays Badger's
// own WAL via its normal open path, and then runs this package's recovery
// pass (schema-version check + adjacency repair scan), per spec.md §4.4.1.
func Open(opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	bopts := badger.DefaultOptions(opts.Dir)
	bopts.Logger = nil // Badger's own logger is noisy at Info; we log at the call sites that matter.
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts.SyncWrites = false // spec.md §4.4: "sync=false for throughput", WAL still durable across clean restarts.

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", coreerr.ErrCorruptStorage, err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}
	s.coal = newCoalescer(s.multiGetNodes)
	s.batch = newAdaptiveBatcher(db, logger)

	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes any pending batch and closes the underlying database.
func (s *Store) Close() error {
	s.batch.stop()
	s.coal.stop()
	return s.db.Close()
}

// GetNode fetches one node, coalescing with other in-flight GetNode calls
// arriving within the same window (spec.md §4.4: "Read coalescing").
func (s *Store) GetNode(ctx context.Context, id string) (*core.Node, error) {
	return s.coal.get(ctx, id)
}

// GetNodes bulk-fetches nodes, issuing one underlying multi-get.
func (s *Store) GetNodes(ctx context.Context, ids []string) (map[string]*core.Node, error) {
	return s.multiGetNodes(ids)
}

func (s *Store) multiGetNodes(ids []string) (map[string]*core.Node, error) {
	out := make(map[string]*core.Node, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			item, err := txn.Get(nodeKey(id))
			if err == badger.ErrKeyNotFound {
				out[id] = nil
				continue
			}
			if err != nil {
				return fmt.Errorf("get node %s: %w", id, err)
			}
			var node core.Node
			if err := item.Value(func(val []byte) error {
				n, decErr := decodeNode(val)
				if decErr != nil {
					return decErr
				}
				node = n
				return nil
			}); err != nil {
				return err
			}
			out[id] = &node
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutNode upserts a node.
func (s *Store) PutNode(ctx context.Context, n core.Node) error {
	data, err := encodeNode(n)
	if err != nil {
		return err
	}
	secondary := []kv{
		{byFileKey(n.Location.FilePath, n.ID), []byte{}},
		{byQNameKey(n.QualifiedName, n.ID), []byte{}},
	}
	return s.batch.submit(ctx, append([]kv{{nodeKey(n.ID), data}}, secondary...), nil)
}

// PutEdge upserts an edge and its adjacency-index rows.
func (s *Store) PutEdge(ctx context.Context, e core.Edge) error {
	data, err := encodeEdge(e)
	if err != nil {
		return err
	}
	writes := []kv{
		{edgeKey(e.ID), data},
		{adjOutKey(e.From, e.Kind, e.To), []byte{}},
		{adjInKey(e.To, e.Kind, e.From), []byte{}},
	}
	return s.batch.submit(ctx, writes, nil)
}

// NodeIDsByFile returns every node id recorded under filePath via the
// by_file secondary index, used by the indexer's incremental mode to find
// what a Deleted or Renamed-away file must fan out a delete to.
func (s *Store) NodeIDsByFile(ctx context.Context, filePath string) ([]string, error) {
	prefix := byFilePrefix(filePath)
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, lastComponent(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return ids, err
}

// AllNodes scans every node in the store. It backs the indexer's
// incremental mode, which needs the full repository-wide symbol table to
// resolve cross-file references even when only a handful of files changed.
func (s *Store) AllNodes(ctx context.Context) ([]core.Node, error) {
	prefix := []byte(cfNodes + keySep)
	var nodes []core.Node
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				n, decErr := decodeNode(val)
				if decErr != nil {
					return decErr
				}
				nodes = append(nodes, n)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return nodes, err
}

// PutEmbeddingMeta records where a node's embedding lives.
func (s *Store) PutEmbeddingMeta(ctx context.Context, nodeID string, meta embeddingMetaRecord) error {
	data, err := encodeEmbeddingMeta(meta)
	if err != nil {
		return err
	}
	return s.batch.submit(ctx, []kv{{embeddingMetaKey(nodeID), data}}, nil)
}

// PutEmbeddingRecord is PutEmbeddingMeta exported across package boundaries:
// callers outside graphstore (the indexer's persist stage) only know the
// embedding's id, content hash, and model name, not the unexported wire
// record those are packed into.
func (s *Store) PutEmbeddingRecord(ctx context.Context, nodeID, embeddingID, contentHash, modelName string) error {
	return s.PutEmbeddingMeta(ctx, nodeID, embeddingMetaRecord{
		EmbeddingID: embeddingID,
		ContentHash: contentHash,
		ModelName:   modelName,
	})
}

// DeleteNode removes a node, every edge incident to it (both directions),
// and its embedding metadata, all in one write batch — spec.md §4.4's
// "atomic fan-out" delete_node.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	var deletes [][]byte
	var node *core.Node

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeKey(id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			n, decErr := decodeNode(val)
			if decErr != nil {
				return decErr
			}
			node = &n
			return nil
		})
	})
	if err != nil {
		return err
	}
	if node == nil {
		return nil
	}

	deletes = append(deletes, nodeKey(id), embeddingMetaKey(id),
		byFileKey(node.Location.FilePath, id), byQNameKey(node.QualifiedName, id))

	outEdges, err := s.scanEdgeKeys(adjOutPrefix(id, ""))
	if err != nil {
		return err
	}
	inEdges, err := s.scanEdgeKeys(adjInPrefix(id, ""))
	if err != nil {
		return err
	}
	for _, e := range outEdges {
		deletes = append(deletes, adjOutKey(e.From, e.Kind, e.To), adjInKey(e.To, e.Kind, e.From), edgeKey(e.ID))
	}
	for _, e := range inEdges {
		deletes = append(deletes, adjOutKey(e.From, e.Kind, e.To), adjInKey(e.To, e.Kind, e.From), edgeKey(e.ID))
	}

	return s.batch.submit(ctx, nil, deletes)
}

// scanEdgeKeys walks an adj_* prefix and resolves each row back to its full
// Edge record by parsing (from, kind, to) out of the adjacency key and
// reconstructing the edge id deterministically.
func (s *Store) scanEdgeKeys(prefix []byte) ([]core.Edge, error) {
	var edges []core.Edge
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: false, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			from, kind, to, ok := parseAdjKey(it.Item().Key())
			if !ok {
				continue
			}
			edges = append(edges, core.Edge{ID: core.NewEdgeID(from, to, kind), From: from, To: to, Kind: kind})
		}
		return nil
	})
	return edges, err
}

func parseAdjKey(key []byte) (from string, kind core.EdgeKind, to string, ok bool) {
	parts := bytes.Split(key, []byte(keySep))
	if len(parts) != 4 {
		return "", "", "", false
	}
	return string(parts[1]), core.EdgeKind(parts[2]), string(parts[3]), true
}

// Neighbor is one hop returned by Neighbors/Subgraph.
type Neighbor struct {
	NodeID string
	Kind   core.EdgeKind
}

// Neighbors returns the adjacent node ids in the given direction, optionally
// filtered to one edge kind, using a key-only prefix scan over the adjacency
// rows. No read-ahead size is configured for the scan.
func (s *Store) Neighbors(ctx context.Context, id string, dir Direction, kind core.EdgeKind) ([]Neighbor, error) {
	var prefix []byte
	if dir == DirectionOut {
		prefix = adjOutPrefix(id, kind)
	} else {
		prefix = adjInPrefix(id, kind)
	}

	var out []Neighbor
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.IteratorOptions{PrefetchValues: false, Prefix: prefix}
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			from, k, to, ok := parseAdjKey(it.Item().Key())
			if !ok {
				continue
			}
			neighborID := to
			if dir == DirectionIn {
				neighborID = from
			}
			out = append(out, Neighbor{NodeID: neighborID, Kind: k})
		}
		return nil
	})
	return out, err
}

// Filter restricts which nodes Subgraph traverses through.
type Filter func(n core.Node) bool

// Subgraph runs a breadth-first traversal bounded by depth from root,
// returning the visited nodes that pass filter and every outgoing edge of
// the traversed nodes, including edges whose target filter rejected or
// that no longer exists. Ties at each
// frontier are broken by (kind, id) so repeated runs over the same data are
// deterministic, per spec.md §4.4.
func (s *Store) Subgraph(ctx context.Context, root string, depth int, filter Filter) ([]core.Node, []core.Edge, error) {
	visited := map[string]bool{root: true}
	frontier := []string{root}

	var nodes []core.Node
	var edges []core.Edge
	seenEdge := map[string]bool{}

	rootNodes, err := s.GetNodes(ctx, []string{root})
	if err != nil {
		return nil, nil, err
	}
	if rootNodes[root] == nil {
		return nil, nil, fmt.Errorf("%w: %s", coreerr.ErrNotFound, root)
	}
	if filter == nil || filter(*rootNodes[root]) {
		nodes = append(nodes, *rootNodes[root])
	}

	for d := 0; d < depth && len(frontier) > 0; d++ {
		type hop struct {
			from string
			nb   Neighbor
		}
		var hops []hop
		for _, id := range frontier {
			nbs, err := s.Neighbors(ctx, id, DirectionOut, "")
			if err != nil {
				return nil, nil, err
			}
			for _, nb := range nbs {
				hops = append(hops, hop{from: id, nb: nb})
			}
		}
		sort.Slice(hops, func(i, j int) bool {
			if hops[i].nb.Kind != hops[j].nb.Kind {
				return hops[i].nb.Kind < hops[j].nb.Kind
			}
			return hops[i].nb.NodeID < hops[j].nb.NodeID
		})

		var next []string
		ids := make([]string, 0, len(hops))
		for _, h := range hops {
			if !visited[h.nb.NodeID] {
				ids = append(ids, h.nb.NodeID)
			}
		}
		fetched, err := s.GetNodes(ctx, ids)
		if err != nil {
			return nil, nil, err
		}

		for _, h := range hops {
			edgeID := core.NewEdgeID(h.from, h.nb.NodeID, h.nb.Kind)
			if !seenEdge[edgeID] {
				seenEdge[edgeID] = true
				edges = append(edges, core.Edge{ID: edgeID, From: h.from, To: h.nb.NodeID, Kind: h.nb.Kind, Weight: core.DefaultWeight})
			}
			if visited[h.nb.NodeID] {
				continue
			}
			visited[h.nb.NodeID] = true
			n := fetched[h.nb.NodeID]
			if n == nil {
				continue
			}
			if filter != nil && !filter(*n) {
				continue
			}
			nodes = append(nodes, *n)
			next = append(next, h.nb.NodeID)
		}
		frontier = next
	}

	return nodes, edges, nil
}

// Work is the unit of logic Transaction runs under ACID guarantees.
type Work func(txn *badger.Txn) error

// Transaction runs work inside a single Badger transaction spanning every
// CF-equivalent prefix; Badger's SSI conflict detection serializes
// concurrent writers that touch overlapping keys and surfaces a Conflict
// error for the caller to retry, matching spec.md §4.4's transaction()
// contract.
func (s *Store) Transaction(ctx context.Context, work Work) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return work(txn)
	})
	if err == badger.ErrConflict {
		return fmt.Errorf("%w: %v", coreerr.ErrConflict, err)
	}
	return err
}

type kv struct {
	Key   []byte
	Value []byte
}
