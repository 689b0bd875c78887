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

// Package cache is C6: an AST cache, a query-result cache, and a read-ahead
// optimizer behind one façade. It is grounded on CheckpointManager
// (pkg/ingestion/checkpoint.go), which already tracked a file_path ->
// content_hash map to decide what had to be reprocessed across runs; this
// package generalizes that invalidation idea into an in-memory,
// capacity-bounded cache instead of a restart checkpoint, and adds the
// query-result cache and read-ahead optimizer spec.md §4.5 calls for that
// the ingestion pipeline never needed (it had no query surface of its own).
package cache

import (
	"container/list"
	"sync"

	"github.com/kraklabs/codegraph/pkg/parser"
)

// ASTKey identifies one parse artifact, per spec.md §4.5: "(file_path,
// content_hash, grammar_version)".
type ASTKey struct {
	FilePath      string
	ContentHash   string
	GrammarVersion int
}

// ASTCache is an LRU, capacity-bounded-by-memory-footprint cache of parse
// artifacts. Invalidation is explicit (Invalidate, called on a file-change
// event) or implicit: a lookup with a different ContentHash than what's
// cached is a miss, since the key itself changed.
type ASTCache struct {
	mu          sync.Mutex
	capacity    int64 // approximate byte budget
	size        int64
	ll          *list.List
	items       map[ASTKey]*list.Element
	byFile      map[string][]ASTKey // secondary index for Invalidate(path)
}

type astEntry struct {
	key    ASTKey
	result *parser.ExtractionResult
	bytes  int64
}

// NewASTCache builds a cache bounded to approximately capacityBytes of
// estimated parse-artifact memory.
func NewASTCache(capacityBytes int64) *ASTCache {
	if capacityBytes <= 0 {
		capacityBytes = 128 << 20
	}
	return &ASTCache{
		capacity: capacityBytes,
		ll:       list.New(),
		items:    make(map[ASTKey]*list.Element),
		byFile:   make(map[string][]ASTKey),
	}
}

// Get returns the cached extraction result for key, or nil on a miss.
func (c *ASTCache) Get(key ASTKey) *parser.ExtractionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil
	}
	c.ll.MoveToFront(el)
	return el.Value.(*astEntry).result
}

// Put inserts or refreshes a parse artifact, evicting least-recently-used
// entries until the cache is back under its byte budget.
func (c *ASTCache) Put(key ASTKey, result *parser.ExtractionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existed := false
	if el, ok := c.items[key]; ok {
		c.size -= el.Value.(*astEntry).bytes
		c.ll.Remove(el)
		delete(c.items, key)
		existed = true
	}

	entry := &astEntry{key: key, result: result, bytes: estimateSize(result)}
	el := c.ll.PushFront(entry)
	c.items[key] = el
	if !existed {
		c.byFile[key.FilePath] = append(c.byFile[key.FilePath], key)
	}
	c.size += entry.bytes

	for c.size > c.capacity && c.ll.Len() > 0 {
		back := c.ll.Back()
		if back == nil {
			break
		}
		c.evict(back)
	}
}

// Invalidate drops every cached artifact for filePath, regardless of which
// content hash it was cached under — the explicit invalidation path spec.md
// §4.5 requires on a file-change event.
func (c *ASTCache) Invalidate(filePath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := c.byFile[filePath]
	delete(c.byFile, filePath)
	for _, k := range keys {
		if el, ok := c.items[k]; ok {
			c.size -= el.Value.(*astEntry).bytes
			c.ll.Remove(el)
			delete(c.items, k)
		}
	}
}

// EntriesForFile returns the cache keys currently held for filePath, used
// by the indexer's incremental mode to check whether a changed file's new
// content hash actually differs from what's cached.
func (c *ASTCache) EntriesForFile(filePath string) []ASTKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ASTKey, len(c.byFile[filePath]))
	copy(out, c.byFile[filePath])
	return out
}

// Len reports the number of cached artifacts.
func (c *ASTCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *ASTCache) evict(el *list.Element) {
	entry := el.Value.(*astEntry)
	c.ll.Remove(el)
	delete(c.items, entry.key)
	c.size -= entry.bytes
	keys := c.byFile[entry.key.FilePath]
	for i, k := range keys {
		if k == entry.key {
			c.byFile[entry.key.FilePath] = append(keys[:i], keys[i+1:]...)
			break
		}
	}
}

// estimateSize approximates a parse artifact's memory footprint from its
// node/edge/diagnostic counts; exact accounting isn't worth the complexity
// for an LRU whose only job is to keep the cache roughly within budget.
func estimateSize(r *parser.ExtractionResult) int64 {
	if r == nil {
		return 0
	}
	const perNode, perEdge, perAbstract, perDiag = 256, 96, 128, 96
	return int64(len(r.Nodes)*perNode + len(r.Edges)*perEdge +
		len(r.AbstractEdges)*perAbstract + len(r.Diagnostics)*perDiag)
}
