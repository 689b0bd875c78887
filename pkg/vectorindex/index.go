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

// Package vectorindex implements approximate nearest-neighbour search over
// node embeddings (C4): a flat full-scan index below the corpus-size
// threshold where partitioning doesn't pay for itself, and an IVF-Flat
// index above it. Both share the same on-disk format and persistence
// pattern pkg/ingestion/checkpoint.go uses: atomic
// write-to-temp-then-rename (see persist.go).
package vectorindex

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/kraklabs/codegraph/internal/coreerr"
)

// FlatIndexThreshold is the corpus size below which a flat full-scan index
// is used instead of IVF-Flat partitioning, per spec.md §4.3.
const FlatIndexThreshold = 50_000

// RebuildRatioThreshold triggers a rebuild of the IVF index when the
// vector-to-centroid ratio degrades past this multiple of the target
// (nlist chosen so each centroid holds roughly 10 vectors at build time).
const RebuildRatioThreshold = 5.0

// Match is one search hit: a node id and its cosine similarity score.
type Match struct {
	NodeID string
	Score  float32
}

// Filter restricts which node ids a search considers, evaluated against the
// metadata a caller registers alongside each vector (spec.md §4.3: language,
// path prefix, kind).
type Filter func(meta Metadata) bool

// Metadata is the subset of a node's properties the index keeps alongside
// its vector so Filter predicates don't need a round trip to the graph
// store during search.
type Metadata struct {
	Language  string
	FilePath  string
	Kind      string
}

// Index is C4's contract: upsert/delete/search/persist/load over a fixed
// dimensionality of vectors, one per node id.
type Index interface {
	Upsert(nodeID string, vector []float32, meta Metadata) error
	Delete(nodeID string)
	Search(query []float32, k int, filter Filter) ([]Match, error)
	Len() int
	Persist(path string) error
	Load(path string) error
}

// New builds an Index: IVF-Flat when the expected corpus size hint exceeds
// FlatIndexThreshold, otherwise a flat full-scan index (a hint of 0, meaning
// unknown, also gives a flat index). The choice is made once; a flat index
// is never converted to IVF-Flat as it grows.
func New(dimension int, expectedSize int, logger *slog.Logger) Index {
	if logger == nil {
		logger = slog.Default()
	}
	if expectedSize > FlatIndexThreshold {
		return newIVFFlatIndex(dimension, logger)
	}
	return newFlatIndex(dimension, logger)
}

// flatIndex is a brute-force cosine search over all vectors. Vectors are
// L2-normalized on insert so a dot product equals cosine similarity.
type flatIndex struct {
	mu        sync.RWMutex
	dimension int
	vectors   map[string][]float32
	meta      map[string]Metadata
	logger    *slog.Logger
}

func newFlatIndex(dimension int, logger *slog.Logger) *flatIndex {
	return &flatIndex{
		dimension: dimension,
		vectors:   make(map[string][]float32),
		meta:      make(map[string]Metadata),
		logger:    logger,
	}
}

func (f *flatIndex) Upsert(nodeID string, vector []float32, meta Metadata) error {
	if f.dimension > 0 && len(vector) != f.dimension {
		return fmt.Errorf("%w: index dimension %d, got %d", coreerr.ErrDimensionMismatch, f.dimension, len(vector))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dimension == 0 {
		f.dimension = len(vector)
	}
	f.vectors[nodeID] = normalize(vector)
	f.meta[nodeID] = meta
	return nil
}

func (f *flatIndex) Delete(nodeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.vectors, nodeID)
	delete(f.meta, nodeID)
}

func (f *flatIndex) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.vectors)
}

func (f *flatIndex) Search(query []float32, k int, filter Filter) ([]Match, error) {
	if f.dimension > 0 && len(query) != f.dimension {
		return nil, fmt.Errorf("%w: index dimension %d, query has %d", coreerr.ErrDimensionMismatch, f.dimension, len(query))
	}
	q := normalize(query)

	f.mu.RLock()
	defer f.mu.RUnlock()

	matches := make([]Match, 0, len(f.vectors))
	for id, v := range f.vectors {
		if filter != nil && !filter(f.meta[id]) {
			continue
		}
		matches = append(matches, Match{NodeID: id, Score: dot(q, v)})
	}
	return topK(matches, k), nil
}

func topK(matches []Match, k int) []Match {
	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if k > 0 && k < len(matches) {
		matches = matches[:k]
	}
	return matches
}

func dot(a, b []float32) float32 {
	var sum float32
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
