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

package vectorindex

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kraklabs/codegraph/internal/coreerr"
)

// targetVectorsPerCentroid sizes nlist so each centroid holds roughly this
// many vectors at build time (spec.md §4.3: "train nlist centroids once on
// >= 10*nlist vectors").
const targetVectorsPerCentroid = 10

const defaultNProbe = 8

// ivfFlatIndex partitions vectors into nlist centroids (trained once via a
// k-means-lite pass) and probes only the nprobe nearest centroids at search
// time, trading a small recall loss for sublinear scan cost above
// FlatIndexThreshold vectors.
type ivfFlatIndex struct {
	mu        sync.RWMutex
	dimension int
	nprobe    int

	centroids [][]float32
	clusters  []map[string][]float32 // per-centroid id -> vector
	meta      map[string]Metadata
	assigned  map[string]int // node id -> centroid index, for Delete/re-Upsert

	trained bool
	logger  *slog.Logger
}

func newIVFFlatIndex(dimension int, logger *slog.Logger) *ivfFlatIndex {
	return &ivfFlatIndex{
		dimension: dimension,
		nprobe:    defaultNProbe,
		meta:      make(map[string]Metadata),
		assigned:  make(map[string]int),
		logger:    logger,
	}
}

func (ix *ivfFlatIndex) Upsert(nodeID string, vector []float32, meta Metadata) error {
	if ix.dimension > 0 && len(vector) != ix.dimension {
		return fmt.Errorf("%w: index dimension %d, got %d", coreerr.ErrDimensionMismatch, ix.dimension, len(vector))
	}
	v := normalize(vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.dimension == 0 {
		ix.dimension = len(vector)
	}

	if prev, ok := ix.assigned[nodeID]; ok {
		delete(ix.clusters[prev], nodeID)
	}

	if !ix.trained {
		// Before training, everything lives in a single pending cluster
		// (centroid 0) until Train() (directly or through MaybeRebuild)
		// redistributes it.
		if len(ix.clusters) == 0 {
			ix.clusters = []map[string][]float32{make(map[string][]float32)}
			ix.centroids = [][]float32{v}
		}
		ix.clusters[0][nodeID] = v
		ix.assigned[nodeID] = 0
		ix.meta[nodeID] = meta
		return nil
	}

	c := ix.nearestCentroid(v)
	ix.clusters[c][nodeID] = v
	ix.assigned[nodeID] = c
	ix.meta[nodeID] = meta
	return nil
}

func (ix *ivfFlatIndex) Delete(nodeID string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if c, ok := ix.assigned[nodeID]; ok {
		delete(ix.clusters[c], nodeID)
		delete(ix.assigned, nodeID)
	}
	delete(ix.meta, nodeID)
}

func (ix *ivfFlatIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.assigned)
}

// Train (re)computes centroids via iterative nearest-centroid reassignment
// (a k-means-lite pass, a handful of iterations over every stored vector —
// enough to make IVF probing meaningfully sublinear without pulling in a
// full clustering library). MaybeRebuild calls it when there are no
// centroids yet or the vector-to-centroid ratio has passed
// RebuildRatioThreshold; Upsert calls neither.
func (ix *ivfFlatIndex) Train() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.trainLocked()
}

func (ix *ivfFlatIndex) trainLocked() {
	all := make(map[string][]float32, len(ix.assigned))
	for _, cluster := range ix.clusters {
		for id, v := range cluster {
			all[id] = v
		}
	}
	n := len(all)
	if n == 0 {
		return
	}
	nlist := n / targetVectorsPerCentroid
	if nlist < 1 {
		nlist = 1
	}

	ids := make([]string, 0, n)
	vecs := make([][]float32, 0, n)
	for id, v := range all {
		ids = append(ids, id)
		vecs = append(vecs, v)
	}

	centroids := make([][]float32, nlist)
	for i := 0; i < nlist; i++ {
		centroids[i] = vecs[(i*n)/nlist]
	}

	const iterations = 4
	assignment := make([]int, n)
	for iter := 0; iter < iterations; iter++ {
		sums := make([][]float32, nlist)
		counts := make([]int, nlist)
		for i := range sums {
			sums[i] = make([]float32, ix.dimension)
		}
		for i, v := range vecs {
			best, bestScore := 0, float32(-2)
			for c, centroid := range centroids {
				if s := dot(v, centroid); s > bestScore {
					best, bestScore = c, s
				}
			}
			assignment[i] = best
			counts[best]++
			for d, val := range v {
				sums[best][d] += val
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range sums[c] {
				sums[c][d] /= float32(counts[c])
			}
			centroids[c] = normalize(sums[c])
		}
	}

	clusters := make([]map[string][]float32, nlist)
	for i := range clusters {
		clusters[i] = make(map[string][]float32)
	}
	assigned := make(map[string]int, n)
	for i, id := range ids {
		c := assignment[i]
		clusters[c][id] = vecs[i]
		assigned[id] = c
	}

	ix.centroids = centroids
	ix.clusters = clusters
	ix.assigned = assigned
	ix.trained = true
}

// MaybeRebuild retrains centroids when the corpus has grown enough that the
// current vector-to-centroid ratio has degraded past RebuildRatioThreshold,
// per spec.md §4.3's rebuild trigger (c).
func (ix *ivfFlatIndex) MaybeRebuild() {
	ix.mu.RLock()
	n := len(ix.assigned)
	nlist := len(ix.centroids)
	ix.mu.RUnlock()
	if nlist == 0 {
		ix.Train()
		return
	}
	target := float64(nlist * targetVectorsPerCentroid)
	if target > 0 && float64(n)/target > RebuildRatioThreshold {
		ix.Train()
	}
}

func (ix *ivfFlatIndex) nearestCentroid(v []float32) int {
	best, bestScore := 0, float32(-2)
	for i, c := range ix.centroids {
		if s := dot(v, c); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

func (ix *ivfFlatIndex) Search(query []float32, k int, filter Filter) ([]Match, error) {
	if ix.dimension > 0 && len(query) != ix.dimension {
		return nil, fmt.Errorf("%w: index dimension %d, query has %d", coreerr.ErrDimensionMismatch, ix.dimension, len(query))
	}
	q := normalize(query)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	nprobe := ix.nprobe
	if nprobe > len(ix.centroids) {
		nprobe = len(ix.centroids)
	}
	ranked := make([]centroidScore, len(ix.centroids))
	for i, c := range ix.centroids {
		ranked[i] = centroidScore{i, dot(q, c)}
	}
	topNProbe(ranked, nprobe)

	matches := make([]Match, 0, k*2)
	for i := 0; i < nprobe; i++ {
		cluster := ix.clusters[ranked[i].idx]
		for id, v := range cluster {
			if filter != nil && !filter(ix.meta[id]) {
				continue
			}
			matches = append(matches, Match{NodeID: id, Score: dot(q, v)})
		}
	}
	return topK(matches, k), nil
}

type centroidScore struct {
	idx   int
	score float32
}

func topNProbe(ranked []centroidScore, n int) {
	for i := 0; i < n && i < len(ranked); i++ {
		best := i
		for j := i + 1; j < len(ranked); j++ {
			if ranked[j].score > ranked[best].score {
				best = j
			}
		}
		ranked[i], ranked[best] = ranked[best], ranked[i]
	}
}
