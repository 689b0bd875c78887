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

package cache

import (
	"sync"
)

// ReadaheadConfig tunes the optimizer, per spec.md §4.5 defaults.
type ReadaheadConfig struct {
	WindowSize    int
	PrefetchDepth int
	MinConfidence float64
	PatternDecay  float64
	// SeqToKey turns a predicted sequence position back into a concrete
	// cache key, e.g. the indexer maps a node's file-offset rank back to
	// its node id. Required for sequential (arithmetic-progression)
	// prediction; clustering-based prediction works without it.
	SeqToKey func(seq int64) string
}

// DefaultReadaheadConfig matches spec.md §4.5's named defaults:
// prefetch_depth=20, min_confidence=0.7, pattern_decay=0.95.
func DefaultReadaheadConfig() ReadaheadConfig {
	return ReadaheadConfig{WindowSize: 256, PrefetchDepth: 20, MinConfidence: 0.7, PatternDecay: 0.95}
}

// Prefetcher is called with the keys the optimizer predicts will be read
// next; it must not block the caller that triggered the prediction (spec.md
// §4.5: "Prefetches never block foreground reads; they are strictly
// best-effort").
type Prefetcher func(keys []string)

// pattern tracks one detected access sequence (arithmetic progression of
// node-ish sequence numbers, or a cluster of co-occurring keys).
type pattern struct {
	keys       []string
	frequency  float64 // accesses reinforcing this pattern, decayed each window
	lastSeen   int64   // access counter at last reinforcement, used for recency
}

// Optimizer implements the "read-ahead optimiser" in spec.md §4.5: it
// watches the access stream to a cache, detects sequential and clustered
// patterns, and best-effort prefetches what it predicts comes next.
type Optimizer struct {
	cfg ReadaheadConfig
	mu  sync.Mutex

	accessCount int64
	window      []windowEntry
	patterns    map[string]*pattern // keyed by the pattern's leading key

	predictions int64
	hits        int64
	sequential  int64
}

type windowEntry struct {
	key string
	seq int64 // caller-supplied orderable position (e.g. a stable node rank); 0 if not sequential-aware
}

// NewOptimizer builds a read-ahead optimizer with cfg, falling back to
// DefaultReadaheadConfig for zero fields.
func NewOptimizer(cfg ReadaheadConfig) *Optimizer {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultReadaheadConfig().WindowSize
	}
	if cfg.PrefetchDepth <= 0 {
		cfg.PrefetchDepth = DefaultReadaheadConfig().PrefetchDepth
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultReadaheadConfig().MinConfidence
	}
	if cfg.PatternDecay <= 0 {
		cfg.PatternDecay = DefaultReadaheadConfig().PatternDecay
	}
	return &Optimizer{cfg: cfg, patterns: make(map[string]*pattern)}
}

// RecordAccess registers one cache lookup and, when a pattern crosses
// MinConfidence, invokes prefetch with up to PrefetchDepth predicted next
// keys. seq is a caller-supplied orderable position used to detect
// arithmetic-progression (sequential) access; pass 0 when no natural
// ordering exists and only clustering will be detected.
func (o *Optimizer) RecordAccess(key string, seq int64, prefetch Prefetcher) {
	o.mu.Lock()

	o.accessCount++
	o.window = append(o.window, windowEntry{key: key, seq: seq})
	if len(o.window) > o.cfg.WindowSize {
		o.window = o.window[len(o.window)-o.cfg.WindowSize:]
		o.decayLocked()
	}

	predicted, confident := o.detectLocked(key, seq)

	o.mu.Unlock()

	if confident && len(predicted) > 0 && prefetch != nil {
		o.predictions++
		prefetch(predicted)
	}
}

// Hit records that a prefetched key was later read from cache rather than
// rebuilt, feeding the hit-rate metric.
func (o *Optimizer) Hit() {
	o.mu.Lock()
	o.hits++
	o.mu.Unlock()
}

// detectLocked looks for an arithmetic progression ending at (key, seq)
// within the current window, then falls back to a co-occurrence cluster
// anchored on key. Confidence = (frequency * recency) / pattern_complexity,
// per spec.md §4.5.
func (o *Optimizer) detectLocked(key string, seq int64) ([]string, bool) {
	if seq != 0 && len(o.window) >= 3 {
		n := len(o.window)
		a, b, c := o.window[n-3], o.window[n-2], o.window[n-1]
		stride := b.seq - a.seq
		if stride != 0 && c.seq-b.seq == stride {
			o.sequential++
			p := o.patterns[key]
			if p == nil {
				p = &pattern{}
				o.patterns[key] = p
			}
			p.frequency++
			p.lastSeen = o.accessCount

			confidence := confidenceOf(p.frequency, p.lastSeen, o.accessCount, 1)
			if confidence >= o.cfg.MinConfidence && o.cfg.SeqToKey != nil {
				next := make([]string, 0, o.cfg.PrefetchDepth)
				for i := 1; i <= o.cfg.PrefetchDepth; i++ {
					next = append(next, o.cfg.SeqToKey(seq+stride*int64(i)))
				}
				return next, true
			}
		}
	}

	if p, ok := o.patterns[key]; ok && len(p.keys) > 0 {
		p.frequency++
		p.lastSeen = o.accessCount
		confidence := confidenceOf(p.frequency, p.lastSeen, o.accessCount, len(p.keys))
		if confidence >= o.cfg.MinConfidence {
			depth := o.cfg.PrefetchDepth
			if depth > len(p.keys) {
				depth = len(p.keys)
			}
			return append([]string{}, p.keys[:depth]...), true
		}
	}
	return nil, false
}

// RecordCluster tells the optimizer that follow was observed immediately
// after key in the same access burst, building the co-occurrence clusters
// spec.md §4.5 calls pattern (2). Callers that already know their read
// pattern is clustered (e.g. the indexer reading a file's sibling nodes)
// feed this directly instead of relying on window-inferred clustering.
func (o *Optimizer) RecordCluster(key string, follow string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := o.patterns[key]
	if p == nil {
		p = &pattern{}
		o.patterns[key] = p
	}
	for _, k := range p.keys {
		if k == follow {
			return
		}
	}
	p.keys = append(p.keys, follow)
}

// decayLocked shrinks every pattern's reinforcement by PatternDecay once
// per window, so patterns that stop recurring fade out of consideration
// (spec.md §4.5: "Decays unused patterns by pattern_decay per window").
func (o *Optimizer) decayLocked() {
	for k, p := range o.patterns {
		p.frequency *= o.cfg.PatternDecay
		if p.frequency < 0.01 {
			delete(o.patterns, k)
		}
	}
}

// confidenceOf implements spec.md §4.5's formula: "(frequency * recency) /
// pattern_complexity". recency is normalized to (0,1] by how close the
// pattern's last reinforcement is to the current access count.
func confidenceOf(frequency float64, lastSeen, now int64, complexity int) float64 {
	if complexity <= 0 {
		complexity = 1
	}
	age := now - lastSeen
	if age < 0 {
		age = 0
	}
	recency := 1.0 / (1.0 + float64(age))
	return (frequency * recency) / float64(complexity)
}

// Stats reports the metrics spec.md §4.5 asks the optimizer to expose:
// "total predictions, successful predictions (hit within N subsequent
// reads), hit rate, sequential reads detected".
type Stats struct {
	Predictions int64
	Hits        int64
	HitRate     float64
	Sequential  int64
}

// Stats returns a snapshot of the optimizer's counters.
func (o *Optimizer) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	var rate float64
	if o.predictions > 0 {
		rate = float64(o.hits) / float64(o.predictions)
	}
	return Stats{Predictions: o.predictions, Hits: o.hits, HitRate: rate, Sequential: o.sequential}
}
