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

// Package metrics registers the Prometheus series exposed by the indexer
// and cache, the same metricsIngestion/prometheus.MustRegister pattern the
// pkg/ingestion/metrics.go pattern in kraklabs/cie, generalized from a
// single ingestion-run counter set to cover C6's cache/read-ahead stats and
// C5's read-coalescing/write-batching stats as well.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every CodeGraph Prometheus series, registered once via
// NewRegistry so tests and multiple indexer runs in the same process don't
// collide on prometheus.DefaultRegisterer.
type Registry struct {
	Registerer prometheus.Registerer

	FilesIndexed  prometheus.Counter
	FilesSkipped  prometheus.Counter
	ParseErrors   prometheus.Counter
	EmbeddingsGenerated prometheus.Counter
	EmbeddingsPending   prometheus.Counter
	EmbeddingRetries    prometheus.Counter

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	CoalesceBatchSize   prometheus.Histogram
	WriteBatchFlushTime prometheus.Histogram

	ReadaheadPredictions prometheus.Counter
	ReadaheadHits        prometheus.Counter

	IndexDuration prometheus.Histogram
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
)

// Default returns the process-wide registry, registered against
// prometheus.DefaultRegisterer exactly once.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg = NewRegistry(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

// NewRegistry builds and registers a fresh Registry against reg. Passing a
// prometheus.NewRegistry() (rather than the global default) is how tests
// avoid duplicate-registration panics across packages.
func NewRegistry(reg prometheus.Registerer) *Registry {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

	r := &Registry{
		Registerer: reg,
		FilesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_indexer_files_indexed_total", Help: "Files successfully parsed and persisted.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_indexer_files_skipped_total", Help: "Files skipped (unsupported language, oversized, unchanged).",
		}),
		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_indexer_parse_errors_total", Help: "Files that failed to parse.",
		}),
		EmbeddingsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_indexer_embeddings_generated_total", Help: "Embeddings successfully computed.",
		}),
		EmbeddingsPending: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_indexer_embeddings_pending_total", Help: "Nodes marked embedding_pending after a provider outage.",
		}),
		EmbeddingRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_indexer_embedding_retries_total", Help: "Embedding request retries.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_cache_hits_total", Help: "Cache lookups served without a rebuild.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_cache_misses_total", Help: "Cache lookups that triggered a rebuild.",
		}),
		CoalesceBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "codegraph_graphstore_coalesce_batch_size", Help: "Number of GetNode requests merged per coalescing window.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		WriteBatchFlushTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "codegraph_graphstore_write_batch_flush_seconds", Help: "Latency of each adaptive write-batch flush.", Buckets: buckets,
		}),
		ReadaheadPredictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_cache_readahead_predictions_total", Help: "Read-ahead prefetches issued.",
		}),
		ReadaheadHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codegraph_cache_readahead_hits_total", Help: "Read-ahead prefetches later served from cache.",
		}),
		IndexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "codegraph_indexer_run_seconds", Help: "Total duration of an index run.", Buckets: buckets,
		}),
	}

	reg.MustRegister(
		r.FilesIndexed, r.FilesSkipped, r.ParseErrors,
		r.EmbeddingsGenerated, r.EmbeddingsPending, r.EmbeddingRetries,
		r.CacheHits, r.CacheMisses,
		r.CoalesceBatchSize, r.WriteBatchFlushTime,
		r.ReadaheadPredictions, r.ReadaheadHits,
		r.IndexDuration,
	)
	return r
}
