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

// Package config holds the typed configuration surface for every CodeGraph
// component, grouped the way spec.md §6 groups its recognized options.
// Parsing these fields from flags or a config file is out of scope (CLI
// argument parsing and config-file loading are explicit non-goals); callers
// construct a Config with struct literals or DefaultConfig(), the same way
// IngestionConfig/EmbeddedConfig are constructed in kraklabs/cie.
package config

import "time"

// Config is the full set of recognized options across every component.
type Config struct {
	Storage  StorageConfig
	Embedder EmbedderConfig
	Watcher  WatcherConfig
	Query    QueryConfig
	Cache    CacheConfig
}

// StorageConfig configures C5's graph store.
type StorageConfig struct {
	StoragePath string
	WALEnabled  bool
	CacheSizeMB int
}

// EmbedderConfig configures C2's embedding client.
type EmbedderConfig struct {
	Dialect     string
	BaseURL     string
	Model       string
	Dimension   int
	BatchSize   int
	Timeout     time.Duration
	MaxRetries  int
	Concurrency int
}

// WatcherConfig configures C8's debounce window.
type WatcherConfig struct {
	DebounceMillis int
}

// QueryConfig configures C9's default bounds.
type QueryConfig struct {
	DefaultK   int
	MaxDepth   int
	NodeBudget int
}

// CacheConfig configures C6's AST/query caches and read-ahead optimizer.
type CacheConfig struct {
	ASTCacheCapacityMB int
	PrefetchDepth      int
	MinConfidence      float64
	PatternDecay       float64
}

// DefaultConfig returns the defaults spec.md §6 documents for every
// recognized option.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			WALEnabled:  true,
			CacheSizeMB: 256,
		},
		Embedder: EmbedderConfig{
			Dialect:     "lmstudio",
			BatchSize:   64,
			Timeout:     30 * time.Second,
			MaxRetries:  3,
			Concurrency: 4,
		},
		Watcher: WatcherConfig{
			DebounceMillis: 30,
		},
		Query: QueryConfig{
			DefaultK:   10,
			MaxDepth:   5,
			NodeBudget: 10_000,
		},
		Cache: CacheConfig{
			ASTCacheCapacityMB: 128,
			PrefetchDepth:      20,
			MinConfidence:      0.7,
			PatternDecay:       0.95,
		},
	}
}
