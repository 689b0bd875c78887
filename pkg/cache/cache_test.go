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
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/parser"
)

func TestASTCachePutGetInvalidate(t *testing.T) {
	c := NewASTCache(1 << 20)
	key := ASTKey{FilePath: "a.go", ContentHash: "h1", GrammarVersion: 1}
	result := &parser.ExtractionResult{FilePath: "a.go"}

	assert.Nil(t, c.Get(key))
	c.Put(key, result)
	assert.Same(t, result, c.Get(key))

	c.Invalidate("a.go")
	assert.Nil(t, c.Get(key))
}

func TestASTCacheEvictsUnderBudget(t *testing.T) {
	c := NewASTCache(300) // each entry below is estimated at 96 bytes, so three fit before eviction kicks in
	for i := 0; i < 50; i++ {
		key := ASTKey{FilePath: string(rune('a' + i%26)), ContentHash: "h", GrammarVersion: 1}
		c.Put(key, &parser.ExtractionResult{FilePath: key.FilePath, Diagnostics: []parser.Diagnostic{{Code: "partial_parse"}}})
	}
	require.Less(t, c.Len(), 50)
}

func TestQueryCacheCoalescesConcurrentMisses(t *testing.T) {
	qc := NewQueryCache()
	var builds int64

	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			v, err := qc.GetOrBuild("fingerprint", func() (any, error) {
				atomic.AddInt64(&builds, 1)
				return 42, nil
			})
			require.NoError(t, err)
			results[idx] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&builds))
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestQueryCacheInvalidate(t *testing.T) {
	qc := NewQueryCache()
	_, err := qc.GetOrBuild("k", func() (any, error) { return 1, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, qc.Len())

	qc.Invalidate("k")
	assert.Equal(t, 0, qc.Len())
}

func TestOptimizerDetectsSequentialAccess(t *testing.T) {
	o := NewOptimizer(ReadaheadConfig{
		WindowSize: 16, PrefetchDepth: 3, MinConfidence: 0.01, PatternDecay: 0.95,
		SeqToKey: func(seq int64) string { return "node-" + string(rune('a'+int(seq))) },
	})

	var predicted []string
	prefetch := func(keys []string) { predicted = keys }

	for i := int64(0); i < 6; i++ {
		o.RecordAccess("node-"+string(rune('a'+int(i))), i, prefetch)
	}
	stats := o.Stats()
	assert.Greater(t, stats.Sequential, int64(0))
}

func TestOptimizerClusterPrediction(t *testing.T) {
	o := NewOptimizer(ReadaheadConfig{WindowSize: 16, PrefetchDepth: 5, MinConfidence: 0.01, PatternDecay: 0.95})
	o.RecordCluster("file.go#Class", "file.go#Method1")
	o.RecordCluster("file.go#Class", "file.go#Method2")

	var predicted []string
	for i := 0; i < 5; i++ {
		o.RecordAccess("file.go#Class", 0, func(keys []string) { predicted = keys })
	}
	assert.NotEmpty(t, predicted)
}
