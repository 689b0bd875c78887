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

	"golang.org/x/sync/singleflight"
)

// QueryCache maps a query fingerprint (operation, serialized_params) to its
// result, guaranteeing at-most-one concurrent build per fingerprint: every
// concurrent miss on the same key coalesces onto a single in-flight
// Build call via singleflight, replacing the hand-rolled mutex-map the
// teacher's corpus has no equivalent of (spec.md §4.5).
type QueryCache struct {
	group singleflight.Group

	mu    sync.RWMutex
	store map[string]any
}

// NewQueryCache builds an empty query cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{store: make(map[string]any)}
}

// GetOrBuild returns the cached value for fingerprint, or calls build
// exactly once across all concurrent callers sharing that fingerprint and
// caches its result.
func (c *QueryCache) GetOrBuild(fingerprint string, build func() (any, error)) (any, error) {
	c.mu.RLock()
	if v, ok := c.store[fingerprint]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(fingerprint, func() (any, error) {
		// Re-check after acquiring the singleflight slot: another caller may
		// have finished the build while this one was waiting to enter Do.
		c.mu.RLock()
		if cached, ok := c.store[fingerprint]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		result, buildErr := build()
		if buildErr != nil {
			return nil, buildErr
		}
		c.mu.Lock()
		c.store[fingerprint] = result
		c.mu.Unlock()
		return result, nil
	})
	return v, err
}

// Invalidate drops a cached fingerprint, used when a write touches data the
// cached result was derived from.
func (c *QueryCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	delete(c.store, fingerprint)
	c.mu.Unlock()
}

// InvalidateAll clears the cache, used after a batch of writes too broad to
// invalidate individually (e.g. a full reindex).
func (c *QueryCache) InvalidateAll() {
	c.mu.Lock()
	c.store = make(map[string]any)
	c.mu.Unlock()
}

// Len reports the number of cached fingerprints.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
