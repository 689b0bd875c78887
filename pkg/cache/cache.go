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

// Cache is the "two sub-caches behind one façade" spec.md §4.5 describes:
// an AST cache, a query-result cache, and the read-ahead optimizer that
// watches both.
type Cache struct {
	AST       *ASTCache
	Query     *QueryCache
	Readahead *Optimizer
}

// New builds a Cache with the given AST-cache byte budget and read-ahead
// configuration.
func New(astCapacityBytes int64, readahead ReadaheadConfig) *Cache {
	return &Cache{
		AST:       NewASTCache(astCapacityBytes),
		Query:     NewQueryCache(),
		Readahead: NewOptimizer(readahead),
	}
}

// InvalidateFile drops a file's AST cache entries and clears the query
// cache, since any cached query result may have been derived from data the
// file changed (spec.md §4: "deleting a node deletes ... its cache entries
// atomically from the querying surface").
func (c *Cache) InvalidateFile(filePath string) {
	c.AST.Invalidate(filePath)
	c.Query.InvalidateAll()
}
