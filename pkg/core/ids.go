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

package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
)

// identifierNamespace is a fixed UUID used as the base namespace for all
// deterministic (version-5) node ids. Keeping it fixed means the same
// (repositoryID, filePath, qualifiedName, kind, startByte) tuple always
// produces the same id, across machines and across reindexes.
var identifierNamespace = uuid.MustParse("6f1b1f6e-2f2a-4c9e-9b0e-9a4b6f2d9a11")

// NewNodeID derives a stable UUID for a node from its identity tuple.
//
// Using a name-based UUID (v5) instead of a random one is what makes
// invariant 3 in spec.md possible: content_hash uniquely determines whether
// the embedding must be recomputed, but only if the node id itself survives
// an unrelated reindex.
func NewNodeID(repositoryID, filePath, qualifiedName string, kind Kind, startByte int) string {
	key := fmt.Sprintf("%s|%s|%s|%s|%d", repositoryID, NormalizePath(filePath), qualifiedName, kind, startByte)
	return uuid.NewSHA1(identifierNamespace, []byte(key)).String()
}

// NewEdgeID derives a stable id for an edge from its endpoints and kind.
// Edges don't carry a start_byte, so two edges between the same pair of
// nodes with the same kind collapse onto the same id (last write wins),
// which matches the graph store's put_edge semantics.
func NewEdgeID(from, to string, kind EdgeKind) string {
	key := fmt.Sprintf("%s->%s:%s", from, to, kind)
	return uuid.NewSHA1(identifierNamespace, []byte(key)).String()
}

// NewEmbeddingID derives the id of the embedding owned by a node. Embeddings
// are 1:1 with nodes, so the id is simply a namespaced hash of the node id.
func NewEmbeddingID(nodeID string) string {
	return uuid.NewSHA1(identifierNamespace, []byte("embedding:"+nodeID)).String()
}

// ContentHash returns the hex-encoded SHA-256 digest of a source slice.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// NormalizePath canonicalizes a file path for identity and cache-key
// purposes: forward slashes, no "./" prefix, no leading "/".
func NormalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = filepath.ToSlash(path)
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}
