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

package graphstore

import (
	"strings"

	"github.com/kraklabs/codegraph/pkg/core"
)

// Badger has no column families, so each of spec.md §4.4's named CFs
// becomes a key prefix within the same keyspace. The separator is a NUL
// byte, which never appears in a node id (a UUID) or a repository-relative
// path after core.NormalizePath, so prefix scans never spill across CFs or
// across a multi-field key's component boundaries.
const keySep = "\x00"

const (
	cfNodes          = "n"
	cfEdges          = "e"
	cfAdjOut         = "ao"
	cfAdjIn          = "ai"
	cfByFile         = "bf"
	cfByQName        = "bq"
	cfEmbeddingsMeta = "em"
	cfMeta           = "m"
)

func nodeKey(id string) []byte {
	return []byte(cfNodes + keySep + id)
}

func edgeKey(id string) []byte {
	return []byte(cfEdges + keySep + id)
}

func adjOutKey(from string, kind core.EdgeKind, to string) []byte {
	return []byte(strings.Join([]string{cfAdjOut, from, string(kind), to}, keySep))
}

func adjOutPrefix(from string, kind core.EdgeKind) []byte {
	if kind == "" {
		return []byte(strings.Join([]string{cfAdjOut, from, ""}, keySep))
	}
	return []byte(strings.Join([]string{cfAdjOut, from, string(kind), ""}, keySep))
}

func adjInKey(to string, kind core.EdgeKind, from string) []byte {
	return []byte(strings.Join([]string{cfAdjIn, to, string(kind), from}, keySep))
}

func adjInPrefix(to string, kind core.EdgeKind) []byte {
	if kind == "" {
		return []byte(strings.Join([]string{cfAdjIn, to, ""}, keySep))
	}
	return []byte(strings.Join([]string{cfAdjIn, to, string(kind), ""}, keySep))
}

func byFileKey(filePath, nodeID string) []byte {
	return []byte(strings.Join([]string{cfByFile, filePath, nodeID}, keySep))
}

func byFilePrefix(filePath string) []byte {
	return []byte(strings.Join([]string{cfByFile, filePath, ""}, keySep))
}

func byQNameKey(qualifiedName, nodeID string) []byte {
	return []byte(strings.Join([]string{cfByQName, qualifiedName, nodeID}, keySep))
}

func byQNamePrefix(qualifiedName string) []byte {
	return []byte(strings.Join([]string{cfByQName, qualifiedName, ""}, keySep))
}

func embeddingMetaKey(nodeID string) []byte {
	return []byte(cfEmbeddingsMeta + keySep + nodeID)
}

func metaKey(name string) []byte {
	return []byte(cfMeta + keySep + name)
}

// lastComponent returns the final NUL-separated field of a composite key,
// used to recover the trailing id from an adj_*/by_* key during a scan.
func lastComponent(key []byte) string {
	s := string(key)
	idx := strings.LastIndex(s, keySep)
	if idx < 0 {
		return s
	}
	return s[idx+1:]
}
