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

package query

import (
	"context"
	"sort"

	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/graphstore"
)

// PublicProperty is the Node.Properties key api_surface reads to decide
// which Declares targets belong to the module's public surface: only
// targets whose value under this key is the boolean true are returned.
// pkg/parser does not set this property on the nodes it emits.
const PublicProperty = "public"

// APISurface implements "api_surface(module_id) -> nodes tagged public
// reachable by Declares from the module node" (spec.md §4.8).
func (e *Engine) APISurface(ctx context.Context, moduleID string) ([]core.Node, error) {
	nbs, err := e.store.Neighbors(ctx, moduleID, graphstore.DirectionOut, core.EdgeDeclares)
	if err != nil {
		return nil, err
	}
	if len(nbs) == 0 {
		return nil, nil
	}

	ids := make([]string, len(nbs))
	for i, nb := range nbs {
		ids[i] = nb.NodeID
	}
	hydrated, err := e.store.GetNodes(ctx, ids)
	if err != nil {
		return nil, err
	}

	var public []core.Node
	for _, id := range ids {
		n := hydrated[id]
		if n == nil {
			continue
		}
		if isPublic, ok := n.Properties[PublicProperty].(bool); ok && isPublic {
			public = append(public, *n)
		}
	}
	sort.Slice(public, func(i, j int) bool { return public[i].QualifiedName < public[j].QualifiedName })
	return public, nil
}
