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

// maxChainNodesExplored bounds a call_chain search the same way
// TracePath bounded its breadth-first walk (maxNodesExplored =
// 5000 in pkg/tools/trace.go), so an unreachable target fails fast instead
// of scanning the whole graph.
const maxChainNodesExplored = 5000

// Every path map below stores node -> path-from-from-in-real-Calls-order,
// so both directions join on the same representation and no reversal is
// needed once the frontiers meet.
//
// CallChain implements "call_chain(from, to, max_depth) -> bidirectional
// BFS on Calls edges; returns the first path found; ties broken by shortest
// then lexicographic" (spec.md §4.8). It generalizes the
// single-direction TracePath (pkg/tools/trace.go) into a frontier expanded
// from both ends at once, which finds a depth-d path in roughly half the
// hops a one-directional search would need.
func (e *Engine) CallChain(ctx context.Context, from, to string, maxDepth int) ([]string, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if from == to {
		return []string{from}, nil
	}

	// fwdPaths[n] = [from, ..., n], following real Calls edges.
	fwdPaths := map[string][]string{from: {from}}
	// bwdPaths[n] = [n, ..., to], following real Calls edges (n calls ... calls to).
	bwdPaths := map[string][]string{to: {to}}
	fwdFrontier := []string{from}
	bwdFrontier := []string{to}
	explored := 1

	for depth := 0; depth < maxDepth; depth++ {
		var meeting []string
		var err error

		if len(fwdFrontier) <= len(bwdFrontier) {
			fwdFrontier, meeting, err = e.expandForward(ctx, fwdFrontier, fwdPaths, bwdPaths, &explored)
		} else {
			bwdFrontier, meeting, err = e.expandBackward(ctx, bwdFrontier, bwdPaths, fwdPaths, &explored)
		}
		if err != nil {
			return nil, err
		}
		if meeting != nil {
			return meeting, nil
		}
		if len(fwdFrontier) == 0 || len(bwdFrontier) == 0 || explored > maxChainNodesExplored {
			break
		}
	}
	return nil, nil
}

// expandForward advances the from-anchored frontier one hop along Calls
// edges (callee direction). It returns the full from->to path the instant a
// discovered node already has a path to `to` recorded on the backward side.
func (e *Engine) expandForward(ctx context.Context, frontier []string, fwdPaths, bwdPaths map[string][]string, explored *int) ([]string, []string, error) {
	type hop struct {
		id   string
		path []string
	}
	var hops []hop
	for _, id := range frontier {
		nbs, err := e.store.Neighbors(ctx, id, graphstore.DirectionOut, core.EdgeCalls)
		if err != nil {
			return nil, nil, err
		}
		for _, nb := range nbs {
			if _, seen := fwdPaths[nb.NodeID]; seen {
				continue
			}
			hops = append(hops, hop{id: nb.NodeID, path: append(append([]string{}, fwdPaths[id]...), nb.NodeID)})
		}
	}
	sort.Slice(hops, func(i, j int) bool { return hops[i].id < hops[j].id })

	var next []string
	for _, h := range hops {
		if _, seen := fwdPaths[h.id]; seen {
			continue
		}
		fwdPaths[h.id] = h.path
		*explored++
		if tail, ok := bwdPaths[h.id]; ok {
			return nil, joinChains(h.path, tail), nil
		}
		next = append(next, h.id)
	}
	return next, nil, nil
}

// expandBackward advances the to-anchored frontier one hop along reversed
// Calls edges (caller direction), keeping bwdPaths in the same
// real-Calls-order representation expandForward uses so the two join
// without any reversal step.
func (e *Engine) expandBackward(ctx context.Context, frontier []string, bwdPaths, fwdPaths map[string][]string, explored *int) ([]string, []string, error) {
	type hop struct {
		id   string
		path []string
	}
	var hops []hop
	for _, id := range frontier {
		nbs, err := e.store.Neighbors(ctx, id, graphstore.DirectionIn, core.EdgeCalls)
		if err != nil {
			return nil, nil, err
		}
		for _, nb := range nbs {
			if _, seen := bwdPaths[nb.NodeID]; seen {
				continue
			}
			// nb.NodeID calls id, so its real-order path is [nb.NodeID] + path(id ... to).
			hops = append(hops, hop{id: nb.NodeID, path: append([]string{nb.NodeID}, bwdPaths[id]...)})
		}
	}
	sort.Slice(hops, func(i, j int) bool { return hops[i].id < hops[j].id })

	var next []string
	for _, h := range hops {
		if _, seen := bwdPaths[h.id]; seen {
			continue
		}
		bwdPaths[h.id] = h.path
		*explored++
		if head, ok := fwdPaths[h.id]; ok {
			return nil, joinChains(head, h.path), nil
		}
		next = append(next, h.id)
	}
	return next, nil, nil
}

// joinChains splices a from->meetingNode path with a meetingNode->to path,
// both already in real-Calls-order, into one from->to sequence.
func joinChains(head, tail []string) []string {
	full := append([]string{}, head...)
	full = append(full, tail[1:]...)
	return full
}
