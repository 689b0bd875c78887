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
	"context"
	"sync"
	"time"

	"github.com/kraklabs/codegraph/pkg/core"
)

// coalesceWindow is how long coalescer batches concurrent single-node reads
// before flushing them as one multi-get, per spec.md §4.4's read coalescing.
const coalesceWindow = 300 * time.Microsecond

// coalesceMaxBatch caps how many pending gets one flush serves, so a burst
// of requests can't grow the underlying multi-get without bound.
const coalesceMaxBatch = 256

type coalesceRequest struct {
	id     string
	result chan coalesceResult
}

type coalesceResult struct {
	node *core.Node
	err  error
}

// coalescer batches concurrent GetNode calls arriving within coalesceWindow
// into a single multiGet, trading a small fixed latency for far fewer
// round trips when many callers fetch different nodes at once (e.g. a
// subgraph traversal's frontier expansion).
type coalescer struct {
	multiGet func([]string) (map[string]*core.Node, error)

	mu      sync.Mutex
	pending []coalesceRequest
	timer   *time.Timer

	closed chan struct{}
	once   sync.Once
}

func newCoalescer(multiGet func([]string) (map[string]*core.Node, error)) *coalescer {
	return &coalescer{
		multiGet: multiGet,
		closed:   make(chan struct{}),
	}
}

func (c *coalescer) stop() {
	c.once.Do(func() { close(c.closed) })
}

func (c *coalescer) get(ctx context.Context, id string) (*core.Node, error) {
	req := coalesceRequest{id: id, result: make(chan coalesceResult, 1)}

	c.mu.Lock()
	c.pending = append(c.pending, req)
	flushNow := len(c.pending) >= coalesceMaxBatch
	if flushNow {
		batch := c.pending
		c.pending = nil
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.mu.Unlock()
		c.flush(batch)
	} else {
		if c.timer == nil {
			c.timer = time.AfterFunc(coalesceWindow, c.flushPending)
		}
		c.mu.Unlock()
	}

	select {
	case res := <-req.result:
		return res.node, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, context.Canceled
	}
}

func (c *coalescer) flushPending() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.timer = nil
	c.mu.Unlock()
	if len(batch) > 0 {
		c.flush(batch)
	}
}

func (c *coalescer) flush(batch []coalesceRequest) {
	ids := make([]string, len(batch))
	for i, r := range batch {
		ids[i] = r.id
	}
	nodes, err := c.multiGet(ids)
	for _, r := range batch {
		if err != nil {
			r.result <- coalesceResult{err: err}
			continue
		}
		r.result <- coalesceResult{node: nodes[r.id]}
	}
}
