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
	"log/slog"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Defaults for the adaptive write batcher, per spec.md §4.4: flush every
// opsThreshold writes or timeThreshold elapsed, whichever comes first, then
// retune opsThreshold from the observed flush latency.
const (
	defaultOpsThreshold  = 64
	minWriteOps          = 8
	maxWriteOps          = 2048
	defaultTimeThreshold = 5 * time.Millisecond
	targetFlushLatency   = 2 * time.Millisecond
	ewmaAlpha            = 0.2
)

type pendingWrite struct {
	sets    []kv
	deletes [][]byte
	done    chan error
}

// adaptiveBatcher coalesces PutNode/PutEdge/DeleteNode calls into Badger
// write batches, retuning its flush threshold from an exponentially weighted
// moving average of observed flush latency so it grows the batch size when
// Badger is keeping up and shrinks it when flushes start lagging.
type adaptiveBatcher struct {
	db     *badger.DB
	logger *slog.Logger

	mu           sync.Mutex
	queue        []pendingWrite
	opsThreshold int
	avgLatency   time.Duration
	timer        *time.Timer

	closed chan struct{}
	once   sync.Once
}

func newAdaptiveBatcher(db *badger.DB, logger *slog.Logger) *adaptiveBatcher {
	return &adaptiveBatcher{
		db:           db,
		logger:       logger,
		opsThreshold: defaultOpsThreshold,
		avgLatency:   targetFlushLatency,
		closed:       make(chan struct{}),
	}
}

func (b *adaptiveBatcher) stop() {
	b.once.Do(func() {
		close(b.closed)
		b.mu.Lock()
		queue := b.queue
		b.queue = nil
		if b.timer != nil {
			b.timer.Stop()
		}
		b.mu.Unlock()
		if len(queue) > 0 {
			b.flush(queue)
		}
	})
}

// submit enqueues a write; it blocks until the write's batch has flushed
// (successfully or not), giving callers synchronous, ordered semantics over
// an asynchronously-batched backend.
func (b *adaptiveBatcher) submit(ctx context.Context, sets []kv, deletes [][]byte) error {
	w := pendingWrite{sets: sets, deletes: deletes, done: make(chan error, 1)}

	ops := len(sets) + len(deletes)
	b.mu.Lock()
	b.queue = append(b.queue, w)
	flushNow := ops >= b.opsThreshold || len(b.queue) >= b.opsThreshold
	var batch []pendingWrite
	if flushNow {
		batch = b.queue
		b.queue = nil
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
	} else if b.timer == nil {
		b.timer = time.AfterFunc(defaultTimeThreshold, b.flushTimer)
	}
	b.mu.Unlock()

	if flushNow {
		b.flush(batch)
	}

	select {
	case err := <-w.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *adaptiveBatcher) flushTimer() {
	b.mu.Lock()
	batch := b.queue
	b.queue = nil
	b.timer = nil
	b.mu.Unlock()
	if len(batch) > 0 {
		b.flush(batch)
	}
}

func (b *adaptiveBatcher) flush(batch []pendingWrite) {
	start := time.Now()
	wb := b.db.NewWriteBatch()

	err := func() error {
		for _, w := range batch {
			for _, kv := range w.sets {
				if err := wb.Set(kv.Key, kv.Value); err != nil {
					return err
				}
			}
			for _, key := range w.deletes {
				if err := wb.Delete(key); err != nil {
					return err
				}
			}
		}
		return wb.Flush()
	}()

	latency := time.Since(start)
	b.retune(latency)

	for _, w := range batch {
		w.done <- err
	}
}

// retune adjusts opsThreshold from an EWMA of flush latency: batches
// finishing comfortably under targetFlushLatency can grow (fewer, larger
// flushes), batches running over it shrink (flush sooner, keep tail latency
// bounded), per spec.md §4.4's "adaptive batching" requirement.
func (b *adaptiveBatcher) retune(latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.avgLatency = time.Duration(float64(b.avgLatency)*(1-ewmaAlpha) + float64(latency)*ewmaAlpha)

	switch {
	case b.avgLatency < targetFlushLatency/2 && b.opsThreshold < maxWriteOps:
		b.opsThreshold *= 2
		if b.opsThreshold > maxWriteOps {
			b.opsThreshold = maxWriteOps
		}
	case b.avgLatency > targetFlushLatency && b.opsThreshold > minWriteOps:
		b.opsThreshold /= 2
		if b.opsThreshold < minWriteOps {
			b.opsThreshold = minWriteOps
		}
	}
}
