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
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/kraklabs/codegraph/internal/coreerr"
	"github.com/kraklabs/codegraph/pkg/core"
)

// recover runs once on Open, after Badger has replayed its own WAL. It
// checks the on-disk schema version and, when the store already has data,
// reconciles the adjacency indices against the edges CF — spec.md §4.4's
// crash-recovery contract: "adj_out/adj_in row counts are checked against
// 2x the edge count; a mismatch triggers a repair scan that rebuilds the
// adjacency rows from the edges CF".
func (s *Store) recover() error {
	if err := s.checkSchemaVersion(); err != nil {
		return err
	}

	edgeCount, adjOutCount, adjInCount, err := s.countCFs()
	if err != nil {
		return err
	}

	if edgeCount == 0 {
		return nil
	}
	if adjOutCount == edgeCount && adjInCount == edgeCount {
		return nil
	}

	s.logger.Warn("graphstore adjacency index mismatch detected, running repair scan",
		"edges", edgeCount, "adj_out", adjOutCount, "adj_in", adjInCount)
	return s.repairAdjacency()
}

func (s *Store) checkSchemaVersion() error {
	key := metaKey("schema_version")
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err == badger.ErrKeyNotFound {
			var buf [4]byte
			binary.BigEndian.PutUint32(buf[:], SchemaVersion)
			return txn.Set(key, buf[:])
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		var stored uint32
		if err := item.Value(func(val []byte) error {
			if len(val) != 4 {
				return fmt.Errorf("%w: malformed schema version record", coreerr.ErrCorruptStorage)
			}
			stored = binary.BigEndian.Uint32(val)
			return nil
		}); err != nil {
			return err
		}
		if stored != SchemaVersion {
			return fmt.Errorf("%w: store was written with schema version %d, this build expects %d",
				coreerr.ErrSchemaMismatch, stored, SchemaVersion)
		}
		return nil
	})
}

func (s *Store) countCFs() (edges, adjOut, adjIn int, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		edges = countPrefix(txn, []byte(cfEdges+keySep))
		adjOut = countPrefix(txn, []byte(cfAdjOut+keySep))
		adjIn = countPrefix(txn, []byte(cfAdjIn+keySep))
		return nil
	})
	return
}

func countPrefix(txn *badger.Txn, prefix []byte) int {
	iopts := badger.IteratorOptions{PrefetchValues: false, Prefix: prefix}
	it := txn.NewIterator(iopts)
	defer it.Close()
	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// repairAdjacency drops every adj_out/adj_in row and rebuilds them from the
// edges CF, which remains the source of truth for relation data.
func (s *Store) repairAdjacency() error {
	var stale [][]byte
	var edges []edgeRow

	err := s.db.View(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{[]byte(cfAdjOut + keySep), []byte(cfAdjIn + keySep)} {
			iopts := badger.IteratorOptions{PrefetchValues: false, Prefix: prefix}
			it := txn.NewIterator(iopts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				k := it.Item().KeyCopy(nil)
				stale = append(stale, k)
			}
			it.Close()
		}

		prefix := []byte(cfEdges + keySep)
		iopts := badger.IteratorOptions{Prefix: prefix}
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				e, err := decodeEdge(val)
				if err != nil {
					return err
				}
				edges = append(edges, edgeRow{from: e.From, to: e.To, kind: e.Kind})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("repair adjacency scan: %w", err)
	}

	wb := s.db.NewWriteBatch()
	for _, key := range stale {
		if err := wb.Delete(key); err != nil {
			return fmt.Errorf("repair adjacency delete: %w", err)
		}
	}
	for _, e := range edges {
		if err := wb.Set(adjOutKey(e.from, e.kind, e.to), []byte{}); err != nil {
			return fmt.Errorf("repair adjacency set adj_out: %w", err)
		}
		if err := wb.Set(adjInKey(e.to, e.kind, e.from), []byte{}); err != nil {
			return fmt.Errorf("repair adjacency set adj_in: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("repair adjacency flush: %w", err)
	}

	s.logger.Info("graphstore adjacency repair complete", "edges_rebuilt", len(edges))
	return nil
}

type edgeRow struct {
	from, to string
	kind     core.EdgeKind
}
