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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/kraklabs/codegraph/internal/coreerr"
	"github.com/kraklabs/codegraph/pkg/core"
)

// Values are encoded as a version byte, then length-prefixed strings and
// 8-byte big-endian integers in a fixed field order, followed by a
// JSON-encoded properties blob for the open-ended map. Decoding reads every
// field in order and copies each string out of the buffer; there is no
// zero-copy or random access to a single field.
const nodeRecordVersion uint8 = 1
const edgeRecordVersion uint8 = 1

func encodeNode(n core.Node) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(nodeRecordVersion)
	writeLenString(&buf, n.ID)
	writeLenString(&buf, string(n.Kind))
	writeLenString(&buf, n.Label)
	writeLenString(&buf, n.QualifiedName)
	writeLenString(&buf, string(n.Language))
	writeLenString(&buf, n.Location.FilePath)
	writeInt64(&buf, int64(n.Location.StartLine))
	writeInt64(&buf, int64(n.Location.EndLine))
	writeInt64(&buf, int64(n.Location.StartByte))
	writeInt64(&buf, int64(n.Location.EndByte))
	writeLenString(&buf, n.ContentHash)
	writeLenString(&buf, n.EmbeddingID)
	writeInt64(&buf, int64(n.Version))
	writeInt64(&buf, n.CreatedAt.UnixNano())
	writeInt64(&buf, n.UpdatedAt.UnixNano())

	props, err := json.Marshal(n.Properties)
	if err != nil {
		return nil, fmt.Errorf("marshal node properties: %w", err)
	}
	writeLenBytes(&buf, props)
	return buf.Bytes(), nil
}

func decodeNode(data []byte) (core.Node, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return core.Node{}, fmt.Errorf("%w: empty node record", coreerr.ErrCorruptStorage)
	}
	if version != nodeRecordVersion {
		return core.Node{}, fmt.Errorf("%w: node record version %d", coreerr.ErrSchemaMismatch, version)
	}

	var n core.Node
	n.ID = readLenString(r)
	n.Kind = core.Kind(readLenString(r))
	n.Label = readLenString(r)
	n.QualifiedName = readLenString(r)
	n.Language = core.Language(readLenString(r))
	n.Location.FilePath = readLenString(r)
	n.Location.StartLine = int(readInt64(r))
	n.Location.EndLine = int(readInt64(r))
	n.Location.StartByte = int(readInt64(r))
	n.Location.EndByte = int(readInt64(r))
	n.ContentHash = readLenString(r)
	n.EmbeddingID = readLenString(r)
	n.Version = uint64(readInt64(r))
	n.CreatedAt = time.Unix(0, readInt64(r)).UTC()
	n.UpdatedAt = time.Unix(0, readInt64(r)).UTC()

	props := readLenBytes(r)
	if len(props) > 0 {
		if err := json.Unmarshal(props, &n.Properties); err != nil {
			return core.Node{}, fmt.Errorf("%w: unmarshal node properties: %v", coreerr.ErrCorruptStorage, err)
		}
	}
	return n, nil
}

func encodeEdge(e core.Edge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(edgeRecordVersion)
	writeLenString(&buf, e.ID)
	writeLenString(&buf, e.From)
	writeLenString(&buf, e.To)
	writeLenString(&buf, string(e.Kind))
	writeInt64(&buf, int64(math.Float32bits(e.Weight)))
	writeInt64(&buf, e.CreatedAt.UnixNano())

	props, err := json.Marshal(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("marshal edge properties: %w", err)
	}
	writeLenBytes(&buf, props)
	return buf.Bytes(), nil
}

func decodeEdge(data []byte) (core.Edge, error) {
	r := bytes.NewReader(data)
	version, err := r.ReadByte()
	if err != nil {
		return core.Edge{}, fmt.Errorf("%w: empty edge record", coreerr.ErrCorruptStorage)
	}
	if version != edgeRecordVersion {
		return core.Edge{}, fmt.Errorf("%w: edge record version %d", coreerr.ErrSchemaMismatch, version)
	}

	var e core.Edge
	e.ID = readLenString(r)
	e.From = readLenString(r)
	e.To = readLenString(r)
	e.Kind = core.EdgeKind(readLenString(r))
	e.Weight = math.Float32frombits(uint32(readInt64(r)))
	e.CreatedAt = time.Unix(0, readInt64(r)).UTC()

	props := readLenBytes(r)
	if len(props) > 0 {
		if err := json.Unmarshal(props, &e.Properties); err != nil {
			return core.Edge{}, fmt.Errorf("%w: unmarshal edge properties: %v", coreerr.ErrCorruptStorage, err)
		}
	}
	return e, nil
}

// embeddingMetaRecord mirrors the embeddings_meta CF row described in
// spec.md §4.4: node_id -> (embedding_id, content_hash, model_name).
type embeddingMetaRecord struct {
	EmbeddingID string `json:"embedding_id"`
	ContentHash string `json:"content_hash"`
	ModelName   string `json:"model_name"`
}

func encodeEmbeddingMeta(m embeddingMetaRecord) ([]byte, error) {
	return json.Marshal(m)
}

func decodeEmbeddingMeta(data []byte) (embeddingMetaRecord, error) {
	var m embeddingMetaRecord
	if err := json.Unmarshal(data, &m); err != nil {
		return embeddingMetaRecord{}, fmt.Errorf("%w: %v", coreerr.ErrCorruptStorage, err)
	}
	return m, nil
}

func writeLenString(buf *bytes.Buffer, s string) {
	writeLenBytes(buf, []byte(s))
}

func writeLenBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLenString(r *bytes.Reader) string {
	return string(readLenBytes(r))
}

func readLenBytes(r *bytes.Reader) []byte {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil {
		return b
	}
	return b
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) int64 {
	var b [8]byte
	if _, err := r.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:]))
}
