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

package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/kraklabs/codegraph/internal/coreerr"
)

// fileMagic tags the on-disk vector index format so Load can refuse a file
// from an incompatible writer instead of misreading garbage as vectors.
var fileMagic = [4]byte{'C', 'G', 'V', 'X'}

const fileFormatVersion uint32 = 1

const (
	kindFlat uint8 = iota
	kindIVFFlat
)

// Persist serializes the index to path atomically: write to a temp file in
// the same directory, fsync, then rename — the same pattern
// pkg/ingestion/checkpoint.go uses, so a crash mid-write never corrupts the
// previous snapshot.
func (f *flatIndex) Persist(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return writeAtomic(path, func(w io.Writer) error {
		if err := writeHeader(w, kindFlat, f.dimension); err != nil {
			return err
		}
		return writeVectors(w, f.vectors, f.meta)
	})
}

func (f *flatIndex) Load(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kind, dim, err := readFile(path, func(r io.Reader) error {
		vectors, meta, err := readVectors(r)
		if err != nil {
			return err
		}
		f.vectors = vectors
		f.meta = meta
		return nil
	})
	if err != nil {
		return err
	}
	if kind != kindFlat {
		return fmt.Errorf("%w: expected flat index, found kind %d", coreerr.ErrCorruptStorage, kind)
	}
	f.dimension = dim
	return nil
}

func (ix *ivfFlatIndex) Persist(path string) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return writeAtomic(path, func(w io.Writer) error {
		if err := writeHeader(w, kindIVFFlat, ix.dimension); err != nil {
			return err
		}
		if err := writeBool(w, ix.trained); err != nil {
			return err
		}
		if err := writeVectorList(w, ix.centroids); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(ix.clusters))); err != nil {
			return err
		}
		for _, cluster := range ix.clusters {
			if err := writeVectors(w, cluster, nil); err != nil {
				return err
			}
		}
		return writeMetaTable(w, ix.meta)
	})
}

func (ix *ivfFlatIndex) Load(path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	kind, dim, err := readFile(path, func(r io.Reader) error {
		trained, err := readBool(r)
		if err != nil {
			return err
		}
		centroids, err := readVectorList(r)
		if err != nil {
			return err
		}
		nclusters, err := readUint32(r)
		if err != nil {
			return err
		}
		clusters := make([]map[string][]float32, nclusters)
		assigned := make(map[string]int)
		for i := 0; i < int(nclusters); i++ {
			vecs, _, err := readVectors(r)
			if err != nil {
				return err
			}
			clusters[i] = vecs
			for id := range vecs {
				assigned[id] = i
			}
		}
		meta, err := readMetaTable(r)
		if err != nil {
			return err
		}
		ix.trained = trained
		ix.centroids = centroids
		ix.clusters = clusters
		ix.assigned = assigned
		ix.meta = meta
		return nil
	})
	if err != nil {
		return err
	}
	if kind != kindIVFFlat {
		return fmt.Errorf("%w: expected ivf-flat index, found kind %d", coreerr.ErrCorruptStorage, kind)
	}
	ix.dimension = dim
	return nil
}

func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	bw := bufio.NewWriter(tmp)
	if err := write(bw); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func writeHeader(w io.Writer, kind uint8, dimension int) error {
	if _, err := w.Write(fileMagic[:]); err != nil {
		return err
	}
	if err := writeUint32(w, fileFormatVersion); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(dimension)); err != nil {
		return err
	}
	_, err := w.Write([]byte{kind})
	return err
}

func readFile(path string, read func(io.Reader) error) (uint8, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open index file: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return 0, 0, fmt.Errorf("%w: read magic: %v", coreerr.ErrCorruptStorage, err)
	}
	if magic != fileMagic {
		return 0, 0, fmt.Errorf("%w: bad magic %q", coreerr.ErrCorruptStorage, magic)
	}
	version, err := readUint32(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: read version: %v", coreerr.ErrCorruptStorage, err)
	}
	if version != fileFormatVersion {
		return 0, 0, fmt.Errorf("%w: unsupported index format version %d", coreerr.ErrSchemaMismatch, version)
	}
	dim, err := readUint32(r)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: read dimension: %v", coreerr.ErrCorruptStorage, err)
	}
	kindByte := make([]byte, 1)
	if _, err := io.ReadFull(r, kindByte); err != nil {
		return 0, 0, fmt.Errorf("%w: read kind: %v", coreerr.ErrCorruptStorage, err)
	}
	if err := read(r); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", coreerr.ErrCorruptStorage, err)
	}
	return kindByte[0], int(dim), nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeBool(w io.Writer, b bool) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return false, err
	}
	return b[0] == 1, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeVector(w io.Writer, vec []float32) error {
	if err := writeUint32(w, uint32(len(vec))); err != nil {
		return err
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readVector(r io.Reader) ([]float32, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

func writeVectorList(w io.Writer, vecs [][]float32) error {
	if err := writeUint32(w, uint32(len(vecs))); err != nil {
		return err
	}
	for _, v := range vecs {
		if err := writeVector(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readVectorList(r io.Reader) ([][]float32, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([][]float32, n)
	for i := range out {
		v, err := readVector(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func writeVectors(w io.Writer, vectors map[string][]float32, meta map[string]Metadata) error {
	if err := writeUint32(w, uint32(len(vectors))); err != nil {
		return err
	}
	for id, vec := range vectors {
		if err := writeString(w, id); err != nil {
			return err
		}
		if err := writeVector(w, vec); err != nil {
			return err
		}
	}
	return writeMetaTable(w, meta)
}

func readVectors(r io.Reader) (map[string][]float32, map[string]Metadata, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, nil, err
	}
	vectors := make(map[string][]float32, n)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, nil, err
		}
		vec, err := readVector(r)
		if err != nil {
			return nil, nil, err
		}
		vectors[id] = vec
	}
	meta, err := readMetaTable(r)
	if err != nil {
		return nil, nil, err
	}
	return vectors, meta, nil
}

func writeMetaTable(w io.Writer, meta map[string]Metadata) error {
	if err := writeUint32(w, uint32(len(meta))); err != nil {
		return err
	}
	for id, m := range meta {
		if err := writeString(w, id); err != nil {
			return err
		}
		if err := writeString(w, m.Language); err != nil {
			return err
		}
		if err := writeString(w, m.FilePath); err != nil {
			return err
		}
		if err := writeString(w, m.Kind); err != nil {
			return err
		}
	}
	return nil
}

func readMetaTable(r io.Reader) (map[string]Metadata, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]Metadata, n)
	for i := uint32(0); i < n; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		lang, err := readString(r)
		if err != nil {
			return nil, err
		}
		path, err := readString(r)
		if err != nil {
			return nil, err
		}
		kind, err := readString(r)
		if err != nil {
			return nil, err
		}
		meta[id] = Metadata{Language: lang, FilePath: path, Kind: kind}
	}
	return meta, nil
}
