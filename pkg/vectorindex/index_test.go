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
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatIndexUpsertSearchDelete(t *testing.T) {
	idx := newFlatIndex(3, nil)
	require.NoError(t, idx.Upsert("a", []float32{1, 0, 0}, Metadata{Language: "go"}))
	require.NoError(t, idx.Upsert("b", []float32{0, 1, 0}, Metadata{Language: "python"}))
	require.NoError(t, idx.Upsert("c", []float32{0.9, 0.1, 0}, Metadata{Language: "go"}))

	matches, err := idx.Search([]float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].NodeID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-4)

	filtered, err := idx.Search([]float32{1, 0, 0}, 5, func(m Metadata) bool { return m.Language == "python" })
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "b", filtered[0].NodeID)

	idx.Delete("a")
	assert.Equal(t, 2, idx.Len())
}

func TestFlatIndexDimensionMismatch(t *testing.T) {
	idx := newFlatIndex(3, nil)
	err := idx.Upsert("a", []float32{1, 0}, Metadata{})
	require.Error(t, err)
}

func TestFlatIndexPersistLoad(t *testing.T) {
	idx := newFlatIndex(2, nil)
	require.NoError(t, idx.Upsert("a", []float32{1, 1}, Metadata{Language: "go", FilePath: "a.go", Kind: "Function"}))
	require.NoError(t, idx.Upsert("b", []float32{1, -1}, Metadata{Language: "python"}))

	path := filepath.Join(t.TempDir(), "index.cgvx")
	require.NoError(t, idx.Persist(path))

	loaded := newFlatIndex(0, nil)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Len())

	matches, err := loaded.Search([]float32{1, 1}, 1, nil)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].NodeID)
}

func TestIVFFlatIndexTrainAndSearch(t *testing.T) {
	idx := newIVFFlatIndex(2, nil)
	for i := 0; i < 200; i++ {
		var v []float32
		if i%2 == 0 {
			v = []float32{1, float32(i) * 0.0001}
		} else {
			v = []float32{-1, float32(i) * 0.0001}
		}
		require.NoError(t, idx.Upsert(string(rune('a'+i%26))+string(rune(i)), v, Metadata{}))
	}
	idx.Train()
	assert.True(t, idx.trained)
	assert.Greater(t, len(idx.centroids), 1)

	matches, err := idx.Search([]float32{1, 0}, 5, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, matches)
}

func TestIVFFlatIndexPersistLoad(t *testing.T) {
	idx := newIVFFlatIndex(2, nil)
	require.NoError(t, idx.Upsert("a", []float32{1, 0}, Metadata{Language: "go"}))
	require.NoError(t, idx.Upsert("b", []float32{0, 1}, Metadata{Language: "python"}))
	idx.Train()

	path := filepath.Join(t.TempDir(), "ivf.cgvx")
	require.NoError(t, idx.Persist(path))

	loaded := newIVFFlatIndex(0, nil)
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, 2, loaded.Len())
	assert.True(t, loaded.trained)
}

func TestNewChoosesFlatBelowThreshold(t *testing.T) {
	idx := New(4, 10, nil)
	_, ok := idx.(*flatIndex)
	assert.True(t, ok)
}

func TestNewChoosesIVFAboveThreshold(t *testing.T) {
	idx := New(4, FlatIndexThreshold+1, nil)
	_, ok := idx.(*ivfFlatIndex)
	assert.True(t, ok)
}
