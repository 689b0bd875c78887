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

package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/internal/coreerr"
)

func TestTruncateMiddleOut(t *testing.T) {
	short := "package main"
	out, truncated := TruncateMiddleOut(short, 2000)
	assert.False(t, truncated)
	assert.Equal(t, short, out)

	long := strings.Repeat("a", 5000)
	out, truncated = TruncateMiddleOut(long, 2000)
	assert.True(t, truncated)
	assert.LessOrEqual(t, len(out), 2000)
	assert.True(t, strings.HasPrefix(out, "aaaa"))
	assert.True(t, strings.HasSuffix(out, "aaaa"))
}

func fakeOpenAIServer(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		resp := openAIEmbedResponse{}
		for i := range req.Input {
			vec := make([]float64, dim)
			for j := range vec {
				vec[j] = 1.0
			}
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float64 `json:"embedding"`
			}{Index: i, Embedding: vec})
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestClientEmbedBatch(t *testing.T) {
	srv := fakeOpenAIServer(t, 4)
	defer srv.Close()

	c, err := New(Config{
		Dialect:   DialectOpenAICompatible,
		BaseURL:   srv.URL,
		Model:     "test-model",
		Dimension: 4,
		BatchSize: 2,
	}, nil)
	require.NoError(t, err)

	results, err := c.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.Len(t, r.Vector, 4)
		// Normalized: each component should be 0.5 for a uniform vector of 1s in dim 4.
		assert.InDelta(t, 0.5, r.Vector[0], 1e-6)
	}
}

func TestClientDimensionMismatch(t *testing.T) {
	srv := fakeOpenAIServer(t, 4)
	defer srv.Close()

	c, err := New(Config{
		Dialect:   DialectOpenAICompatible,
		BaseURL:   srv.URL,
		Model:     "test-model",
		Dimension: 8,
	}, nil)
	require.NoError(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.ErrDimensionMismatch)
}

func TestClientRetriesOn503ThenFails(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{
		Dialect:    DialectOpenAICompatible,
		BaseURL:    srv.URL,
		Model:      "test-model",
		MaxRetries: 2,
	}, nil)
	require.NoError(t, err)

	_, err = c.EmbedBatch(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.ErrorIs(t, err, coreerr.ErrEmbeddingUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
