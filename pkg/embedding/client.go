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

// Package embedding turns batches of entity text into vectors by calling a
// local OpenAI-compatible inference server (LM Studio, Ollama, or any other
// openai-compatible dialect), with batching, truncation, and retry. It is
// the generalization of the pkg/ingestion EmbeddingProvider family
// behind one dialect-selectable Client instead of five bespoke provider
// structs wired up by a provider-name switch.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/codegraph/internal/coreerr"
)

// Config configures a Client. Zero-value fields fall back to the defaults
// named in spec.md §4.2.
type Config struct {
	Dialect     Dialect
	BaseURL     string
	Model       string
	APIKey      string
	Dimension   int // asserted vector dimension; 0 disables the check
	BatchSize   int
	Timeout     time.Duration
	MaxRetries  int
	Concurrency int
	MaxChars    int // per-text truncation budget before sending to the provider
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxChars <= 0 {
		c.MaxChars = DefaultMaxChars
	}
	return c
}

// Client implements C2's embed_batch contract: batched, retried, truncated,
// dimension-checked calls to a single configured provider.
type Client struct {
	cfg        Config
	provider   provider
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// New builds a Client for the given configuration. A nil logger defaults to
// slog.Default().
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalized()

	p, err := newProvider(cfg.Dialect, cfg.BaseURL, cfg.Model, cfg.APIKey)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:      cfg,
		provider: p,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		retry:  RetryConfig{MaxRetries: cfg.MaxRetries, InitialBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second, Multiplier: 2.0}.normalized(),
		logger: logger,
	}, nil
}

// Model returns the model name embeddings from this client are tagged with,
// so callers persisting embedding metadata (the indexer's persist stage)
// don't need to carry their own copy of the configuration.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Result is one embedded text's outcome: either a vector or an error.
type Result struct {
	Vector    []float32
	Truncated bool
}

// EmbedBatch implements embed_batch(texts) -> vectors, same order, same
// length, per spec.md §4.2. Texts are truncated middle-out at MaxChars
// before being sent. Batches larger than BatchSize are split into
// sub-batches dispatched with bounded concurrency; a sub-batch that
// exhausts its retries fails the whole call with EmbeddingUnavailable, so
// callers (the indexer) can downgrade the affected nodes to
// embedding_pending rather than losing track of partial success.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prepared := make([]Result, len(texts))
	truncatedTexts := make([]string, len(texts))
	truncatedCount := 0
	for i, t := range texts {
		out, wasTruncated := TruncateMiddleOut(t, c.cfg.MaxChars)
		truncatedTexts[i] = out
		prepared[i].Truncated = wasTruncated
		if wasTruncated {
			truncatedCount++
		}
	}
	if truncatedCount > 0 {
		c.logger.Info("embedding.batch.truncated", "count", truncatedCount, "total", len(texts))
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)

	for start := 0; start < len(truncatedTexts); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(truncatedTexts) {
			end = len(truncatedTexts)
		}
		start, end := start, end
		g.Go(func() error {
			vecs, err := c.embedWithRetry(gctx, truncatedTexts[start:end])
			if err != nil {
				return err
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", coreerr.ErrEmbeddingUnavailable, err)
	}

	for i, vec := range results {
		if c.cfg.Dimension > 0 && len(vec) != c.cfg.Dimension {
			return nil, fmt.Errorf("%w: expected dimension %d, got %d", coreerr.ErrDimensionMismatch, c.cfg.Dimension, len(vec))
		}
		prepared[i].Vector = normalize(vec)
	}
	return prepared, nil
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < c.retry.MaxRetries; attempt++ {
		vecs, _, err := c.provider.embed(ctx, c.httpClient, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		var se *statusError
		retryable := errors.As(err, &se) && se.retryable
		if !retryable || attempt == c.retry.MaxRetries-1 {
			break
		}

		sleep := backoffWithFullJitter(c.retry, attempt)
		c.logger.Warn("embedding.retry", "attempt", attempt+1, "sleep_ms", sleep.Milliseconds(), "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	return nil, lastErr
}

func normalize(vec []float32) []float32 {
	if len(vec) == 0 {
		return vec
	}
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	normf := float32(norm)
	for i, v := range vec {
		out[i] = v / normf
	}
	return out
}
