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

package indexer

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/codegraph/internal/metrics"
	"github.com/kraklabs/codegraph/pkg/cache"
	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/parser"
	"github.com/kraklabs/codegraph/pkg/vectorindex"
)

// Config configures an Indexer. A zero Concurrency falls back to one worker
// per logical CPU, and a zero MaxFileSize to 1 MiB.
type Config struct {
	RepositoryID string
	Concurrency  int // bounded worker count for the parse and embed stages
	ExcludeGlobs []string
	MaxFileSize  int64
}

func (c Config) normalized() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = runtime.NumCPU()
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = 1 << 20
	}
	return c
}

// Result summarizes one index run, generalizing pkg/ingestion/local_pipeline.go's
// IngestionResult to the language-agnostic
// pipeline: no Datalog-specific EntitiesSent/EntitiesRetried counters, no
// single-repository-clone RunID, but the same shape of "what happened and
// how long did it take."
type Result struct {
	FilesDiscovered int
	FilesParsed     int
	FilesSkipped    int
	ParseErrors     int
	NodesWritten    int
	EdgesWritten    int
	EdgesUnresolved int
	EmbeddingsBuilt int

	ParseDuration   time.Duration
	EmbedDuration   time.Duration
	PersistDuration time.Duration
	TotalDuration   time.Duration
}

// Indexer owns one repository's discover -> parse -> embed -> resolve ->
// persist pipeline (C7), wired to the graph store (C5), the vector index
// (C4), the embedding client (C2), the Tree-sitter parser (C3), and the AST
// cache (C6), the same set of collaborators pkg/ingestion/local_pipeline.go's
// LocalPipeline holds onto, substituting each CozoDB/bespoke-provider field
// for its graph-native equivalent.
type Indexer struct {
	cfg      Config
	store    *graphstore.Store
	index    vectorindex.Index
	embedder *embedding.Client
	parser   *parser.Parser
	cache    *cache.Cache
	metrics  *metrics.Registry
	logger   *slog.Logger
}

// New builds an Indexer. cache and metrics may be nil (a fresh AST cache /
// the default registry is used respectively); the embedder and index must
// not be nil since a run with no embedding step isn't a CodeGraph index.
func New(cfg Config, store *graphstore.Store, index vectorindex.Index, embedder *embedding.Client, p *parser.Parser, c *cache.Cache, reg *metrics.Registry, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if c == nil {
		c = cache.New(128<<20, cache.DefaultReadaheadConfig())
	}
	if reg == nil {
		reg = metrics.Default()
	}
	return &Indexer{
		cfg: cfg.normalized(), store: store, index: index, embedder: embedder,
		parser: p, cache: c, metrics: reg, logger: logger,
	}
}

// parsedFile pairs one file's extraction result with its raw bytes, which
// the embed stage slices per-node text out of (spec.md §4.2: embedding
// input text is the node's own source range, not a synthesized summary).
type parsedFile struct {
	content []byte
	result  *parser.ExtractionResult
}

// Run executes a full index of root: every supported file is discovered,
// parsed (or served from the AST cache when its content hash is unchanged),
// cross-file calls/uses are resolved, embeddings are generated for every
// entity node, and everything is persisted to the graph store and vector
// index. It implements spec.md §4.6's full (non-incremental) indexing mode.
func (ix *Indexer) Run(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	defer func() {
		if ix.metrics != nil {
			ix.metrics.IndexDuration.Observe(time.Since(start).Seconds())
		}
	}()

	files, err := Discover(DiscoverOptions{Root: root, ExcludeGlobs: ix.cfg.ExcludeGlobs, MaxFileSize: ix.cfg.MaxFileSize})
	if err != nil {
		return nil, err
	}

	res := &Result{FilesDiscovered: len(files)}

	parseStart := time.Now()
	parsed := ix.parseAll(ctx, files, res)
	res.ParseDuration = time.Since(parseStart)

	allNodes, containsEdges, abstractEdges := flattenParsed(parsed)
	resolved, unresolved := resolveAbstractEdges(ix.cfg.RepositoryID, allNodes, abstractEdges)
	res.EdgesUnresolved = unresolved

	embedStart := time.Now()
	ix.embedAll(ctx, allNodes, parsed, res)
	res.EmbedDuration = time.Since(embedStart)

	persistStart := time.Now()
	if err := ix.persistAll(ctx, allNodes, append(containsEdges, resolved...), res); err != nil {
		return nil, err
	}
	res.PersistDuration = time.Since(persistStart)

	res.TotalDuration = time.Since(start)
	return res, nil
}

// parseAll parses every discovered file with a bounded worker pool (spec.md
// §4.6 stage 2: "parse stage runs with bounded concurrency, one worker per
// logical CPU by default"), consulting the AST cache first so an unchanged
// file's parse tree is reused across runs.
func (ix *Indexer) parseAll(ctx context.Context, files []DiscoveredFile, res *Result) []parsedFile {
	out := make([]*parsedFile, len(files))
	var mu sync.Mutex
	var parseErrors, skipped int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.cfg.Concurrency)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			content, readErr := ReadFile(f.Path)
			if readErr != nil {
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			key := cache.ASTKey{FilePath: f.RelPath, ContentHash: core.ContentHash(content), GrammarVersion: parserGrammarVersion}
			if cached := ix.cache.AST.Get(key); cached != nil {
				if ix.metrics != nil {
					ix.metrics.CacheHits.Inc()
				}
				out[i] = &parsedFile{content: content, result: cached}
				return nil
			}
			if ix.metrics != nil {
				ix.metrics.CacheMisses.Inc()
			}

			result, parseErr := ix.parser.Parse(gctx, ix.cfg.RepositoryID, f.RelPath, content)
			if parseErr != nil {
				mu.Lock()
				parseErrors++
				mu.Unlock()
				if ix.metrics != nil {
					ix.metrics.ParseErrors.Inc()
				}
				return nil
			}
			ix.cache.AST.Put(key, result)
			out[i] = &parsedFile{content: content, result: result}
			return nil
		})
	}
	_ = g.Wait() // individual failures are recorded per-file above, never fatal to the run

	parsed := make([]parsedFile, 0, len(out))
	for _, p := range out {
		if p != nil {
			parsed = append(parsed, *p)
		}
	}

	res.FilesParsed = len(parsed)
	res.ParseErrors = parseErrors
	res.FilesSkipped = skipped
	if ix.metrics != nil {
		ix.metrics.FilesIndexed.Add(float64(len(parsed)))
		ix.metrics.FilesSkipped.Add(float64(skipped))
	}
	return parsed
}

// parserGrammarVersion is bumped whenever pkg/parser's emitted entity shape
// changes in a way that invalidates previously cached ASTs.
const parserGrammarVersion = 1

func flattenParsed(parsed []parsedFile) ([]core.Node, []core.Edge, []parser.AbstractEdge) {
	var nodes []core.Node
	var edges []core.Edge
	var abstract []parser.AbstractEdge
	for _, p := range parsed {
		nodes = append(nodes, p.result.Nodes...)
		edges = append(edges, p.result.Edges...)
		abstract = append(abstract, p.result.AbstractEdges...)
	}
	return nodes, edges, abstract
}

// embeddableKinds are the node kinds spec.md §4.2 embeds text for; a File or
// Import node has no standalone meaning as a semantic-search hit.
var embeddableKinds = map[core.Kind]bool{
	core.KindFunction: true, core.KindMethod: true, core.KindClass: true,
	core.KindModule: true, core.KindAPI: true,
}

// embedAll generates an embedding for every embeddable node and assigns its
// EmbeddingID in place, mutating nodes (matching pkg/ingestion/local_pipeline.go,
// which annotates the in-memory entity before the write stage rather than
// threading a parallel slice of embedding results through to persist()).
func (ix *Indexer) embedAll(ctx context.Context, nodes []core.Node, parsed []parsedFile, res *Result) {
	contentByFile := make(map[string][]byte, len(parsed))
	for _, p := range parsed {
		contentByFile[p.result.FilePath] = p.content
	}

	var texts []string
	var targets []int
	for i, n := range nodes {
		if !embeddableKinds[n.Kind] {
			continue
		}
		content, ok := contentByFile[n.Location.FilePath]
		if !ok {
			continue
		}
		texts = append(texts, sliceText(content, n.Location))
		targets = append(targets, i)
	}
	if len(texts) == 0 {
		return
	}

	results, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		ix.logger.Warn("indexer.embed.failed", "err", err, "count", len(texts))
		if ix.metrics != nil {
			ix.metrics.EmbeddingsPending.Add(float64(len(texts)))
		}
		return
	}

	for j, r := range results {
		i := targets[j]
		nodes[i].EmbeddingID = core.NewEmbeddingID(nodes[i].ID)
		nodes[i].Properties = withVector(nodes[i].Properties, r.Vector)
	}
	res.EmbeddingsBuilt = len(results)
	if ix.metrics != nil {
		ix.metrics.EmbeddingsGenerated.Add(float64(len(results)))
	}
}

// vectorPropertyKey stashes the embedded vector on the node's Properties map
// between embedAll and persistAll, since core.Node has no dedicated Vector
// field (a Node is a graph entity; the vector itself belongs to vectorindex,
// not to the graph store's node record).
const vectorPropertyKey = "__vector"

func withVector(props map[string]core.Value, vec []float32) map[string]core.Value {
	if props == nil {
		props = map[string]core.Value{}
	}
	props[vectorPropertyKey] = vec
	return props
}

func sliceText(content []byte, loc core.Location) string {
	start, end := loc.StartByte, loc.EndByte
	if start < 0 {
		start = 0
	}
	if end > len(content) {
		end = len(content)
	}
	if start >= end {
		return ""
	}
	return string(content[start:end])
}

// persistAll writes every node to the graph store, each embedded node's
// vector to the vector index and its embedding metadata to the
// embeddings_meta column family right after the node itself, and then every
// edge once all nodes are written. Nothing groups these writes by file, so
// a crash mid-run can leave a file's nodes persisted without its edges.
func (ix *Indexer) persistAll(ctx context.Context, nodes []core.Node, edges []core.Edge, res *Result) error {
	for i := range nodes {
		n := nodes[i]
		vec, hasVector := n.Properties[vectorPropertyKey].([]float32)
		delete(n.Properties, vectorPropertyKey)

		if err := ix.store.PutNode(ctx, n); err != nil {
			return err
		}
		res.NodesWritten++

		if !hasVector || n.EmbeddingID == "" {
			continue
		}
		meta := vectorindex.Metadata{Language: string(n.Language), FilePath: n.Location.FilePath, Kind: string(n.Kind)}
		if err := ix.index.Upsert(n.ID, vec, meta); err != nil {
			return err
		}
		if err := ix.store.PutEmbeddingRecord(ctx, n.ID, n.EmbeddingID, n.ContentHash, ix.embedder.Model()); err != nil {
			return err
		}
	}

	for _, e := range edges {
		if err := ix.store.PutEdge(ctx, e); err != nil {
			return err
		}
		res.EdgesWritten++
	}
	return nil
}
