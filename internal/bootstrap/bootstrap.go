// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package bootstrap assembles one project's full component graph (C2-C9)
// from a ProjectConfig, the way cmd/codegraph's commands expect to receive
// it: open the graph store, build the embedding client and vector index,
// wire the indexer and query engine on top, and hand the caller a single
// Project handle to drive and eventually Close.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kraklabs/codegraph/internal/config"
	"github.com/kraklabs/codegraph/pkg/cache"
	"github.com/kraklabs/codegraph/pkg/embedding"
	"github.com/kraklabs/codegraph/pkg/graphstore"
	"github.com/kraklabs/codegraph/pkg/indexer"
	"github.com/kraklabs/codegraph/pkg/parser"
	"github.com/kraklabs/codegraph/pkg/query"
	"github.com/kraklabs/codegraph/pkg/vectorindex"
)

// ProjectConfig holds what's needed to open or initialize one project's
// on-disk state plus the component settings layered on top of it.
type ProjectConfig struct {
	// ProjectID is the logical project identifier.
	ProjectID string

	// DataDir is the directory the graph store and vector index persist
	// under. Defaults to ~/.codegraph/data/<project_id>.
	DataDir string

	Config config.Config
}

// ProjectInfo describes an initialized project without holding any open
// handles, suitable for status/list output.
type ProjectInfo struct {
	ProjectID string
	DataDir   string
}

// Project is the full set of open, wired component handles for one project:
// the indexer writes through Store and Index, the query Engine reads from
// them, Cache sits in front of Parser, and Watcher (built separately, since
// not every command needs one) feeds RunIncremental.
type Project struct {
	Store    *graphstore.Store
	Index    vectorindex.Index
	Embedder *embedding.Client
	Parser   *parser.Parser
	Cache    *cache.Cache
	Indexer  *indexer.Indexer
	Query    *query.Engine

	dataDir string
}

func defaultDataDir(projectID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(homeDir, ".codegraph", "data", projectID), nil
}

func (c *ProjectConfig) applyDefaults() error {
	if c.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if c.DataDir == "" {
		dir, err := defaultDataDir(c.ProjectID)
		if err != nil {
			return err
		}
		c.DataDir = dir
	}
	if (c.Config == config.Config{}) {
		c.Config = config.DefaultConfig()
	}
	return nil
}

// InitProject creates a new project's data directory and opens its storage,
// vector index, and embedding client, returning a fully wired Project. It is
// idempotent: calling it against an existing DataDir reopens rather than
// reinitializes.
func InitProject(cfg ProjectConfig, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	logger.Info("bootstrap.project.init.start",
		"project_id", cfg.ProjectID,
		"data_dir", cfg.DataDir,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	proj, err := openComponents(cfg, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("bootstrap.project.init.success",
		"project_id", cfg.ProjectID,
		"data_dir", cfg.DataDir,
	)
	return proj, nil
}

// OpenProject opens an existing project's store and builds the rest of its
// component graph on top. It fails if DataDir does not already exist.
func OpenProject(cfg ProjectConfig, logger *slog.Logger) (*Project, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("project not found: %s (run 'codegraph init' first)", cfg.DataDir)
	}

	logger.Debug("bootstrap.project.open",
		"project_id", cfg.ProjectID,
		"data_dir", cfg.DataDir,
	)
	return openComponents(cfg, logger)
}

func openComponents(cfg ProjectConfig, logger *slog.Logger) (*Project, error) {
	store, err := graphstore.Open(graphstore.Options{
		Dir:    filepath.Join(cfg.DataDir, "graph"),
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open graph store: %w", err)
	}

	dimension := cfg.Config.Embedder.Dimension
	if dimension == 0 {
		dimension = 768
	}
	idx := vectorindex.New(dimension, 0, logger)
	if indexPath := filepath.Join(cfg.DataDir, "vectors.idx"); fileExists(indexPath) {
		if err := idx.Load(indexPath); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("load vector index: %w", err)
		}
	}

	embedder, err := embedding.New(embedding.Config{
		Dialect:     embedding.Dialect(cfg.Config.Embedder.Dialect),
		BaseURL:     cfg.Config.Embedder.BaseURL,
		Model:       cfg.Config.Embedder.Model,
		Dimension:   dimension,
		BatchSize:   cfg.Config.Embedder.BatchSize,
		Timeout:     cfg.Config.Embedder.Timeout,
		MaxRetries:  cfg.Config.Embedder.MaxRetries,
		Concurrency: cfg.Config.Embedder.Concurrency,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build embedding client: %w", err)
	}

	p := parser.New(logger)

	c := cache.New(
		int64(cfg.Config.Cache.ASTCacheCapacityMB)<<20,
		cache.ReadaheadConfig{
			PrefetchDepth: cfg.Config.Cache.PrefetchDepth,
			MinConfidence: cfg.Config.Cache.MinConfidence,
			PatternDecay:  cfg.Config.Cache.PatternDecay,
		},
	)

	ix := indexer.New(indexer.Config{
		RepositoryID: cfg.ProjectID,
		Concurrency:  cfg.Config.Embedder.Concurrency,
	}, store, idx, embedder, p, c, nil, logger)

	qe := query.New(store, idx, embedder, logger)

	return &Project{
		Store:    store,
		Index:    idx,
		Embedder: embedder,
		Parser:   p,
		Cache:    c,
		Indexer:  ix,
		Query:    qe,
		dataDir:  cfg.DataDir,
	}, nil
}

// DataDir returns the directory this project's store and vector index
// persist under.
func (p *Project) DataDir() string {
	return p.dataDir
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Close persists the vector index and closes the graph store. Callers
// should defer this right after InitProject/OpenProject succeeds.
func (p *Project) Close() error {
	indexPath := filepath.Join(p.dataDir, "vectors.idx")
	if err := p.Index.Persist(indexPath); err != nil {
		_ = p.Store.Close()
		return fmt.Errorf("persist vector index: %w", err)
	}
	return p.Store.Close()
}

// ListProjects returns the project IDs found under the default data
// directory root.
func ListProjects() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}

	dataDir := filepath.Join(homeDir, ".codegraph", "data")
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read data dir: %w", err)
	}

	var projects []string
	for _, entry := range entries {
		if entry.IsDir() {
			projects = append(projects, entry.Name())
		}
	}
	return projects, nil
}
