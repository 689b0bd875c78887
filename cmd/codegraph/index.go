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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/config"
	coreerr "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/cache"
	"github.com/kraklabs/codegraph/pkg/indexer"
)

// runIndex executes a full index of the current repository. --full first
// replaces the project's AST cache with an empty one.
//
// Usage: codegraph index [--full] [--metrics-addr ADDR]
func runIndex(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("index", pflag.ExitOnError)
	full := fs.Bool("full", false, "Force a full reindex")
	concurrency := fs.Int("concurrency", 0, "Override worker concurrency (0 = config default)")
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: codegraph index [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if globals.Verbose > 0 {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	projectID, err := projectIDFromCwd()
	if err != nil {
		coreerr.FatalError(coreerr.NewInternalError("cannot determine project id", err.Error(), "run from inside the repository to index", err), globals.JSON)
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		coreerr.FatalError(coreerr.NewInternalError("cannot get current directory", err.Error(), "", err), globals.JSON)
		return
	}

	cfg := config.DefaultConfig()
	if *concurrency > 0 {
		cfg.Embedder.Concurrency = *concurrency
	}

	proj, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID: projectID,
		DataDir:   globals.DataDir,
		Config:    cfg,
	}, logger)
	if err != nil {
		proj, err = bootstrap.InitProject(bootstrap.ProjectConfig{
			ProjectID: projectID,
			DataDir:   globals.DataDir,
			Config:    cfg,
		}, logger)
		if err != nil {
			coreerr.FatalError(coreerr.NewDatabaseError("cannot open project", err.Error(), "run 'codegraph init' first", err), globals.JSON)
			return
		}
	}
	defer func() { _ = proj.Close() }()

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			srv := &http.Server{Addr: *metricsAddr, Handler: mux}
			logger.Info("metrics.http.start", "addr", *metricsAddr, "path", "/metrics")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics.http.error", "err", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	progressCfg := NewProgressConfig(globals)
	spinner := NewSpinner(progressCfg, phaseDescription("parsing"))

	if *full {
		logger.Info("index.full.cache_reset")
		proj.Cache = cache.New(
			int64(cfg.Cache.ASTCacheCapacityMB)<<20,
			cache.ReadaheadConfig{
				PrefetchDepth: cfg.Cache.PrefetchDepth,
				MinConfidence: cfg.Cache.MinConfidence,
				PatternDecay:  cfg.Cache.PatternDecay,
			},
		)
		proj.Indexer = indexer.New(indexer.Config{RepositoryID: projectID, Concurrency: cfg.Embedder.Concurrency}, proj.Store, proj.Index, proj.Embedder, proj.Parser, proj.Cache, nil, logger)
	}

	result, err := proj.Indexer.Run(ctx, cwd)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		coreerr.FatalError(coreerr.NewPipelineError("indexing failed", err.Error(), "", err), globals.JSON)
		return
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	if !globals.Quiet {
		printIndexResult(result)
	}
}

func printIndexResult(result *indexer.Result) {
	ui.Header("Indexing complete")
	fmt.Printf("Files discovered: %d  parsed: %d  skipped: %d  parse errors: %d\n",
		result.FilesDiscovered, result.FilesParsed, result.FilesSkipped, result.ParseErrors)
	fmt.Printf("Nodes written: %d  Edges written: %d  (unresolved: %d)\n",
		result.NodesWritten, result.EdgesWritten, result.EdgesUnresolved)
	fmt.Printf("Embeddings built: %d\n", result.EmbeddingsBuilt)
	fmt.Printf("Parse: %s  Embed: %s  Persist: %s  Total: %s\n",
		result.ParseDuration, result.EmbedDuration, result.PersistDuration, result.TotalDuration)
}
