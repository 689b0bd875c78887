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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/config"
	coreerr "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/watcher"
)

// runWatch watches the current repository for changes and reindexes
// incrementally as they're debounced into ChangeSets.
//
// Usage: codegraph watch [--debounce-ms N]
func runWatch(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	debounceMs := fs.Int("debounce-ms", int(watcher.DefaultDebounce/time.Millisecond), "Debounce window in milliseconds")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: codegraph watch [options]\n\nOptions:\n")
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
		coreerr.FatalError(coreerr.NewInternalError("cannot determine project id", err.Error(), "", err), globals.JSON)
		return
	}
	cwd, err := os.Getwd()
	if err != nil {
		coreerr.FatalError(coreerr.NewInternalError("cannot get current directory", err.Error(), "", err), globals.JSON)
		return
	}

	proj, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID: projectID,
		DataDir:   globals.DataDir,
		Config:    config.DefaultConfig(),
	}, logger)
	if err != nil {
		coreerr.FatalError(coreerr.NewDatabaseError("cannot open project", err.Error(), "run 'codegraph init' first", err), globals.JSON)
		return
	}
	defer func() { _ = proj.Close() }()

	w, err := watcher.New(watcher.Options{
		Root:     cwd,
		Debounce: time.Duration(*debounceMs) * time.Millisecond,
		Logger:   logger,
	})
	if err != nil {
		coreerr.FatalError(coreerr.NewInternalError("cannot start file watcher", err.Error(), "", err), globals.JSON)
		return
	}
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown.signal", "signal", sig.String())
		cancel()
	}()

	go w.Run(ctx)

	if !globals.Quiet {
		ui.Infof("Watching %s for changes (debounce %dms). Press Ctrl+C to stop.", cwd, *debounceMs)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cs, ok := <-w.Changes():
			if !ok {
				return
			}
			result, err := proj.Indexer.RunIncremental(ctx, cwd, cs)
			if err != nil {
				logger.Warn("watch.reindex.error", "err", err)
				continue
			}
			if !globals.Quiet {
				ui.Infof("Reindexed %d change(s): %d nodes, %d edges written", len(cs.Changes), result.NodesWritten, result.EdgesWritten)
			}
		}
	}
}
