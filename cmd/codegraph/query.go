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
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/config"
	coreerr "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/query"
)

// runQuery dispatches to one of the query-surface operations.
//
// Usage:
//
//	codegraph query search <text> [--k N]
//	codegraph query subgraph <node-id> [--depth N]
//	codegraph query reverse-deps <node-id> [--depth N]
//	codegraph query transitive-deps <node-id> [--depth N]
//	codegraph query callchain <from-id> <to-id> [--max-depth N]
//	codegraph query api <module-id>
func runQuery(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("query", pflag.ExitOnError)
	k := fs.Int("k", query.DefaultK, "Number of results (search)")
	depth := fs.Int("depth", query.DefaultMaxDepth, "Walk depth (subgraph, reverse-deps, transitive-deps)")
	maxDepth := fs.Int("max-depth", query.DefaultMaxDepth, "Maximum path length (callchain)")
	timeout := fs.Duration("timeout", 30*time.Second, "Query timeout")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codegraph query <mode> <args...> [options]

Modes:
  search <text>                  Semantic search over embedded nodes
  subgraph <node-id>             Bounded BFS subgraph around a node
  reverse-deps <node-id>         Nodes that depend on node-id
  transitive-deps <node-id>      Nodes node-id depends on
  callchain <from-id> <to-id>    Shortest call path between two functions
  api <module-id>                Exported surface of a module

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		os.Exit(1)
	}
	mode, rest := rest[0], rest[1:]

	projectID, err := projectIDFromCwd()
	if err != nil {
		coreerr.FatalError(coreerr.NewInternalError("cannot determine project id", err.Error(), "", err), globals.JSON)
		return
	}
	proj, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID: projectID,
		DataDir:   globals.DataDir,
		Config:    config.DefaultConfig(),
	}, nil)
	if err != nil {
		coreerr.FatalError(coreerr.NewDatabaseError("cannot open project", err.Error(), "run 'codegraph index' first", err), globals.JSON)
		return
	}
	defer func() { _ = proj.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result any
	switch mode {
	case "search":
		if len(rest) == 0 {
			fatalQueryUsage(fs, "search requires a text argument")
		}
		text := strings.Join(rest, " ")
		hits, qerr := proj.Query.SemanticSearch(ctx, text, query.SemanticSearchOptions{K: *k})
		err, result = qerr, hits
	case "subgraph":
		if len(rest) == 0 {
			fatalQueryUsage(fs, "subgraph requires a node-id argument")
		}
		sg, qerr := proj.Query.GetSubgraph(ctx, rest[0], *depth, nil)
		err, result = qerr, sg
	case "reverse-deps":
		if len(rest) == 0 {
			fatalQueryUsage(fs, "reverse-deps requires a node-id argument")
		}
		sg, qerr := proj.Query.ReverseDependencies(ctx, rest[0], *depth)
		err, result = qerr, sg
	case "transitive-deps":
		if len(rest) == 0 {
			fatalQueryUsage(fs, "transitive-deps requires a node-id argument")
		}
		sg, qerr := proj.Query.TransitiveDependencies(ctx, rest[0], *depth)
		err, result = qerr, sg
	case "callchain":
		if len(rest) < 2 {
			fatalQueryUsage(fs, "callchain requires <from-id> <to-id>")
		}
		chain, qerr := proj.Query.CallChain(ctx, rest[0], rest[1], *maxDepth)
		err, result = qerr, chain
	case "api":
		if len(rest) == 0 {
			fatalQueryUsage(fs, "api requires a module-id argument")
		}
		nodes, qerr := proj.Query.APISurface(ctx, rest[0])
		err, result = qerr, nodes
	default:
		fatalQueryUsage(fs, fmt.Sprintf("unknown query mode %q", mode))
		return
	}

	if err != nil {
		coreerr.FatalError(coreerr.NewPipelineError("query failed", err.Error(), "", err), globals.JSON)
		return
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	printQueryResult(mode, result)
}

func fatalQueryUsage(fs *pflag.FlagSet, msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	fs.Usage()
	os.Exit(1)
}

func printQueryResult(mode string, result any) {
	switch v := result.(type) {
	case []query.Hit:
		if len(v) == 0 {
			fmt.Println("No results")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SCORE\tKIND\tNAME\tPATH")
		for _, h := range v {
			fmt.Fprintf(w, "%.3f\t%s\t%s\t%s\n", h.Score, h.Node.Kind, h.Node.Label, h.Node.Location.FilePath)
		}
		_ = w.Flush()
		fmt.Printf("\n(%d results)\n", len(v))
	case *query.Subgraph:
		fmt.Printf("Nodes: %d  Edges: %d  Truncated: %v\n", len(v.Nodes), len(v.Edges), v.Truncated)
		for _, n := range v.Nodes {
			fmt.Printf("  %s  %s  %s\n", n.ID, n.Kind, n.Label)
		}
	case []string:
		if len(v) == 0 {
			fmt.Println("No path found")
			return
		}
		fmt.Println(strings.Join(v, " -> "))
	case []core.Node:
		if len(v) == 0 {
			fmt.Println("No results")
			return
		}
		for _, n := range v {
			fmt.Printf("  %s  %s  %s\n", n.ID, n.Kind, n.Label)
		}
		fmt.Printf("\n(%d results)\n", len(v))
	default:
		fmt.Printf("%+v\n", v)
	}
	_ = mode
}
