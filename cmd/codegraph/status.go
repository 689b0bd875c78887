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
	"time"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/config"
	coreerr "github.com/kraklabs/codegraph/internal/errors"
	"github.com/kraklabs/codegraph/internal/output"
	"github.com/kraklabs/codegraph/internal/ui"
	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/spf13/pflag"
)

// StatusResult is the project status summary, emitted as text or JSON.
type StatusResult struct {
	ProjectID  string    `json:"project_id"`
	DataDir    string    `json:"data_dir"`
	Connected  bool      `json:"connected"`
	Files      int       `json:"files"`
	Functions  int       `json:"functions"`
	Methods    int       `json:"methods"`
	Types      int       `json:"types"`
	Modules    int       `json:"modules"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// runStatus reports the indexed node counts for the current project.
//
// Usage: codegraph status [--json]
func runStatus(args []string, globals GlobalFlags) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: codegraph status [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	projectID, err := projectIDFromCwd()
	if err != nil {
		coreerr.FatalError(coreerr.NewInternalError("cannot determine project id", err.Error(), "", err), globals.JSON)
		return
	}

	result := &StatusResult{ProjectID: projectID, Timestamp: time.Unix(0, 0)}

	proj, err := bootstrap.OpenProject(bootstrap.ProjectConfig{
		ProjectID: projectID,
		DataDir:   globals.DataDir,
		Config:    config.DefaultConfig(),
	}, nil)
	if err != nil {
		result.Connected = false
		result.Error = "project not indexed yet. Run 'codegraph init' and 'codegraph index' first."
		emitStatus(result, globals)
		return
	}
	defer func() { _ = proj.Close() }()
	result.DataDir = proj.DataDir()
	result.Connected = true

	nodes, err := proj.Store.AllNodes(context.Background())
	if err != nil {
		result.Error = fmt.Sprintf("cannot read graph store: %v", err)
		emitStatus(result, globals)
		return
	}
	for _, n := range nodes {
		switch n.Kind {
		case core.KindFile:
			result.Files++
		case core.KindFunction:
			result.Functions++
		case core.KindMethod:
			result.Methods++
		case core.KindClass:
			result.Types++
		case core.KindModule:
			result.Modules++
		}
	}

	emitStatus(result, globals)
}

func emitStatus(result *StatusResult, globals GlobalFlags) {
	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	ui.Header("CodeGraph Project Status")
	fmt.Printf("Project ID:    %s\n", result.ProjectID)
	if result.DataDir != "" {
		fmt.Printf("Data Dir:      %s\n", result.DataDir)
	}
	fmt.Println()

	if !result.Connected {
		fmt.Printf("Not indexed: %s\n", result.Error)
		return
	}

	fmt.Println("Entities:")
	fmt.Printf("  Files:      %d\n", result.Files)
	fmt.Printf("  Functions:  %d\n", result.Functions)
	fmt.Printf("  Methods:    %d\n", result.Methods)
	fmt.Printf("  Types:      %d\n", result.Types)
	fmt.Printf("  Modules:    %d\n", result.Modules)

	if result.Error != "" {
		fmt.Printf("\nWarning: %s\n", result.Error)
	}
}
