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
	"fmt"
	"os"

	"github.com/kraklabs/codegraph/internal/bootstrap"
	"github.com/kraklabs/codegraph/internal/config"
	"github.com/kraklabs/codegraph/internal/ui"
)

// runInit creates (or reopens) a project's data directory and component
// graph, the prerequisite for index/status/query/watch.
//
// Usage: codegraph init [project-id]
func runInit(args []string, globals GlobalFlags) {
	projectID := ""
	if len(args) > 0 {
		projectID = args[0]
	} else {
		id, err := projectIDFromCwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		projectID = id
	}

	proj, err := bootstrap.InitProject(bootstrap.ProjectConfig{
		ProjectID: projectID,
		DataDir:   globals.DataDir,
		Config:    config.DefaultConfig(),
	}, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = proj.Close() }()

	if !globals.Quiet {
		ui.Successf("Initialized project %q", projectID)
	}
}
