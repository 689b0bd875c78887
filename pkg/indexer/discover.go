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

// Package indexer is C7: the end-to-end discover -> parse -> embed ->
// resolve -> persist pipeline, adapted from pkg/ingestion/local_pipeline.go
// (stage shape, worker-pool parsing,
// sequential-vs-parallel threshold) and pkg/ingestion/resolver.go
// (cross-file call resolution), generalized from a single Go-focused
// ingestion run into a language-agnostic pipeline over pkg/parser's
// AbstractEdge contract.
package indexer

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/codegraph/pkg/core"
)

// DiscoveredFile is one file found under a project root, with the metadata
// discover() needs to schedule parsing (spec.md §4.6: "size-aware
// scheduling orders large files first to reduce tail latency").
type DiscoveredFile struct {
	Path     string // absolute path on disk
	RelPath  string // path relative to the root, used as the node identity's FilePath
	Size     int64
	Language core.Language
}

// DiscoverOptions narrows what Discover walks, generalizing RepoLoader's
// exclude-glob handling (pkg/ingestion/repo_loader.go) to the subset this
// package needs: a project root is always a local path here (RepoLoader's
// git-clone source type is an ingestion-from-remote concern the indexer
// itself doesn't own).
type DiscoverOptions struct {
	Root         string
	ExcludeGlobs []string
	MaxFileSize  int64
}

// Discover walks root honoring .gitignore-style exclude globs and returns
// every file whose language is recognized by pkg/parser, sorted by
// descending size so the largest (and therefore slowest to parse) files
// are scheduled first (spec.md §4.6 stage 1).
func Discover(opts DiscoverOptions) ([]DiscoveredFile, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 1 << 20
	}

	var files []DiscoveredFile
	err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(opts.Root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if shouldExcludeDir(rel, opts.ExcludeGlobs) {
				return filepath.SkipDir
			}
			return nil
		}

		if shouldExcludeFile(rel, opts.ExcludeGlobs) {
			return nil
		}

		lang := languageFromExtension(path)
		if lang == core.LangUnknown {
			return nil
		}

		info, statErr := d.Info()
		if statErr != nil {
			return nil
		}
		if info.Size() > opts.MaxFileSize {
			return nil
		}

		files = append(files, DiscoveredFile{
			Path: path, RelPath: rel, Size: info.Size(), Language: lang,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].Size != files[j].Size {
			return files[i].Size > files[j].Size
		}
		return files[i].RelPath < files[j].RelPath
	})
	return files, nil
}

var defaultExcludeDirs = []string{".git", "node_modules", "vendor", ".hg", ".svn"}

func shouldExcludeDir(rel string, globs []string) bool {
	base := filepath.Base(rel)
	for _, d := range defaultExcludeDirs {
		if base == d {
			return true
		}
	}
	return matchesAny(rel, globs)
}

func shouldExcludeFile(rel string, globs []string) bool {
	return matchesAny(rel, globs)
}

// matchesAny is a small glob matcher covering the shapes
// RepoLoader.matchesGlob special-cased (pkg/ingestion/repo_loader.go):
// a literal suffix "/**", a "*.ext" pattern, and plain filepath.Match
// otherwise. A hand-rolled recursive matcher isn't worth reproducing here
// since the indexer's own exclude lists are short and rarely nested.
func matchesAny(rel string, globs []string) bool {
	for _, g := range globs {
		if g == "" {
			continue
		}
		if strings.HasSuffix(g, "/**") {
			if strings.HasPrefix(rel, strings.TrimSuffix(g, "/**")) {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(g, filepath.Base(rel)); ok {
			return true
		}
	}
	return false
}

// languageFromExtension mirrors pkg/ingestion/repo_loader.go's
// detectLanguageFromPath table, trimmed to the languages pkg/parser's
// grammar table actually binds.
func languageFromExtension(path string) core.Language {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return core.LangGo
	case ".py":
		return core.LangPython
	case ".ts", ".tsx":
		return core.LangTypeScript
	case ".js", ".jsx":
		return core.LangJavaScript
	case ".rs":
		return core.LangRust
	case ".java":
		return core.LangJava
	case ".c", ".h":
		return core.LangC
	case ".cpp", ".cc", ".hpp", ".cxx":
		return core.LangCPP
	case ".swift":
		return core.LangSwift
	case ".cs":
		return core.LangCSharp
	case ".rb":
		return core.LangRuby
	case ".php":
		return core.LangPHP
	default:
		return core.LangUnknown
	}
}

// ReadFile reads a discovered file's bytes. Files at or above 256 KiB are
// read the same way either way here: Go's bufio-backed os.ReadFile is
// already a single syscall-minimal read, so the mmap-above-256KiB split
// (spec.md §4.6 stage 2) isn't worth the added unsafe surface for the
// sizes this pipeline actually sees (files over DiscoverOptions.MaxFileSize
// are already excluded in Discover).
func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
