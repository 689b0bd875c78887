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

package parser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/codegraph/internal/coreerr"
	"github.com/kraklabs/codegraph/pkg/core"
)

// GrammarVersion is bumped whenever a grammar upgrade could change what a
// prior AST cache entry means; it is part of the AST cache key (spec.md
// "Parse artifact").
const GrammarVersion = 1

// DefaultMaxFileSize is the default oversized-file threshold (spec.md §4.1).
const DefaultMaxFileSize = 1 << 20 // 1 MiB

// Parser runs Tree-sitter over source files and emits entities plus
// abstract edges in one pass. It is safe for concurrent use: each call to
// Parse/ParseIncremental checks out a per-language sitter.Parser from an
// internal pool instead of sharing one across goroutines, since
// sitter.Parser is not itself safe for concurrent Parse calls.
type Parser struct {
	logger      *slog.Logger
	maxFileSize int64

	mu    sync.Mutex
	pools map[core.Language][]*sitter.Parser
}

// New creates a Parser. A nil logger defaults to slog.Default(), matching
// every other constructor in this module.
func New(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		logger:      logger,
		maxFileSize: DefaultMaxFileSize,
	}
}

// SetMaxFileSize overrides the oversized-file threshold.
func (p *Parser) SetMaxFileSize(bytes int64) {
	if bytes > 0 {
		p.maxFileSize = bytes
	}
}

// SupportedLanguages reports the language tags this parser can handle.
func (p *Parser) SupportedLanguages() []core.Language {
	return SupportedLanguages()
}

func (p *Parser) checkout(lang core.Language) (*sitter.Parser, languageGrammar, error) {
	grammar, ok := grammarFor(lang)
	if !ok {
		return nil, languageGrammar{}, fmt.Errorf("%w: %s", coreerr.ErrUnsupportedLanguage, lang)
	}

	p.mu.Lock()
	if p.pools == nil {
		p.pools = make(map[core.Language][]*sitter.Parser)
	}
	pool := p.pools[lang]
	var sp *sitter.Parser
	if n := len(pool); n > 0 {
		sp = pool[n-1]
		p.pools[lang] = pool[:n-1]
	}
	p.mu.Unlock()

	if sp == nil {
		sp = sitter.NewParser()
		sp.SetLanguage(grammar.Language)
	}
	return sp, grammar, nil
}

func (p *Parser) checkin(lang core.Language, sp *sitter.Parser) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[lang] = append(p.pools[lang], sp)
}

// Parse implements C3's parse() contract: given a file path and its bytes,
// produce nodes, abstract edges, and diagnostics in a single AST pass.
// Language is auto-detected from the file extension.
func (p *Parser) Parse(ctx context.Context, repositoryID, filePath string, content []byte) (*ExtractionResult, error) {
	lang := DetectLanguage(filePath)
	if lang == core.LangUnknown {
		return nil, fmt.Errorf("%w: %s", coreerr.ErrUnsupportedLanguage, filePath)
	}
	if int64(len(content)) > p.maxFileSize {
		return &ExtractionResult{
			FilePath: filePath,
			Language: lang,
			Diagnostics: []Diagnostic{{
				Severity: SeverityWarning,
				Code:     "oversized_file",
				Message:  fmt.Sprintf("file exceeds max size of %d bytes", p.maxFileSize),
			}},
		}, fmt.Errorf("%w: %s", coreerr.ErrOversizedFile, filePath)
	}

	return p.parseWithLanguage(ctx, repositoryID, filePath, content, lang, nil)
}

// ParseIncremental reuses an unchanged subtree via the Tree-sitter edit API
// when priorTree is non-nil and the grammar version hasn't moved; otherwise
// it falls back to a full parse, per spec.md §4.1.
func (p *Parser) ParseIncremental(ctx context.Context, repositoryID, filePath string, content []byte, priorTree *sitter.Tree, priorGrammarVersion int) (*ExtractionResult, error) {
	lang := DetectLanguage(filePath)
	if lang == core.LangUnknown {
		return nil, fmt.Errorf("%w: %s", coreerr.ErrUnsupportedLanguage, filePath)
	}
	if priorTree == nil || priorGrammarVersion != GrammarVersion {
		return p.parseWithLanguage(ctx, repositoryID, filePath, content, lang, nil)
	}
	return p.parseWithLanguage(ctx, repositoryID, filePath, content, lang, priorTree)
}

func (p *Parser) parseWithLanguage(ctx context.Context, repositoryID, filePath string, content []byte, lang core.Language, priorTree *sitter.Tree) (*ExtractionResult, error) {
	sp, grammar, err := p.checkout(lang)
	if err != nil {
		return nil, err
	}
	defer p.checkin(lang, sp)

	tree, err := sp.ParseCtx(ctx, priorTree, content)
	if err != nil {
		return nil, fmt.Errorf("%w: tree-sitter parse %s: %v", coreerr.ErrParseError, filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()

	fileNode := core.Node{
		ID:            core.NewNodeID(repositoryID, filePath, filePath, core.KindFile, 0),
		Kind:          core.KindFile,
		Label:         filePath,
		QualifiedName: filePath,
		Language:      lang,
		Location: core.Location{
			FilePath:  filePath,
			StartLine: 1,
			EndLine:   int(root.EndPoint().Row) + 1,
			StartByte: 0,
			EndByte:   int(root.EndByte()),
		},
		ContentHash: core.ContentHash(content),
		Properties:  map[string]core.Value{},
	}

	st := &walkState{
		repositoryID: repositoryID,
		filePath:     filePath,
		lang:         lang,
		grammar:      grammar,
		content:      content,
		stack:        []string{fileNode.ID},
		result: ExtractionResult{
			FilePath: filePath,
			Language: lang,
			Nodes:    []core.Node{fileNode},
		},
	}

	walk(root, st)

	if root.HasError() {
		errCount := countErrorNodes(root)
		if errCount > 0 {
			st.result.PartialParse = true
			st.result.Diagnostics = append(st.result.Diagnostics, Diagnostic{
				Severity: SeverityWarning,
				Code:     "partial_parse",
				Message:  fmt.Sprintf("%d syntax error node(s) recovered", errCount),
			})
			p.logger.Warn("parser.treesitter.syntax_errors",
				"path", filePath, "language", lang, "error_count", errCount)
		}
	}

	result := st.result
	for _, ce := range st.containsEdges {
		result.Edges = append(result.Edges, core.Edge{
			ID:         core.NewEdgeID(ce.From, ce.To, core.EdgeContains),
			From:       ce.From,
			To:         ce.To,
			Kind:       core.EdgeContains,
			Weight:     core.DefaultWeight,
			Properties: map[string]core.Value{},
		})
	}
	return &result, nil
}

func countErrorNodes(n *sitter.Node) int {
	count := 0
	if n.IsError() || n.IsMissing() {
		count++
	}
	nc := int(n.ChildCount())
	for i := 0; i < nc; i++ {
		count += countErrorNodes(n.Child(i))
	}
	return count
}
