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

package testing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/codegraph/pkg/core"
	"github.com/kraklabs/codegraph/pkg/graphstore"
)

// SetupTestStore opens an in-memory graph store for a test, registering
// cleanup to close it when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    testing.InsertTestFunction(t, store, "func1", "TestFunc", "test.go", 10, 20)
//	}
func SetupTestStore(t *testing.T) *graphstore.Store {
	t.Helper()

	store, err := graphstore.Open(graphstore.Options{
		Dir:      t.TempDir(),
		InMemory: true,
	})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

// InsertTestFunction writes a minimal Function node.
func InsertTestFunction(t *testing.T, store *graphstore.Store, id, name, filePath string, startLine, endLine int) {
	t.Helper()
	putTestNode(t, store, core.Node{
		ID:            id,
		Kind:          core.KindFunction,
		Label:         name,
		QualifiedName: name,
		Language:      core.LangGo,
		Location:      core.Location{FilePath: filePath, StartLine: startLine, EndLine: endLine},
	})
}

// InsertTestFunctionWithSignature is InsertTestFunction plus a signature
// string stashed in Properties["signature"].
func InsertTestFunctionWithSignature(t *testing.T, store *graphstore.Store, id, name, signature, filePath string, startLine, endLine int) {
	t.Helper()
	putTestNode(t, store, core.Node{
		ID:            id,
		Kind:          core.KindFunction,
		Label:         name,
		QualifiedName: name,
		Language:      core.LangGo,
		Location:      core.Location{FilePath: filePath, StartLine: startLine, EndLine: endLine},
		Properties:    map[string]core.Value{"signature": signature},
	})
}

// InsertTestFile writes a minimal File node.
func InsertTestFile(t *testing.T, store *graphstore.Store, id, path, hash, language string, size int64) {
	t.Helper()
	putTestNode(t, store, core.Node{
		ID:            id,
		Kind:          core.KindFile,
		Label:         path,
		QualifiedName: path,
		Language:      core.Language(language),
		Location:      core.Location{FilePath: path},
		ContentHash:   hash,
		Properties:    map[string]core.Value{"size": size},
	})
}

// InsertTestType writes a Class node (spec.md's Node.Kind has no separate
// struct/interface distinction; kind nuance, if any, lives in Properties).
func InsertTestType(t *testing.T, store *graphstore.Store, id, name, kind, filePath string, startLine, endLine int) {
	t.Helper()
	putTestNode(t, store, core.Node{
		ID:            id,
		Kind:          core.KindClass,
		Label:         name,
		QualifiedName: name,
		Language:      core.LangGo,
		Location:      core.Location{FilePath: filePath, StartLine: startLine, EndLine: endLine},
		Properties:    map[string]core.Value{"declared_kind": kind},
	})
}

// InsertTestDefines links a file to a function it declares.
func InsertTestDefines(t *testing.T, store *graphstore.Store, id, fileID, functionID string) {
	t.Helper()
	putTestEdge(t, store, core.Edge{ID: id, From: fileID, To: functionID, Kind: core.EdgeDeclares, Weight: core.DefaultWeight})
}

// InsertTestCalls links a caller function to a callee function.
func InsertTestCalls(t *testing.T, store *graphstore.Store, id, callerID, calleeID string) {
	t.Helper()
	putTestEdge(t, store, core.Edge{ID: id, From: callerID, To: calleeID, Kind: core.EdgeCalls, Weight: core.DefaultWeight})
}

// InsertTestImport records an import edge from a file node to an Import
// node representing importPath.
func InsertTestImport(t *testing.T, store *graphstore.Store, id, filePath, importPath, alias string, startLine int) {
	t.Helper()
	importNodeID := id + ":import"
	putTestNode(t, store, core.Node{
		ID:            importNodeID,
		Kind:          core.KindImport,
		Label:         importPath,
		QualifiedName: importPath,
		Location:      core.Location{FilePath: filePath, StartLine: startLine},
		Properties:    map[string]core.Value{"alias": alias},
	})
	putTestEdge(t, store, core.Edge{ID: id, From: filePath, To: importNodeID, Kind: core.EdgeImports, Weight: core.DefaultWeight})
}

func putTestNode(t *testing.T, store *graphstore.Store, n core.Node) {
	t.Helper()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Unix(0, 0).UTC()
	}
	n.UpdatedAt = n.CreatedAt
	if err := store.PutNode(context.Background(), n); err != nil {
		t.Fatalf("failed to insert test node %q: %v", n.ID, err)
	}
}

func putTestEdge(t *testing.T, store *graphstore.Store, e core.Edge) {
	t.Helper()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Unix(0, 0).UTC()
	}
	if err := store.PutEdge(context.Background(), e); err != nil {
		t.Fatalf("failed to insert test edge %q: %v", e.ID, err)
	}
}

// QueryFunctions returns every Function node currently in store.
func QueryFunctions(t *testing.T, store *graphstore.Store) []core.Node {
	t.Helper()
	return queryByKind(t, store, core.KindFunction)
}

// QueryFiles returns every File node currently in store.
func QueryFiles(t *testing.T, store *graphstore.Store) []core.Node {
	t.Helper()
	return queryByKind(t, store, core.KindFile)
}

// QueryTypes returns every Class node currently in store.
func QueryTypes(t *testing.T, store *graphstore.Store) []core.Node {
	t.Helper()
	return queryByKind(t, store, core.KindClass)
}

func queryByKind(t *testing.T, store *graphstore.Store, kind core.Kind) []core.Node {
	t.Helper()
	all, err := store.AllNodes(context.Background())
	if err != nil {
		t.Fatalf("failed to list nodes: %v", err)
	}
	var out []core.Node
	for _, n := range all {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// Manifest is the companion metadata a snapshot test writes alongside a
// captured fixture (manifest.json's sibling meta.json, per the domain-stack
// wiring in SPEC_FULL.md): who/what/when a golden fixture was captured from,
// so a stale snapshot is easy to spot in review without diffing the fixture
// itself.
type Manifest struct {
	RepositoryID string    `yaml:"repository_id"`
	NodeCount    int       `yaml:"node_count"`
	EdgeCount    int       `yaml:"edge_count"`
	CapturedAt   time.Time `yaml:"captured_at"`
}

// WriteManifest YAML-encodes m to path, creating parent directories as
// needed. Snapshot tests call this once per fixture capture.
func WriteManifest(t *testing.T, path string, m Manifest) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create manifest dir: %v", err)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		t.Fatalf("failed to marshal manifest: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}
}

// ReadManifest decodes a manifest previously written by WriteManifest.
func ReadManifest(t *testing.T, path string) Manifest {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read manifest: %v", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		t.Fatalf("failed to unmarshal manifest: %v", err)
	}
	return m
}
