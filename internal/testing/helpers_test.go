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
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestStore(t *testing.T) {
	store := SetupTestStore(t)
	require.NotNil(t, store)

	functions := QueryFunctions(t, store)
	assert.Empty(t, functions, "should start with no functions")
}

func TestInsertTestFunction(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestFunction(t, store, "func_123", "HandleAuth", "auth.go", 10, 25)

	functions := QueryFunctions(t, store)
	require.Len(t, functions, 1)
	assert.Equal(t, "func_123", functions[0].ID)
	assert.Equal(t, "HandleAuth", functions[0].Label)
}

func TestInsertTestFile(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestFile(t, store, "file_123", "auth.go", "abc123", "go", 1234)

	files := QueryFiles(t, store)
	require.Len(t, files, 1)
	assert.Equal(t, "file_123", files[0].ID)
	assert.Equal(t, "auth.go", files[0].Label)
	assert.Equal(t, "abc123", files[0].ContentHash)
}

func TestInsertTestType(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestType(t, store, "type_123", "UserService", "struct", "user.go", 10, 50)

	types := QueryTypes(t, store)
	require.Len(t, types, 1)
	assert.Equal(t, "type_123", types[0].ID)
	assert.Equal(t, "UserService", types[0].Label)
	assert.Equal(t, "struct", types[0].Properties["declared_kind"])
}

func TestMultipleInserts(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestFunction(t, store, "func1", "Main", "main.go", 5, 10)
	InsertTestFunction(t, store, "func2", "Helper", "util.go", 15, 20)
	InsertTestFunction(t, store, "func3", "Process", "processor.go", 25, 35)

	functions := QueryFunctions(t, store)
	require.Len(t, functions, 3)
}

func TestEdgeInsertion(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestFile(t, store, "file1", "main.go", "hash1", "go", 100)
	InsertTestFunction(t, store, "func1", "main", "main.go", 1, 10)
	InsertTestFunction(t, store, "func2", "helper", "main.go", 12, 15)

	InsertTestDefines(t, store, "def1", "file1", "func1")
	InsertTestCalls(t, store, "call1", "func1", "func2")

	ids, err := store.NodeIDsByFile(context.Background(), "main.go")
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestStoreIsolation(t *testing.T) {
	store1 := SetupTestStore(t)
	InsertTestFunction(t, store1, "func1", "Test1", "file1.go", 1, 10)

	store2 := SetupTestStore(t)
	assert.Empty(t, QueryFunctions(t, store2), "second store should be isolated from first")

	assert.Len(t, QueryFunctions(t, store1), 1)
}

func TestManifestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.yaml")
	want := Manifest{RepositoryID: "repo-1", NodeCount: 3, EdgeCount: 2, CapturedAt: time.Unix(1700000000, 0).UTC()}

	WriteManifest(t, path, want)
	got := ReadManifest(t, path)

	assert.Equal(t, want, got)
}
