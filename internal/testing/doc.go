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

// Package testing provides test helpers for CodeGraph package tests.
//
// # Quick Start
//
// Use SetupTestStore to open an in-memory graph store and seed it with
// fixture nodes and edges:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    testing.InsertTestFunction(t, store, "func1", "TestFunc", "test.go", 10, 20)
//
//	    funcs := testing.QueryFunctions(t, store)
//	    require.Len(t, funcs, 1)
//	}
//
// # Seeding Test Data
//
//   - InsertTestFunction / InsertTestFunctionWithSignature: add a Function node
//   - InsertTestFile: add a File node
//   - InsertTestType: add a Class node
//   - InsertTestDefines: link a file to a function it declares
//   - InsertTestCalls: link a caller function to a callee function
//   - InsertTestImport: record an import edge
//
// # Querying Test Data
//
//   - QueryFunctions / QueryFiles / QueryTypes: list nodes of one kind
//
// # Snapshot Manifests
//
// WriteManifest/ReadManifest round-trip a Manifest through YAML, the
// companion metadata snapshot tests write alongside a captured fixture so a
// stale snapshot is visible in review without diffing the fixture itself.
package testing
