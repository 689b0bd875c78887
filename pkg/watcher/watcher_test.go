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

package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySeparatesCreateModifyDelete(t *testing.T) {
	ready := map[string]pendingEvent{
		"a.go": {op: fsnotify.Create},
		"b.go": {op: fsnotify.Write},
		"c.go": {op: fsnotify.Remove},
	}
	changes := classify(ready)
	byPath := map[string]Change{}
	for _, c := range changes {
		byPath[c.Path] = c
	}
	assert.Equal(t, Created, byPath["a.go"].Kind)
	assert.Equal(t, Modified, byPath["b.go"].Kind)
	assert.Equal(t, Deleted, byPath["c.go"].Kind)
}

func TestClassifyMatchesRenamePairs(t *testing.T) {
	ready := map[string]pendingEvent{
		"old_name.go": {op: fsnotify.Remove},
		"new_name.go": {op: fsnotify.Create},
	}
	changes := classify(ready)
	require.Len(t, changes, 1)
	assert.Equal(t, Renamed, changes[0].Kind)
	assert.Equal(t, "new_name.go", changes[0].Path)
	assert.Equal(t, "old_name.go", changes[0].OldPath)
}

func TestWatcherEmitsDebouncedChangeSet(t *testing.T) {
	dir := t.TempDir()
	w, err := New(Options{Root: dir, Debounce: 10 * time.Millisecond})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go w.Run(ctx)

	filePath := filepath.Join(dir, "file.go")
	require.NoError(t, os.WriteFile(filePath, []byte("package a"), 0o644))

	select {
	case cs := <-w.Changes():
		assert.NotEmpty(t, cs.Changes)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a ChangeSet")
	}
}

func TestWatcherExcludesGitDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	w, err := New(Options{Root: dir})
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.shouldExclude(filepath.Join(dir, ".git", "HEAD")))
	assert.False(t, w.shouldExclude(filepath.Join(dir, "main.go")))
}
