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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/codegraph/pkg/core"
)

func TestDetectLanguage(t *testing.T) {
	cases := map[string]core.Language{
		"main.go":        core.LangGo,
		"app.ts":         core.LangTypeScript,
		"component.tsx":  core.LangTypeScript,
		"script.py":      core.LangPython,
		"lib.rs":         core.LangRust,
		"Main.java":      core.LangJava,
		"unknown.xyz123": core.LangUnknown,
	}
	for path, want := range cases {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}

func TestParseGoClassAndMethods(t *testing.T) {
	src := []byte(`package auth

// AuthService validates credentials.
type AuthService struct{}

func (a *AuthService) validateCredentials() bool {
	return true
}

func (a *AuthService) createUser() error {
	return nil
}
`)

	p := New(nil)
	result, err := p.Parse(context.Background(), "repo1", "auth_service.go", src)
	require.NoError(t, err)
	require.NotNil(t, result)

	var sawFile, sawType, sawMethod1, sawMethod2 bool
	for _, n := range result.Nodes {
		switch {
		case n.Kind == core.KindFile:
			sawFile = true
		case n.Kind == core.KindClass && n.Label == "AuthService":
			sawType = true
		case n.Kind == core.KindMethod && n.Label == "validateCredentials":
			sawMethod1 = true
		case n.Kind == core.KindMethod && n.Label == "createUser":
			sawMethod2 = true
		}
	}
	assert.True(t, sawFile, "expected a File node")
	assert.True(t, sawType, "expected AuthService class node")
	assert.True(t, sawMethod1, "expected validateCredentials method node")
	assert.True(t, sawMethod2, "expected createUser method node")

	// File -> Type Contains edge must exist.
	var fileID, typeID string
	for _, n := range result.Nodes {
		if n.Kind == core.KindFile {
			fileID = n.ID
		}
		if n.Kind == core.KindClass {
			typeID = n.ID
		}
	}
	foundContains := false
	for _, e := range result.Edges {
		if e.Kind == core.EdgeContains && e.From == fileID && e.To == typeID {
			foundContains = true
		}
	}
	assert.True(t, foundContains, "expected File -Contains-> Class edge")
}

func TestParseUnsupportedLanguage(t *testing.T) {
	p := New(nil)
	_, err := p.Parse(context.Background(), "repo1", "binary.xyz", []byte{0, 1, 2})
	require.Error(t, err)
}

func TestParseOversizedFile(t *testing.T) {
	p := New(nil)
	p.SetMaxFileSize(10)
	_, err := p.Parse(context.Background(), "repo1", "big.go", []byte("package main\n\nfunc main() {}\n"))
	require.Error(t, err)
}

func TestParseGoCallsAbstractEdge(t *testing.T) {
	src := []byte(`package main

func helper() {}

func main() {
	helper()
}
`)
	p := New(nil)
	result, err := p.Parse(context.Background(), "repo1", "main.go", src)
	require.NoError(t, err)

	foundCall := false
	for _, ae := range result.AbstractEdges {
		if ae.TargetName == "helper" {
			foundCall = true
		}
	}
	assert.True(t, foundCall, "expected an abstract Calls edge targeting helper")
}
