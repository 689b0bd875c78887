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
	"path/filepath"
	"strings"

	"github.com/kraklabs/codegraph/pkg/core"
)

// extensionLanguages maps file extensions to the language they imply.
// Detection is extension-only per spec.md §6 ("detection by extension").
var extensionLanguages = map[string]core.Language{
	".rs":    core.LangRust,
	".ts":    core.LangTypeScript,
	".tsx":   core.LangTypeScript,
	".js":    core.LangJavaScript,
	".jsx":   core.LangJavaScript,
	".mjs":   core.LangJavaScript,
	".cjs":   core.LangJavaScript,
	".py":    core.LangPython,
	".pyi":   core.LangPython,
	".go":    core.LangGo,
	".java":  core.LangJava,
	".c":     core.LangC,
	".h":     core.LangC,
	".cc":    core.LangCPP,
	".cpp":   core.LangCPP,
	".cxx":   core.LangCPP,
	".hpp":   core.LangCPP,
	".hh":    core.LangCPP,
	".swift": core.LangSwift,
	".cs":    core.LangCSharp,
	".rb":    core.LangRuby,
	".php":   core.LangPHP,
}

// DetectLanguage returns the language implied by a file's extension, or
// core.LangUnknown if the extension isn't recognized.
func DetectLanguage(filePath string) core.Language {
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	return core.LangUnknown
}

// SupportedLanguages returns the set of language tags the parser can handle,
// satisfying C3's supported_languages() contract.
func SupportedLanguages() []core.Language {
	seen := make(map[core.Language]bool)
	var out []core.Language
	for _, lang := range extensionLanguages {
		if !seen[lang] {
			seen[lang] = true
			out = append(out, lang)
		}
	}
	return out
}
