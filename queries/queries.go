// Package queries embeds the tree-sitter tag queries used to extract
// definitions and references from source files.
package queries

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed scm/go.scm
var goTagQuery []byte

//go:embed scm/python.scm
var pythonTagQuery []byte

//go:embed scm/javascript.scm
var javascriptTagQuery []byte

//go:embed scm/typescript.scm
var typescriptTagQuery []byte

//go:embed scm/java.scm
var javaTagQuery []byte

//go:embed scm/csharp.scm
var csharpTagQuery []byte

//go:embed scm/rust.scm
var rustTagQuery []byte

//go:embed scm/bash.scm
var bashTagQuery []byte

// SitterLanguage identifies a tree-sitter grammar with a bundled tag query.
type SitterLanguage string

const (
	// Go is the language for Go
	Go SitterLanguage = "go"
	// Python is the language for Python
	Python SitterLanguage = "python"
	// Javascript is the language for Javascript
	Javascript SitterLanguage = "javascript"
	// Typescript is the language for Typescript
	Typescript SitterLanguage = "typescript"
	// Java is the language for Java
	Java SitterLanguage = "java"
	// CSharp is the language for C#
	CSharp SitterLanguage = "csharp"
	// Rust is the language for Rust
	Rust SitterLanguage = "rust"
	// Bash is the language for Bash
	Bash SitterLanguage = "bash"
)

// queries maps a SitterLanguage to its embedded tag query text.
var queries = map[SitterLanguage][]byte{
	Go:         goTagQuery,
	Python:     pythonTagQuery,
	Javascript: javascriptTagQuery,
	Typescript: typescriptTagQuery,
	Java:       javaTagQuery,
	CSharp:     csharpTagQuery,
	Rust:       rustTagQuery,
	Bash:       bashTagQuery,
}

// aliases maps grep-ast's language identifiers (which vary in casing and
// separator conventions across grammars) onto our SitterLanguage keys.
var aliases = map[string]SitterLanguage{
	"go":         Go,
	"golang":     Go,
	"python":     Python,
	"py":         Python,
	"javascript": Javascript,
	"js":         Javascript,
	"jsx":        Javascript,
	"typescript": Typescript,
	"ts":         Typescript,
	"tsx":        Typescript,
	"java":       Java,
	"csharp":     CSharp,
	"c_sharp":    CSharp,
	"c-sharp":    CSharp,
	"cs":         CSharp,
	"rust":       Rust,
	"rs":         Rust,
	"bash":       Bash,
	"sh":         Bash,
	"shell":      Bash,
}

// GetSitterQuery returns the embedded tag query for the given language.
func GetSitterQuery(language SitterLanguage) ([]byte, error) {
	if q, ok := queries[language]; ok {
		return q, nil
	}
	if canon, ok := aliases[strings.ToLower(string(language))]; ok {
		return queries[canon], nil
	}
	return nil, fmt.Errorf("language not supported: %s", language)
}

// Supported reports whether a tag query is bundled for the given language
// identifier, as returned by grep-ast's language detection.
func Supported(langID string) bool {
	_, ok := aliases[strings.ToLower(langID)]
	return ok
}
