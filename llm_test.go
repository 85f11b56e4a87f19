package germ

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutputter struct {
	terms SearchTerms
	err   error
}

func (f fakeOutputter) ExtractSearchTerms(_ context.Context, _ string, _ *jsonschema.Schema) (SearchTerms, error) {
	return f.terms, f.err
}

func TestRepoMapFromMessageUsesExtractedTerms(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "main.go")
	src := `package sample

func Greet(name string) string {
	return "hello " + name
}

func Unrelated() int {
	return 0
}
`
	require.NoError(t, os.WriteFile(fpath, []byte(src), 0o644))

	rm := NewRepoMap(dir, nil, DisableGlobIgnore(), WithMaxTokens(4096))
	defer rm.Close()

	out := fakeOutputter{terms: SearchTerms{Strings: []string{"hello"}}}
	result, err := rm.RepoMapFromMessage(context.Background(), out, "fix the greeting", []string{fpath}, nil, nil)
	require.NoError(t, err)
	assert.Contains(t, result, "Greet")
}

func TestRepoMapFromMessagePropagatesOutputterError(t *testing.T) {
	dir := t.TempDir()
	rm := NewRepoMap(dir, nil)
	defer rm.Close()

	out := fakeOutputter{err: assertError{}}
	_, err := rm.RepoMapFromMessage(context.Background(), out, "anything", nil, nil, nil)
	assert.Error(t, err)
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
