package germ

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRepoMap(t *testing.T) {
	dir := t.TempDir()
	rm := NewRepoMap(dir, nil)
	require.NotNil(t, rm)
	defer rm.Close()

	assert.Equal(t, dir, rm.Root())
	assert.Equal(t, defaultMaxMapTokens, rm.maxMapTokens)
	assert.Equal(t, defaultMaxCtxWindow, rm.maxCtxWindow)
}

func TestNewRepoMapOptions(t *testing.T) {
	dir := t.TempDir()
	rm := NewRepoMap(dir, nil,
		WithMaxTokens(2048),
		WithMaxContextWindow(32000),
		WithMapMulNoFiles(4),
		WithLegacyRanker(true),
		WithDiffusionMultiplier(0.1),
	)
	defer rm.Close()

	assert.Equal(t, 2048, rm.maxMapTokens)
	assert.Equal(t, 32000, rm.maxCtxWindow)
	assert.Equal(t, 4, rm.maxCtxFileMultiplier)
	assert.True(t, rm.useLegacyRanker)
	assert.Equal(t, 0.1, rm.diffusionMult)
}

func TestGetRelFname(t *testing.T) {
	tests := []struct {
		name     string
		root     string
		fname    string
		expected string
	}{
		{"file within root", "/home/user/project", "/home/user/project/file.txt", "file.txt"},
		{"nested file within root", "/home/user/project", "/home/user/project/folder/file.txt", "folder/file.txt"},
		{"file outside root", "/home/user/project", "/home/user/other/file.txt", "../other/file.txt"},
		{"same as root", "/home/user/project", "/home/user/project", "."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RepoMap{root: tt.root}
			assert.Equal(t, tt.expected, r.GetRelFname(tt.fname))
		})
	}
}

func TestNaiveTokenCounter(t *testing.T) {
	var tc NaiveTokenCounter
	assert.Equal(t, 0.0, tc.TokenCount(""))
	assert.Equal(t, 2.0, tc.TokenCount("abcdefgh"))
}

func TestFindBestTagTree(t *testing.T) {
	entries := make([]RankedEntry, 50)
	for i := range entries {
		entries[i] = RankedEntry{Tag: &Tag{RelFName: "file.go", Name: "sym"}}
	}

	// Rendered size grows with n; the search should return the largest
	// probed rendering that stays strictly under the budget.
	render := func(n int) string {
		out := make([]byte, n*10)
		for i := range out {
			out[i] = 'x'
		}
		return string(out)
	}
	tokenCount := func(s string) float64 { return float64(len(s)) }

	tree := findBestTagTree(entries, 200, tokenCount, render)
	assert.Less(t, tokenCount(tree), 200.0)
	assert.Greater(t, len(tree), 0)
}

func TestFindBestTagTreeEmpty(t *testing.T) {
	tree := findBestTagTree(nil, 200, func(s string) float64 { return 0 }, func(n int) string { return "" })
	assert.Equal(t, "", tree)
}

func TestGetRepoFilesSingleFile(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(fpath, []byte("package main\n"), 0o644))

	rm := NewRepoMap(dir, nil)
	defer rm.Close()

	files, tree := rm.GetRepoFiles(fpath)
	assert.Equal(t, []string{fpath}, files)
	assert.Contains(t, tree, "main.go")
}

func TestGetRepoFilesDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte("package a\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.go"), []byte("package sub\n"), 0o644))

	rm := NewRepoMap(dir, nil, DisableGlobIgnore())
	defer rm.Close()

	// NewRepoMap opens its tags cache database (.germ.tags.cache.v4/tags.db)
	// under the root; with ignore patterns disabled it is listed as well.
	files, tree := rm.GetRepoFiles(dir)
	assert.Len(t, files, 3)
	assert.Contains(t, tree, "a.go")
	assert.Contains(t, tree, "sub")
}

func TestFindGitRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ".git"), 0o755))

	nested := filepath.Join(dir, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, err := FindGitRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, dir, root)
}

func TestFindGitRootNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := FindGitRoot(dir)
	assert.Error(t, err)
}

func TestGenerateEmptyWhenTokensDisabled(t *testing.T) {
	dir := t.TempDir()
	rm := NewRepoMap(dir, nil, WithMaxTokens(0))
	defer rm.Close()

	out := rm.Generate(nil, nil, nil, nil)
	assert.Equal(t, "", out)
}

func TestGenerateEmptyWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	rm := NewRepoMap(dir, nil)
	defer rm.Close()

	out := rm.Generate(nil, nil, nil, nil)
	assert.Equal(t, "", out)
}

func TestGenerateRendersGoFile(t *testing.T) {
	dir := t.TempDir()
	src := `package sample

func Greet(name string) string {
	return "hello " + name
}

func main() {
	Greet("world")
}
`
	fpath := filepath.Join(dir, "main.go")
	require.NoError(t, os.WriteFile(fpath, []byte(src), 0o644))

	rm := NewRepoMap(dir, nil, DisableGlobIgnore(), WithMaxTokens(4096))
	defer rm.Close()

	out := rm.Generate(nil, []string{fpath}, nil, nil)
	assert.Contains(t, out, "Greet")
}
