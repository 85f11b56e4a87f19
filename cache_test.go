package germ

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagsCacheHitsAndMisses(t *testing.T) {
	dir := t.TempDir()
	cache, err := OpenTagsCache(dir)
	require.NoError(t, err)
	defer cache.Close()

	fname := filepath.Join(dir, "sample.go")
	require.NoError(t, writeFile(fname, "package sample\n"))

	calls := 0
	parse := func(fname string) ([]Tag, error) {
		calls++
		return []Tag{{Name: "Sample", Kind: KindDef}}, nil
	}

	tags, err := cache.CachedFunctionCall(fname, "tags_from_filename", parse)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 1, calls)

	// Second call with unchanged mtime should hit the cache.
	tags, err = cache.CachedFunctionCall(fname, "tags_from_filename", parse)
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 1, calls)

	// Touching the file (changing its content/mtime) should bust the cache.
	require.NoError(t, writeFile(fname, "package sample\n\nfunc Extra() {}\n"))
	bumpMtime(t, fname)
	_, err = cache.CachedFunctionCall(fname, "tags_from_filename", parse)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTagsCacheNilIsSafe(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "sample.go")
	require.NoError(t, writeFile(fname, "package sample\n"))

	var cache *TagsCache
	calls := 0
	tags, err := cache.CachedFunctionCall(fname, "key", func(string) ([]Tag, error) {
		calls++
		return []Tag{{Name: "X"}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, tags, 1)
	assert.Equal(t, 1, calls)
}
