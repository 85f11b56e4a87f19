package germ

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIgnorePatternsDefault(t *testing.T) {
	patterns, err := loadIgnorePatterns(t.TempDir(), "")
	require.NoError(t, err)
	require.NotNil(t, patterns)
}

func TestLoadIgnorePatternsExplicitFile(t *testing.T) {
	dir := t.TempDir()
	ignorePath := filepath.Join(dir, "custom.ignore")
	require.NoError(t, writeFile(ignorePath, "*.log\n"))

	patterns, err := loadIgnorePatterns(dir, ignorePath)
	require.NoError(t, err)
	assert.True(t, patterns.MatchesPath(filepath.Join(dir, "debug.log")))
	assert.False(t, patterns.MatchesPath(filepath.Join(dir, "main.go")))
}

func TestLoadIgnorePatternsMissingFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := loadIgnorePatterns(dir, "does-not-exist.ignore")
	assert.Error(t, err)
}
