package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	d := Defaults()
	assert.Equal(t, ".", d.Root)
	assert.Equal(t, 1024, d.MaxMapTokens)
	assert.Equal(t, 16000, d.MaxContextWindow)
}

func TestLoadWithNoConfigFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.MaxMapTokens)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_map_tokens: 2048\nlog_level: debug\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.MaxMapTokens)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRespectsEnvOverride(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd)

	require.NoError(t, os.Setenv("GERM_MAX_MAP_TOKENS", "4096"))
	defer os.Unsetenv("GERM_MAX_MAP_TOKENS")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.MaxMapTokens)
}
