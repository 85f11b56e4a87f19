// Package config loads germ's runtime configuration via viper, layering
// an optional config file and environment variables (GERM_*) over the
// defaults into a single typed Config struct. CLI flags are not bound
// here; the caller applies them on top of the loaded Config.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is germ's full runtime configuration.
type Config struct {
	Root               string  `mapstructure:"root"`
	MaxMapTokens       int     `mapstructure:"max_map_tokens"`
	MaxContextWindow   int     `mapstructure:"max_context_window"`
	MapMulNoFiles      int     `mapstructure:"map_mul_no_files"`
	GlobIgnoreFilePath string  `mapstructure:"glob_ignore_file_path"`
	DisableGlobIgnore  bool    `mapstructure:"disable_glob_ignore"`
	LogLevel           string  `mapstructure:"log_level"`
	UseLegacyRanker    bool    `mapstructure:"legacy_ranker"`
	DiffusionMult      float64 `mapstructure:"diffusion_mult"`
}

// Defaults mirrors the RepoMap package's own defaults, duplicated here
// so a config file need only override what it cares about.
func Defaults() Config {
	return Config{
		Root:             ".",
		MaxMapTokens:     1024,
		MaxContextWindow: 16000,
		MapMulNoFiles:    8,
		LogLevel:         "info",
		DiffusionMult:    0.5,
	}
}

// Load reads configuration from defaults overlaid by a config file
// (explicit configFile, or .germ.yaml searched in the working directory
// and home directory) overlaid by GERM_-prefixed environment variables.
// CLI flags are layered on top of the result by the caller (cmd/germ),
// since viper's flag name binding doesn't reconcile cleanly with this
// struct's snake_case mapstructure tags.
func Load(configFile string) (Config, error) {
	v := viper.New()

	defaults := Defaults()
	v.SetDefault("root", defaults.Root)
	v.SetDefault("max_map_tokens", defaults.MaxMapTokens)
	v.SetDefault("max_context_window", defaults.MaxContextWindow)
	v.SetDefault("map_mul_no_files", defaults.MapMulNoFiles)
	v.SetDefault("log_level", defaults.LogLevel)
	v.SetDefault("diffusion_mult", defaults.DiffusionMult)
	v.SetDefault("glob_ignore_file_path", defaults.GlobIgnoreFilePath)
	v.SetDefault("disable_glob_ignore", defaults.DisableGlobIgnore)
	v.SetDefault("legacy_ranker", defaults.UseLegacyRanker)

	v.SetEnvPrefix("GERM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(".germ")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}
