// Command germ renders a token-budgeted map of a repository's most
// relevant code, and exposes the add/edit/inspect tool surface for an
// embedding agent loop to drive.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/cyber-nic/germ"
	"github.com/cyber-nic/germ/internal/config"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "germ",
		Short: "Code-aware repository map generator",
		Long:  "germ parses a repository's source into tags, ranks them by relevance, and renders a map that fits a token budget.",
	}

	rootCmd.PersistentFlags().String("root", ".", "repository root")
	rootCmd.PersistentFlags().Int("max-map-tokens", 1024, "token budget for the rendered map")
	rootCmd.PersistentFlags().Int("max-context-window", 16000, "model context window, used to expand the budget when no chat files are open")
	rootCmd.PersistentFlags().Int("map-mul-no-files", 8, "multiplier applied to max-map-tokens when no chat files are open")
	rootCmd.PersistentFlags().String("glob-ignore-file-path", "", "path to a .gitignore-style file of additional ignore patterns")
	rootCmd.PersistentFlags().Bool("disable-glob-ignore", false, "disable ignore-pattern filtering entirely")
	rootCmd.PersistentFlags().Bool("legacy-ranker", false, "use the personalized-PageRank ranker instead of the default weight-and-diffuse ranker")
	rootCmd.PersistentFlags().Float64("diffusion-mult", 0.5, "fraction of a tag's rank weight diffused to its graph neighbors")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a .germ.yaml config file")

	rootCmd.AddCommand(newMapCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print germ's version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("germ 0.1.0")
		},
	}
}

func newMapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map [path]",
		Short: "Render a repository map",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMap,
	}
	return cmd
}

func runMap(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, &cfg)

	configureLogging(cfg.LogLevel)

	inputPath := cfg.Root
	if len(args) == 1 {
		inputPath = args[0]
	}

	absPath, err := filepath.Abs(inputPath)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}

	root, err := germ.FindGitRoot(absPath)
	if err != nil {
		log.Warn().Err(err).Str("path", absPath).Msg("no git root found, using path as-is")
		root = absPath
	}

	options := []func(*germ.RepoMap){
		germ.WithMaxTokens(cfg.MaxMapTokens),
		germ.WithMaxContextWindow(cfg.MaxContextWindow),
		germ.WithMapMulNoFiles(cfg.MapMulNoFiles),
		germ.WithDiffusionMultiplier(cfg.DiffusionMult),
		germ.WithLegacyRanker(cfg.UseLegacyRanker),
		// NewRepoMap resets the global log level; restore the configured one.
		germ.WithLogLevel(int(zerolog.GlobalLevel())),
	}
	if cfg.GlobIgnoreFilePath != "" {
		options = append(options, germ.WithGlobIgnoreFilePath(cfg.GlobIgnoreFilePath))
	}
	if cfg.DisableGlobIgnore {
		options = append(options, germ.DisableGlobIgnore())
	}

	rm := germ.NewRepoMap(root, germ.NaiveTokenCounter{}, options...)
	defer rm.Close()

	allFiles, treeMap := rm.GetRepoFiles(absPath)
	fmt.Fprintln(os.Stderr, treeMap)

	output := rm.Generate(nil, allFiles, nil, nil)
	if output == "" {
		fmt.Fprintln(os.Stderr, color.YellowString("repo map is empty"))
		return nil
	}

	fmt.Println(output)
	return nil
}

// applyFlagOverrides layers explicitly-set persistent flags on top of
// cfg, which was already populated from defaults/config-file/env.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Root, _ = flags.GetString("root")
	}
	if flags.Changed("max-map-tokens") {
		cfg.MaxMapTokens, _ = flags.GetInt("max-map-tokens")
	}
	if flags.Changed("max-context-window") {
		cfg.MaxContextWindow, _ = flags.GetInt("max-context-window")
	}
	if flags.Changed("map-mul-no-files") {
		cfg.MapMulNoFiles, _ = flags.GetInt("map-mul-no-files")
	}
	if flags.Changed("glob-ignore-file-path") {
		cfg.GlobIgnoreFilePath, _ = flags.GetString("glob-ignore-file-path")
	}
	if flags.Changed("disable-glob-ignore") {
		cfg.DisableGlobIgnore, _ = flags.GetBool("disable-glob-ignore")
	}
	if flags.Changed("legacy-ranker") {
		cfg.UseLegacyRanker, _ = flags.GetBool("legacy-ranker")
	}
	if flags.Changed("diffusion-mult") {
		cfg.DiffusionMult, _ = flags.GetFloat64("diffusion-mult")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
}

func configureLogging(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	log.Logger = log.With().Caller().Logger()

	if envLevel, ok := os.LookupEnv("GERM_LOG"); ok {
		level = envLevel
	}

	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
		log.Warn().Str("level", level).Msg("invalid log level, defaulting to info")
	}
	zerolog.SetGlobalLevel(parsed)
}
