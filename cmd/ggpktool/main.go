package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/jchantrell/ggpktool/internal/bundledggpk"
	"github.com/jchantrell/ggpktool/internal/config"
)

var (
	cfg     *config.Config
	cfgFile string

	ggpkPath   string
	logLevel   string
	logFormat  string
	noProgress bool
)

var rootCmd = &cobra.Command{
	Use:   "ggpktool",
	Short: "Inspect, export and patch GGPK content packs",
	Long: `ggpktool reads and modifies Path of Exile GGPK content packs.

Files stored directly in the pack and files stored in its bundles are
presented as one tree. They can be listed, exported to a directory,
replaced from a directory, or catalogued into SQLite for querying.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		if cmd.Flags().Changed("ggpk") {
			cfg.GGPK = ggpkPath
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		var level slog.Level
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var handler slog.Handler
		if cfg.LogFormat == "json" {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: level,
			})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level: level,
			})
		}
		slog.SetDefault(slog.New(handler))

		// bars would interleave with structured or verbose log lines
		if cfg.LogFormat == "json" || level == slog.LevelDebug {
			noProgress = true
		}

		slog.Debug("Configuration",
			"ggpk", cfg.GGPK,
			"catalog", cfg.Catalog,
			"bundle_threshold", cfg.BundleThreshold,
			"cache_entries", cfg.CacheEntries,
			"log_level", cfg.LogLevel,
			"log_format", cfg.LogFormat)

		return nil
	},
}

// openContainer opens the configured pack with its bundle overlay.
func openContainer(writable bool) (*bundledggpk.Container, error) {
	open := bundledggpk.OpenReadOnly
	if writable {
		open = bundledggpk.Open
	}
	c, err := open(cfg.GGPK, cfg.BundleOptions())
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", cfg.GGPK, err)
	}
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ggpktool.yaml in pwd or home)")
	rootCmd.PersistentFlags().StringVarP(&ggpkPath, "ggpk", "g", "", "path to the GGPK file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bar")
}
