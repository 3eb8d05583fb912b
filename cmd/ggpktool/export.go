package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/ggpktool/internal/bundledggpk"
	"github.com/jchantrell/ggpktool/internal/ggpk"
	"github.com/jchantrell/ggpktool/internal/utils"
)

// entriesFor resolves a pack path to the batch entries under it.
func entriesFor(c *bundledggpk.Container, packPath, external string, mode bundledggpk.Mode, pattern string) ([]bundledggpk.Entry, error) {
	n, ok := c.Find(packPath)
	if !ok {
		return nil, fmt.Errorf("%s: no such file or directory", packPath)
	}

	var filter *regexp.Regexp
	if pattern != "" {
		var err error
		if filter, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("invalid filter: %w", err)
		}
	}

	if _, isFile := n.(ggpk.File); isFile {
		external = filepath.Join(external, n.Name())
	}
	return c.RecursiveFileList(n, external, mode, filter)
}

var exportCmd = &cobra.Command{
	Use:   "export <path> <directory>",
	Short: "Export files of the pack to a directory",
	Long: `Export writes every file below <path> into <directory>, keeping the
pack's directory layout. Files are read in on-disk order so each bundle is
decompressed as few times as possible.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := cmd.Flags().GetString("filter")
		if err != nil {
			return fmt.Errorf("failed to get filter flag: %w", err)
		}

		c, err := openContainer(false)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := entriesFor(c, args[0], args[1], bundledggpk.ModeExport, filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			slog.Info("Nothing to export", "path", args[0], "filter", filter)
			return nil
		}

		start := time.Now()
		progress := utils.NewProgress("export", len(entries), !noProgress)
		err = c.Export(entries, progress.Track)
		progress.Finish()
		if err != nil {
			return err
		}

		slog.Info("Export complete",
			"files", utils.Number(int64(len(entries))),
			"destination", args[1],
			"duration", utils.Duration(time.Since(start)))
		return nil
	},
}

var replaceCmd = &cobra.Command{
	Use:   "replace <path> <directory>",
	Short: "Replace files of the pack from a directory",
	Long: `Replace takes every file below <path> that has a counterpart in
<directory> and writes the counterpart's bytes into the pack. Files stored
directly in the pack are rewritten in place when they fit and moved
otherwise. Bundle files are appended to the smallest bundle, which is
written back each time it has taken bundle_threshold bytes.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := cmd.Flags().GetString("filter")
		if err != nil {
			return fmt.Errorf("failed to get filter flag: %w", err)
		}

		c, err := openContainer(true)
		if err != nil {
			return err
		}
		defer c.Close()

		entries, err := entriesFor(c, args[0], args[1], bundledggpk.ModeReplace, filter)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			slog.Info("Nothing to replace", "path", args[0], "source", args[1])
			return nil
		}

		start := time.Now()
		progress := utils.NewProgress("replace", len(entries), !noProgress)
		stats, err := c.Replace(entries, progress.Track)
		progress.Finish()
		if err != nil {
			return err
		}

		slog.Info("Replace complete",
			"direct", utils.Number(int64(stats.Direct)),
			"bundled", utils.Number(int64(stats.Bundled)),
			"bundle_writes", stats.Flushes,
			"bytes", utils.Bytes(stats.Bytes),
			"pack_size", utils.Bytes(c.Size()),
			"duration", utils.Duration(time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(replaceCmd)
	exportCmd.Flags().String("filter", "", "only export pack paths matching this regular expression")
	replaceCmd.Flags().String("filter", "", "only replace pack paths matching this regular expression")
}
