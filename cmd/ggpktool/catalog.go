package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/jchantrell/ggpktool/internal/catalog"
	"github.com/jchantrell/ggpktool/internal/utils"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Record the pack's file tree in a SQLite database",
	Long: `Catalog walks every directory and file of the pack, bundle files
included, and writes one row per node into the catalog database. Run
"ggpktool query" against the result. An existing catalog is rebuilt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		start := time.Now()

		c, err := openContainer(false)
		if err != nil {
			return err
		}
		defer c.Close()

		db, err := catalog.Open(catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer db.Close()

		progress := utils.NewProgress("catalog", c.Tree().Len(), !noProgress)
		builder := catalog.NewBuilder(db, catalog.DefaultBatchSize, func(done, total int) {
			progress.Track(done, total, "")
		})
		err = builder.Build(ctx, c)
		progress.Finish()
		if err != nil {
			return fmt.Errorf("building catalog: %w", err)
		}

		slog.Info("Catalog complete",
			"catalog", cfg.Catalog,
			"duration", utils.Duration(time.Since(start)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
}
