package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jchantrell/ggpktool/internal/catalog"
)

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Query the catalog database",
	Long: `Query executes SQL against a catalog built by "ggpktool catalog",
lists its tables, or shows a table's schema.

Example:
  ggpktool query "SELECT path, size FROM nodes WHERE kind = 'bundle_file' ORDER BY size DESC LIMIT 10"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		listTables, err := cmd.Flags().GetBool("tables")
		if err != nil {
			return fmt.Errorf("failed to get tables flag: %w", err)
		}
		schemaTable, err := cmd.Flags().GetString("schema")
		if err != nil {
			return fmt.Errorf("failed to get schema flag: %w", err)
		}

		slog.Debug("Query parameters",
			"catalog", cfg.Catalog,
			"list-tables", listTables,
			"schema", schemaTable)

		db, err := catalog.Open(catalog.DefaultOptions(cfg.Catalog))
		if err != nil {
			return fmt.Errorf("opening catalog: %w", err)
		}
		defer db.Close()

		if listTables {
			tables, err := db.Tables(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Available tables:")
			for _, table := range tables {
				fmt.Printf("  %s\n", table)
			}
			return nil
		}

		if schemaTable != "" {
			ddl, err := db.TableSchema(ctx, schemaTable)
			if err != nil {
				return err
			}
			fmt.Println(ddl)
			return nil
		}

		if len(args) == 0 {
			return fmt.Errorf("no query provided, use --tables to list tables or --schema <table> to show schema")
		}

		query := args[0]
		slog.Debug("Executing SQL query", "query", query)

		rows, err := db.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		columns, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("getting column names: %w", err)
		}

		fmt.Println(strings.Join(columns, "\t"))
		separators := make([]string, len(columns))
		for i, col := range columns {
			separators[i] = strings.Repeat("-", len(col))
		}
		fmt.Println(strings.Join(separators, "\t"))

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		cells := make([]string, len(columns))

		for rows.Next() {
			if err := rows.Scan(valuePtrs...); err != nil {
				return fmt.Errorf("scanning row: %w", err)
			}
			for i, val := range values {
				if val == nil {
					cells[i] = "NULL"
				} else if b, ok := val.([]byte); ok {
					cells[i] = string(b)
				} else {
					cells[i] = fmt.Sprint(val)
				}
			}
			fmt.Println(strings.Join(cells, "\t"))
		}

		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterating rows: %w", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().Bool("tables", false, "List available tables")
	queryCmd.Flags().String("schema", "", "Show schema for specified table")
}
