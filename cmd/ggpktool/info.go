package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jchantrell/ggpktool/internal/ggpk"
	"github.com/jchantrell/ggpktool/internal/utils"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Summarise the pack",
	RunE: func(cmd *cobra.Command, args []string) error {
		verify, err := cmd.Flags().GetBool("verify")
		if err != nil {
			return fmt.Errorf("failed to get verify flag: %w", err)
		}

		c, err := openContainer(false)
		if err != nil {
			return err
		}
		defer c.Close()

		header := c.Header()
		fmt.Printf("version:       %d\n", header.Version)
		fmt.Printf("size:          %s\n", utils.Bytes(c.Size()))
		fmt.Printf("nodes:         %s\n", utils.Number(int64(c.Tree().Len())))
		fmt.Printf("free regions:  %s\n", utils.Number(int64(c.FreeList().Len())))
		if c.Index != nil {
			fmt.Printf("bundles:       %s\n", utils.Number(int64(len(c.Index.Bundles))))
			fmt.Printf("bundle files:  %s\n", utils.Number(int64(len(c.Index.Files))))
		} else {
			fmt.Println("bundles:       none")
		}

		if verify {
			if err := c.FreeList().Validate(); err != nil {
				return fmt.Errorf("free list: %w", err)
			}
			if err := c.Tree().VerifyHashes(); err != nil {
				return fmt.Errorf("name hashes: %w", err)
			}
			slog.Info("Free list and name hashes are consistent")
		}
		return nil
	},
}

var defragCmd = &cobra.Command{
	Use:   "defrag",
	Short: "Compact free space out of the pack",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer(true)
		if err != nil {
			return err
		}
		defer c.Close()

		err = c.Compact()
		if errors.Is(err, ggpk.ErrUnimplemented) {
			return fmt.Errorf("defragmentation is not supported yet: %w", err)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(defragCmd)
	infoCmd.Flags().Bool("verify", false, "check the free list and directory name hashes")
}
