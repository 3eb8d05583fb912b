package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jchantrell/ggpktool/internal/ggpk"
	"github.com/jchantrell/ggpktool/internal/utils"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory of the pack",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, err := cmd.Flags().GetBool("recursive")
		if err != nil {
			return fmt.Errorf("failed to get recursive flag: %w", err)
		}

		c, err := openContainer(false)
		if err != nil {
			return err
		}
		defer c.Close()

		var start ggpk.Node = c.Tree().Root()
		if len(args) > 0 {
			n, ok := c.Find(args[0])
			if !ok {
				return fmt.Errorf("%s: no such file or directory", args[0])
			}
			start = n
		}

		tree := c.Tree()
		show := func(n ggpk.Node) {
			switch x := n.(type) {
			case ggpk.Dir:
				fmt.Printf("%-10s %12s  %s/\n", "dir", "-", tree.Path(n))
			case *ggpk.FileNode:
				fmt.Printf("%-10s %12s  %s\n", "file", utils.Bytes(x.Record.DataLength), tree.Path(n))
			case *ggpk.BundleFileNode:
				fmt.Printf("%-10s %12s  %s\n", x.Record.Bundle.Path, utils.Bytes(int64(x.Record.Size)), tree.Path(n))
			}
		}

		if recursive {
			return tree.Walk(start, func(n ggpk.Node) error {
				if n != start {
					show(n)
				}
				return nil
			})
		}

		dir, ok := start.(ggpk.Dir)
		if !ok {
			show(start)
			return nil
		}
		for _, child := range tree.Children(dir) {
			show(child)
		}
		return nil
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Write a file of the pack to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openContainer(false)
		if err != nil {
			return err
		}
		defer c.Close()

		n, ok := c.Find(args[0])
		if !ok {
			return fmt.Errorf("%s: no such file", args[0])
		}
		data, err := c.ReadContent(n)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	lsCmd.Flags().BoolP("recursive", "r", false, "list everything below the path")
}
