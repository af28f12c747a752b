// Command tagsync regenerates the operation tag table from the IDL.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mirokugang/mukon/internal/tagsync"
	"github.com/spf13/cobra"
)

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		idl   string
		table string
		check bool
	)
	cmd := &cobra.Command{
		Use:           "tagsync",
		Short:         "Regenerate operation tags from the instruction IDL",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := tagsync.Sync(idl, table, check)
			if err != nil {
				return err
			}
			if res.Changed {
				fmt.Fprintf(out, "%s: updated %d operations\n", table, res.Operations)
			} else {
				fmt.Fprintf(out, "%s: up to date (%d operations)\n", table, res.Operations)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&idl, "idl", "idl/mukon.json", "instruction IDL")
	cmd.Flags().StringVar(&table, "out", "internal/optag/table_gen.go", "generated tag table")
	cmd.Flags().BoolVar(&check, "check", false, "fail when the table is stale instead of writing it")
	cmd.SetOut(out)
	return cmd
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "tagsync:", err)
		os.Exit(1)
	}
}
