package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree FILE",
		Short: "Print the scene tree of a script",
		Long: `Print the scene tree a script builds, one node per line.
With --flatten the rewritten tree is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), t.Dump(t.Root))
			return nil
		},
	}
}
