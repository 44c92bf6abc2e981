package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chazu/solidcsg/pkg/csgterm"
	"github.com/chazu/solidcsg/pkg/evaluate"
)

func newTermsCmd(a *app) *cobra.Command {
	var bounds bool
	cmd := &cobra.Command{
		Use:   "terms FILE",
		Short: "Print the CSG term tree used for previews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.load(cmd, args[0])
			if err != nil {
				return err
			}

			opts := []csgterm.Option{csgterm.WithLogger(a.log)}
			if bounds {
				backend, err := a.cfg.NewBackend(a.log)
				if err != nil {
					return err
				}
				ev := evaluate.New(t, backend, a.cfg.EvaluatorOptions(a.cfg.NewCache(a.log), a.log)...)
				opts = append(opts, csgterm.WithEvaluator(ev))
			}

			b := csgterm.New(t, opts...)
			term := b.Build(t.EffectiveRoot())

			out := cmd.OutOrStdout()
			if term == nil {
				fmt.Fprintln(out, "(background only)")
			} else {
				fmt.Fprintln(out, term)
			}
			printTerms(out, "highlight", b.Highlights())
			printTerms(out, "background", b.Backgrounds())
			return nil
		},
	}
	cmd.Flags().BoolVar(&bounds, "bounds", false, "evaluate leaves and prune operands whose bounding boxes cannot meet")
	return cmd
}

func printTerms(w io.Writer, kind string, terms []*csgterm.Term) {
	for _, t := range terms {
		fmt.Fprintf(w, "%s: %s\n", kind, t)
	}
}
