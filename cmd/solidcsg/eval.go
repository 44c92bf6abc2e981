package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chazu/solidcsg/pkg/evaluate"
	"github.com/chazu/solidcsg/pkg/geom"
	"github.com/chazu/solidcsg/pkg/tessellate"
)

func newEvalCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "eval FILE",
		Short: "Evaluate a script and summarize the resulting objects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runEval(cmd, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print render buffers as JSON")
	return cmd
}

// evalReport is the JSON form of an evaluation.
type evalReport struct {
	Dimension int                  `json:"dimension"`
	Objects   []*tessellate.Buffer `json:"objects"`
	Warnings  []string             `json:"warnings,omitempty"`
	Stats     evaluate.Stats       `json:"stats"`
}

func (a *app) runEval(cmd *cobra.Command, path string, asJSON bool) error {
	t, err := a.load(cmd, path)
	if err != nil {
		return err
	}

	backend, err := a.cfg.NewBackend(a.log)
	if err != nil {
		return err
	}
	cc := a.cfg.NewCache(a.log)
	ev := evaluate.New(t, backend, a.cfg.EvaluatorOptions(cc, a.log)...)
	g := ev.EvaluateTree(false)

	bufs, err := tessellate.Tessellate(t, g, backend)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		rep := evalReport{Dimension: dimension(g), Objects: bufs, Stats: ev.Stats()}
		for _, w := range ev.Warnings() {
			rep.Warnings = append(rep.Warnings, w.String())
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	if len(bufs) == 0 {
		fmt.Fprintln(out, "empty result")
	} else {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "OBJECT\tTRIANGLES\tVERTICES\tSEGMENTS")
		for _, b := range bufs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", b.PartName, b.TriangleCount(), b.VertexCount(), b.SegmentCount())
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	st, cs := ev.Stats(), cc.Stats()
	fmt.Fprintf(out, "dimension %d, %d nodes, %d leaves, %d backend calls, %d disjoint unions\n",
		dimension(g), st.Nodes, st.Leaves, st.BackendCalls, st.DisjointUnions)
	fmt.Fprintf(out, "cache: %d entries, hit rate %.0f%%\n",
		cs.ApproxEntries+cs.ExactEntries, 100*cs.HitRate())
	for _, w := range ev.Warnings() {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}
	return nil
}

func dimension(g geom.Geometry) int {
	if geom.IsEmpty(g) {
		return 0
	}
	return g.Dimension()
}
