package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/solidcsg/pkg/config"
	"github.com/chazu/solidcsg/pkg/engine"
	"github.com/chazu/solidcsg/pkg/flatten"
	"github.com/chazu/solidcsg/pkg/scene"
)

// errEvaluation marks a script that failed to evaluate. The individual
// errors have already been printed.
var errEvaluation = errors.New("script evaluation failed")

// app holds what every subcommand needs after flags and config are read.
type app struct {
	configPath string
	logLevel   string
	flatten    bool
	lazyUnion  bool

	cfg config.Config
	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "solidcsg",
		Short:         "Evaluate CSG scene scripts",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	f := root.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "YAML config file (defaults apply when absent)")
	f.StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	f.BoolVar(&a.flatten, "flatten", false, "flatten the tree before using it")
	f.BoolVar(&a.lazyUnion, "lazy-union", false, "keep top-level objects apart")

	root.AddCommand(newEvalCmd(a), newTreeCmd(a), newTermsCmd(a))
	return root
}

// setup loads the config and lets explicitly set flags override it.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("flatten") {
		cfg.Features.Flatten = a.flatten
	}
	if flags.Changed("lazy-union") {
		cfg.Features.LazyUnion = a.lazyUnion
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

// load evaluates the script at path into a scene tree, flattened when the
// config asks for it. Script errors are printed to stderr.
func (a *app) load(cmd *cobra.Command, path string) (*scene.Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	res, err := engine.NewEngine(a.cfg.EngineOptions(path, a.log)...).Run(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", path, e)
		}
		return nil, errEvaluation
	}
	for _, w := range res.Warnings {
		a.log.Warn(w.Message, slog.String("file", path), slog.Int("node", int(w.NodeID)))
	}

	t := res.Tree
	if a.cfg.Features.Flatten {
		before := t.Len()
		flatten.Flatten(t, a.cfg.FlattenOptions(a.log)...)
		a.log.Debug("flattened", slog.Int("nodes_before", before), slog.Int("nodes_after", t.Len()))
	}
	return t, nil
}
