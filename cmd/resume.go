package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/engine"
	"github.com/cwbudde/portfolioopt/internal/problem"
	"github.com/cwbudde/portfolioopt/internal/store"
)

type resumeOptions struct {
	engine  string
	seed    int64
	iter    int
	copies  int
	jsonOut bool
	store   storeOptions
}

func newResumeCmd() *cobra.Command {
	o := &resumeOptions{}
	cmd := &cobra.Command{
		Use:   "resume <run-id>",
		Short: "Warm start a new run from a stored record",
		Long: `Starts a new run whose archetype is the best candidate of a stored run. The
archetype seeds the shared best register, so the new run never ends with a
worse score than the stored one. The result is saved under a new run ID.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.engine, "engine", "", engineFlagUsage("Override the stored engine"))
	f.Int64Var(&o.seed, "seed", 0, "Override the stored seed (default: stored seed + 1)")
	f.IntVar(&o.iter, "iter", 0, "Override the stored iteration budget")
	f.IntVar(&o.copies, "copies", 0, "Override the stored number of copies")
	f.BoolVar(&o.jsonOut, "json", false, "Print the new run record as JSON")
	o.store.addFlags(cmd)

	return cmd
}

func (o *resumeOptions) run(cmd *cobra.Command, runID string) error {
	st, err := o.store.open()
	if err != nil {
		return err
	}
	defer store.CloseIfSupported(st)

	prev, err := st.LoadRecord(runID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no stored run %s in %s", runID, o.store.dataDir)
	} else if err != nil {
		return err
	}
	if err := prev.Validate(); err != nil {
		return fmt.Errorf("stored run %s is invalid: %w", runID, err)
	}

	p, ok := problem.Lookup(prev.Config.Problem)
	if !ok {
		return fmt.Errorf("stored run %s uses unknown problem %s", runID, prev.Config.Problem)
	}
	dim, err := p.Dim(prev.Config.Dim)
	if err != nil {
		return err
	}
	if err := prev.IsCompatible(p.Name, dim); err != nil {
		return err
	}

	cfg := prev.Config
	cfg.Dim = dim
	cfg.Seed++
	f := cmd.Flags()
	if f.Changed("engine") {
		cfg.Engine = o.engine
	}
	if f.Changed("seed") {
		cfg.Seed = o.seed
	}
	if f.Changed("iter") {
		cfg.Params.Iter = o.iter
	}
	if f.Changed("copies") {
		cfg.Params.PortfolioCopies = o.copies
	}
	if _, err := engine.New(cfg.Engine, cfg.Seed, nil); err != nil {
		return err
	}

	record, err := executeRun(uuid.New().String(), cfg, prev.BestParams, st)
	if err != nil {
		return err
	}

	if !o.jsonOut {
		fmt.Fprintf(cmd.OutOrStdout(), "resumed %s (stored score %.6g)\n", prev.RunID, prev.BestScore)
	}
	return printRecord(cmd.OutOrStdout(), record, true, o.jsonOut)
}
