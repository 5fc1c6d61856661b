package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/portfolioopt/internal/config"
	"github.com/cwbudde/portfolioopt/internal/engine"
	"github.com/cwbudde/portfolioopt/internal/logger"
	"github.com/cwbudde/portfolioopt/internal/problem"
	"github.com/cwbudde/portfolioopt/internal/store"
)

type runOptions struct {
	configPath string
	problem    string
	dim        int
	engine     string
	seed       int64
	iter       int
	depth      int
	attc       int
	copies     int
	lower      float64
	upper      float64
	save       bool
	jsonOut    bool
	store      storeOptions
}

func newRunCmd() *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a portfolio on a benchmark problem",
		Long: `Runs a portfolio of engine copies on a registered problem and prints the best
candidate found. Settings come from --config (YAML) and are overridden by flags.`,
		Example: `  portfolioopt run --problem l1-2d --copies 8
  portfolioopt run --config run.yaml --save`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig(cmd)
			if err != nil {
				return err
			}
			return o.run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.configPath, "config", "", "YAML run file")
	f.StringVar(&o.problem, "problem", "", "Problem name (see 'problems')")
	f.IntVar(&o.dim, "dim", 0, "Problem dimension (0 = problem default)")
	f.StringVar(&o.engine, "engine", "compass", engineFlagUsage("Engine"))
	f.Int64Var(&o.seed, "seed", 42, "Engine seed")
	f.IntVar(&o.iter, "iter", 1000, "Engine iteration budget")
	f.IntVar(&o.depth, "depth", 1, "Engine search depth")
	f.IntVar(&o.attc, "attc", 10, "Engine attempt count")
	f.IntVar(&o.copies, "copies", 1, "Number of engine copies raced in parallel")
	f.Float64Var(&o.lower, "lower", 0, "Lower search bound (default: problem bound)")
	f.Float64Var(&o.upper, "upper", 0, "Upper search bound (default: problem bound)")
	f.BoolVar(&o.save, "save", false, "Save the run record and trace to the result store")
	f.BoolVar(&o.jsonOut, "json", false, "Print the run record as JSON")
	o.store.addFlags(cmd)

	return cmd
}

// loadConfig merges the run file with explicitly set flags.
func (o *runOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(o.configPath); err != nil {
			return nil, err
		}
		if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
			slog.SetDefault(logger.New(cfg.LogLevel, os.Stdout))
		}
	}

	f := cmd.Flags()
	if f.Changed("problem") {
		cfg.Problem = o.problem
	}
	if f.Changed("dim") {
		cfg.Dim = o.dim
	}
	if f.Changed("engine") {
		cfg.Engine = o.engine
	}
	if f.Changed("seed") {
		cfg.Seed = o.seed
	}
	if f.Changed("iter") {
		cfg.Params.Iter = o.iter
	}
	if f.Changed("depth") {
		cfg.Params.Depth = o.depth
	}
	if f.Changed("attc") {
		cfg.Params.Attc = o.attc
	}
	if f.Changed("copies") {
		cfg.Params.PortfolioCopies = o.copies
	}
	if f.Changed("lower") {
		v := o.lower
		cfg.Params.LowerBound = &v
	}
	if f.Changed("upper") {
		v := o.upper
		cfg.Params.UpperBound = &v
	}
	if f.Changed("store") {
		cfg.Store.Kind = o.store.kind
	}
	if f.Changed("data-dir") {
		cfg.Store.Path = o.store.dataDir
	}

	if cfg.Problem == "" {
		return nil, fmt.Errorf("no problem given: use --problem or set problem in the run file")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (o *runOptions) run(cmd *cobra.Command, cfg *config.Config) error {
	p, ok := problem.Lookup(cfg.Problem)
	if !ok {
		return fmt.Errorf("unknown problem: %s", cfg.Problem)
	}
	dim, err := p.Dim(cfg.Dim)
	if err != nil {
		return err
	}

	runCfg := store.RunConfig{
		Problem: p.Name,
		Dim:     dim,
		Engine:  cfg.Engine,
		Seed:    cfg.Seed,
		Params:  cfg.OptParams(p.LowerBound, p.UpperBound),
	}

	var st store.Store
	if o.save || cfg.Store.Path != "" {
		so := storeOptions{dataDir: o.store.dataDir, kind: o.store.kind}
		if cfg.Store.Path != "" {
			so.dataDir = cfg.Store.Path
		}
		if cfg.Store.Kind != "" {
			so.kind = cfg.Store.Kind
		}
		if st, err = so.open(); err != nil {
			return err
		}
		defer store.CloseIfSupported(st)
	}

	record, err := executeRun(uuid.New().String(), runCfg, nil, st)
	if err != nil {
		return err
	}
	return printRecord(cmd.OutOrStdout(), record, st != nil, o.jsonOut)
}

// executeRun solves one problem run. start, when not nil, warm starts the run
// from a stored vector. When st is not nil the improvement trace and the
// final record are persisted under runID.
func executeRun(runID string, cfg store.RunConfig, start []float64, st store.Store) (*store.Record, error) {
	p, ok := problem.Lookup(cfg.Problem)
	if !ok {
		return nil, fmt.Errorf("unknown problem: %s", cfg.Problem)
	}
	log := slog.Default().With("run_id", runID)
	eng, err := engine.New(cfg.Engine, cfg.Seed, log)
	if err != nil {
		return nil, err
	}

	log.Info("Starting run",
		"problem", cfg.Problem,
		"dim", cfg.Dim,
		"engine", cfg.Engine,
		"copies", cfg.Params.PortfolioCopies,
		"warm_start", start != nil,
	)

	var observe problem.Observer
	var sink store.TraceSink
	if st != nil {
		if sink, err = st.OpenTrace(runID); err != nil {
			return nil, fmt.Errorf("failed to open trace: %w", err)
		}
		seq := 0
		observe = func(score float64, x []float64) {
			seq++
			if err := sink.Write(store.TraceEntry{Seq: seq, Score: score, Timestamp: time.Now(), Params: x}); err != nil {
				log.Warn("Failed to write trace entry", "seq", seq, "error", err)
			}
		}
	}

	outcome, err := p.SolveWithLogger(eng, cfg.Params, cfg.Dim, start, observe, log)
	if sink != nil {
		if cerr := sink.Close(); cerr != nil {
			log.Warn("Failed to close trace", "error", cerr)
		}
	}
	if err != nil {
		return nil, err
	}

	cfg.Dim = len(outcome.Vector)
	record := store.NewRecord(runID, cfg, outcome.Vector, outcome.Score, outcome.ArchetypeScore,
		outcome.Evaluations, outcome.Improvements, outcome.Summary)

	if st != nil {
		if err := st.SaveRecord(runID, record); err != nil {
			return nil, fmt.Errorf("failed to save record: %w", err)
		}
		log.Info("Record saved")
	}
	return record, nil
}

func printRecord(w io.Writer, record *store.Record, saved, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	fmt.Fprintf(w, "%s %s\n", record.Config.Problem, record.Summary)
	fmt.Fprintf(w, "  score: %.6g -> %.6g\n", record.ArchetypeScore, record.BestScore)
	fmt.Fprintf(w, "  evaluations: %d across %d copies, %d improvements\n",
		record.Evaluations, record.Config.Params.PortfolioCopies, record.Improvements)
	if saved {
		fmt.Fprintf(w, "  saved as %s\n", record.RunID)
	}
	return nil
}
