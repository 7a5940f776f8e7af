package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/roach88/lamportsim/internal/analysis"
	"github.com/roach88/lamportsim/internal/cluster"
	"github.com/roach88/lamportsim/internal/eventlog"
)

// ExperimentOptions holds flags for the experiment command.
type ExperimentOptions struct {
	*RootOptions
	ClusterFlags

	Trials   int
	Modes    []string
	Probs    []float64
	PortStep int

	// RunIDGenerator overrides the run id source (for testing).
	RunIDGenerator cluster.RunIDGenerator
}

// NewExperimentCommand creates the experiment command.
func NewExperimentCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExperimentOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "experiment",
		Short: "Run repeated simulations per variation mode and internal probability",
		Long: `Run --trials simulations for every combination of --variation-modes and
--internal-probs, one after another. Trial n of a condition logs to
<log-dir>/<mode>_p<prob>/trial_<n>. Each trial moves every port up by
--port-step so consecutive runs never share a port.

Per condition the report gives the mean and standard deviation over trials
of the average jump time, the drift time range and the average queue
length, plus a histogram of logical clock jump sizes.

Examples:
  lamportsim experiment --trials 5 --run-time 60s
  lamportsim experiment --variation-modes order,small --internal-probs 0.3,0.7 --log-dir ./exp
  lamportsim experiment --trials 3 --run-time 10s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(opts, cmd)
		},
	}

	def := cluster.DefaultConfig()
	fs := cmd.Flags()
	fs.StringVar(&opts.Topology, "topology", "", "topology file (.yaml or .cue)")
	fs.DurationVar(&opts.RunTime, "run-time", def.RunTime, "how long each trial runs")
	fs.StringVar(&opts.LogDir, "log-dir", "experiment", "base directory for trial logs")
	fs.IntVar(&opts.PortOffset, "port-offset", def.PortOffset, "added to every node port in the first trial")
	fs.IntVar(&opts.InboxLimit, "inbox-limit", def.InboxLimit, "max queued messages per machine (0 = unbounded)")
	fs.Uint64Var(&opts.Seed, "seed", 0, "random seed of the first trial, incremented per trial (0 = from the wall clock)")
	fs.StringVar(&opts.RNG, "rng", string(def.RNG), "random source (pcg|stream)")
	fs.StringVar(&opts.Database, "db", envOr(EnvDatabase, ""), "archive every trial to this SQLite database")

	fs.IntVar(&opts.Trials, "trials", 5, "trials per condition")
	fs.StringSliceVar(&opts.Modes, "variation-modes", []string{"order", "small", "medium"}, "variation modes to run")
	fs.Float64SliceVar(&opts.Probs, "internal-probs", []float64{0.1, 0.3, 0.5, 0.7, 0.9}, "internal event probabilities to run")
	fs.IntVar(&opts.PortStep, "port-step", 10, "port offset added per trial")

	return cmd
}

// condition is one mode and probability pair to run.
type condition struct {
	mode cluster.Mode
	prob float64
}

func (o *ExperimentOptions) conditions() ([]condition, error) {
	if o.Trials < 1 {
		return nil, NewExitError(ExitCommandError, "--trials must be at least 1")
	}
	if o.PortStep < 0 {
		return nil, NewExitError(ExitCommandError, "--port-step must not be negative")
	}
	if len(o.Modes) == 0 || len(o.Probs) == 0 {
		return nil, NewExitError(ExitCommandError, "at least one variation mode and one internal probability are required")
	}

	var conds []condition
	for _, name := range o.Modes {
		mode, err := cluster.ParseMode(name)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --variation-modes", err)
		}
		for _, p := range o.Probs {
			if p < 0 || p > 1 {
				return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --internal-probs: %g is outside [0, 1]", p))
			}
			c := condition{mode: mode, prob: p}
			if slices.Contains(conds, c) {
				continue
			}
			conds = append(conds, c)
		}
	}
	return conds, nil
}

// trialConfig derives the configuration of the k-th trial overall, which is
// trial n of cond.
func trialConfig(base cluster.Config, cond condition, n, k, portStep int) cluster.Config {
	cfg := base
	cfg.Nodes = slices.Clone(base.Nodes)
	cfg.Mode = cond.mode
	cfg.InternalProb = cond.prob
	cfg.LogDir = filepath.Join(base.LogDir, analysis.ConditionLabel(string(cond.mode), cond.prob), fmt.Sprintf("trial_%d", n))
	cfg.PortOffset = base.PortOffset + k*portStep
	cfg.Clean = true
	if base.Seed != 0 {
		cfg.Seed = base.Seed + uint64(k)
	}
	return cfg
}

func runExperiment(opts *ExperimentOptions, cmd *cobra.Command) error {
	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())
	formatter := newFormatter(opts.RootOptions, cmd)

	conds, err := opts.conditions()
	if err != nil {
		return err
	}
	base, err := opts.Resolve(cmd)
	if err != nil {
		return err
	}

	st, closeStore, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	exp := &analysis.Experiment{
		BaseDir: base.LogDir,
		Trials:  opts.Trials,
		RunTime: base.RunTime.String(),
	}
	k := 0
	for _, cond := range conds {
		result := analysis.NewCondition(string(cond.mode), cond.prob)
		for n := 1; n <= opts.Trials; n++ {
			if err := ctx.Err(); err != nil {
				return WrapExitError(ExitFailure, "experiment interrupted", err)
			}
			cfg := trialConfig(base, cond, n, k, opts.PortStep)
			k++

			copts := []cluster.Option{cluster.WithLogger(logger)}
			if st != nil {
				copts = append(copts, cluster.WithStore(st))
			}
			if opts.RunIDGenerator != nil {
				copts = append(copts, cluster.WithRunIDGenerator(opts.RunIDGenerator))
			}
			c, err := cluster.New(cfg, copts...)
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid configuration", err)
			}

			formatter.VerboseLog("%s trial %d: port offset %d, logs in %s", result.Label, n, cfg.PortOffset, cfg.LogDir)
			logger.Info("trial starting", "condition", result.Label, "trial", n, "port_offset", cfg.PortOffset)
			report, err := c.Run(ctx)
			if err != nil {
				return runError(fmt.Sprintf("%s trial %d failed", result.Label, n), err)
			}

			logs, err := eventlog.ReadDir(cfg.LogDir)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to read trial logs", err)
			}
			t := result.AddTrial(cfg.LogDir, report.RunID, logs)
			logger.Info("trial finished", "condition", result.Label, "trial", n,
				"avg_jump_time", t.AvgJumpTime, "drift_range", t.DriftRange, "avg_queue_len", t.AvgQueueLen)
		}
		exp.Conditions = append(exp.Conditions, result)
	}

	return formatter.Success(exp)
}
