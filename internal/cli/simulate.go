package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/lamportsim/internal/cluster"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	ClusterFlags

	// RunIDGenerator overrides the run id source (for testing).
	// If nil, defaults to cluster.UUIDv7Generator.
	RunIDGenerator cluster.RunIDGenerator
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run every machine of a topology in this process",
		Long: `Start all machines of the topology, let them exchange clocks for
--run-time and stop them. Each machine writes vm_<id>.log to --log-dir.

Without --topology three machines listen on localhost:10001..10003 plus
--port-offset. Clock rates are drawn from the --variation-mode range unless
the topology pins them.

Examples:
  lamportsim simulate --run-time 60s
  lamportsim simulate --variation-mode small --internal-prob 0.4 --log-dir ./logs
  lamportsim simulate --topology cluster.cue --db runs.db --seed 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, cmd)
		},
	}

	opts.ClusterFlags.register(cmd)
	return cmd
}

func runSimulate(opts *SimulateOptions, cmd *cobra.Command) error {
	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())

	cfg, err := opts.Resolve(cmd)
	if err != nil {
		return err
	}

	st, closeStore, err := opts.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

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

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	logger.Info("simulation starting", "machines", len(cfg.Nodes), "run_time", cfg.RunTime, "log_dir", cfg.LogDir)
	report, err := c.Run(ctx)
	if err != nil {
		return runError("simulation failed", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	return formatter.SuccessForRun(report.RunID, report)
}

// runError classifies a cluster failure. Configuration problems and bind
// failures are command errors; anything else is a run failure.
func runError(message string, err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	if cluster.IsConfigError(err) || isStartError(err) {
		return WrapExitError(ExitCommandError, message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

func isStartError(err error) bool {
	var startErr *cluster.StartError
	return errors.As(err, &startErr)
}
