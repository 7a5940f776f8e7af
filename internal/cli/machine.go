package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/lamportsim/internal/cluster"
)

// MachineOptions holds flags for the machine command.
type MachineOptions struct {
	*RootOptions
	ClusterFlags
	ID    int
	RunID string
}

// NewMachineCommand creates the machine command.
func NewMachineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MachineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "machine --id <n>",
		Short: "Run one machine of a topology in this process",
		Long: `Run a single machine of the topology as its own OS process. Start one
process per node with the same topology flags; each machine keeps dialing
its peers until they are up, runs for --run-time and exits.

Only this machine's log is cleaned. Every process draws the rates of all
nodes in id order, so processes given the same --seed (or all using
--rng stream) agree on each machine's rate. Pass the same --run-id to
group the processes in one archive run.

Examples:
  lamportsim machine --id 1 --run-time 60s &
  lamportsim machine --id 2 --run-time 60s &
  lamportsim machine --id 3 --run-time 60s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(opts, cmd)
		},
	}

	opts.ClusterFlags.register(cmd)
	cmd.Flags().IntVar(&opts.ID, "id", 0, "id of the node to run (required)")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id shared by all processes (default: new UUIDv7)")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func runMachine(opts *MachineOptions, cmd *cobra.Command) error {
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
	if opts.RunID != "" {
		copts = append(copts, cluster.WithRunID(opts.RunID))
	}
	c, err := cluster.New(cfg, copts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	report, err := c.RunMachine(ctx, opts.ID)
	if err != nil {
		return runError("machine failed", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	return formatter.SuccessForRun(report.RunID, report)
}
