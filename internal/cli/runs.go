package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lamportsim/internal/eventlog"
	"github.com/roach88/lamportsim/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
	Machine  int // print this machine's archived log
}

// RunList renders archived runs as a table.
type RunList []store.Run

// WriteText renders the list for a terminal.
func (l RunList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No runs archived.")
		return err
	}
	for _, r := range l {
		if _, err := fmt.Fprintf(w, "%s  %s  mode %-6s  prob %.2f  %-8s  %d machines  %d events\n",
			r.ID, r.StartedAt.Format(time.RFC3339), r.Mode, r.InternalProb, r.RunTime, r.Machines, r.Events); err != nil {
			return err
		}
	}
	return nil
}

// RunDetail is one archived run with its machines and event counts.
type RunDetail struct {
	Run      store.Run               `json:"run"`
	Machines []store.Machine         `json:"machines"`
	Counts   map[eventlog.Kind]int64 `json:"counts"`
}

// WriteText renders the run for a terminal.
func (d *RunDetail) WriteText(w io.Writer) error {
	r := d.Run
	fmt.Fprintf(w, "Run:           %s\n", r.ID)
	fmt.Fprintf(w, "Started:       %s\n", r.StartedAt.Format(time.RFC3339Nano))
	fmt.Fprintf(w, "Mode:          %s\n", r.Mode)
	fmt.Fprintf(w, "Internal prob: %.2f\n", r.InternalProb)
	fmt.Fprintf(w, "Run time:      %s\n", r.RunTime)
	if r.Seed == 0 {
		fmt.Fprintln(w, "Seed:          unused (rng stream)")
	} else {
		fmt.Fprintf(w, "Seed:          %d\n", r.Seed)
	}
	fmt.Fprintf(w, "Events:        %d (INIT %d, INTERNAL %d, SEND %d, RECEIVE %d)\n", r.Events,
		d.Counts[eventlog.KindInit], d.Counts[eventlog.KindInternal],
		d.Counts[eventlog.KindSend], d.Counts[eventlog.KindReceive])
	for _, m := range d.Machines {
		fmt.Fprintf(w, "  vm_%d  %s  rate %d/s\n", m.ID, m.ListenAddr, m.ClockRate)
	}
	return nil
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List simulation runs archived with --db",
		Long: `List every run archived in the SQLite database, most recent first.

With a run id, show that run's machines and event counts. Adding --machine
prints the machine's archived entries in the vm_<id>.log format.

Examples:
  lamportsim runs --db runs.db
  lamportsim runs --db runs.db 0190f3c2-...
  lamportsim runs --db runs.db 0190f3c2-... --machine 2 > vm_2.log`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", envOr(EnvDatabase, ""), "path to SQLite database (required)")
	cmd.Flags().IntVar(&opts.Machine, "machine", 0, "print this machine's archived log (requires run-id)")

	return cmd
}

func runRuns(opts *RunsOptions, args []string, cmd *cobra.Command) error {
	if opts.Database == "" {
		return NewExitError(ExitCommandError, "--db is required (or set "+EnvDatabase+")")
	}
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	if opts.Machine != 0 && len(args) == 0 {
		return NewExitError(ExitCommandError, "--machine requires a run id")
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	formatter := newFormatter(opts.RootOptions, cmd)

	if len(args) == 0 {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to list runs", err)
		}
		return formatter.Success(RunList(runs))
	}

	runID := args[0]
	run, err := st.GetRun(ctx, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run %s not found", runID))
	}
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read run", err)
	}

	if opts.Machine != 0 {
		events, err := st.ListEvents(ctx, runID, opts.Machine)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read events", err)
		}
		if opts.Format == "json" {
			return formatter.SuccessForRun(runID, events)
		}
		w := cmd.OutOrStdout()
		for _, ev := range events {
			if _, err := io.WriteString(w, ev.Entry.Format()); err != nil {
				return err
			}
		}
		return nil
	}

	machines, err := st.ListMachines(ctx, runID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read machines", err)
	}
	counts, err := st.CountByKind(ctx, runID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to count events", err)
	}
	return formatter.SuccessForRun(runID, &RunDetail{Run: run, Machines: machines, Counts: counts})
}
