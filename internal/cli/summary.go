package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/exp/slices"

	"github.com/roach88/lamportsim/internal/analysis"
	"github.com/roach88/lamportsim/internal/eventlog"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary [log-dir]",
		Short: "Summarize the machine logs of a run",
		Long: `Read every vm_<id>.log in log-dir (default ".") and report, per machine,
event counts, final logical clock, average clock jump, drift against the
configured rate and queue lengths, plus the message flow between machines.

Examples:
  lamportsim summary ./logs
  lamportsim summary --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runSummary(rootOpts, dir, cmd)
		},
	}
	return cmd
}

func runSummary(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logFiles(formatter, dir)

	summary, err := analysis.SummarizeDir(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read logs", err)
	}
	return formatter.Success(summary)
}

// newFormatter writes results to stdout and verbose notes to stderr.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// logFiles names each machine log in dir, in id order, under --verbose.
func logFiles(f *OutputFormatter, dir string) {
	if !f.Verbose {
		return
	}
	files, err := eventlog.Files(dir)
	if err != nil {
		f.VerboseLog("list logs in %s: %v", dir, err)
		return
	}
	ids := make([]int, 0, len(files))
	for id := range files {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		f.VerboseLog("reading %s", files[id])
	}
}
