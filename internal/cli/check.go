package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/lamportsim/internal/harness"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Scenario string // scenario file or directory
	Filter   string // scenario filter (glob pattern)
	Machines int    // expected machine count for log-dir checks
	KeepLogs bool   // keep scenario log directories
}

// CheckResult holds the outcome of every checked log set.
type CheckResult struct {
	Results []*harness.Result `json:"results"`
	Passed  int               `json:"passed"`
	Failed  int               `json:"failed"`
	Total   int               `json:"total"`
}

// WriteText renders the check outcome for a terminal.
func (r *CheckResult) WriteText(w io.Writer) error {
	for _, res := range r.Results {
		if err := res.WriteText(w); err != nil {
			return err
		}
	}
	fmt.Fprintln(w)
	_, err := fmt.Fprintf(w, "Check Summary: %d passed, %d failed, %d total\n", r.Passed, r.Failed, r.Total)
	return err
}

func (r *CheckResult) add(res *harness.Result) {
	r.Results = append(r.Results, res)
	r.Total++
	if res.Pass {
		r.Passed++
	} else {
		r.Failed++
	}
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [log-dir]",
		Short: "Check machine logs for clock ordering",
		Long: `Check that every vm_<id>.log in log-dir (default ".") is non-empty, starts
with INIT, has a strictly increasing logical clock and well-formed RECEIVE
entries.

With --scenario, run each scenario file (or every *.yaml in a directory) on
loopback ports and check the assertions it lists instead.

Exit codes:
  0 - All checks passed
  1 - One or more checks failed
  2 - Command error (unreadable logs, invalid scenario, etc.)

Examples:
  lamportsim check ./logs
  lamportsim check --machines 3
  lamportsim check --scenario ./scenarios --filter "three_*"`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Scenario != "" {
				if len(args) > 0 {
					return NewExitError(ExitCommandError, "log-dir and --scenario are mutually exclusive")
				}
				return runScenarios(opts, cmd)
			}
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runCheckDir(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "scenario file or directory to run")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().IntVar(&opts.Machines, "machines", 0, "expected number of machine logs (0 = any)")
	cmd.Flags().BoolVar(&opts.KeepLogs, "keep-logs", false, "keep the log directories of scenario runs")

	return cmd
}

func runCheckDir(opts *CheckOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); err != nil {
		return WrapExitError(ExitCommandError, "log directory not found", err)
	}
	logFiles(newFormatter(opts.RootOptions, cmd), dir)

	assertions := harness.DefaultAssertions()
	if opts.Machines > 0 {
		assertions = append(assertions, harness.Assertion{Type: harness.AssertMachineCount, Count: opts.Machines})
	}
	res, err := harness.CheckDir(dir, assertions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read logs", err)
	}

	var result CheckResult
	result.add(res)
	return outputCheck(opts, cmd, &result)
}

func runScenarios(opts *CheckOptions, cmd *cobra.Command) error {
	files, err := findScenarioFiles(opts.Scenario, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	logger := setupLogging(opts.RootOptions, cmd.ErrOrStderr())
	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	formatter := newFormatter(opts.RootOptions, cmd)
	result := CheckResult{Results: make([]*harness.Result, 0, len(files))}
	for _, file := range files {
		formatter.VerboseLog("reading scenario %s", file)
		scenario, err := harness.LoadScenario(file)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("scenario %s", file), err)
		}
		logger.Info("running scenario", "name", scenario.Name, "machines", scenario.Machines, "run_time", scenario.RunTime)

		res, err := harness.Run(ctx, scenario, harness.Options{KeepLogs: opts.KeepLogs, Logger: logger})
		if err != nil {
			res = harness.NewResult()
			res.Scenario = scenario.Name
			res.AddError(fmt.Sprintf("execution failed: %v\n", err))
		}
		result.add(res)
	}
	return outputCheck(opts, cmd, &result)
}

func outputCheck(opts *CheckOptions, cmd *cobra.Command, result *CheckResult) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if result.Total == 0 {
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	if result.Failed > 0 && opts.Format == "json" {
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    "E_CHECK_FAILED",
				Message: fmt.Sprintf("%d check(s) failed", result.Failed),
			},
		}); err != nil {
			return err
		}
	} else if err := formatter.Success(result); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d check(s) failed", result.Failed))
	}
	return nil
}

// findScenarioFiles returns path itself when it is a file, or every YAML
// file below it matching filter.
func findScenarioFiles(path string, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})
	return files, err
}
