package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"

	"github.com/roach88/lamportsim/internal/cluster"
	"github.com/roach88/lamportsim/internal/eventlog"
)

// Options configures a scenario run.
type Options struct {
	// LogDir receives the machine logs. Empty uses a fresh temp directory,
	// which is removed afterwards unless KeepLogs is set.
	LogDir   string
	KeepLogs bool

	// Logger receives cluster diagnostics. Nil discards them.
	Logger *slog.Logger

	// ClusterOptions are passed to cluster.New.
	ClusterOptions []cluster.Option
}

// CheckDir evaluates assertions over the vm_<id>.log files in dir.
func CheckDir(dir string, assertions []Assertion) (*Result, error) {
	logs, err := eventlog.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	result := NewResult()
	result.LogDir = dir
	check(result, logs, assertions)
	return result, nil
}

// Run executes a scenario on free loopback ports and checks its logs.
//
// Execution flow:
// 1. Allocate one free port per machine
// 2. Run the cluster for the scenario's run time
// 3. Read the logs back and evaluate the assertions
func Run(ctx context.Context, scenario *Scenario, opts Options) (*Result, error) {
	cfg := scenario.ClusterConfig()
	for i := range cfg.Nodes {
		port, err := freePort()
		if err != nil {
			return nil, fmt.Errorf("allocate port: %w", err)
		}
		cfg.Nodes[i].Port = port
	}

	cfg.LogDir = opts.LogDir
	if cfg.LogDir == "" {
		dir, err := os.MkdirTemp("", "lamportsim-"+scenario.Name+"-")
		if err != nil {
			return nil, err
		}
		cfg.LogDir = dir
		if !opts.KeepLogs {
			defer os.RemoveAll(dir)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	copts := append([]cluster.Option{cluster.WithLogger(logger)}, opts.ClusterOptions...)
	c, err := cluster.New(cfg, copts...)
	if err != nil {
		return nil, err
	}

	report, err := c.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("run scenario %s: %w", scenario.Name, err)
	}

	logs, err := eventlog.ReadDir(cfg.LogDir)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.Scenario = scenario.Name
	result.LogDir = cfg.LogDir
	result.Report = report
	check(result, logs, scenario.Assertions)
	return result, nil
}

func check(result *Result, logs map[int][]eventlog.Entry, assertions []Assertion) {
	for id, entries := range logs {
		result.Entries[id] = len(entries)
	}
	for _, msg := range EvaluateAssertions(logs, assertions) {
		result.AddError(msg)
	}
}

// freePort asks the kernel for an unused loopback port.
func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
