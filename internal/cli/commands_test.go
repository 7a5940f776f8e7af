package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lamportsim/internal/cluster"
	"github.com/roach88/lamportsim/internal/eventlog"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// executeWithStderr is execute that also returns what the command wrote
// to stderr.
func executeWithStderr(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// writeTopology writes a YAML topology whose nodes listen on free
// loopback ports.
func writeTopology(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("variation_mode: small\nnodes:\n")
	for id := 1; id <= n; id++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := ln.Addr().(*net.TCPAddr).Port
		require.NoError(t, ln.Close())
		fmt.Fprintf(&b, "  - id: %d\n    host: 127.0.0.1\n    port: %d\n", id, port)
	}
	path := filepath.Join(t.TempDir(), "topology.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}

func TestSimulate_EndToEnd(t *testing.T) {
	t.Setenv(EnvDatabase, "")
	topo := writeTopology(t, 3)
	logDir := t.TempDir()
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	out, err := execute(t, "--format", "json", "simulate",
		"--topology", topo,
		"--run-time", "1500ms",
		"--log-dir", logDir,
		"--db", dbPath,
		"--seed", "11",
	)
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		RunID  string         `json:"run_id"`
		Data   cluster.Report `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, cluster.ModeSmall, resp.Data.Mode)
	assert.Equal(t, uint64(11), resp.Data.Seed)
	require.Len(t, resp.Data.Machines, 3)
	for _, m := range resp.Data.Machines {
		assert.GreaterOrEqual(t, m.ClockRate, 2)
		assert.LessOrEqual(t, m.ClockRate, 3)
	}

	files, err := eventlog.Files(logDir)
	require.NoError(t, err)
	assert.Len(t, files, 3)

	t.Run("check passes", func(t *testing.T) {
		out, err := execute(t, "check", logDir, "--machines", "3")
		require.NoError(t, err)
		assert.Contains(t, out, "PASS "+logDir)
		assert.Contains(t, out, "Check Summary: 1 passed, 0 failed, 1 total")
	})

	t.Run("summary", func(t *testing.T) {
		out, err := execute(t, "summary", logDir)
		require.NoError(t, err)
		assert.Contains(t, out, "Machines: 3")
		assert.Contains(t, out, "vm_3")
	})

	t.Run("runs lists the archive", func(t *testing.T) {
		out, err := execute(t, "runs", "--db", dbPath)
		require.NoError(t, err)
		assert.Contains(t, out, resp.RunID)
		assert.Contains(t, out, "3 machines")
	})

	t.Run("runs shows one run", func(t *testing.T) {
		out, err := execute(t, "runs", "--db", dbPath, resp.RunID)
		require.NoError(t, err)
		assert.Contains(t, out, "Run:           "+resp.RunID)
		assert.Contains(t, out, "Seed:          11")
		assert.Contains(t, out, "vm_2")
	})

	t.Run("archived log matches file", func(t *testing.T) {
		out, err := execute(t, "runs", "--db", dbPath, resp.RunID, "--machine", "1")
		require.NoError(t, err)
		data, err := os.ReadFile(files[1])
		require.NoError(t, err)
		assert.Equal(t, string(data), out)
	})
}

func TestSimulate_InvalidMode(t *testing.T) {
	_, err := execute(t, "simulate", "--variation-mode", "huge", "--log-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unknown variation mode")
}

func TestSimulate_InvalidProb(t *testing.T) {
	_, err := execute(t, "simulate", "--internal-prob", "1.5", "--log-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "internal_prob")
}

func TestSimulate_MissingTopology(t *testing.T) {
	_, err := execute(t, "simulate", "--topology", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load topology")
}

func TestSimulate_BindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	topo := filepath.Join(t.TempDir(), "topology.yaml")
	yaml := fmt.Sprintf("nodes:\n  - id: 1\n    host: 127.0.0.1\n    port: %d\n", port)
	require.NoError(t, os.WriteFile(topo, []byte(yaml), 0644))

	_, err = execute(t, "simulate", "--topology", topo, "--run-time", "5s", "--log-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMachine_SingleNode(t *testing.T) {
	topo := writeTopology(t, 1)
	logDir := t.TempDir()

	out, err := execute(t, "machine", "--id", "1", "--run-id", "solo",
		"--topology", topo, "--run-time", "700ms", "--log-dir", logDir)
	require.NoError(t, err)
	assert.Contains(t, out, "run solo")

	entries, err := eventlog.ReadFile(eventlog.Path(logDir, 1))
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, eventlog.KindInit, entries[0].Kind)
}

func TestMachine_UnknownID(t *testing.T) {
	topo := writeTopology(t, 1)
	_, err := execute(t, "machine", "--id", "4", "--topology", topo, "--log-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestMachine_RequiresID(t *testing.T) {
	_, err := execute(t, "machine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestCheck_FailingLogs(t *testing.T) {
	dir := t.TempDir()
	lines := "1700000000.000000 | INIT | LC: 0 | ClockRate: 1\n" +
		"1700000001.000000 | INTERNAL | LC: 2 | \n" +
		"1700000002.000000 | INTERNAL | LC: 2 | \n"
	require.NoError(t, os.WriteFile(eventlog.Path(dir, 1), []byte(lines), 0644))

	out, err := execute(t, "check", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL "+dir)
	assert.Contains(t, out, "Assertion failed: monotonic (vm_1)")

	out, err = execute(t, "--format", "json", "check", dir)
	require.Error(t, err)
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "E_CHECK_FAILED", resp.Error.Code)
}

func TestVerbose_NamesEachLogRead(t *testing.T) {
	dir := t.TempDir()
	lines := "1700000000.000000 | INIT | LC: 0 | ClockRate: 1\n" +
		"1700000001.000000 | INTERNAL | LC: 1 | \n"
	for id := 1; id <= 2; id++ {
		require.NoError(t, os.WriteFile(eventlog.Path(dir, id), []byte(lines), 0644))
	}

	for _, command := range []string{"summary", "check"} {
		t.Run(command, func(t *testing.T) {
			out, errOut, err := executeWithStderr(t, "-v", command, dir)
			require.NoError(t, err)
			assert.Contains(t, errOut, "reading "+eventlog.Path(dir, 1))
			assert.Contains(t, errOut, "reading "+eventlog.Path(dir, 2))
			assert.NotContains(t, out, "reading ")

			_, errOut, err = executeWithStderr(t, command, dir)
			require.NoError(t, err)
			assert.NotContains(t, errOut, "reading ", "quiet without --verbose")
		})
	}
}

func TestCheck_MissingDir(t *testing.T) {
	_, err := execute(t, "check", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCheck_Scenario(t *testing.T) {
	dir := t.TempDir()
	scenario := `name: pair
description: "two machines at a pinned rate"
machines: 2
run_time: 1s
clock_rates: {1: 8, 2: 8}
assertions:
  - type: machine_count
    count: 2
  - type: starts_with_init
  - type: monotonic
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pair.yaml"), []byte(scenario), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	out, errOut, err := executeWithStderr(t, "-v", "check", "--scenario", dir)
	require.NoError(t, err)
	assert.Contains(t, errOut, "reading scenario "+filepath.Join(dir, "pair.yaml"))
	assert.Contains(t, out, "PASS pair")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "check", "--scenario", dir, "--filter", "other*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestCheck_ScenarioAndDirExclusive(t *testing.T) {
	_, err := execute(t, "check", "--scenario", "x.yaml", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSummary_NoLogs(t *testing.T) {
	_, err := execute(t, "summary", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRuns_Errors(t *testing.T) {
	t.Setenv(EnvDatabase, "")

	_, err := execute(t, "runs")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db is required")

	_, err = execute(t, "runs", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database not found")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yaml", "b.yml", "c.json"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)

	files, err = findScenarioFiles(filepath.Join(dir, "c.json"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.json")}, files)

	_, err = findScenarioFiles(dir, "[")
	assert.Error(t, err)
}
