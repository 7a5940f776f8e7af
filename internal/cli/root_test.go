package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "lamportsim", cmd.Use)
	assert.Contains(t, cmd.Long, "Lamport timestamps")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"simulate", "machine", "summary", "check", "runs", "experiment"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)
}

func TestSimulateCommandFlags(t *testing.T) {
	t.Setenv(EnvDatabase, "")
	cmd := NewRootCommand()
	simCmd, _, err := cmd.Find([]string{"simulate"})
	require.NoError(t, err)

	defaults := map[string]string{
		"run-time":       "1m0s",
		"log-dir":        ".",
		"variation-mode": "order",
		"internal-prob":  "0.7",
		"port-offset":    "0",
		"inbox-limit":    "0",
		"seed":           "0",
		"rng":            "pcg",
		"clean":          "true",
		"topology":       "",
		"db":             "",
	}
	for name, want := range defaults {
		flag := simCmd.Flags().Lookup(name)
		require.NotNil(t, flag, "flag --%s", name)
		assert.Equal(t, want, flag.DefValue, "flag --%s", name)
	}
}

func TestMachineCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	machineCmd, _, err := cmd.Find([]string{"machine"})
	require.NoError(t, err)

	require.NotNil(t, machineCmd.Flags().Lookup("id"))
	require.NotNil(t, machineCmd.Flags().Lookup("run-id"))
	require.NotNil(t, machineCmd.Flags().Lookup("run-time"))
}

func TestDatabaseFlagFromEnv(t *testing.T) {
	t.Setenv(EnvDatabase, "/tmp/archive.db")
	cmd := NewRootCommand()
	runsCmd, _, err := cmd.Find([]string{"runs"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/archive.db", runsCmd.Flags().Lookup("db").DefValue)
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "summary", "."})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestUnknownFlagIsCommandError(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"simulate", "--no-such-flag"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
