package cluster

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport_WriteText(t *testing.T) {
	r := &Report{
		RunID:   "run-1",
		Seed:    9,
		Mode:    ModeSmall,
		Elapsed: 1500*time.Millisecond + 300*time.Microsecond,
		Stopped: true,
		Machines: []MachineReport{
			{ID: 1, Addr: "127.0.0.1:10001", ClockRate: 2, FinalClock: 14, LogPath: "vm_1.log"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.Equal(t,
		"run run-1 (mode small, seed 9): stopped after 1.5s\n"+
			"  vm_1  127.0.0.1:10001        rate 2/s  LC 14  queued 0  vm_1.log\n",
		buf.String())

	r.Stopped = false
	buf.Reset()
	require.NoError(t, r.WriteText(&buf))
	assert.Contains(t, buf.String(), "stop timed out")

	r.RNG, r.Seed = RNGStream, 0
	buf.Reset()
	require.NoError(t, r.WriteText(&buf))
	assert.Contains(t, buf.String(), "(mode small, rng stream)")
	assert.NotContains(t, buf.String(), "seed")
}
