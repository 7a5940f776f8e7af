package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_YAML(t *testing.T) {
	topo, err := Load("testdata/topology.yaml")
	require.NoError(t, err)

	assert.Equal(t, ModeSmall, topo.Mode)
	require.NotNil(t, topo.InternalProb)
	assert.Equal(t, 0.5, *topo.InternalProb)
	require.Len(t, topo.Nodes, 2)
	assert.Equal(t, "127.0.0.1", topo.Nodes[1].Host)
	assert.Equal(t, 5, topo.Nodes[1].ClockRate)

	cfg := DefaultConfig()
	require.NoError(t, topo.Apply(&cfg))
	assert.Equal(t, 100, cfg.PortOffset)
	assert.Equal(t, 30*time.Second, cfg.RunTime)
	assert.Equal(t, "localhost:20101", cfg.Nodes[0].Addr(cfg.PortOffset))
	require.NoError(t, cfg.Validate())
}

func TestLoad_CUE(t *testing.T) {
	topo, err := Load("testdata/topology.cue")
	require.NoError(t, err)

	assert.Equal(t, ModeMedium, topo.Mode)
	require.Len(t, topo.Nodes, 4)
	assert.Equal(t, 21004, topo.Nodes[3].Port)
	require.NotNil(t, topo.InboxLimit)
	assert.Equal(t, 64, *topo.InboxLimit)

	cfg := DefaultConfig()
	require.NoError(t, topo.Apply(&cfg))
	assert.Equal(t, 0.25, cfg.InternalProb)
	assert.Equal(t, 64, cfg.InboxLimit)
	assert.Equal(t, 60*time.Second, cfg.RunTime, "absent fields keep defaults")
}

func TestLoad_Rejects(t *testing.T) {
	for _, path := range []string{
		"testdata/bad_prob.yaml",
		"testdata/unknown_field.yaml",
		"testdata/bad_mode.cue",
	} {
		t.Run(path, func(t *testing.T) {
			_, err := Load(path)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("testdata/nope.yaml")
	assert.Error(t, err)
}

func TestParseYAML_Empty(t *testing.T) {
	topo, err := ParseYAML("empty.yaml", nil)
	require.NoError(t, err)
	assert.Empty(t, topo.Nodes)
}

func TestTopology_Apply_BadRunTime(t *testing.T) {
	cfg := DefaultConfig()
	err := Topology{RunTime: "soon"}.Apply(&cfg)
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "run_time", ce.Field)
}
