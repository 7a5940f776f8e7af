package cluster

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Topology is the on-disk form of a cluster description. Every field is
// optional; absent fields keep the value already in the Config.
type Topology struct {
	Nodes        []Node   `yaml:"nodes,omitempty" json:"nodes,omitempty"`
	Mode         Mode     `yaml:"variation_mode,omitempty" json:"variation_mode,omitempty"`
	InternalProb *float64 `yaml:"internal_prob,omitempty" json:"internal_prob,omitempty"`
	PortOffset   *int     `yaml:"port_offset,omitempty" json:"port_offset,omitempty"`
	RunTime      string   `yaml:"run_time,omitempty" json:"run_time,omitempty"`
	InboxLimit   *int     `yaml:"inbox_limit,omitempty" json:"inbox_limit,omitempty"`
}

// Apply overlays the topology onto cfg.
func (t Topology) Apply(cfg *Config) error {
	if len(t.Nodes) > 0 {
		cfg.Nodes = append([]Node(nil), t.Nodes...)
	}
	if t.Mode != "" {
		cfg.Mode = t.Mode
	}
	if t.InternalProb != nil {
		cfg.InternalProb = *t.InternalProb
	}
	if t.PortOffset != nil {
		cfg.PortOffset = *t.PortOffset
	}
	if t.InboxLimit != nil {
		cfg.InboxLimit = *t.InboxLimit
	}
	if t.RunTime != "" {
		d, err := time.ParseDuration(t.RunTime)
		if err != nil {
			return &ConfigError{Field: "run_time", Message: err.Error()}
		}
		cfg.RunTime = d
	}
	return nil
}

// Load reads a topology file. Files ending in .cue are evaluated as CUE;
// anything else is parsed as YAML. Both are validated against the same
// schema, so unknown fields and out-of-range values are rejected.
func Load(path string) (Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Topology{}, fmt.Errorf("load topology: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return ParseCUE(path, data)
	}
	return ParseYAML(path, data)
}

// ParseYAML validates and decodes a YAML topology.
func ParseYAML(name string, data []byte) (Topology, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Topology{}, fmt.Errorf("%s: parse yaml: %w", name, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	ctx := cuecontext.New()
	schema, err := topologySchema(ctx)
	if err != nil {
		return Topology{}, err
	}
	if err := validate(name, schema.Unify(ctx.Encode(raw))); err != nil {
		return Topology{}, err
	}

	var topo Topology
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&topo); err != nil && !errors.Is(err, io.EOF) {
		return Topology{}, fmt.Errorf("%s: decode yaml: %w", name, err)
	}
	return topo, nil
}

// ParseCUE evaluates, validates and decodes a CUE topology.
func ParseCUE(name string, data []byte) (Topology, error) {
	ctx := cuecontext.New()
	schema, err := topologySchema(ctx)
	if err != nil {
		return Topology{}, err
	}

	v := ctx.CompileBytes(data, cue.Filename(name))
	if err := v.Err(); err != nil {
		return Topology{}, &ConfigError{Field: "topology", Message: fmt.Sprintf("%s: %s", name, cueerrors.Details(err, nil))}
	}

	unified := schema.Unify(v)
	if err := validate(name, unified); err != nil {
		return Topology{}, err
	}

	var topo Topology
	if err := unified.Decode(&topo); err != nil {
		return Topology{}, fmt.Errorf("%s: decode cue: %w", name, err)
	}
	return topo, nil
}

func topologySchema(ctx *cue.Context) (cue.Value, error) {
	v := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("compile topology schema: %w", err)
	}
	return v.LookupPath(cue.ParsePath("#Topology")), nil
}

func validate(name string, v cue.Value) error {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &ConfigError{Field: "topology", Message: fmt.Sprintf("%s: %s", name, strings.TrimSpace(cueerrors.Details(err, nil)))}
	}
	return nil
}
