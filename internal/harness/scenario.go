package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lamportsim/internal/cluster"
	"github.com/roach88/lamportsim/internal/eventlog"
)

// Scenario describes a short simulation and the properties its logs must
// satisfy.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Machines is the number of machines, with ids 1..Machines.
	Machines int `yaml:"machines"`

	// RunTime is how long the machines run, as a Go duration string.
	RunTime string `yaml:"run_time"`

	// VariationMode selects the clock-rate range. Defaults to order.
	VariationMode string `yaml:"variation_mode,omitempty"`

	// InternalProb is the internal-event probability. Defaults to 0.7.
	InternalProb *float64 `yaml:"internal_prob,omitempty"`

	// ClockRates pins the tick rate of individual machines.
	ClockRates map[int]int `yaml:"clock_rates,omitempty"`

	// Seed makes clock-rate draws and tick decisions reproducible.
	Seed uint64 `yaml:"seed,omitempty"`

	// Assertions validate the resulting logs.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates one property of the logs.
type Assertion struct {
	// Type specifies the assertion type (see package documentation).
	Type string `yaml:"type"`

	// Machine restricts the assertion to one machine. 0 means all.
	Machine int `yaml:"machine,omitempty"`

	// Count is used by min_entries and machine_count.
	Count int `yaml:"count,omitempty"`

	// Kind is used by contains_kind.
	Kind string `yaml:"kind,omitempty"`
}

// Assertion type constants.
const (
	AssertNonEmpty           = "non_empty"
	AssertStartsWithInit     = "starts_with_init"
	AssertMonotonic          = "monotonic"
	AssertMinEntries         = "min_entries"
	AssertQueueLenConsistent = "queue_len_consistent"
	AssertContainsKind       = "contains_kind"
	AssertMachineCount       = "machine_count"
)

// DefaultAssertions are the ordering properties every run must satisfy.
func DefaultAssertions() []Assertion {
	return []Assertion{
		{Type: AssertNonEmpty},
		{Type: AssertStartsWithInit},
		{Type: AssertMonotonic},
		{Type: AssertQueueLenConsistent},
	}
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Duration returns the parsed run time.
func (s *Scenario) Duration() time.Duration {
	d, _ := time.ParseDuration(s.RunTime)
	return d
}

// ClusterConfig builds the run configuration for the scenario. Node ports
// are left at 0 for the caller to assign.
func (s *Scenario) ClusterConfig() cluster.Config {
	cfg := cluster.DefaultConfig()
	cfg.Nodes = make([]cluster.Node, 0, s.Machines)
	for id := 1; id <= s.Machines; id++ {
		cfg.Nodes = append(cfg.Nodes, cluster.Node{
			ID:        id,
			Host:      "127.0.0.1",
			ClockRate: s.ClockRates[id],
		})
	}
	if s.VariationMode != "" {
		cfg.Mode = cluster.Mode(s.VariationMode)
	}
	if s.InternalProb != nil {
		cfg.InternalProb = *s.InternalProb
	}
	cfg.RunTime = s.Duration()
	cfg.Seed = s.Seed
	return cfg
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Machines <= 0 {
		return fmt.Errorf("machines must be positive")
	}
	if s.RunTime == "" {
		return fmt.Errorf("run_time is required")
	}
	d, err := time.ParseDuration(s.RunTime)
	if err != nil {
		return fmt.Errorf("run_time: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("run_time must be positive")
	}
	if s.VariationMode != "" {
		if _, err := cluster.ParseMode(s.VariationMode); err != nil {
			return err
		}
	}
	if s.InternalProb != nil && (*s.InternalProb < 0 || *s.InternalProb > 1) {
		return fmt.Errorf("internal_prob must be within [0, 1]")
	}
	for id, rate := range s.ClockRates {
		if id < 1 || id > s.Machines {
			return fmt.Errorf("clock_rates: machine %d not in 1..%d", id, s.Machines)
		}
		if rate <= 0 {
			return fmt.Errorf("clock_rates: machine %d: rate must be positive", id)
		}
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
		if a.Machine > s.Machines {
			return fmt.Errorf("assertions[%d]: machine %d not in 1..%d", i, a.Machine, s.Machines)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Machine < 0 {
		return fmt.Errorf("assertions[%d]: machine must not be negative", index)
	}

	switch a.Type {
	case AssertNonEmpty, AssertStartsWithInit, AssertMonotonic, AssertQueueLenConsistent:
	case AssertMinEntries:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for min_entries", index)
		}
	case AssertMachineCount:
		if a.Count <= 0 {
			return fmt.Errorf("assertions[%d]: count must be positive for machine_count", index)
		}
	case AssertContainsKind:
		if !eventlog.Kind(a.Kind).Valid() {
			return fmt.Errorf("assertions[%d]: unknown kind %q for contains_kind", index, a.Kind)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
