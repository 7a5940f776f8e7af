package cluster

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/roach88/lamportsim/internal/machine"
)

// Node is one machine's static identity and address.
type Node struct {
	ID   int    `yaml:"id" json:"id"`
	Host string `yaml:"host,omitempty" json:"host,omitempty"`
	Port int    `yaml:"port" json:"port"`

	// ClockRate pins the machine's tick rate. 0 draws it from the mode.
	ClockRate int `yaml:"clock_rate,omitempty" json:"clock_rate,omitempty"`
}

// Addr is the node's listen address with the port offset applied.
func (n Node) Addr(offset int) string {
	host := n.Host
	if host == "" {
		host = DefaultHost
	}
	return net.JoinHostPort(host, strconv.Itoa(n.Port+offset))
}

const (
	DefaultHost     = "localhost"
	DefaultBasePort = 10000
)

// DefaultNodes is the classic three-machine topology on localhost:10001-10003.
func DefaultNodes() []Node {
	return []Node{
		{ID: 1, Host: DefaultHost, Port: DefaultBasePort + 1},
		{ID: 2, Host: DefaultHost, Port: DefaultBasePort + 2},
		{ID: 3, Host: DefaultHost, Port: DefaultBasePort + 3},
	}
}

// RNG selects how per-machine randomness is generated.
type RNG string

const (
	// RNGPCG seeds a PCG generator per machine from Config.Seed.
	RNGPCG RNG = "pcg"
	// RNGStream uses named L'Ecuyer streams, one per machine.
	RNGStream RNG = "stream"
)

// Config is a fully resolved run configuration.
type Config struct {
	Nodes        []Node
	Mode         Mode
	InternalProb float64
	PortOffset   int
	RunTime      time.Duration
	LogDir       string

	// InboxLimit bounds each machine's inbox. 0 is unbounded.
	InboxLimit int

	// Seed drives clock-rate draws and PCG sources. 0 picks a seed from
	// the wall clock. The stream generator ignores it.
	Seed uint64
	RNG  RNG

	// StopTimeout bounds the wait for machines after the stop signal.
	StopTimeout time.Duration

	// Clean removes prior vm_*.log files from LogDir before the run.
	Clean bool
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Nodes:        DefaultNodes(),
		Mode:         ModeOrder,
		InternalProb: 0.7,
		RunTime:      60 * time.Second,
		LogDir:       ".",
		RNG:          RNGPCG,
		StopTimeout:  2 * time.Second,
		Clean:        true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if len(c.Nodes) == 0 {
		return &ConfigError{Field: "nodes", Message: "at least one node is required"}
	}
	seen := make(map[int]bool, len(c.Nodes))
	addrs := make(map[string]int, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID <= 0 {
			return &ConfigError{Field: "nodes", Message: fmt.Sprintf("node id must be positive, got %d", n.ID)}
		}
		if seen[n.ID] {
			return &ConfigError{Field: "nodes", Message: fmt.Sprintf("duplicate node id %d", n.ID)}
		}
		seen[n.ID] = true

		port := n.Port + c.PortOffset
		if port <= 0 || port > 65535 {
			return &ConfigError{Field: "nodes", Message: fmt.Sprintf("node %d: port %d out of range", n.ID, port)}
		}
		if n.ClockRate < 0 {
			return &ConfigError{Field: "nodes", Message: fmt.Sprintf("node %d: negative clock_rate", n.ID)}
		}
		addr := n.Addr(c.PortOffset)
		if other, dup := addrs[addr]; dup {
			return &ConfigError{Field: "nodes", Message: fmt.Sprintf("nodes %d and %d share address %s", other, n.ID, addr)}
		}
		addrs[addr] = n.ID
	}
	if _, err := c.Mode.Range(); err != nil {
		return &ConfigError{Field: "variation_mode", Message: err.Error()}
	}
	if c.InternalProb < 0 || c.InternalProb > 1 {
		return &ConfigError{Field: "internal_prob", Message: fmt.Sprintf("must be within [0, 1], got %v", c.InternalProb)}
	}
	if c.PortOffset < 0 {
		return &ConfigError{Field: "port_offset", Message: fmt.Sprintf("must not be negative, got %d", c.PortOffset)}
	}
	if c.RunTime <= 0 {
		return &ConfigError{Field: "run_time", Message: fmt.Sprintf("must be positive, got %s", c.RunTime)}
	}
	if c.InboxLimit < 0 {
		return &ConfigError{Field: "inbox_limit", Message: fmt.Sprintf("must not be negative, got %d", c.InboxLimit)}
	}
	switch c.RNG {
	case RNGPCG, RNGStream:
	default:
		return &ConfigError{Field: "rng", Message: fmt.Sprintf("unknown generator %q (want pcg or stream)", c.RNG)}
	}
	return nil
}

// Node returns the node with the given id.
func (c Config) Node(id int) (Node, bool) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// PeerTable maps every node except id to its address.
func (c Config) PeerTable(id int) map[int]string {
	peers := make(map[int]string, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID != id {
			peers[n.ID] = n.Addr(c.PortOffset)
		}
	}
	return peers
}

// MachineConfig resolves one node into a machine configuration with the
// given clock rate.
func (c Config) MachineConfig(n Node, clockRate int) machine.Config {
	return machine.Config{
		ID:           n.ID,
		ListenAddr:   n.Addr(c.PortOffset),
		Peers:        c.PeerTable(n.ID),
		ClockRate:    clockRate,
		InternalProb: c.InternalProb,
	}
}

// Sources returns the randomness for clock-rate draws and for each node's
// tick decisions. Seed must already be resolved.
func (c Config) Sources() (rates machine.Source, perNode map[int]machine.Source) {
	perNode = make(map[int]machine.Source, len(c.Nodes))
	if c.RNG == RNGStream {
		rates = machine.NewStreamSource("clock-rates")
		for _, n := range c.Nodes {
			perNode[n.ID] = machine.NewStreamSource(fmt.Sprintf("machine-%d", n.ID))
		}
		return rates, perNode
	}
	rates = machine.NewPCGSource(c.Seed)
	for _, n := range c.Nodes {
		perNode[n.ID] = machine.NewPCGSource(c.Seed + uint64(n.ID))
	}
	return rates, perNode
}

// UsedSeed is the seed behind this config's randomness, or zero when the
// stream generator ignores it.
func (c Config) UsedSeed() uint64 {
	if c.RNG == RNGStream {
		return 0
	}
	return c.Seed
}

// drawRates builds the sources and resolves every node's rate from them.
func (c Config) drawRates() (rates map[int]int, perNode map[int]machine.Source, err error) {
	ratesSrc, perNode := c.Sources()
	rates, err = c.ClockRates(ratesSrc)
	if err != nil {
		return nil, nil, err
	}
	return rates, perNode, nil
}

// ClockRates resolves every node's tick rate: pinned rates are kept and the
// rest are drawn from the mode's range in ascending id order.
func (c Config) ClockRates(src machine.Source) (map[int]int, error) {
	r, err := c.Mode.Range()
	if err != nil {
		return nil, err
	}
	rates := make(map[int]int, len(c.Nodes))
	for _, n := range sortedNodes(c.Nodes) {
		if n.ClockRate > 0 {
			rates[n.ID] = n.ClockRate
			continue
		}
		rates[n.ID] = r.Draw(src)
	}
	return rates, nil
}
