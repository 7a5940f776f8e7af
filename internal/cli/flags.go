package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lamportsim/internal/cluster"
	"github.com/roach88/lamportsim/internal/store"
)

// ClusterFlags are the run configuration flags shared by simulate and
// machine. Flags the user sets win over the topology file, which wins over
// the defaults.
type ClusterFlags struct {
	Topology     string
	RunTime      time.Duration
	LogDir       string
	Mode         string
	InternalProb float64
	PortOffset   int
	InboxLimit   int
	Seed         uint64
	RNG          string
	Clean        bool
	Database     string
}

func (f *ClusterFlags) register(cmd *cobra.Command) {
	def := cluster.DefaultConfig()
	fs := cmd.Flags()
	fs.StringVar(&f.Topology, "topology", "", "topology file (.yaml or .cue)")
	fs.DurationVar(&f.RunTime, "run-time", def.RunTime, "how long the machines run")
	fs.StringVar(&f.LogDir, "log-dir", def.LogDir, "directory for vm_<id>.log files")
	fs.StringVar(&f.Mode, "variation-mode", string(def.Mode), "clock-rate range (order|small|medium)")
	fs.Float64Var(&f.InternalProb, "internal-prob", def.InternalProb, "probability that a tick is an internal event")
	fs.IntVar(&f.PortOffset, "port-offset", def.PortOffset, "added to every node port")
	fs.IntVar(&f.InboxLimit, "inbox-limit", def.InboxLimit, "max queued messages per machine (0 = unbounded)")
	fs.Uint64Var(&f.Seed, "seed", 0, "random seed for --rng pcg (0 = from the wall clock)")
	fs.StringVar(&f.RNG, "rng", string(def.RNG), "random source (pcg|stream)")
	fs.BoolVar(&f.Clean, "clean", def.Clean, "remove previous vm_*.log files before running")
	fs.StringVar(&f.Database, "db", envOr(EnvDatabase, ""), "archive every log entry to this SQLite database")
}

// Resolve builds the run configuration from defaults, the topology file
// and the flags the user set on cmd.
func (f *ClusterFlags) Resolve(cmd *cobra.Command) (cluster.Config, error) {
	cfg := cluster.DefaultConfig()
	if f.Topology != "" {
		topo, err := cluster.Load(f.Topology)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "failed to load topology", err)
		}
		if err := topo.Apply(&cfg); err != nil {
			return cfg, WrapExitError(ExitCommandError, "invalid topology", err)
		}
	}

	fs := cmd.Flags()
	if fs.Changed("run-time") {
		cfg.RunTime = f.RunTime
	}
	if fs.Changed("variation-mode") {
		mode, err := cluster.ParseMode(f.Mode)
		if err != nil {
			return cfg, WrapExitError(ExitCommandError, "invalid --variation-mode", err)
		}
		cfg.Mode = mode
	}
	if fs.Changed("internal-prob") {
		cfg.InternalProb = f.InternalProb
	}
	if fs.Changed("port-offset") {
		cfg.PortOffset = f.PortOffset
	}
	if fs.Changed("inbox-limit") {
		cfg.InboxLimit = f.InboxLimit
	}
	cfg.LogDir = f.LogDir
	cfg.Seed = f.Seed
	cfg.RNG = cluster.RNG(f.RNG)
	cfg.Clean = f.Clean

	if err := cfg.Validate(); err != nil {
		return cfg, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, nil
}

// openStore opens the archive when --db is set. The returned close
// function is safe to call when no store was opened.
func (f *ClusterFlags) openStore() (*store.Store, func(), error) {
	if f.Database == "" {
		return nil, func() {}, nil
	}
	st, err := store.Open(f.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, func() { _ = st.Close() }, nil
}
