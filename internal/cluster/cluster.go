package cluster

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/roach88/lamportsim/internal/eventlog"
	"github.com/roach88/lamportsim/internal/machine"
	"github.com/roach88/lamportsim/internal/store"
)

// MachineReport is one machine's state when the run ended.
type MachineReport struct {
	ID         int    `json:"id"`
	Addr       string `json:"addr"`
	ClockRate  int    `json:"clock_rate"`
	LogPath    string `json:"log_path"`
	FinalClock int64  `json:"final_clock"`
	QueueLen   int    `json:"queue_len"`
}

// Report describes a finished run.
type Report struct {
	RunID     string          `json:"run_id"`
	RNG       RNG             `json:"rng"`
	Seed      uint64          `json:"seed,omitempty"` // zero when RNG is stream
	Mode      Mode            `json:"variation_mode"`
	StartedAt time.Time       `json:"started_at"`
	Elapsed   time.Duration   `json:"elapsed"`
	Machines  []MachineReport `json:"machines"`

	// Stopped is false when some machine was still running after
	// StopTimeout. Its final log lines may be missing.
	Stopped bool `json:"stopped"`
}

// Cluster runs one simulation.
type Cluster struct {
	cfg         Config
	logger      *slog.Logger
	store       *store.Store
	runIDs      RunIDGenerator
	runID       string
	machineOpts []machine.Option
	now         func() time.Time
}

// Option configures a Cluster.
type Option func(*Cluster)

// WithLogger sets the diagnostics logger shared by every machine.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cluster) { c.logger = l }
}

// WithStore archives the run and every log entry.
func WithStore(s *store.Store) Option {
	return func(c *Cluster) { c.store = s }
}

// WithRunIDGenerator overrides UUIDv7 run ids.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(c *Cluster) { c.runIDs = g }
}

// WithRunID fixes the run id, so separate processes running one machine
// each can archive into the same run.
func WithRunID(id string) Option {
	return func(c *Cluster) { c.runID = id }
}

// WithMachineOptions appends options passed to every machine.
func WithMachineOptions(opts ...machine.Option) Option {
	return func(c *Cluster) { c.machineOpts = append(c.machineOpts, opts...) }
}

// WithNow overrides the wall clock used for the run start time.
func WithNow(now func() time.Time) Option {
	return func(c *Cluster) { c.now = now }
}

// New validates cfg and resolves its seed.
func New(cfg Config, opts ...Option) (*Cluster, error) {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultConfig().StopTimeout
	}
	if cfg.RNG == "" {
		cfg.RNG = RNGPCG
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}

	c := &Cluster{
		cfg:    cfg,
		runIDs: UUIDv7Generator{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// Config returns the resolved configuration.
func (c *Cluster) Config() Config {
	return c.cfg
}

// Run starts every machine, lets them run for RunTime (or until ctx is
// cancelled), then stops them. A listener bind failure aborts the run
// before any machine ticks; every other failure is logged by the machine
// that hit it.
func (c *Cluster) Run(ctx context.Context) (*Report, error) {
	report, err := c.begin(ctx, c.cfg.Clean)
	if err != nil {
		return nil, err
	}
	logger := c.logger.With("run", report.RunID)

	rates, sources, err := c.cfg.drawRates()
	if err != nil {
		return nil, err
	}

	nodes := sortedNodes(c.cfg.Nodes)
	machines := make([]*machine.Machine, 0, len(nodes))
	closeAll := func() {
		for _, m := range machines {
			m.Close()
		}
	}
	for _, n := range nodes {
		m, mr, err := c.build(ctx, report.RunID, n, rates[n.ID], sources[n.ID])
		if err != nil {
			closeAll()
			return nil, err
		}
		machines = append(machines, m)
		report.Machines = append(report.Machines, mr)
	}

	// Bind every listener before any machine ticks so a port conflict
	// fails the whole run instead of leaving a partial cluster.
	for _, m := range machines {
		if err := m.Start(); err != nil {
			closeAll()
			return nil, &StartError{Machine: m.ID(), Err: err}
		}
	}
	logger.Info("cluster started", "machines", len(machines), "mode", c.cfg.Mode, "internal_prob", c.cfg.InternalProb, "rng", report.RNG, "seed", report.Seed)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for _, m := range machines {
		wg.Add(1)
		go func(m *machine.Machine) {
			defer wg.Done()
			if err := m.Run(runCtx); err != nil {
				logger.Error("machine failed", "machine", m.ID(), "error", err)
			}
		}(m)
	}

	timer := time.NewTimer(c.cfg.RunTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		logger.Info("run time elapsed", "run_time", c.cfg.RunTime)
	case <-ctx.Done():
		logger.Info("run interrupted", "error", ctx.Err())
	}

	cancel()
	report.Stopped = waitTimeout(&wg, c.cfg.StopTimeout)
	if !report.Stopped {
		logger.Warn("machines still running after stop timeout", "timeout", c.cfg.StopTimeout)
	}

	report.Elapsed = c.now().Sub(report.StartedAt)
	for i, m := range machines {
		report.Machines[i].FinalClock = m.Clock()
		report.Machines[i].QueueLen = m.QueueLen()
	}
	logger.Info("cluster stopped", "elapsed", report.Elapsed)
	return report, nil
}

// RunMachine runs a single node of the topology in this process. The other
// nodes are expected to run elsewhere; the machine dials them with the
// usual retry.
func (c *Cluster) RunMachine(ctx context.Context, id int) (*Report, error) {
	n, ok := c.cfg.Node(id)
	if !ok {
		return nil, &ConfigError{Field: "machine", Message: fmt.Sprintf("node %d not in topology", id)}
	}

	report, err := c.begin(ctx, false)
	if err != nil {
		return nil, err
	}
	if c.cfg.Clean {
		// Only this machine's log; the others belong to other processes.
		path := eventlog.Path(c.cfg.LogDir, id)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("clean log: %w", err)
		}
	}

	// Draw every node's rate, as Run does, so separate processes sharing
	// a seed agree on each machine's rate.
	rates, sources, err := c.cfg.drawRates()
	if err != nil {
		return nil, err
	}

	m, mr, err := c.build(ctx, report.RunID, n, rates[id], sources[id])
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunTime)
	defer cancel()
	if err := m.Run(runCtx); err != nil {
		return nil, &StartError{Machine: id, Err: err}
	}

	report.Stopped = true
	report.Elapsed = c.now().Sub(report.StartedAt)
	mr.FinalClock = m.Clock()
	mr.QueueLen = m.QueueLen()
	report.Machines = []MachineReport{mr}
	return report, nil
}

// begin names the run, optionally cleans old logs and records the run in
// the archive.
func (c *Cluster) begin(ctx context.Context, clean bool) (*Report, error) {
	runID := c.runID
	if runID == "" {
		runID = c.runIDs.Generate()
	}
	report := &Report{
		RunID:     runID,
		RNG:       c.cfg.RNG,
		Seed:      c.cfg.UsedSeed(),
		Mode:      c.cfg.Mode,
		StartedAt: c.now(),
	}

	if clean {
		removed, err := eventlog.Clean(c.cfg.LogDir)
		if err != nil {
			return nil, fmt.Errorf("clean log dir: %w", err)
		}
		if len(removed) > 0 {
			c.logger.Info("removed previous logs", "dir", c.cfg.LogDir, "files", len(removed))
		}
	}

	if c.store != nil {
		err := c.store.CreateRun(ctx, store.Run{
			ID:           runID,
			StartedAt:    report.StartedAt,
			Mode:         string(c.cfg.Mode),
			InternalProb: c.cfg.InternalProb,
			RunTime:      c.cfg.RunTime,
			Seed:         report.Seed,
		})
		if err != nil {
			return nil, err
		}
	}
	return report, nil
}

// build creates one machine writing to its log file and, when archiving,
// to the store. The machine owns the sinks from here on.
func (c *Cluster) build(ctx context.Context, runID string, n Node, rate int, src machine.Source) (*machine.Machine, MachineReport, error) {
	mcfg := c.cfg.MachineConfig(n, rate)
	mr := MachineReport{
		ID:        n.ID,
		Addr:      mcfg.ListenAddr,
		ClockRate: rate,
		LogPath:   eventlog.Path(c.cfg.LogDir, n.ID),
	}

	file, err := eventlog.OpenFile(c.cfg.LogDir, n.ID)
	if err != nil {
		return nil, mr, err
	}
	var sink eventlog.Sink = file
	if c.store != nil {
		if err := c.store.AddMachine(ctx, store.Machine{
			RunID:      runID,
			ID:         n.ID,
			ClockRate:  rate,
			ListenAddr: mcfg.ListenAddr,
		}); err != nil {
			file.Close()
			return nil, mr, err
		}
		// Archive writes outlive the run context so the last ticks
		// before the stop are still recorded.
		sink = eventlog.Multi(file, c.store.Sink(context.WithoutCancel(ctx), runID, n.ID))
	}

	opts := []machine.Option{
		machine.WithSource(src),
		machine.WithLogger(c.logger),
		machine.WithInboxLimit(c.cfg.InboxLimit),
	}
	opts = append(opts, c.machineOpts...)
	m, err := machine.New(mcfg, sink, opts...)
	if err != nil {
		sink.Close()
		return nil, mr, err
	}
	return m, mr, nil
}

func sortedNodes(nodes []Node) []Node {
	out := append([]Node(nil), nodes...)
	slices.SortFunc(out, func(a, b Node) int { return a.ID - b.ID })
	return out
}

// waitTimeout waits for wg and reports whether it finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// IsConfigError reports whether err is a configuration problem rather than
// a runtime failure. Uses errors.As to handle wrapped errors.
func IsConfigError(err error) bool {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return true
	}
	var me *machine.ConfigError
	return errors.As(err, &me)
}
