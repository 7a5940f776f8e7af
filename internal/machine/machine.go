package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/exp/slices"

	"github.com/roach88/lamportsim/internal/clock"
	"github.com/roach88/lamportsim/internal/eventlog"
	"github.com/roach88/lamportsim/internal/inbox"
	"github.com/roach88/lamportsim/internal/transport"
	"github.com/roach88/lamportsim/internal/wire"
)

// Config is the static description of one machine.
type Config struct {
	// ID identifies the machine. Must be positive.
	ID int

	// ListenAddr is where the machine accepts peer connections.
	ListenAddr string

	// Peers maps every other machine's id to its listen address.
	// Copied at construction and never modified afterwards.
	Peers map[int]string

	// ClockRate is the tick frequency in ticks per second.
	ClockRate int

	// InternalProb is the probability that a non-receive tick is an
	// internal event rather than a send. Must be within [0, 1].
	InternalProb float64
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.ID <= 0 {
		return &ConfigError{Field: "id", Message: fmt.Sprintf("must be positive, got %d", c.ID)}
	}
	if c.ClockRate <= 0 {
		return &ConfigError{Field: "clock_rate", Message: fmt.Sprintf("must be positive, got %d", c.ClockRate)}
	}
	if c.InternalProb < 0 || c.InternalProb > 1 {
		return &ConfigError{Field: "internal_prob", Message: fmt.Sprintf("must be within [0, 1], got %v", c.InternalProb)}
	}
	if _, self := c.Peers[c.ID]; self {
		return &ConfigError{Field: "peers", Message: "peer table contains the machine itself"}
	}
	return nil
}

// TickInterval is the nominal duration of one tick.
func (c Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.ClockRate)
}

// Sender delivers a message to a peer. *transport.Transport implements it.
type Sender interface {
	Send(peer int, m wire.Message) error
}

// Machine is one simulated process.
//
// Thread-safety model:
//   - Deliver: safe from any goroutine (transport handlers call it)
//   - Start, Run, Step: must be called from the owning goroutine only
//   - Clock, QueueLen: safe from any goroutine
type Machine struct {
	cfg     Config
	peerIDs []int
	sink    eventlog.Sink
	logger  *slog.Logger
	now     func() time.Time

	clock  *clock.Clock
	inbox  *inbox.Queue
	src    Source
	sender Sender

	// transport is created by Start unless a Sender was injected.
	transport     *transport.Transport
	retryInterval time.Duration
	acceptPoll    time.Duration
	inboxLimit    int

	started bool
	stopped bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithSource overrides the randomness behind tick decisions.
func WithSource(src Source) Option {
	return func(m *Machine) { m.src = src }
}

// WithSender replaces the TCP transport. Start then skips binding.
func WithSender(s Sender) Option {
	return func(m *Machine) { m.sender = s }
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithNow overrides the wall clock used to stamp log entries.
func WithNow(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// WithInboxLimit bounds the inbound queue. 0 keeps it unbounded.
func WithInboxLimit(n int) Option {
	return func(m *Machine) { m.inboxLimit = n }
}

// WithTransportTiming overrides the dial retry interval and accept poll.
func WithTransportTiming(retry, acceptPoll time.Duration) Option {
	return func(m *Machine) {
		m.retryInterval = retry
		m.acceptPoll = acceptPoll
	}
}

// New creates a machine writing its event log to sink.
// The machine owns sink from here on and closes it when Run returns.
func New(cfg Config, sink eventlog.Sink, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		return nil, &ConfigError{Field: "sink", Message: "event log sink is required"}
	}

	peers := make(map[int]string, len(cfg.Peers))
	ids := make([]int, 0, len(cfg.Peers))
	for id, addr := range cfg.Peers {
		peers[id] = addr
		ids = append(ids, id)
	}
	slices.Sort(ids)
	cfg.Peers = peers

	m := &Machine{
		cfg:     cfg,
		peerIDs: ids,
		sink:    sink,
		now:     time.Now,
		clock:   clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = m.logger.With("machine", cfg.ID)
	if m.src == nil {
		m.src = NewPCGSource(uint64(time.Now().UnixNano()) + uint64(cfg.ID))
	}
	m.inbox = inbox.New(inbox.WithLimit(m.inboxLimit))

	return m, nil
}

// ID returns the machine id.
func (m *Machine) ID() int { return m.cfg.ID }

// Config returns a copy of the machine's configuration.
func (m *Machine) Config() Config {
	cfg := m.cfg
	cfg.Peers = make(map[int]string, len(m.cfg.Peers))
	for id, addr := range m.cfg.Peers {
		cfg.Peers[id] = addr
	}
	return cfg
}

// PeerIDs returns the peer ids in ascending order.
func (m *Machine) PeerIDs() []int {
	return append([]int(nil), m.peerIDs...)
}

// Clock returns the current logical clock value.
func (m *Machine) Clock() int64 { return m.clock.Current() }

// QueueLen returns the current inbox depth.
func (m *Machine) QueueLen() int { return m.inbox.Len() }

// Addr returns the bound listen address, or "" before Start or when a
// Sender was injected.
func (m *Machine) Addr() string {
	if m.transport == nil {
		return ""
	}
	return m.transport.Addr().String()
}

// Deliver enqueues an inbound message. Safe for concurrent use.
func (m *Machine) Deliver(msg wire.Message) {
	if !m.inbox.Enqueue(msg) {
		m.logger.Warn("inbox rejected message", "from", msg.Sender, "dropped", m.inbox.Dropped())
	}
}

// Start binds the listener (unless a Sender was injected) and writes the
// INIT entry. A bind failure is returned and leaves no log entry.
func (m *Machine) Start() error {
	if m.started {
		return nil
	}
	if m.sender == nil {
		t, err := transport.Listen(transport.Config{
			ID:            m.cfg.ID,
			ListenAddr:    m.cfg.ListenAddr,
			Peers:         m.cfg.Peers,
			RetryInterval: m.retryInterval,
			AcceptPoll:    m.acceptPoll,
			Logger:        m.logger,
		}, m.Deliver)
		if err != nil {
			return err
		}
		m.transport = t
		m.sender = t
	}
	m.started = true

	entry := m.entry(eventlog.KindInit, m.clock.Current(), eventlog.InitDetail(m.cfg.ClockRate))
	if err := m.sink.Append(entry); err != nil {
		m.logger.Error("event log write failed", "kind", entry.Kind, "error", err)
	}
	return nil
}

// Run connects to every peer and then executes ticks until ctx is
// cancelled. It calls Start if needed. Cancellation is a normal stop and
// returns nil; only a Start failure is returned as an error.
func (m *Machine) Run(ctx context.Context) error {
	if err := m.Start(); err != nil {
		m.shutdown()
		return err
	}
	defer m.shutdown()

	if m.transport != nil {
		if err := m.transport.ConnectPeers(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, transport.ErrClosed) {
				m.logger.Info("stopped before all peers connected")
				return nil
			}
			return err
		}
	}

	interval := m.cfg.TickInterval()
	m.logger.Info("running", "clock_rate", m.cfg.ClockRate, "internal_prob", m.cfg.InternalProb, "peers", m.peerIDs)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("stopping", "clock", m.clock.Current(), "queue_len", m.inbox.Len())
			return nil
		default:
		}

		start := time.Now()
		entry, err := m.Step()
		if err != nil {
			m.logger.Error("event log write failed", "kind", entry.Kind, "error", err)
		} else {
			m.logger.Debug("tick", "kind", entry.Kind, "lc", entry.Clock, "detail", entry.Detail)
		}

		wait := interval - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
		select {
		case <-ctx.Done():
			m.logger.Info("stopping", "clock", m.clock.Current(), "queue_len", m.inbox.Len())
			return nil
		case <-timer.C:
		}
	}
}

// Step executes exactly one transition and appends exactly one log entry.
// The returned entry is valid even when the log write fails.
func (m *Machine) Step() (eventlog.Entry, error) {
	entry := m.transition()
	if err := m.sink.Append(entry); err != nil {
		return entry, fmt.Errorf("machine %d: %w", m.cfg.ID, err)
	}
	return entry, nil
}

func (m *Machine) transition() eventlog.Entry {
	if msg, remaining, ok := m.inbox.TryDequeue(); ok {
		lc := m.clock.Receive(msg.Clock)
		return m.entry(eventlog.KindReceive, lc, eventlog.ReceiveDetail(msg.Sender, remaining))
	}

	if m.src.Float64() < m.cfg.InternalProb {
		return m.entry(eventlog.KindInternal, m.clock.Tick(), "")
	}

	if len(m.peerIDs) == 0 {
		return m.entry(eventlog.KindInternal, m.clock.Tick(), "no peers")
	}

	target := ChooseTarget(m.src, len(m.peerIDs))
	msg := wire.Message{Sender: m.cfg.ID, Clock: m.clock.Current()}
	for _, peer := range target.Recipients(m.peerIDs) {
		if err := m.sender.Send(peer, msg); err != nil {
			// Unreachable peers are tolerated; the send still counts.
			m.logger.Warn("send failed", "peer", peer, "error", err)
		}
	}
	return m.entry(eventlog.KindSend, m.clock.Tick(), target.Detail(m.peerIDs))
}

func (m *Machine) entry(kind eventlog.Kind, lc int64, detail string) eventlog.Entry {
	return eventlog.Entry{
		Time:   m.now(),
		Kind:   kind,
		Clock:  lc,
		Detail: detail,
	}
}

// Close releases a machine that was started but will never Run.
// Run releases everything itself when it returns.
func (m *Machine) Close() {
	m.shutdown()
}

// shutdown releases the transport, inbox and event log.
func (m *Machine) shutdown() {
	if m.stopped {
		return
	}
	m.stopped = true

	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			m.logger.Warn("closing transport", "error", err)
		}
	}
	m.inbox.Close()
	if err := m.sink.Close(); err != nil {
		m.logger.Warn("closing event log", "error", err)
	}
	m.logger.Info("stopped")
}
