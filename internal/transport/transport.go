// Package transport connects one machine to its peers over TCP.
//
// Each machine runs a listener that accepts peer connections for as long as
// the transport is open, with one handler goroutine per accepted connection.
// Handlers decode newline-delimited wire messages and pass them to the
// Deliver callback (the machine's inbox). Outbound, the transport holds one
// connection per peer, dialed with a fixed retry interval until it succeeds
// or the caller gives up.
//
// Failures stay local: a dropped inbound connection ends only its handler,
// a malformed line is logged and skipped, and a failed send drops only that
// peer's connection and is reported to the caller.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/roach88/lamportsim/internal/wire"
)

const (
	// DefaultRetryInterval is the fixed backoff between outbound dial attempts.
	DefaultRetryInterval = time.Second

	// DefaultAcceptPoll bounds each accept wait so the listener notices Close.
	DefaultAcceptPoll = time.Second
)

// Deliver receives every successfully decoded inbound message.
// It is called from handler goroutines and must be safe for concurrent use.
type Deliver func(wire.Message)

// Config describes one machine's network identity.
type Config struct {
	// ID is the owning machine's id, used for log context only.
	ID int

	// ListenAddr is the host:port this machine accepts peers on.
	ListenAddr string

	// Peers maps peer id to its listen address. Read-only after Listen.
	Peers map[int]string

	// RetryInterval overrides DefaultRetryInterval when positive.
	RetryInterval time.Duration

	// AcceptPoll overrides DefaultAcceptPoll when positive.
	AcceptPoll time.Duration

	// Logger receives connection diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// listener is the part of *net.TCPListener the accept loop uses.
type listener interface {
	Accept() (net.Conn, error)
	SetDeadline(time.Time) error
	Addr() net.Addr
	Close() error
}

// Transport is a machine's listener plus its outbound connection table.
type Transport struct {
	cfg     Config
	peers   map[int]string
	ln      listener
	deliver Deliver
	logger  *slog.Logger
	dialer  net.Dialer

	mu       sync.Mutex
	out      map[int]net.Conn
	in       map[net.Conn]struct{}
	closed   bool
	done     chan struct{}
	handlers sync.WaitGroup
	accept   sync.WaitGroup
}

// Listen binds the listen address and starts accepting peer connections.
// A bind failure is the one transport error fatal to machine startup.
func Listen(cfg Config, deliver Deliver) (*Transport, error) {
	if deliver == nil {
		return nil, errors.New("transport: nil deliver func")
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.AcceptPoll <= 0 {
		cfg.AcceptPoll = DefaultAcceptPoll
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("machine", cfg.ID)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("machine %d: bind %s: %w", cfg.ID, cfg.ListenAddr, err)
	}

	t := newTransport(cfg, ln.(*net.TCPListener), deliver, logger)
	logger.Info("listening", "addr", t.ln.Addr().String())
	return t, nil
}

// newTransport wraps a bound listener and starts the accept loop.
func newTransport(cfg Config, ln listener, deliver Deliver, logger *slog.Logger) *Transport {
	// Copy the peer table so later mutation by the caller cannot leak in.
	peers := make(map[int]string, len(cfg.Peers))
	for id, addr := range cfg.Peers {
		peers[id] = addr
	}

	t := &Transport{
		cfg:     cfg,
		peers:   peers,
		ln:      ln,
		deliver: deliver,
		logger:  logger,
		out:     make(map[int]net.Conn),
		in:      make(map[net.Conn]struct{}),
		done:    make(chan struct{}),
	}

	t.accept.Add(1)
	go t.acceptLoop()
	return t
}

// Addr returns the bound listen address (useful when binding port 0).
func (t *Transport) Addr() net.Addr {
	return t.ln.Addr()
}

// PeerIDs returns the peer ids in ascending order.
func (t *Transport) PeerIDs() []int {
	ids := make([]int, 0, len(t.peers))
	for id := range t.peers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (t *Transport) acceptLoop() {
	defer t.accept.Done()

	for {
		select {
		case <-t.done:
			return
		default:
		}

		// Bounded wait: wake at least once per poll interval to observe Close.
		if err := t.ln.SetDeadline(time.Now().Add(t.cfg.AcceptPoll)); err != nil {
			if t.isClosed() {
				return
			}
			t.logger.Warn("set accept deadline", "error", err)
		}

		conn, err := t.ln.Accept()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if t.isClosed() {
				return
			}
			t.logger.Warn("accept failed", "error", err)
			// Back off on persistent errors such as fd exhaustion.
			timer := time.NewTimer(t.cfg.AcceptPoll)
			select {
			case <-t.done:
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		if !t.trackInbound(conn) {
			conn.Close()
			return
		}
		t.handlers.Add(1)
		go t.handle(conn)
	}
}

// trackInbound registers conn so Close can end its handler.
// Returns false if the transport is already closed.
func (t *Transport) trackInbound(conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.in[conn] = struct{}{}
	return true
}

func (t *Transport) untrackInbound(conn net.Conn) {
	t.mu.Lock()
	delete(t.in, conn)
	t.mu.Unlock()
}

// handle reads messages from one inbound connection until it closes or a
// read fails. Decode failures skip the line and keep the connection.
func (t *Transport) handle(conn net.Conn) {
	defer t.handlers.Done()
	defer t.untrackInbound(conn)
	defer conn.Close()

	remote := conn.RemoteAddr().String()
	t.logger.Debug("inbound connection", "remote", remote)

	r := wire.NewReader(conn)
	for {
		msg, err := r.Next()
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				t.logger.Warn("discarding malformed message", "remote", remote, "error", err)
				continue
			}
			t.logger.Debug("inbound connection ended", "remote", remote, "error", err)
			return
		}
		t.deliver(msg)
	}
}

// ConnectPeers establishes one outbound connection to every peer, in
// ascending id order, retrying each failed dial after the retry interval.
// Returns nil once all peers are connected, or the context error / ErrClosed
// if it gives up first. Peers connected before giving up stay connected.
func (t *Transport) ConnectPeers(ctx context.Context) error {
	for _, id := range t.PeerIDs() {
		if err := t.connect(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transport) connect(ctx context.Context, peer int) error {
	addr := t.peers[peer]
	attempts := 0
	for {
		if t.isClosed() {
			return ErrClosed
		}
		if _, ok := t.conn(peer); ok {
			return nil
		}

		attempts++
		conn, err := t.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			if !t.storeOutbound(peer, conn) {
				conn.Close()
				return ErrClosed
			}
			t.logger.Info("connected to peer", "peer", peer, "addr", addr, "attempts", attempts)
			return nil
		}
		t.logger.Debug("dial failed, retrying", "peer", peer, "addr", addr, "error", err)

		timer := time.NewTimer(t.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-t.done:
			timer.Stop()
			return ErrClosed
		case <-timer.C:
		}
	}
}

func (t *Transport) storeOutbound(peer int, conn net.Conn) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.out[peer] = conn
	return true
}

func (t *Transport) conn(peer int) (net.Conn, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.out[peer]
	return c, ok
}

// Send writes m to the peer's outbound connection.
//
// The connection table lock is released before the write. Only the owning
// machine's event loop sends, so writes to one connection never interleave.
// No timeout applies and nothing is retried; a failure is returned as a
// *PeerError for the caller to log. A failed write drops the connection,
// so later sends to that peer report ErrPeerNotConnected.
func (t *Transport) Send(peer int, m wire.Message) error {
	if _, known := t.peers[peer]; !known {
		return &PeerError{Peer: peer, Op: "send", Err: ErrUnknownPeer}
	}
	if t.isClosed() {
		return &PeerError{Peer: peer, Op: "send", Err: ErrClosed}
	}
	conn, ok := t.conn(peer)
	if !ok {
		return &PeerError{Peer: peer, Op: "send", Err: ErrPeerNotConnected}
	}

	data, err := wire.Encode(m)
	if err != nil {
		return &PeerError{Peer: peer, Op: "send", Err: err}
	}
	if _, err := conn.Write(data); err != nil {
		t.dropOutbound(peer, conn)
		return &PeerError{Peer: peer, Op: "send", Err: err}
	}
	return nil
}

// dropOutbound forgets conn if it is still the peer's outbound connection.
func (t *Transport) dropOutbound(peer int, conn net.Conn) {
	t.mu.Lock()
	if t.out[peer] == conn {
		delete(t.out, peer)
	}
	t.mu.Unlock()
	conn.Close()
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close stops the listener and closes every connection. Inbound handlers
// end when their connection closes. Close waits for the accept loop and
// handlers to return. Safe to call more than once.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)

	out := t.out
	t.out = make(map[int]net.Conn)
	in := make([]net.Conn, 0, len(t.in))
	for c := range t.in {
		in = append(in, c)
	}
	t.mu.Unlock()

	var errs []error
	if err := t.ln.Close(); err != nil {
		errs = append(errs, err)
	}
	for peer, c := range out {
		if err := c.Close(); err != nil {
			errs = append(errs, &PeerError{Peer: peer, Op: "close", Err: err})
		}
	}
	for _, c := range in {
		c.Close()
	}

	t.accept.Wait()
	t.handlers.Wait()
	return errors.Join(errs...)
}
