package transport

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lamportsim/internal/wire"
)

// collector is a Deliver target that records messages.
type collector struct {
	mu   sync.Mutex
	msgs []wire.Message
}

func (c *collector) deliver(m wire.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collector) snapshot() []wire.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]wire.Message(nil), c.msgs...)
}

func listen(t *testing.T, id int, peers map[int]string, deliver Deliver) *Transport {
	t.Helper()
	tr, err := Listen(Config{
		ID:            id,
		ListenAddr:    "127.0.0.1:0",
		Peers:         peers,
		RetryInterval: 20 * time.Millisecond,
		AcceptPoll:    20 * time.Millisecond,
	}, deliver)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_SendAndReceive(t *testing.T) {
	recv := &collector{}
	b := listen(t, 2, nil, recv.deliver)
	a := listen(t, 1, map[int]string{2: b.Addr().String()}, func(wire.Message) {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.ConnectPeers(ctx))

	require.NoError(t, a.Send(2, wire.Message{Sender: 1, Clock: 5}))
	require.NoError(t, a.Send(2, wire.Message{Sender: 1, Clock: 6}))

	require.Eventually(t, func() bool { return len(recv.snapshot()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []wire.Message{{Sender: 1, Clock: 5}, {Sender: 1, Clock: 6}}, recv.snapshot())
}

func TestTransport_ConnectRetriesUntilPeerListens(t *testing.T) {
	// Reserve an address, then free it so the first dials are refused.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	a := listen(t, 1, map[int]string{2: addr}, func(wire.Message) {})

	connected := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		connected <- a.ConnectPeers(ctx)
	}()

	time.Sleep(60 * time.Millisecond)
	recv := &collector{}
	b, err := Listen(Config{ID: 2, ListenAddr: addr, AcceptPoll: 20 * time.Millisecond}, recv.deliver)
	require.NoError(t, err)
	defer b.Close()

	select {
	case err := <-connected:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ConnectPeers did not complete")
	}
	require.NoError(t, a.Send(2, wire.Message{Sender: 1, Clock: 1}))
	require.Eventually(t, func() bool { return len(recv.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestTransport_ConnectPeers_ContextCancel(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	a := listen(t, 1, map[int]string{2: addr}, func(wire.Message) {})

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err = a.ConnectPeers(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTransport_MalformedLineKeepsConnection(t *testing.T) {
	recv := &collector{}
	b := listen(t, 2, nil, recv.deliver)

	conn, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	// Split a valid record across writes around a malformed one.
	_, err = conn.Write([]byte("not json\n{\"sender\":1,"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	_, err = conn.Write([]byte("\"clock\":3}\n"))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(recv.snapshot()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, wire.Message{Sender: 1, Clock: 3}, recv.snapshot()[0])
}

func TestTransport_SendErrors(t *testing.T) {
	a := listen(t, 1, map[int]string{2: "127.0.0.1:1"}, func(wire.Message) {})

	err := a.Send(2, wire.Message{Sender: 1})
	var pe *PeerError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Peer)
	assert.ErrorIs(t, err, ErrPeerNotConnected)

	err = a.Send(9, wire.Message{Sender: 1})
	assert.ErrorIs(t, err, ErrUnknownPeer)

	require.NoError(t, a.Close())
	err = a.Send(2, wire.Message{Sender: 1})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestTransport_BindFailure(t *testing.T) {
	a := listen(t, 1, nil, func(wire.Message) {})

	_, err := Listen(Config{ID: 2, ListenAddr: a.Addr().String()}, func(wire.Message) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bind")
}

func TestTransport_CloseEndsHandlersAndListener(t *testing.T) {
	b, err := Listen(Config{ID: 2, ListenAddr: "127.0.0.1:0", AcceptPoll: 20 * time.Millisecond}, func(wire.Message) {})
	require.NoError(t, err)

	conn, err := net.Dial("tcp", b.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- b.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	assert.NoError(t, b.Close(), "close is idempotent")

	_, err = net.DialTimeout("tcp", b.Addr().String(), 200*time.Millisecond)
	assert.Error(t, err, "listener should be gone")
}

func TestTransport_PeerIDsSorted(t *testing.T) {
	a := listen(t, 1, map[int]string{3: "x:1", 2: "x:2", 7: "x:3"}, func(wire.Message) {})
	assert.Equal(t, []int{2, 3, 7}, a.PeerIDs())
}

func TestListen_NilDeliver(t *testing.T) {
	_, err := Listen(Config{ListenAddr: "127.0.0.1:0"}, nil)
	assert.Error(t, err)
}

// failingListener fails every Accept with a non-timeout error.
type failingListener struct {
	mu      sync.Mutex
	accepts int
	closed  chan struct{}
}

func (l *failingListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	l.accepts++
	l.mu.Unlock()
	return nil, errors.New("too many open files")
}

func (l *failingListener) SetDeadline(time.Time) error { return nil }
func (l *failingListener) Addr() net.Addr              { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }

func (l *failingListener) Close() error {
	close(l.closed)
	return nil
}

func (l *failingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accepts
}

func TestTransport_AcceptErrorWaitsBeforeRetry(t *testing.T) {
	ln := &failingListener{closed: make(chan struct{})}
	cfg := Config{ID: 1, AcceptPoll: 50 * time.Millisecond}
	tr := newTransport(cfg, ln, func(wire.Message) {}, slog.Default())

	time.Sleep(300 * time.Millisecond)
	n := ln.count()
	assert.GreaterOrEqual(t, n, 2, "accept is retried")
	assert.LessOrEqual(t, n, 10, "accept retries are paced by the poll interval")

	done := make(chan error, 1)
	go func() { done <- tr.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close did not interrupt the accept backoff")
	}
}

func TestTransport_FailedWriteDropsConnection(t *testing.T) {
	b := listen(t, 2, nil, func(wire.Message) {})
	a := listen(t, 1, map[int]string{2: b.Addr().String()}, func(wire.Message) {})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, a.ConnectPeers(ctx))

	conn, ok := a.conn(2)
	require.True(t, ok)
	require.NoError(t, conn.Close())

	err := a.Send(2, wire.Message{Sender: 1, Clock: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPeerNotConnected, "first failure is the write error")

	_, ok = a.conn(2)
	assert.False(t, ok, "dead connection removed from the table")

	err = a.Send(2, wire.Message{Sender: 1, Clock: 2})
	assert.ErrorIs(t, err, ErrPeerNotConnected)
}
