package testutil

import (
	"fmt"
	"sync"

	"github.com/roach88/lamportsim/internal/eventlog"
	"github.com/roach88/lamportsim/internal/wire"
)

// MemorySink records event-log entries in memory.
type MemorySink struct {
	mu      sync.Mutex
	entries []eventlog.Entry
	closed  bool
	err     error
}

// NewMemorySink creates an empty sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// FailWith makes every subsequent Append return err (entries are still
// recorded so tests can inspect what was attempted).
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySink) Append(e eventlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("memory sink closed")
	}
	s.entries = append(s.entries, e)
	return s.err
}

func (s *MemorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Entries returns a copy of the recorded entries.
func (s *MemorySink) Entries() []eventlog.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eventlog.Entry(nil), s.entries...)
}

// Closed reports whether Close was called.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Sent is one recorded send.
type Sent struct {
	Peer    int
	Message wire.Message
}

// RecordingSender records sends instead of touching the network.
type RecordingSender struct {
	mu    sync.Mutex
	sent  []Sent
	fails map[int]error
}

// NewRecordingSender creates a sender that accepts every send.
func NewRecordingSender() *RecordingSender {
	return &RecordingSender{fails: make(map[int]error)}
}

// FailPeer makes sends to peer return err. The attempt is still recorded.
func (s *RecordingSender) FailPeer(peer int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[peer] = err
}

func (s *RecordingSender) Send(peer int, m wire.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, Sent{Peer: peer, Message: m})
	return s.fails[peer]
}

// Sent returns a copy of the recorded sends.
func (s *RecordingSender) Sent() []Sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sent(nil), s.sent...)
}

// Reset forgets recorded sends.
func (s *RecordingSender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}
