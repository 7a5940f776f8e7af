package store

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/lamportsim/internal/eventlog"
)

var errSinkClosed = errors.New("store: event sink closed")

// EventSink archives one machine's event log. It implements eventlog.Sink
// and numbers entries in the order they are appended.
type EventSink struct {
	store     *Store
	ctx       context.Context
	runID     string
	machineID int

	mu     sync.Mutex
	seq    int64
	closed bool
}

// Sink returns an event-log sink for a machine of a run. Closing the sink
// does not close the Store.
func (s *Store) Sink(ctx context.Context, runID string, machineID int) *EventSink {
	return &EventSink{store: s, ctx: ctx, runID: runID, machineID: machineID}
}

func (k *EventSink) Append(e eventlog.Entry) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return errSinkClosed
	}
	k.seq++
	return k.store.AppendEvent(k.ctx, Event{
		RunID:     k.runID,
		MachineID: k.machineID,
		Seq:       k.seq,
		Entry:     e,
	})
}

func (k *EventSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}
