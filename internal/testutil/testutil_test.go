package testutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lamportsim/internal/eventlog"
	"github.com/roach88/lamportsim/internal/wire"
)

func TestStepClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	c := NewStepClock(start, 250*time.Millisecond)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(250*time.Millisecond), c.Now())
	assert.Equal(t, int64(2), c.Calls())

	c.Reset()
	assert.Equal(t, start, c.Now())
}

func TestScriptedSource(t *testing.T) {
	s := NewScriptedSource([]float64{0.1, 0.9}, []int{2})

	assert.Equal(t, 0.1, s.Float64())
	assert.Equal(t, 2, s.IntN(3))
	f, i := s.Remaining()
	assert.Equal(t, 1, f)
	assert.Equal(t, 0, i)

	assert.Panics(t, func() { s.IntN(3) }, "exhausted script panics")
	s.PushInt(5)
	assert.Panics(t, func() { s.IntN(3) }, "out of range panics")
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	require.NoError(t, s.Append(eventlog.Entry{Kind: eventlog.KindInit}))

	s.FailWith(errors.New("boom"))
	assert.Error(t, s.Append(eventlog.Entry{Kind: eventlog.KindInternal}))
	assert.Len(t, s.Entries(), 2)

	require.NoError(t, s.Close())
	assert.True(t, s.Closed())
	assert.Error(t, s.Append(eventlog.Entry{}))
}

func TestRecordingSender(t *testing.T) {
	s := NewRecordingSender()
	s.FailPeer(3, errors.New("unreachable"))

	require.NoError(t, s.Send(2, wire.Message{Sender: 1, Clock: 4}))
	assert.Error(t, s.Send(3, wire.Message{Sender: 1, Clock: 4}))
	assert.Equal(t, []Sent{
		{Peer: 2, Message: wire.Message{Sender: 1, Clock: 4}},
		{Peer: 3, Message: wire.Message{Sender: 1, Clock: 4}},
	}, s.Sent())

	s.Reset()
	assert.Empty(t, s.Sent())
}
