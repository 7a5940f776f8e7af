package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedRun(t *testing.T, s *Store, id string, started time.Time, machineIDs ...int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateRun(ctx, Run{
		ID:           id,
		StartedAt:    started,
		Mode:         "order",
		InternalProb: 0.7,
		RunTime:      60 * time.Second,
		Seed:         42,
	}))
	for _, mid := range machineIDs {
		require.NoError(t, s.AddMachine(ctx, Machine{
			RunID:      id,
			ID:         mid,
			ClockRate:  mid + 1,
			ListenAddr: fmt.Sprintf("localhost:%d", 10000+mid),
		}))
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	assert.NoError(t, err, "database file was not created")
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "Open() iteration %d", i)
		s.Close()
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	for _, table := range []string{"runs", "machines", "events"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		assert.NoError(t, err, "table %q not found after idempotent opens", table)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/test.db")
	assert.Error(t, err)
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	assert.NoError(t, s.verifyPragma("journal_mode", "wal"))
	assert.NoError(t, s.verifyPragma("synchronous", "1"))
	assert.NoError(t, s.verifyPragma("busy_timeout", "5000"))
	assert.NoError(t, s.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, s.verifyPragma("user_version", "1"))
}

func TestOpen_MigrationIndex(t *testing.T) {
	s := createTestStore(t)

	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_events_run_kind'",
	).Scan(&name)
	require.NoError(t, err)
}

func TestOpen_MigratesOldArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	s, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.Path())

	// Roll the archive back to an unversioned schema.
	_, err = s.db.Exec("DROP INDEX idx_events_run_kind")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.verifyPragma("user_version", fmt.Sprint(currentSchemaVersion)))
	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='index' AND name='idx_events_run_kind'",
	).Scan(&name)
	assert.NoError(t, err)
}

func TestClose_NilDB(t *testing.T) {
	assert.NoError(t, (&Store{}).Close())
}

func TestCreateRun_AndGet(t *testing.T) {
	s := createTestStore(t)
	started := time.UnixMicro(1700000000123456)
	seedRun(t, s, "run-1", started, 1, 2, 3)

	run, err := s.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.True(t, started.Equal(run.StartedAt))
	assert.Equal(t, "order", run.Mode)
	assert.Equal(t, 0.7, run.InternalProb)
	assert.Equal(t, 60*time.Second, run.RunTime)
	assert.Equal(t, uint64(42), run.Seed)
	assert.Equal(t, 3, run.Machines)
	assert.Zero(t, run.Events)
}

func TestCreateRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1", time.Unix(1, 0))
	seedRun(t, s, "run-1", time.Unix(2, 0))

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, time.Unix(1, 0).Equal(runs[0].StartedAt), "first write wins")
}

func TestCreateRun_EmptyID(t *testing.T) {
	s := createTestStore(t)
	assert.Error(t, s.CreateRun(context.Background(), Run{}))
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListRuns_MostRecentFirst(t *testing.T) {
	s := createTestStore(t)

	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	seedRun(t, s, "old", time.Unix(100, 0))
	seedRun(t, s, "new", time.Unix(200, 0))

	runs, err = s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, "old", runs[1].ID)
}

func TestAddMachine_RequiresRun(t *testing.T) {
	s := createTestStore(t)
	err := s.AddMachine(context.Background(), Machine{RunID: "missing", ID: 1, ClockRate: 1})
	assert.Error(t, err, "foreign key should reject unknown run")
}

func TestListMachines_Ordered(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1", time.Unix(1, 0), 3, 1, 2)

	machines, err := s.ListMachines(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, machines, 3)
	for i, m := range machines {
		assert.Equal(t, i+1, m.ID)
		assert.Equal(t, i+2, m.ClockRate)
	}
}

func TestAppendEvent_RoundTripAndOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", time.Unix(1, 0), 1)

	entries := []eventlog.Entry{
		{Time: time.UnixMicro(1700000000000001), Kind: eventlog.KindInit, Clock: 0, Detail: "ClockRate: 2"},
		{Time: time.UnixMicro(1700000000500001), Kind: eventlog.KindSend, Clock: 1, Detail: "to 2"},
		{Time: time.UnixMicro(1700000001000001), Kind: eventlog.KindReceive, Clock: 9, Detail: "From: 3, QueueLen: 0"},
	}
	// Insert out of order; reads follow seq.
	for _, i := range []int{2, 0, 1} {
		require.NoError(t, s.AppendEvent(ctx, Event{RunID: "run-1", MachineID: 1, Seq: int64(i + 1), Entry: entries[i]}))
	}

	events, err := s.ListEvents(ctx, "run-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Seq)
		assert.Equal(t, entries[i].Kind, ev.Entry.Kind)
		assert.Equal(t, entries[i].Clock, ev.Entry.Clock)
		assert.Equal(t, entries[i].Detail, ev.Entry.Detail)
		assert.True(t, entries[i].Time.Equal(ev.Entry.Time))
	}
}

func TestAppendEvent_DuplicateSeqIgnored(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", time.Unix(1, 0), 1)

	ev := Event{RunID: "run-1", MachineID: 1, Seq: 1, Entry: eventlog.Entry{Time: time.Unix(5, 0), Kind: eventlog.KindInit}}
	require.NoError(t, s.AppendEvent(ctx, ev))
	ev.Entry.Clock = 99
	require.NoError(t, s.AppendEvent(ctx, ev))

	events, err := s.ListEvents(ctx, "run-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(0), events[0].Entry.Clock)
}

func TestAppendEvent_Rejects(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", time.Unix(1, 0), 1)

	err := s.AppendEvent(ctx, Event{RunID: "run-1", MachineID: 1, Seq: 1, Entry: eventlog.Entry{Kind: "BOGUS"}})
	assert.Error(t, err)

	err = s.AppendEvent(ctx, Event{RunID: "run-1", MachineID: 7, Seq: 1, Entry: eventlog.Entry{Kind: eventlog.KindInit}})
	assert.Error(t, err, "machine not registered for run")
}

func TestListEvents_Empty(t *testing.T) {
	s := createTestStore(t)
	events, err := s.ListEvents(context.Background(), "none", 1)
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestSink_NumbersEntriesAndCounts(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	seedRun(t, s, "run-1", time.Unix(1, 0), 1, 2)

	var wg sync.WaitGroup
	for _, mid := range []int{1, 2} {
		wg.Add(1)
		go func(mid int) {
			defer wg.Done()
			sink := s.Sink(ctx, "run-1", mid)
			defer sink.Close()
			assert.NoError(t, sink.Append(eventlog.Entry{Time: time.Unix(1, 0), Kind: eventlog.KindInit, Detail: "ClockRate: 1"}))
			for lc := int64(1); lc <= 5; lc++ {
				assert.NoError(t, sink.Append(eventlog.Entry{Time: time.Unix(1+lc, 0), Kind: eventlog.KindInternal, Clock: lc}))
			}
		}(mid)
	}
	wg.Wait()

	for _, mid := range []int{1, 2} {
		events, err := s.ListEvents(ctx, "run-1", mid)
		require.NoError(t, err)
		require.Len(t, events, 6)
		for i, ev := range events {
			assert.Equal(t, int64(i+1), ev.Seq)
			assert.Equal(t, int64(i), ev.Entry.Clock)
		}
	}

	counts, err := s.CountByKind(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, map[eventlog.Kind]int64{
		eventlog.KindInit:     2,
		eventlog.KindInternal: 10,
	}, counts)

	run, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), run.Events)
}

func TestSink_AppendAfterClose(t *testing.T) {
	s := createTestStore(t)
	seedRun(t, s, "run-1", time.Unix(1, 0), 1)

	sink := s.Sink(context.Background(), "run-1", 1)
	require.NoError(t, sink.Close())
	assert.Error(t, sink.Append(eventlog.Entry{Kind: eventlog.KindInit}))
}

var _ eventlog.Sink = (*EventSink)(nil)
