package store

import (
	"context"
	"fmt"
)

// CreateRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) CreateRun(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("create run: empty run id")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, started_at, mode, internal_prob, run_time_ms, seed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.StartedAt.UnixMicro(),
		run.Mode,
		run.InternalProb,
		run.RunTime.Milliseconds(),
		int64(run.Seed),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// AddMachine records a machine's configuration for a run.
// The run must exist (foreign key constraint).
func (s *Store) AddMachine(ctx context.Context, m Machine) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO machines
		(run_id, machine_id, clock_rate, listen_addr)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, machine_id) DO NOTHING
	`,
		m.RunID,
		m.ID,
		m.ClockRate,
		m.ListenAddr,
	)
	if err != nil {
		return fmt.Errorf("add machine %d: %w", m.ID, err)
	}
	return nil
}

// AppendEvent inserts one event. Re-appending the same (run, machine, seq)
// is a no-op, so a retried write never duplicates a log line.
//
// Note: The machine must have been added to the run first (foreign key constraint).
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	if !ev.Entry.Kind.Valid() {
		return fmt.Errorf("append event: unknown kind %q", ev.Entry.Kind)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, machine_id, seq, time_us, kind, lc, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, machine_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.MachineID,
		ev.Seq,
		ev.Entry.Time.UnixMicro(),
		string(ev.Entry.Kind),
		ev.Entry.Clock,
		ev.Entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("append event: machine %d seq %d: %w", ev.MachineID, ev.Seq, err)
	}
	return nil
}
