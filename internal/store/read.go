package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/lamportsim/internal/eventlog"
)

const runColumns = `
	r.id, r.started_at, r.mode, r.internal_prob, r.run_time_ms, r.seed,
	(SELECT COUNT(*) FROM machines m WHERE m.run_id = r.id),
	(SELECT COUNT(*) FROM events e WHERE e.run_id = r.id)
`

// ListRuns returns every run, most recent first.
//
// Returns an empty slice (not nil) if the archive holds no runs.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun retrieves a single run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs r
		WHERE r.id = ?
	`, id)
	return scanRun(row)
}

// ListMachines returns a run's machines ordered by id.
func (s *Store) ListMachines(ctx context.Context, runID string) ([]Machine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, machine_id, clock_rate, listen_addr
		FROM machines
		WHERE run_id = ?
		ORDER BY machine_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query machines: %w", err)
	}
	defer rows.Close()

	machines := []Machine{}
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.RunID, &m.ID, &m.ClockRate, &m.ListenAddr); err != nil {
			return nil, fmt.Errorf("scan machine: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate machines: %w", err)
	}
	return machines, nil
}

// ListEvents returns one machine's events in log order.
//
// Returns an empty slice (not nil) if the machine wrote nothing.
func (s *Store) ListEvents(ctx context.Context, runID string, machineID int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, machine_id, seq, time_us, kind, lc, detail
		FROM events
		WHERE run_id = ? AND machine_id = ?
		ORDER BY seq ASC
	`, runID, machineID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var ev Event
		var us int64
		var kind string
		if err := rows.Scan(&ev.RunID, &ev.MachineID, &ev.Seq, &us, &kind, &ev.Entry.Clock, &ev.Entry.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Entry.Time = time.UnixMicro(us)
		ev.Entry.Kind = eventlog.Kind(kind)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountByKind returns the number of events of each kind in a run.
// Kinds with no events are absent from the map.
func (s *Store) CountByKind(ctx context.Context, runID string) (map[eventlog.Kind]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*)
		FROM events
		WHERE run_id = ?
		GROUP BY kind
		ORDER BY kind COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[eventlog.Kind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[eventlog.Kind(kind)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var run Run
	var startedUS, runTimeMS, seed int64
	if err := row.Scan(
		&run.ID, &startedUS, &run.Mode, &run.InternalProb, &runTimeMS, &seed,
		&run.Machines, &run.Events,
	); err != nil {
		if err == sql.ErrNoRows {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.UnixMicro(startedUS)
	run.RunTime = time.Duration(runTimeMS) * time.Millisecond
	run.Seed = uint64(seed)
	return run, nil
}
