package store

import (
	"time"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// Run describes one archived cluster run.
type Run struct {
	ID           string        `json:"id"`
	StartedAt    time.Time     `json:"started_at"`
	Mode         string        `json:"mode"`
	InternalProb float64       `json:"internal_prob"`
	RunTime      time.Duration `json:"run_time"`
	Seed         uint64        `json:"seed"`

	// Machines and Events are filled by ListRuns and GetRun only.
	Machines int   `json:"machines"`
	Events   int64 `json:"events"`
}

// Machine is the configuration one machine ran with.
type Machine struct {
	RunID      string `json:"run_id"`
	ID         int    `json:"id"`
	ClockRate  int    `json:"clock_rate"`
	ListenAddr string `json:"listen_addr"`
}

// Event is one archived event-log entry.
type Event struct {
	RunID     string         `json:"run_id"`
	MachineID int            `json:"machine_id"`
	Seq       int64          `json:"seq"`
	Entry     eventlog.Entry `json:"entry"`
}
