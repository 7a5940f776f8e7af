package analysis

import (
	"fmt"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// MachineSummary describes one machine's log.
type MachineSummary struct {
	ID      int                   `json:"id"`
	Entries int                   `json:"entries"`
	Counts  map[eventlog.Kind]int `json:"counts"`

	// ClockRate is 0 when the log has no INIT entry.
	ClockRate  int   `json:"clock_rate"`
	FinalClock int64 `json:"final_clock"`

	// Elapsed is the wall time between the first and last entry in seconds.
	Elapsed float64 `json:"elapsed"`

	// AvgJumpTime is the mean wall-clock gap between consecutive entries.
	AvgJumpTime float64 `json:"avg_jump_time"`

	// AvgClockJump and MaxClockJump describe LC increments between
	// consecutive entries. Jumps above 1 come from receives.
	AvgClockJump float64 `json:"avg_clock_jump"`
	MaxClockJump int64   `json:"max_clock_jump"`

	// Drift is only meaningful when HasDrift is set (a clock rate is known).
	Drift    float64 `json:"drift"`
	HasDrift bool    `json:"has_drift"`

	QueueMean float64 `json:"queue_mean"`
	QueueMax  int     `json:"queue_max"`
}

// Summary describes a whole run.
type Summary struct {
	Machines []MachineSummary `json:"machines"`

	// AvgJumpTime averages the wall-clock gaps of every machine together.
	AvgJumpTime float64 `json:"avg_jump_time"`

	// DriftRange is max(drift) - min(drift) over machines with a known rate.
	DriftRange float64 `json:"drift_range"`

	// AvgQueueLen averages the QueueLen of every RECEIVE entry.
	AvgQueueLen float64 `json:"avg_queue_len"`
	MaxQueueLen int     `json:"max_queue_len"`

	Flows []Flow `json:"flows"`
}

// Summarize computes the summary of a set of machine logs keyed by id.
func Summarize(logs map[int][]eventlog.Entry) Summary {
	ids := make([]int, 0, len(logs))
	for id := range logs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var (
		s      Summary
		jumps  []float64
		drifts []float64
		queues []float64
	)
	for _, id := range ids {
		entries := logs[id]
		ms := summarizeMachine(id, entries)
		s.Machines = append(s.Machines, ms)

		jumps = append(jumps, wallGaps(entries)...)
		if ms.HasDrift {
			drifts = append(drifts, ms.Drift)
		}
		queues = append(queues, queueLens(entries)...)
		if ms.QueueMax > s.MaxQueueLen {
			s.MaxQueueLen = ms.QueueMax
		}
	}

	s.AvgJumpTime = mean(jumps)
	if len(drifts) > 0 {
		s.DriftRange = floats.Max(drifts) - floats.Min(drifts)
	}
	s.AvgQueueLen = mean(queues)
	s.Flows = MessageFlows(logs)
	return s
}

// SummarizeDir reads every vm_<id>.log in dir and summarizes them.
func SummarizeDir(dir string) (Summary, error) {
	logs, err := eventlog.ReadDir(dir)
	if err != nil {
		return Summary{}, err
	}
	if len(logs) == 0 {
		return Summary{}, fmt.Errorf("no machine logs in %s", dir)
	}
	return Summarize(logs), nil
}

func summarizeMachine(id int, entries []eventlog.Entry) MachineSummary {
	ms := MachineSummary{
		ID:      id,
		Entries: len(entries),
		Counts:  make(map[eventlog.Kind]int),
	}
	if len(entries) == 0 {
		return ms
	}

	for _, e := range entries {
		ms.Counts[e.Kind]++
		if e.Kind == eventlog.KindInit && ms.ClockRate == 0 {
			if rate, ok := eventlog.ClockRate(e.Detail); ok {
				ms.ClockRate = rate
			}
		}
	}

	first, last := entries[0], entries[len(entries)-1]
	ms.FinalClock = last.Clock
	ms.Elapsed = last.Seconds() - first.Seconds()
	ms.AvgJumpTime = mean(wallGaps(entries))

	if clockJumps := ClockJumps(entries); len(clockJumps) > 0 {
		ms.AvgClockJump = mean(clockJumps)
		if m := floats.Max(clockJumps); m > 0 {
			ms.MaxClockJump = int64(m)
		}
	}

	if ms.ClockRate > 0 {
		ms.Drift = float64(ms.FinalClock)/float64(ms.ClockRate) - ms.Elapsed
		ms.HasDrift = true
	}

	qs := queueLens(entries)
	ms.QueueMean = mean(qs)
	if len(qs) > 0 {
		ms.QueueMax = int(floats.Max(qs))
	}
	return ms
}

// ClockJumps returns the LC increments between consecutive entries.
func ClockJumps(entries []eventlog.Entry) []float64 {
	if len(entries) < 2 {
		return nil
	}
	jumps := make([]float64, 0, len(entries)-1)
	for i := 1; i < len(entries); i++ {
		jumps = append(jumps, float64(entries[i].Clock-entries[i-1].Clock))
	}
	return jumps
}

func wallGaps(entries []eventlog.Entry) []float64 {
	if len(entries) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(entries)-1)
	for i := 1; i < len(entries); i++ {
		gaps = append(gaps, entries[i].Seconds()-entries[i-1].Seconds())
	}
	return gaps
}

func queueLens(entries []eventlog.Entry) []float64 {
	var qs []float64
	for _, e := range entries {
		if e.Kind != eventlog.KindReceive {
			continue
		}
		if n, ok := eventlog.QueueLen(e.Detail); ok {
			qs = append(qs, float64(n))
		}
	}
	return qs
}

// mean is stat.Mean with 0 for an empty sample.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
