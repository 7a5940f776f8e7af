package cluster

import (
	"fmt"
	"io"
	"time"
)

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	status := "stopped"
	if !r.Stopped {
		status = "stop timed out"
	}
	source := fmt.Sprintf("seed %d", r.Seed)
	if r.RNG == RNGStream {
		source = "rng stream"
	}
	if _, err := fmt.Fprintf(w, "run %s (mode %s, %s): %s after %s\n",
		r.RunID, r.Mode, source, status, r.Elapsed.Round(time.Millisecond)); err != nil {
		return err
	}
	for _, m := range r.Machines {
		fmt.Fprintf(w, "  vm_%d  %-21s  rate %d/s  LC %d  queued %d  %s\n",
			m.ID, m.Addr, m.ClockRate, m.FinalClock, m.QueueLen, m.LogPath)
	}
	return nil
}
