package analysis

import (
	"encoding/json"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// WriteText renders the summary as a human-readable report.
func (s Summary) WriteText(w io.Writer) error {
	p := message.NewPrinter(language.English)

	if _, err := p.Fprintf(w, "Machines: %d\n", len(s.Machines)); err != nil {
		return err
	}
	for _, m := range s.Machines {
		p.Fprintf(w, "\nvm_%d\n", m.ID)
		p.Fprintf(w, "  entries:        %d (INIT %d, INTERNAL %d, SEND %d, RECEIVE %d)\n",
			m.Entries,
			m.Counts[eventlog.KindInit],
			m.Counts[eventlog.KindInternal],
			m.Counts[eventlog.KindSend],
			m.Counts[eventlog.KindReceive])
		if m.ClockRate > 0 {
			p.Fprintf(w, "  clock rate:     %d ticks/s\n", m.ClockRate)
		} else {
			p.Fprintf(w, "  clock rate:     unknown\n")
		}
		p.Fprintf(w, "  final LC:       %d\n", m.FinalClock)
		p.Fprintf(w, "  elapsed:        %.3fs\n", m.Elapsed)
		p.Fprintf(w, "  avg jump time:  %.3fs\n", m.AvgJumpTime)
		p.Fprintf(w, "  LC jump:        avg %.2f, max %d\n", m.AvgClockJump, m.MaxClockJump)
		if m.HasDrift {
			p.Fprintf(w, "  drift:          %+.3fs\n", m.Drift)
		}
		p.Fprintf(w, "  queue length:   avg %.2f, max %d\n", m.QueueMean, m.QueueMax)
	}

	if len(s.Flows) > 0 {
		p.Fprintf(w, "\nMessages:\n")
		for _, f := range s.Flows {
			p.Fprintf(w, "  %d -> %d: sent %d, received %d, in flight %d\n",
				f.From, f.To, f.Sent, f.Received, f.InFlight())
		}
	}

	_, err := p.Fprintf(w, "\nAverage jump time:    %.3fs\nDrift time range:     %.3fs\nAverage queue length: %.2f (max %d)\n",
		s.AvgJumpTime, s.DriftRange, s.AvgQueueLen, s.MaxQueueLen)
	return err
}

// WriteJSON renders the summary as indented JSON.
func (s Summary) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
