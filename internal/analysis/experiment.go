package analysis

import (
	"fmt"
	"io"
	"math"

	"golang.org/x/exp/slices"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gonum.org/v1/gonum/stat"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// Stat is the mean and sample standard deviation of a metric over trials.
type Stat struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
}

func newStat(xs []float64) Stat {
	if len(xs) == 0 {
		return Stat{}
	}
	s := Stat{Mean: stat.Mean(xs, nil)}
	if len(xs) > 1 {
		s.StdDev = stat.StdDev(xs, nil)
	}
	return s
}

// Trial is the summary of one run within a condition.
type Trial struct {
	Index       int         `json:"trial"`
	LogDir      string      `json:"log_dir"`
	RunID       string      `json:"run_id,omitempty"`
	ClockRates  map[int]int `json:"clock_rates"`
	AvgJumpTime float64     `json:"avg_jump_time"`
	DriftRange  float64     `json:"drift_range"`
	AvgQueueLen float64     `json:"avg_queue_len"`
}

// JumpBin counts the LC increments of one size.
type JumpBin struct {
	Size  int64 `json:"size"`
	Count int   `json:"count"`
}

// Condition aggregates the trials run with one variation mode and internal
// event probability.
type Condition struct {
	Label        string  `json:"label"`
	Mode         string  `json:"variation_mode"`
	InternalProb float64 `json:"internal_prob"`
	Trials       []Trial `json:"trials"`

	AvgJumpTime Stat `json:"avg_jump_time"`
	DriftRange  Stat `json:"drift_range"`
	AvgQueueLen Stat `json:"avg_queue_len"`

	// JumpHistogram pools the LC increments of every machine in every
	// trial, in ascending size. Sizes that never occur are left out.
	JumpHistogram []JumpBin `json:"jump_histogram"`

	jumps []float64
}

// NewCondition starts an empty condition.
func NewCondition(mode string, internalProb float64) *Condition {
	return &Condition{
		Label:        ConditionLabel(mode, internalProb),
		Mode:         mode,
		InternalProb: internalProb,
	}
}

// ConditionLabel names a condition; it doubles as its directory name.
func ConditionLabel(mode string, internalProb float64) string {
	return fmt.Sprintf("%s_p%.2f", mode, internalProb)
}

// AddTrial summarizes one trial's logs and appends it.
func (c *Condition) AddTrial(logDir, runID string, logs map[int][]eventlog.Entry) Trial {
	s := Summarize(logs)
	t := Trial{
		Index:       len(c.Trials) + 1,
		LogDir:      logDir,
		RunID:       runID,
		ClockRates:  make(map[int]int, len(s.Machines)),
		AvgJumpTime: s.AvgJumpTime,
		DriftRange:  s.DriftRange,
		AvgQueueLen: s.AvgQueueLen,
	}
	for _, m := range s.Machines {
		t.ClockRates[m.ID] = m.ClockRate
	}
	for _, entries := range logs {
		c.jumps = append(c.jumps, ClockJumps(entries)...)
	}
	c.Trials = append(c.Trials, t)
	c.aggregate()
	return t
}

func (c *Condition) aggregate() {
	jumpTimes := make([]float64, len(c.Trials))
	drifts := make([]float64, len(c.Trials))
	queues := make([]float64, len(c.Trials))
	for i, t := range c.Trials {
		jumpTimes[i] = t.AvgJumpTime
		drifts[i] = t.DriftRange
		queues[i] = t.AvgQueueLen
	}
	c.AvgJumpTime = newStat(jumpTimes)
	c.DriftRange = newStat(drifts)
	c.AvgQueueLen = newStat(queues)
	c.JumpHistogram = jumpHistogram(c.jumps)
}

// jumpHistogram bins integer jump sizes with unit-wide bins.
func jumpHistogram(jumps []float64) []JumpBin {
	if len(jumps) == 0 {
		return nil
	}
	sorted := append([]float64(nil), jumps...)
	slices.Sort(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	dividers := make([]float64, 0, int(hi-lo)+2)
	for d := lo; d <= hi+1; d++ {
		dividers = append(dividers, d)
	}
	counts := stat.Histogram(nil, dividers, sorted, nil)

	var bins []JumpBin
	for i, n := range counts {
		if n == 0 {
			continue
		}
		bins = append(bins, JumpBin{Size: int64(math.Round(dividers[i])), Count: int(n)})
	}
	return bins
}

// Experiment is every condition of a batch of trials.
type Experiment struct {
	BaseDir    string       `json:"base_dir"`
	Trials     int          `json:"trials_per_condition"`
	RunTime    string       `json:"run_time"`
	Conditions []*Condition `json:"conditions"`
}

// WriteText renders the per-condition aggregates and trial tables.
func (e *Experiment) WriteText(w io.Writer) error {
	p := message.NewPrinter(language.English)

	if _, err := p.Fprintf(w, "Experiment: %d condition(s), %d trial(s) of %s each, logs in %s\n",
		len(e.Conditions), e.Trials, e.RunTime, e.BaseDir); err != nil {
		return err
	}
	for _, c := range e.Conditions {
		p.Fprintf(w, "\n%s (mode %s, internal prob %.2f)\n", c.Label, c.Mode, c.InternalProb)
		p.Fprintf(w, "  avg jump time:  %.3fs ± %.3f\n", c.AvgJumpTime.Mean, c.AvgJumpTime.StdDev)
		p.Fprintf(w, "  drift range:    %.3fs ± %.3f\n", c.DriftRange.Mean, c.DriftRange.StdDev)
		p.Fprintf(w, "  avg queue len:  %.2f ± %.2f\n", c.AvgQueueLen.Mean, c.AvgQueueLen.StdDev)

		p.Fprintf(w, "  trial  jump(s)  drift(s)  queue  rates\n")
		for _, t := range c.Trials {
			p.Fprintf(w, "  %5d  %7.3f  %8.3f  %5.2f  %s\n",
				t.Index, t.AvgJumpTime, t.DriftRange, t.AvgQueueLen, formatRates(t.ClockRates))
		}

		if len(c.JumpHistogram) > 0 {
			p.Fprintf(w, "  LC jumps:")
			for _, b := range c.JumpHistogram {
				p.Fprintf(w, " %d:%d", b.Size, b.Count)
			}
			p.Fprintf(w, "\n")
		}
	}
	return nil
}

func formatRates(rates map[int]int) string {
	ids := make([]int, 0, len(rates))
	for id := range rates {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []byte
	for i, id := range ids {
		if i > 0 {
			out = append(out, ' ')
		}
		out = fmt.Appendf(out, "vm_%d=%d", id, rates[id])
	}
	return string(out)
}
