package harness

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/roach88/lamportsim/internal/eventlog"
)

// AssertionError is returned when an assertion fails.
// It includes the offending log lines to help debug the failure.
type AssertionError struct {
	Type     string           // Assertion type for categorization
	Machine  int              // Machine whose log failed, 0 for run-wide checks
	Expected string           // Human-readable expected outcome
	Actual   string           // Human-readable actual outcome
	Context  []eventlog.Entry // Log lines around the failure
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Machine != 0 {
		fmt.Fprintf(&buf, " (vm_%d)", e.Machine)
	}
	buf.WriteString("\n")
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nLog context:\n")
		for _, entry := range e.Context {
			fmt.Fprintf(&buf, "  %s", entry.Format())
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion against logs keyed by machine
// id and returns one message per failure.
func EvaluateAssertions(logs map[int][]eventlog.Entry, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if a.Type == AssertMachineCount {
			if err := assertMachineCount(logs, a); err != nil {
				errs = append(errs, err.Error())
			}
			continue
		}
		for _, id := range targets(logs, a) {
			entries, ok := logs[id]
			if !ok {
				errs = append(errs, (&AssertionError{
					Type:     a.Type,
					Machine:  id,
					Expected: "a log file",
					Actual:   "no log for this machine",
				}).Error())
				continue
			}
			if err := evaluate(id, entries, a); err != nil {
				errs = append(errs, err.Error())
			}
		}
	}
	return errs
}

func targets(logs map[int][]eventlog.Entry, a Assertion) []int {
	if a.Machine != 0 {
		return []int{a.Machine}
	}
	return sortedIDs(logs)
}

func evaluate(id int, entries []eventlog.Entry, a Assertion) error {
	switch a.Type {
	case AssertNonEmpty:
		return assertNonEmpty(id, entries)
	case AssertStartsWithInit:
		return assertStartsWithInit(id, entries)
	case AssertMonotonic:
		return assertMonotonic(id, entries)
	case AssertMinEntries:
		return assertMinEntries(id, entries, a.Count)
	case AssertQueueLenConsistent:
		return assertQueueLenConsistent(id, entries)
	case AssertContainsKind:
		return assertContainsKind(id, entries, eventlog.Kind(a.Kind))
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

func assertNonEmpty(id int, entries []eventlog.Entry) error {
	if len(entries) > 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNonEmpty,
		Machine:  id,
		Expected: "at least one entry",
		Actual:   "empty log",
	}
}

func assertStartsWithInit(id int, entries []eventlog.Entry) error {
	if len(entries) == 0 {
		return &AssertionError{
			Type:     AssertStartsWithInit,
			Machine:  id,
			Expected: "INIT entry first",
			Actual:   "empty log",
		}
	}
	first := entries[0]
	if first.Kind != eventlog.KindInit {
		return &AssertionError{
			Type:     AssertStartsWithInit,
			Machine:  id,
			Expected: "INIT entry first",
			Actual:   fmt.Sprintf("first entry is %s", first.Kind),
			Context:  entries[:1],
		}
	}
	if _, ok := eventlog.ClockRate(first.Detail); !ok {
		return &AssertionError{
			Type:     AssertStartsWithInit,
			Machine:  id,
			Expected: "INIT detail with ClockRate",
			Actual:   fmt.Sprintf("detail %q", first.Detail),
			Context:  entries[:1],
		}
	}
	return nil
}

func assertMonotonic(id int, entries []eventlog.Entry) error {
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1], entries[i]
		if cur.Kind.AdvancesClock() && cur.Clock <= prev.Clock {
			return &AssertionError{
				Type:     AssertMonotonic,
				Machine:  id,
				Expected: fmt.Sprintf("LC > %d at entry %d", prev.Clock, i+1),
				Actual:   fmt.Sprintf("LC %d (%s)", cur.Clock, cur.Kind),
				Context:  entries[i-1 : i+1],
			}
		}
		if cur.Clock < prev.Clock {
			return &AssertionError{
				Type:     AssertMonotonic,
				Machine:  id,
				Expected: fmt.Sprintf("LC >= %d at entry %d", prev.Clock, i+1),
				Actual:   fmt.Sprintf("LC %d (%s)", cur.Clock, cur.Kind),
				Context:  entries[i-1 : i+1],
			}
		}
	}
	return nil
}

func assertMinEntries(id int, entries []eventlog.Entry, n int) error {
	if len(entries) >= n {
		return nil
	}
	return &AssertionError{
		Type:     AssertMinEntries,
		Machine:  id,
		Expected: fmt.Sprintf("at least %d entries", n),
		Actual:   fmt.Sprintf("%d entries", len(entries)),
	}
}

func assertQueueLenConsistent(id int, entries []eventlog.Entry) error {
	for i, e := range entries {
		if e.Kind != eventlog.KindReceive {
			continue
		}
		_, hasFrom := eventlog.From(e.Detail)
		_, hasLen := eventlog.QueueLen(e.Detail)
		if !hasFrom || !hasLen {
			return &AssertionError{
				Type:     AssertQueueLenConsistent,
				Machine:  id,
				Expected: fmt.Sprintf("From and QueueLen in RECEIVE at entry %d", i+1),
				Actual:   fmt.Sprintf("detail %q", e.Detail),
				Context:  entries[i : i+1],
			}
		}
	}
	return nil
}

func assertContainsKind(id int, entries []eventlog.Entry, kind eventlog.Kind) error {
	for _, e := range entries {
		if e.Kind == kind {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertContainsKind,
		Machine:  id,
		Expected: fmt.Sprintf("at least one %s entry", kind),
		Actual:   "none found",
	}
}

func assertMachineCount(logs map[int][]eventlog.Entry, a Assertion) error {
	if len(logs) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertMachineCount,
		Expected: fmt.Sprintf("%d machine logs", a.Count),
		Actual:   fmt.Sprintf("%d machine logs %v", len(logs), sortedIDs(logs)),
	}
}

func sortedIDs[V any](m map[int]V) []int {
	ids := make([]int, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
