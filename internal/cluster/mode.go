package cluster

import (
	"fmt"
	"strings"

	"github.com/roach88/lamportsim/internal/machine"
)

// Mode names a clock-rate variation range.
type Mode string

const (
	// ModeOrder spreads rates over an order of magnitude: 1-6 ticks/s.
	ModeOrder Mode = "order"
	// ModeSmall keeps rates close together: 2-3 ticks/s.
	ModeSmall Mode = "small"
	// ModeMedium sits between the two: 1-4 ticks/s.
	ModeMedium Mode = "medium"
)

// Modes lists every known variation mode.
var Modes = []Mode{ModeOrder, ModeSmall, ModeMedium}

// Range is an inclusive tick-rate range.
type Range struct {
	Min int
	Max int
}

// Draw picks a rate uniformly from the range.
func (r Range) Draw(src machine.Source) int {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + src.IntN(r.Max-r.Min+1)
}

// Range returns the mode's tick-rate range.
func (m Mode) Range() (Range, error) {
	switch m {
	case ModeOrder:
		return Range{Min: 1, Max: 6}, nil
	case ModeSmall:
		return Range{Min: 2, Max: 3}, nil
	case ModeMedium:
		return Range{Min: 1, Max: 4}, nil
	}
	return Range{}, fmt.Errorf("unknown variation mode %q (want one of %s)", string(m), modeNames())
}

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if _, err := m.Range(); err != nil {
		return "", err
	}
	return m, nil
}

func modeNames() string {
	names := make([]string, len(Modes))
	for i, m := range Modes {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}
