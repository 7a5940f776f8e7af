package machine

import (
	"math/rand/v2"

	"github.com/iti/rngstream"
)

// Source supplies the randomness behind tick decisions.
type Source interface {
	// Float64 returns a uniform value in [0, 1).
	Float64() float64
	// IntN returns a uniform value in [0, n). n must be positive.
	IntN(n int) int
}

// NewPCGSource returns a seeded PCG source. Different seeds give
// independent decision sequences, so repeated trials diverge.
func NewPCGSource(seed uint64) Source {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// streamSource adapts a named L'Ecuyer stream. Streams created in the same
// order produce the same sequences on every run.
type streamSource struct {
	s *rngstream.RngStream
}

// NewStreamSource returns a reproducible named random stream.
func NewStreamSource(name string) Source {
	return &streamSource{s: rngstream.New(name)}
}

func (s *streamSource) Float64() float64 {
	u := s.s.RandU01()
	if u >= 1 {
		return 0
	}
	return u
}

func (s *streamSource) IntN(n int) int {
	if n <= 1 {
		return 0
	}
	v := s.s.RandInt(0, n-1)
	if v < 0 || v >= n {
		return 0
	}
	return v
}
