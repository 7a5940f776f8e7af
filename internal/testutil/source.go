package testutil

import "sync"

// ScriptedSource replays predetermined random values for tick decisions.
//
// Floats feed Float64 and Ints feed IntN, each in order. Running out is a
// test misconfiguration and panics, the same fail-fast approach as a fixed
// token generator that has been exhausted.
//
// Thread-safety: safe for concurrent use via internal mutex.
type ScriptedSource struct {
	mu     sync.Mutex
	floats []float64
	ints   []int
}

// NewScriptedSource creates a source that returns floats and ints in order.
func NewScriptedSource(floats []float64, ints []int) *ScriptedSource {
	return &ScriptedSource{floats: floats, ints: ints}
}

// PushFloat appends values to the Float64 script.
func (s *ScriptedSource) PushFloat(v ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.floats = append(s.floats, v...)
}

// PushInt appends values to the IntN script.
func (s *ScriptedSource) PushInt(v ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ints = append(s.ints, v...)
}

func (s *ScriptedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.floats) == 0 {
		panic("ScriptedSource: Float64 script exhausted")
	}
	v := s.floats[0]
	s.floats = s.floats[1:]
	return v
}

func (s *ScriptedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ints) == 0 {
		panic("ScriptedSource: IntN script exhausted")
	}
	v := s.ints[0]
	s.ints = s.ints[1:]
	if v < 0 || v >= n {
		panic("ScriptedSource: scripted value out of range")
	}
	return v
}

// Remaining reports how many scripted floats and ints are left.
func (s *ScriptedSource) Remaining() (floats, ints int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.floats), len(s.ints)
}
