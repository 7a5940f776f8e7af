package clock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClock_New(t *testing.T) {
	c := New()
	assert.Equal(t, int64(0), c.Current(), "new clock should start at 0")
}

func TestClock_NewAt(t *testing.T) {
	assert.Equal(t, int64(100), NewAt(100).Current())
	assert.Equal(t, int64(0), NewAt(-4).Current(), "negative start clamps to 0")
}

func TestClock_Tick_Incrementing(t *testing.T) {
	c := New()

	assert.Equal(t, int64(1), c.Tick())
	assert.Equal(t, int64(2), c.Tick())
	assert.Equal(t, int64(3), c.Tick())
	assert.Equal(t, int64(3), c.Current())
}

func TestClock_Receive(t *testing.T) {
	tests := []struct {
		name     string
		local    int64
		received int64
		want     int64
	}{
		{"received ahead", 5, 10, 11},
		{"received behind", 11, 3, 12},
		{"equal values", 10, 10, 11},
		{"both zero", 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewAt(tt.local)
			got := c.Receive(tt.received)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, tt.local)
			assert.Greater(t, got, tt.received)
		})
	}
}

func TestClock_ThreadSafe(t *testing.T) {
	c := New()
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines * 2)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				c.Tick()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				_ = c.Current()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*callsPerGoroutine), c.Current())
}

func TestClock_Receive_Monotonic(t *testing.T) {
	c := New()
	prev := c.Current()
	for _, r := range []int64{3, 1, 40, 2, 40, 41, 0} {
		got := c.Receive(r)
		assert.Greater(t, got, prev, "receive(%d) must advance past %d", r, prev)
		prev = got
	}
}
