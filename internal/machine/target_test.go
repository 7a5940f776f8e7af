package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/lamportsim/internal/testutil"
)

func TestTarget_Recipients(t *testing.T) {
	peers := []int{2, 3}
	assert.Equal(t, []int{2}, TargetFirst.Recipients(peers))
	assert.Equal(t, []int{3}, TargetSecond.Recipients(peers))
	assert.Equal(t, []int{2, 3}, TargetAll.Recipients(peers))
	assert.Equal(t, []int{7}, TargetSecond.Recipients([]int{7}))
	assert.Nil(t, TargetAll.Recipients(nil))
}

func TestTarget_Detail(t *testing.T) {
	assert.Equal(t, "to 2", TargetFirst.Detail([]int{2, 3}))
	assert.Equal(t, "to both", TargetAll.Detail([]int{2, 3}))
	assert.Equal(t, "to all", TargetAll.Detail([]int{2, 3, 4}))
	assert.Equal(t, "to 4", TargetAll.Detail([]int{4}))
	assert.Equal(t, "to none", TargetFirst.Detail(nil))
}

func TestChooseTarget(t *testing.T) {
	src := testutil.NewScriptedSource(nil, []int{0, 1, 2})
	assert.Equal(t, TargetFirst, ChooseTarget(src, 2))
	assert.Equal(t, TargetSecond, ChooseTarget(src, 2))
	assert.Equal(t, TargetAll, ChooseTarget(src, 2))

	assert.Equal(t, TargetFirst, ChooseTarget(src, 1), "single peer draws nothing")
}

func TestTarget_String(t *testing.T) {
	assert.Equal(t, "first", TargetFirst.String())
	assert.Equal(t, "all", TargetAll.String())
	assert.Equal(t, "Target(9)", Target(9).String())
}

func TestSources_InRange(t *testing.T) {
	for name, src := range map[string]Source{
		"pcg":    NewPCGSource(42),
		"stream": NewStreamSource("machine-test"),
	} {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 200; i++ {
				f := src.Float64()
				assert.GreaterOrEqual(t, f, 0.0)
				assert.Less(t, f, 1.0)
				n := src.IntN(3)
				assert.GreaterOrEqual(t, n, 0)
				assert.Less(t, n, 3)
			}
		})
	}
}
