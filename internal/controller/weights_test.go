package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedistribute(t *testing.T) {
	tests := []struct {
		name     string
		loads    map[int]float64
		degraded map[int]bool
		want     map[int]float64
	}{
		{
			name:     "single degraded path",
			loads:    map[int]float64{0: 50, 1: 30, 2: 20},
			degraded: map[int]bool{0: true},
			want:     map[int]float64{0: 5, 1: 57, 2: 38},
		},
		{
			name:     "two degraded paths",
			loads:    map[int]float64{0: 40, 1: 40, 2: 20},
			degraded: map[int]bool{0: true, 1: true},
			want:     map[int]float64{0: 5, 1: 5, 2: 90},
		},
		{
			name:     "all degraded splits evenly",
			loads:    map[int]float64{0: 70, 1: 20, 2: 10},
			degraded: map[int]bool{0: true, 1: true, 2: true},
			want:     map[int]float64{0: 100.0 / 3, 1: 100.0 / 3, 2: 100.0 / 3},
		},
		{
			name:     "no degraded paths keeps proportions",
			loads:    map[int]float64{0: 60, 1: 40},
			degraded: map[int]bool{},
			want:     map[int]float64{0: 60, 1: 40},
		},
		{
			name:     "zero healthy mass splits remainder evenly",
			loads:    map[int]float64{0: 100, 1: 0, 2: 0},
			degraded: map[int]bool{0: true},
			want:     map[int]float64{0: 5, 1: 47.5, 2: 47.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redistribute(tt.loads, tt.degraded)
			assert.InDelta(t, 100.0, distSum(got), normalizeTolerance)
			for id, want := range tt.want {
				assert.InDelta(t, want, got[id], normalizeTolerance, "path %d", id)
			}
		})
	}
}

func TestRedistribute_Empty(t *testing.T) {
	got := redistribute(nil, nil)
	assert.Empty(t, got)
}

func TestNormalize(t *testing.T) {
	dist := normalize(map[int]float64{0: 10, 1: 10})
	assert.InDelta(t, 50.0, dist[0], normalizeTolerance)
	assert.InDelta(t, 50.0, dist[1], normalizeTolerance)

	// zero-sum distributions are returned untouched
	dist = normalize(map[int]float64{0: 0, 1: 0})
	assert.Equal(t, 0.0, dist[0])
}

func TestMaxDeviation(t *testing.T) {
	current := map[int]float64{0: 5, 1: 57, 2: 38}
	target := map[int]float64{0: 50, 1: 30, 2: 20}
	assert.InDelta(t, 45.0, maxDeviation(current, target), 1e-9)

	assert.InDelta(t, 0.0, maxDeviation(target, target), 1e-9)
}

func TestDistributionsEqual(t *testing.T) {
	a := map[int]float64{0: 50, 1: 50}
	b := map[int]float64{0: 50.005, 1: 49.995}
	assert.True(t, distributionsEqual(a, b))

	c := map[int]float64{0: 49, 1: 51}
	assert.False(t, distributionsEqual(a, c))
	assert.False(t, distributionsEqual(a, map[int]float64{0: 50}))
}
