package controller

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

func TestRebalance_SingleDegradedPath(t *testing.T) {
	ctrl, clk, sink := newTestController(t)
	registerThree(ctrl)

	feed(ctrl, clk, 1, constant(50, 5)...)
	feed(ctrl, clk, 2, constant(50, 5)...)
	feed(ctrl, clk, 0, rising(110, 10, 10)...)

	outcome := ctrl.RebalanceIfDegraded()
	require.NotNil(t, outcome)
	assert.Equal(t, []int{0}, outcome.Degraded)

	// a single degraded path yields no bottleneck candidates
	assert.Empty(t, outcome.Bottlenecks)

	// degraded path pinned to the residual; survivors keep their 30:20
	// ratio over the remaining 95 percent
	dist := outcome.Distribution
	assert.InDelta(t, 5.0, dist[0], normalizeTolerance)
	assert.InDelta(t, 57.0, dist[1], normalizeTolerance)
	assert.InDelta(t, 38.0, dist[2], normalizeTolerance)
	assert.InDelta(t, 100.0, distSum(dist), normalizeTolerance)

	state, _ := ctrl.PathState(0)
	assert.Equal(t, model.PathDegraded, state)

	// the aggregate window restarts against the new path set
	snap := ctrl.Snapshot()
	assert.Equal(t, 0.0, snap.EWMA)

	incidents := sink.Incidents(0)
	require.Len(t, incidents, 1)
	assert.Equal(t, model.IncidentFailover, incidents[0].Kind)
	require.NotNil(t, incidents[0].Details.Failover)
	assert.InDelta(t, 100.0, distSum(incidents[0].Details.Failover.NewDistribution), normalizeTolerance)

	// nothing newly degraded: the next scan is a no-op
	assert.Nil(t, ctrl.RebalanceIfDegraded())
}

func TestRebalance_BottleneckIdentification(t *testing.T) {
	ctrl, clk, _ := newTestController(t)
	// paths A and B share core node 9; C routes around it
	ctrl.RegisterPath(0, []int{1, 9, 19}, 40)
	ctrl.RegisterPath(1, []int{1, 9, 20}, 40)
	ctrl.RegisterPath(2, []int{1, 10, 21}, 20)

	feed(ctrl, clk, 2, constant(50, 5)...)
	feed(ctrl, clk, 0, rising(110, 10, 10)...)
	feed(ctrl, clk, 1, rising(110, 10, 10)...)

	outcome := ctrl.RebalanceIfDegraded()
	require.NotNil(t, outcome)
	assert.Equal(t, []int{0, 1}, outcome.Degraded)

	// node 9 appears in 2 of 2 degraded paths: count 2 >= threshold 2
	assert.Equal(t, []int{9}, outcome.Bottlenecks)

	// alternatives must route around the bottleneck
	require.NotEmpty(t, outcome.Alternatives)
	for _, p := range outcome.Alternatives {
		assert.NotContains(t, p, 9)
	}

	assert.InDelta(t, 100.0, distSum(outcome.Distribution), normalizeTolerance)
	assert.InDelta(t, 5.0, outcome.Distribution[0], normalizeTolerance)
	assert.InDelta(t, 5.0, outcome.Distribution[1], normalizeTolerance)
	assert.InDelta(t, 90.0, outcome.Distribution[2], normalizeTolerance)
}

func TestRebalance_AllDegraded_UniformSplit(t *testing.T) {
	ctrl, clk, _ := newTestController(t)
	registerThree(ctrl)

	for id := 0; id < 3; id++ {
		feed(ctrl, clk, id, rising(110, 10, 10)...)
	}

	outcome := ctrl.RebalanceIfDegraded()
	require.NotNil(t, outcome)
	require.Len(t, outcome.Degraded, 3)

	for id := 0; id < 3; id++ {
		assert.InDelta(t, 100.0/3, outcome.Distribution[id], normalizeTolerance)
	}
	assert.InDelta(t, 100.0, distSum(outcome.Distribution), normalizeTolerance)
}

func TestRebalance_ColdModeSpinUp(t *testing.T) {
	var slept time.Duration
	ctrl, clk, sink := newTestController(t,
		WithSleep(func(d time.Duration) { slept = d }),
		WithRand(rand.New(rand.NewSource(42))),
	)
	ctrl.SetMode(ModeCold)
	registerThree(ctrl)

	feed(ctrl, clk, 0, rising(110, 10, 10)...)

	outcome := ctrl.RebalanceIfDegraded()
	require.NotNil(t, outcome)

	incidents := sink.Incidents(1)
	require.Len(t, incidents, 1)
	details := incidents[0].Details.Failover
	require.NotNil(t, details)

	assert.GreaterOrEqual(t, details.SpinUpDelayMs, 400.0)
	assert.LessOrEqual(t, details.SpinUpDelayMs, 700.0)
	assert.GreaterOrEqual(t, details.MTTRMs, details.SpinUpDelayMs)
	assert.InDelta(t, details.SpinUpDelayMs, float64(slept)/float64(time.Millisecond), 1e-6)
}

func TestRebalance_SeverityHighOnHeavyDrift(t *testing.T) {
	ctrl, clk, sink := newTestController(t)
	registerThree(ctrl)

	// aggregate ewma well past 1.5x the threshold
	feed(ctrl, clk, 0, rising(200, 20, 10)...)

	require.NotNil(t, ctrl.RebalanceIfDegraded())

	incidents := sink.Incidents(1)
	require.Len(t, incidents, 1)
	assert.Equal(t, model.SeverityHigh, incidents[0].Severity)
}

func TestFindCommonNodes(t *testing.T) {
	tests := []struct {
		name     string
		degraded [][]int
		want     []int
	}{
		{
			name:     "no degraded paths",
			degraded: nil,
			want:     nil,
		},
		{
			name:     "single path yields nothing",
			degraded: [][]int{{1, 9, 19}},
			want:     []int{},
		},
		{
			name:     "shared intermediate",
			degraded: [][]int{{1, 9, 19}, {1, 9, 20}},
			want:     []int{9},
		},
		{
			name:     "endpoints never count",
			degraded: [][]int{{1, 9, 19}, {1, 10, 19}},
			want:     []int{},
		},
		{
			name: "sorted by occurrence count",
			degraded: [][]int{
				{1, 9, 10, 19},
				{1, 9, 10, 20},
				{1, 9, 11, 21},
				{2, 9, 10, 21},
			},
			// 9 in 4 paths, 10 in 3; threshold max(2, ceil(2)) = 2
			want: []int{9, 10},
		},
		{
			name: "duplicate node within one path counts once",
			degraded: [][]int{
				{1, 9, 9, 19},
				{2, 10, 20},
			},
			want: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findCommonNodes(tt.degraded)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFailoverOnTrigger(t *testing.T) {
	ctrl, clk, sink := newTestController(t)
	registerThree(ctrl)

	feed(ctrl, clk, 0, rising(110, 10, 10)...)

	outcome := ctrl.FailoverOnTrigger(ReasonResourcePressure)
	require.NotNil(t, outcome)
	assert.Equal(t, ReasonResourcePressure, outcome.Reason)
	assert.InDelta(t, 100.0, distSum(outcome.Distribution), normalizeTolerance)

	incidents := sink.Incidents(1)
	require.Len(t, incidents, 1)
	assert.Equal(t, ReasonResourcePressure, incidents[0].Details.Failover.Reason)
}
