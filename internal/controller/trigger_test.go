package controller

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// driftAggregate pushes the aggregate window over both thresholds
func driftAggregate(ctrl *Controller, clk *testClock) {
	for _, v := range rising(110, 10, 10) {
		ctrl.ObserveLatency(-1, clk.now(), v)
	}
}

func TestTrigger_HoldDebounce(t *testing.T) {
	ctrl, clk, _ := newTestController(t)

	driftAggregate(ctrl, clk)

	// first evaluation arms the hold timer, no fire yet
	assert.False(t, ctrl.EvaluateTrigger().Fired)

	// just under the hold: still quiet
	clk.advance(3*time.Second - 100*time.Millisecond)
	assert.False(t, ctrl.EvaluateTrigger().Fired)

	// just past the hold: fires with the drift reason
	clk.advance(200 * time.Millisecond)
	res := ctrl.EvaluateTrigger()
	assert.True(t, res.Fired)
	assert.Equal(t, ReasonLatencyDrift, res.Reason)
}

func TestTrigger_ResetsWhenPredicateDrops(t *testing.T) {
	ctrl, clk, _ := newTestController(t)

	driftAggregate(ctrl, clk)
	assert.False(t, ctrl.EvaluateTrigger().Fired)

	clk.advance(2 * time.Second)

	// latency recovers: the hold timer resets the instant the predicate
	// goes false
	for i := 0; i < 10; i++ {
		ctrl.ObserveLatency(-1, clk.now(), 40)
	}
	assert.False(t, ctrl.EvaluateTrigger().Fired)

	// drift resumes: the hold restarts from zero, so 2 more seconds of
	// accumulated violation are not enough
	driftAggregate(ctrl, clk)
	assert.False(t, ctrl.EvaluateTrigger().Fired)
	clk.advance(2 * time.Second)
	assert.False(t, ctrl.EvaluateTrigger().Fired)

	clk.advance(1100 * time.Millisecond)
	assert.True(t, ctrl.EvaluateTrigger().Fired)
}

func TestTrigger_RequiresBothEWMAAndSlope(t *testing.T) {
	ctrl, clk, _ := newTestController(t)

	// high but flat: ewma over threshold, slope zero
	for i := 0; i < 10; i++ {
		ctrl.ObserveLatency(-1, clk.now(), 150)
	}
	assert.False(t, ctrl.EvaluateTrigger().Fired)
	clk.advance(10 * time.Second)
	assert.False(t, ctrl.EvaluateTrigger().Fired)
}

func TestTrigger_ResourcePressure(t *testing.T) {
	t.Run("cpu over limit fires immediately", func(t *testing.T) {
		ctrl, clk, _ := newTestController(t)
		ctrl.UpdateNodeHealth("core-1", model.NodeHealth{CPU: 0.9, ReportedAt: clk.now()})

		res := ctrl.EvaluateTrigger()
		assert.True(t, res.Fired)
		assert.Equal(t, ReasonResourcePressure, res.Reason)
	})

	t.Run("buffer over limit fires immediately", func(t *testing.T) {
		ctrl, clk, _ := newTestController(t)
		ctrl.UpdateNodeHealth("core-1", model.NodeHealth{BufferPct: 0.85, ReportedAt: clk.now()})

		assert.True(t, ctrl.EvaluateTrigger().Fired)
	})

	t.Run("healthy nodes stay quiet", func(t *testing.T) {
		ctrl, clk, _ := newTestController(t)
		ctrl.UpdateNodeHealth("core-1", model.NodeHealth{CPU: 0.5, BufferPct: 0.4, ReportedAt: clk.now()})

		assert.False(t, ctrl.EvaluateTrigger().Fired)
	})
}
