package controller

import (
	"log/slog"
	"time"
)

// Trigger reasons reported on firing
const (
	ReasonLatencyDrift     = "latency_drift"
	ReasonResourcePressure = "resource_pressure"
)

// TriggerResult reports the outcome of one trigger evaluation
type TriggerResult struct {
	Fired  bool
	Reason string
}

// EvaluateTrigger combines the latency-drift and resource-pressure
// triggers. Drift requires ewma and slope above thresholds continuously
// for the configured hold; pressure fires immediately.
func (c *Controller) EvaluateTrigger() TriggerResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.evaluateTriggerLocked(c.now())
}

func (c *Controller) evaluateTriggerLocked(now time.Time) TriggerResult {
	// resource pressure: no hold
	for node, h := range c.nodeHealth {
		if h.CPU > c.cfg.Thresholds.CPUMax || h.BufferPct > c.cfg.Thresholds.BufferMaxPct {
			c.logger.Warn("resource pressure trigger",
				slog.String("node", node),
				slog.Float64("cpu", h.CPU),
				slog.Float64("buffer_pct", h.BufferPct),
			)
			return TriggerResult{Fired: true, Reason: ReasonResourcePressure}
		}
	}

	ewma := c.aggregate.EWMA()
	slope := c.aggregate.Slope()
	drifting := ewma > c.cfg.Thresholds.EWMAMaxMs && slope > c.cfg.Thresholds.SlopeMinMsPerS

	if !drifting {
		// predicate reset: the hold restarts from scratch
		c.triggerStart = time.Time{}
		return TriggerResult{}
	}

	if c.triggerStart.IsZero() {
		c.triggerStart = now
		c.impactedBatch = now
		c.logger.Info("latency drift detected, hold timer armed",
			slog.Float64("ewma", ewma),
			slog.Float64("slope", slope),
			slog.Duration("hold", c.cfg.Thresholds.Hold),
		)
		return TriggerResult{}
	}

	if now.Sub(c.triggerStart) >= c.cfg.Thresholds.Hold {
		return TriggerResult{Fired: true, Reason: ReasonLatencyDrift}
	}
	return TriggerResult{}
}
