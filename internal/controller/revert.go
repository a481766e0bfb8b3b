package controller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// revertDeviationPct is the minimum per-path deviation from the target
// distribution, in percentage points, that justifies scheduling a revert
const revertDeviationPct = 1.0

// RevertStep is one scheduled interpolation step toward the target
// distribution
type RevertStep struct {
	At           time.Time
	Distribution map[int]float64
}

// PlanRevert advances the recovery state machine and, when the current
// distribution has drifted more than a percentage point from the target,
// builds a linear interpolation schedule back toward it. The target is
// the optimal distribution recorded at registration, or a uniform split
// when every path is degraded (a flat hedge, since no path is trusted).
// Returns nil when no transition is needed.
func (c *Controller) PlanRevert() []RevertStep {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.advanceRecoveryLocked(now)

	if len(c.paths) == 0 {
		return nil
	}

	allDegraded := true
	for _, p := range c.paths {
		if p.Status != model.PathDegraded {
			allDegraded = false
			break
		}
	}

	target := make(map[int]float64, len(c.paths))
	if allDegraded {
		even := 100.0 / float64(len(c.paths))
		for id := range c.paths {
			target[id] = even
		}
	} else {
		for id := range c.paths {
			target[id] = c.optimal[id]
		}
		target = normalize(target)
	}

	current := c.distributionLocked()
	if maxDeviation(current, target) <= revertDeviationPct {
		return nil
	}

	n := c.cfg.RevertSteps
	stepInterval := c.cfg.TransitionDuration / time.Duration(n)

	steps := make([]RevertStep, 0, n)
	for i := 1; i <= n; i++ {
		frac := float64(i) / float64(n)
		dist := make(map[int]float64, len(current))
		for id := range c.paths {
			dist[id] = current[id] + (target[id]-current[id])*frac
		}
		steps = append(steps, RevertStep{
			At:           now.Add(time.Duration(i) * stepInterval),
			Distribution: normalize(dist),
		})
	}

	c.logger.Info("gradual revert scheduled",
		slog.Int("steps", n),
		slog.Duration("duration", c.cfg.TransitionDuration),
		slog.Bool("uniform_target", allDegraded),
	)
	return steps
}

// ApplyRevertStep mutates path loads to the step's distribution and
// re-normalises. Applying a step identical to the current distribution is
// a no-op; returns whether anything changed.
func (c *Controller) ApplyRevertStep(step RevertStep) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	current := c.distributionLocked()
	if distributionsEqual(current, step.Distribution) {
		return false
	}

	next := make(map[int]float64, len(c.paths))
	for id := range c.paths {
		if v, ok := step.Distribution[id]; ok {
			next[id] = v
		} else {
			next[id] = c.paths[id].Load
		}
	}
	next = normalize(next)
	for id, load := range next {
		c.paths[id].Load = load
	}
	return true
}

// advanceRecoveryLocked applies the path state machine's recovery edges:
// degraded paths that have cooled for the hold window flip to recovering,
// recovering paths that have stayed quiet for the stability window flip
// back to healthy
func (c *Controller) advanceRecoveryLocked(now time.Time) {
	t := c.cfg.Thresholds.EWMAMaxMs
	for id, p := range c.paths {
		switch p.Status {
		case model.PathDegraded:
			if p.Window.EWMA() < 0.8*t && p.Window.Slope() <= 0.5 &&
				now.Sub(p.LastFailureTime) > c.cfg.HoldRecovery {
				p.Status = model.PathRecovering
				p.LastRecoveryTime = now
				c.logger.Info("path recovering",
					slog.Int("path_id", id),
					slog.Float64("ewma", p.Window.EWMA()),
				)
			}
		case model.PathRecovering:
			if p.Window.EWMA() < 0.6*t &&
				now.Sub(p.LastRecoveryTime) > c.cfg.Stability {
				p.Status = model.PathHealthy
				c.logger.Info("path healthy",
					slog.Int("path_id", id),
					slog.Float64("ewma", p.Window.EWMA()),
				)
			}
		}
	}
}

// RevertStepper periodically plans a gradual revert and applies each step
// at its scheduled time. One transition runs at a time.
type RevertStepper struct {
	ctrl     *Controller
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRevertStepper creates a stepper that wakes every interval
func NewRevertStepper(ctrl *Controller, interval time.Duration, logger *slog.Logger) *RevertStepper {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &RevertStepper{
		ctrl:     ctrl,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the stepper loop in a background goroutine
func (s *RevertStepper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the stepper
func (s *RevertStepper) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RevertStepper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			steps := s.ctrl.PlanRevert()
			if len(steps) == 0 {
				continue
			}
			if !s.walk(ctx, steps) {
				return
			}
		}
	}
}

// walk applies each step at its timestamp; returns false when stopped
func (s *RevertStepper) walk(ctx context.Context, steps []RevertStep) bool {
	for _, step := range steps {
		wait := time.Until(step.At)
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-s.stopCh:
				timer.Stop()
				return false
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
		}
		if s.ctrl.ApplyRevertStep(step) {
			s.logger.Debug("revert step applied",
				slog.Time("at", step.At),
			)
		}
	}
	return true
}
