package controller

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// Cold failover spin-up bounds in milliseconds
const (
	coldSpinUpMinMs = 400
	coldSpinUpMaxMs = 700
)

// RebalanceOutcome reports a completed redistribution
type RebalanceOutcome struct {
	Reason       string
	Degraded     []int
	Bottlenecks  []int
	Alternatives [][]int
	Distribution map[int]float64
	Incident     model.Incident
}

// RebalanceIfDegraded scans the registry for newly degraded paths and, if
// any are found, redistributes load away from them. Returns nil when the
// scan finds nothing new or a failover is already in flight.
func (c *Controller) RebalanceIfDegraded() *RebalanceOutcome {
	c.mu.Lock()

	now := c.now()
	if c.failoverInProgress {
		c.mu.Unlock()
		return nil
	}

	newly := c.scanDegradedLocked(now)
	if len(newly) == 0 {
		c.mu.Unlock()
		return nil
	}

	outcome := c.rebalanceLocked(now, ReasonLatencyDrift)
	c.failoverInProgress = true
	mode := c.mode
	ewma := c.aggregate.EWMA()
	impacted := c.impactedBatch
	c.mu.Unlock()

	// spin-up sleep happens outside the lock; concurrent rebalances are
	// fenced by failoverInProgress
	spinUp := 0.0
	if mode == ModeCold {
		spinUp = coldSpinUpMinMs + c.rng.Float64()*(coldSpinUpMaxMs-coldSpinUpMinMs)
		c.sleep(time.Duration(spinUp * float64(time.Millisecond)))
	}

	completed := c.now()
	mttr := 0.0
	if !impacted.IsZero() {
		mttr = float64(completed.Sub(impacted)) / float64(time.Millisecond)
	}
	if mttr < spinUp {
		mttr = spinUp
	}

	severity := model.SeverityMedium
	if ewma > 1.5*c.cfg.Thresholds.EWMAMaxMs {
		severity = model.SeverityHigh
	}

	inc := model.Incident{
		ID:        uuid.NewString(),
		Kind:      model.IncidentFailover,
		Severity:  severity,
		Timestamp: completed,
		Details: model.IncidentDetails{
			Failover: &model.FailoverDetails{
				Reason:          outcome.Reason,
				BottleneckNodes: outcome.Bottlenecks,
				NewDistribution: outcome.Distribution,
				SpinUpDelayMs:   spinUp,
				MTTRMs:          mttr,
			},
		},
	}
	c.sink.RecordIncident(inc)
	outcome.Incident = inc

	// restart the debounce against the new path set
	c.mu.Lock()
	c.aggregate.Reset()
	c.triggerStart = time.Time{}
	c.impactedBatch = time.Time{}
	c.failoverInProgress = false
	c.mu.Unlock()

	c.logger.Info("failover completed",
		slog.String("severity", string(severity)),
		slog.Float64("spin_up_ms", spinUp),
		slog.Float64("mttr_ms", mttr),
		slog.Int("degraded_paths", len(outcome.Degraded)),
	)
	return outcome
}

// FailoverOnTrigger executes the redistribution path for an externally
// evaluated trigger (resource pressure or physical-mode drift)
func (c *Controller) FailoverOnTrigger(reason string) *RebalanceOutcome {
	c.mu.Lock()

	now := c.now()
	if c.failoverInProgress {
		c.mu.Unlock()
		return nil
	}

	// force every path over threshold into degraded before redistributing
	c.scanDegradedLocked(now)
	outcome := c.rebalanceLocked(now, reason)
	c.failoverInProgress = true
	mode := c.mode
	ewma := c.aggregate.EWMA()
	impacted := c.impactedBatch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.aggregate.Reset()
		c.triggerStart = time.Time{}
		c.impactedBatch = time.Time{}
		c.failoverInProgress = false
		c.mu.Unlock()
	}()

	spinUp := 0.0
	if mode == ModeCold {
		spinUp = coldSpinUpMinMs + c.rng.Float64()*(coldSpinUpMaxMs-coldSpinUpMinMs)
		c.sleep(time.Duration(spinUp * float64(time.Millisecond)))
	}

	completed := c.now()
	mttr := 0.0
	if !impacted.IsZero() {
		mttr = float64(completed.Sub(impacted)) / float64(time.Millisecond)
	}
	if mttr < spinUp {
		mttr = spinUp
	}

	severity := model.SeverityMedium
	if ewma > 1.5*c.cfg.Thresholds.EWMAMaxMs {
		severity = model.SeverityHigh
	}

	inc := model.Incident{
		ID:        uuid.NewString(),
		Kind:      model.IncidentFailover,
		Severity:  severity,
		Timestamp: completed,
		Details: model.IncidentDetails{
			Failover: &model.FailoverDetails{
				Reason:          reason,
				BottleneckNodes: outcome.Bottlenecks,
				NewDistribution: outcome.Distribution,
				SpinUpDelayMs:   spinUp,
				MTTRMs:          mttr,
			},
		},
	}
	c.sink.RecordIncident(inc)
	outcome.Incident = inc
	return outcome
}

// scanDegradedLocked transitions every path whose ewma and slope are over
// threshold into degraded, returning the ids that transitioned this scan
func (c *Controller) scanDegradedLocked(now time.Time) []int {
	newly := make([]int, 0)
	for id, p := range c.paths {
		if p.Status == model.PathDegraded {
			continue
		}
		ewma := p.Window.EWMA()
		slope := p.Window.Slope()
		if p.Window.Len() > 0 && ewma > c.cfg.Thresholds.EWMAMaxMs && slope >= c.cfg.Thresholds.SlopeMinMsPerS {
			p.Status = model.PathDegraded
			p.LastFailureTime = now
			newly = append(newly, id)

			c.logger.Warn("path degraded",
				slog.Int("path_id", id),
				slog.Float64("ewma", ewma),
				slog.Float64("slope", slope),
			)
		}
	}
	sort.Ints(newly)
	return newly
}

// rebalanceLocked runs bottleneck identification, alternative path search
// and weight reassignment. Caller holds the lock.
func (c *Controller) rebalanceLocked(now time.Time, reason string) *RebalanceOutcome {
	degradedIDs := make([]int, 0)
	degradedSet := make(map[int]bool)
	for id, p := range c.paths {
		if p.Status == model.PathDegraded {
			degradedIDs = append(degradedIDs, id)
			degradedSet[id] = true
		}
	}
	sort.Ints(degradedIDs)

	degradedNodeSeqs := make([][]int, 0, len(degradedIDs))
	for _, id := range degradedIDs {
		degradedNodeSeqs = append(degradedNodeSeqs, c.paths[id].Nodes)
	}

	bottlenecks := findCommonNodes(degradedNodeSeqs)

	alternatives := c.alternativePathsLocked(degradedNodeSeqs, bottlenecks)
	if len(alternatives) == 0 {
		c.logger.Warn("no valid alternative paths found, retaining current distribution",
			slog.Int("degraded", len(degradedIDs)),
		)
		return &RebalanceOutcome{
			Reason:       reason,
			Degraded:     degradedIDs,
			Bottlenecks:  bottlenecks,
			Distribution: c.distributionLocked(),
		}
	}

	dist := redistribute(c.distributionLocked(), degradedSet)
	for id, load := range dist {
		c.paths[id].Load = load
	}

	return &RebalanceOutcome{
		Reason:       reason,
		Degraded:     degradedIDs,
		Bottlenecks:  bottlenecks,
		Alternatives: alternatives,
		Distribution: dist,
	}
}

// alternativePathsLocked asks the graph for k node-disjoint paths between
// the degraded endpoints, excluding the bottleneck set, filtered by tier
// validity and sorted by score descending
func (c *Controller) alternativePathsLocked(degraded [][]int, bottlenecks []int) [][]int {
	if len(degraded) == 0 {
		return nil
	}

	src := degraded[0][0]
	dst := degraded[0][len(degraded[0])-1]

	exclude := make(map[int]bool, len(bottlenecks))
	for _, id := range bottlenecks {
		exclude[id] = true
	}

	candidates := c.graph.DisjointPaths(src, dst, c.cfg.DisjointK, exclude)
	return c.graph.RankPaths(candidates)
}

// findCommonNodes identifies bottleneck nodes shared across the degraded
// paths: intermediate nodes appearing in at least max(2, half) of them,
// sorted by occurrence count descending. Sources and destinations are
// never counted. A single degraded path therefore yields no bottlenecks.
func findCommonNodes(degraded [][]int) []int {
	if len(degraded) == 0 {
		return nil
	}

	counts := make(map[int]int)
	for _, path := range degraded {
		if len(path) < 3 {
			continue
		}
		seen := make(map[int]bool)
		for _, id := range path[1 : len(path)-1] {
			if !seen[id] {
				seen[id] = true
				counts[id]++
			}
		}
	}

	threshold := int(math.Ceil(0.5 * float64(len(degraded))))
	if threshold < 2 {
		threshold = 2
	}

	out := make([]int, 0)
	for id, n := range counts {
		if n >= threshold {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
