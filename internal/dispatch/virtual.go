package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/netwatchlab/failover-gateway/internal/controller"
	"github.com/netwatchlab/failover-gateway/internal/model"
	"github.com/netwatchlab/failover-gateway/internal/topology"
)

// dispatchVirtual samples a registered path by load weight, simulates its
// end-to-end latency and feeds the observation back into the controller
func (d *Dispatcher) dispatchVirtual(ctx context.Context, batch *model.Batch) (*model.IngestResult, error) {
	// degradation scan first so the sample sees post-rebalance weights
	if outcome := d.ctrl.RebalanceIfDegraded(); outcome != nil {
		if d.metrics != nil {
			d.metrics.FailoversTotal.WithLabelValues(outcome.Reason).Inc()
		}
	}

	choices := d.ctrl.SelectPaths(d.topK)
	if len(choices) == 0 {
		seeded, err := d.seedPaths()
		if err != nil {
			return nil, err
		}
		choices = seeded
	}

	choice := d.samplePath(choices)

	latency, err := d.estimatePathLatency(choice.Nodes)
	if err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	d.sleep(time.Duration(latency * float64(time.Millisecond)))

	d.ctrl.ObserveLatency(choice.ID, d.now(), latency)
	d.recordDeadlineMiss(batch, choice.ID, latency)

	id := choice.ID
	return &model.IngestResult{
		Accepted:          len(batch.Events),
		Dropped:           0,
		EndToEndLatencyMs: latency,
		Path:              formatResultPath(choice.Nodes),
		PathID:            &id,
	}, nil
}

// samplePath draws u in [0,100) and walks the cumulative load weights,
// picking the path whose band contains u. When the bands do not cover
// the draw (partial top-K), the last candidate wins.
func (d *Dispatcher) samplePath(choices []controller.PathChoice) controller.PathChoice {
	u := d.uniform(0, 100)
	cum := 0.0
	for _, c := range choices {
		cum += c.Load
		if u < cum {
			return c
		}
	}
	return choices[len(choices)-1]
}

// estimatePathLatency sums current link delay along the path plus a
// uniform jitter draw per link
func (d *Dispatcher) estimatePathLatency(nodes []int) (float64, error) {
	links, err := d.graph.PathLinks(nodes)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, l := range links {
		total += l.DelayMs
		if l.JitterMs > 0 {
			total += d.uniform(-l.JitterMs, l.JitterMs)
		}
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}

// seedPaths registers an initial path set when the registry is empty:
// random edge and cloud endpoints, up to topK node-disjoint paths between
// them, even load split
func (d *Dispatcher) seedPaths() ([]controller.PathChoice, error) {
	edges := d.graph.TierNodes(topology.TierEdge)
	clouds := d.graph.TierNodes(topology.TierCloud)
	if len(edges) == 0 || len(clouds) == 0 {
		return nil, errNoRegisteredPath
	}

	src := d.pick(edges)
	dst := d.pick(clouds)

	candidates := d.graph.RankPaths(d.graph.DisjointPaths(src, dst, d.topK, nil))
	if len(candidates) == 0 {
		return nil, errNoRegisteredPath
	}

	even := 100.0 / float64(len(candidates))
	choices := make([]controller.PathChoice, 0, len(candidates))
	for i, p := range candidates {
		d.ctrl.RegisterPath(i, p, even)
		choices = append(choices, controller.PathChoice{ID: i, Nodes: p, Load: even})
	}

	d.logger.Info("seeded path registry",
		slog.Int("src", src),
		slog.Int("dst", dst),
		slog.Int("paths", len(choices)),
	)
	return choices, nil
}
