package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/netwatchlab/failover-gateway/internal/model"
	"github.com/netwatchlab/failover-gateway/internal/topology"
)

// dispatchPhysical forwards a batch over the active linear path, applying
// per-link transmission delay, jitter and Bernoulli loss, then handing
// the survivors to the first-hop external node
func (d *Dispatcher) dispatchPhysical(ctx context.Context, batch *model.Batch) (*model.IngestResult, error) {
	// trigger check before forwarding; on fire the active and backup
	// topologies swap and failover accounting runs
	if trig := d.ctrl.EvaluateTrigger(); trig.Fired {
		active, backup := d.ctrl.SwapActiveBackup()
		d.logger.Warn("trigger fired, swapping active path",
			slog.String("reason", trig.Reason),
			slog.String("active", topology.PathString(active)),
			slog.String("backup", topology.PathString(backup)),
		)
		if outcome := d.ctrl.FailoverOnTrigger(trig.Reason); outcome != nil && d.metrics != nil {
			d.metrics.FailoversTotal.WithLabelValues(trig.Reason).Inc()
		}
	}

	active := d.ctrl.ActivePath()
	if len(active) < 2 {
		return nil, errNoRegisteredPath
	}

	links, err := d.graph.PathLinks(active)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(batch.Events)
	if err != nil {
		return nil, err
	}
	bytes := float64(len(payload))

	surviving := batch.Events
	totalDelay := 0.0
	for _, l := range links {
		delay := l.DelayMs
		if l.BandwidthMbps > 0 {
			delay += (bytes * 8 / (l.BandwidthMbps * 1e6)) * 1000
		}
		if l.JitterMs > 0 {
			delay += d.uniform(-l.JitterMs, l.JitterMs)
		}
		if delay > 0 {
			totalDelay += delay
		}

		if l.LossRate > 0 && len(surviving) > 0 {
			kept := surviving[:0:0]
			for _, ev := range surviving {
				if !d.bernoulli(l.LossRate) {
					kept = append(kept, ev)
				}
			}
			surviving = kept
		}
	}

	dropped := len(batch.Events) - len(surviving)

	if len(surviving) == 0 {
		// total loss is a valid outcome, not an error
		d.ctrl.ObserveLatency(aggregateOnlyPathID, d.now(), totalDelay)
		return &model.IngestResult{
			Accepted:          0,
			Dropped:           dropped,
			EndToEndLatencyMs: totalDelay,
			Path:              topology.PathString(active),
			Reason:            "all lost",
		}, nil
	}

	totalDelay += d.forward(ctx, active, surviving)

	d.ctrl.ObserveLatency(aggregateOnlyPathID, d.now(), totalDelay)
	d.recordDeadlineMiss(batch, aggregateOnlyPathID, totalDelay)

	return &model.IngestResult{
		Accepted:          len(surviving),
		Dropped:           dropped,
		EndToEndLatencyMs: totalDelay,
		Path:              topology.PathString(active),
	}, nil
}

// forward delivers the surviving events to the first hop whose node maps
// to a configured downstream, returning the elapsed forwarding time in
// milliseconds. A timeout is swallowed: it surfaces only as the elevated
// latency that drives the predictive trigger.
func (d *Dispatcher) forward(ctx context.Context, path []int, events []model.Event) float64 {
	if d.forwarder == nil {
		return 0
	}

	name := d.firstHopName(path)
	if name == "" {
		d.logger.Warn("no downstream mapping for path",
			slog.String("path", topology.PathString(path)),
		)
		return 0
	}

	start := d.now()
	err := d.forwarder.ForwardTo(ctx, name, events)
	elapsed := float64(d.now().Sub(start)) / float64(time.Millisecond)
	if err != nil {
		if errors.Is(err, model.ErrForwardingTimeout) {
			d.logger.Warn("downstream forward timed out",
				slog.String("node", name),
				slog.Float64("elapsed_ms", elapsed),
			)
		} else {
			d.logger.Error("downstream forward failed",
				slog.String("node", name),
				slog.String("error", err.Error()),
			)
		}
	}
	return elapsed
}

// firstHopName resolves the first node along the path that carries a
// physical mapping to an external server
func (d *Dispatcher) firstHopName(path []int) string {
	for _, id := range path {
		n, err := d.graph.Node(id)
		if err != nil {
			continue
		}
		if n.PhysicalMap != "" {
			return n.PhysicalMap
		}
	}
	return ""
}
