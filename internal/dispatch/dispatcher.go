package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netwatchlab/failover-gateway/internal/controller"
	"github.com/netwatchlab/failover-gateway/internal/metrics"
	"github.com/netwatchlab/failover-gateway/internal/model"
	"github.com/netwatchlab/failover-gateway/internal/telemetry"
	"github.com/netwatchlab/failover-gateway/internal/topology"
)

// Routing mode names
const (
	RoutingVirtual  = "virtual"
	RoutingPhysical = "physical"
)

// aggregateOnlyPathID feeds a latency sample into the aggregate window
// without touching any per-path ring
const aggregateOnlyPathID = -1

// Dispatcher routes arriving batches over the overlay: virtual routing
// samples a registered path by load weight and simulates its latency,
// physical routing forwards over the active linear path with per-link
// delay and loss applied.
type Dispatcher struct {
	graph     *topology.Graph
	ctrl      *controller.Controller
	forwarder Forwarder
	sink      telemetry.Sink
	metrics   *metrics.Metrics
	logger    *slog.Logger
	routing   string
	topK      int

	mu  sync.Mutex
	rng *rand.Rand

	now   func() time.Time
	sleep func(time.Duration)
}

// Forwarder delivers events to the first-hop external node. The
// downstream client set implements it; tests substitute their own.
type Forwarder interface {
	ForwardTo(ctx context.Context, physicalName string, events []model.Event) error
}

// Option customises a Dispatcher, mainly for deterministic tests
type Option func(*Dispatcher)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithSleep overrides the simulated latency sleeper
func WithSleep(sleep func(time.Duration)) Option {
	return func(d *Dispatcher) { d.sleep = sleep }
}

// WithRand overrides the random source
func WithRand(rng *rand.Rand) Option {
	return func(d *Dispatcher) { d.rng = rng }
}

// New creates a dispatcher in the given routing mode
func New(graph *topology.Graph, ctrl *controller.Controller, forwarder Forwarder, sink telemetry.Sink, m *metrics.Metrics, routing string, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		graph:     graph,
		ctrl:      ctrl,
		forwarder: forwarder,
		sink:      sink,
		metrics:   m,
		logger:    logger,
		routing:   routing,
		topK:      3,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		now:       time.Now,
		sleep:     time.Sleep,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch routes one batch and returns the per-batch result. A batch
// that loses every event in transit is a successful response with
// accepted=0, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, batch *model.Batch) (*model.IngestResult, error) {
	if d.metrics != nil {
		d.metrics.BatchesTotal.Inc()
	}

	var (
		res *model.IngestResult
		err error
	)
	if d.routing == RoutingPhysical {
		res, err = d.dispatchPhysical(ctx, batch)
	} else {
		res, err = d.dispatchVirtual(ctx, batch)
	}
	if err != nil {
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.EventsDroppedTotal.Add(float64(res.Dropped))
		d.metrics.ObserveSnapshot(d.ctrl.Snapshot())
	}
	return res, nil
}

// recordDeadlineMiss emits a deadline_miss incident when the end-to-end
// latency exceeded the batch's tightest event deadline
func (d *Dispatcher) recordDeadlineMiss(batch *model.Batch, pathID int, latencyMs float64) {
	deadline := batch.TightestDeadlineMs()
	if deadline <= 0 || latencyMs <= deadline {
		return
	}

	if d.metrics != nil {
		d.metrics.DeadlineMissesTotal.Inc()
	}
	d.sink.RecordIncident(model.Incident{
		ID:        uuid.NewString(),
		Kind:      model.IncidentDeadlineMiss,
		Severity:  model.SeverityLow,
		Timestamp: d.now(),
		Details: model.IncidentDetails{
			DeadlineMiss: &model.DeadlineMissDetails{
				PathID:     pathID,
				DeadlineMs: deadline,
				LatencyMs:  latencyMs,
				BatchSize:  len(batch.Events),
			},
		},
	})
	d.logger.Warn("batch missed deadline",
		slog.Int("path_id", pathID),
		slog.Float64("deadline_ms", deadline),
		slog.Float64("latency_ms", latencyMs),
	)
}

// uniform draws from [lo, hi) under the dispatcher's random source
func (d *Dispatcher) uniform(lo, hi float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	return lo + d.rng.Float64()*(hi-lo)
}

// pick returns a uniformly random element of ids
func (d *Dispatcher) pick(ids []int) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return ids[d.rng.Intn(len(ids))]
}

// bernoulli reports a success draw with the given probability
func (d *Dispatcher) bernoulli(p float64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.rng.Float64() < p
}

func formatResultPath(nodes []int) string {
	if len(nodes) == 0 {
		return ""
	}
	return topology.PathString(nodes)
}

var errNoRegisteredPath = fmt.Errorf("%w: registry empty and no seed candidates", model.ErrNoPathAvailable)
