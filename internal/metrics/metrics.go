package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// Metrics holds Prometheus instrumentation for the gateway control loop
type Metrics struct {
	BatchesTotal        prometheus.Counter
	EventsDroppedTotal  prometheus.Counter
	FailoversTotal      *prometheus.CounterVec
	DeadlineMissesTotal prometheus.Counter
	EWMA                prometheus.Gauge
	Slope               prometheus.Gauge
	PathLoad            *prometheus.GaugeVec
	PathStatus          *prometheus.GaugeVec
}

// New creates and registers the gateway metrics. The registerer parameter
// allows flexible registration (global registry, test registry).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_batches_total",
			Help: "Total number of event batches dispatched",
		}),
		EventsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_events_dropped_total",
			Help: "Total number of events lost in transit",
		}),
		FailoversTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_failovers_total",
			Help: "Total number of failover redistributions by trigger reason",
		}, []string{"reason"}),
		DeadlineMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_deadline_misses_total",
			Help: "Total number of batches exceeding their tightest event deadline",
		}),
		EWMA: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_latency_ewma_ms",
			Help: "Aggregate EWMA of batch latency in milliseconds",
		}),
		Slope: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_latency_slope_ms_per_s",
			Help: "Aggregate latency regression slope",
		}),
		PathLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_path_load_percentage",
			Help: "Current load percentage per registered path",
		}, []string{"path_id"}),
		PathStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_path_status",
			Help: "Path state as a numeric code: 0 healthy, 1 degraded, 2 recovering",
		}, []string{"path_id"}),
	}

	reg.MustRegister(
		m.BatchesTotal,
		m.EventsDroppedTotal,
		m.FailoversTotal,
		m.DeadlineMissesTotal,
		m.EWMA,
		m.Slope,
		m.PathLoad,
		m.PathStatus,
	)
	return m
}

// ObserveSnapshot publishes the controller snapshot's gauges
func (m *Metrics) ObserveSnapshot(snap model.ControllerSnapshot) {
	m.EWMA.Set(snap.EWMA)
	m.Slope.Set(snap.Slope)
	for _, p := range snap.Paths {
		id := strconv.Itoa(p.ID)
		m.PathLoad.WithLabelValues(id).Set(p.LoadPercentage)
		m.PathStatus.WithLabelValues(id).Set(statusCode(p.Status))
	}
}

func statusCode(s model.PathState) float64 {
	switch s {
	case model.PathDegraded:
		return 1
	case model.PathRecovering:
		return 2
	}
	return 0
}
