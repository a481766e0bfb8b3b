package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/netwatchlab/failover-gateway/internal/concurrent"
	"github.com/netwatchlab/failover-gateway/internal/config"
	"github.com/netwatchlab/failover-gateway/internal/controller"
	"github.com/netwatchlab/failover-gateway/internal/downstream"
	"github.com/netwatchlab/failover-gateway/internal/model"
	"github.com/netwatchlab/failover-gateway/internal/telemetry"
)

// Poller periodically polls every downstream node's health endpoint,
// feeding resource reports into the controller. Consecutive failures
// past the threshold raise a node_down incident; the first success after
// a down period raises node_recover.
type Poller struct {
	cfg    *config.HealthCheckConfig
	nodes  *downstream.Set
	ctrl   *controller.Controller
	sink   telemetry.Sink
	logger *slog.Logger

	mu       sync.Mutex
	failures map[string]int
	down     map[string]bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPoller creates a health poller over the downstream set
func NewPoller(cfg *config.HealthCheckConfig, nodes *downstream.Set, ctrl *controller.Controller, sink telemetry.Sink, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.FailedThreshold <= 0 {
		cfg.FailedThreshold = 3
	}
	return &Poller{
		cfg:      cfg,
		nodes:    nodes,
		ctrl:     ctrl,
		sink:     sink,
		logger:   logger,
		failures: make(map[string]int),
		down:     make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the poll loop in a background goroutine
func (p *Poller) Start(ctx context.Context) {
	if !p.cfg.Enabled {
		p.logger.Info("health polling is disabled")
		return
	}

	p.logger.Info("starting health poller",
		slog.Duration("interval", p.cfg.Interval),
		slog.Int("failed_threshold", p.cfg.FailedThreshold),
	)

	p.wg.Add(1)
	go p.run(ctx)
}

// Stop gracefully stops the poller
func (p *Poller) Stop() {
	if !p.cfg.Enabled {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("health poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll fans out one health check per downstream node
func (p *Poller) poll(ctx context.Context) {
	names := p.nodes.Names()
	if len(names) == 0 {
		return
	}

	type report struct {
		name   string
		health model.NodeHealth
	}

	results := concurrent.ParallelMap(ctx, names, func(ctx context.Context, name string) (report, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()

		h, err := p.nodes.Health(callCtx, name)
		if err != nil {
			return report{name: name}, err
		}
		return report{name: name, health: h}, nil
	})

	for _, r := range results {
		if r.Error != nil {
			p.handleFailure(names[r.Index], r.Error)
			continue
		}
		p.handleSuccess(r.Value.name, r.Value.health)
	}
}

func (p *Poller) handleSuccess(name string, h model.NodeHealth) {
	p.ctrl.UpdateNodeHealth(name, h)

	p.mu.Lock()
	wasDown := p.down[name]
	p.failures[name] = 0
	p.down[name] = false
	p.mu.Unlock()

	if wasDown {
		p.logger.Info("node recovered",
			slog.String("node", name),
		)
		p.sink.RecordIncident(model.Incident{
			ID:        uuid.NewString(),
			Kind:      model.IncidentNodeRecover,
			Severity:  model.SeverityLow,
			Timestamp: time.Now(),
			Details: model.IncidentDetails{
				Node: &model.NodeDetails{Node: name},
			},
		})
	}
}

func (p *Poller) handleFailure(name string, err error) {
	p.mu.Lock()
	p.failures[name]++
	count := p.failures[name]
	alreadyDown := p.down[name]
	if count >= p.cfg.FailedThreshold {
		p.down[name] = true
	}
	p.mu.Unlock()

	p.logger.Warn("node health check failed",
		slog.String("node", name),
		slog.Int("consecutive_failures", count),
		slog.String("error", err.Error()),
	)

	if count >= p.cfg.FailedThreshold && !alreadyDown {
		p.logger.Error("node marked down",
			slog.String("node", name),
			slog.Int("failures", count),
		)
		p.sink.RecordIncident(model.Incident{
			ID:        uuid.NewString(),
			Kind:      model.IncidentNodeDown,
			Severity:  model.SeverityMedium,
			Timestamp: time.Now(),
			Details: model.IncidentDetails{
				Node: &model.NodeDetails{Node: name, ConsecutiveFailures: count},
			},
		})
	}
}
