package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/netwatchlab/failover-gateway/internal/api"
	"github.com/netwatchlab/failover-gateway/internal/cache"
	"github.com/netwatchlab/failover-gateway/internal/config"
	"github.com/netwatchlab/failover-gateway/internal/controller"
	"github.com/netwatchlab/failover-gateway/internal/dispatch"
	"github.com/netwatchlab/failover-gateway/internal/downstream"
	"github.com/netwatchlab/failover-gateway/internal/healthcheck"
	"github.com/netwatchlab/failover-gateway/internal/logger"
	"github.com/netwatchlab/failover-gateway/internal/metrics"
	"github.com/netwatchlab/failover-gateway/internal/model"
	"github.com/netwatchlab/failover-gateway/internal/telemetry"
	"github.com/netwatchlab/failover-gateway/internal/topology"
	"github.com/netwatchlab/failover-gateway/pkg/httpserver"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	log := logger.New()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration",
			"error", err.Error(),
		)
		os.Exit(1)
	}

	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		log = logger.NewWithLevel(level)
	}

	log.Info("configuration loaded",
		"routing_mode", cfg.Routing.Mode,
		"downstreams", len(cfg.Downstreams),
	)

	// Topology load failure is fatal to startup
	graph, err := topology.Load(cfg.Topology.File)
	if err != nil {
		log.Error("failed to load topology",
			"file", cfg.Topology.File,
			"error", err.Error(),
		)
		os.Exit(1)
	}

	log.Info("topology loaded",
		"nodes", len(graph.Nodes()),
		"links", len(graph.Links()),
	)

	sink := telemetry.NewMemorySink(0)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	ctrl := controller.New(graph, sink, controller.Config{
		Thresholds: model.Thresholds{
			EWMAMaxMs:      cfg.Thresholds.EWMAMaxMs,
			SlopeMinMsPerS: cfg.Thresholds.SlopeMinMsPerS,
			Hold:           cfg.Thresholds.Hold,
			CPUMax:         cfg.Thresholds.CPUMax,
			BufferMaxPct:   cfg.Thresholds.BufferMaxPct,
		},
		Alpha:              cfg.Telemetry.Alpha,
		WindowSize:         cfg.Telemetry.WindowSize,
		HoldRecovery:       cfg.Recovery.Hold,
		Stability:          cfg.Recovery.Stability,
		TransitionDuration: cfg.Recovery.TransitionDuration,
		RevertSteps:        cfg.Recovery.RevertSteps,
		FailoverMode:       cfg.Routing.FailoverMode,
		Primary:            cfg.Routing.Primary,
	}, log)

	if cfg.Routing.Mode == config.RoutingPhysical {
		if err := configurePhysicalPaths(graph, ctrl); err != nil {
			log.Error("failed to compute physical paths",
				"error", err.Error(),
			)
			os.Exit(1)
		}
	}

	healthCache := cache.New(cfg.HealthCheck.Interval)
	nodes, err := downstream.NewSet(
		cfg.Downstreams,
		cfg.ForwardTimeout,
		cfg.HealthCheck.Interval,
		healthCache,
		log,
	)
	if err != nil {
		log.Error("failed to create downstream clients",
			"error", err.Error(),
		)
		os.Exit(1)
	}

	dispatcher := dispatch.New(graph, ctrl, nodes, sink, m, cfg.Routing.Mode, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := healthcheck.NewPoller(&cfg.HealthCheck, nodes, ctrl, sink, log)
	poller.Start(ctx)

	stepper := controller.NewRevertStepper(ctrl, cfg.Recovery.StepperInterval, log)
	stepper.Start(ctx)

	handler := api.NewHandler(ctrl, dispatcher, graph, sink, registry, cfg.Server.BasePath, log)

	srv := httpserver.New(
		cfg.Server.Addr,
		handler.Router(),
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		log,
	)

	log.Info("starting failover gateway")
	srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-srv.Err():
		log.Error("server error",
			"error", err.Error(),
		)
	case sig := <-quit:
		log.Info("received shutdown signal",
			"signal", sig.String(),
		)
	}

	log.Info("shutting down revert stepper")
	stepper.Stop()

	log.Info("shutting down health poller")
	poller.Stop()
	cancel()

	if err := srv.Shutdown(); err != nil {
		log.Error("server shutdown failed",
			"error", err.Error(),
		)
	}

	log.Info("shutdown complete")
}

// configurePhysicalPaths derives the active and backup linear paths from
// the loaded topology: the shortest route from the lowest-id edge node to
// the lowest-id cloud node and its best node-disjoint bypass. Without a
// bypass the backup is the active path itself.
func configurePhysicalPaths(graph *topology.Graph, ctrl *controller.Controller) error {
	edges := graph.TierNodes(topology.TierEdge)
	clouds := graph.TierNodes(topology.TierCloud)
	if len(edges) == 0 || len(clouds) == 0 {
		return model.ErrNoPathAvailable
	}

	paths := graph.DisjointPaths(edges[0], clouds[0], 2, nil)
	if len(paths) == 0 {
		return model.ErrNoPathAvailable
	}

	active := paths[0]
	backup := active
	if len(paths) > 1 {
		backup = paths[1]
	}
	ctrl.SetPhysicalPaths(active, backup)
	return nil
}
