package controller

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/netwatchlab/failover-gateway/internal/model"
	"github.com/netwatchlab/failover-gateway/internal/telemetry"
	"github.com/netwatchlab/failover-gateway/internal/topology"
)

// Failover mode names accepted at runtime
const (
	ModeReactive   = "reactive"
	ModeWarm       = "warm"
	ModeCold       = "cold"
	ModePredictive = "predictive"
)

// Config carries the controller tuning knobs. Zero values fall back to
// the documented defaults.
type Config struct {
	Thresholds         model.Thresholds
	Alpha              float64
	WindowSize         int
	HoldRecovery       time.Duration // degraded -> recovering hold
	Stability          time.Duration // recovering -> healthy stability
	TransitionDuration time.Duration // gradual revert window
	RevertSteps        int
	DisjointK          int // alternative paths requested on rebalance
	FailoverMode       string
	Primary            string
}

func (c Config) withDefaults() Config {
	if c.Thresholds.EWMAMaxMs == 0 {
		c.Thresholds.EWMAMaxMs = 100
	}
	if c.Thresholds.SlopeMinMsPerS == 0 {
		c.Thresholds.SlopeMinMsPerS = 5
	}
	if c.Thresholds.Hold == 0 {
		c.Thresholds.Hold = 3 * time.Second
	}
	if c.Thresholds.CPUMax == 0 {
		c.Thresholds.CPUMax = 0.85
	}
	if c.Thresholds.BufferMaxPct == 0 {
		c.Thresholds.BufferMaxPct = 0.8
	}
	if c.Alpha == 0 {
		c.Alpha = telemetry.DefaultAlpha
	}
	if c.WindowSize == 0 {
		c.WindowSize = telemetry.DefaultWindowSize
	}
	if c.HoldRecovery == 0 {
		c.HoldRecovery = 20 * time.Second
	}
	if c.Stability == 0 {
		c.Stability = 15 * time.Second
	}
	if c.TransitionDuration == 0 {
		c.TransitionDuration = 7 * time.Second
	}
	if c.RevertSteps == 0 {
		c.RevertSteps = 5
	}
	if c.DisjointK == 0 {
		c.DisjointK = 3
	}
	if c.FailoverMode == "" {
		c.FailoverMode = ModePredictive
	}
	if c.Primary == "" {
		c.Primary = "edge"
	}
	return c
}

// PathMetrics tracks one registered path. Paths hold node ids only; the
// topology store owns the node and link records.
type PathMetrics struct {
	ID               int
	Nodes            []int
	Window           *telemetry.Window
	Load             float64 // percentage in [0,100]
	Status           model.PathState
	LastFailureTime  time.Time
	LastRecoveryTime time.Time
}

// Controller owns the shared mutable state: the path registry, aggregate
// telemetry, node health and the trigger debounce. All mutation happens
// under a single mutex; decisions are computed under lock and I/O (sleeps,
// downstream calls) happens outside it.
type Controller struct {
	mu     sync.Mutex
	cfg    Config
	graph  *topology.Graph
	sink   telemetry.Sink
	logger *slog.Logger

	aggregate  *telemetry.Window
	paths      map[int]*PathMetrics
	optimal    map[int]float64
	nodeHealth map[string]model.NodeHealth

	triggerStart       time.Time // zero when the drift predicate is false
	impactedBatch      time.Time // first batch observed after the trigger armed
	failoverInProgress bool

	mode    string
	primary string

	activePath []int // physical routing only
	backupPath []int

	now   func() time.Time
	sleep func(time.Duration)
	rng   *rand.Rand
}

// Option customises a Controller, mainly for deterministic tests
type Option func(*Controller)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithSleep overrides the spin-up sleeper
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Controller) { c.sleep = sleep }
}

// WithRand overrides the random source
func WithRand(rng *rand.Rand) Option {
	return func(c *Controller) { c.rng = rng }
}

// New creates a controller over the given topology
func New(graph *topology.Graph, sink telemetry.Sink, cfg Config, logger *slog.Logger, opts ...Option) *Controller {
	cfg = cfg.withDefaults()

	c := &Controller{
		cfg:        cfg,
		graph:      graph,
		sink:       sink,
		logger:     logger,
		aggregate:  telemetry.NewWindow(cfg.WindowSize, cfg.Alpha),
		paths:      make(map[int]*PathMetrics),
		optimal:    make(map[int]float64),
		nodeHealth: make(map[string]model.NodeHealth),
		mode:       cfg.FailoverMode,
		primary:    cfg.Primary,
		now:        time.Now,
		sleep:      time.Sleep,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterPath places a path in the registry in healthy state with the
// given initial load. The initial load is recorded as the path's optimal
// distribution entry. Re-registering an id overwrites cleanly.
func (c *Controller) RegisterPath(id int, nodes []int, initialLoad float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nodesCopy := make([]int, len(nodes))
	copy(nodesCopy, nodes)

	c.paths[id] = &PathMetrics{
		ID:     id,
		Nodes:  nodesCopy,
		Window: telemetry.NewWindow(c.cfg.WindowSize, c.cfg.Alpha),
		Load:   initialLoad,
		Status: model.PathHealthy,
	}
	c.optimal[id] = initialLoad

	c.logger.Info("path registered",
		slog.Int("path_id", id),
		slog.String("path", topology.PathString(nodesCopy)),
		slog.Float64("initial_load", initialLoad),
	)
}

// ObserveLatency records a batch latency into the aggregate window and,
// when the path is registered, its per-path window. Updates are observed
// in arrival order per path.
func (c *Controller) ObserveLatency(pathID int, ts time.Time, latencyMs float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.aggregate.Observe(ts, latencyMs)
	if p, ok := c.paths[pathID]; ok {
		p.Window.Observe(ts, latencyMs)
	}
}

// UpdateNodeHealth stores a downstream node's resource report
func (c *Controller) UpdateNodeHealth(node string, h model.NodeHealth) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nodeHealth[node] = h
}

// PathChoice is one candidate in a ranked, load-weighted selection set
type PathChoice struct {
	ID    int
	Nodes []int
	Load  float64
}

// SelectPaths returns up to topK registered paths sorted by topology
// score descending, each carrying its current load percentage. The
// dispatcher samples from this set by load weight.
func (c *Controller) SelectPaths(topK int) []PathChoice {
	c.mu.Lock()
	choices := make([]PathChoice, 0, len(c.paths))
	for _, p := range c.paths {
		nodes := make([]int, len(p.Nodes))
		copy(nodes, p.Nodes)
		choices = append(choices, PathChoice{ID: p.ID, Nodes: nodes, Load: p.Load})
	}
	c.mu.Unlock()

	scores := make(map[int]float64, len(choices))
	for _, ch := range choices {
		if s, err := c.graph.PathScore(ch.Nodes); err == nil {
			scores[ch.ID] = s
		}
	}
	sort.SliceStable(choices, func(i, j int) bool {
		return scores[choices[i].ID] > scores[choices[j].ID]
	})

	if topK > 0 && len(choices) > topK {
		choices = choices[:topK]
	}
	return choices
}

// SetPhysicalPaths configures the active and backup physical paths
func (c *Controller) SetPhysicalPaths(active, backup []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activePath = append([]int(nil), active...)
	c.backupPath = append([]int(nil), backup...)
}

// ActivePath returns the current physical forwarding path
func (c *Controller) ActivePath() []int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]int(nil), c.activePath...)
}

// SwapActiveBackup exchanges the active and backup physical paths
func (c *Controller) SwapActiveBackup() ([]int, []int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.activePath, c.backupPath = c.backupPath, c.activePath
	return append([]int(nil), c.activePath...), append([]int(nil), c.backupPath...)
}

// Mode returns the runtime failover mode
func (c *Controller) Mode() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mode
}

// SetMode updates the runtime failover mode
func (c *Controller) SetMode(mode string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != mode {
		c.logger.Info("failover mode changed",
			slog.String("old_mode", c.mode),
			slog.String("new_mode", mode),
		)
	}
	c.mode = mode
}

// Primary returns the runtime primary tier
func (c *Controller) Primary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.primary
}

// SetPrimary updates the runtime primary tier
func (c *Controller) SetPrimary(primary string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.primary != primary {
		c.logger.Info("primary tier changed",
			slog.String("old_primary", c.primary),
			slog.String("new_primary", primary),
		)
	}
	c.primary = primary
}

// Snapshot returns the read-endpoint view of the controller state
func (c *Controller) Snapshot() model.ControllerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := model.ControllerSnapshot{
		EWMA:       c.aggregate.EWMA(),
		Slope:      c.aggregate.Slope(),
		WindowSize: c.aggregate.Size(),
		Thresholds: c.cfg.Thresholds,
		NodeHealth: make(map[string]model.NodeHealth, len(c.nodeHealth)),
		Paths:      make([]model.PathSnapshot, 0, len(c.paths)),
		ActivePath: topology.PathString(c.activePath),
		BackupPath: topology.PathString(c.backupPath),
		Mode:       c.mode,
	}
	for name, h := range c.nodeHealth {
		snap.NodeHealth[name] = h
	}
	for _, p := range c.paths {
		nodes := make([]int, len(p.Nodes))
		copy(nodes, p.Nodes)
		snap.Paths = append(snap.Paths, model.PathSnapshot{
			ID:               p.ID,
			Nodes:            nodes,
			EWMA:             p.Window.EWMA(),
			Slope:            p.Window.Slope(),
			LoadPercentage:   p.Load,
			Status:           p.Status,
			LastFailureTime:  p.LastFailureTime,
			LastRecoveryTime: p.LastRecoveryTime,
		})
	}
	sort.Slice(snap.Paths, func(i, j int) bool { return snap.Paths[i].ID < snap.Paths[j].ID })
	return snap
}

// Distribution returns the current load split across registered paths
func (c *Controller) Distribution() map[int]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.distributionLocked()
}

func (c *Controller) distributionLocked() map[int]float64 {
	out := make(map[int]float64, len(c.paths))
	for id, p := range c.paths {
		out[id] = p.Load
	}
	return out
}

// PathState returns the status of one registered path
func (c *Controller) PathState(id int) (model.PathState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.paths[id]
	if !ok {
		return "", false
	}
	return p.Status, true
}
