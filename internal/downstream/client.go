package downstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/netwatchlab/failover-gateway/internal/cache"
	"github.com/netwatchlab/failover-gateway/internal/config"
	"github.com/netwatchlab/failover-gateway/internal/model"
)

// Client talks to a single downstream tier server
type Client struct {
	name    string
	tier    string
	baseURL string
	http    *http.Client
}

// Name returns the node name
func (c *Client) Name() string { return c.name }

// Tier returns the node's tier label
func (c *Client) Tier() string { return c.tier }

// healthReport mirrors the downstream /health payload
type healthReport struct {
	CPU       float64 `json:"cpu"`
	BufferPct float64 `json:"buffer_pct"`
}

// Forward posts a batch of events to the node. A deadline exceeded is
// reported as ErrForwardingTimeout so the caller can convert it into a
// latency sample rather than an error response.
func (c *Client) Forward(ctx context.Context, events []model.Event) error {
	body, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var nerr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &nerr) && nerr.Timeout()) {
			return fmt.Errorf("%w: node %s", model.ErrForwardingTimeout, c.name)
		}
		return fmt.Errorf("forward to %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("forward to %s: status %d", c.name, resp.StatusCode)
	}
	return nil
}

// Health fetches the node's current resource report
func (c *Client) Health(ctx context.Context) (model.NodeHealth, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return model.NodeHealth{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.NodeHealth{}, fmt.Errorf("health check %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.NodeHealth{}, fmt.Errorf("health check %s: status %d", c.name, resp.StatusCode)
	}

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return model.NodeHealth{}, fmt.Errorf("decode health report from %s: %w", c.name, err)
	}

	return model.NodeHealth{
		CPU:        report.CPU,
		BufferPct:  report.BufferPct,
		ReportedAt: time.Now(),
	}, nil
}

// Set holds one client per configured downstream node
type Set struct {
	clients map[string]*Client
	byTier  map[string][]*Client
	cache   cache.Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewSet builds clients for every configured node. Every call, forward
// or health, is bounded by forwardTimeout; health calls additionally
// carry the per-call context deadline set by the poller.
func NewSet(nodes []config.DownstreamConfig, forwardTimeout, cacheTTL time.Duration, healthCache cache.Cache, logger *slog.Logger) (*Set, error) {
	if forwardTimeout <= 0 {
		forwardTimeout = 5 * time.Second
	}

	s := &Set{
		clients: make(map[string]*Client, len(nodes)),
		byTier:  make(map[string][]*Client),
		cache:   healthCache,
		ttl:     cacheTTL,
		logger:  logger,
	}

	for i, n := range nodes {
		if n.Name == "" || n.Address == "" {
			return nil, fmt.Errorf("downstream[%d]: name and address are required", i)
		}

		tlsCfg, err := loadTLSConfig(n.TLS)
		if err != nil {
			return nil, fmt.Errorf("downstream %s: %w", n.Name, err)
		}

		transport := http.DefaultTransport
		if tlsCfg != nil {
			transport = &http.Transport{TLSClientConfig: tlsCfg}
		}

		c := &Client{
			name:    n.Name,
			tier:    n.Tier,
			baseURL: n.Address,
			http: &http.Client{
				Timeout:   forwardTimeout,
				Transport: transport,
			},
		}
		s.clients[n.Name] = c
		s.byTier[n.Tier] = append(s.byTier[n.Tier], c)
	}
	return s, nil
}

// Client returns the client for the named node
func (s *Set) Client(name string) (*Client, bool) {
	c, ok := s.clients[name]
	return c, ok
}

// Names returns all configured node names, sorted
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.clients))
	for name := range s.clients {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByTier returns the clients in the given tier
func (s *Set) ByTier(tier string) []*Client {
	return s.byTier[tier]
}

// ForwardTo posts events to the named node
func (s *Set) ForwardTo(ctx context.Context, name string, events []model.Event) error {
	c, ok := s.clients[name]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrUnknownNode, name)
	}
	return c.Forward(ctx, events)
}

// Health returns the node's resource report, served from the TTL cache
// when a recent poll already fetched it
func (s *Set) Health(ctx context.Context, name string) (model.NodeHealth, error) {
	key := fmt.Sprintf("%s:health", name)
	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			if h, ok := cached.(model.NodeHealth); ok {
				return h, nil
			}
		}
	}

	c, ok := s.clients[name]
	if !ok {
		return model.NodeHealth{}, fmt.Errorf("%w: %s", model.ErrUnknownNode, name)
	}

	h, err := c.Health(ctx)
	if err != nil {
		return model.NodeHealth{}, err
	}

	if s.cache != nil {
		s.cache.Set(key, h, s.ttl)
	}
	return h, nil
}
