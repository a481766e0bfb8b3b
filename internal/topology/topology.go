package topology

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// Tier is the overlay layer a node belongs to
type Tier string

const (
	TierEdge  Tier = "edge"
	TierCore  Tier = "core"
	TierCloud Tier = "cloud"
)

// Index returns the tier's position in the edge<core<cloud order,
// or -1 for an unknown tier
func (t Tier) Index() int {
	switch t {
	case TierEdge:
		return 0
	case TierCore:
		return 1
	case TierCloud:
		return 2
	}
	return -1
}

// Node is a vertex in the overlay topology
type Node struct {
	ID          int     `json:"id"`
	Tier        Tier    `json:"tier"`
	Quality     string  `json:"quality"`
	PhysicalMap string  `json:"physical_map"`
	CPUEvSec    float64 `json:"cpu_ev_sec"`
	BufferSize  int     `json:"buffer_size"`
	Utilization float64 `json:"utilization"`
}

// Link is an undirected edge between two nodes. Both adjacency directions
// reference the same Link record so delay and utilisation updates are
// observed symmetrically.
type Link struct {
	U             int     `json:"u"`
	V             int     `json:"v"`
	BandwidthMbps float64 `json:"bw_mbps"`
	DelayMs       float64 `json:"delay_ms"`
	JitterMs      float64 `json:"jitter_ms"`
	LossRate      float64 `json:"loss_rate"`
	Utilization   float64 `json:"utilization"`

	// snapshot of DelayMs taken by the first latency fault touching this
	// link; nil when no fault is active
	faultBase *float64
}

// Other returns the endpoint opposite to the given node id
func (l *Link) Other(id int) int {
	if l.U == id {
		return l.V
	}
	return l.U
}

// descriptor mirrors the topology JSON file
type descriptor struct {
	Nodes []Node `json:"nodes"`
	Links []Link `json:"links"`
}

// Graph holds the overlay topology and answers path queries. The node and
// link sets are immutable after load; delay and utilisation fields mutate
// under the graph mutex.
type Graph struct {
	mu    sync.RWMutex
	nodes map[int]*Node
	links []*Link
	adj   map[int][]*Link
}

// Load reads a topology descriptor file and builds the graph
func Load(path string) (*Graph, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", model.ErrTopologyLoad, path, err)
	}
	return Parse(raw)
}

// Parse builds a graph from raw descriptor JSON and validates connectivity
func Parse(raw []byte) (*Graph, error) {
	var desc descriptor
	if err := json.Unmarshal(raw, &desc); err != nil {
		return nil, fmt.Errorf("%w: decode descriptor: %w", model.ErrTopologyLoad, err)
	}
	return New(desc.Nodes, desc.Links)
}

// New builds a graph from node and link sets
func New(nodes []Node, links []Link) (*Graph, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: descriptor has no nodes", model.ErrTopologyLoad)
	}

	g := &Graph{
		nodes: make(map[int]*Node, len(nodes)),
		links: make([]*Link, 0, len(links)),
		adj:   make(map[int][]*Link, len(nodes)),
	}

	for i := range nodes {
		n := nodes[i]
		if n.Tier.Index() < 0 {
			return nil, fmt.Errorf("%w: node %d has unknown tier %q", model.ErrTopologyLoad, n.ID, n.Tier)
		}
		if _, ok := g.nodes[n.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate node id %d", model.ErrTopologyLoad, n.ID)
		}
		g.nodes[n.ID] = &n
	}

	for i := range links {
		l := links[i]
		if _, ok := g.nodes[l.U]; !ok {
			return nil, fmt.Errorf("%w: link references unknown node %d", model.ErrTopologyLoad, l.U)
		}
		if _, ok := g.nodes[l.V]; !ok {
			return nil, fmt.Errorf("%w: link references unknown node %d", model.ErrTopologyLoad, l.V)
		}
		lp := &l
		g.links = append(g.links, lp)
		g.adj[l.U] = append(g.adj[l.U], lp)
		g.adj[l.V] = append(g.adj[l.V], lp)
	}

	if !g.edgeToCloudReachable() {
		return nil, fmt.Errorf("%w: no edge-to-cloud path exists", model.ErrTopologyLoad)
	}

	return g, nil
}

// edgeToCloudReachable reports whether any edge node can reach any cloud node
func (g *Graph) edgeToCloudReachable() bool {
	for _, src := range g.tierNodesLocked(TierEdge) {
		seen := map[int]bool{src: true}
		queue := []int{src}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			if g.nodes[cur].Tier == TierCloud {
				return true
			}
			for _, l := range g.adj[cur] {
				next := l.Other(cur)
				if !seen[next] {
					seen[next] = true
					queue = append(queue, next)
				}
			}
		}
	}
	return false
}

// Node returns a copy of the node with the given id
func (g *Graph) Node(id int) (Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %d", model.ErrUnknownNode, id)
	}
	return *n, nil
}

// Nodes returns copies of all nodes sorted by id
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TierNodes returns the ids of all nodes in the given tier, sorted
func (g *Graph) TierNodes(t Tier) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.tierNodesLocked(t)
}

func (g *Graph) tierNodesLocked(t Tier) []int {
	out := make([]int, 0)
	for id, n := range g.nodes {
		if n.Tier == t {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// SetNodeUtilization updates a node's utilisation in [0,1]
func (g *Graph) SetNodeUtilization(id int, util float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %d", model.ErrUnknownNode, id)
	}
	n.Utilization = clamp01(util)
	return nil
}

// SetLinkUtilization updates the utilisation of the link joining u and v.
// Both adjacency directions observe the update since they share the link
// record.
func (g *Graph) SetLinkUtilization(u, v int, util float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	l := g.linkBetween(u, v)
	if l == nil {
		return fmt.Errorf("%w: no link %d-%d", model.ErrNoPathAvailable, u, v)
	}
	l.Utilization = clamp01(util)
	return nil
}

// linkBetween returns the link joining u and v, if any. Caller must hold
// the graph lock.
func (g *Graph) linkBetween(u, v int) *Link {
	for _, l := range g.adj[u] {
		if l.Other(u) == v {
			return l
		}
	}
	return nil
}

// PathString renders a node id sequence as "1->9->19"
func PathString(path []int) string {
	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, "->")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
