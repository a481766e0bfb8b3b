package topology

import (
	"container/heap"
	"fmt"
	"math"
	"sort"

	"github.com/netwatchlab/failover-gateway/internal/model"
)

// pqItem is a Dijkstra frontier entry
type pqItem struct {
	node int
	dist float64
}

type priorityQueue []pqItem

func (q priorityQueue) Len() int           { return len(q) }
func (q priorityQueue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q priorityQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *priorityQueue) Push(x any)        { *q = append(*q, x.(pqItem)) }
func (q *priorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra from src to dst over current link delay.
// The exclusion set is honoured for intermediate hops only: src and dst
// are never excluded even if listed. Returns nil when no path exists.
func (g *Graph) ShortestPath(src, dst int, exclude map[int]bool) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.shortestPathLocked(src, dst, exclude)
}

func (g *Graph) shortestPathLocked(src, dst int, exclude map[int]bool) []int {
	if _, ok := g.nodes[src]; !ok {
		return nil
	}
	if _, ok := g.nodes[dst]; !ok {
		return nil
	}

	dist := map[int]float64{src: 0}
	prev := map[int]int{}
	done := map[int]bool{}

	pq := &priorityQueue{{node: src, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if done[cur.node] {
			continue
		}
		done[cur.node] = true
		if cur.node == dst {
			break
		}

		for _, l := range g.adj[cur.node] {
			next := l.Other(cur.node)
			if done[next] {
				continue
			}
			// exclusions apply to intermediates only
			if exclude[next] && next != src && next != dst {
				continue
			}
			alt := cur.dist + l.DelayMs
			if d, seen := dist[next]; !seen || alt < d {
				dist[next] = alt
				prev[next] = cur.node
				heap.Push(pq, pqItem{node: next, dist: alt})
			}
		}
	}

	if !done[dst] {
		return nil
	}

	path := []int{dst}
	for path[len(path)-1] != src {
		path = append(path, prev[path[len(path)-1]])
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// DisjointPaths computes up to k paths from src to dst whose intermediate
// nodes are pairwise disjoint (src and dst may be shared). Each iteration
// re-runs Dijkstra with all previously used intermediates excluded; this
// trades optimality for robustness compared to a full Yen's algorithm.
func (g *Graph) DisjointPaths(src, dst, k int, exclude map[int]bool) [][]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	used := make(map[int]bool, len(exclude))
	for id := range exclude {
		used[id] = true
	}

	paths := make([][]int, 0, k)
	for i := 0; i < k; i++ {
		p := g.shortestPathLocked(src, dst, used)
		if p == nil {
			break
		}
		paths = append(paths, p)
		for _, id := range p[1 : len(p)-1] {
			used[id] = true
		}
	}
	return paths
}

// PathLatency sums current link delay along the path
func (g *Graph) PathLatency(path []int) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.pathLatencyLocked(path)
}

func (g *Graph) pathLatencyLocked(path []int) (float64, error) {
	if len(path) < 2 {
		return 0, fmt.Errorf("%w: path too short", model.ErrNoPathAvailable)
	}
	total := 0.0
	for i := 0; i < len(path)-1; i++ {
		l := g.linkBetween(path[i], path[i+1])
		if l == nil {
			return 0, fmt.Errorf("%w: no link %d-%d", model.ErrNoPathAvailable, path[i], path[i+1])
		}
		total += l.DelayMs
	}
	return total, nil
}

// PathCapacity returns the bottleneck residual bandwidth along the path:
// the minimum of bandwidth*(1-utilisation) across links, in Mbps
func (g *Graph) PathCapacity(path []int) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(path) < 2 {
		return 0, fmt.Errorf("%w: path too short", model.ErrNoPathAvailable)
	}
	min := math.Inf(1)
	for i := 0; i < len(path)-1; i++ {
		l := g.linkBetween(path[i], path[i+1])
		if l == nil {
			return 0, fmt.Errorf("%w: no link %d-%d", model.ErrNoPathAvailable, path[i], path[i+1])
		}
		if residual := l.BandwidthMbps * (1 - l.Utilization); residual < min {
			min = residual
		}
	}
	return min, nil
}

// PathScore computes the composite path quality score; higher is better.
// Combines inverse latency, bottleneck capacity, hop count and average
// link utilisation.
func (g *Graph) PathScore(path []int) (float64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(path) < 2 {
		return 0, fmt.Errorf("%w: path too short", model.ErrNoPathAvailable)
	}

	latency := 0.0
	minResidual := math.Inf(1)
	utilSum := 0.0
	hops := len(path) - 1

	for i := 0; i < hops; i++ {
		l := g.linkBetween(path[i], path[i+1])
		if l == nil {
			return 0, fmt.Errorf("%w: no link %d-%d", model.ErrNoPathAvailable, path[i], path[i+1])
		}
		latency += l.DelayMs
		utilSum += l.Utilization
		if residual := l.BandwidthMbps * (1 - l.Utilization); residual < minResidual {
			minResidual = residual
		}
	}

	score := 0.0
	if latency > 0 {
		score += 1000 / latency
	}
	score += 10 * minResidual
	score += 100 / float64(hops)
	score += 100 * (1 - utilSum/float64(hops))
	return score, nil
}

// IsValidPath reports whether the node tiers along the path form a
// non-decreasing sequence starting at edge and ending at cloud
func (g *Graph) IsValidPath(path []int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if len(path) < 2 {
		return false
	}

	prevIdx := -1
	for i, id := range path {
		n, ok := g.nodes[id]
		if !ok {
			return false
		}
		idx := n.Tier.Index()
		if i == 0 && n.Tier != TierEdge {
			return false
		}
		if i == len(path)-1 && n.Tier != TierCloud {
			return false
		}
		if idx < prevIdx {
			return false
		}
		prevIdx = idx
	}
	return true
}

// RankPaths sorts the given paths by score descending, dropping any path
// that fails tier validation
func (g *Graph) RankPaths(paths [][]int) [][]int {
	type scored struct {
		path  []int
		score float64
	}

	ranked := make([]scored, 0, len(paths))
	for _, p := range paths {
		if !g.IsValidPath(p) {
			continue
		}
		s, err := g.PathScore(p)
		if err != nil {
			continue
		}
		ranked = append(ranked, scored{path: p, score: s})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([][]int, len(ranked))
	for i, r := range ranked {
		out[i] = r.path
	}
	return out
}
