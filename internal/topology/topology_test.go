package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGraph(t *testing.T) *Graph {
	t.Helper()

	nodes := []Node{
		{ID: 1, Tier: TierEdge, Quality: "high", PhysicalMap: "edge-1"},
		{ID: 2, Tier: TierEdge, Quality: "medium", PhysicalMap: "edge-2"},
		{ID: 9, Tier: TierCore, Quality: "high", PhysicalMap: "core-1"},
		{ID: 10, Tier: TierCore, Quality: "medium", PhysicalMap: "core-2"},
		{ID: 11, Tier: TierCore, Quality: "low", PhysicalMap: "core-3"},
		{ID: 19, Tier: TierCloud, Quality: "high", PhysicalMap: "cloud-1"},
		{ID: 20, Tier: TierCloud, Quality: "high", PhysicalMap: "cloud-1"},
		{ID: 21, Tier: TierCloud, Quality: "medium", PhysicalMap: "cloud-2"},
	}
	links := []Link{
		{U: 1, V: 9, BandwidthMbps: 100, DelayMs: 5, JitterMs: 1, LossRate: 0.001},
		{U: 1, V: 10, BandwidthMbps: 100, DelayMs: 6},
		{U: 1, V: 11, BandwidthMbps: 50, DelayMs: 7},
		{U: 2, V: 9, BandwidthMbps: 100, DelayMs: 4},
		{U: 9, V: 19, BandwidthMbps: 100, DelayMs: 5},
		{U: 9, V: 20, BandwidthMbps: 100, DelayMs: 5},
		{U: 10, V: 21, BandwidthMbps: 100, DelayMs: 6},
		{U: 11, V: 19, BandwidthMbps: 50, DelayMs: 8},
		{U: 11, V: 21, BandwidthMbps: 50, DelayMs: 8},
	}

	g, err := New(nodes, links)
	require.NoError(t, err)
	return g
}

func TestParse(t *testing.T) {
	raw := []byte(`{
		"nodes": [
			{"id": 1, "tier": "edge", "quality": "high", "physical_map": "n1", "cpu_ev_sec": 100},
			{"id": 9, "tier": "core", "quality": "high", "physical_map": "n2"},
			{"id": 19, "tier": "cloud", "quality": "high", "physical_map": "n3"}
		],
		"links": [
			{"u": 1, "v": 9, "bw_mbps": 100, "delay_ms": 5, "jitter_ms": 1, "loss_rate": 0.001},
			{"u": 9, "v": 19, "bw_mbps": 100, "delay_ms": 5}
		]
	}`)

	g, err := Parse(raw)
	require.NoError(t, err)

	n, err := g.Node(1)
	require.NoError(t, err)
	assert.Equal(t, TierEdge, n.Tier)
	assert.Equal(t, "n1", n.PhysicalMap)
	assert.Equal(t, 100.0, n.CPUEvSec)
	assert.Len(t, g.Links(), 2)
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		links []Link
	}{
		{
			name: "unknown tier",
			nodes: []Node{
				{ID: 1, Tier: "fog"},
			},
		},
		{
			name: "duplicate node id",
			nodes: []Node{
				{ID: 1, Tier: TierEdge},
				{ID: 1, Tier: TierCloud},
			},
		},
		{
			name: "link references unknown node",
			nodes: []Node{
				{ID: 1, Tier: TierEdge},
				{ID: 2, Tier: TierCloud},
			},
			links: []Link{
				{U: 1, V: 99, DelayMs: 1},
			},
		},
		{
			name: "no edge to cloud connectivity",
			nodes: []Node{
				{ID: 1, Tier: TierEdge},
				{ID: 2, Tier: TierCloud},
			},
		},
		{
			name: "empty descriptor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.nodes, tt.links)
			assert.Error(t, err)
		})
	}
}

func TestTierOrdering(t *testing.T) {
	assert.Equal(t, 0, TierEdge.Index())
	assert.Equal(t, 1, TierCore.Index())
	assert.Equal(t, 2, TierCloud.Index())
	assert.Equal(t, -1, Tier("fog").Index())
}

func TestPathString(t *testing.T) {
	assert.Equal(t, "1->9->19", PathString([]int{1, 9, 19}))
	assert.Equal(t, "", PathString(nil))
}

func TestSetNodeUtilization(t *testing.T) {
	g := testGraph(t)

	require.NoError(t, g.SetNodeUtilization(9, 0.5))
	n, err := g.Node(9)
	require.NoError(t, err)
	assert.Equal(t, 0.5, n.Utilization)

	// clamped to [0,1]
	require.NoError(t, g.SetNodeUtilization(9, 1.7))
	n, _ = g.Node(9)
	assert.Equal(t, 1.0, n.Utilization)

	assert.Error(t, g.SetNodeUtilization(99, 0.5))
}

func TestSetLinkUtilization(t *testing.T) {
	g := testGraph(t)

	require.NoError(t, g.SetLinkUtilization(1, 9, 0.4))

	// the update is observed from both directions
	links, err := g.PathLinks([]int{9, 1})
	require.NoError(t, err)
	assert.Equal(t, 0.4, links[0].Utilization)

	assert.Error(t, g.SetLinkUtilization(1, 19, 0.4))
}
