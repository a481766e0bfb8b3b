package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeLatencyFault_RoundTrip(t *testing.T) {
	g := testGraph(t)

	before, err := g.LinkDelays(9)
	require.NoError(t, err)

	require.NoError(t, g.InjectNodeLatencyFault(9, 50))

	after, err := g.LinkDelays(9)
	require.NoError(t, err)
	for other, delay := range after {
		assert.InDelta(t, before[other]+50, delay, 1e-9, "link to %d", other)
	}

	require.NoError(t, g.RemoveNodeLatencyFault(9))

	restored, err := g.LinkDelays(9)
	require.NoError(t, err)
	assert.Equal(t, before, restored)
}

func TestNodeLatencyFault_Stacked(t *testing.T) {
	g := testGraph(t)

	before, err := g.LinkDelays(9)
	require.NoError(t, err)

	// a second injection stacks onto the first; removal restores the
	// original pre-fault snapshot, not the intermediate state
	require.NoError(t, g.InjectNodeLatencyFault(9, 30))
	require.NoError(t, g.InjectNodeLatencyFault(9, 20))

	after, err := g.LinkDelays(9)
	require.NoError(t, err)
	for other, delay := range after {
		assert.InDelta(t, before[other]+50, delay, 1e-9)
	}

	require.NoError(t, g.RemoveNodeLatencyFault(9))
	restored, err := g.LinkDelays(9)
	require.NoError(t, err)
	assert.Equal(t, before, restored)
}

func TestNodeLatencyFault_AffectsShortestPath(t *testing.T) {
	g := testGraph(t)

	assert.Equal(t, []int{1, 9, 19}, g.ShortestPath(1, 19, nil))

	// fault on node 9 makes the 11 route cheaper
	require.NoError(t, g.InjectNodeLatencyFault(9, 100))
	assert.Equal(t, []int{1, 11, 19}, g.ShortestPath(1, 19, nil))

	require.NoError(t, g.RemoveNodeLatencyFault(9))
	assert.Equal(t, []int{1, 9, 19}, g.ShortestPath(1, 19, nil))
}

func TestNodeLatencyFault_UnknownNode(t *testing.T) {
	g := testGraph(t)

	assert.Error(t, g.InjectNodeLatencyFault(99, 10))
	assert.Error(t, g.RemoveNodeLatencyFault(99))
	_, err := g.LinkDelays(99)
	assert.Error(t, err)
}

func TestRemoveFault_NoActiveFault(t *testing.T) {
	g := testGraph(t)

	before, err := g.LinkDelays(9)
	require.NoError(t, err)

	require.NoError(t, g.RemoveNodeLatencyFault(9))

	after, err := g.LinkDelays(9)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
