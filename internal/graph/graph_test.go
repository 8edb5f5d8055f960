package graph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timeflux-go/timeflux/internal/appconfig"
)

func nodes(ids ...string) []appconfig.NodeDescriptor {
	out := make([]appconfig.NodeDescriptor, len(ids))
	for i, id := range ids {
		out[i] = appconfig.NodeDescriptor{ID: id, Module: "nodes", Class: "Pass"}
	}
	return out
}

func edges(pairs ...[2]string) []appconfig.EdgeDescriptor {
	out := make([]appconfig.EdgeDescriptor, len(pairs))
	for i, p := range pairs {
		out[i] = appconfig.EdgeDescriptor{Source: p[0], Target: p[1]}
	}
	return out
}

func TestTraverseLinearChain(t *testing.T) {
	g, err := New(nodes("A", "B", "C"), edges([2]string{"A", "B"}, [2]string{"B", "C"}))
	require.NoError(t, err)

	steps, err := g.Traverse()
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Equal(t, "A", steps[0].NodeID)
	require.Equal(t, "B", steps[1].NodeID)
	require.Equal(t, "C", steps[2].NodeID)
	require.Empty(t, steps[0].Predecessors)
	require.Equal(t, []PredecessorEdge{{SrcNode: "A", SrcPort: "o", DstPort: "i", Copy: false}}, steps[1].Predecessors)
}

func TestTraverseFanOutAssignsCopyFlags(t *testing.T) {
	g, err := New(nodes("A", "B", "C"), edges([2]string{"A", "B"}, [2]string{"A", "C"}))
	require.NoError(t, err)

	steps, err := g.Traverse()
	require.NoError(t, err)

	byID := map[string]Step{}
	for _, s := range steps {
		byID[s.NodeID] = s
	}
	require.True(t, byID["B"].Predecessors[0].Copy, "earlier consumers clone before anyone can mutate")
	require.False(t, byID["C"].Predecessors[0].Copy, "the last consumer gets the reference")
}

func TestTraverseRejectsCycle(t *testing.T) {
	g, err := New(nodes("A", "B", "C"), edges([2]string{"A", "B"}, [2]string{"B", "C"}, [2]string{"C", "A"}))
	require.NoError(t, err)

	_, err = g.Traverse()
	require.Error(t, err)
	var notAcyclic *NotAcyclicError
	require.ErrorAs(t, err, &notAcyclic)
}

func TestNewRejectsDuplicateNodeID(t *testing.T) {
	_, err := New(nodes("A", "A"), nil)
	require.Error(t, err)
	var dup *DuplicateNodeError
	require.ErrorAs(t, err, &dup)
}

func TestNewRejectsUndefinedEndpoint(t *testing.T) {
	_, err := New(nodes("A"), edges([2]string{"A", "ghost"}))
	require.Error(t, err)
	var undef *UndefinedEndpointError
	require.ErrorAs(t, err, &undef)
}

func TestWildcardEndpoints(t *testing.T) {
	g, err := New(nodes("A", "B"), edges([2]string{"A:*", "B:*"}))
	require.NoError(t, err)
	steps, err := g.Traverse()
	require.NoError(t, err)
	require.Equal(t, "o*", steps[1].Predecessors[0].SrcPort)
	require.Equal(t, "i", steps[1].Predecessors[0].DstPort)
}

func TestEndpointExplicitPorts(t *testing.T) {
	g, err := New(nodes("A", "B"), edges([2]string{"A:o_custom", "B:i_custom"}))
	require.NoError(t, err)
	steps, err := g.Traverse()
	require.NoError(t, err)
	require.Equal(t, "o_custom", steps[1].Predecessors[0].SrcPort)
	require.Equal(t, "i_custom", steps[1].Predecessors[0].DstPort)
}
