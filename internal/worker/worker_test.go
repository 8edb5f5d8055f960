package worker

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timeflux-go/timeflux/internal/appconfig"
	"github.com/timeflux-go/timeflux/internal/node"
)

type passThrough struct {
	node.Base
}

func (p *passThrough) Update() error { return nil }

func TestBuildRejectsUnknownModule(t *testing.T) {
	registry := node.NewRegistry()
	desc := appconfig.GraphDescriptor{
		Nodes: []appconfig.NodeDescriptor{{ID: "n1", Module: "ghost", Class: "Missing"}},
	}
	_, err := Build("g1", desc, registry, nil)
	var loadErr *node.LoadError
	require.ErrorAs(t, err, &loadErr)
	require.Equal(t, "n1", loadErr.NodeID)
}

func TestBuildConstructsAndTraverses(t *testing.T) {
	registry := node.NewRegistry()
	registry.Register("demo", "Pass", func(params map[string]interface{}) (node.Instance, error) {
		return &passThrough{}, nil
	})
	desc := appconfig.GraphDescriptor{
		Nodes: []appconfig.NodeDescriptor{
			{ID: "a", Module: "demo", Class: "Pass"},
			{ID: "b", Module: "demo", Class: "Pass"},
		},
		Edges: []appconfig.EdgeDescriptor{{Source: "a", Target: "b"}},
	}
	sched, err := Build("g1", desc, registry, nil)
	require.NoError(t, err)
	require.NotNil(t, sched)
	require.NoError(t, sched.Next())
}

func TestDescriptorFromEnvRejectsEmpty(t *testing.T) {
	_, err := DescriptorFromEnv("")
	require.Error(t, err)
}

func TestDescriptorFromEnvRoundTrips(t *testing.T) {
	desc, err := DescriptorFromEnv(`{"id":"g1","rate":10,"nodes":[{"id":"a","module":"demo","class":"Pass"}]}`)
	require.NoError(t, err)
	require.Equal(t, "g1", desc.ID)
	require.Equal(t, 10.0, desc.Rate)
	require.Len(t, desc.Nodes, 1)
}
