package branch

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timeflux-go/timeflux/internal/appconfig"
	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/node"
)

type echo struct {
	node.Base
}

func (e *echo) Update() error {
	e.Port("o").Data = e.Port("i").Data
	return nil
}

func TestBranchNextDrivesSubGraph(t *testing.T) {
	registry := node.NewRegistry()
	registry.Register("demo", "Echo", func(params map[string]interface{}) (node.Instance, error) {
		return &echo{}, nil
	})
	desc := appconfig.GraphDescriptor{
		Rate: 10, // forced to 0 inside New regardless
		Nodes: []appconfig.NodeDescriptor{
			{ID: "e", Module: "demo", Class: "Echo"},
		},
	}

	b, err := New("helper", desc, registry, nil)
	require.NoError(t, err)

	in, err := b.Input("e", "i")
	require.NoError(t, err)
	in.Set([][]interface{}{{1.0}}, frame.SetOptions{})

	require.NoError(t, b.Next())

	out, err := b.Output("e", "o")
	require.NoError(t, err)
	require.NotNil(t, out.Data)
	require.Equal(t, 1, out.Data.Len())

	require.NoError(t, b.Terminate())
}

func TestBranchRejectsUnknownNode(t *testing.T) {
	registry := node.NewRegistry()
	b, err := New("helper", appconfig.GraphDescriptor{}, registry, nil)
	require.NoError(t, err)
	_, err = b.Input("ghost", "i")
	require.Error(t, err)
}
