// Package integration exercises the manager/worker/scheduler stack
// end to end against real application files under examples/, using the
// built-in node catalog the same way cmd/timeflux does.
package integration

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timeflux-go/timeflux/internal/graph"
	"github.com/timeflux-go/timeflux/internal/manager"
	"github.com/timeflux-go/timeflux/internal/node"
	"github.com/timeflux-go/timeflux/internal/scheduler"
	"github.com/timeflux-go/timeflux/internal/worker"

	// Registers broker.Publisher and broker.Subscriber, which
	// examples/broker_pubsub.yaml resolves against.
	_ "github.com/timeflux-go/timeflux/internal/broker"
	_ "github.com/timeflux-go/timeflux/nodes"
)

func TestReplayAddDisplayRunsToCompletion(t *testing.T) {
	resolved, err := manager.Load("../../examples/replay_add_display.yaml")
	require.NoError(t, err)
	require.Len(t, resolved.Graphs, 1)

	g := resolved.Graphs[0]
	require.Equal(t, "main", g.ID)

	sched, err := worker.Build(g.ID, g, node.Default(), nil)
	require.NoError(t, err)

	err = sched.Run()
	require.ErrorIs(t, err, scheduler.ErrInterrupted)

	sink, ok := sched.Node("sink")
	require.True(t, ok)
	data := sink.Port("i").Data
	require.NotNil(t, data)
	require.Equal(t, []interface{}{22.0, 24.0}, data.Values[0])
	require.Equal(t, []interface{}{26.0, 28.0}, data.Values[1])
	require.Equal(t, []interface{}{30.0, 32.0}, data.Values[2])
}

func TestBrokerPubSubAppResolvesWithoutRunning(t *testing.T) {
	t.Setenv("TIMEFLUX_BROKER_INGRESS_PORT", "5570")
	t.Setenv("TIMEFLUX_BROKER_EGRESS_PORT", "5571")

	resolved, err := manager.Load("../../examples/broker_pubsub.yaml")
	require.NoError(t, err)
	require.Len(t, resolved.Graphs, 2)

	for _, g := range resolved.Graphs {
		_, err := worker.Build(g.ID, g, node.Default(), nil)
		require.NoErrorf(t, err, "graph %q failed to build", g.ID)
	}
}

func TestGraphCycleIsRejectedAtBuildTime(t *testing.T) {
	app, err := manager.LoadMapping(map[string]interface{}{
		"graphs": []interface{}{
			map[string]interface{}{
				"id":   "cyclic",
				"rate": 0,
				"nodes": []interface{}{
					map[string]interface{}{"id": "a", "module": "generator", "class": "Random", "params": map[string]interface{}{"rows": 1.0}},
					map[string]interface{}{"id": "b", "module": "arithmetic", "class": "Add", "params": map[string]interface{}{"value": 1.0}},
				},
				"edges": []interface{}{
					map[string]interface{}{"source": "a", "target": "b"},
					map[string]interface{}{"source": "b", "target": "a"},
				},
			},
		},
	})
	require.NoError(t, err)
	require.Len(t, app.Graphs, 1)

	_, err = worker.Build(app.Graphs[0].ID, app.Graphs[0], node.Default(), nil)
	require.Error(t, err)
	var notAcyclic *graph.NotAcyclicError
	require.ErrorAs(t, err, &notAcyclic)
}
