package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timeflux-go/timeflux/internal/appconfig"
	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/graph"
	"github.com/timeflux-go/timeflux/internal/node"
)

// emitOnce emits rows once on its output port, then goes quiet.
type emitOnce struct {
	node.Base
	rows [][]interface{}
	done bool
}

func (n *emitOnce) Update() error {
	if n.done {
		return nil
	}
	n.done = true
	n.Output("o").Set(n.rows, frame.SetOptions{Columns: []string{"a", "b"}})
	return nil
}

// addOne adds 1 to every numeric cell it receives.
type addOne struct {
	node.Base
}

func (n *addOne) Update() error {
	in := n.Input("i")
	if !in.Ready() {
		return nil
	}
	for _, row := range in.Data.Values {
		for i, v := range row {
			row[i] = v.(float64) + 1
		}
	}
	n.Output("o").Data = in.Data
	return nil
}

// recorder records whatever it last saw on its input.
type recorder struct {
	node.Base
	lastSeen [][]interface{}
}

func (n *recorder) Update() error {
	in := n.Input("i")
	if in.Ready() {
		n.lastSeen = in.Data.Values
	}
	return nil
}

// doubler doubles its input in place, to test copy-on-fanout isolation.
type doubler struct {
	node.Base
}

func (n *doubler) Update() error {
	in := n.Input("i")
	if !in.Ready() {
		return nil
	}
	for _, row := range in.Data.Values {
		for i, v := range row {
			row[i] = v.(float64) * 2
		}
	}
	n.Output("o").Data = in.Data
	return nil
}

func buildSteps(t *testing.T, nodeIDs []string, edges [][2]string) []graph.Step {
	t.Helper()
	nodeDescs := make([]appconfig.NodeDescriptor, len(nodeIDs))
	for i, id := range nodeIDs {
		nodeDescs[i] = appconfig.NodeDescriptor{ID: id}
	}
	edgeDescs := make([]appconfig.EdgeDescriptor, len(edges))
	for i, e := range edges {
		edgeDescs[i] = appconfig.EdgeDescriptor{Source: e[0], Target: e[1]}
	}
	g, err := graph.New(nodeDescs, edgeDescs)
	require.NoError(t, err)
	steps, err := g.Traverse()
	require.NoError(t, err)
	return steps
}

func TestNextRunsLinearChain(t *testing.T) {
	steps := buildSteps(t, []string{"A", "B", "C"}, [][2]string{{"A", "B"}, {"B", "C"}})

	a := &emitOnce{rows: [][]interface{}{{1.0, 2.0}, {3.0, 4.0}}}
	b := &addOne{}
	c := &recorder{}
	nodes := map[string]Node{"A": a, "B": b, "C": c}

	sched := New("g1", steps, nodes, 0, nil)
	require.NoError(t, sched.Next())

	require.Equal(t, [][]interface{}{{2.0, 3.0}, {4.0, 5.0}}, c.lastSeen)
}

func TestNextCopyOnFanoutIsolatesBranches(t *testing.T) {
	steps := buildSteps(t, []string{"A", "B", "C"}, [][2]string{{"A", "B"}, {"A", "C"}})

	a := &emitOnce{rows: [][]interface{}{{1.0}, {2.0}}}
	b := &doubler{}
	c := &recorder{}
	nodes := map[string]Node{"A": a, "B": b, "C": c}

	sched := New("g1", steps, nodes, 0, nil)
	require.NoError(t, sched.Next())

	require.Equal(t, [][]interface{}{{1.0}, {2.0}}, c.lastSeen, "C must see A's original, unmutated by B's doubling")
}

// emitNumbered emits one single-cell frame on "o" (aliased to "o_0") and
// another on "o_1".
type emitNumbered struct {
	node.Base
}

func (n *emitNumbered) Update() error {
	n.Bind("o", "o_0")
	n.Output("o").Set([][]interface{}{{1.0}}, frame.SetOptions{Columns: []string{"a"}})
	n.Output("o_1").Set([][]interface{}{{2.0}}, frame.SetOptions{Columns: []string{"a"}})
	return nil
}

func TestNextWildcardWiresNumberedPorts(t *testing.T) {
	steps := buildSteps(t, []string{"A", "B"}, [][2]string{{"A:*", "B"}})

	a := &emitNumbered{}
	b := &recorder{}
	nodes := map[string]Node{"A": a, "B": b}

	sched := New("g1", steps, nodes, 0, nil)
	require.NoError(t, sched.Next())

	require.True(t, b.Port("i").Ready(), `"o" lands on "i"`)
	require.True(t, b.Port("i_0").Ready(), `the "o_0" alias lands on "i_0"`)
	require.True(t, b.Port("i_1").Ready(), `"o_1" lands on "i_1"`)
	require.Equal(t, 2.0, b.Port("i_1").Data.Values[0][0])
}

type terminator struct {
	node.Base
	terminated bool
}

func (n *terminator) Update() error    { return nil }
func (n *terminator) Terminate() error { n.terminated = true; return nil }

func TestRunCallsTerminateOnInterrupt(t *testing.T) {
	steps := buildSteps(t, []string{"A"}, nil)
	a := &terminator{}
	nodes := map[string]Node{"A": a}

	sched := New("g1", steps, nodes, 0, nil)
	sched.Interrupt()
	err := sched.Run()

	require.ErrorIs(t, err, ErrInterrupted)
	require.True(t, a.terminated)
}
