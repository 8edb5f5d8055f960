package nodes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/graph"
	"github.com/timeflux-go/timeflux/internal/node"
	"github.com/timeflux-go/timeflux/internal/scheduler"
)

func newAddInst(t *testing.T, value float64) *Add {
	t.Helper()
	inst, err := newAdd(map[string]interface{}{"value": value})
	require.NoError(t, err)
	return inst.(*Add)
}

// doubler mutates its input in place, proving a downstream mutation never
// reaches a sibling branch fed from the same source port.
type doubler struct {
	node.Base
}

func (d *doubler) Update() error {
	in := d.Port("i")
	if !in.Ready() {
		return nil
	}
	for _, row := range in.Data.Values {
		for i, cell := range row {
			if num, ok := asFloat(cell); ok {
				row[i] = num * 2
			}
		}
	}
	d.Port("o").Data = in.Data
	return nil
}

type recorder struct {
	node.Base
}

func (r *recorder) Update() error { return nil }

func TestLinearChainAddsOne(t *testing.T) {
	// A -> B -> C; A emits [[1,2],[3,4]] once, B adds 1, C records it.
	replay, err := newReplayGenerator(map[string]interface{}{
		"rows":    []interface{}{[]interface{}{1.0, 2.0}, []interface{}{3.0, 4.0}},
		"columns": []interface{}{"c1", "c2"},
	})
	require.NoError(t, err)
	addB := newAddInst(t, 1)
	recC := &recorder{}

	steps := []graph.Step{
		{NodeID: "a"},
		{NodeID: "b", Predecessors: []graph.PredecessorEdge{{SrcNode: "a", SrcPort: "o", DstPort: "i", Copy: false}}},
		{NodeID: "c", Predecessors: []graph.PredecessorEdge{{SrcNode: "b", SrcPort: "o", DstPort: "i", Copy: false}}},
	}
	nodesByID := map[string]scheduler.Node{
		"a": replay.(scheduler.Node),
		"b": addB,
		"c": recC,
	}
	sched := scheduler.New("g", steps, nodesByID, 0, nil)

	require.NoError(t, sched.Next())

	got := recC.Port("i").Data
	require.Equal(t, 2, got.Len())
	require.Equal(t, []interface{}{2.0, 3.0}, got.Values[0])
	require.Equal(t, []interface{}{4.0, 5.0}, got.Values[1])
}

func TestFanOutCopyProtectsOriginal(t *testing.T) {
	// A -> B, A -> C; B doubles in place, C must see the untouched original.
	replay, err := newReplayGenerator(map[string]interface{}{
		"rows": []interface{}{[]interface{}{1.0, 2.0}},
	})
	require.NoError(t, err)
	dbl := &doubler{}
	rec := &recorder{}

	steps := []graph.Step{
		{NodeID: "a"},
		{NodeID: "b", Predecessors: []graph.PredecessorEdge{{SrcNode: "a", SrcPort: "o", DstPort: "i", Copy: true}}},
		{NodeID: "c", Predecessors: []graph.PredecessorEdge{{SrcNode: "a", SrcPort: "o", DstPort: "i", Copy: false}}},
	}
	nodesByID := map[string]scheduler.Node{
		"a": replay.(scheduler.Node),
		"b": dbl,
		"c": rec,
	}
	sched := scheduler.New("g", steps, nodesByID, 0, nil)

	require.NoError(t, sched.Next())

	require.Equal(t, []interface{}{2.0, 4.0}, dbl.Port("o").Data.Values[0])
	require.Equal(t, []interface{}{1.0, 2.0}, rec.Port("i").Data.Values[0], "C must see A's original, unmutated by B")
}

func TestReplayGeneratorSignalsInterruptAfterOneCycle(t *testing.T) {
	replay, err := newReplayGenerator(map[string]interface{}{
		"rows": []interface{}{[]interface{}{1.0}},
	})
	require.NoError(t, err)
	inst := replay.(scheduler.Node)

	require.NoError(t, inst.Update())
	err = inst.Update()
	require.Error(t, err)
}

func TestExpressionEvalDoublesValue(t *testing.T) {
	inst, err := newExpressionEval(map[string]interface{}{"expression": "value * 2"})
	require.NoError(t, err)
	e := inst.(*Expression)

	now := time.Now()
	e.Port("i").Data = frame.NewSignal([][]interface{}{{3.0}}, []time.Time{now}, []string{"c"})

	require.NoError(t, e.Update())
	require.Equal(t, 6.0, e.Port("o").Data.Values[0][0])
}

func TestRandomGeneratorEmitsConfiguredShape(t *testing.T) {
	inst, err := newRandomGenerator(map[string]interface{}{"rows": 3.0, "columns": []interface{}{"a", "b"}})
	require.NoError(t, err)
	g := inst.(*RandomGenerator)

	frame.SetCycleStart(time.Now())
	frame.SetRate(10)
	require.NoError(t, g.Update())

	require.Equal(t, 3, g.Port("o").Data.Len())
	require.Len(t, g.Port("o").Data.Columns, 2)
}
