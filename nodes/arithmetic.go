package nodes

import (
	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/node"
)

func init() {
	node.Default().Register("arithmetic", "Add", newAdd)
}

// Add adds a fixed scalar to every numeric cell of its input, passing
// through the original index, columns and meta unchanged. It is the
// simplest possible transform node, useful for exercising a graph
// end to end.
type Add struct {
	node.Base
	value float64
}

func newAdd(params map[string]interface{}) (node.Instance, error) {
	value, _ := params["value"].(float64)
	return &Add{value: value}, nil
}

func (a *Add) Update() error {
	in := a.Port("i")
	out := a.Port("o")
	if !in.Ready() {
		return nil
	}
	rows := make([][]interface{}, in.Data.Len())
	for i, row := range in.Data.Values {
		newRow := make([]interface{}, len(row))
		for j, cell := range row {
			num, ok := asFloat(cell)
			if !ok {
				newRow[j] = cell
				continue
			}
			newRow[j] = num + a.value
		}
		rows[i] = newRow
	}
	out.Data = frame.NewSignal(rows, in.Data.Index, in.Data.Columns)
	out.Meta = in.Meta
	return nil
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
