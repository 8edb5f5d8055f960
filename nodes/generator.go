// Package nodes is a small demonstrative built-in node catalog
// (generator, arithmetic, debug, expression) satisfying the node
// contract. The full catalog a production deployment would ship
// (filters, epoching, ML wrappers, file I/O, LSL, OSC) is out of scope;
// these four exist to exercise the engine end to end in tests and the
// example application under examples/.
package nodes

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/node"
)

func init() {
	node.Default().Register("generator", "Random", newRandomGenerator)
	node.Default().Register("generator", "Replay", newReplayGenerator)
}

// RandomGenerator emits a fixed-size frame of random values on "o" every
// cycle, the simplest possible source node — used to drive the examples
// and scheduler-level tests without any external data dependency.
type RandomGenerator struct {
	node.Base

	rows    int
	columns []string
	rng     *rand.Rand
}

func newRandomGenerator(params map[string]interface{}) (node.Instance, error) {
	rows := 1
	if v, ok := params["rows"].(float64); ok {
		rows = int(v)
	}
	columns := []string{"0"}
	if raw, ok := params["columns"].([]interface{}); ok && len(raw) > 0 {
		columns = make([]string, len(raw))
		for i, c := range raw {
			s, ok := c.(string)
			if !ok {
				return nil, fmt.Errorf("generator.Random: params.columns must be strings")
			}
			columns[i] = s
		}
	}
	if rows <= 0 {
		return nil, fmt.Errorf("generator.Random: params.rows must be positive")
	}
	seed := time.Now().UnixNano()
	if v, ok := params["seed"].(float64); ok {
		seed = int64(v)
	}
	return &RandomGenerator{rows: rows, columns: columns, rng: rand.New(rand.NewSource(seed))}, nil
}

func (g *RandomGenerator) Update() error {
	rows := make([][]interface{}, g.rows)
	for i := range rows {
		row := make([]interface{}, len(g.columns))
		for j := range row {
			row[j] = g.rng.Float64()
		}
		rows[i] = row
	}
	g.Port("o").Set(rows, frame.SetOptions{Columns: g.columns})
	return nil
}

// ReplayGenerator emits one pre-loaded frame once, then signals end of
// data via node.Interrupt: the node's own "stop me" request, the same
// way a file-backed replay node would report end-of-file. Rows are
// supplied once at construction time, matching a "load everything, then
// stream it out" shape without touching a real filesystem.
type ReplayGenerator struct {
	node.Base

	rows    [][]interface{}
	columns []string
	sent    bool
}

func newReplayGenerator(params map[string]interface{}) (node.Instance, error) {
	rawRows, _ := params["rows"].([]interface{})
	if len(rawRows) == 0 {
		return nil, fmt.Errorf("generator.Replay: params.rows must be a non-empty list of rows")
	}
	rows := make([][]interface{}, len(rawRows))
	for i, r := range rawRows {
		row, ok := r.([]interface{})
		if !ok {
			return nil, fmt.Errorf("generator.Replay: params.rows[%d] must be a list", i)
		}
		rows[i] = row
	}
	columns := make([]string, len(rows[0]))
	if raw, ok := params["columns"].([]interface{}); ok {
		for i, c := range raw {
			if s, ok := c.(string); ok {
				columns[i] = s
			}
		}
	} else {
		for i := range columns {
			columns[i] = fmt.Sprintf("%d", i)
		}
	}
	return &ReplayGenerator{rows: rows, columns: columns}, nil
}

func (g *ReplayGenerator) Update() error {
	if g.sent {
		return &node.Interrupt{Reason: "replay exhausted"}
	}
	g.Port("o").Set(g.rows, frame.SetOptions{Columns: g.columns})
	g.sent = true
	return nil
}
