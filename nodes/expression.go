package nodes

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/timeflux-go/timeflux/internal/frame"
	"github.com/timeflux-go/timeflux/internal/node"
)

func init() {
	node.Default().Register("expression", "Eval", newExpressionEval)
}

// Expression evaluates a per-cell expr-lang/expr expression against each
// numeric value of its input, exposing the cell under evaluation as
// `value` in the expression environment. Compiles the expression once
// into a cached *vm.Program and runs it per cell, with `value` bound
// fresh through a new environment map on each call.
type Expression struct {
	node.Base
	code    string
	program *vm.Program
}

func newExpressionEval(params map[string]interface{}) (node.Instance, error) {
	code, _ := params["expression"].(string)
	if code == "" {
		return nil, fmt.Errorf("expression.Eval: params.expression is required")
	}
	program, err := expr.Compile(code, expr.Env(map[string]interface{}{"value": 0.0}))
	if err != nil {
		return nil, fmt.Errorf("expression.Eval: compile %q: %w", code, err)
	}
	return &Expression{code: code, program: program}, nil
}

func (e *Expression) Update() error {
	in := e.Port("i")
	out := e.Port("o")
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
			result, err := expr.Run(e.program, map[string]interface{}{"value": num})
			if err != nil {
				return fmt.Errorf("expression.Eval: evaluate %q: %w", e.code, err)
			}
			newRow[j] = result
		}
		rows[i] = newRow
	}
	out.Data = frame.NewSignal(rows, in.Data.Index, in.Data.Columns)
	out.Meta = in.Meta
	return nil
}
