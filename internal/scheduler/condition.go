package scheduler

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/canectors/itemstore/pkg/itemstore"
)

// ErrInvalidCondition is returned when a stop condition does not compile.
var ErrInvalidCondition = errors.New("invalid stop condition")

// conditionEnv is the set of variables a stop condition can reference.
type conditionEnv struct {
	Items   any    `expr:"items"`
	Count   int    `expr:"count"`
	Loading bool   `expr:"loading"`
	Error   string `expr:"error"`
	Status  string `expr:"status"`
}

// Condition is a compiled boolean expression over the store state,
// e.g. `count >= 10` or `status == "error" && error contains "404"`.
type Condition struct {
	source  string
	program *vm.Program
}

// CompileCondition compiles expression. Unknown variables and non-boolean
// results are rejected at compile time.
func CompileCondition(expression string) (*Condition, error) {
	if expression == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidCondition)
	}
	program, err := expr.Compile(expression, expr.Env(conditionEnv{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCondition, err)
	}
	return &Condition{source: expression, program: program}, nil
}

// Eval evaluates the condition against a state snapshot.
func (c *Condition) Eval(state itemstore.State, status itemstore.Status) (bool, error) {
	count, _ := itemstore.ItemCount(state.Items)
	out, err := expr.Run(c.program, conditionEnv{
		Items:   state.Items,
		Count:   count,
		Loading: state.Loading,
		Error:   state.Error,
		Status:  string(status),
	})
	if err != nil {
		return false, err
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("condition returned %T, want bool", out)
	}
	return matched, nil
}

// String returns the source expression.
func (c *Condition) String() string {
	return c.source
}
