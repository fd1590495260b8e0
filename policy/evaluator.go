package policy

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator defines the interface for evaluating rule expressions.
type Evaluator interface {
	Evaluate(expression string, env map[string]interface{}) (bool, error)
}

// ExprEvaluator is an implementation of Evaluator using expr-lang/expr.
// Compiled programs are cached per expression.
type ExprEvaluator struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// NewExprEvaluator creates a new ExprEvaluator with an initialized cache.
func NewExprEvaluator() *ExprEvaluator {
	return &ExprEvaluator{cache: make(map[string]*vm.Program)}
}

// Evaluate evaluates the given expression against the provided environment.
// The expression must evaluate to a boolean; otherwise, an error is returned.
func (e *ExprEvaluator) Evaluate(expression string, env map[string]interface{}) (bool, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if !ok {
		e.mu.Lock()
		if program, ok = e.cache[expression]; !ok {
			var err error
			program, err = expr.Compile(expression, expr.Env(env))
			if err != nil {
				e.mu.Unlock()
				return false, err
			}
			e.cache[expression] = program
		}
		e.mu.Unlock()
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	if boolResult, ok := result.(bool); ok {
		return boolResult, nil
	}
	return false, fmt.Errorf("expression '%s' did not evaluate to a boolean, got %T", expression, result)
}
