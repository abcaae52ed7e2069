// Package condition compiles and evaluates boolean gate expressions with expr-lang.
package condition

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Env is the environment visible to expressions.
//
//	context.enabled == "yes" && index < 3
type Env struct {
	Context map[string]any `expr:"context"`
	Agent   string         `expr:"agent"`
	Stage   string         `expr:"stage"`
	Item    string         `expr:"item"`
	Index   int            `expr:"index"`
}

var (
	mu    sync.Mutex
	cache = make(map[string]*vm.Program)
)

// Compile type-checks an expression against Env. Programs are cached by source.
func Compile(source string) (*vm.Program, error) {
	mu.Lock()
	defer mu.Unlock()

	if p, ok := cache[source]; ok {
		return p, nil
	}
	p, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", source, err)
	}
	cache[source] = p
	return p, nil
}

// Eval compiles (or reuses) and runs an expression.
func Eval(source string, env Env) (bool, error) {
	p, err := Compile(source)
	if err != nil {
		return false, err
	}
	if env.Context == nil {
		env.Context = map[string]any{}
	}
	out, err := expr.Run(p, env)
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", source, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("evaluate %q: expected bool, got %T", source, out)
	}
	return b, nil
}
