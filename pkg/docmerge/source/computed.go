package source

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator runs computed-field expressions. Compiled programs are cached,
// so one Evaluator can be shared across datasets and goroutines.
type Evaluator struct {
	cache sync.Map // cacheKey → compiled *vm.Program
}

// NewEvaluator creates a new expression evaluator backed by expr-lang/expr.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs expression against env.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, nil
	}
	program, err := e.compile(expression, env)
	if err != nil {
		return nil, fmt.Errorf("compile expression %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluate expression %q: %w", expression, err)
	}
	return result, nil
}

// compile checks expression against env, so record fields shadow builtins
// of the same name (count, date, first, ...). Programs are cached per
// expression and env shape.
func (e *Evaluator) compile(expression string, env map[string]any) (*vm.Program, error) {
	key := cacheKey(expression, env)
	if cached, ok := e.cache.Load(key); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	e.cache.Store(key, program)
	return program, nil
}

func cacheKey(expression string, env map[string]any) string {
	var sb strings.Builder
	sb.WriteString(expression)
	for _, k := range sortedKeys(env) {
		fmt.Fprintf(&sb, "\x00%s:%T", k, env[k])
	}
	return sb.String()
}

// computeInto evaluates computed fields in name order and stores their
// formatted results in target. The environment is base overlaid with target.
func (e *Evaluator) computeInto(target Record, base map[string]string, computed map[string]string) error {
	if len(computed) == 0 {
		return nil
	}
	env := make(map[string]any, len(base)+len(target)+len(computed))
	for k, v := range base {
		env[k] = typedValue(v)
	}
	for k, v := range target {
		env[k] = typedValue(v)
	}

	for _, name := range sortedKeys(computed) {
		result, err := e.Evaluate(computed[name], env)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		s := formatValue(result)
		target[name] = s
		env[name] = result
	}
	return nil
}

// typedValue exposes numbers and booleans to expressions with their natural
// types; everything else stays a string.
func typedValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return int(i)
	}
	if strings.ContainsAny(s, "0123456789") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	default:
		return fmt.Sprint(x)
	}
}
