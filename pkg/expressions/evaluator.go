package expressions

import (
	"fmt"
	"sync"

	"github.com/jmespath/go-jmespath"

	"github.com/LightningDocs/monthly-double-checker-v2/pkg/value"
)

// Evaluator wraps JMESPath expression evaluation over record payloads
type Evaluator struct {
	cache map[string]*jmespath.JMESPath
	mu    sync.RWMutex
}

// NewEvaluator creates a new expression evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]*jmespath.JMESPath),
	}
}

// Compile checks that an expression parses, caching it for later use
func (e *Evaluator) Compile(expression string) error {
	_, err := e.getOrCompile(expression)
	if err != nil {
		return fmt.Errorf("invalid expression %q: %w", expression, err)
	}
	return nil
}

// Evaluate evaluates a JMESPath expression against data
func (e *Evaluator) Evaluate(expression string, data value.Value) (value.Value, error) {
	compiled, err := e.getOrCompile(expression)
	if err != nil {
		return value.Null(), fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	result, err := compiled.Search(data.Interface())
	if err != nil {
		return value.Null(), fmt.Errorf("failed to evaluate expression %q: %w", expression, err)
	}

	out, err := value.FromInterface(result)
	if err != nil {
		return value.Null(), fmt.Errorf("failed to convert result of %q: %w", expression, err)
	}
	return out, nil
}

// EvaluateBool evaluates an expression and reports whether the result is truthy
func (e *Evaluator) EvaluateBool(expression string, data value.Value) (bool, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return false, err
	}
	return result.Truthy(), nil
}

// EvaluateString evaluates an expression and returns the result as a string
func (e *Evaluator) EvaluateString(expression string, data value.Value) (string, error) {
	result, err := e.Evaluate(expression, data)
	if err != nil {
		return "", err
	}

	if result.IsNull() {
		return "", nil
	}

	if str, ok := result.AsString(); ok {
		return str, nil
	}
	return fmt.Sprintf("%v", result.Interface()), nil
}

func (e *Evaluator) getOrCompile(expression string) (*jmespath.JMESPath, error) {
	e.mu.RLock()
	compiled, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	compiled, err := jmespath.Compile(expression)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[expression] = compiled
	e.mu.Unlock()

	return compiled, nil
}
