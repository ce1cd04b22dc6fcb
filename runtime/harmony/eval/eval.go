// Package eval implements the expression and template language used by
// harmony scripts: dot-path resolution over vars and input ($vars.a.b,
// $input.x), the $len and $map builtins, boolean comparisons, and
// {{path}} template rendering. Key lookup is case-insensitive at every
// nesting level.
package eval

import (
	"strings"

	"goa.design/harmony/runtime/harmony/caseless"
	"goa.design/harmony/runtime/harmony/harmonyerrors"
)

// Context holds the variable and input bags an expression resolves against.
// Both bags fold key case on lookup. The zero value is not usable; construct
// via NewContext.
type Context struct {
	vars  *caseless.Map[any]
	input *caseless.Map[any]
}

// NewContext builds a Context seeded with the given vars and input values.
func NewContext(vars, input map[string]any) *Context {
	return &Context{
		vars:  caseless.FromMap(vars),
		input: caseless.FromMap(input),
	}
}

// SetVar assigns a variable, folding key case.
func (c *Context) SetVar(name string, value any) {
	c.vars.Set(name, value)
}

// Var returns the variable stored under name, folding key case.
func (c *Context) Var(name string) (any, bool) {
	return c.vars.Get(name)
}

// Vars returns a snapshot of the variable bag keyed by original casings.
func (c *Context) Vars() map[string]any {
	return c.vars.Snapshot()
}

// Expression prefixes accepted by the syntactic guard.
var expressionPrefixes = []string{"$vars.", "$input.", "$len(", "$map("}

// ValidateSyntax enforces the syntactic guard applied to extract-input
// expressions and if conditions: the expression must begin with $vars.,
// $input., $len(, or $map(.
func ValidateSyntax(expr string) *harmonyerrors.Error {
	trimmed := strings.TrimSpace(expr)
	for _, prefix := range expressionPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return nil
		}
	}
	return harmonyerrors.New(harmonyerrors.CodeExecutionError, "Invalid expression syntax").
		WithDetail("expression", expr)
}

// IsExpression reports whether s would pass the syntactic guard. Used to
// distinguish expression arguments from verbatim values.
func IsExpression(s string) bool {
	return ValidateSyntax(s) == nil
}

// Resolve evaluates an expression against the context. Unresolvable paths
// yield nil without error; malformed builtin invocations fail.
func (c *Context) Resolve(expr string) (any, error) {
	trimmed := strings.TrimSpace(expr)
	switch {
	case strings.HasPrefix(trimmed, "$vars."):
		return resolvePath(c.vars.Snapshot(), strings.TrimPrefix(trimmed, "$vars.")), nil
	case strings.HasPrefix(trimmed, "$input."):
		return resolvePath(c.input.Snapshot(), strings.TrimPrefix(trimmed, "$input.")), nil
	case strings.HasPrefix(trimmed, "$len(") && strings.HasSuffix(trimmed, ")"):
		inner := trimmed[len("$len(") : len(trimmed)-1]
		value, err := c.Resolve(inner)
		if err != nil {
			return nil, err
		}
		return lengthOf(value), nil
	case strings.HasPrefix(trimmed, "$map(") && strings.HasSuffix(trimmed, ")"):
		return c.resolveMap(trimmed[len("$map(") : len(trimmed)-1])
	default:
		return nil, harmonyerrors.New(harmonyerrors.CodeExecutionError, "Invalid expression syntax").
			WithDetail("expression", expr)
	}
}

// resolveMap evaluates the body of a $map(expr,'prop') invocation.
func (c *Context) resolveMap(body string) (any, error) {
	comma := lastUnquotedComma(body)
	if comma < 0 {
		return nil, harmonyerrors.New(harmonyerrors.CodeExecutionError,
			"Invalid expression syntax").WithDetail("expression", "$map("+body+")")
	}
	source, err := c.Resolve(body[:comma])
	if err != nil {
		return nil, err
	}
	prop := strings.TrimSpace(body[comma+1:])
	prop = strings.Trim(prop, "'\"")
	items, ok := source.([]any)
	if !ok {
		return nil, nil
	}
	out := make([]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, lookupFold(obj, prop))
	}
	return out, nil
}

// lastUnquotedComma returns the index of the last comma outside single or
// double quotes, or -1. Keeps quoted property names intact in $map bodies.
func lastUnquotedComma(s string) int {
	var quote byte
	last := -1
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == ',':
			last = i
		}
	}
	return last
}

// resolvePath walks a dot path through nested mappings, folding key case at
// every level. A missing segment yields nil.
func resolvePath(root map[string]any, path string) any {
	var current any = root
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = lookupFold(obj, segment)
		if current == nil {
			return nil
		}
	}
	return current
}

// lookupFold returns obj[key] preferring an exact match, falling back to a
// case-folded scan.
func lookupFold(obj map[string]any, key string) any {
	if v, ok := obj[key]; ok {
		return v
	}
	for k, v := range obj {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// lengthOf implements $len: array length, string code-point count, mapping
// entry count, 0 otherwise.
func lengthOf(value any) int {
	switch v := value.(type) {
	case []any:
		return len(v)
	case string:
		return len([]rune(v))
	case map[string]any:
		return len(v)
	default:
		return 0
	}
}
