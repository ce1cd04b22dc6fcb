package eval

import (
	"regexp"
	"strconv"
	"strings"
)

// comparisonRE matches LEFT OP RIGHT with the six supported operators. The
// two-character operators are listed first so <= and >= win over < and >.
var comparisonRE = regexp.MustCompile(`^\s*(.+?)\s*(==|!=|<=|>=|<|>)\s*(.+?)\s*$`)

// EvalBool evaluates an expression to a boolean. Comparisons evaluate both
// sides and compare numerically when both sides parse as numbers, by ordinal
// string comparison otherwise. A non-comparison expression is truthy iff it
// resolves to a non-null, non-empty-string, non-false value.
func (c *Context) EvalBool(expr string) (bool, error) {
	if m := comparisonRE.FindStringSubmatch(expr); m != nil {
		left, err := c.evalOperand(m[1])
		if err != nil {
			return false, err
		}
		right, err := c.evalOperand(m[3])
		if err != nil {
			return false, err
		}
		return compare(m[2], left, right), nil
	}
	value, err := c.evalOperand(expr)
	if err != nil {
		return false, err
	}
	return Truthy(value), nil
}

// evalOperand resolves an operand: expressions go through Resolve, anything
// else is a literal with surrounding quotes stripped.
func (c *Context) evalOperand(operand string) (any, error) {
	trimmed := strings.TrimSpace(operand)
	if IsExpression(trimmed) {
		return c.Resolve(trimmed)
	}
	return strings.Trim(trimmed, "'\""), nil
}

// compare applies op to two evaluated operands. Numeric comparison is used
// only when both sides parse as numbers.
func compare(op string, left, right any) bool {
	ls, rs := Stringify(left), Stringify(right)
	lf, lerr := strconv.ParseFloat(ls, 64)
	rf, rerr := strconv.ParseFloat(rs, 64)
	if lerr == nil && rerr == nil {
		switch op {
		case "==":
			return lf == rf
		case "!=":
			return lf != rf
		case "<":
			return lf < rf
		case "<=":
			return lf <= rf
		case ">":
			return lf > rf
		case ">=":
			return lf >= rf
		}
		return false
	}
	cmp := strings.Compare(ls, rs)
	switch op {
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	}
	return false
}

// Truthy reports the truthiness of a resolved value: non-null, non-empty
// string, non-false boolean. Numbers and structured values are truthy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}
