package runtime

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Comparison operators after alias normalization.
const (
	OpEquals             = "equals"
	OpNotEquals          = "notEquals"
	OpGreaterThan        = "greaterThan"
	OpGreaterThanOrEqual = "greaterThanOrEqual"
	OpLessThan           = "lessThan"
	OpLessThanOrEqual    = "lessThanOrEqual"
	OpContains           = "contains"
	OpStartsWith         = "startsWith"
	OpEndsWith           = "endsWith"
	OpExists             = "exists"
	OpMatches            = "matches"
	OpIn                 = "in"
)

var operatorAliases = map[string]string{
	"equals":             OpEquals,
	"eq":                 OpEquals,
	"notequals":          OpNotEquals,
	"ne":                 OpNotEquals,
	"neq":                OpNotEquals,
	"greaterthan":        OpGreaterThan,
	"gt":                 OpGreaterThan,
	"greaterthanorequal": OpGreaterThanOrEqual,
	"gte":                OpGreaterThanOrEqual,
	"lessthan":           OpLessThan,
	"lt":                 OpLessThan,
	"lessthanorequal":    OpLessThanOrEqual,
	"lte":                OpLessThanOrEqual,
	"contains":           OpContains,
	"startswith":         OpStartsWith,
	"endswith":           OpEndsWith,
	"exists":             OpExists,
	"matches":            OpMatches,
	"regex":              OpMatches,
	"in":                 OpIn,
}

// normalizeOperator maps an operator name or alias to its canonical form.
func normalizeOperator(op string) (string, bool) {
	canonical, ok := operatorAliases[strings.ToLower(op)]
	return canonical, ok
}

// Evaluate walks a condition tree against the given variables. It is total:
// malformed nodes, unknown operators and type mismatches all evaluate to
// false rather than raising. A nil condition is vacuously true, so an
// unguarded action always runs.
func Evaluate(c *Cond, vars map[string]any) bool {
	if c == nil {
		return true
	}
	switch {
	case len(c.And) > 0:
		for i := range c.And {
			if !Evaluate(&c.And[i], vars) {
				return false
			}
		}
		return true
	case len(c.Or) > 0:
		for i := range c.Or {
			if Evaluate(&c.Or[i], vars) {
				return true
			}
		}
		return false
	case c.Not != nil:
		return !Evaluate(c.Not, vars)
	}
	return compare(c.Variable, c.Operator, c.Value, vars)
}

func compare(variable, operator string, literal any, vars map[string]any) bool {
	op, ok := normalizeOperator(operator)
	if !ok {
		return false
	}

	value, present := vars[variable]
	if op == OpExists {
		return present && value != nil
	}
	if !present {
		return false
	}

	switch op {
	case OpEquals:
		return strictEqual(value, literal)
	case OpNotEquals:
		return !strictEqual(value, literal)
	case OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		// Ordering requires both operands to already be numeric. Numeric
		// strings are deliberately not coerced; the asymmetry with the
		// equality operators is inherited behavior and kept as-is.
		a, aok := toNumber(value)
		b, bok := toNumber(literal)
		if !aok || !bok {
			return false
		}
		switch op {
		case OpGreaterThan:
			return a > b
		case OpGreaterThanOrEqual:
			return a >= b
		case OpLessThan:
			return a < b
		default:
			return a <= b
		}
	case OpContains:
		return strings.Contains(stringify(value), stringify(literal))
	case OpStartsWith:
		return strings.HasPrefix(stringify(value), stringify(literal))
	case OpEndsWith:
		return strings.HasSuffix(stringify(value), stringify(literal))
	case OpMatches:
		pattern, ok := literal.(string)
		if !ok {
			return false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	case OpIn:
		// The definition schema restricts the comparand to a scalar, which
		// cannot hold a list; a list can still arrive through interpolation.
		// Membership is evaluated only in that case, a scalar comparand is
		// simply false.
		items, ok := literal.([]any)
		if !ok {
			return false
		}
		for _, item := range items {
			if strictEqual(value, item) {
				return true
			}
		}
		return false
	}
	return false
}

// strictEqual compares without cross-type coercion: numbers of any width
// compare numerically, otherwise both sides must share a type.
func strictEqual(a, b any) bool {
	if an, ok := toNumber(a); ok {
		bn, bok := toNumber(b)
		return bok && an == bn
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

// toNumber reports a value's float64 form when it is genuinely numeric.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
