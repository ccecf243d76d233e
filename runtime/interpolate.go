package runtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Jeffail/gabs/v2"
	"github.com/expr-lang/expr"
)

// InterpolationContext is the namespace tree visible to {{...}} placeholders.
type InterpolationContext struct {
	Variables map[string]any
	Env       map[string]any
	Session   map[string]any
}

func (c *InterpolationContext) toMap() map[string]any {
	return map[string]any{
		"variables": orEmpty(c.Variables),
		"env":       orEmpty(c.Env),
		"session":   orEmpty(c.Session),
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

var (
	placeholderRe     = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)
	solePlaceholderRe = regexp.MustCompile(`^\{\{\s*([^{}]+?)\s*\}\}$`)
	helperCallRe      = regexp.MustCompile(`^(\w+)\.(\w+)\((.*)\)$`)
	arithmeticRe      = regexp.MustCompile(`^[\w.]+\s*[-+*/]\s*[\w.]+$`)
)

// Interpolate resolves {{...}} placeholders in template against ctx. A
// template that is exactly one placeholder resolves to the underlying typed
// value; anything else is stringified. Unknown paths leave the placeholder
// text untouched, so interpolation never fails.
func Interpolate(template string, ctx *InterpolationContext) any {
	if m := solePlaceholderRe.FindStringSubmatch(strings.TrimSpace(template)); m != nil {
		if v, ok := resolvePlaceholder(m[1], ctx); ok {
			return v
		}
		return template
	}
	return InterpolateString(template, ctx)
}

// InterpolateString resolves placeholders and always returns a string.
func InterpolateString(template string, ctx *InterpolationContext) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		inner := strings.TrimSpace(match[2 : len(match)-2])
		if v, ok := resolvePlaceholder(inner, ctx); ok {
			return stringify(v)
		}
		return match
	})
}

// InterpolateConfig deep-copies a raw action configuration, interpolating
// every string leaf. Non-string leaves pass through unchanged.
func InterpolateConfig(cfg map[string]any, ctx *InterpolationContext) map[string]any {
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = interpolateValue(v, ctx)
	}
	return out
}

func interpolateValue(v any, ctx *InterpolationContext) any {
	switch val := v.(type) {
	case string:
		return Interpolate(val, ctx)
	case map[string]any:
		return InterpolateConfig(val, ctx)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, ctx)
		}
		return out
	default:
		return v
	}
}

func resolvePlaceholder(inner string, ctx *InterpolationContext) (any, bool) {
	env := ctx.toMap()

	if v, ok := resolveBuiltin(inner, env); ok {
		return v, true
	}

	// Dotted-path lookup over the context tree.
	container := gabs.Wrap(env)
	if container.ExistsP(inner) {
		return container.Path(inner).Data(), true
	}

	// Inline binary arithmetic over two already-resolved numeric paths,
	// e.g. {{variables.count + variables.extra}}.
	if arithmeticRe.MatchString(inner) {
		if v, ok := evalArithmetic(inner, env); ok {
			return v, true
		}
	}

	return nil, false
}

// evalArithmetic evaluates a two-operand expression when both operand paths
// resolve to numbers; everything else is treated as an unknown placeholder.
func evalArithmetic(expression string, env map[string]any) (any, bool) {
	parts := strings.FieldsFunc(expression, func(r rune) bool {
		return r == '+' || r == '-' || r == '*' || r == '/'
	})
	if len(parts) != 2 {
		return nil, false
	}
	for _, operand := range parts {
		operand = strings.TrimSpace(operand)
		if _, err := strconv.ParseFloat(operand, 64); err == nil {
			continue
		}
		node := gabs.Wrap(env)
		if !node.ExistsP(operand) {
			return nil, false
		}
		if _, ok := toNumber(node.Path(operand).Data()); !ok {
			return nil, false
		}
	}

	program, err := expr.Compile(expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, false
	}
	if n, ok := toNumber(out); ok {
		return n, true
	}
	return nil, false
}

// resolveBuiltin handles the helper namespaces: timestamp.*, string.* and
// math.*.
func resolveBuiltin(inner string, env map[string]any) (any, bool) {
	switch inner {
	case "timestamp.now":
		return time.Now().UTC().Format(time.RFC3339), true
	case "timestamp.today":
		return time.Now().UTC().Format("2006-01-02"), true
	}

	m := helperCallRe.FindStringSubmatch(inner)
	if m == nil {
		return nil, false
	}
	ns, fn, rawArgs := m[1], m[2], splitArgs(m[3])

	switch ns {
	case "timestamp":
		if fn == "daysAgo" && len(rawArgs) == 1 {
			if n, ok := resolveNumericArg(rawArgs[0], env); ok {
				return time.Now().UTC().AddDate(0, 0, -int(n)).Format("2006-01-02"), true
			}
		}
	case "string":
		if len(rawArgs) != 1 {
			return nil, false
		}
		s, ok := resolveStringArg(rawArgs[0], env)
		if !ok {
			return nil, false
		}
		switch fn {
		case "upper":
			return strings.ToUpper(s), true
		case "lower":
			return strings.ToLower(s), true
		case "trim":
			return strings.TrimSpace(s), true
		}
	case "math":
		if len(rawArgs) != 2 {
			return nil, false
		}
		a, aok := resolveNumericArg(rawArgs[0], env)
		b, bok := resolveNumericArg(rawArgs[1], env)
		if !aok || !bok {
			return nil, false
		}
		switch fn {
		case "add":
			return a + b, true
		case "sub":
			return a - b, true
		case "mul":
			return a * b, true
		case "div":
			if b == 0 {
				return nil, false
			}
			return a / b, true
		}
	}
	return nil, false
}

func splitArgs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func resolveNumericArg(arg string, env map[string]any) (float64, bool) {
	if f, err := strconv.ParseFloat(arg, 64); err == nil {
		return f, true
	}
	node := gabs.Wrap(env)
	if node.ExistsP(arg) {
		return toNumber(node.Path(arg).Data())
	}
	return 0, false
}

func resolveStringArg(arg string, env map[string]any) (string, bool) {
	if len(arg) >= 2 && (arg[0] == '\'' || arg[0] == '"') && arg[len(arg)-1] == arg[0] {
		return arg[1 : len(arg)-1], true
	}
	node := gabs.Wrap(env)
	if node.ExistsP(arg) {
		return stringify(node.Path(arg).Data()), true
	}
	return "", false
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}
