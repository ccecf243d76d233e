package runtime

import (
	"testing"
)

func TestEvaluate_NilConditionIsTrue(t *testing.T) {
	if !Evaluate(nil, map[string]any{}) {
		t.Error("nil condition should evaluate to true")
	}
}

func TestEvaluate_Comparison(t *testing.T) {
	vars := map[string]any{
		"score":  8.0,
		"name":   "Ada",
		"email":  "ada@example.com",
		"active": true,
		"empty":  nil,
	}

	tests := []struct {
		name     string
		cond     Cond
		expected bool
	}{
		{
			name:     "equals string",
			cond:     Cond{Variable: "name", Operator: "equals", Value: "Ada"},
			expected: true,
		},
		{
			name:     "equals number across widths",
			cond:     Cond{Variable: "score", Operator: "equals", Value: 8},
			expected: true,
		},
		{
			name:     "equals no cross-type coercion",
			cond:     Cond{Variable: "score", Operator: "equals", Value: "8"},
			expected: false,
		},
		{
			name:     "notEquals",
			cond:     Cond{Variable: "name", Operator: "notEquals", Value: "Bob"},
			expected: true,
		},
		{
			name:     "greaterThan true",
			cond:     Cond{Variable: "score", Operator: "greaterThan", Value: 5},
			expected: true,
		},
		{
			name:     "greaterThan false",
			cond:     Cond{Variable: "score", Operator: "greaterThan", Value: 9},
			expected: false,
		},
		{
			name:     "greaterThanOrEqual boundary",
			cond:     Cond{Variable: "score", Operator: "greaterThanOrEqual", Value: 8},
			expected: true,
		},
		{
			name:     "lessThan alias lt",
			cond:     Cond{Variable: "score", Operator: "lt", Value: 10},
			expected: true,
		},
		{
			name:     "ordering rejects numeric strings",
			cond:     Cond{Variable: "name", Operator: "greaterThan", Value: 5},
			expected: false,
		},
		{
			name:     "ordering rejects string literal",
			cond:     Cond{Variable: "score", Operator: "greaterThan", Value: "5"},
			expected: false,
		},
		{
			name:     "contains",
			cond:     Cond{Variable: "email", Operator: "contains", Value: "@example"},
			expected: true,
		},
		{
			name:     "startsWith",
			cond:     Cond{Variable: "email", Operator: "startsWith", Value: "ada"},
			expected: true,
		},
		{
			name:     "endsWith",
			cond:     Cond{Variable: "email", Operator: "endsWith", Value: ".com"},
			expected: true,
		},
		{
			name:     "exists present",
			cond:     Cond{Variable: "score", Operator: "exists"},
			expected: true,
		},
		{
			name:     "exists absent",
			cond:     Cond{Variable: "missing", Operator: "exists"},
			expected: false,
		},
		{
			name:     "exists nil value",
			cond:     Cond{Variable: "empty", Operator: "exists"},
			expected: false,
		},
		{
			name:     "matches",
			cond:     Cond{Variable: "email", Operator: "matches", Value: `^[a-z]+@`},
			expected: true,
		},
		{
			name:     "matches invalid pattern is false",
			cond:     Cond{Variable: "email", Operator: "matches", Value: `([`},
			expected: false,
		},
		{
			name:     "matches alias regex",
			cond:     Cond{Variable: "name", Operator: "regex", Value: `^A`},
			expected: true,
		},
		{
			name:     "in with list literal",
			cond:     Cond{Variable: "name", Operator: "in", Value: []any{"Ada", "Bob"}},
			expected: true,
		},
		{
			name:     "in with scalar literal is false",
			cond:     Cond{Variable: "name", Operator: "in", Value: "Ada"},
			expected: false,
		},
		{
			name:     "in numeric membership",
			cond:     Cond{Variable: "score", Operator: "in", Value: []any{7, 8, 9}},
			expected: true,
		},
		{
			name:     "unknown operator is false",
			cond:     Cond{Variable: "score", Operator: "between", Value: 5},
			expected: false,
		},
		{
			name:     "absent variable is false",
			cond:     Cond{Variable: "missing", Operator: "equals", Value: "x"},
			expected: false,
		},
		{
			name:     "bool equality",
			cond:     Cond{Variable: "active", Operator: "eq", Value: true},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(&tt.cond, vars); got != tt.expected {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestEvaluate_CompositeTree(t *testing.T) {
	vars := map[string]any{"score": 8.0, "tier": "gold"}

	and := &Cond{And: []Cond{
		{Variable: "score", Operator: "greaterThan", Value: 5},
		{Variable: "tier", Operator: "equals", Value: "gold"},
	}}
	if !Evaluate(and, vars) {
		t.Error("and of two true comparisons should be true")
	}

	or := &Cond{Or: []Cond{
		{Variable: "score", Operator: "greaterThan", Value: 100},
		{Variable: "tier", Operator: "equals", Value: "gold"},
	}}
	if !Evaluate(or, vars) {
		t.Error("or with one true branch should be true")
	}

	not := &Cond{Not: &Cond{Variable: "tier", Operator: "equals", Value: "silver"}}
	if !Evaluate(not, vars) {
		t.Error("negated false comparison should be true")
	}

	nested := &Cond{And: []Cond{
		{Or: []Cond{
			{Variable: "score", Operator: "lessThan", Value: 0},
			{Variable: "score", Operator: "greaterThanOrEqual", Value: 8},
		}},
		{Not: &Cond{Variable: "tier", Operator: "equals", Value: "bronze"}},
	}}
	if !Evaluate(nested, vars) {
		t.Error("nested tree should evaluate to true")
	}
}

func TestNormalizeOperator_Aliases(t *testing.T) {
	tests := []struct {
		alias     string
		canonical string
	}{
		{"eq", OpEquals},
		{"EQ", OpEquals},
		{"ne", OpNotEquals},
		{"neq", OpNotEquals},
		{"gt", OpGreaterThan},
		{"gte", OpGreaterThanOrEqual},
		{"lt", OpLessThan},
		{"lte", OpLessThanOrEqual},
		{"GreaterThan", OpGreaterThan},
		{"regex", OpMatches},
	}
	for _, tt := range tests {
		got, ok := normalizeOperator(tt.alias)
		if !ok || got != tt.canonical {
			t.Errorf("normalizeOperator(%q) = %q, %v; want %q", tt.alias, got, ok, tt.canonical)
		}
	}

	if _, ok := normalizeOperator("between"); ok {
		t.Error("unknown operator should not normalize")
	}
}
