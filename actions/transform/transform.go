// Package transform provides the generic data built-ins: numeric
// aggregation, concatenation and template formatting over
// already-interpolated values.
package transform

import (
	"context"
	"fmt"
	"strings"

	"github.com/convoflow/convoflow/runtime"
)

// AggregateConfig is the schema shared by data.sum/average/min/max.
type AggregateConfig struct {
	Values []any `json:"values" validate:"required,min=1"`
}

// ConcatConfig is the schema of data.concat.
type ConcatConfig struct {
	Values    []any  `json:"values" validate:"required,min=1"`
	Separator string `json:"separator" default:", "`
}

// FormatConfig is the schema of data.format. Template placeholders use
// {name} keys resolved from the fields map.
type FormatConfig struct {
	Template string         `json:"template" validate:"required"`
	Fields   map[string]any `json:"fields"`
}

// Definitions returns the data.* registry entries.
func Definitions() []runtime.ActionDefinition {
	return []runtime.ActionDefinition{
		aggregate("data.sum", sum),
		aggregate("data.average", average),
		aggregate("data.min", minOf),
		aggregate("data.max", maxOf),
		{
			Name:      "data.concat",
			NewConfig: func() any { return &ConcatConfig{} },
			Run:       concat,
		},
		{
			Name:      "data.format",
			NewConfig: func() any { return &FormatConfig{} },
			Run:       format,
		},
	}
}

func aggregate(name string, fn func([]float64) float64) runtime.ActionDefinition {
	return runtime.ActionDefinition{
		Name:      name,
		NewConfig: func() any { return &AggregateConfig{} },
		Run: func(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
			input := cfg.(*AggregateConfig)
			numbers, err := Numbers(input.Values)
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": fn(numbers), "count": len(numbers)}, nil
		},
	}
}

// Numbers converts a value list to floats, rejecting non-numeric entries.
func Numbers(values []any) ([]float64, error) {
	out := make([]float64, 0, len(values))
	for i, v := range values {
		f, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("value %d is not numeric: %v", i, v)
		}
		out = append(out, f)
	}
	return out, nil
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func average(values []float64) float64 {
	return sum(values) / float64(len(values))
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func concat(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*ConcatConfig)
	parts := make([]string, len(input.Values))
	for i, v := range input.Values {
		parts[i] = fmt.Sprintf("%v", v)
	}
	return map[string]any{"result": strings.Join(parts, input.Separator)}, nil
}

func format(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*FormatConfig)
	out := input.Template
	for key, value := range input.Fields {
		out = strings.ReplaceAll(out, "{"+key+"}", fmt.Sprintf("%v", value))
	}
	return map[string]any{"result": out}, nil
}
