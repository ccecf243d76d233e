// Package buttons provides buttons.range, a beforeRender built-in that
// replaces a step's buttons with numeric ranges centered on the average of
// a historical value series.
package buttons

import (
	"context"
	"fmt"
	"math"

	"github.com/convoflow/convoflow/actions/transform"
	"github.com/convoflow/convoflow/runtime"
)

// RangeConfig is the schema of buttons.range. Values usually arrives via a
// fetch action that queried historical captures for the same variable.
type RangeConfig struct {
	Values []any   `json:"values" validate:"required,min=1"`
	Count  int     `json:"count" default:"4" validate:"gte=2,lte=8"`
	Width  float64 `json:"width" validate:"gte=0"`
	Label  string  `json:"label" default:"%g – %g"`
}

// Definitions returns the buttons.* registry entries.
func Definitions() []runtime.ActionDefinition {
	return []runtime.ActionDefinition{
		{
			Name:      "buttons.range",
			NewConfig: func() any { return &RangeConfig{} },
			Run:       generate,
		},
	}
}

func generate(ctx context.Context, cfg any, ec *runtime.ExecContext) (map[string]any, error) {
	input := cfg.(*RangeConfig)

	values, err := transform.Numbers(input.Values)
	if err != nil {
		return nil, err
	}

	avg := 0.0
	for _, v := range values {
		avg += v
	}
	avg /= float64(len(values))

	width := input.Width
	if width <= 0 {
		// Default bucket width spreads the buttons one bucket on either
		// side of the historical average.
		width = math.Max(1, math.Round(avg/float64(input.Count)))
	}

	start := avg - width*float64(input.Count)/2
	if start < 0 {
		start = 0
	}
	start = math.Floor(start)

	out := make([]any, 0, input.Count)
	for i := 0; i < input.Count; i++ {
		lo := start + width*float64(i)
		hi := lo + width
		mid := math.Round(lo + width/2)
		out = append(out, map[string]any{
			"text":  fmt.Sprintf(input.Label, lo, hi),
			"value": fmt.Sprintf("%g", mid),
		})
	}

	return map[string]any{"buttons": out, "result": avg}, nil
}
