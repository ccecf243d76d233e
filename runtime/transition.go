package runtime

// TransitionResult is produced once per user input and never mutated after.
type TransitionResult struct {
	NextStepID string
	Variables  map[string]any
	Complete   bool
	Err        error
	Message    string
}

// Resolve determines where a step transitions to for the given raw input.
// In order: input validation, capture into a copy of the variable map, then
// next-step precedence: matching button with an explicit next, the step's
// conditional branch, the step-level default. No applicable rule means the
// flow is complete. The caller persists the returned variables; Resolve
// itself has no side effects.
func Resolve(def *FlowDefinition, step *Step, rawInput string, variables map[string]any) TransitionResult {
	vars := cloneVariables(variables)

	if err := ValidateInput(step.Validate, rawInput); err != nil {
		return TransitionResult{Variables: vars, Err: err, Message: userMessage(err)}
	}

	if step.Capture != "" {
		vars[step.Capture] = CoerceInput(step.Validate, rawInput)
	}

	next := nextStepID(step, rawInput, vars)
	if next == "" {
		return TransitionResult{Variables: vars, Complete: true}
	}
	if _, ok := def.StepByID(next); !ok {
		err := &StepNotFoundError{StepID: next, Flow: def.Name}
		return TransitionResult{Variables: vars, Err: err, Message: userMessage(err)}
	}
	return TransitionResult{NextStepID: next, Variables: vars}
}

func nextStepID(step *Step, rawInput string, vars map[string]any) string {
	for _, b := range step.Buttons {
		if b.Next != "" && b.Value == rawInput {
			return b.Next
		}
	}
	if step.Branch != nil && step.Branch.Next != "" && Evaluate(step.Branch.Cond(), vars) {
		return step.Branch.Next
	}
	return step.Next
}

func cloneVariables(variables map[string]any) map[string]any {
	vars := make(map[string]any, len(variables)+1)
	for k, v := range variables {
		vars[k] = v
	}
	return vars
}
