package runtime

import (
	"fmt"
)

// CheckDefinition validates a flow definition's integrity: non-empty, unique
// step ids, every transition target resolvable, known validation kinds, and
// well-formed action slot entries. Run it at authoring time (store save,
// CLI validate) so definition-integrity errors never reach a live session.
func CheckDefinition(def *FlowDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("flow has no name")
	}
	if len(def.Steps) == 0 {
		return fmt.Errorf("flow %s has no steps", def.Name)
	}

	ids := make(map[string]bool, len(def.Steps))
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.ID == "" {
			return fmt.Errorf("flow %s: step %d has no id", def.Name, i)
		}
		if ids[step.ID] {
			return fmt.Errorf("flow %s: duplicate step id %q", def.Name, step.ID)
		}
		ids[step.ID] = true
	}

	for i := range def.Steps {
		step := &def.Steps[i]
		if err := checkStep(def, step, ids); err != nil {
			return err
		}
	}
	return nil
}

func checkStep(def *FlowDefinition, step *Step, ids map[string]bool) error {
	if step.Next != "" && !ids[step.Next] {
		return fmt.Errorf("flow %s: step %q references unknown next step %q", def.Name, step.ID, step.Next)
	}
	for _, b := range step.Buttons {
		if b.Next != "" && !ids[b.Next] {
			return fmt.Errorf("flow %s: step %q button %q references unknown next step %q",
				def.Name, step.ID, b.Value, b.Next)
		}
	}
	if step.Branch != nil {
		if step.Branch.Next == "" {
			return fmt.Errorf("flow %s: step %q condition has no next step", def.Name, step.ID)
		}
		if !ids[step.Branch.Next] {
			return fmt.Errorf("flow %s: step %q condition references unknown next step %q",
				def.Name, step.ID, step.Branch.Next)
		}
		if _, ok := normalizeOperator(step.Branch.Operator); !ok {
			return fmt.Errorf("flow %s: step %q condition has unknown operator %q",
				def.Name, step.ID, step.Branch.Operator)
		}
	}

	switch step.Validate {
	case "", "none", ValidateNumber, ValidateEmail, ValidatePhone:
	default:
		return fmt.Errorf("flow %s: step %q has unknown validation kind %q", def.Name, step.ID, step.Validate)
	}

	if step.Actions != nil {
		for _, f := range step.Actions.Fetch {
			if f.Var == "" {
				return fmt.Errorf("flow %s: step %q has a fetch action without a target variable", def.Name, step.ID)
			}
			if err := checkActionRef(def, step, &f.ActionRef); err != nil {
				return err
			}
		}
		for i := range step.Actions.BeforeRender {
			if err := checkActionRef(def, step, &step.Actions.BeforeRender[i]); err != nil {
				return err
			}
		}
		for i := range step.Actions.AfterCapture {
			if err := checkActionRef(def, step, &step.Actions.AfterCapture[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func checkActionRef(def *FlowDefinition, step *Step, ref *ActionRef) error {
	if ref.Type == "" && ref.Action == "" {
		return fmt.Errorf("flow %s: step %q has an action entry with neither type nor action", def.Name, step.ID)
	}
	if ref.Type != "" && ref.Action != "" {
		return fmt.Errorf("flow %s: step %q action entry sets both type and action", def.Name, step.ID)
	}
	return nil
}
