package runtime

import (
	"encoding/json"
	"fmt"
)

// FlowDefinition is the immutable, store-loaded description of a workflow.
// The engine treats it as read-only input; mutation during a request is a bug.
type FlowDefinition struct {
	Name    string            `json:"name"`
	Version int               `json:"version,omitempty"`
	Steps   []Step            `json:"steps"`
	Env     map[string]string `json:"env,omitempty"`     // session variable -> external env variable
	Imports []string          `json:"imports,omitempty"` // custom action package names
}

// FirstStep returns the entry step of the flow.
func (f *FlowDefinition) FirstStep() (*Step, error) {
	if len(f.Steps) == 0 {
		return nil, fmt.Errorf("flow %s has no steps", f.Name)
	}
	return &f.Steps[0], nil
}

// StepByID looks a step up by its id.
func (f *FlowDefinition) StepByID(id string) (*Step, bool) {
	for i := range f.Steps {
		if f.Steps[i].ID == id {
			return &f.Steps[i], true
		}
	}
	return nil, false
}

type Step struct {
	ID       string     `json:"id"`
	Message  string     `json:"message"`
	Buttons  []Button   `json:"buttons,omitempty"`
	Next     string     `json:"next,omitempty"`
	Capture  string     `json:"capture,omitempty"`
	Validate string     `json:"validate,omitempty"` // number | email | phone
	Branch   *Branch    `json:"condition,omitempty"`
	Actions  *ActionSet `json:"actions,omitempty"`
}

// Clone returns a deep copy of the step. beforeRender actions rewrite the
// copy so the definition itself stays pristine.
func (s *Step) Clone() *Step {
	c := *s
	if s.Buttons != nil {
		c.Buttons = make([]Button, len(s.Buttons))
		copy(c.Buttons, s.Buttons)
	}
	return &c
}

type Button struct {
	Text  string `json:"text"`
	Value string `json:"value"`
	Next  string `json:"next,omitempty"`
}

// Branch is a step's single conditional transition. Flow authors write it
// either with an explicit operator:
//
//	{"variable": "score", "operator": "greaterThan", "value": 5, "next": "high"}
//
// or in the operator-keyed shorthand:
//
//	{"variable": "score", "greaterThan": 5, "next": "high"}
type Branch struct {
	Variable string `json:"variable"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
	Next     string `json:"next"`
}

func (b *Branch) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if v, ok := raw["variable"].(string); ok {
		b.Variable = v
	}
	if v, ok := raw["next"].(string); ok {
		b.Next = v
	}
	if op, ok := raw["operator"].(string); ok {
		b.Operator = op
		b.Value = raw["value"]
		return nil
	}
	for k, v := range raw {
		switch k {
		case "variable", "next", "value":
			continue
		}
		if op, known := normalizeOperator(k); known {
			b.Operator = op
			b.Value = v
			return nil
		}
	}
	return fmt.Errorf("branch on %q has no comparator", b.Variable)
}

// Cond sets the variable for branch evaluation.
func (b *Branch) Cond() *Cond {
	return &Cond{Variable: b.Variable, Operator: b.Operator, Value: b.Value}
}

// ActionSet holds the three action slots of a step. Within each slot,
// entries run strictly in declared order; a later entry may observe
// variables written by an earlier one.
type ActionSet struct {
	Fetch        []FetchRef  `json:"fetch,omitempty"`
	BeforeRender []ActionRef `json:"beforeRender,omitempty"`
	AfterCapture []ActionRef `json:"afterCapture,omitempty"`
}

// FetchRef is a fetch-slot entry: the action's result is injected into the
// session variables under Var.
type FetchRef struct {
	Var string `json:"var"`
	ActionRef
}

// ActionRef is a single slot entry. It is declarative when Type names a
// registered action, and a legacy hook reference when Action names a
// function exported by the flow's hook module. Both modes coexist per entry;
// there is no flow-level switch.
type ActionRef struct {
	Type   string         `json:"type,omitempty"`
	Action string         `json:"action,omitempty"`
	Config map[string]any `json:"config,omitempty"`
	If     *Cond          `json:"if,omitempty"`
}

// IsLegacy reports whether the entry references a hook-module function.
func (a *ActionRef) IsLegacy() bool {
	return a.Type == "" && a.Action != ""
}

// Cond is a recursive boolean expression: exactly one of And/Or/Not or the
// leaf comparison fields is populated.
type Cond struct {
	And []Cond `json:"and,omitempty"`
	Or  []Cond `json:"or,omitempty"`
	Not *Cond  `json:"not,omitempty"`

	Variable string `json:"variable,omitempty"`
	Operator string `json:"operator,omitempty"`
	Value    any    `json:"value,omitempty"`
}
