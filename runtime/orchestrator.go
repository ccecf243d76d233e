package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Orchestrator composes the engine: session lifecycle, action slots,
// transition resolution and rendering.
type Orchestrator struct {
	sessions  *SessionStore
	registry  *Registry
	executor  *ActionExecutor
	renderers *RendererRegistry
	services  *Services
	hooks     HookSource
	history   HistorySink
	l         *slog.Logger
}

// OrchestratorOption customizes optional collaborators.
type OrchestratorOption func(*Orchestrator)

// WithHookSource wires the legacy hook module loader.
func WithHookSource(src HookSource) OrchestratorOption {
	return func(o *Orchestrator) { o.hooks = src }
}

// WithHistorySink wires the completed-session history sink.
func WithHistorySink(sink HistorySink) OrchestratorOption {
	return func(o *Orchestrator) { o.history = sink }
}

// WithServices wires host integrations handed to action routines.
func WithServices(s *Services) OrchestratorOption {
	return func(o *Orchestrator) { o.services = s }
}

// WithRenderers replaces the renderer registry.
func WithRenderers(r *RendererRegistry) OrchestratorOption {
	return func(o *Orchestrator) { o.renderers = r }
}

func NewOrchestrator(sessions *SessionStore, registry *Registry, executor *ActionExecutor, l *slog.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		sessions:  sessions,
		registry:  registry,
		executor:  executor,
		renderers: NewRendererRegistry(),
		services:  &Services{},
		l:         l,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartParams identifies the user starting a flow.
type StartParams struct {
	SenderID string
	Channel  string
}

// StepResult is the outcome of processing one user response.
type StepResult struct {
	Reply            *Reply         `json:"reply"`
	Complete         bool           `json:"complete"`
	UpdatedVariables map[string]any `json:"variables,omitempty"`
}

// StartFlow creates a session on the flow's first step, resolves the
// definition's environment variables into it, runs the step's fetch and
// beforeRender actions in declared order and renders the result.
func (o *Orchestrator) StartFlow(ctx context.Context, def *FlowDefinition, p StartParams) (*Reply, error) {
	first, err := def.FirstStep()
	if err != nil {
		return nil, err
	}
	for _, ns := range def.Imports {
		if !o.registry.HasNamespace(ns) {
			o.l.Warn("flow imports unregistered action package", "flow", def.Name, "package", ns)
		}
	}

	sess := o.sessions.Create(SessionParams{
		Flow:      def.Name,
		SenderID:  p.SenderID,
		Channel:   p.Channel,
		StepID:    first.ID,
		Variables: o.resolveEnv(def),
	})

	step, sess := o.prepareStep(ctx, def, first, sess)
	return o.render(def, step, sess)
}

// ProcessStep handles one user response: validate, capture, run afterCapture
// side effects, transition, then prepare and render the next step. On
// completion it runs the flow's completion hook, appends the history record
// best-effort, and returns a summary of all captured variables.
func (o *Orchestrator) ProcessStep(ctx context.Context, def *FlowDefinition, senderID, stepID, value string) (*StepResult, error) {
	key := SessionKey{SenderID: senderID, Flow: def.Name}
	sess, ok := o.sessions.Get(key)
	if !ok {
		return nil, ErrSessionExpired
	}

	step, ok := def.StepByID(stepID)
	if !ok {
		err := &StepNotFoundError{StepID: stepID, Flow: def.Name}
		return &StepResult{Reply: &Reply{Message: userMessage(err)}}, err
	}

	res := Resolve(def, step, value, sess.Variables)
	if res.Err != nil {
		// The session stays on the current step; Get already refreshed it.
		return &StepResult{
			Reply:            &Reply{Message: res.Message},
			UpdatedVariables: sess.Variables,
		}, nil
	}

	captured := step.Capture != ""
	sess, _ = o.sessions.Update(key, SessionPatch{Variables: res.Variables})
	if sess == nil {
		return nil, ErrSessionExpired
	}

	if captured {
		o.runAfterCapture(ctx, def, step, sess)
		// afterCapture actions may have merged more variables.
		if latest, ok := o.sessions.Get(key); ok {
			sess = latest
		}
	}

	if res.Complete {
		return o.complete(ctx, def, sess)
	}

	next, _ := def.StepByID(res.NextStepID)
	sess, _ = o.sessions.Update(key, SessionPatch{CurrentStepID: next.ID})
	if sess == nil {
		return nil, ErrSessionExpired
	}

	prepared, sess := o.prepareStep(ctx, def, next, sess)
	reply, err := o.render(def, prepared, sess)
	if err != nil {
		return nil, err
	}
	return &StepResult{Reply: reply, UpdatedVariables: sess.Variables}, nil
}

func (o *Orchestrator) complete(ctx context.Context, def *FlowDefinition, sess *Session) (*StepResult, error) {
	o.runCompletionHook(def, sess)

	if o.history != nil {
		err := o.history.Append(ctx, HistoryRecord{
			Flow:        sess.Flow,
			SenderID:    sess.SenderID,
			Channel:     sess.Channel,
			Variables:   sess.Variables,
			StartedAt:   sess.StartedAt,
			CompletedAt: time.Now(),
		})
		if err != nil {
			o.l.Warn("history append failed", "flow", sess.Flow, "error", err)
		}
	}

	o.sessions.Delete(sess.Key())

	return &StepResult{
		Reply: &Reply{
			Message:  "Thanks, that completes this conversation.",
			Complete: true,
			Summary:  ToStringValueMap(sess.Variables),
		},
		Complete:         true,
		UpdatedVariables: sess.Variables,
	}, nil
}

// prepareStep runs a step's fetch and beforeRender actions and returns the
// (possibly rewritten) step copy together with the refreshed session.
func (o *Orchestrator) prepareStep(ctx context.Context, def *FlowDefinition, step *Step, sess *Session) (*Step, *Session) {
	if step.Actions == nil {
		return step, sess
	}

	sess = o.runFetch(ctx, def, step, sess)
	return o.runBeforeRender(ctx, def, step, sess), sess
}

// runFetch executes the fetch slot in declared order, merging each entry's
// target variable into the session. A failing or gated entry simply leaves
// its variable absent.
func (o *Orchestrator) runFetch(ctx context.Context, def *FlowDefinition, step *Step, sess *Session) *Session {
	for _, ref := range step.Actions.Fetch {
		if !Evaluate(ref.If, sess.Variables) {
			o.l.Debug("fetch action gated off", "flow", def.Name, "step", step.ID, "var", ref.Var)
			continue
		}
		result, err := o.runAction(ctx, def, step, sess, &ref.ActionRef)
		if err != nil {
			o.l.Warn("fetch action failed, skipping",
				"flow", def.Name, "step", step.ID, "var", ref.Var, "error", err)
			continue
		}
		value, ok := result[ref.Var]
		if !ok {
			value, ok = result["result"]
		}
		if !ok {
			o.l.Warn("fetch action returned no value", "flow", def.Name, "step", step.ID, "var", ref.Var)
			continue
		}
		if updated, live := o.sessions.Update(sess.Key(), SessionPatch{Variables: map[string]any{ref.Var: value}}); live {
			sess = updated
		}
	}
	return sess
}

// runBeforeRender executes the beforeRender slot in declared order. Each
// entry's result is applied as a patch over the step copy; a failing entry
// leaves the step exactly as the previous entry produced it.
func (o *Orchestrator) runBeforeRender(ctx context.Context, def *FlowDefinition, step *Step, sess *Session) *Step {
	prepared := step.Clone()
	for i := range step.Actions.BeforeRender {
		ref := &step.Actions.BeforeRender[i]
		if !Evaluate(ref.If, sess.Variables) {
			continue
		}
		result, err := o.runAction(ctx, def, prepared, sess, ref)
		if err != nil {
			o.l.Warn("beforeRender action failed, step unchanged",
				"flow", def.Name, "step", step.ID, "error", err)
			continue
		}
		applyStepPatch(prepared, result)
	}
	return prepared
}

// runAfterCapture executes the afterCapture slot as ordered side effects;
// results are discarded.
func (o *Orchestrator) runAfterCapture(ctx context.Context, def *FlowDefinition, step *Step, sess *Session) {
	if step.Actions == nil {
		return
	}
	for i := range step.Actions.AfterCapture {
		ref := &step.Actions.AfterCapture[i]
		if !Evaluate(ref.If, sess.Variables) {
			continue
		}
		if _, err := o.runAction(ctx, def, step, sess, ref); err != nil {
			o.l.Warn("afterCapture action failed",
				"flow", def.Name, "step", step.ID, "error", err)
		}
	}
}

// runAction dispatches one slot entry: declarative entries go through the
// executor with an interpolated config, legacy entries call into the flow's
// hook module.
func (o *Orchestrator) runAction(ctx context.Context, def *FlowDefinition, step *Step, sess *Session, ref *ActionRef) (map[string]any, error) {
	ictx := o.interpolationContext(def, sess)

	if ref.IsLegacy() {
		return o.callHook(def, ref.Action, sess, InterpolateConfig(ref.Config, ictx))
	}

	ec := &ExecContext{
		Session:   sess,
		Step:      step,
		Variables: sess.Variables,
		Services:  o.services,
		Logger:    o.l,
	}
	return o.executor.Execute(ctx, ref.Type, InterpolateConfig(ref.Config, ictx), ec)
}

func (o *Orchestrator) callHook(def *FlowDefinition, name string, sess *Session, config map[string]any) (map[string]any, error) {
	if o.hooks == nil {
		return nil, fmt.Errorf("hook %q: no hook modules configured", name)
	}
	mod := o.hooks(def.Name)
	if mod == nil || !mod.Has(name) {
		return nil, fmt.Errorf("hook %q not exported by module for flow %s", name, def.Name)
	}
	return mod.Call(name, map[string]any{
		"session":   sess.Meta(),
		"variables": sess.Variables,
		"config":    config,
	})
}

func (o *Orchestrator) runCompletionHook(def *FlowDefinition, sess *Session) {
	if o.hooks == nil {
		return
	}
	mod := o.hooks(def.Name)
	if mod == nil || !mod.Has("onComplete") {
		return
	}
	if _, err := mod.Call("onComplete", map[string]any{
		"session":   sess.Meta(),
		"variables": sess.Variables,
	}); err != nil {
		o.l.Warn("completion hook failed", "flow", def.Name, "error", err)
	}
}

func (o *Orchestrator) render(def *FlowDefinition, step *Step, sess *Session) (*Reply, error) {
	ictx := o.interpolationContext(def, sess)
	final := step.Clone()
	final.Message = InterpolateString(step.Message, ictx)
	for i := range final.Buttons {
		final.Buttons[i].Text = InterpolateString(final.Buttons[i].Text, ictx)
	}
	return o.renderers.For(sess.Channel).Render(final, sess)
}

// resolveEnv maps the definition's env block to concrete values. Missing
// external variables are logged as warnings and left out; they never abort
// the flow.
func (o *Orchestrator) resolveEnv(def *FlowDefinition) map[string]any {
	if len(def.Env) == 0 {
		return nil
	}
	vars := make(map[string]any, len(def.Env))
	for sessionVar, envName := range def.Env {
		value, ok := os.LookupEnv(envName)
		if !ok {
			o.l.Warn("environment variable not set", "flow", def.Name, "variable", envName)
			continue
		}
		vars[sessionVar] = value
	}
	return vars
}

func (o *Orchestrator) interpolationContext(def *FlowDefinition, sess *Session) *InterpolationContext {
	return &InterpolationContext{
		Variables: sess.Variables,
		Env:       o.resolveEnv(def),
		Session:   sess.Meta(),
	}
}

// applyStepPatch overlays a beforeRender action's result onto the step.
// Only message and buttons may be rewritten; anything else in the result is
// ignored so transition wiring stays intact.
func applyStepPatch(step *Step, patch map[string]any) {
	if patch == nil {
		return
	}
	if msg, ok := patch["message"].(string); ok && msg != "" {
		step.Message = msg
	}
	if raw, ok := patch["buttons"]; ok {
		var buttons []Button
		if err := mapstructure.Decode(raw, &buttons); err == nil && len(buttons) > 0 {
			step.Buttons = buttons
		}
	}
}
