package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// ExecContext is handed to every action routine.
type ExecContext struct {
	Session   *Session
	Step      *Step
	Variables map[string]any
	Services  *Services
	Logger    *slog.Logger
}

// Services are the host integrations declarative actions may call into.
// Fields are nil when the host has not configured the integration; actions
// must treat a nil service as an execution error, which the call-site
// failure policy then logs and skips.
type Services struct {
	Notifier Notifier
	Calendar CalendarAPI
}

// ActionDefinition is one registry entry: a config schema plus the routine
// that runs the validated config.
type ActionDefinition struct {
	// Name is the namespaced identifier, e.g. "http.request".
	Name string
	// NewConfig returns a pointer to the typed config struct carrying
	// default/validate tags. A nil NewConfig means the action takes its raw
	// interpolated map unvalidated (custom imported packages).
	NewConfig func() any
	// Run executes the action. ctx carries the executor's deadline.
	Run func(ctx context.Context, cfg any, ec *ExecContext) (map[string]any, error)
}

// ActionPackage is the registration contract for imported action packages.
// A package contributes a namespace and a set of actions; the host calls
// Registry.Import before serving any flow that names the package.
type ActionPackage interface {
	Namespace() string
	Actions() []ActionDefinition
}

// Registry maps namespaced action identifiers to their definitions.
// Built-ins are registered at startup and always win name collisions with
// imported packages. Once flows are being served the registry is read-only.
type Registry struct {
	l          *slog.Logger
	actions    map[string]ActionDefinition
	builtins   map[string]bool
	namespaces map[string]bool
}

func NewRegistry(l *slog.Logger) *Registry {
	return &Registry{
		l:          l,
		actions:    make(map[string]ActionDefinition),
		builtins:   make(map[string]bool),
		namespaces: make(map[string]bool),
	}
}

// Register adds a built-in action. Registering the same name twice is a
// programming error.
func (r *Registry) Register(def ActionDefinition) error {
	if def.Name == "" || !strings.Contains(def.Name, ".") {
		return fmt.Errorf("action name %q must be namespaced as namespace.action", def.Name)
	}
	if _, exists := r.actions[def.Name]; exists {
		return fmt.Errorf("action %q already registered", def.Name)
	}
	r.actions[def.Name] = def
	r.builtins[def.Name] = true
	r.namespaces[def.Name[:strings.Index(def.Name, ".")]] = true
	return nil
}

// MustRegister is Register for startup wiring, panicking on conflict.
func (r *Registry) MustRegister(defs ...ActionDefinition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Import merges a custom action package into the registry. A name that
// collides with an existing action is logged and dropped; built-ins always
// win.
func (r *Registry) Import(pkg ActionPackage) {
	ns := pkg.Namespace()
	r.namespaces[ns] = true
	for _, def := range pkg.Actions() {
		name := def.Name
		if !strings.Contains(name, ".") {
			name = ns + "." + name
			def.Name = name
		}
		if _, exists := r.actions[name]; exists {
			r.l.Warn("dropping colliding custom action", "action", name, "package", ns)
			continue
		}
		r.actions[name] = def
	}
}

// HasNamespace reports whether any registered action lives under the
// given namespace.
func (r *Registry) HasNamespace(ns string) bool {
	return r.namespaces[ns]
}

// CheckImports verifies every package name a definition imports is
// registered. Flows naming an unknown package are rejected at save time so
// a missing registration surfaces before any session reaches the step that
// needs it.
func (r *Registry) CheckImports(def *FlowDefinition) error {
	for _, ns := range def.Imports {
		if !r.namespaces[ns] {
			return fmt.Errorf("flow %s imports unregistered action package %q", def.Name, ns)
		}
	}
	return nil
}

// Get looks an action up by its namespaced identifier.
func (r *Registry) Get(name string) (ActionDefinition, bool) {
	def, ok := r.actions[name]
	return def, ok
}

// Names returns the sorted identifiers of all registered actions.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReflectPackage builds an ActionPackage from any struct by discovering
// exported methods with the routine signature
//
//	func (p *Pkg) Name(ctx context.Context, cfg map[string]any, ec *ExecContext) (map[string]any, error)
//
// Each discovered method becomes an unvalidated action named
// "<namespace>.<methodName>" with the method name lowercased at its first
// rune.
func ReflectPackage(namespace string, pkg any) (ActionPackage, error) {
	if pkg == nil {
		return nil, fmt.Errorf("package cannot be nil")
	}
	pkgType := reflect.TypeOf(pkg)
	pkgValue := reflect.ValueOf(pkg)

	var defs []ActionDefinition
	for i := 0; i < pkgType.NumMethod(); i++ {
		method := pkgType.Method(i)
		if !method.IsExported() || !isRoutineSignature(method.Type) {
			continue
		}
		fn := pkgValue.Method(i)
		defs = append(defs, ActionDefinition{
			Name: fmt.Sprintf("%s.%s", namespace, toLowerFirst(method.Name)),
			Run: func(ctx context.Context, cfg any, ec *ExecContext) (map[string]any, error) {
				raw, _ := cfg.(map[string]any)
				out := fn.Call([]reflect.Value{
					reflect.ValueOf(ctx),
					reflect.ValueOf(raw),
					reflect.ValueOf(ec),
				})
				result, _ := out[0].Interface().(map[string]any)
				var err error
				if !out[1].IsNil() {
					err = out[1].Interface().(error)
				}
				return result, err
			},
		})
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("package %s exports no action routines", namespace)
	}
	return &reflectedPackage{ns: namespace, defs: defs}, nil
}

type reflectedPackage struct {
	ns   string
	defs []ActionDefinition
}

func (p *reflectedPackage) Namespace() string           { return p.ns }
func (p *reflectedPackage) Actions() []ActionDefinition { return p.defs }

func isRoutineSignature(t reflect.Type) bool {
	if t.NumIn() != 4 || t.NumOut() != 2 {
		return false
	}
	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	mapType := reflect.TypeOf(map[string]any(nil))
	ecType := reflect.TypeOf((*ExecContext)(nil))
	errType := reflect.TypeOf((*error)(nil)).Elem()
	return t.In(1) == ctxType &&
		t.In(2) == mapType &&
		t.In(3) == ecType &&
		t.Out(0) == mapType &&
		t.Out(1) == errType
}

func toLowerFirst(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToLower(s[:1]) + s[1:]
}
