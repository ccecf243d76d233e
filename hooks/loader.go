// Package hooks loads per-flow JavaScript hook modules and exposes their
// exported functions to the engine. A flow's hooks live in <dir>/<flow>.js;
// top-level function declarations become callable hook entries.
package hooks

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dop251/goja"

	"github.com/convoflow/convoflow/runtime"
)

// Loader resolves hook modules by flow name. Load failures are logged and
// reported as "no module": a broken script must not take the flow down.
type Loader struct {
	dir string
	l   *slog.Logger

	mu    sync.Mutex
	cache map[string]*Module
}

func NewLoader(dir string, l *slog.Logger) *Loader {
	if l == nil {
		l = slog.Default()
	}
	return &Loader{dir: dir, l: l, cache: map[string]*Module{}}
}

// Source adapts the loader to the engine's hook lookup.
func (ld *Loader) Source() runtime.HookSource {
	return func(flowName string) runtime.HookModule {
		m := ld.Module(flowName)
		if m == nil {
			// Typed nil inside a non-nil interface would defeat the
			// orchestrator's nil check.
			return nil
		}
		return m
	}
}

// Module returns the hook module for a flow, nil when the flow has no
// script or the script failed to load. Modules are cached per flow.
func (ld *Loader) Module(flowName string) *Module {
	ld.mu.Lock()
	defer ld.mu.Unlock()

	if m, ok := ld.cache[flowName]; ok {
		return m
	}

	path := filepath.Join(ld.dir, flowName+".js")
	src, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			ld.l.Warn("hook module unreadable", "flow", flowName, "path", path, "error", err)
		}
		ld.cache[flowName] = nil
		return nil
	}

	m, err := compile(flowName, string(src))
	if err != nil {
		ld.l.Warn("hook module failed to load", "flow", flowName, "path", path, "error", err)
		ld.cache[flowName] = nil
		return nil
	}

	ld.cache[flowName] = m
	return m
}

// Invalidate drops the cached module for a flow so the next lookup reloads
// it from disk. Used when a flow definition is saved.
func (ld *Loader) Invalidate(flowName string) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	delete(ld.cache, flowName)
}

// Module is one loaded script. The underlying VM is not safe for
// concurrent use, so every call takes the module lock.
type Module struct {
	flow string

	mu sync.Mutex
	vm *goja.Runtime
}

func compile(flowName, src string) (*Module, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	if _, err := vm.RunString(src); err != nil {
		return nil, err
	}
	return &Module{flow: flowName, vm: vm}, nil
}

// NewModule compiles a script directly, bypassing the loader. Tests and
// embedded configurations use it.
func NewModule(flowName, src string) (*Module, error) {
	return compile(flowName, src)
}

// Has reports whether the script declares a function with the given name.
func (m *Module) Has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := m.vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	_, ok := goja.AssertFunction(v)
	return ok
}

// Call invokes the named function with the payload as its single argument.
// The payload and the return value cross the boundary as plain JSON data;
// a function returning nothing or a non-object yields an empty map.
func (m *Module) Call(name string, payload map[string]any) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	fn, ok := goja.AssertFunction(m.vm.Get(name))
	if !ok {
		return nil, fmt.Errorf("hooks: flow %s has no function %s", m.flow, name)
	}

	arg, err := m.toValue(payload)
	if err != nil {
		return nil, fmt.Errorf("hooks: encoding payload for %s.%s: %w", m.flow, name, err)
	}

	ret, err := fn(goja.Undefined(), arg)
	if err != nil {
		return nil, fmt.Errorf("hooks: %s.%s: %w", m.flow, name, err)
	}

	return m.fromValue(ret)
}

// toValue round-trips through JSON so the script sees plain objects rather
// than reflected Go maps with surprising key casing.
func (m *Module) toValue(payload map[string]any) (goja.Value, error) {
	if payload == nil {
		return m.vm.ToValue(map[string]any{}), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var plain map[string]any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return nil, err
	}
	return m.vm.ToValue(plain), nil
}

func (m *Module) fromValue(v goja.Value) (map[string]any, error) {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return map[string]any{}, nil
	}
	exported := v.Export()
	raw, err := json.Marshal(exported)
	if err != nil {
		return nil, fmt.Errorf("hooks: decoding result: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		// Non-object return values are discarded.
		return map[string]any{}, nil
	}
	return out, nil
}
