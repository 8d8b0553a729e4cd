// Package script is the embedded JavaScript host shared by pkg/userapp
// and pkg/plugin: both the user application and plugins are loadable
// JS modules executed in a goja.Runtime, the Go-idiomatic stand-in for
// the source project's dynamically-imported Python modules (see
// calculator_skill.go in the example corpus for the same
// goja.New/RunString pattern applied to a narrower sandbox).
package script

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/pkg/errors"
)

// Module wraps one loaded script's runtime and default export, exposing
// only the "call this hook if the module defines it" pattern the hook
// graph needs.
type Module struct {
	vm     *goja.Runtime
	export *goja.Object
	name   string
}

// Load compiles and runs source (the contents of a .js file) in a fresh
// runtime and returns its default export object. The script is expected
// to set `module.exports = { ... }`, mirroring Node's CommonJS shape
// since that is the convention goja's ecosystem documents.
func Load(name, source string) (*Module, error) {
	vm := goja.New()
	moduleObj := vm.NewObject()
	exportsObj := vm.NewObject()
	if err := moduleObj.Set("exports", exportsObj); err != nil {
		return nil, errors.Wrapf(err, "script %s: prime module.exports", name)
	}
	if err := vm.Set("module", moduleObj); err != nil {
		return nil, errors.Wrapf(err, "script %s: expose module", name)
	}
	if err := vm.Set("exports", exportsObj); err != nil {
		return nil, errors.Wrapf(err, "script %s: expose exports", name)
	}

	if _, err := vm.RunString(source); err != nil {
		return nil, errors.Wrapf(err, "script %s: evaluate", name)
	}

	obj := moduleObj.Get("exports").ToObject(vm)
	switch obj.ClassName() {
	case "Object", "Function":
	default:
		return nil, fmt.Errorf("script %s: module.exports is %s, want a plain object", name, obj.ClassName())
	}
	return &Module{vm: vm, export: obj, name: name}, nil
}

// HasFunc reports whether the module exports a callable named fn.
func (m *Module) HasFunc(fn string) bool {
	_, ok := goja.AssertFunction(m.export.Get(fn))
	return ok
}

// CallFrame invokes a frame-returning hook (pre_process/process/
// post_process) if present, passing frame and returning its return
// value. The bool reports whether the hook was defined at all; when
// false the caller should treat frame as unchanged.
func (m *Module) CallFrame(fn string, frame any) (any, bool, error) {
	callable, ok := goja.AssertFunction(m.export.Get(fn))
	if !ok {
		return frame, false, nil
	}
	ret, err := callable(m.export, m.vm.ToValue(frame))
	if err != nil {
		return nil, true, errors.Wrapf(err, "script %s: call %s", m.name, fn)
	}
	return ret.Export(), true, nil
}

// CallVoid invokes a no-return hook (before/after) if present; a no-op
// when the module does not define fn.
func (m *Module) CallVoid(fn string, args ...any) error {
	callable, ok := goja.AssertFunction(m.export.Get(fn))
	if !ok {
		return nil
	}
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = m.vm.ToValue(a)
	}
	_, err := callable(m.export, jsArgs...)
	if err != nil {
		return errors.Wrapf(err, "script %s: call %s", m.name, fn)
	}
	return nil
}

// Set exposes a Go value as a global binding inside the module's
// runtime, used to wire plugins.<id>, inference and original_frame onto
// the user-app instance.
func (m *Module) Set(name string, value any) error {
	return m.vm.Set(name, value)
}

// Runtime returns the underlying goja.Runtime. pkg/plugin binds plugins
// through Export rather than this method.
func (m *Module) Runtime() *goja.Runtime {
	return m.vm
}

// Export returns the module's default export object.
func (m *Module) Export() *goja.Object {
	return m.export
}

// Name returns the identifier this module was loaded under (file path
// or plugin id), for error messages and logging.
func (m *Module) Name() string {
	return m.name
}
