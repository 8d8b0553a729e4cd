// Package userapp loads and drives the user-supplied processing script
// (spec.md §4.6): the pre_process/process/post_process/before/after
// hook set, plus the plugins.<id> bindings a plugin graph attaches to
// it. One App is created per stream and discarded at Eos, per spec.md
// §4.4's "reset the per-stream user-app and metrics state".
package userapp

import (
	"os"

	"github.com/pipeless-go/pipeless/pkg/script"
	"github.com/pkg/errors"
)

// App wraps one stream's loaded user script.
type App struct {
	mod     *script.Module
	plugins map[string]any
}

// Load reads path and compiles it into a fresh App.
func Load(path string) (*App, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read user app %s", path)
	}
	mod, err := script.Load(path, string(src))
	if err != nil {
		return nil, err
	}
	return &App{mod: mod}, nil
}

// LoadSource compiles source directly, for tests and inline apps.
func LoadSource(name, source string) (*App, error) {
	mod, err := script.Load(name, source)
	if err != nil {
		return nil, err
	}
	return &App{mod: mod}, nil
}

// Before calls the optional before hook at the start of a stream.
func (a *App) Before() error { return a.mod.CallVoid("before") }

// After calls the optional after hook once Eos has been forwarded.
func (a *App) After() error { return a.mod.CallVoid("after") }

// HasProcess reports whether the user script defines process. It is
// part of plugin.Binder; the plugin/inference exclusivity check in
// pkg/plugin inspects plugin hooks only and does not call it.
func (a *App) HasProcess() bool { return a.mod.HasFunc("process") }

// PreProcess runs the user's pre_process hook if defined, per spec.md
// §4.4 step 5. called reports whether the hook exists at all.
func (a *App) PreProcess(frame any) (out any, called bool, err error) {
	return a.mod.CallFrame("pre_process", frame)
}

// Process runs the user's process hook if defined (skipped entirely
// when inference is configured, per spec.md §4.4 step 6).
func (a *App) Process(frame any) (out any, called bool, err error) {
	return a.mod.CallFrame("process", frame)
}

// PostProcess runs the user's post_process hook if defined.
func (a *App) PostProcess(frame any) (out any, called bool, err error) {
	return a.mod.CallFrame("post_process", frame)
}

// SetInferenceResult exposes the configured inference session's most
// recent result as inference.results on the app's runtime, per spec.md
// §3's "inference.results (opaque tensor when inference is configured)"
// field injection.
func (a *App) SetInferenceResult(result any) error {
	return a.mod.Set("inference", map[string]any{"results": result})
}

// SetOriginalFrame exposes the frame's immutable view as original_frame,
// per spec.md §3's field-injection contract and §4.4 step 3.
func (a *App) SetOriginalFrame(frame any) error {
	return a.mod.Set("original_frame", frame)
}

// BindPlugin exposes a loaded plugin's export object under
// plugins.<id> on the app's runtime, per spec.md §4.6 ("expose it on
// the user-app under plugins.<id>").
func (a *App) BindPlugin(id string, export any) error {
	if a.plugins == nil {
		a.plugins = map[string]any{}
	}
	a.plugins[id] = export
	return a.mod.Set("plugins", a.plugins)
}
