// Package hooks composes the plugin and user-app hook chain for one
// frame-returning stage (spec.md §4.4 step 5 and §4.6): before_X for
// every plugin in order, then the user's X hook, then after_X for
// every plugin in order.
package hooks

import "fmt"

// Plugins is the subset of plugin.Graph the chain needs, kept as an
// interface so this package stays free of an import cycle with
// pkg/plugin and pkg/userapp.
type Plugins interface {
	RunBefore(stage string, frame any) (any, error)
	RunAfter(stage string, frame any) (any, error)
}

// UserHook runs one frame-returning hook on the user app. called
// reports whether the user script actually defines the hook.
type UserHook func(frame any) (out any, called bool, err error)

// Chain runs the before_<stage> plugin wrappers, the user hook, and
// the after_<stage> plugin wrappers, in that order. If the user script
// does not define the hook the frame passes through unchanged — the
// frame-returning contract only binds when the hook is present and a
// plugin graph is what supplies before/after around it either way.
func Chain(plugins Plugins, stage string, frame any, userHook UserHook) (any, error) {
	frame, err := plugins.RunBefore(stage, frame)
	if err != nil {
		return nil, fmt.Errorf("%s: before chain: %w", stage, err)
	}

	out, called, err := userHook(frame)
	if err != nil {
		return nil, fmt.Errorf("%s: user hook: %w", stage, err)
	}
	if called {
		if out == nil {
			return nil, fmt.Errorf("%s: hook returned no frame", stage)
		}
		frame = out
	}

	frame, err = plugins.RunAfter(stage, frame)
	if err != nil {
		return nil, fmt.Errorf("%s: after chain: %w", stage, err)
	}
	return frame, nil
}
