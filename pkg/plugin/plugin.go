// Package plugin loads the ordered plugin graph of spec.md §4.6: each
// configured plugin id is read from <plugins_dir>/<id>/plugin.js,
// exposed on the user-app under plugins.<id>, and wrapped around every
// frame-returning hook as before_X/after_X.
package plugin

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pipeless-go/pipeless/pkg/script"
	"github.com/pkg/errors"
)

// Plugin is one loaded plugin module.
type Plugin struct {
	ID  string
	mod *script.Module
}

// Binder is the subset of userapp.App a plugin graph needs to expose
// itself to the user script, kept as an interface so pkg/plugin does
// not import pkg/userapp.
type Binder interface {
	BindPlugin(id string, export any) error
	HasProcess() bool
}

// Load reads id's plugin.js from pluginsDir/<id>/plugin.js.
func Load(pluginsDir, id string) (*Plugin, error) {
	path := filepath.Join(pluginsDir, id, "plugin.js")
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "load plugin %s", id)
	}
	mod, err := script.Load(id, string(src))
	if err != nil {
		return nil, err
	}
	return &Plugin{ID: id, mod: mod}, nil
}

// Graph is the ordered, loaded execution graph for one worker instance.
type Graph struct {
	plugins []*Plugin
}

// CheckInferenceConflict loads every id's plugin.js (without binding it
// to an app) and returns an error if inference is enabled and any plugin
// defines before_process/after_process, per spec.md §4.6's
// plugin/inference exclusivity invariant. It needs neither a Binder nor
// a wired inference.Session, so callers can run it as a standalone
// startup check ahead of anything else that requires either.
func CheckInferenceConflict(pluginsDir string, ids []string, inferenceEnabled bool) error {
	if !inferenceEnabled {
		return nil
	}
	for _, id := range ids {
		p, err := Load(pluginsDir, id)
		if err != nil {
			return err
		}
		if p.mod.HasFunc("before_process") || p.mod.HasFunc("after_process") {
			return fmt.Errorf("plugin %q defines before_process/after_process, forbidden when inference is configured", id)
		}
	}
	return nil
}

// LoadGraph loads every id in order from pluginsDir, binds each onto
// app under plugins.<id>, and enforces the inference/process exclusivity
// invariant of spec.md §4.6.
func LoadGraph(pluginsDir string, ids []string, app Binder, inferenceEnabled bool) (*Graph, error) {
	if err := CheckInferenceConflict(pluginsDir, ids, inferenceEnabled); err != nil {
		return nil, err
	}
	g := &Graph{}
	for _, id := range ids {
		p, err := Load(pluginsDir, id)
		if err != nil {
			return nil, err
		}
		if err := app.BindPlugin(id, p.mod.Export()); err != nil {
			return nil, errors.Wrapf(err, "bind plugin %s", id)
		}
		g.plugins = append(g.plugins, p)
	}
	return g, nil
}

// RunBefore executes before_<stage> for every plugin in order,
// replacing frame with each plugin's return value in turn (spec.md
// §4.4 step 5: "For each plugin in execution order, run its
// before_pre_process(frame); replace frame with its return.").
func (g *Graph) RunBefore(stage string, frame any) (any, error) {
	return g.runChain("before_"+stage, frame)
}

// RunAfter executes after_<stage> for every plugin in order.
func (g *Graph) RunAfter(stage string, frame any) (any, error) {
	return g.runChain("after_"+stage, frame)
}

func (g *Graph) runChain(hook string, frame any) (any, error) {
	for _, p := range g.plugins {
		out, called, err := p.mod.CallFrame(hook, frame)
		if err != nil {
			return nil, errors.Wrapf(err, "plugin %s", p.ID)
		}
		if called {
			frame = out
		}
	}
	return frame, nil
}

// Lifecycle calls the no-return lifecycle hooks (before/after, once per
// stream) on every plugin in order.
func (g *Graph) Lifecycle(hook string) error {
	for _, p := range g.plugins {
		if err := p.mod.CallVoid(hook); err != nil {
			return errors.Wrapf(err, "plugin %s", p.ID)
		}
	}
	return nil
}

// IDs returns the plugin ids in execution order.
func (g *Graph) IDs() []string {
	ids := make([]string, len(g.plugins))
	for i, p := range g.plugins {
		ids[i] = p.ID
	}
	return ids
}
