// Package worker implements the Worker process loop of spec.md §4.4:
// per-frame hook+plugin execution, optional inference, adaptive
// frame-skipping, and per-stream app/metrics reset.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pipeless-go/pipeless/pkg/hooks"
	"github.com/pipeless-go/pipeless/pkg/inference"
	"github.com/pipeless-go/pipeless/pkg/message"
	"github.com/pipeless-go/pipeless/pkg/metrics"
	"github.com/pipeless-go/pipeless/pkg/plugin"
	"github.com/pipeless-go/pipeless/pkg/userapp"
)

// InputPuller is InputPull's receive side.
type InputPuller interface {
	Recv() (message.Message, bool, error)
}

// OutputPusher is OutputPush's send side.
type OutputPusher interface {
	Send(m message.Message) error
	EnsureSend(m message.Message, timeout time.Duration) error
}

// ReadySender is the worker side of WorkerReadySocket.
type ReadySender interface {
	EnsureSend(m message.Message, timeout time.Duration) error
}

// AppLoader constructs a fresh per-stream user-app; implemented by
// userapp.Load/LoadSource, parameterized so tests can inject a fixed
// script without touching the filesystem.
type AppLoader func() (*userapp.App, error)

// Config configures one Worker instance.
type Config struct {
	SkipFrames   bool
	Inference    inference.Config
	Session      inference.Session // nil unless Inference.Enabled()
	PluginsDir   string
	PluginIDs    []string
	OutputEnable bool

	// OneShot stops the worker after its first stream completes,
	// per spec.md §4.4's "if either URI protocol is file, stop after
	// the first stream" (the caller resolves that URI check and sets
	// this from its own config).
	OneShot bool
}

// Worker runs the per-frame algorithm of spec.md §4.4 against one
// InputPull/OutputPush/WorkerReadySocket triple.
type Worker struct {
	id  string
	cfg Config

	pull  InputPuller
	push  OutputPusher
	ready ReadySender

	loadApp AppLoader
	log     zerolog.Logger

	metrics metrics.Processing
}

// New constructs a Worker with a freshly generated instance id.
func New(cfg Config, pull InputPuller, push OutputPusher, ready ReadySender, loadApp AppLoader, log zerolog.Logger) *Worker {
	id := uuid.NewString()
	return &Worker{
		id:      id,
		cfg:     cfg,
		pull:    pull,
		push:    push,
		ready:   ready,
		loadApp: loadApp,
		log:     log.With().Str("worker_id", id).Logger(),
	}
}

// Run announces readiness and then loops over streams until ctx is
// cancelled or a fatal error occurs, per spec.md §4.4.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.ready.EnsureSend(message.Tags{Entries: []message.TagEntry{{Name: "ready", Value: w.id}}}, 5*time.Second); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		done, err := w.runStream(ctx)
		if err != nil {
			return err
		}
		if done || w.cfg.OneShot {
			return nil
		}
	}
}

// runStream processes one stream to Eos. done reports whether the
// worker should stop entirely afterwards (file-protocol shutdown is
// decided by the caller based on config, not here).
func (w *Worker) runStream(ctx context.Context) (done bool, err error) {
	app, err := w.loadApp()
	if err != nil {
		return false, err
	}
	w.metrics.Reset()

	if err := app.Before(); err != nil {
		return false, err
	}

	graph, err := plugin.LoadGraph(w.cfg.PluginsDir, w.cfg.PluginIDs, app, w.cfg.Inference.Enabled())
	if err != nil {
		return false, err
	}
	if err := graph.Lifecycle("before"); err != nil {
		return false, err
	}

	for {
		select {
		case <-ctx.Done():
			return true, nil
		default:
		}

		m, ok, err := w.pull.Recv()
		if err != nil {
			return false, err
		}
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}

		if _, isEos := m.(message.Eos); isEos {
			if err := w.push.EnsureSend(message.Eos{}, time.Second); err != nil {
				return false, err
			}
			break
		}

		frame, ok := m.(message.RgbImage)
		if !ok {
			return false, fmt.Errorf("worker: expected RgbImage frame, got %s", m.Kind())
		}
		if err := w.processFrame(app, graph, frame); err != nil {
			return false, err
		}
	}

	if err := graph.Lifecycle("after"); err != nil {
		return false, err
	}
	if err := app.After(); err != nil {
		return false, err
	}
	return false, nil
}

func (w *Worker) processFrame(app *userapp.App, graph *plugin.Graph, frame message.RgbImage) error {
	start := time.Now()

	if err := app.SetOriginalFrame(frameToMap(frame)); err != nil {
		return err
	}

	skip := w.cfg.SkipFrames && w.metrics.ShouldSkip(frame.FPS)

	preOut, err := hooks.Chain(graph, "pre_process", frameToMap(frame), app.PreProcess)
	if err != nil {
		return err
	}

	var processOut any
	switch {
	case skip:
		if cached := w.metrics.CachedInference(); cached != nil {
			if err := app.SetInferenceResult(cached); err != nil {
				return err
			}
		}
		processOut = frameToMap(frame)
		w.metrics.RecordSkip()
	case w.cfg.Inference.Enabled():
		result, err := w.cfg.Session.Run(preOut)
		if err != nil {
			return err
		}
		w.metrics.SetCachedInference(result)
		if err := app.SetInferenceResult(result); err != nil {
			return err
		}
		processOut = frameToMap(frame) // original frame, per spec.md §4.4 step 6
	default:
		processOut, err = hooks.Chain(graph, "process", preOut, app.Process)
		if err != nil {
			return err
		}
	}

	postOut, err := hooks.Chain(graph, "post_process", processOut, app.PostProcess)
	if err != nil {
		return err
	}

	if !skip {
		w.metrics.Record(time.Since(start))
	}

	if w.cfg.OutputEnable {
		out := mapToFrame(postOut, frame)
		if err := w.push.Send(out); err != nil {
			w.log.Warn().Err(err).Msg("dropping frame: output push would block")
		}
	}
	return nil
}

