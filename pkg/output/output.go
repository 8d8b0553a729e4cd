// Package output implements the Output process of spec.md §4.5: builds
// an encode/mux graph on the first StreamCaps, pushes frames in order,
// merges decoder tags onto the live pipeline, and terminates on EOS.
package output

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/message"
)

// FramePuller is OutputPull's receive side: OutputPush is a fan-in
// channel (N workers dial in and send, Output binds and merges), so
// the receiving API is the same listen-and-merge shape as a metadata
// pair socket, not the single-dialer PullSocket InputPull uses.
type FramePuller interface {
	Recv() (message.Message, bool)
}

// MetaReceiver is the Output side of InputOutputSocket.
type MetaReceiver interface {
	Recv() (message.Message, bool)
}

// Config configures one Output instance.
type Config struct {
	Key media.PipelineKey
	// OneShot quits the main loop once both InputOutputSocket has
	// delivered an Eos and fetch_and_send has drained its own Eos, per
	// spec.md §4.5's "quit main loop iff either URI is file"
	// (the caller resolves that URI check from its own config).
	OneShot bool
	// PollInterval bounds how often the two non-blocking recv tasks
	// are polled when neither socket has anything ready.
	PollInterval time.Duration
}

// Output runs the fetch_and_send / handle_input_messages task pair of
// spec.md §4.5 against one OutputPull/InputOutputSocket pair.
type Output struct {
	cfg     Config
	pull    FramePuller
	meta    MetaReceiver
	factory PipelineFactory
	log     zerolog.Logger

	pipeline    Pipeline
	currentCaps string
	tags        message.Tags

	metaEosSeen  bool // Eos arrived on InputOutputSocket
	frameEosSeen bool // fetch_and_send drained its own Eos (or an unexpected variant)
}

// New constructs an Output.
func New(cfg Config, pull FramePuller, meta MetaReceiver, factory PipelineFactory, log zerolog.Logger) *Output {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Millisecond
	}
	return &Output{cfg: cfg, pull: pull, meta: meta, factory: factory, log: log}
}

// Run polls fetch_and_send and handle_input_messages until ctx is
// cancelled, a fatal pipeline error occurs, or (OneShot) the stream
// drains to completion.
func (o *Output) Run(ctx context.Context) error {
	defer func() {
		if o.pipeline != nil {
			o.pipeline.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		didWork, quit, err := o.handleInputMessages()
		if err != nil {
			return err
		}
		if quit {
			return nil
		}

		sentWork, done, err := o.fetchAndSend()
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		if !didWork && !sentWork {
			time.Sleep(o.cfg.PollInterval)
		}
	}
}

// handleInputMessages is spec.md §4.5's handle_input_messages task.
func (o *Output) handleInputMessages() (didWork bool, quit bool, err error) {
	m, ok := o.meta.Recv()
	if !ok {
		return false, false, nil
	}

	switch v := m.(type) {
	case message.Caps:
		if o.pipeline == nil || v.Value != o.currentCaps {
			if o.pipeline != nil {
				o.pipeline.Stop()
				o.pipeline = nil
			}
			p, err := o.factory(o.cfg.Key, v.Value)
			if err != nil {
				return true, false, err
			}
			if err := p.Start(); err != nil {
				return true, false, err
			}
			o.pipeline = p
			o.currentCaps = v.Value
		}
	case message.Tags:
		o.tags = media.MergeTags(o.tags, v)
		if o.pipeline != nil {
			o.pipeline.UpdateTags(o.tags)
		}
	case message.Eos:
		o.metaEosSeen = true
	}
	return true, o.maybeQuit(), nil
}

// fetchAndSend is spec.md §4.5's fetch_and_send task.
func (o *Output) fetchAndSend() (didWork bool, quit bool, err error) {
	m, ok := o.pull.Recv()
	if !ok {
		return false, false, nil
	}

	switch v := m.(type) {
	case message.RgbImage:
		if o.pipeline == nil {
			o.log.Warn().Msg("dropping frame: no output pipeline built yet")
			return true, false, nil
		}
		if err := o.pipeline.PushFrame(v.Pixels, v.PTS, v.DTS, v.Duration); err != nil {
			o.log.Warn().Err(err).Msg("output pipeline push failed")
		}
	case message.Eos:
		if o.pipeline != nil {
			if err := o.pipeline.EndStream(); err != nil {
				o.log.Warn().Err(err).Msg("output pipeline end_of_stream failed")
			}
		}
		o.frameEosSeen = true
	default:
		o.log.Warn().Str("kind", m.Kind().String()).Msg("unexpected message on OutputPull")
		o.frameEosSeen = true
	}
	return true, o.maybeQuit(), nil
}

// maybeQuit implements spec.md §4.5's "let fetch_and_send drain then
// quit main loop iff either URI is file": once both the metadata and
// frame channels have reported end-of-stream, either quit (file) or
// reset the per-stream flags to await the next stream's Caps.
func (o *Output) maybeQuit() bool {
	if !o.metaEosSeen || !o.frameEosSeen {
		return false
	}
	if o.cfg.OneShot {
		return true
	}
	o.metaEosSeen = false
	o.frameEosSeen = false
	return false
}
