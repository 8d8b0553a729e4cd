// Package input implements the Input process state machine of spec.md
// §4.3: INIT -> BUILD_PIPELINE -> WAIT_WORKER -> PLAYING -> (STREAM_END
// -> decide) -> ... / ERROR -> QUIT.
package input

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/message"
)

// SampleSource is the subset of *media.InputPipeline the state machine
// drives, kept as an interface so tests can fake a pipeline without a
// real GStreamer runtime.
type SampleSource interface {
	Start() error
	Samples() <-chan media.Sample
	Events() <-chan media.BusEvent
	Stop()
}

// SourceFactory builds a fresh source for each stream (spec.md §4.3
// step 5: "tear down and rebuild the source pipeline to accept the
// next stream").
type SourceFactory func() (SampleSource, error)

// FramePusher is InputPush's send side.
type FramePusher interface {
	Send(m message.Message) error
	BroadcastEOS(n int, timeout time.Duration) error
}

// MetaSender is the Input side of InputOutputSocket.
type MetaSender interface {
	EnsureSend(m message.Message, timeout time.Duration) error
}

// ReadyWaiter is the Input side of WorkerReadySocket.
type ReadyWaiter interface {
	Recv() (message.Message, bool)
}

// Config configures one Input instance.
type Config struct {
	NWorkers int
	// OneShot stops the Input main loop after the first stream's EOS,
	// per spec.md §4.3 step 5 ("if either input or output URI protocol
	// is file, quit the main loop").
	OneShot          bool
	MetaTimeout      time.Duration
	EosFanoutTimeout time.Duration
	StartupTimeout   time.Duration
}

// Input runs the state machine of spec.md §4.3.
type Input struct {
	cfg     Config
	factory SourceFactory
	push    FramePusher
	meta    MetaSender
	ready   ReadyWaiter
	log     zerolog.Logger

	fps float64
}

// New constructs an Input.
func New(cfg Config, factory SourceFactory, push FramePusher, meta MetaSender, ready ReadyWaiter, log zerolog.Logger) *Input {
	if cfg.MetaTimeout <= 0 {
		cfg.MetaTimeout = time.Second
	}
	if cfg.EosFanoutTimeout <= 0 {
		cfg.EosFanoutTimeout = time.Second
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = 30 * time.Second
	}
	return &Input{cfg: cfg, factory: factory, push: push, meta: meta, ready: ready, log: log, fps: 30}
}

// Run blocks on the worker-ready startup barrier, then loops building
// and draining streams until ctx is cancelled, a fatal pipeline error
// occurs, or a one-shot stream finishes.
func (in *Input) Run(ctx context.Context) error {
	if err := in.waitForWorker(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		shutdown, err := in.runStream(ctx)
		if err != nil {
			return err
		}
		if shutdown {
			return nil
		}
	}
}

// waitForWorker is the startup barrier of spec.md §4.3 step 7: "before
// starting the pipeline, block on a single recv on WorkerReadySocket".
func (in *Input) waitForWorker(ctx context.Context) error {
	deadline := time.Now().Add(in.cfg.StartupTimeout)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if _, ok := in.ready.Recv(); ok {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("input: timed out waiting for a worker to dial WorkerReadySocket")
}

// runStream builds one source pipeline and drains it to EOS or error.
// Each stream gets its own ulid, a monotonically sortable id unlike the
// worker's random uuid, so a log aggregator can order and group an
// Input's streams purely by id.
func (in *Input) runStream(ctx context.Context) (shutdown bool, err error) {
	streamID := ulid.Make().String()
	in.log.Info().Str("stream_id", streamID).Msg("stream starting")
	defer in.log.Info().Str("stream_id", streamID).Msg("stream ended")

	source, err := in.factory()
	if err != nil {
		return false, err
	}
	if err := source.Start(); err != nil {
		return false, err
	}
	defer source.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil

		case sample, ok := <-source.Samples():
			if !ok {
				continue
			}
			in.sendFrame(sample)

		case ev, ok := <-source.Events():
			if !ok {
				continue
			}
			switch ev.Kind {
			case media.BusCaps:
				if fps, ok := media.ParseFramerate(ev.Caps); ok {
					in.fps = fps
				}
				if err := in.meta.EnsureSend(message.Caps{Value: ev.Caps}, in.cfg.MetaTimeout); err != nil {
					return false, err
				}
			case media.BusTag:
				if err := in.meta.EnsureSend(tagsFromMap(ev.Tags), in.cfg.MetaTimeout); err != nil {
					return false, err
				}
			case media.BusEOS:
				if err := in.push.BroadcastEOS(in.cfg.NWorkers, in.cfg.EosFanoutTimeout); err != nil {
					return false, err
				}
				return in.cfg.OneShot, nil
			case media.BusError:
				in.log.Error().Err(ev.Err).Msg("input pipeline error")
				return false, ev.Err
			}
		}
	}
}

func (in *Input) sendFrame(s media.Sample) {
	frame := message.RgbImage{
		Width:          s.Width,
		Height:         s.Height,
		Pixels:         s.Pixels,
		DTS:            s.DTS,
		PTS:            s.PTS,
		Duration:       s.Duration,
		InputTimestamp: time.Now(),
		FPS:            in.fps,
	}
	if err := frame.Validate(); err != nil {
		in.log.Warn().Err(err).Msg("dropping invalid frame")
		return
	}
	if err := in.push.Send(frame); err != nil {
		in.log.Warn().Err(err).Str("size", humanize.Bytes(uint64(len(frame.Pixels)))).
			Msg("dropping frame: input push would block")
	}
}

func tagsFromMap(m map[string]string) message.Tags {
	t := message.Tags{Entries: make([]message.TagEntry, 0, len(m))}
	for k, v := range m {
		t.Entries = append(t.Entries, message.TagEntry{Name: k, Value: v})
	}
	return t
}
