package input

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/message"
)

type fakeSource struct {
	samples chan media.Sample
	events  chan media.BusEvent
	started bool
	stopped bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		samples: make(chan media.Sample, 8),
		events:  make(chan media.BusEvent, 8),
	}
}

func (f *fakeSource) Start() error                        { f.started = true; return nil }
func (f *fakeSource) Samples() <-chan media.Sample         { return f.samples }
func (f *fakeSource) Events() <-chan media.BusEvent        { return f.events }
func (f *fakeSource) Stop()                                { f.stopped = true }

type fakePush struct {
	sent         []message.Message
	broadcastN   int
	broadcastErr error
}

func (f *fakePush) Send(m message.Message) error {
	f.sent = append(f.sent, m)
	return nil
}

func (f *fakePush) BroadcastEOS(n int, _ time.Duration) error {
	f.broadcastN = n
	return f.broadcastErr
}

type fakeMeta struct {
	sent []message.Message
}

func (f *fakeMeta) EnsureSend(m message.Message, _ time.Duration) error {
	f.sent = append(f.sent, m)
	return nil
}

type fakeReady struct {
	ready bool
}

func (f *fakeReady) Recv() (message.Message, bool) {
	if f.ready {
		f.ready = false
		return message.Tags{}, true
	}
	return nil, false
}

func TestInput_WaitsForWorkerThenStreams(t *testing.T) {
	source := newFakeSource()
	push := &fakePush{}
	meta := &fakeMeta{}
	ready := &fakeReady{ready: true}

	cfg := Config{NWorkers: 2, OneShot: true, StartupTimeout: time.Second}
	in := New(cfg, func() (SampleSource, error) { return source, nil }, push, meta, ready, zerolog.Nop())

	go func() {
		time.Sleep(10 * time.Millisecond)
		source.events <- media.BusEvent{Kind: media.BusCaps, Caps: "video/x-raw,format=RGB,width=2,height=1,framerate=30/1"}
		source.samples <- media.Sample{Width: 2, Height: 1, Pixels: []byte{1, 2, 3, 4, 5, 6}}
		source.events <- media.BusEvent{Kind: media.BusEOS}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := in.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !source.started || !source.stopped {
		t.Fatal("source was not started/stopped")
	}
	if len(meta.sent) != 1 {
		t.Fatalf("meta.sent = %d, want 1 (Caps)", len(meta.sent))
	}
	if _, ok := meta.sent[0].(message.Caps); !ok {
		t.Fatalf("meta.sent[0] = %T, want Caps", meta.sent[0])
	}
	if len(push.sent) != 1 {
		t.Fatalf("push.sent = %d, want 1 frame", len(push.sent))
	}
	if push.broadcastN != 2 {
		t.Fatalf("BroadcastEOS n = %d, want 2", push.broadcastN)
	}
}

func TestInput_StartupBarrierTimesOut(t *testing.T) {
	source := newFakeSource()
	push := &fakePush{}
	meta := &fakeMeta{}
	ready := &fakeReady{ready: false}

	cfg := Config{NWorkers: 1, StartupTimeout: 30 * time.Millisecond}
	in := New(cfg, func() (SampleSource, error) { return source, nil }, push, meta, ready, zerolog.Nop())

	err := in.Run(context.Background())
	if err == nil {
		t.Fatal("expected a startup barrier timeout error")
	}
	if source.started {
		t.Fatal("source should never start without a ready worker")
	}
}

func TestInput_ErrorEventIsFatal(t *testing.T) {
	source := newFakeSource()
	push := &fakePush{}
	meta := &fakeMeta{}
	ready := &fakeReady{ready: true}

	wantErr := errors.New("decode failed")
	go func() {
		time.Sleep(10 * time.Millisecond)
		source.events <- media.BusEvent{Kind: media.BusError, Err: wantErr}
	}()

	cfg := Config{NWorkers: 1, StartupTimeout: time.Second}
	in := New(cfg, func() (SampleSource, error) { return source, nil }, push, meta, ready, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := in.Run(ctx); err == nil {
		t.Fatal("expected the pipeline error to propagate")
	}
}

func TestInput_NonOneShotRebuildsAfterEOS(t *testing.T) {
	first := newFakeSource()
	second := newFakeSource()
	calls := 0
	factory := func() (SampleSource, error) {
		calls++
		if calls == 1 {
			return first, nil
		}
		return second, nil
	}

	push := &fakePush{}
	meta := &fakeMeta{}
	ready := &fakeReady{ready: true}

	go func() {
		time.Sleep(10 * time.Millisecond)
		first.events <- media.BusEvent{Kind: media.BusEOS}
	}()

	cfg := Config{NWorkers: 1, OneShot: false, StartupTimeout: time.Second}
	in := New(cfg, factory, push, meta, ready, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = in.Run(ctx) // expected to end via ctx timeout while draining the rebuilt second source

	if calls < 2 {
		t.Fatalf("factory called %d times, want >= 2 (rebuild after EOS)", calls)
	}
	if !first.stopped {
		t.Fatal("first source was not stopped before rebuilding")
	}
}
