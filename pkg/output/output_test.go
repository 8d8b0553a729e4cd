package output

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/message"
)

type fakePipeline struct {
	started  bool
	stopped  bool
	pushed   [][]byte
	ended    bool
	tags     []message.Tags
	startErr error
}

func (f *fakePipeline) Start() error { f.started = true; return f.startErr }

func (f *fakePipeline) PushFrame(pixels []byte, _, _, _ time.Duration) error {
	f.pushed = append(f.pushed, pixels)
	return nil
}

func (f *fakePipeline) EndStream() error { f.ended = true; return nil }

func (f *fakePipeline) UpdateTags(tags message.Tags) { f.tags = append(f.tags, tags) }

func (f *fakePipeline) Stop() { f.stopped = true }

type fakePull struct {
	msgs []message.Message
	i    int
}

func (f *fakePull) Recv() (message.Message, bool) {
	if f.i >= len(f.msgs) {
		return nil, false
	}
	m := f.msgs[f.i]
	f.i++
	return m, true
}

type fakeMeta struct {
	msgs []message.Message
	i    int
}

func (f *fakeMeta) Recv() (message.Message, bool) {
	if f.i >= len(f.msgs) {
		return nil, false
	}
	m := f.msgs[f.i]
	f.i++
	return m, true
}

func TestOutput_BuildsPipelineOnFirstCaps(t *testing.T) {
	var built *fakePipeline
	factory := func(key media.PipelineKey, capsStr string) (Pipeline, error) {
		built = &fakePipeline{}
		return built, nil
	}

	meta := &fakeMeta{msgs: []message.Message{
		message.Caps{Value: "video/x-raw,format=RGB,width=2,height=1,framerate=30/1"},
		message.Eos{},
	}}
	pull := &fakePull{msgs: []message.Message{
		message.RgbImage{Width: 2, Height: 1, Pixels: []byte{1, 2, 3, 4, 5, 6}},
		message.Eos{},
	}}

	cfg := Config{Key: media.KeyFor("screen"), OneShot: true, PollInterval: time.Millisecond}
	o := New(cfg, pull, meta, factory, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if built == nil {
		t.Fatal("pipeline was never built")
	}
	if !built.started {
		t.Fatal("pipeline was never started")
	}
	if len(built.pushed) != 1 {
		t.Fatalf("pushed %d frames, want 1", len(built.pushed))
	}
	if !built.ended {
		t.Fatal("EndStream was never called")
	}
	if !built.stopped {
		t.Fatal("pipeline was never stopped")
	}
}

func TestOutput_RebuildsPipelineOnCapsChange(t *testing.T) {
	var builds []*fakePipeline
	factory := func(key media.PipelineKey, capsStr string) (Pipeline, error) {
		p := &fakePipeline{}
		builds = append(builds, p)
		return p, nil
	}

	meta := &fakeMeta{msgs: []message.Message{
		message.Caps{Value: "video/x-raw,format=RGB,width=2,height=1,framerate=30/1"},
		message.Caps{Value: "video/x-raw,format=RGB,width=4,height=4,framerate=30/1"},
		message.Eos{},
	}}
	pull := &fakePull{msgs: []message.Message{message.Eos{}}}

	cfg := Config{Key: media.KeyFor("screen"), OneShot: true, PollInterval: time.Millisecond}
	o := New(cfg, pull, meta, factory, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(builds) != 2 {
		t.Fatalf("built %d pipelines, want 2 (rebuild on caps change)", len(builds))
	}
	if !builds[0].stopped {
		t.Fatal("first pipeline was not stopped before rebuild")
	}
}

func TestOutput_MergesTagsOntoPipeline(t *testing.T) {
	var built *fakePipeline
	factory := func(key media.PipelineKey, capsStr string) (Pipeline, error) {
		built = &fakePipeline{}
		return built, nil
	}

	meta := &fakeMeta{msgs: []message.Message{
		message.Caps{Value: "video/x-raw,format=RGB,width=2,height=1,framerate=30/1"},
		message.Tags{Entries: []message.TagEntry{{Name: "title", Value: "hello"}}},
		message.Eos{},
	}}
	pull := &fakePull{msgs: []message.Message{message.Eos{}}}

	cfg := Config{Key: media.KeyFor("screen"), OneShot: true, PollInterval: time.Millisecond}
	o := New(cfg, pull, meta, factory, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := o.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(built.tags) != 1 {
		t.Fatalf("UpdateTags called %d times, want 1", len(built.tags))
	}
	if v, ok := built.tags[0].Get("title"); !ok || v != "hello" {
		t.Fatalf("tags = %+v, want title=hello", built.tags[0])
	}
}

func TestOutput_NonOneShotAwaitsNextStream(t *testing.T) {
	var builds []*fakePipeline
	factory := func(key media.PipelineKey, capsStr string) (Pipeline, error) {
		p := &fakePipeline{}
		builds = append(builds, p)
		return p, nil
	}

	meta := &fakeMeta{msgs: []message.Message{
		message.Caps{Value: "video/x-raw,format=RGB,width=2,height=1,framerate=30/1"},
		message.Eos{},
		message.Caps{Value: "video/x-raw,format=RGB,width=2,height=1,framerate=30/1"},
	}}
	pull := &fakePull{msgs: []message.Message{message.Eos{}}}

	cfg := Config{Key: media.KeyFor("screen"), OneShot: false, PollInterval: time.Millisecond}
	o := New(cfg, pull, meta, factory, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = o.Run(ctx) // expected to end via ctx timeout, not a quit decision

	if len(builds) != 1 {
		t.Fatalf("built %d pipelines, want 1 (same caps across streams reuses the pipeline)", len(builds))
	}
}
