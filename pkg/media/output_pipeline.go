package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
	"github.com/pipeless-go/pipeless/pkg/message"
)

// OutputPipeline wraps one Output stream's pipeline (spec.md §4.5):
// built on first StreamCaps, keyed by (protocol, location), fed through
// a named appsrc and carrying a taginject element and (for file/rtmp)
// an encoder whose bitrate property handle_input_messages can update.
// Grounded on the appsrc wiring of the example corpus's MicStreamer.
type OutputPipeline struct {
	Key      PipelineKey
	pipeline *gst.Pipeline
	appsrc   *app.Source

	taginject *gst.Element
	encoder   *gst.Element

	stopOnce sync.Once
	done     chan struct{}
}

// NewOutputPipeline parses the graph for key/capsStr (from BuildGraph)
// and wires the named appsrc, taginject and (if present) encoder.
func NewOutputPipeline(key PipelineKey, capsStr string) (*OutputPipeline, error) {
	Init()

	graphStr, err := BuildGraph(key, capsStr)
	if err != nil {
		return nil, err
	}
	pipeline, err := gst.NewPipelineFromString(graphStr)
	if err != nil {
		return nil, fmt.Errorf("media: parse output pipeline: %w", err)
	}

	srcElem, err := pipeline.GetElementByName("pipeless-appsrc")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("media: missing pipeless-appsrc: %w", err)
	}
	src := app.SrcFromElement(srcElem)

	p := &OutputPipeline{
		Key:      key,
		pipeline: pipeline,
		appsrc:   src,
		done:     make(chan struct{}),
	}

	if key.HasEncoder() {
		if tagElem, err := pipeline.GetElementByName("pipeless-taginject"); err == nil {
			p.taginject = tagElem
		}
		if encElem, err := pipeline.GetElementByName("pipeless-encoder"); err == nil {
			p.encoder = encElem
		}
	}

	return p, nil
}

// Start configures the appsrc for live TIME-format pushing and sets the
// pipeline to PLAYING, per spec.md §4.5's appsrc configuration.
func (p *OutputPipeline) Start() error {
	p.appsrc.SetProperty("format", gst.FormatTime)
	p.appsrc.SetProperty("is-live", true)
	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("media: set output pipeline playing: %w", err)
	}
	return nil
}

// PushFrame wraps pixels as a GStreamer buffer and pushes it into the
// appsrc, copying pts/dts/duration unless the protocol excludes them
// (spec.md §4.5: "unless the sink is screen").
func (p *OutputPipeline) PushFrame(pixels []byte, pts, dts, duration time.Duration) gst.FlowReturn {
	buf := gst.NewBufferFromBytes(pixels)
	if p.Key.CopiesTimestamps() {
		buf.SetPresentationTimestamp(gst.ClockTime(pts))
		buf.SetDecodingTimestamp(gst.ClockTime(dts))
		buf.SetDuration(gst.ClockTime(duration))
	}
	return p.appsrc.PushBuffer(buf)
}

// EndStream signals end-of-stream on the appsrc (spec.md §4.5
// fetch_and_send: "on Eos, call end_of_stream() on the appsrc").
func (p *OutputPipeline) EndStream() gst.FlowReturn {
	return p.appsrc.EndStream()
}

// UpdateTags pushes the merged tag set onto the taginject element and,
// for protocols with an encoder, applies a changed bitrate to the
// encoder's bitrate property (spec.md §4.5).
func (p *OutputPipeline) UpdateTags(merged message.Tags) {
	if p.taginject != nil {
		p.taginject.SetProperty("tags", TagInjectString(merged))
	}
	if p.encoder != nil {
		if kbps, ok := BitrateProperty(merged); ok {
			p.encoder.SetProperty("bitrate", kbps)
		}
	}
}

// Stop tears the pipeline down.
func (p *OutputPipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.pipeline != nil {
			p.pipeline.SetState(gst.StateNull)
		}
	})
}
