package media

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"
)

var gstInitOnce sync.Once

// Init initializes the GStreamer library; safe to call more than once.
func Init() {
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})
}

// Sample is one decoded video frame pulled from an Input pipeline's
// appsink, carrying the fields spec.md §4.3 step 3 extracts: "(width,
// height, dts, pts, duration), view (not copy) the pixel buffer".
type Sample struct {
	Width, Height int
	Pixels        []byte // view into the gst buffer's mapped memory; copy before retaining
	DTS           time.Duration
	PTS           time.Duration
	Duration      time.Duration
}

// BusEventKind tags the category of GStreamer bus event InputPipeline
// surfaces to its caller.
type BusEventKind int

const (
	BusCaps BusEventKind = iota
	BusTag
	BusEOS
	BusError
)

// BusEvent is one event InputPipeline.Events() delivers.
type BusEvent struct {
	Kind  BusEventKind
	Caps  string
	Tags  map[string]string
	Err   error
}

// InputPipeline wraps an Input source bin (spec.md §4.3): an appsink
// named pipeless-appsink delivers decoded samples, and the pipeline bus
// surfaces caps negotiation, tag, EOS and error events. Grounded on the
// appsink wiring and bus-poll loop of the example corpus's GstPipeline.
type InputPipeline struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink

	sampleCh chan Sample
	eventCh  chan BusEvent
	stopOnce sync.Once
	done     chan struct{}

	capsMu     sync.Mutex
	lastCaps   string
	forcedCaps string
}

// NewInputPipeline parses pipelineStr (from InputSourceBin) and wires
// the named appsink's callbacks. forcedCaps, when non-empty (v4l2's
// fixed resolution from InputSourceBin), is announced as a BusCaps event
// as soon as Start is called, per spec.md §4.3 step 1's "for v4l2,
// immediately emit a synthetic StreamCaps" instead of waiting on the
// first appsink sample.
func NewInputPipeline(pipelineStr string, forcedCaps string) (*InputPipeline, error) {
	Init()

	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("media: parse input pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("pipeless-appsink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("media: missing pipeless-appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)
	if sink == nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("media: pipeless-appsink is not an appsink")
	}

	p := &InputPipeline{
		pipeline:   pipeline,
		appsink:    sink,
		sampleCh:   make(chan Sample, DefaultFrameQueueSize),
		eventCh:    make(chan BusEvent, 16),
		done:       make(chan struct{}),
		forcedCaps: forcedCaps,
	}
	if forcedCaps != "" {
		p.lastCaps = forcedCaps
	}
	return p, nil
}

// DefaultFrameQueueSize buffers decoded samples ahead of InputPush so a
// slow push socket doesn't stall the GStreamer streaming thread.
const DefaultFrameQueueSize = 8

// Start configures the appsink callback, sets the pipeline PLAYING, and
// starts the background bus watcher.
func (p *InputPipeline) Start() error {
	p.appsink.SetProperty("emit-signals", true)
	p.appsink.SetProperty("max-buffers", uint(4))
	p.appsink.SetProperty("drop", true)
	p.appsink.SetProperty("sync", false)
	p.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onNewSample,
	})

	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("media: set input pipeline playing: %w", err)
	}
	if p.forcedCaps != "" {
		p.emit(BusEvent{Kind: BusCaps, Caps: p.forcedCaps})
	}
	go p.watchBus()
	return nil
}

func (p *InputPipeline) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return gst.FlowOK
	}
	defer buffer.Unmap()

	caps := sample.GetCaps()
	width, height := capsDimensions(caps)
	p.maybeEmitCaps(caps)

	out := Sample{
		Width:  width,
		Height: height,
		Pixels: mapInfo.Bytes(), // view, not copy: spec.md §4.3 step 3
	}
	if d := buffer.PresentationTimestamp().AsDuration(); d != nil {
		out.PTS = *d
	}
	if d := buffer.DecodingTimestamp().AsDuration(); d != nil {
		out.DTS = *d
	}
	if d := buffer.Duration().AsDuration(); d != nil {
		out.Duration = *d
	}

	select {
	case p.sampleCh <- out:
	default:
		// drop, mirrors InputPush's own non-blocking-drop policy upstream
	}
	return gst.FlowOK
}

// maybeEmitCaps emits a BusCaps event the first time a sample arrives
// and again whenever the negotiated caps string changes, per spec.md
// §4.3 step 2: "on first dynamic pad with negotiated caps, emit
// StreamCaps(caps_string)".
func (p *InputPipeline) maybeEmitCaps(caps *gst.Caps) {
	if caps == nil {
		return
	}
	s := caps.String()

	p.capsMu.Lock()
	changed := s != p.lastCaps
	if changed {
		p.lastCaps = s
	}
	p.capsMu.Unlock()

	if changed {
		p.emit(BusEvent{Kind: BusCaps, Caps: s})
	}
}

func capsDimensions(caps *gst.Caps) (int, int) {
	if caps == nil || caps.GetSize() == 0 {
		return 0, 0
	}
	s := caps.GetStructureAt(0)
	if s == nil {
		return 0, 0
	}
	w, _ := s.GetValue("width")
	h, _ := s.GetValue("height")
	wi, _ := w.(int)
	hi, _ := h.(int)
	return wi, hi
}

func (p *InputPipeline) watchBus() {
	bus := p.pipeline.GetPipelineBus()
	if bus == nil {
		return
	}
	for {
		select {
		case <-p.done:
			return
		default:
		}
		msg := bus.TimedPop(gst.ClockTime(100 * time.Millisecond))
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageTag:
			tl := msg.ParseTagList()
			if tl != nil {
				p.emit(BusEvent{Kind: BusTag, Tags: tagListToMap(tl)})
			}
		case gst.MessageEOS:
			p.emit(BusEvent{Kind: BusEOS})
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			var err error
			if gerr != nil {
				err = gerr
			}
			p.emit(BusEvent{Kind: BusError, Err: err})
			return
		}
	}
}

// tagListToMap flattens a GstTagList into the plain string map BusTag
// carries. "datetime" and other non-string tags (GstDateTime, uint) are
// stringified at the source; TagInjectString re-sanitizes "datetime" to
// ISO-8601 regardless of which layout it arrives in.
func tagListToMap(tl *gst.TagList) map[string]string {
	out := make(map[string]string, tl.NTags())
	for i := 0; i < tl.NTags(); i++ {
		name := tl.NthTagName(i)
		if s, ok := tl.GetString(name); ok {
			out[name] = s
			continue
		}
		if u, ok := tl.GetUint(name); ok {
			out[name] = strconv.FormatUint(uint64(u), 10)
			continue
		}
		if dt, ok := tl.GetDateTime(name); ok {
			out[name] = dt.ISO8601String()
		}
	}
	return out
}

func (p *InputPipeline) emit(ev BusEvent) {
	select {
	case p.eventCh <- ev:
	case <-p.done:
	}
}

// Samples returns the channel of decoded frames.
func (p *InputPipeline) Samples() <-chan Sample { return p.sampleCh }

// Events returns the channel of bus events (tags, EOS, errors).
func (p *InputPipeline) Events() <-chan BusEvent { return p.eventCh }

// Stop tears the pipeline down to NULL and stops the bus watcher.
func (p *InputPipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
		if p.pipeline != nil {
			p.pipeline.SetState(gst.StateNull)
		}
	})
}
