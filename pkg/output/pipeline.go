package output

import (
	"fmt"
	"time"

	"github.com/go-gst/go-gst/gst"

	"github.com/pipeless-go/pipeless/pkg/media"
	"github.com/pipeless-go/pipeless/pkg/message"
)

// Pipeline is the subset of *media.OutputPipeline the Output state
// machine drives, kept as an interface so tests can fake a pipeline
// without a real GStreamer runtime.
type Pipeline interface {
	Start() error
	PushFrame(pixels []byte, pts, dts, duration time.Duration) error
	EndStream() error
	UpdateTags(tags message.Tags)
	Stop()
}

// PipelineFactory builds a Pipeline for the given stream key and appsrc
// caps, per spec.md §4.5's "build one per stream, keyed by (protocol,
// location)".
type PipelineFactory func(key media.PipelineKey, capsStr string) (Pipeline, error)

// NewGstPipeline is the production PipelineFactory, adapting
// *media.OutputPipeline's gst.FlowReturn results to plain errors.
func NewGstPipeline(key media.PipelineKey, capsStr string) (Pipeline, error) {
	p, err := media.NewOutputPipeline(key, capsStr)
	if err != nil {
		return nil, err
	}
	return &gstPipeline{p: p}, nil
}

type gstPipeline struct {
	p *media.OutputPipeline
}

func (g *gstPipeline) Start() error { return g.p.Start() }

func (g *gstPipeline) PushFrame(pixels []byte, pts, dts, duration time.Duration) error {
	return flowErr(g.p.PushFrame(pixels, pts, dts, duration))
}

func (g *gstPipeline) EndStream() error {
	return flowErr(g.p.EndStream())
}

func (g *gstPipeline) UpdateTags(tags message.Tags) { g.p.UpdateTags(tags) }

func (g *gstPipeline) Stop() { g.p.Stop() }

func flowErr(fr gst.FlowReturn) error {
	if fr == gst.FlowOK {
		return nil
	}
	return fmt.Errorf("output: appsrc push failed: %s", fr)
}
