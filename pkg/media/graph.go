package media

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Protocol is the output sink family selected from a stream's URI
// scheme and file extension, keying pipeline construction per spec.md
// §4.5's protocol table.
type Protocol string

const (
	ProtocolFile   Protocol = "file"
	ProtocolRTMP   Protocol = "rtmp"
	ProtocolScreen Protocol = "screen"
	ProtocolRTSP   Protocol = "rtsp"
	ProtocolHTTPS  Protocol = "https"
)

// DetectProtocol maps a configured output URI to its Protocol: the
// screen literal, rtmp://, rtsp://, and http:// or https:// (both map
// to ProtocolHTTPS); any other URI is treated as ProtocolFile.
func DetectProtocol(uri string) Protocol {
	switch {
	case uri == "screen":
		return ProtocolScreen
	case strings.HasPrefix(uri, "rtmp://"):
		return ProtocolRTMP
	case strings.HasPrefix(uri, "rtsp://"):
		return ProtocolRTSP
	case strings.HasPrefix(uri, "https://"), strings.HasPrefix(uri, "http://"):
		return ProtocolHTTPS
	default:
		return ProtocolFile
	}
}

// Location strips the scheme from uri, yielding the value the sink
// element's location/URI property expects.
func Location(uri string) string {
	if u, err := url.Parse(uri); err == nil && u.Scheme != "" {
		return strings.TrimPrefix(uri, u.Scheme+"://")
	}
	return uri
}

// PipelineKey identifies one Output pipeline instance, per spec.md
// §4.5's "keyed by (protocol, location)".
type PipelineKey struct {
	Protocol Protocol
	Location string
}

// KeyFor derives a PipelineKey from an output URI.
func KeyFor(uri string) PipelineKey {
	return PipelineKey{Protocol: DetectProtocol(uri), Location: Location(uri)}
}

// ParseFramerate extracts the framerate=N/D field from a caps string,
// returning N/D as a float64, or false if the field is absent.
func ParseFramerate(caps string) (float64, bool) {
	for _, field := range strings.Split(caps, ",") {
		field = strings.TrimSpace(field)
		if !strings.HasPrefix(field, "framerate=") {
			continue
		}
		v := strings.TrimPrefix(field, "framerate=")
		parts := strings.SplitN(v, "/", 2)
		num, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, false
		}
		den := 1
		if len(parts) == 2 {
			den, err = strconv.Atoi(parts[1])
			if err != nil || den == 0 {
				return 0, false
			}
		}
		return float64(num) / float64(den), true
	}
	return 0, false
}

// AppsrcCaps builds the appsrc caps string from a stream's negotiated
// width/height/framerate, per spec.md §4.5: "caps =
// video/x-raw,format=RGB,width=W,height=H,framerate=F/D".
func AppsrcCaps(width, height int, fpsNum, fpsDen int) string {
	if fpsDen <= 0 {
		fpsDen = 1
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/%d", width, height, fpsNum, fpsDen)
}

// BuildGraph returns the GStreamer pipeline description string for one
// Output stream, from appsrc through to the sink, per spec.md §4.5's
// protocol table. capsStr is the appsrc caps from AppsrcCaps.
func BuildGraph(key PipelineKey, capsStr string) (string, error) {
	appsrc := fmt.Sprintf("appsrc name=pipeless-appsrc is-live=true format=time max-bytes=1073741824 caps=%q", capsStr)

	switch key.Protocol {
	case ProtocolFile:
		if !strings.HasSuffix(key.Location, ".mp4") {
			return "", fmt.Errorf("media: file output %q: only .mp4 is supported", key.Location)
		}
		return fmt.Sprintf(
			"%s ! videoconvert ! capsfilter caps=video/x-raw,format=I420 ! x264enc name=pipeless-encoder ! taginject name=pipeless-taginject ! mp4mux ! filesink location=%q",
			appsrc, key.Location,
		), nil
	case ProtocolRTMP:
		return fmt.Sprintf(
			"%s ! videoconvert ! queue ! x264enc name=pipeless-encoder ! taginject name=pipeless-taginject ! flvmux streamable=true ! rtmpsink location=%q",
			appsrc, "rtmp://"+key.Location,
		), nil
	case ProtocolScreen:
		return fmt.Sprintf("%s ! queue ! videoconvert ! queue ! autovideosink", appsrc), nil
	case ProtocolRTSP:
		return fmt.Sprintf("%s ! rtspclientsink location=%q", appsrc, "rtsp://"+key.Location), nil
	case ProtocolHTTPS:
		return fmt.Sprintf("%s ! souphttpsink location=%q", appsrc, key.Location), nil
	default:
		return "", fmt.Errorf("media: unknown output protocol %q", key.Protocol)
	}
}

// CopiesTimestamps reports whether fetch_and_send should copy pts/dts/
// duration onto the appsrc buffer for this protocol: spec.md §4.5
// excludes screen ("no timestamps copied").
func (p Protocol) CopiesTimestamps() bool {
	return p != ProtocolScreen
}

// HasEncoder reports whether this pipeline contains the x264enc stage
// whose bitrate property handle_input_messages updates on a bitrate tag.
func (p Protocol) HasEncoder() bool {
	return p == ProtocolFile || p == ProtocolRTMP
}

// InputSourceBin builds Input's source bin for input.video.uri, per
// spec.md §4.3 step 1: v4l2 forces a fixed 1280x720 resolution and a
// synthetic caps announcement; any other URI decodes dynamically via
// decodebin/uridecodebin, which emits pads as streams are discovered.
func InputSourceBin(uri string) (pipelineStr string, forcedCaps string, isV4L2 bool) {
	if uri == "v4l2" {
		caps := "video/x-raw,width=1280,height=720"
		return fmt.Sprintf(
			"v4l2src device=/dev/video0 ! capsfilter caps=%q ! videoconvert ! capsfilter caps=video/x-raw,format=RGB ! appsink name=pipeless-appsink",
			caps,
		), "video/x-raw,format=RGB,width=1280,height=720", true
	}
	return fmt.Sprintf(
		"uridecodebin uri=%s name=pipeless-decode ! videoconvert ! capsfilter caps=video/x-raw,format=RGB ! appsink name=pipeless-appsink",
		uri,
	), "", false
}
