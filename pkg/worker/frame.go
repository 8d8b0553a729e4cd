package worker

import (
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
)

// frameToMap exposes an RgbImage to the JS hook chain as a plain
// object, the representation pkg/script's goja.Runtime round-trips
// most predictably (struct values passed by value can't be mutated
// in place from JS; a map gives hooks a familiar, serializable shape).
func frameToMap(img message.RgbImage) map[string]any {
	return map[string]any{
		"width":           img.Width,
		"height":          img.Height,
		"pixels":          img.Pixels,
		"dts":             int64(img.DTS),
		"pts":             int64(img.PTS),
		"duration":        int64(img.Duration),
		"input_timestamp": img.InputTimestamp,
		"fps":             img.FPS,
	}
}

// mapToFrame rebuilds an RgbImage from a hook's returned value,
// falling back to fallback's fields for anything missing or the wrong
// type — hooks that only touch pixels need not round-trip every field.
func mapToFrame(v any, fallback message.RgbImage) message.RgbImage {
	m, ok := v.(map[string]interface{})
	if !ok {
		return fallback
	}
	out := fallback
	if w, ok := toInt(m["width"]); ok {
		out.Width = w
	}
	if h, ok := toInt(m["height"]); ok {
		out.Height = h
	}
	if px, ok := m["pixels"].([]byte); ok {
		out.Pixels = px
	}
	if d, ok := toInt64(m["dts"]); ok {
		out.DTS = time.Duration(d)
	}
	if p, ok := toInt64(m["pts"]); ok {
		out.PTS = time.Duration(p)
	}
	if d, ok := toInt64(m["duration"]); ok {
		out.Duration = time.Duration(d)
	}
	if f, ok := m["fps"].(float64); ok {
		out.FPS = f
	}
	return out
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
