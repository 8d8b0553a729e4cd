// Package media builds the GStreamer pipelines of spec.md §4.3 and
// §4.5 and the tag merge/sanitization rules each stream's
// handle_input_messages task needs.
package media

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
)

// MergeTags implements spec.md §4.5's merge(old, new) KEEP policy: all
// old tags are kept, overridden on name collision by the new value.
func MergeTags(old, new message.Tags) message.Tags {
	merged := make(map[string]string, len(old.Entries)+len(new.Entries))
	order := make([]string, 0, len(old.Entries)+len(new.Entries))
	for _, e := range old.Entries {
		if _, seen := merged[e.Name]; !seen {
			order = append(order, e.Name)
		}
		merged[e.Name] = e.Value
	}
	for _, e := range new.Entries {
		if _, seen := merged[e.Name]; !seen {
			order = append(order, e.Name)
		}
		merged[e.Name] = e.Value
	}
	out := message.Tags{Entries: make([]message.TagEntry, 0, len(order))}
	for _, name := range order {
		out.Entries = append(out.Entries, message.TagEntry{Name: name, Value: merged[name]})
	}
	return out
}

// SanitizeDatetime serializes t as ISO-8601, per spec.md §4.5.
func SanitizeDatetime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// TagInjectString renders tags as the comma-joined, quoted key=value
// pairs the GStreamer taginject element's "tags" property expects,
// per spec.md §4.5's sanitization rule. Entries are sorted by name for
// a deterministic property string (taginject merges regardless of
// order, but stable output keeps logs and tests reproducible).
func TagInjectString(tags message.Tags) string {
	names := make([]string, 0, len(tags.Entries))
	byName := make(map[string]string, len(tags.Entries))
	for _, e := range tags.Entries {
		if _, ok := byName[e.Name]; !ok {
			names = append(names, e.Name)
		}
		byName[e.Name] = e.Value
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		value := byName[name]
		if name == "datetime" {
			value = sanitizeDatetimeValue(value)
		}
		parts = append(parts, fmt.Sprintf("%s=%s", name, quoteTagValue(value)))
	}
	return strings.Join(parts, ",")
}

// sanitizeDatetimeValue reformats a "datetime" tag's raw value to
// ISO-8601 via SanitizeDatetime, per spec.md §4.5. The decoder's
// GstDateTime can reach this as any of a few common layouts by the time
// it is a plain string in a message.Tags entry; an unrecognized layout
// is passed through unchanged rather than dropped.
func sanitizeDatetimeValue(raw string) string {
	layouts := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return SanitizeDatetime(t)
		}
	}
	return raw
}

func quoteTagValue(v string) string {
	return strconv.Quote(v)
}

// BitrateProperty returns the bitrate tag value parsed as an encoder
// property value (x264enc's "bitrate" property is in kbit/s), and
// whether the tag was present at all. Spec.md §4.5: "if the tag is
// bitrate, update the encoder property."
func BitrateProperty(tags message.Tags) (int, bool) {
	v, ok := tags.Get("bitrate")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}
