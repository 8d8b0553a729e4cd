package media

import (
	"testing"
	"time"

	"github.com/pipeless-go/pipeless/pkg/message"
)

func TestMergeTags_KeepsOldOverridesOnCollision(t *testing.T) {
	old := message.Tags{Entries: []message.TagEntry{{Name: "title", Value: "a"}, {Name: "artist", Value: "x"}}}
	add := message.Tags{Entries: []message.TagEntry{{Name: "title", Value: "b"}, {Name: "bitrate", Value: "2000"}}}

	got := MergeTags(old, add)
	values := map[string]string{}
	for _, e := range got.Entries {
		values[e.Name] = e.Value
	}
	if values["title"] != "b" {
		t.Fatalf("title = %q, want b (new overrides on collision)", values["title"])
	}
	if values["artist"] != "x" {
		t.Fatalf("artist = %q, want x (kept from old)", values["artist"])
	}
	if values["bitrate"] != "2000" {
		t.Fatalf("bitrate = %q, want 2000", values["bitrate"])
	}
}

func TestSanitizeDatetime_ISO8601(t *testing.T) {
	tm := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := SanitizeDatetime(tm)
	want := "2026-01-02T03:04:05Z"
	if got != want {
		t.Fatalf("SanitizeDatetime() = %q, want %q", got, want)
	}
}

func TestTagInjectString_QuotesAndSorts(t *testing.T) {
	tags := message.Tags{Entries: []message.TagEntry{{Name: "title", Value: "a b"}, {Name: "artist", Value: "c"}}}
	got := TagInjectString(tags)
	want := `artist="c",title="a b"`
	if got != want {
		t.Fatalf("TagInjectString() = %q, want %q", got, want)
	}
}

func TestTagInjectString_SanitizesDatetime(t *testing.T) {
	tags := message.Tags{Entries: []message.TagEntry{{Name: "datetime", Value: "2026-01-02 03:04:05"}}}
	got := TagInjectString(tags)
	want := `datetime="2026-01-02T03:04:05Z"`
	if got != want {
		t.Fatalf("TagInjectString() = %q, want %q", got, want)
	}
}

func TestTagInjectString_UnparseableDatetimePassesThrough(t *testing.T) {
	tags := message.Tags{Entries: []message.TagEntry{{Name: "datetime", Value: "not-a-date"}}}
	got := TagInjectString(tags)
	want := `datetime="not-a-date"`
	if got != want {
		t.Fatalf("TagInjectString() = %q, want %q", got, want)
	}
}

func TestBitrateProperty(t *testing.T) {
	tags := message.Tags{Entries: []message.TagEntry{{Name: "bitrate", Value: "4500"}}}
	v, ok := BitrateProperty(tags)
	if !ok || v != 4500 {
		t.Fatalf("BitrateProperty() = (%d, %v), want (4500, true)", v, ok)
	}

	if _, ok := BitrateProperty(message.Tags{}); ok {
		t.Fatal("BitrateProperty() ok = true for tags with no bitrate entry")
	}
}
