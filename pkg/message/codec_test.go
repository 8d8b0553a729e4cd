package message

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestRoundTrip_Caps(t *testing.T) {
	m := Caps{Value: "video/x-raw,format=RGB,width=1280,height=720,framerate=30/1"}
	data, err := Encode(m)
	assert.NilError(t, err)
	got, err := Decode(data)
	assert.NilError(t, err)
	gotCaps, ok := got.(Caps)
	assert.Assert(t, ok, "expected Caps, got %T", got)
	assert.DeepEqual(t, gotCaps, m)
}

func TestRoundTrip_Tags(t *testing.T) {
	m := Tags{Entries: []TagEntry{
		{Name: "title", Value: "demo"},
		{Name: "bitrate", Value: "2000000"},
	}}
	data, err := Encode(m)
	assert.NilError(t, err)
	got, err := Decode(data)
	assert.NilError(t, err)
	gotTags, ok := got.(Tags)
	assert.Assert(t, ok, "expected Tags, got %T", got)
	assert.DeepEqual(t, gotTags, m)
}

func TestRoundTrip_Eos(t *testing.T) {
	data, err := Encode(Eos{})
	assert.NilError(t, err)
	got, err := Decode(data)
	assert.NilError(t, err)
	_, ok := got.(Eos)
	assert.Assert(t, ok, "expected Eos, got %T", got)
}

func TestRoundTrip_RgbImage(t *testing.T) {
	pixels := make([]byte, 4*4*3)
	for i := range pixels {
		pixels[i] = byte(i % 256)
	}
	ts := time.Unix(1_700_000_000, 123000).UTC()
	m := RgbImage{
		Width: 4, Height: 4, Pixels: pixels,
		DTS: 10 * time.Millisecond, PTS: 20 * time.Millisecond,
		Duration: 33 * time.Millisecond, InputTimestamp: ts, FPS: 30,
	}
	data, err := Encode(m)
	assert.NilError(t, err)
	got, err := Decode(data)
	assert.NilError(t, err)
	gotFrame, ok := got.(RgbImage)
	assert.Assert(t, ok, "expected RgbImage, got %T", got)

	assert.Equal(t, gotFrame.Width, m.Width)
	assert.Equal(t, gotFrame.Height, m.Height)
	assert.DeepEqual(t, gotFrame.Pixels, m.Pixels)
	assert.Equal(t, gotFrame.DTS, m.DTS)
	assert.Equal(t, gotFrame.PTS, m.PTS)
	assert.Equal(t, gotFrame.Duration, m.Duration)
	assert.Assert(t, gotFrame.InputTimestamp.Equal(m.InputTimestamp), "input timestamp mismatch: got %v, want %v", gotFrame.InputTimestamp, m.InputTimestamp)
	assert.Equal(t, gotFrame.FPS, m.FPS)
}

func TestEncodeParts_NoPixelCopy(t *testing.T) {
	pixels := []byte{1, 2, 3, 4, 5, 6}
	m := RgbImage{Width: 1, Height: 2, Pixels: pixels}
	parts, err := EncodeParts(m)
	assert.NilError(t, err)
	assert.Assert(t, &parts.Payload[0] == &pixels[0], "expected EncodeParts to reuse the original pixel backing array, not copy it")
}

func TestValidate_BufferMismatch(t *testing.T) {
	f := RgbImage{Width: 2, Height: 2, Pixels: []byte{1, 2, 3}}
	assert.ErrorContains(t, f.Validate(), "")
}

func TestValidate_DTSAfterPTS(t *testing.T) {
	f := RgbImage{Width: 1, Height: 1, Pixels: make([]byte, 3), DTS: 100, PTS: 50}
	assert.ErrorContains(t, f.Validate(), "")
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode([]byte{99, 0, 0, 0, 2, '{', '}'})
	assert.ErrorContains(t, err, "")
}
