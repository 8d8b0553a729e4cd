package message

import (
	"encoding/binary"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// json is the faster drop-in encoding/json replacement the teacher pack
// depends on directly; message headers are small and decoded once per
// frame, so the API-compatible default config is enough.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

type capsHeader struct {
	Value string `json:"value"`
}

type tagsHeader struct {
	Entries []TagEntry `json:"entries"`
}

type rgbHeader struct {
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	PixelsLen      int     `json:"pixels_len"`
	DTS            int64   `json:"dts"`
	PTS            int64   `json:"pts"`
	Duration       int64   `json:"duration"`
	InputTimestamp int64   `json:"input_timestamp"`
	FPS            float64 `json:"fps"`
}

// Parts is the scatter-gather encoding of one message: a 1-byte kind tag,
// a length-prefixed JSON header, and (for RgbImage only) the raw pixel
// payload. Transport sends Parts as a net.Buffers scatter/gather write so
// the pixel slice is never copied into an intermediate buffer between
// decode-from-media-framework and write-to-socket.
type Parts struct {
	Kind    Kind
	Header  []byte // length-prefixed: 4-byte BE length + JSON body
	Payload []byte // nil for everything but RgbImage
}

// Bytes concatenates Parts into one contiguous buffer. Used by callers
// that need a single []byte (tests, or sockets without writev support);
// this is where a copy happens, deliberately kept out of EncodeParts.
func (p Parts) Bytes() []byte {
	out := make([]byte, 0, 1+len(p.Header)+len(p.Payload))
	out = append(out, byte(p.Kind))
	out = append(out, p.Header...)
	out = append(out, p.Payload...)
	return out
}

func lengthPrefixed(body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(len(body)))
	copy(out[4:], body)
	return out
}

// EncodeParts builds the scatter/gather encoding of m without copying an
// RgbImage's pixel buffer.
func EncodeParts(m Message) (Parts, error) {
	switch v := m.(type) {
	case Caps:
		body, err := json.Marshal(capsHeader{Value: v.Value})
		if err != nil {
			return Parts{}, err
		}
		return Parts{Kind: KindCaps, Header: lengthPrefixed(body)}, nil

	case Tags:
		body, err := json.Marshal(tagsHeader{Entries: v.Entries})
		if err != nil {
			return Parts{}, err
		}
		return Parts{Kind: KindTags, Header: lengthPrefixed(body)}, nil

	case Eos:
		return Parts{Kind: KindEos, Header: lengthPrefixed([]byte("{}"))}, nil

	case RgbImage:
		hdr := rgbHeader{
			Width:          v.Width,
			Height:         v.Height,
			PixelsLen:      len(v.Pixels),
			DTS:            int64(v.DTS),
			PTS:            int64(v.PTS),
			Duration:       int64(v.Duration),
			InputTimestamp: v.InputTimestamp.UnixNano(),
			FPS:            v.FPS,
		}
		body, err := json.Marshal(hdr)
		if err != nil {
			return Parts{}, err
		}
		return Parts{Kind: KindRgbImage, Header: lengthPrefixed(body), Payload: v.Pixels}, nil

	default:
		return Parts{}, &ErrUnknownKind{Kind: 0}
	}
}

// Encode returns the single-buffer encoding of m (a copy of EncodeParts'
// scatter/gather form). Prefer EncodeParts on the hot frame path.
func Encode(m Message) ([]byte, error) {
	parts, err := EncodeParts(m)
	if err != nil {
		return nil, err
	}
	return parts.Bytes(), nil
}

// Decode parses a single contiguous buffer produced by Encode (or
// reassembled by transport from the wire) back into a Message.
func Decode(data []byte) (Message, error) {
	if len(data) < 1 {
		return nil, &ErrUnknownKind{Kind: 0}
	}
	kind := Kind(data[0])
	rest := data[1:]
	if len(rest) < 4 {
		return nil, &ErrUnknownKind{Kind: byte(kind)}
	}
	hdrLen := binary.BigEndian.Uint32(rest[:4])
	rest = rest[4:]
	if uint32(len(rest)) < hdrLen {
		return nil, &ErrUnknownKind{Kind: byte(kind)}
	}
	header := rest[:hdrLen]
	payload := rest[hdrLen:]

	switch kind {
	case KindCaps:
		var h capsHeader
		if err := json.Unmarshal(header, &h); err != nil {
			return nil, err
		}
		return Caps{Value: h.Value}, nil

	case KindTags:
		var h tagsHeader
		if err := json.Unmarshal(header, &h); err != nil {
			return nil, err
		}
		return Tags{Entries: h.Entries}, nil

	case KindEos:
		return Eos{}, nil

	case KindRgbImage:
		var h rgbHeader
		if err := json.Unmarshal(header, &h); err != nil {
			return nil, err
		}
		if len(payload) != h.PixelsLen {
			return nil, &ErrBufferMismatch{Want: h.PixelsLen, Got: len(payload)}
		}
		return RgbImage{
			Width:          h.Width,
			Height:         h.Height,
			Pixels:         payload,
			DTS:            time.Duration(h.DTS),
			PTS:            time.Duration(h.PTS),
			Duration:       time.Duration(h.Duration),
			InputTimestamp: time.Unix(0, h.InputTimestamp).UTC(),
			FPS:            h.FPS,
		}, nil

	default:
		return nil, &ErrUnknownKind{Kind: byte(kind)}
	}
}
