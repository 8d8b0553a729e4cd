package message

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	errPTSNegative = errors.New("rgb image pts must be >= 0")
	errDTSAfterPTS = errors.New("rgb image dts must not be after pts")
)

// ErrBufferMismatch is returned when a frame's pixel buffer length does
// not match width*height*3 (spec.md §3 invariant).
type ErrBufferMismatch struct {
	Want, Got int
}

func (e *ErrBufferMismatch) Error() string {
	return fmt.Sprintf("rgb image pixel buffer length mismatch: want %d, got %d", e.Want, e.Got)
}

// ErrUnknownKind is returned by Decode when the wire tag byte does not
// match any known variant.
type ErrUnknownKind struct {
	Kind byte
}

func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("message: unknown wire kind %d", e.Kind)
}
