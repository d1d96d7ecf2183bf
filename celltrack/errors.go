package celltrack

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoFrames is returned when a run is started on an empty sequence
	ErrNoFrames = errors.New("sequence contains no frames")
	// ErrNegativeLabel marks label images carrying values below zero
	ErrNegativeLabel = errors.New("negative label value")
	// ErrDimensionMismatch marks frames whose size differs from the first frame
	ErrDimensionMismatch = errors.New("frame dimensions differ from previous frames")
	// ErrEmptyImage marks frames with zero width or height
	ErrEmptyImage = errors.New("label image has zero size")
)

// InputError reports a malformed input frame. The run is aborted and nothing is emitted.
type InputError struct {
	Frame int
	Err   error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("frame %d: invalid input: %v", e.Frame, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// InvariantError reports an internal contract violation between solver and track
// manager (e.g. two tracks claiming the same instance). It is always fatal.
type InvariantError struct {
	Frame int
	Msg   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("frame %d: tracking invariant violated: %s", e.Frame, e.Msg)
}

func invariantf(frame int, format string, args ...any) error {
	return &InvariantError{Frame: frame, Msg: fmt.Sprintf(format, args...)}
}
