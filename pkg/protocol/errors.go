package protocol

import (
    "errors"
    "fmt"
)

// ErrFraming matches every *FramingError via errors.Is.
var ErrFraming = errors.New("framing error")

// FramingError reports a malformed or truncated frame. It is fatal to the
// connection the frame was read from.
type FramingError struct {
    Op  string
    Err error
}

func (e *FramingError) Error() string {
    if e.Err == nil { return "framing: " + e.Op }
    return fmt.Sprintf("framing: %s: %v", e.Op, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

func (e *FramingError) Is(target error) bool { return target == ErrFraming }

// Framing builds a *FramingError; format arguments are applied to msg.
func Framing(op string, msg string, args ...any) error {
    return &FramingError{Op: op, Err: fmt.Errorf(msg, args...)}
}

// IsFraming reports whether err is (or wraps) a framing error.
func IsFraming(err error) bool { return errors.Is(err, ErrFraming) }
