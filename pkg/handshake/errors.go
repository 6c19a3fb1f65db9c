package handshake

import (
    "errors"
    "fmt"
    "strings"
)

var (
    ErrMismatch = errors.New("handshake mismatch")
    ErrTimeout  = errors.New("handshake timeout")
)

// MismatchError carries both sides of a failed comparison.
type MismatchError struct {
    Local  Handshake
    Remote Handshake
}

func (e *MismatchError) Error() string {
    var diff []string
    if x := e.Local.Options ^ e.Remote.Options; x != 0 {
        diff = append(diff, fmt.Sprintf("options differ in %s (local %s, remote %s)", x, e.Local.Options, e.Remote.Options))
    }
    if e.Local.Salt != e.Remote.Salt {
        diff = append(diff, fmt.Sprintf("salt local %08x remote %08x", uint32(e.Local.Salt), uint32(e.Remote.Salt)))
    }
    return "handshake mismatch: " + strings.Join(diff, "; ")
}

func (e *MismatchError) Is(target error) bool { return target == ErrMismatch }

// Check returns a *MismatchError when remote is not compatible with local.
func Check(local, remote Handshake) error {
    if Compatible(local, remote) { return nil }
    return &MismatchError{Local: local, Remote: remote}
}
