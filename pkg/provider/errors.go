package provider

import (
    "errors"
    "fmt"

    "buildnode/pkg/transport"
)

var (
    // ErrCapacityExceeded is returned by CreateNode when the pool is full.
    // No process is started.
    ErrCapacityExceeded = errors.New("node pool at capacity")
    // ErrNodeExists is returned by CreateNode for an id that is live or being created.
    ErrNodeExists = errors.New("node id already in use")
    // ErrUnknownNode is returned for ids that are not registered.
    ErrUnknownNode = errors.New("unknown node")
    // ErrLaunchFailed matches every *LaunchError.
    ErrLaunchFailed = errors.New("node launch failed")
    // ErrNoNodes is returned by AcquireNodes when not a single node could be created.
    ErrNoNodes = errors.New("no nodes acquired")
)

// LaunchError reports a node process that could not be started or never
// accepted a connection.
type LaunchError struct {
    NodeID   int
    PID      int
    Endpoint transport.Endpoint
    // Diagnostics is the tail of the process's stderr, when captured.
    Diagnostics string
    Err         error
}

func (e *LaunchError) Error() string {
    msg := fmt.Sprintf("launch node %d", e.NodeID)
    if e.PID != 0 { msg += fmt.Sprintf(" (pid %d, %s)", e.PID, e.Endpoint) }
    msg += ": " + e.Err.Error()
    if e.Diagnostics != "" { msg += "\n" + e.Diagnostics }
    return msg
}

func (e *LaunchError) Unwrap() error { return e.Err }

func (e *LaunchError) Is(target error) bool { return target == ErrLaunchFailed }
