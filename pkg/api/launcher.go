package api

import (
    "context"
    "time"
)

// LaunchSpec describes one node process to start.
type LaunchSpec struct {
    Executable  string
    Args        []string
    Env         []string // appended to the host environment
    Dir         string
    LowPriority bool
}

// Launcher starts node processes.
type Launcher interface {
    // Launch starts a process; it returns once the process is running, not
    // once it is ready to accept a connection.
    Launch(ctx context.Context, spec LaunchSpec) (Process, error)
    // Attach wraps an already running process found through the idle catalog.
    Attach(pid int) (Process, error)
}

// Process is a running node process.
type Process interface {
    PID() int
    // Exited is closed when the process is known to have exited. Attached
    // processes that are not children of this host may never close it.
    Exited() <-chan struct{}
    // Kill terminates the process and every process it spawned, waiting up
    // to timeout for the exit.
    Kill(timeout time.Duration) error
    // Diagnostics returns the tail of the process's stderr, if captured.
    Diagnostics() string
}
