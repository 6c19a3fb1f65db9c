package node

import "errors"

// State is the lifecycle position of a node context.
type State int32

const (
    StateConnecting State = iota
    StateHandshaking
    StateReady
    StateDraining
    StateTerminated
)

func (s State) String() string {
    switch s {
    case StateConnecting:
        return "connecting"
    case StateHandshaking:
        return "handshaking"
    case StateReady:
        return "ready"
    case StateDraining:
        return "draining"
    case StateTerminated:
        return "terminated"
    default:
        return "unknown"
    }
}

var (
    // ErrNotReady is returned when sending to a context that is not Ready or Draining.
    ErrNotReady = errors.New("node not ready")
    // ErrDisconnected is the termination cause when the transport fails or the
    // remote closes outside a shutdown.
    ErrDisconnected = errors.New("node disconnected")
    // ErrForced is the termination cause of an owner-requested forceful termination.
    ErrForced = errors.New("node forcefully terminated")
    // ErrDrainTimeout is the termination cause when a graceful close did not
    // finish within the drain timeout.
    ErrDrainTimeout = errors.New("node drain timed out")
)
