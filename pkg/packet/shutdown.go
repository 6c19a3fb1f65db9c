package packet

import "buildnode/pkg/protocol/translate"

// NodeBuildComplete asks a node to finish. PrepareForReuse tells it to stay
// alive afterwards and wait for the next host.
type NodeBuildComplete struct {
    PrepareForReuse bool
}

func (*NodeBuildComplete) Type() Type { return TypeNodeBuildComplete }

func (p *NodeBuildComplete) Translate(t translate.Translator) { t.Bool(&p.PrepareForReuse) }

// ShutdownReason explains why a node is going away.
type ShutdownReason uint8

const (
    ReasonBuildComplete ShutdownReason = iota
    ReasonBuildCompleteReuse
    ReasonConnectionFailed
    ReasonError
)

func (r ShutdownReason) String() string {
    switch r {
    case ReasonBuildComplete:
        return "build-complete"
    case ReasonBuildCompleteReuse:
        return "build-complete-reuse"
    case ReasonConnectionFailed:
        return "connection-failed"
    case ReasonError:
        return "error"
    default:
        return "unknown"
    }
}

// NodeShutdown is the node's acknowledgement that it is shutting down.
type NodeShutdown struct {
    Reason ShutdownReason
    Error  string
}

func (*NodeShutdown) Type() Type { return TypeNodeShutdown }

func (p *NodeShutdown) Translate(t translate.Translator) {
    translate.Enum(t, &p.Reason)
    t.String(&p.Error)
}

// Reusable reports whether the node stays alive for another host.
func (p *NodeShutdown) Reusable() bool { return p.Reason == ReasonBuildCompleteReuse }

// TaskCancelled tells a node to cancel the work item it is running.
type TaskCancelled struct{}

func (*TaskCancelled) Type() Type { return TypeTaskCancelled }

func (*TaskCancelled) Translate(translate.Translator) {}
