package api

import (
    "context"

    "buildnode/pkg/packet"
)

// Executor runs engine work on a node. It receives every payload packet and
// may answer with one payload, sent back to the host in order.
type Executor interface {
    Execute(ctx context.Context, req *packet.Payload) (*packet.Payload, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req *packet.Payload) (*packet.Payload, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *packet.Payload) (*packet.Payload, error) { return f(ctx, req) }
