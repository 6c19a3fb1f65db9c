package netstack

import (
    "context"
    "errors"
    "net"
    "time"

    "buildnode/pkg/transport"
)

// ErrIdle is returned by AcceptWithin when nobody connected in time.
var ErrIdle = errors.New("no connection within idle timeout")

// AcceptWithin waits up to timeout for the next inbound connection. A
// non-positive timeout waits until ctx is done.
func AcceptWithin(ctx context.Context, l transport.Listener, timeout time.Duration) (net.Conn, error) {
    actx := ctx
    if timeout > 0 {
        var cancel context.CancelFunc
        actx, cancel = context.WithTimeout(ctx, timeout)
        defer cancel()
    }
    c, err := l.Accept(actx)
    if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) { return nil, ErrIdle }
    return c, err
}
