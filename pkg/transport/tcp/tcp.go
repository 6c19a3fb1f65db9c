package tcp

import (
    "context"
    "net"
    "time"

    "buildnode/pkg/transport"
)

// Transport reaches nodes over loopback TCP. Nagle is disabled; packets are
// small and latency bound.
type Transport struct {
    KeepAlive time.Duration
}

func New() *Transport { return &Transport{KeepAlive: 15 * time.Second} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    lc := net.ListenConfig{KeepAlive: t.KeepAlive}
    l, err := lc.Listen(ctx, "tcp", address)
    if err != nil { return nil, err }
    return transport.WrapListener(ctx, noDelayListener{l}), nil
}

func (t *Transport) Dial(ctx context.Context, address string) (net.Conn, error) {
    d := &net.Dialer{KeepAlive: t.KeepAlive}
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    if tc, ok := c.(*net.TCPConn); ok { _ = tc.SetNoDelay(true) }
    return c, nil
}

type noDelayListener struct{ net.Listener }

func (l noDelayListener) Accept() (net.Conn, error) {
    c, err := l.Listener.Accept()
    if err != nil { return nil, err }
    if tc, ok := c.(*net.TCPConn); ok { _ = tc.SetNoDelay(true) }
    return c, nil
}
