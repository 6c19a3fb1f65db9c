//go:build windows

package winpipe

import (
    "context"
    "net"

    "github.com/Microsoft/go-winio"
    "buildnode/pkg/transport"
)

// Transport reaches nodes over Windows named pipes (\\.\pipe\name).
type Transport struct {
    // SecurityDescriptor restricts which accounts may connect (SDDL).
    SecurityDescriptor string
}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
    l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{
        SecurityDescriptor: t.SecurityDescriptor,
        InputBufferSize:    64 << 10,
        OutputBufferSize:   64 << 10,
    })
    if err != nil { return nil, err }
    return transport.WrapListener(ctx, l), nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (net.Conn, error) {
    return winio.DialPipeContext(ctx, pipeName)
}
