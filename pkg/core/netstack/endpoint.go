package netstack

import (
    "fmt"
    "net"

    "buildnode/pkg/transport"
)

// AllocateEndpoint picks a fresh address of the given kind for a node named
// name. TCP and QUIC reserve a free loopback port; the port is released
// before the node binds it.
func AllocateEndpoint(kind transport.Kind, dir, name string) (transport.Endpoint, error) {
    switch kind {
    case transport.KindPipe, transport.KindUnix, transport.KindWinPipe:
        addr := pipeAddress(dir, name)
        if kind == transport.KindUnix { addr = unixAddress(dir, name) }
        return transport.Endpoint{Kind: kind, Address: addr}, nil
    case transport.KindTCP:
        l, err := net.Listen("tcp", "127.0.0.1:0")
        if err != nil { return transport.Endpoint{}, fmt.Errorf("reserve tcp port: %w", err) }
        addr := l.Addr().String()
        _ = l.Close()
        return transport.Endpoint{Kind: kind, Address: addr}, nil
    case transport.KindQUIC:
        pc, err := net.ListenPacket("udp", "127.0.0.1:0")
        if err != nil { return transport.Endpoint{}, fmt.Errorf("reserve udp port: %w", err) }
        addr := pc.LocalAddr().String()
        _ = pc.Close()
        return transport.Endpoint{Kind: kind, Address: addr}, nil
    case transport.KindMem:
        return transport.Endpoint{Kind: kind, Address: name}, nil
    default:
        return transport.Endpoint{}, ErrUnknownKind(kind.String())
    }
}
