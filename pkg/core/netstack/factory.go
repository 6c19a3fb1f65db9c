// Package netstack builds transports from configuration and provides the
// connect/accept loops the host and the node use on top of them.
package netstack

import (
    "buildnode/pkg/transport"
    "buildnode/pkg/transport/mem"
    tquic "buildnode/pkg/transport/quic"
    ttcp "buildnode/pkg/transport/tcp"
    tunix "buildnode/pkg/transport/unix"
)

// NewByKind constructs a Transport by kind. KindPipe resolves to the
// platform's local pipe.
func NewByKind(kind transport.Kind) (transport.Transport, error) {
    switch kind {
    case transport.KindPipe:
        return newPipeTransport()
    case transport.KindUnix:
        return tunix.New(), nil
    case transport.KindWinPipe:
        return newWinPipeTransport()
    case transport.KindTCP:
        return ttcp.New(), nil
    case transport.KindQUIC:
        return tquic.New(), nil
    case transport.KindMem:
        return mem.New(), nil
    default:
        return nil, ErrUnknownKind(kind.String())
    }
}

// NewByName parses name and constructs the transport.
func NewByName(name string) (transport.Transport, error) {
    k, err := transport.ParseKind(name)
    if err != nil { return nil, ErrUnknownKind(name) }
    return NewByKind(k)
}

// Basic typed error for unknown kinds
type ErrUnknownKind string
func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
