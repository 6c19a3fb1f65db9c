package transport

import (
    "context"
    "fmt"
    "net"
    "strings"
)

// Kind identifies the link type a node endpoint is reached over.
type Kind int

const (
    KindUnknown Kind = iota
    // KindPipe is the platform's local pipe: a named pipe on Windows and a
    // unix domain socket elsewhere.
    KindPipe
    KindUnix
    KindWinPipe
    KindTCP
    KindQUIC
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindPipe:
        return "pipe"
    case KindUnix:
        return "unix"
    case KindWinPipe:
        return "winpipe"
    case KindTCP:
        return "tcp"
    case KindQUIC:
        return "quic"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "pipe", "":
        return KindPipe, nil
    case "unix":
        return KindUnix, nil
    case "winpipe", "namedpipe":
        return KindWinPipe, nil
    case "tcp":
        return KindTCP, nil
    case "quic":
        return KindQUIC, nil
    case "mem", "inproc":
        return KindMem, nil
    default:
        return KindUnknown, fmt.Errorf("unknown transport kind %q", s)
    }
}

// Endpoint is where a node listens for its host, written as kind://address.
type Endpoint struct {
    Kind    Kind
    Address string
}

func (e Endpoint) String() string { return e.Kind.String() + "://" + e.Address }

// ParseEndpoint parses the kind://address form.
func ParseEndpoint(s string) (Endpoint, error) {
    scheme, addr, ok := strings.Cut(s, "://")
    if !ok || addr == "" { return Endpoint{}, fmt.Errorf("invalid endpoint %q: want kind://address", s) }
    k, err := ParseKind(scheme)
    if err != nil { return Endpoint{}, err }
    return Endpoint{Kind: k, Address: addr}, nil
}

// Listener accepts inbound connections.
type Listener interface {
    // Accept blocks until an inbound connection is available or ctx is done.
    Accept(ctx context.Context) (net.Conn, error)
    // Addr returns the local listening address.
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport dials and listens for one link kind. The returned connections are
// ordered, reliable byte streams; ctx bounds establishment only.
type Transport interface {
    Kind() Kind
    // Listen starts accepting inbound connections on address (transport-specific format).
    Listen(ctx context.Context, address string) (Listener, error)
    // Dial connects to a listener at address.
    Dial(ctx context.Context, address string) (net.Conn, error)
}
