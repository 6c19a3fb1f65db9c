// Package unix reaches nodes over unix domain sockets, the local pipe on
// non-Windows systems.
package unix

import (
    "context"
    "errors"
    "io/fs"
    "net"
    "os"
    "path/filepath"

    "buildnode/pkg/transport"
)

type Transport struct{}

func New() *Transport { return &Transport{} }

func (t *Transport) Kind() transport.Kind { return transport.KindUnix }

// Listen binds a socket at path. A stale socket file left by a crashed node
// is removed first; the file is removed again when the listener closes.
func (t *Transport) Listen(ctx context.Context, path string) (transport.Listener, error) {
    if dir := filepath.Dir(path); dir != "" {
        if err := os.MkdirAll(dir, 0o700); err != nil { return nil, err }
    }
    if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) { return nil, err }
    var lc net.ListenConfig
    l, err := lc.Listen(ctx, "unix", path)
    if err != nil { return nil, err }
    if ul, ok := l.(*net.UnixListener); ok { ul.SetUnlinkOnClose(true) }
    return transport.WrapListener(ctx, l), nil
}

func (t *Transport) Dial(ctx context.Context, path string) (net.Conn, error) {
    var d net.Dialer
    return d.DialContext(ctx, "unix", path)
}
