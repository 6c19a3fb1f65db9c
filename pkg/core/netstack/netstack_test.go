package netstack

import (
    "context"
    "errors"
    "io"
    "path/filepath"
    "runtime"
    "testing"
    "time"

    "buildnode/pkg/transport"
    "buildnode/pkg/transport/mem"
    "github.com/stretchr/testify/require"
)

func TestDialRetriesUntilListening(t *testing.T) {
    tr := mem.New()
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()

    go func() {
        time.Sleep(50 * time.Millisecond)
        l, err := tr.Listen(ctx, "node-1")
        if err != nil { return }
        c, err := l.Accept(ctx)
        if err != nil { return }
        _, _ = c.Write([]byte("ok"))
    }()

    c, err := Dial(ctx, tr, "node-1", Backoff{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond}, nil)
    require.NoError(t, err)
    defer c.Close()
    buf := make([]byte, 2)
    _, err = io.ReadFull(c, buf)
    require.NoError(t, err)
    require.Equal(t, "ok", string(buf))
}

func TestDialStopsOnAbortAndDeadline(t *testing.T) {
    tr := mem.New()
    abort := make(chan struct{})
    close(abort)
    _, err := Dial(context.Background(), tr, "missing", Backoff{Initial: time.Millisecond}, abort)
    require.ErrorIs(t, err, ErrAborted)

    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
    defer cancel()
    _, err = Dial(ctx, tr, "missing", Backoff{Initial: time.Millisecond, Max: 5 * time.Millisecond}, nil)
    require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAcceptWithinIdle(t *testing.T) {
    tr := mem.New()
    l, err := tr.Listen(context.Background(), "idle")
    require.NoError(t, err)
    defer l.Close()
    _, err = AcceptWithin(context.Background(), l, 20*time.Millisecond)
    require.True(t, errors.Is(err, ErrIdle), "got %v", err)
}

func TestAllocateEndpoint(t *testing.T) {
    dir := t.TempDir()
    ep, err := AllocateEndpoint(transport.KindUnix, dir, "bn-1")
    require.NoError(t, err)
    require.Equal(t, filepath.Join(dir, "bn-1.sock"), ep.Address)

    ep, err = AllocateEndpoint(transport.KindTCP, "", "bn-2")
    require.NoError(t, err)
    require.Contains(t, ep.Address, "127.0.0.1:")

    parsed, err := transport.ParseEndpoint(ep.String())
    require.NoError(t, err)
    require.Equal(t, ep, parsed)

    if runtime.GOOS != "windows" {
        ep, err = AllocateEndpoint(transport.KindPipe, dir, "bn-3")
        require.NoError(t, err)
        require.Equal(t, filepath.Join(dir, "bn-3.sock"), ep.Address)
    }
}

func TestUnixTransportRoundTrip(t *testing.T) {
    if runtime.GOOS == "windows" { t.Skip("unix sockets") }
    tr, err := NewByKind(transport.KindUnix)
    require.NoError(t, err)
    // keep the path short; sun_path is limited to ~100 bytes
    dir, err := filepathShortTemp(t)
    require.NoError(t, err)
    ep, err := AllocateEndpoint(transport.KindUnix, dir, "rt")
    require.NoError(t, err)

    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    l, err := tr.Listen(ctx, ep.Address)
    require.NoError(t, err)
    defer l.Close()

    go func() {
        c, err := l.Accept(ctx)
        if err != nil { return }
        defer c.Close()
        _, _ = io.Copy(c, c)
    }()
    c, err := Dial(ctx, tr, ep.Address, DefaultBackoff(), nil)
    require.NoError(t, err)
    defer c.Close()
    _, err = c.Write([]byte("ping"))
    require.NoError(t, err)
    buf := make([]byte, 4)
    _, err = io.ReadFull(c, buf)
    require.NoError(t, err)
    require.Equal(t, "ping", string(buf))
}

func TestUnknownKind(t *testing.T) {
    _, err := NewByName("carrier-pigeon")
    var uk ErrUnknownKind
    require.ErrorAs(t, err, &uk)
}
