package catalog

import (
    "context"
    "fmt"
    "path/filepath"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "buildnode/pkg/handshake"
    "buildnode/pkg/transport"
)

var (
    hsA = handshake.Handshake{Options: handshake.NodeReuse, Salt: 11}
    hsB = handshake.Handshake{Options: handshake.NodeReuse | handshake.LowPriority, Salt: 11}
)

func rec(addr string, pid int, h handshake.Handshake) Record {
    return Record{
        Endpoint:  transport.Endpoint{Kind: transport.KindTCP, Address: addr},
        PID:       pid,
        Handshake: h,
        Session:   "s1",
        IdleSince: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
    }
}

func backends(t *testing.T) map[string]Catalog {
    t.Helper()
    disk, err := OpenBadger(filepath.Join(t.TempDir(), "catalog"))
    require.NoError(t, err)
    mem, err := OpenBadger("")
    require.NoError(t, err)
    out := map[string]Catalog{"memory": NewMemory(), "badger-disk": disk, "badger-mem": mem}
    t.Cleanup(func() {
        for _, c := range out { _ = c.Close() }
    })
    return out
}

func TestTakeMatchesHandshake(t *testing.T) {
    ctx := context.Background()
    for name, c := range backends(t) {
        t.Run(name, func(t *testing.T) {
            require.NoError(t, c.Put(ctx, rec("127.0.0.1:1", 101, hsA), 0))
            require.NoError(t, c.Put(ctx, rec("127.0.0.1:2", 102, hsB), 0))

            got, ok, err := c.Take(ctx, hsB)
            require.NoError(t, err)
            require.True(t, ok)
            assert.Equal(t, 102, got.PID)
            assert.Equal(t, hsB, got.Handshake)
            assert.True(t, got.IdleSince.Equal(rec("", 0, hsB).IdleSince))

            _, ok, err = c.Take(ctx, hsB)
            require.NoError(t, err)
            assert.False(t, ok, "record handed out twice")

            list, err := c.List(ctx)
            require.NoError(t, err)
            require.Len(t, list, 1)
            assert.Equal(t, 101, list[0].PID)

            require.NoError(t, c.Remove(ctx, list[0]))
            list, err = c.List(ctx)
            require.NoError(t, err)
            assert.Empty(t, list)
        })
    }
}

func TestTakeSingleWinner(t *testing.T) {
    ctx := context.Background()
    for name, c := range backends(t) {
        t.Run(name, func(t *testing.T) {
            const n = 4
            for i := 0; i < n; i++ { require.NoError(t, c.Put(ctx, rec(fmt.Sprintf("127.0.0.1:%d", 100+i), 200+i, hsA), 0)) }

            var got sync.Map
            var wins atomic.Int32
            var wg sync.WaitGroup
            for i := 0; i < 3*n; i++ {
                wg.Add(1)
                go func() {
                    defer wg.Done()
                    r, ok, err := c.Take(ctx, hsA)
                    if err != nil || !ok { return }
                    if _, dup := got.LoadOrStore(r.PID, true); dup { t.Errorf("pid %d taken twice", r.PID) }
                    wins.Add(1)
                }()
            }
            wg.Wait()
            assert.LessOrEqual(t, int(wins.Load()), n)
            left, err := c.List(ctx)
            require.NoError(t, err)
            assert.Equal(t, n, int(wins.Load())+len(left))
        })
    }
}

func TestRecordsExpire(t *testing.T) {
    ctx := context.Background()
    mem := NewMemory()
    defer mem.Close()
    require.NoError(t, mem.Put(ctx, rec("127.0.0.1:9", 9, hsA), 20*time.Millisecond))
    require.Eventually(t, func() bool {
        _, ok, _ := mem.Take(ctx, hsA)
        return !ok
    }, 2*time.Second, 10*time.Millisecond)
}

func TestOpenKinds(t *testing.T) {
    c, err := Open("none", "")
    require.NoError(t, err)
    require.NoError(t, c.Put(context.Background(), rec("x", 1, hsA), 0))
    _, ok, err := c.Take(context.Background(), hsA)
    require.NoError(t, err)
    assert.False(t, ok)

    _, err = Open("etcd", "")
    assert.Error(t, err)

    m, err := Open("memory", "")
    require.NoError(t, err)
    require.NoError(t, m.Close())
    assert.ErrorIs(t, m.Put(context.Background(), rec("x", 1, hsA), 0), ErrClosed)
}
