package main

import (
    "context"
    "fmt"
    "os/signal"
    "sync"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "buildnode/pkg/api"
    "buildnode/pkg/packet"
    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
    "buildnode/pkg/provider"
)

type hostFlags struct {
    nodes    int
    requests int
    kind     string
    wait     time.Duration
}

func newHostCmd() *cobra.Command {
    var f hostFlags
    cmd := &cobra.Command{
        Use:   "host",
        Short: "Acquire nodes, send them work and shut the pool down",
        Example: `  buildnode host --nodes 4 --requests 16
  BUILDNODE_POOL_NODE_REUSE=false buildnode host`,
        RunE: func(cmd *cobra.Command, _ []string) error { return runHost(cmd.Context(), f) },
    }
    cmd.Flags().IntVar(&f.nodes, "nodes", 0, "nodes to acquire (0: pool.max_node_count)")
    cmd.Flags().IntVar(&f.requests, "requests", 8, "payloads to send, spread over the nodes")
    cmd.Flags().StringVar(&f.kind, "kind", "echo", "payload kind")
    cmd.Flags().DurationVar(&f.wait, "wait", 30*time.Second, "how long to wait for replies")
    return cmd
}

func runHost(ctx context.Context, f hostFlags) error {
    a, err := setup(configPath)
    if err != nil { return err }
    defer a.close()
    if ctx == nil { ctx = context.Background() }
    ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    var (
        mu      sync.Mutex
        replies = make(map[int]int)
        done    = make(chan struct{})
        want    = f.requests
    )
    handler := api.PacketHandlerFunc(func(id int, p packet.Packet) {
        pl, ok := p.(*packet.Payload)
        if !ok { return }
        mu.Lock(); defer mu.Unlock()
        replies[id]++
        if want--; want == 0 { close(done) }
        a.log.Debug("reply", zap.Int("node_id", id), zap.String("kind", pl.Kind), zap.Int64("seq", pl.Sequence))
    })

    p, err := a.provider(ctx, func(o *provider.Options) { o.Handler = handler })
    if err != nil { return err }
    n := f.nodes
    if n <= 0 { n = a.cfg.Pool.MaxNodeCount }
    params := provider.BuildParameters{
        NodeReuse:     a.cfg.Pool.NodeReuse,
        LowPriority:   a.cfg.Pool.LowPriority,
        Configuration: &packet.NodeConfiguration{WorkingDirectory: a.cfg.DataDir},
    }
    ids, err := p.AcquireNodes(ctx, n, params)
    if err != nil { return err }
    a.log.Info("nodes acquired", zap.Ints("nodes", ids), zap.String("session", p.Session()))

    reg := codec.MustRegistry()
    for i := 0; i < f.requests; i++ {
        pl, err := packet.NewPayload(reg, f.kind, int64(i+1), protocol.FormatJSON, map[string]int{"request": i + 1})
        if err != nil { return err }
        if err := p.SendData(ids[i%len(ids)], pl); err != nil { a.log.Warn("send", zap.Error(err)) }
    }
    if f.requests > 0 {
        select {
        case <-done:
        case <-time.After(f.wait):
            a.log.Warn("not every request was answered", zap.Duration("wait", f.wait))
        case <-ctx.Done():
        }
    }

    res, err := p.ShutdownConnected(context.WithoutCancel(ctx), params.NodeReuse && ctx.Err() == nil)
    mu.Lock(); defer mu.Unlock()
    fmt.Printf("replies per node: %v\ngraceful: %v forced: %v\n", replies, res.Graceful, res.Forced)
    return err
}
