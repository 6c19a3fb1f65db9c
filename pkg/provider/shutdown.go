package provider

import (
    "context"
    "fmt"
    "time"

    "github.com/hashicorp/go-multierror"
    "go.uber.org/zap"

    "buildnode/pkg/catalog"
    "buildnode/pkg/events"
    "buildnode/pkg/node"
    "buildnode/pkg/packet"
)

// ShutdownResult lists the node ids of one shutdown by how they went away.
type ShutdownResult struct {
    Graceful []int
    Forced   []int
}

// ShutdownConnected asks every registered node to finish, waits up to the
// shutdown grace period and force-terminates the rest concurrently. It
// returns once all of them are terminated. enableReuse tells the nodes
// whether to linger.
func (p *Provider) ShutdownConnected(ctx context.Context, enableReuse bool) (ShutdownResult, error) {
    ctx, span := p.tracer.Start(ctx, "provider.shutdown_connected")
    defer span.End()

    nodes := p.snapshot()
    for _, c := range nodes {
        if err := c.Drain(&packet.NodeBuildComplete{PrepareForReuse: enableReuse}); err != nil {
            p.log.Debug("drain", zap.Int("node_id", c.ID()), zap.Error(err))
        }
    }

    grace := time.NewTimer(p.o.ShutdownGrace)
    defer grace.Stop()
    waitAll(ctx, grace.C, nodes)

    var res ShutdownResult
    for _, c := range nodes {
        select {
        case <-c.Done():
        default:
            p.log.Warn("node did not finish within grace period", zap.Int("node_id", c.ID()), zap.Duration("grace", p.o.ShutdownGrace))
            go c.Terminate(true)
        }
    }
    for _, c := range nodes {
        <-c.Done()
        if c.Forced() {
            res.Forced = append(res.Forced, c.ID())
        } else {
            res.Graceful = append(res.Graceful, c.ID())
        }
    }

    ev := p.event(events.PoolShutdown, 0)
    ev.Reusable = enableReuse
    ev.Forced = len(res.Forced) > 0
    p.o.Events.Publish(ctx, ev)
    p.log.Info("pool shut down", zap.Ints("graceful", res.Graceful), zap.Ints("forced", res.Forced), zap.Bool("reuse", enableReuse))
    return res, ctx.Err()
}

// waitAll returns when every node is done, stop fires or ctx ends.
func waitAll(ctx context.Context, stop <-chan time.Time, nodes []*node.Context) {
    for _, c := range nodes {
        select {
        case <-c.Done():
        case <-stop:
            return
        case <-ctx.Done():
            return
        }
    }
}

// ShutdownAll shuts down the connected nodes and then every idle node in
// the catalog, including ones left behind by earlier sessions. The
// priority an idle node was started with is not trusted, so both handshake
// variants are tried.
func (p *Provider) ShutdownAll(ctx context.Context, enableReuse bool) error {
    ctx, span := p.tracer.Start(ctx, "provider.shutdown_all")
    defer span.End()

    var errs *multierror.Error
    if _, err := p.ShutdownConnected(ctx, false); err != nil { errs = multierror.Append(errs, err) }

    recs, err := p.o.Catalog.List(ctx)
    if err != nil { return multierror.Append(errs, fmt.Errorf("list idle nodes: %w", err)).ErrorOrNil() }
    for _, rec := range recs {
        if err := p.o.Catalog.Remove(ctx, rec); err != nil { errs = multierror.Append(errs, err) }
        if !p.shutdownIdle(ctx, rec, enableReuse) {
            p.log.Debug("idle node not reachable", zap.Int("pid", rec.PID), zap.Stringer("endpoint", rec.Endpoint))
        }
    }
    p.refreshIdle(ctx)
    return errs.ErrorOrNil()
}

func (p *Provider) shutdownIdle(ctx context.Context, rec catalog.Record, enableReuse bool) bool {
    tr, err := p.transportFor(rec.Endpoint.Kind)
    if err != nil { return false }
    for _, low := range []bool{false, true} {
        h := p.o.Toolset.Handshake(enableReuse, low, false)
        dctx, cancel := context.WithTimeout(ctx, p.o.HandshakeTimeout)
        conn, err := tr.Dial(dctx, rec.Endpoint.Address)
        cancel()
        if err != nil { return false }
        c := p.newContext(0, conn, rec.Endpoint, nil, false)
        if err := c.Handshake(h, p.o.HandshakeTimeout); err != nil { continue }
        c.Start()
        if err := c.Drain(&packet.NodeBuildComplete{PrepareForReuse: false}); err != nil {
            c.Terminate(true)
            return true
        }
        select {
        case <-c.Done():
        case <-time.After(p.o.ShutdownGrace):
            c.Terminate(true)
        case <-ctx.Done():
            c.Terminate(true)
        }
        p.log.Info("idle node shut down", zap.Int("pid", rec.PID), zap.Stringer("endpoint", rec.Endpoint), zap.Bool("forced", c.Forced()))
        return true
    }
    return false
}
