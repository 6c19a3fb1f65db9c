package provider

import (
    "context"
    "errors"
    "fmt"
    "os"
    "sort"
    "sync"
    "time"

    "github.com/hashicorp/go-multierror"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/codes"
    "go.opentelemetry.io/otel/trace"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "buildnode/pkg/api"
    "buildnode/pkg/core/netstack"
    "buildnode/pkg/events"
    "buildnode/pkg/handshake"
    "buildnode/pkg/launcher"
    "buildnode/pkg/node"
    "buildnode/pkg/observability"
    "buildnode/pkg/packet"
    "buildnode/pkg/transport"
)

// CreateNode adds one node to the pool and returns its id. id 0 picks the
// lowest free id. An idle node from the catalog whose handshake matches
// params is reclaimed; otherwise a process is launched. The node has been
// sent its NodeConfiguration when CreateNode returns.
func (p *Provider) CreateNode(ctx context.Context, id int, params BuildParameters) (_ int, err error) {
    ctx, span := p.tracer.Start(ctx, "provider.create_node")
    defer span.End()

    id, err = p.reserve(id)
    if err != nil {
        span.SetStatus(codes.Error, err.Error())
        return 0, err
    }
    span.SetAttributes(observability.NodeID(id))
    registered := false
    defer func() {
        if !registered { p.release(id) }
        if err != nil { span.SetStatus(codes.Error, err.Error()) }
    }()

    h := p.o.Toolset.Handshake(params.NodeReuse, params.LowPriority, false)
    span.SetAttributes(observability.HandshakeKey(h.Key()))

    c := p.reclaim(ctx, id, h)
    span.SetAttributes(attribute.Bool("buildnode.node.reclaimed", c != nil))
    if c == nil {
        if c, err = p.launch(ctx, id, h, params); err != nil { return 0, err }
    }
    span.SetAttributes(observability.NodePID(c.PID()), observability.NodeEndpoint(c.Endpoint().String()))

    p.mu.Lock()
    delete(p.pending, id)
    p.nodes[id] = c
    live := len(p.nodes)
    p.mu.Unlock()
    registered = true
    p.o.Metrics.NodesLive.Set(float64(live))

    c.Start()
    if err := c.Send(p.configuration(id, params)); err != nil {
        c.Terminate(true)
        return 0, fmt.Errorf("configure node %d: %w", id, err)
    }
    ev := p.event(events.Ready, id)
    ev.PID, ev.Endpoint = c.PID(), c.Endpoint().String()
    p.o.Events.Publish(ctx, ev)
    p.log.Info("node ready", zap.Int("node_id", id), zap.Int("pid", c.PID()), zap.Stringer("endpoint", c.Endpoint()))
    return id, nil
}

// reserve checks capacity and uniqueness and holds the id until the
// node is registered or the attempt fails.
func (p *Provider) reserve(id int) (int, error) {
    if id < 0 { return 0, fmt.Errorf("invalid node id %d", id) }
    p.mu.Lock(); defer p.mu.Unlock()
    if len(p.nodes)+len(p.pending) >= p.o.MaxNodeCount {
        return 0, fmt.Errorf("%w: %d of %d nodes in use", ErrCapacityExceeded, len(p.nodes)+len(p.pending), p.o.MaxNodeCount)
    }
    if id == 0 {
        for id = 1; ; id++ {
            if !p.inUse(id) { break }
        }
    } else if p.inUse(id) {
        return 0, fmt.Errorf("%w: %d", ErrNodeExists, id)
    }
    p.pending[id] = struct{}{}
    return id, nil
}

func (p *Provider) inUse(id int) bool {
    _, pending := p.pending[id]
    return pending || p.nodes[id] != nil
}

func (p *Provider) release(id int) {
    p.mu.Lock(); delete(p.pending, id); p.mu.Unlock()
}

func (p *Provider) configuration(id int, params BuildParameters) *packet.NodeConfiguration {
    cfg := &packet.NodeConfiguration{}
    if params.Configuration != nil { cfg = params.Configuration.Clone() }
    cfg.NodeID = int32(id)
    cfg.MaxNodeCount = int32(p.o.MaxNodeCount)
    cfg.EnableNodeReuse = params.NodeReuse
    cfg.LowPriority = params.LowPriority
    if cfg.ToolsetVersion == "" { cfg.ToolsetVersion = p.o.Toolset.Version }
    return cfg
}

// reclaim takes idle records with handshake h until one answers a fresh
// handshake. Every failure falls through to the next record; nil means
// the caller should launch.
func (p *Provider) reclaim(ctx context.Context, id int, h handshake.Handshake) *node.Context {
    for {
        rec, ok, err := p.o.Catalog.Take(ctx, h)
        if err != nil {
            p.log.Warn("idle catalog lookup failed", zap.Error(err))
            return nil
        }
        if !ok { return nil }
        p.refreshIdle(ctx)
        log := p.log.With(zap.Int("node_id", id), zap.Int("pid", rec.PID), zap.Stringer("endpoint", rec.Endpoint))

        tr, err := p.transportFor(rec.Endpoint.Kind)
        if err != nil {
            log.Debug("idle node unreachable", zap.Error(err))
            continue
        }
        dctx, cancel := context.WithTimeout(ctx, p.o.HandshakeTimeout)
        conn, err := tr.Dial(dctx, rec.Endpoint.Address)
        cancel()
        if err != nil {
            log.Debug("idle node gone", zap.Error(err))
            continue
        }
        // No process yet: a node that fails the handshake is not ours to kill.
        c := p.newContext(id, conn, rec.Endpoint, nil, true)
        started := time.Now()
        if err := c.Handshake(h, p.o.HandshakeTimeout); err != nil {
            p.handshakeFailed(ctx, id, rec.PID, rec.Endpoint, err, started)
            continue
        }
        p.o.Metrics.ObserveHandshake("ok", time.Since(started))
        if proc, err := p.o.Launcher.Attach(rec.PID); err == nil {
            c.AdoptProcess(proc)
        } else {
            log.Debug("attach to reclaimed node", zap.Error(err))
        }
        p.o.Metrics.NodesReclaimed.Inc()
        ev := p.event(events.Reclaimed, id)
        ev.PID, ev.Endpoint = rec.PID, rec.Endpoint.String()
        p.o.Events.Publish(ctx, ev)
        return c
    }
}

func (p *Provider) launch(ctx context.Context, id int, h handshake.Handshake, params BuildParameters) (*node.Context, error) {
    tr, err := p.transportFor(p.o.EndpointKind)
    if err != nil { return nil, &LaunchError{NodeID: id, Err: err} }
    name := fmt.Sprintf("buildnode-%s-%d", p.session[:8], p.launchN.Add(1))
    if p.o.EndpointDir != "" && (p.o.EndpointKind == transport.KindUnix || p.o.EndpointKind == transport.KindPipe) {
        if err := os.MkdirAll(p.o.EndpointDir, 0o755); err != nil { return nil, &LaunchError{NodeID: id, Err: err} }
    }
    ep, err := netstack.AllocateEndpoint(p.o.EndpointKind, p.o.EndpointDir, name)
    if err != nil { return nil, &LaunchError{NodeID: id, Err: err} }

    flags := launcher.NodeFlags{NodeReuse: params.NodeReuse, LowPriority: params.LowPriority, Endpoint: ep}
    spec := api.LaunchSpec{
        Executable:  p.o.NodeExe,
        Args:        append(flags.Args(), p.o.ExtraArgs...),
        Env:         p.o.Env,
        LowPriority: params.LowPriority,
    }
    proc, err := p.o.Launcher.Launch(ctx, spec)
    if err != nil { return nil, p.launchFailed(ctx, &LaunchError{NodeID: id, Endpoint: ep, Err: err}) }
    p.o.Metrics.NodesLaunched.Inc()
    ev := p.event(events.Launched, id)
    ev.PID, ev.Endpoint = proc.PID(), ep.String()
    p.o.Events.Publish(ctx, ev)

    dctx, cancel := context.WithTimeout(ctx, p.o.ConnectTimeout)
    conn, err := netstack.Dial(dctx, tr, ep.Address, p.o.Backoff, proc.Exited())
    cancel()
    if err != nil {
        if kerr := proc.Kill(p.o.KillTimeout); kerr != nil { p.log.Warn("kill unreachable node", zap.Int("pid", proc.PID()), zap.Error(kerr)) }
        return nil, p.launchFailed(ctx, &LaunchError{NodeID: id, PID: proc.PID(), Endpoint: ep, Diagnostics: proc.Diagnostics(), Err: err})
    }

    c := p.newContext(id, conn, ep, proc, true)
    started := time.Now()
    if err := c.Handshake(h, p.o.HandshakeTimeout); err != nil {
        p.handshakeFailed(ctx, id, proc.PID(), ep, err, started)
        return nil, fmt.Errorf("node %d (pid %d): %w", id, proc.PID(), err)
    }
    p.o.Metrics.ObserveHandshake("ok", time.Since(started))
    return c, nil
}

func (p *Provider) launchFailed(ctx context.Context, le *LaunchError) error {
    p.o.Metrics.LaunchFailures.Inc()
    ev := p.event(events.LaunchFailed, le.NodeID)
    ev.PID, ev.Endpoint, ev.Error = le.PID, le.Endpoint.String(), le.Err.Error()
    p.o.Events.Publish(ctx, ev)
    return le
}

func (p *Provider) handshakeFailed(ctx context.Context, id, pid int, ep transport.Endpoint, err error, started time.Time) {
    result := "error"
    switch {
    case errors.Is(err, handshake.ErrTimeout):
        result = "timeout"
    case errors.Is(err, handshake.ErrMismatch):
        result = "mismatch"
    }
    p.o.Metrics.ObserveHandshake(result, time.Since(started))
    ev := p.event(events.HandshakeFailed, id)
    ev.PID, ev.Endpoint, ev.Error = pid, ep.String(), err.Error()
    p.o.Events.Publish(ctx, ev)
}

// AcquireNodes creates up to n nodes in parallel. It degrades to fewer
// nodes when some fail and reports ErrNoNodes, wrapping every cause, only
// when none could be created.
func (p *Provider) AcquireNodes(ctx context.Context, n int, params BuildParameters) ([]int, error) {
    if n <= 0 { return nil, nil }
    ctx, span := p.tracer.Start(ctx, "provider.acquire_nodes", trace.WithAttributes(attribute.Int("buildnode.requested", n)))
    defer span.End()

    var (
        mu   sync.Mutex
        ids  []int
        errs *multierror.Error
        g    errgroup.Group
    )
    for i := 0; i < n; i++ {
        g.Go(func() error {
            id, err := p.CreateNode(ctx, 0, params)
            mu.Lock(); defer mu.Unlock()
            if err != nil {
                errs = multierror.Append(errs, err)
                return nil
            }
            ids = append(ids, id)
            return nil
        })
    }
    _ = g.Wait()
    sort.Ints(ids)
    span.SetAttributes(attribute.Int("buildnode.acquired", len(ids)))
    if len(ids) == 0 {
        span.SetStatus(codes.Error, "no nodes")
        return nil, fmt.Errorf("%w: %w", ErrNoNodes, errs.ErrorOrNil())
    }
    if errs != nil { p.log.Warn("node pool degraded", zap.Int("requested", n), zap.Int("acquired", len(ids)), zap.Error(errs)) }
    return ids, nil
}
