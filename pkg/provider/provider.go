// Package provider manages the pool of out-of-process build nodes of one
// build session: it launches or reclaims nodes, routes packets to them and
// shuts them down.
package provider

import (
    "context"
    "net"
    "sort"
    "strconv"
    "sync"
    "sync/atomic"
    "time"

    "github.com/google/uuid"
    "go.opentelemetry.io/otel/trace"
    "go.uber.org/zap"

    "buildnode/pkg/api"
    "buildnode/pkg/catalog"
    "buildnode/pkg/core/netstack"
    "buildnode/pkg/events"
    "buildnode/pkg/node"
    "buildnode/pkg/observability"
    "buildnode/pkg/packet"
    "buildnode/pkg/transport"
)

// Provider owns the node registry of one build session. It is safe for
// concurrent use.
type Provider struct {
    o       Options
    session string
    log     *zap.Logger
    tracer  trace.Tracer
    launchN atomic.Int64

    mu      sync.RWMutex
    nodes   map[int]*node.Context
    pending map[int]struct{} // ids reserved by CreateNode calls in flight

    trMu       sync.Mutex
    transports map[transport.Kind]transport.Transport
}

// New validates o and returns an empty pool.
func New(o Options) (*Provider, error) {
    if err := o.withDefaults(); err != nil { return nil, err }
    session := uuid.NewString()
    p := &Provider{
        o:          o,
        session:    session,
        log:        o.Logger.Named("provider").With(zap.String("session", session)),
        tracer:     observability.Tracer(),
        nodes:      make(map[int]*node.Context),
        pending:    make(map[int]struct{}),
        transports: make(map[transport.Kind]transport.Transport),
    }
    if o.Transport != nil { p.transports[o.Transport.Kind()] = o.Transport }
    return p, nil
}

// Session identifies this provider in logs, events and catalog records.
func (p *Provider) Session() string { return p.session }

// Nodes returns the registered ids in ascending order.
func (p *Provider) Nodes() []int {
    p.mu.RLock()
    ids := make([]int, 0, len(p.nodes))
    for id := range p.nodes { ids = append(ids, id) }
    p.mu.RUnlock()
    sort.Ints(ids)
    return ids
}

// AvailableNodes is how many more nodes CreateNode would accept right now.
func (p *Provider) AvailableNodes() int {
    p.mu.RLock(); defer p.mu.RUnlock()
    return p.o.MaxNodeCount - len(p.nodes) - len(p.pending)
}

// SendData queues pk for node id.
func (p *Provider) SendData(id int, pk packet.Packet) error {
    c, err := p.lookup(id)
    if err != nil { return err }
    return c.Send(pk)
}

// TerminateNode terminates node id; see node.Context.Terminate.
func (p *Provider) TerminateNode(id int, forceful bool) error {
    c, err := p.lookup(id)
    if err != nil { return err }
    c.Terminate(forceful)
    return nil
}

func (p *Provider) lookup(id int) (*node.Context, error) {
    p.mu.RLock(); c := p.nodes[id]; p.mu.RUnlock()
    if c == nil { return nil, &unknownNode{id} }
    return c, nil
}

type unknownNode struct{ id int }

func (e *unknownNode) Error() string        { return ErrUnknownNode.Error() + ": " + strconv.Itoa(e.id) }
func (e *unknownNode) Is(target error) bool { return target == ErrUnknownNode }

// snapshot returns the registered contexts ordered by id.
func (p *Provider) snapshot() []*node.Context {
    p.mu.RLock()
    out := make([]*node.Context, 0, len(p.nodes))
    for _, c := range p.nodes { out = append(out, c) }
    p.mu.RUnlock()
    sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
    return out
}

func (p *Provider) transportFor(kind transport.Kind) (transport.Transport, error) {
    p.trMu.Lock(); defer p.trMu.Unlock()
    if tr := p.transports[kind]; tr != nil { return tr, nil }
    tr, err := netstack.NewByKind(kind)
    if err != nil { return nil, err }
    p.transports[kind] = tr
    return tr, nil
}

// newContext wraps conn. Registered contexts report back through
// onNodeTerminated; probes used by ShutdownAll do not.
func (p *Provider) newContext(id int, conn net.Conn, ep transport.Endpoint, proc api.Process, registered bool) *node.Context {
    o := node.Options{
        ID:           id,
        Conn:         conn,
        Endpoint:     ep,
        Process:      proc,
        Factory:      p.o.Factory,
        Counters:     p.o.Metrics,
        DrainTimeout: p.o.DrainTimeout,
        KillTimeout:  p.o.KillTimeout,
        Logger:       p.log,
    }
    if registered {
        o.Handler = p.o.Handler
        o.OnTerminated = p.onNodeTerminated
    }
    return node.New(o)
}

// onNodeTerminated runs once per context, on whichever goroutine terminated it.
func (p *Provider) onNodeTerminated(c *node.Context, cause error) {
    p.mu.Lock()
    registered := p.nodes[c.ID()] == c
    if registered { delete(p.nodes, c.ID()) }
    live := len(p.nodes)
    p.mu.Unlock()
    if !registered { return }

    m := p.o.Metrics
    m.NodesLive.Set(float64(live))
    reason := "graceful"
    switch {
    case c.Forced():
        reason = "forced"
    case c.Reusable():
        reason = "reusable"
    }
    m.NodesTerminated.WithLabelValues(reason).Inc()

    if c.Reusable() && !c.Forced() { p.recordIdle(c) }

    ev := p.event(events.Terminated, c.ID())
    ev.PID, ev.Endpoint, ev.Reusable, ev.Forced = c.PID(), c.Endpoint().String(), c.Reusable(), c.Forced()
    if cause != nil { ev.Error = cause.Error() }
    p.o.Events.Publish(context.Background(), ev)

    if p.o.OnNodeTerminated != nil { p.o.OnNodeTerminated(c.ID(), cause) }
}

func (p *Provider) recordIdle(c *node.Context) {
    rec := catalog.Record{Endpoint: c.Endpoint(), PID: c.PID(), Handshake: c.Remote(), Session: p.session, IdleSince: time.Now().UTC()}
    if err := p.o.Catalog.Put(context.Background(), rec, p.o.IdleTTL); err != nil {
        p.log.Warn("record idle node", zap.Int("node_id", c.ID()), zap.Error(err))
        return
    }
    p.refreshIdle(context.Background())
}

// refreshIdle sets the idle gauge from the catalog, which other sessions
// may share.
func (p *Provider) refreshIdle(ctx context.Context) {
    recs, err := p.o.Catalog.List(ctx)
    if err != nil { return }
    p.o.Metrics.IdleNodes.Set(float64(len(recs)))
}

func (p *Provider) event(kind events.Kind, id int) events.Event {
    return events.Event{Kind: kind, Session: p.session, NodeID: id, Time: time.Now().UTC()}
}
