// Package node implements the host-side context of one connected build node:
// handshake, ordered sending, the receive loop and single-fire termination.
package node

import (
    "errors"
    "fmt"
    "io"
    "net"
    "os"
    "sync"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "buildnode/pkg/api"
    "buildnode/pkg/core/sendq"
    "buildnode/pkg/handshake"
    "buildnode/pkg/packet"
    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/stream"
    "buildnode/pkg/transport"
)

const (
    defaultDrainTimeout = 5 * time.Second
    defaultKillTimeout  = 5 * time.Second
)

// Counters observes packet traffic; implemented by the pool metrics.
type Counters interface {
    PacketSent(t packet.Type)
    PacketReceived(t packet.Type)
}

// Options configures a Context.
type Options struct {
    ID       int
    Conn     net.Conn
    Endpoint transport.Endpoint
    // Process is killed on forceful termination. Leave nil until the remote
    // is known to be ours (see AdoptProcess).
    Process      api.Process
    Factory      api.PacketFactory
    Handler      api.PacketHandler
    Counters     Counters
    OnTerminated func(c *Context, cause error)
    DrainTimeout time.Duration
    KillTimeout  time.Duration
    Logger       *zap.Logger
}

// Context owns one connection to one node. The connection is used by this
// context only: one goroutine reads it and one goroutine writes it.
type Context struct {
    id       int
    conn     net.Conn
    fc       *stream.Conn
    endpoint transport.Endpoint
    factory  api.PacketFactory
    handler  api.PacketHandler
    counters Counters
    onTerm   func(*Context, error)
    drainTO  time.Duration
    killTO   time.Duration
    log      *zap.Logger

    mu         sync.Mutex // guards state transitions, proc, drainTimer, err
    state      atomic.Int32
    proc       api.Process
    drainTimer *time.Timer
    err        error
    remote     handshake.Handshake

    queue    *sendq.Queue[[]byte]
    started  atomic.Bool
    closing  atomic.Bool // graceful close requested: terminate once the queue is flushed
    reusable atomic.Bool
    forced   atomic.Bool

    once sync.Once
    done chan struct{}
}

// New wraps an established connection. The context starts in Connecting.
func New(o Options) *Context {
    if o.DrainTimeout <= 0 { o.DrainTimeout = defaultDrainTimeout }
    if o.KillTimeout <= 0 { o.KillTimeout = defaultKillTimeout }
    if o.Factory == nil { o.Factory = packet.DefaultRegistry() }
    log := o.Logger
    if log == nil { log = zap.L() }
    c := &Context{
        id:       o.ID,
        conn:     o.Conn,
        endpoint: o.Endpoint,
        proc:     o.Process,
        factory:  o.Factory,
        handler:  o.Handler,
        counters: o.Counters,
        onTerm:   o.OnTerminated,
        drainTO:  o.DrainTimeout,
        killTO:   o.KillTimeout,
        log:      log.With(zap.Int("node_id", o.ID), zap.String("endpoint", o.Endpoint.String())),
        queue:    sendq.New[[]byte](),
        done:     make(chan struct{}),
    }
    c.state.Store(int32(StateConnecting))
    return c
}

func (c *Context) ID() int                      { return c.id }
func (c *Context) Endpoint() transport.Endpoint { return c.endpoint }
func (c *Context) State() State                 { return State(c.state.Load()) }

// Done is closed exactly once, after the termination callback returned.
func (c *Context) Done() <-chan struct{} { return c.done }

// Err returns the termination cause; nil while running and after a clean shutdown.
func (c *Context) Err() error { c.mu.Lock(); defer c.mu.Unlock(); return c.err }

// Reusable reports whether the node acknowledged shutdown and stays alive
// for another host.
func (c *Context) Reusable() bool { return c.reusable.Load() }

// Forced reports whether termination was forceful.
func (c *Context) Forced() bool { return c.forced.Load() }

// Remote returns the handshake the node presented.
func (c *Context) Remote() handshake.Handshake { c.mu.Lock(); defer c.mu.Unlock(); return c.remote }

// PID returns the node's process id, or 0 when unknown.
func (c *Context) PID() int {
    c.mu.Lock(); defer c.mu.Unlock()
    if c.proc == nil { return 0 }
    return c.proc.PID()
}

// AdoptProcess hands the node's process to the context so forceful
// termination kills it.
func (c *Context) AdoptProcess(p api.Process) { c.mu.Lock(); c.proc = p; c.mu.Unlock() }

func (c *Context) transition(to State, from ...State) (State, bool) {
    c.mu.Lock(); defer c.mu.Unlock()
    cur := State(c.state.Load())
    for _, f := range from {
        if cur == f {
            c.state.Store(int32(to))
            return cur, true
        }
    }
    return cur, false
}

// Handshake writes local, reads the node's handshake and compares them, all
// within timeout. On failure the context is terminated (the process, if any,
// is killed) and the error is returned: wrapping handshake.ErrTimeout or
// handshake.ErrMismatch where applicable.
func (c *Context) Handshake(local handshake.Handshake, timeout time.Duration) error {
    if cur, ok := c.transition(StateHandshaking, StateConnecting); !ok {
        return fmt.Errorf("%w: handshake in state %s", ErrNotReady, cur)
    }
    if err := c.exchange(local, timeout); err != nil {
        c.log.Debug("handshake failed", zap.Error(err))
        c.forced.Store(true)
        c.terminate(err, true)
        return err
    }
    if cur, ok := c.transition(StateReady, StateHandshaking); !ok {
        return fmt.Errorf("%w: terminated during handshake (%s)", ErrNotReady, cur)
    }
    c.fc = stream.New(c.conn)
    return nil
}

func (c *Context) exchange(local handshake.Handshake, timeout time.Duration) error {
    if timeout > 0 {
        _ = c.conn.SetDeadline(time.Now().Add(timeout))
        defer func() { _ = c.conn.SetDeadline(time.Time{}) }()
    }
    if err := handshake.Write(c.conn, local); err != nil { return handshakeErr(err) }
    remote, err := handshake.Read(c.conn)
    if err != nil { return handshakeErr(err) }
    c.mu.Lock(); c.remote = remote; c.mu.Unlock()
    return handshake.Check(local, remote)
}

func handshakeErr(err error) error {
    var ne net.Error
    if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
        return fmt.Errorf("%w: %v", handshake.ErrTimeout, err)
    }
    if errors.Is(err, handshake.ErrMismatch) { return err }
    return fmt.Errorf("%w: %v", handshake.ErrMismatch, err)
}

// Start launches the receive loop and the writer. Call once, after a
// successful handshake.
func (c *Context) Start() {
    if c.State() != StateReady && c.State() != StateDraining { return }
    if !c.started.CompareAndSwap(false, true) { return }
    go c.writeLoop()
    go c.readLoop()
}

// Send encodes p and queues it behind everything sent before. It never
// blocks on the transport.
func (c *Context) Send(p packet.Packet) error {
    if st := c.State(); st != StateReady && st != StateDraining {
        return fmt.Errorf("%w: node %d is %s", ErrNotReady, c.id, st)
    }
    frame, err := packet.EncodeFrame(p)
    if err != nil { return err }
    if !c.queue.Enqueue(frame) { return fmt.Errorf("%w: node %d is closing", ErrNotReady, c.id) }
    return nil
}

// Drain moves a Ready context to Draining and sends final, typically the
// build-complete request. The connection stays open for the node's answer.
func (c *Context) Drain(final packet.Packet) error {
    if cur, ok := c.transition(StateDraining, StateReady, StateDraining); !ok {
        return fmt.Errorf("%w: drain in state %s", ErrNotReady, cur)
    }
    if final == nil { return nil }
    return c.Send(final)
}

// Terminate closes the context. Forceful closes the connection at once and
// kills the node process; graceful stops accepting sends, flushes what is
// queued and closes, escalating to forceful after the drain timeout.
func (c *Context) Terminate(forceful bool) {
    if forceful {
        c.forced.Store(true)
        c.terminate(ErrForced, true)
        return
    }
    cur, ok := c.transition(StateDraining, StateReady, StateDraining)
    if !ok {
        if cur != StateTerminated {
            c.forced.Store(true)
            c.terminate(ErrForced, true)
        }
        return
    }
    if !c.closing.CompareAndSwap(false, true) { return }
    c.mu.Lock()
    if c.State() != StateTerminated {
        c.drainTimer = time.AfterFunc(c.drainTO, func() {
            c.log.Warn("drain timed out; terminating forcefully", zap.Duration("timeout", c.drainTO))
            c.forced.Store(true)
            c.terminate(ErrDrainTimeout, true)
        })
    }
    c.mu.Unlock()
    c.queue.Close()
    if !c.started.Load() { c.terminate(nil, false) }
}

func (c *Context) writeLoop() {
    for {
        frame, ok := c.queue.Dequeue()
        if !ok { break }
        if err := c.fc.WriteRaw(frame); err != nil {
            if c.State() != StateTerminated { c.terminate(fmt.Errorf("%w: write: %v", ErrDisconnected, err), false) }
            return
        }
        if c.counters != nil { c.counters.PacketSent(packet.Type(frame[0])) }
    }
    if c.closing.Load() { c.terminate(nil, false) }
}

func (c *Context) readLoop() {
    for {
        typ, payload, err := c.fc.Recv()
        if err != nil {
            c.readFailed(err)
            return
        }
        p, err := c.factory.CreateFromBytes(packet.Type(typ), payload)
        if err != nil {
            c.log.Warn("malformed packet; terminating", zap.Uint8("type", typ), zap.Error(err))
            c.forced.Store(true)
            c.terminate(err, true)
            return
        }
        if c.counters != nil { c.counters.PacketReceived(p.Type()) }
        ack, isAck := p.(*packet.NodeShutdown)
        if isAck {
            c.reusable.Store(ack.Reusable())
            c.transition(StateDraining, StateReady)
            c.log.Debug("node acknowledged shutdown", zap.Stringer("reason", ack.Reason), zap.String("error", ack.Error))
        }
        if c.handler != nil { c.handler.HandlePacket(c.id, p) }
        if isAck {
            c.Terminate(false)
            return
        }
    }
}

func (c *Context) readFailed(err error) {
    if c.State() == StateTerminated { return }
    switch {
    case errors.Is(err, io.EOF):
        if c.State() == StateDraining {
            c.terminate(nil, false)
            return
        }
        c.terminate(fmt.Errorf("%w: remote closed", ErrDisconnected), false)
    case protocol.IsFraming(err):
        c.log.Warn("framing error; terminating", zap.Error(err))
        c.forced.Store(true)
        c.terminate(err, true)
    default:
        c.terminate(fmt.Errorf("%w: read: %v", ErrDisconnected, err), false)
    }
}

// terminate runs at most once per context, whichever path gets here first.
func (c *Context) terminate(cause error, kill bool) {
    c.once.Do(func() {
        c.mu.Lock()
        prev := State(c.state.Swap(int32(StateTerminated)))
        if c.drainTimer != nil { c.drainTimer.Stop() }
        proc := c.proc
        c.err = cause
        c.mu.Unlock()

        dropped := c.queue.Abort()
        _ = c.conn.Close()
        if kill && proc != nil {
            if err := proc.Kill(c.killTO); err != nil {
                c.log.Warn("kill node process failed", zap.Int("pid", proc.PID()), zap.Error(err))
            }
        }
        fields := []zap.Field{zap.Stringer("from", prev), zap.Bool("forced", c.forced.Load()), zap.Bool("reusable", c.reusable.Load())}
        if dropped > 0 { fields = append(fields, zap.Int("dropped", dropped)) }
        if cause != nil { fields = append(fields, zap.Error(cause)) }
        c.log.Debug("node terminated", fields...)

        if c.onTerm != nil { c.onTerm(c, cause) }
        close(c.done)
    })
}
