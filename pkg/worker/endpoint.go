// Package worker implements the node side of the host/node protocol: it
// listens on the endpoint the host was given, answers the handshake, runs
// payloads through an Executor and acknowledges shutdown.
package worker

import (
    "context"
    "errors"
    "fmt"
    "io"
    "net"
    "sync"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "buildnode/pkg/api"
    "buildnode/pkg/core/netstack"
    "buildnode/pkg/handshake"
    "buildnode/pkg/packet"
    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
    "buildnode/pkg/protocol/stream"
    "buildnode/pkg/transport"
)

const (
    defaultHandshakeTimeout = 15 * time.Second
    workQueueSize           = 64

    // ErrorKind is the payload kind of an executor failure reply.
    ErrorKind = "error"
)

// Options configures an Endpoint.
type Options struct {
    Transport transport.Transport
    Address   string
    // Handshake is what this node presents; it must equal the host's.
    Handshake handshake.Handshake
    Executor  api.Executor
    Factory   api.PacketFactory
    // IdleTimeout bounds every wait for a host: the first connection and,
    // for reusable nodes, each wait between hosts. <= 0 waits until ctx ends.
    IdleTimeout      time.Duration
    HandshakeTimeout time.Duration
    // OnConfigured sees every NodeConfiguration received.
    OnConfigured func(*packet.NodeConfiguration)
    Logger       *zap.Logger
}

// Endpoint serves one host at a time.
type Endpoint struct {
    o        Options
    log      *zap.Logger
    reg      *codec.Registry
    reusable bool

    config   atomic.Pointer[packet.NodeConfiguration]
    sessions atomic.Int32
}

func New(o Options) (*Endpoint, error) {
    if o.Transport == nil { return nil, errors.New("worker: transport is required") }
    if o.Address == "" { return nil, errors.New("worker: address is required") }
    if o.Executor == nil { o.Executor = Echo() }
    if o.Factory == nil { o.Factory = packet.DefaultRegistry() }
    if o.HandshakeTimeout <= 0 { o.HandshakeTimeout = defaultHandshakeTimeout }
    log := o.Logger
    if log == nil { log = zap.L() }
    return &Endpoint{
        o:        o,
        log:      log.Named("worker").With(zap.String("endpoint", o.Transport.Kind().String()+"://"+o.Address)),
        reg:      codec.MustRegistry(),
        reusable: o.Handshake.Options.Has(handshake.NodeReuse),
    }, nil
}

// Configuration returns the last NodeConfiguration received, or nil.
func (e *Endpoint) Configuration() *packet.NodeConfiguration { return e.config.Load() }

// Sessions returns how many hosts completed a handshake with this node.
func (e *Endpoint) Sessions() int { return int(e.sessions.Load()) }

type outcome int

const (
    outcomeRejected outcome = iota // handshake failed; keep waiting
    outcomeLinger                  // session over, node stays for reuse
    outcomeExit
)

// Run listens and serves hosts until the node should exit: a session ended
// without reuse, no host arrived within IdleTimeout, or ctx was cancelled.
// Idle expiry and cancellation are clean exits.
func (e *Endpoint) Run(ctx context.Context) error {
    l, err := e.o.Transport.Listen(ctx, e.o.Address)
    if err != nil { return fmt.Errorf("listen %s: %w", e.o.Address, err) }
    defer l.Close()
    e.log.Info("node listening", zap.Bool("reusable", e.reusable), zap.Stringer("handshake", e.o.Handshake))

    for {
        conn, err := netstack.AcceptWithin(ctx, l, e.o.IdleTimeout)
        switch {
        case errors.Is(err, netstack.ErrIdle):
            e.log.Info("no host connected within idle timeout; exiting", zap.Duration("idle", e.o.IdleTimeout))
            return nil
        case ctx.Err() != nil:
            return nil
        case err != nil:
            return fmt.Errorf("accept: %w", err)
        }
        out, err := e.serve(ctx, conn)
        switch out {
        case outcomeRejected:
            continue
        case outcomeLinger:
            e.log.Info("session finished; waiting for the next host")
            continue
        default:
            return err
        }
    }
}

func (e *Endpoint) serve(ctx context.Context, conn net.Conn) (outcome, error) {
    if err := e.answerHandshake(conn); err != nil {
        e.log.Warn("host handshake rejected", zap.Error(err))
        _ = conn.Close()
        return outcomeRejected, nil
    }
    e.sessions.Add(1)
    s := &session{e: e, conn: conn, fc: stream.New(conn), work: make(chan *packet.Payload, workQueueSize)}
    return s.run(ctx)
}

// answerHandshake reads the host's handshake and always answers with ours,
// so a mismatched host can tell what it talked to.
func (e *Endpoint) answerHandshake(conn net.Conn) error {
    _ = conn.SetDeadline(time.Now().Add(e.o.HandshakeTimeout))
    defer func() { _ = conn.SetDeadline(time.Time{}) }()
    remote, rerr := handshake.Read(conn)
    if rerr != nil && !errors.Is(rerr, handshake.ErrMismatch) { return rerr }
    if err := handshake.Write(conn, e.o.Handshake); err != nil { return err }
    if rerr != nil { return rerr }
    return handshake.Check(e.o.Handshake, remote)
}

type session struct {
    e    *Endpoint
    conn net.Conn
    fc   *stream.Conn
    work chan *packet.Payload
    wg   sync.WaitGroup

    mu     sync.Mutex
    cancel context.CancelFunc // current work item
}

func (s *session) run(ctx context.Context) (outcome, error) {
    wctx, stop := context.WithCancel(ctx)
    defer stop()
    defer s.conn.Close()
    unwatch := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
    defer unwatch()
    s.wg.Add(1)
    go s.worker(wctx)

    for {
        typ, payload, err := s.fc.Recv()
        if err != nil { return s.lost(err) }
        p, err := s.e.o.Factory.CreateFromBytes(packet.Type(typ), payload)
        if err != nil { return s.lost(err) }

        switch p := p.(type) {
        case *packet.NodeConfiguration:
            s.e.config.Store(p)
            s.e.log.Info("configured", zap.Int32("node_id", p.NodeID), zap.Int32("max_nodes", p.MaxNodeCount), zap.Int("loggers", len(p.Loggers)))
            if s.e.o.OnConfigured != nil { s.e.o.OnConfigured(p) }
        case *packet.Payload:
            select {
            case s.work <- p:
            case <-ctx.Done():
                s.finish()
                return outcomeExit, nil
            }
        case *packet.TaskCancelled:
            s.cancelCurrent()
        case *packet.NodeBuildComplete:
            return s.complete(p.PrepareForReuse)
        default:
            s.e.log.Debug("ignoring packet", zap.Stringer("type", p.Type()))
        }
    }
}

// complete finishes queued work, acknowledges and ends the session.
func (s *session) complete(prepareForReuse bool) (outcome, error) {
    s.finish()
    reuse := prepareForReuse && s.e.reusable
    ack := &packet.NodeShutdown{Reason: packet.ReasonBuildComplete}
    if reuse { ack.Reason = packet.ReasonBuildCompleteReuse }
    frame, err := packet.EncodeFrame(ack)
    if err == nil { err = s.fc.WriteRaw(frame) }
    if err != nil {
        s.e.log.Warn("send shutdown acknowledgement", zap.Error(err))
        return s.afterLoss(), nil
    }
    s.e.log.Info("build complete", zap.Stringer("reason", ack.Reason))
    if reuse { return outcomeLinger, nil }
    return outcomeExit, nil
}

// lost handles a connection that ended without a build-complete request.
func (s *session) lost(err error) (outcome, error) {
    s.cancelCurrent()
    s.finish()
    if errors.Is(err, io.EOF) {
        s.e.log.Info("host disconnected")
    } else {
        s.e.log.Warn("host connection failed", zap.Error(err), zap.Bool("framing", protocol.IsFraming(err)))
    }
    return s.afterLoss(), nil
}

func (s *session) afterLoss() outcome {
    if s.e.reusable { return outcomeLinger }
    return outcomeExit
}

// finish stops accepting work and waits for the worker goroutine.
func (s *session) finish() {
    close(s.work)
    s.wg.Wait()
}

func (s *session) cancelCurrent() {
    s.mu.Lock()
    if s.cancel != nil { s.cancel() }
    s.mu.Unlock()
}

// worker runs payloads one at a time so replies keep request order.
func (s *session) worker(ctx context.Context) {
    defer s.wg.Done()
    for req := range s.work {
        ictx, cancel := context.WithCancel(ctx)
        s.mu.Lock(); s.cancel = cancel; s.mu.Unlock()
        resp, err := s.e.o.Executor.Execute(ictx, req)
        s.mu.Lock(); s.cancel = nil; s.mu.Unlock()
        cancel()

        if err != nil {
            s.e.log.Debug("payload failed", zap.String("kind", req.Kind), zap.Int64("seq", req.Sequence), zap.Error(err))
            resp, err = packet.NewPayload(s.e.reg, ErrorKind, req.Sequence, protocol.FormatJSON, map[string]string{"kind": req.Kind, "error": err.Error()})
            if err != nil { continue }
        }
        if resp == nil { continue }
        frame, err := packet.EncodeFrame(resp)
        if err == nil { err = s.fc.WriteRaw(frame) }
        if err != nil {
            s.e.log.Debug("reply dropped", zap.Error(err))
        }
    }
}

// Echo answers every payload with itself.
func Echo() api.Executor {
    return api.ExecutorFunc(func(ctx context.Context, req *packet.Payload) (*packet.Payload, error) {
        if err := ctx.Err(); err != nil { return nil, err }
        out := *req
        return &out, nil
    })
}
