package worker

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "buildnode/pkg/api"
    "buildnode/pkg/handshake"
    "buildnode/pkg/node"
    "buildnode/pkg/packet"
    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
    "buildnode/pkg/transport/mem"
)

var (
    reuseHS  = handshake.Handshake{Options: handshake.Is64Bit | handshake.NodeReuse, Salt: 77}
    singleHS = handshake.Handshake{Options: handshake.Is64Bit, Salt: 77}
)

type inbox struct {
    mu  sync.Mutex
    got []packet.Packet
}

func (b *inbox) HandlePacket(_ int, p packet.Packet) { b.mu.Lock(); b.got = append(b.got, p); b.mu.Unlock() }

func (b *inbox) packets() []packet.Packet {
    b.mu.Lock(); defer b.mu.Unlock()
    return append([]packet.Packet(nil), b.got...)
}

type harness struct {
    tr   *mem.Transport
    ep   *Endpoint
    done chan error
    stop context.CancelFunc
}

func start(t *testing.T, h handshake.Handshake, exec api.Executor, idle time.Duration) *harness {
    t.Helper()
    tr := mem.New()
    ep, err := New(Options{Transport: tr, Address: "node-1", Handshake: h, Executor: exec, IdleTimeout: idle, HandshakeTimeout: time.Second})
    require.NoError(t, err)
    ctx, cancel := context.WithCancel(context.Background())
    hr := &harness{tr: tr, ep: ep, done: make(chan error, 1), stop: cancel}
    go func() { hr.done <- ep.Run(ctx) }()
    require.Eventually(t, func() bool { return tr.Listening("node-1") }, time.Second, 5*time.Millisecond)
    t.Cleanup(cancel)
    return hr
}

func (hr *harness) connect(t *testing.T, h handshake.Handshake, in *inbox) (*node.Context, error) {
    t.Helper()
    conn, err := hr.tr.Dial(context.Background(), "node-1")
    require.NoError(t, err)
    c := node.New(node.Options{ID: 1, Conn: conn, Handler: in, DrainTimeout: time.Second})
    if err := c.Handshake(h, time.Second); err != nil { return c, err }
    c.Start()
    return c, nil
}

func (hr *harness) exited(t *testing.T) error {
    t.Helper()
    select {
    case err := <-hr.done:
        return err
    case <-time.After(3 * time.Second):
        t.Fatal("worker did not exit")
        return nil
    }
}

func TestPayloadRoundTripInOrder(t *testing.T) {
    hr := start(t, singleHS, nil, time.Second)
    in := &inbox{}
    c, err := hr.connect(t, singleHS, in)
    require.NoError(t, err)

    require.NoError(t, c.Send(&packet.NodeConfiguration{NodeID: 1, MaxNodeCount: 2}))
    for i := int64(1); i <= 20; i++ { require.NoError(t, c.Send(&packet.Payload{Kind: "build", Sequence: i, Format: protocol.FormatJSON, Body: []byte("{}")})) }
    require.NoError(t, c.Drain(&packet.NodeBuildComplete{PrepareForReuse: true}))

    select {
    case <-c.Done():
    case <-time.After(3 * time.Second):
        t.Fatal("context not terminated")
    }
    require.NoError(t, hr.exited(t))
    assert.False(t, c.Reusable(), "node without reuse flag must not linger")
    require.NotNil(t, hr.ep.Configuration())
    assert.EqualValues(t, 1, hr.ep.Configuration().NodeID)

    got := in.packets()
    require.Len(t, got, 21)
    for i, p := range got[:20] { assert.EqualValues(t, i+1, p.(*packet.Payload).Sequence) }
    ack := got[20].(*packet.NodeShutdown)
    assert.Equal(t, packet.ReasonBuildComplete, ack.Reason)
}

func TestReusableNodeLingersForNextHost(t *testing.T) {
    hr := start(t, reuseHS, nil, 2*time.Second)
    first, err := hr.connect(t, reuseHS, &inbox{})
    require.NoError(t, err)
    require.NoError(t, first.Drain(&packet.NodeBuildComplete{PrepareForReuse: true}))
    <-first.Done()
    assert.True(t, first.Reusable())

    second, err := hr.connect(t, reuseHS, &inbox{})
    require.NoError(t, err)
    require.NoError(t, second.Drain(&packet.NodeBuildComplete{PrepareForReuse: false}))
    <-second.Done()
    assert.False(t, second.Reusable())
    require.NoError(t, hr.exited(t))
    assert.Equal(t, 2, hr.ep.Sessions())
}

func TestMismatchedHostIsAnsweredAndIgnored(t *testing.T) {
    hr := start(t, reuseHS, nil, 2*time.Second)
    _, err := hr.connect(t, reuseHS.WithLowPriority(true), &inbox{})
    require.ErrorIs(t, err, handshake.ErrMismatch)
    var me *handshake.MismatchError
    require.True(t, errors.As(err, &me))
    assert.Equal(t, reuseHS, me.Remote, "worker answers with its own handshake")

    c, err := hr.connect(t, reuseHS, &inbox{})
    require.NoError(t, err, "worker keeps accepting after a mismatch")
    c.Terminate(true)
    require.Eventually(t, func() bool { return hr.ep.Sessions() == 1 }, time.Second, 5*time.Millisecond)
}

func TestIdleTimeoutExits(t *testing.T) {
    hr := start(t, reuseHS, nil, 200*time.Millisecond)
    require.NoError(t, hr.exited(t))
    assert.False(t, hr.tr.Listening("node-1"))
}

func TestHostDisconnect(t *testing.T) {
    hr := start(t, singleHS, nil, time.Second)
    c, err := hr.connect(t, singleHS, &inbox{})
    require.NoError(t, err)
    c.Terminate(true)
    require.NoError(t, hr.exited(t), "non-reusable node exits when its host goes away")
}

func TestTaskCancelledStopsCurrentWork(t *testing.T) {
    started := make(chan struct{})
    exec := api.ExecutorFunc(func(ctx context.Context, req *packet.Payload) (*packet.Payload, error) {
        close(started)
        <-ctx.Done()
        return nil, ctx.Err()
    })
    hr := start(t, singleHS, exec, time.Second)
    in := &inbox{}
    c, err := hr.connect(t, singleHS, in)
    require.NoError(t, err)
    require.NoError(t, c.Send(&packet.Payload{Kind: "long", Sequence: 9}))
    <-started
    require.NoError(t, c.Send(&packet.TaskCancelled{}))

    require.Eventually(t, func() bool { return len(in.packets()) == 1 }, 2*time.Second, 5*time.Millisecond)
    reply := in.packets()[0].(*packet.Payload)
    assert.Equal(t, ErrorKind, reply.Kind)
    assert.EqualValues(t, 9, reply.Sequence)
    var body map[string]string
    require.NoError(t, reply.Decode(codec.MustRegistry(), &body))
    assert.Equal(t, context.Canceled.Error(), body["error"])
    c.Terminate(true)
}

func TestNewValidates(t *testing.T) {
    _, err := New(Options{Address: "x"})
    assert.Error(t, err)
    _, err = New(Options{Transport: mem.New()})
    assert.Error(t, err)
}
