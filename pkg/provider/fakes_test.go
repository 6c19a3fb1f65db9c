package provider

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "sync/atomic"
    "testing"
    "time"

    "go.uber.org/zap/zaptest"

    "buildnode/pkg/api"
    "buildnode/pkg/handshake"
    "buildnode/pkg/launcher"
    "buildnode/pkg/transport/mem"
    "buildnode/pkg/worker"
)

type launchMode int

const (
    modeNormal   launchMode = iota
    modeFail                // Launch itself fails
    modeCrash               // process exits before listening
    modeMismatch            // node presents a different handshake
)

// fakeLauncher runs a worker.Endpoint in-process for every launch, on a
// mem transport shared with the provider under test.
type fakeLauncher struct {
    t       *testing.T
    tr      *mem.Transport
    toolset handshake.Toolset
    exec    api.Executor
    mode    func(n int) launchMode

    // stubborn procs ignore Kill until its timeout has passed
    stubborn bool

    launches atomic.Int32
    mu       sync.Mutex
    nextPID  int
    procs    map[int]*fakeProc
}

func newFakeLauncher(t *testing.T, ts handshake.Toolset) *fakeLauncher {
    fl := &fakeLauncher{t: t, tr: mem.New(), toolset: ts, nextPID: 1000, procs: make(map[int]*fakeProc)}
    t.Cleanup(func() {
        fl.mu.Lock(); defer fl.mu.Unlock()
        for _, p := range fl.procs { p.cancel() }
    })
    return fl
}

func (fl *fakeLauncher) Launch(ctx context.Context, spec api.LaunchSpec) (api.Process, error) {
    n := int(fl.launches.Add(1))
    mode := modeNormal
    if fl.mode != nil { mode = fl.mode(n) }
    if mode == modeFail { return nil, errors.New("exec: file not found") }
    flags, err := launcher.ParseNodeArgs(spec.Args)
    if err != nil { return nil, err }

    fl.mu.Lock()
    fl.nextPID++
    wctx, cancel := context.WithCancel(context.Background())
    p := &fakeProc{pid: fl.nextPID, cancel: cancel, exited: make(chan struct{}), stubborn: fl.stubborn}
    fl.procs[p.pid] = p
    fl.mu.Unlock()

    if mode == modeCrash {
        p.diag = "panic: boom\ngoroutine 1 [running]"
        cancel()
        close(p.exited)
        return p, nil
    }
    ts := fl.toolset
    if mode == modeMismatch { ts.Salt += "-other" }
    ep, err := worker.New(worker.Options{
        Transport:        fl.tr,
        Address:          flags.Endpoint.Address,
        Handshake:        ts.Handshake(flags.NodeReuse, flags.LowPriority, false),
        Executor:         fl.exec,
        IdleTimeout:      10 * time.Second,
        HandshakeTimeout: time.Second,
        Logger:           zaptest.NewLogger(fl.t).Named(fmt.Sprintf("worker-%d", p.pid)),
    })
    if err != nil { return nil, err }
    p.ep = ep
    go func() {
        defer close(p.exited)
        _ = ep.Run(wctx)
    }()
    return p, nil
}

func (fl *fakeLauncher) Attach(pid int) (api.Process, error) {
    fl.mu.Lock(); defer fl.mu.Unlock()
    p := fl.procs[pid]
    if p == nil { return nil, launcher.ErrNotRunning }
    select {
    case <-p.exited:
        return nil, launcher.ErrNotRunning
    default:
        return p, nil
    }
}

func (fl *fakeLauncher) proc(pid int) *fakeProc {
    fl.mu.Lock(); defer fl.mu.Unlock()
    return fl.procs[pid]
}

func (fl *fakeLauncher) all() []*fakeProc {
    fl.mu.Lock(); defer fl.mu.Unlock()
    out := make([]*fakeProc, 0, len(fl.procs))
    for _, p := range fl.procs { out = append(out, p) }
    return out
}

type fakeProc struct {
    pid    int
    ep     *worker.Endpoint
    cancel context.CancelFunc
    exited chan struct{}
    diag   string
    killed atomic.Int32

    stubborn bool
}

func (p *fakeProc) PID() int                 { return p.pid }
func (p *fakeProc) Exited() <-chan struct{}  { return p.exited }
func (p *fakeProc) Diagnostics() string      { return p.diag }

func (p *fakeProc) Kill(timeout time.Duration) error {
    p.killed.Add(1)
    if p.stubborn {
        time.Sleep(timeout)
        p.cancel()
        return fmt.Errorf("pid %d still running after %s", p.pid, timeout)
    }
    p.cancel()
    select {
    case <-p.exited:
        return nil
    case <-time.After(timeout):
        return fmt.Errorf("pid %d still running after %s", p.pid, timeout)
    }
}

func (p *fakeProc) gone() bool {
    select {
    case <-p.exited:
        return true
    default:
        return false
    }
}
