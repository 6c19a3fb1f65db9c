// Package launcher starts node processes with os/exec and kills them together
// with everything they spawned.
package launcher

import (
    "context"
    "errors"
    "fmt"
    "io"
    "os"
    "os/exec"
    "sync"
    "time"

    "go.uber.org/zap"

    "buildnode/pkg/api"
)

const defaultTailBytes = 8 << 10

// ErrNotRunning is returned by Attach for a pid that does not exist.
var ErrNotRunning = errors.New("process not running")

// Exec launches node processes as children of the host.
type Exec struct {
    // TailBytes bounds the captured stderr of every child.
    TailBytes int64
    // StderrDir holds the children's stderr files; empty uses os.TempDir.
    StderrDir string
    // Stdout receives the children's stdout; nil discards it.
    Stdout io.Writer
    Logger *zap.Logger
}

// New returns an Exec launcher with defaults.
func New() *Exec { return &Exec{TailBytes: defaultTailBytes} }

func (e *Exec) log() *zap.Logger {
    if e.Logger != nil { return e.Logger }
    return zap.L().Named("launcher")
}

// Launch starts spec.Executable (the running binary when empty).
func (e *Exec) Launch(ctx context.Context, spec api.LaunchSpec) (api.Process, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    exe := spec.Executable
    if exe == "" {
        self, err := os.Executable()
        if err != nil { return nil, fmt.Errorf("resolve own executable: %w", err) }
        exe = self
    }
    size := e.TailBytes
    if size <= 0 { size = defaultTailBytes }
    // A reusable node outlives this host; its stderr must not be a pipe.
    stderr, err := os.CreateTemp(e.StderrDir, "buildnode-node-*.log")
    if err != nil { return nil, fmt.Errorf("node stderr: %w", err) }

    // Not CommandContext: the node must outlive the request that started it.
    cmd := exec.Command(exe, spec.Args...)
    cmd.Dir = spec.Dir
    cmd.Env = append(os.Environ(), spec.Env...)
    cmd.Stdout = e.Stdout
    cmd.Stderr = stderr
    configureCmd(cmd)
    if err := cmd.Start(); err != nil {
        _ = stderr.Close()
        _ = os.Remove(stderr.Name())
        return nil, fmt.Errorf("start %s: %w", exe, err)
    }
    // Unlinked while open where the platform allows it.
    unlinked := os.Remove(stderr.Name()) == nil

    p := &process{pid: cmd.Process.Pid, exited: make(chan struct{}), stderr: stderr, tailSize: size, log: e.log()}
    go func() {
        err := cmd.Wait()
        p.setExit(err)
        p.closeStderr(unlinked)
        close(p.exited)
    }()
    if spec.LowPriority {
        if err := lowerPriority(p.pid); err != nil {
            e.log().Warn("lower node priority failed", zap.Int("pid", p.pid), zap.Error(err))
        }
    }
    e.log().Debug("node process started", zap.Int("pid", p.pid), zap.String("exe", exe), zap.Strings("args", spec.Args))
    return p, nil
}

// Attach wraps a process started by an earlier host. Its exit can only be
// observed by polling, which Kill does.
func (e *Exec) Attach(pid int) (api.Process, error) {
    if pid <= 0 || !alive(pid) { return nil, fmt.Errorf("%w: pid %d", ErrNotRunning, pid) }
    return &process{pid: pid, attached: true, exited: make(chan struct{}), log: e.log()}, nil
}

type process struct {
    pid      int
    attached bool
    exited   chan struct{}
    tailSize int64
    log      *zap.Logger

    mu      sync.Mutex
    stderr  *os.File
    last    string // stderr tail kept once the file is closed
    exitErr error
}

func (p *process) PID() int                { return p.pid }
func (p *process) Exited() <-chan struct{} { return p.exited }

func (p *process) setExit(err error) { p.mu.Lock(); p.exitErr = err; p.mu.Unlock() }

func (p *process) closeStderr(unlinked bool) {
    p.mu.Lock(); defer p.mu.Unlock()
    if p.stderr == nil { return }
    p.last = p.tailLocked()
    name := p.stderr.Name()
    _ = p.stderr.Close()
    p.stderr = nil
    if !unlinked { _ = os.Remove(name) }
}

// tailLocked reads the last tailSize bytes the child wrote to stderr.
func (p *process) tailLocked() string {
    if p.stderr == nil { return p.last }
    st, err := p.stderr.Stat()
    if err != nil { return p.last }
    tail, err := newTailBuffer(p.tailSize)
    if err != nil { return "" }
    if _, err := io.Copy(tail, io.NewSectionReader(p.stderr, 0, st.Size())); err != nil {
        p.log.Debug("read node stderr", zap.Int("pid", p.pid), zap.Error(err))
    }
    return tail.String()
}

func (p *process) Diagnostics() string {
    p.mu.Lock()
    out, err := p.tailLocked(), p.exitErr
    p.mu.Unlock()
    if err != nil {
        if out != "" { out += "\n" }
        out += "exit: " + err.Error()
    }
    return out
}

// Kill kills the process tree and waits up to timeout for the exit.
func (p *process) Kill(timeout time.Duration) error {
    select {
    case <-p.exited:
        return nil
    default:
    }
    if err := killTree(p.pid); err != nil && alive(p.pid) { return fmt.Errorf("kill %d: %w", p.pid, err) }
    deadline := time.NewTimer(timeout)
    defer deadline.Stop()
    if !p.attached {
        select {
        case <-p.exited:
            return nil
        case <-deadline.C:
            return fmt.Errorf("process %d did not exit within %s", p.pid, timeout)
        }
    }
    tick := time.NewTicker(20 * time.Millisecond)
    defer tick.Stop()
    for alive(p.pid) {
        select {
        case <-tick.C:
        case <-deadline.C:
            return fmt.Errorf("process %d did not exit within %s", p.pid, timeout)
        }
    }
    return nil
}
