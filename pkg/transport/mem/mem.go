package mem

import (
    "context"
    "errors"
    "net"
    "sync"

    "buildnode/pkg/transport"
)

var (
    ErrNoListener     = errors.New("mem: no such listener")
    ErrListenerExists = errors.New("mem: listener already exists")
)

// Transport is an in-process transport using net.Pipe. Host and node must
// share the same Transport value.
type Transport struct {
    mu        sync.Mutex
    listeners map[string]*listener
}

func New() *Transport { return &Transport{listeners: make(map[string]*listener)} }

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    if _, ok := t.listeners[name]; ok { return nil, ErrListenerExists }
    l := &listener{name: name, newCh: make(chan net.Conn, 8), closeCh: make(chan struct{})}
    l.onClose = func() {
        t.mu.Lock()
        if t.listeners[name] == l { delete(t.listeners, name) }
        t.mu.Unlock()
    }
    t.listeners[name] = l
    go func() {
        select {
        case <-ctx.Done():
            _ = l.Close()
        case <-l.closeCh:
        }
    }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (net.Conn, error) {
    t.mu.Lock(); l := t.listeners[name]; t.mu.Unlock()
    if l == nil { return nil, ErrNoListener }
    c1, c2 := net.Pipe()
    select {
    case l.newCh <- c1:
        return c2, nil
    case <-l.closeCh:
        _ = c1.Close(); _ = c2.Close()
        return nil, ErrNoListener
    case <-ctx.Done():
        _ = c1.Close(); _ = c2.Close()
        return nil, ctx.Err()
    }
}

// Listening reports whether a listener is registered under name.
func (t *Transport) Listening(name string) bool {
    t.mu.Lock(); defer t.mu.Unlock()
    return t.listeners[name] != nil
}

type listener struct {
    once    sync.Once
    name    string
    newCh   chan net.Conn
    closeCh chan struct{}
    onClose func()
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (net.Conn, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, transport.ErrListenerClosed
    case c := <-l.newCh:
        return c, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() {
        close(l.closeCh)
        l.onClose()
        for {
            select {
            case c := <-l.newCh:
                _ = c.Close()
            default:
                return
            }
        }
    })
    return nil
}

type memAddr string
func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
