package transport

import (
    "context"
    "errors"
    "net"
    "sync"
)

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("listener closed")

// WrapListener adapts a net.Listener to the context-aware Listener. The
// listener closes when ctx is done.
func WrapListener(ctx context.Context, l net.Listener) Listener {
    sl := &streamListener{l: l, newCh: make(chan net.Conn, 8), closeCh: make(chan struct{})}
    go sl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = sl.Close()
        case <-sl.closeCh:
        }
    }()
    return sl
}

type streamListener struct {
    once    sync.Once
    l       net.Listener
    newCh   chan net.Conn
    closeCh chan struct{}
}

func (l *streamListener) Addr() net.Addr { return l.l.Addr() }

func (l *streamListener) Accept(ctx context.Context) (net.Conn, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, ErrListenerClosed
    case c := <-l.newCh:
        return c, nil
    }
}

func (l *streamListener) Close() error {
    var err error
    l.once.Do(func() { close(l.closeCh); err = l.l.Close() })
    return err
}

func (l *streamListener) acceptLoop() {
    for {
        c, err := l.l.Accept()
        if err != nil { return }
        select {
        case l.newCh <- c:
        case <-l.closeCh:
            _ = c.Close()
            return
        }
    }
}
