package stream

import (
    "bufio"
    "io"
    "sync"

    "buildnode/pkg/protocol"
)

// Conn wraps an io.ReadWriter to send/receive typed frames.
// One goroutine may call Recv while others call Send or WriteRaw.
type Conn struct {
    mu sync.Mutex
    br *bufio.Reader
    bw *bufio.Writer
}

func New(rw io.ReadWriter) *Conn {
    return &Conn{br: bufio.NewReader(rw), bw: bufio.NewWriter(rw)}
}

// Send writes one frame and flushes it.
func (c *Conn) Send(typ uint8, payload []byte) error {
    c.mu.Lock(); defer c.mu.Unlock()
    if err := protocol.WriteFrame(c.bw, typ, payload); err != nil { return err }
    return c.bw.Flush()
}

// WriteRaw writes an already encoded frame and flushes it.
func (c *Conn) WriteRaw(frame []byte) error {
    c.mu.Lock(); defer c.mu.Unlock()
    if _, err := c.bw.Write(frame); err != nil { return err }
    return c.bw.Flush()
}

// Recv reads the next frame.
func (c *Conn) Recv() (uint8, []byte, error) { return protocol.ReadFrame(c.br) }
