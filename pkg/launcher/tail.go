package launcher

import (
    "strings"
    "sync"

    "github.com/armon/circbuf"
)

// tailBuffer keeps the last bytes written by a child process. circbuf is not
// safe for concurrent use; the reader goroutine of os/exec writes while the
// provider reads.
type tailBuffer struct {
    mu  sync.Mutex
    buf *circbuf.Buffer
}

func newTailBuffer(size int64) (*tailBuffer, error) {
    b, err := circbuf.NewBuffer(size)
    if err != nil { return nil, err }
    return &tailBuffer{buf: b}, nil
}

func (t *tailBuffer) Write(p []byte) (int, error) {
    t.mu.Lock(); defer t.mu.Unlock()
    return t.buf.Write(p)
}

func (t *tailBuffer) String() string {
    t.mu.Lock(); defer t.mu.Unlock()
    s := t.buf.String()
    if t.buf.TotalWritten() > t.buf.Size() {
        // drop the partial first line
        if i := strings.IndexByte(s, '\n'); i >= 0 { s = s[i+1:] }
        s = "...\n" + s
    }
    return strings.TrimRight(s, "\n")
}
