package netstack

import (
    "context"
    "errors"
    "fmt"
    "math/rand"
    "net"
    "time"

    "go.uber.org/zap"

    "buildnode/pkg/transport"
)

// ErrAborted is returned by Dial when the abort channel fires first.
var ErrAborted = errors.New("dial aborted")

// Backoff controls the retry cadence of Dial.
type Backoff struct {
    Initial time.Duration
    Max     time.Duration
    Jitter  time.Duration
}

// DefaultBackoff suits a freshly launched local process.
func DefaultBackoff() Backoff { return Backoff{Initial: 20 * time.Millisecond, Max: 500 * time.Millisecond, Jitter: 10 * time.Millisecond} }

// Dial connects to address, retrying with exponential backoff until it
// succeeds, ctx is done, or abort is closed (for example when the process
// that should be listening exits).
func Dial(ctx context.Context, tr transport.Transport, address string, b Backoff, abort <-chan struct{}) (net.Conn, error) {
    backoff := b.Initial
    if backoff <= 0 { backoff = 20 * time.Millisecond }
    maxBackoff := b.Max
    if maxBackoff <= 0 { maxBackoff = time.Second }

    var lastErr error
    for attempt := 1; ; attempt++ {
        c, err := tr.Dial(ctx, address)
        if err == nil { return c, nil }
        lastErr = err
        zap.L().Debug("dial failed", zap.String("kind", tr.Kind().String()), zap.String("addr", address), zap.Int("attempt", attempt), zap.Error(err))

        t := time.NewTimer(withJitter(backoff, b.Jitter))
        select {
        case <-ctx.Done():
            t.Stop()
            return nil, fmt.Errorf("dial %s after %d attempts: %w (last error: %v)", address, attempt, ctx.Err(), lastErr)
        case <-abort:
            t.Stop()
            return nil, fmt.Errorf("dial %s: %w (last error: %v)", address, ErrAborted, lastErr)
        case <-t.C:
        }
        if backoff < maxBackoff { backoff = min(backoff*2, maxBackoff) }
    }
}

func withJitter(d, jitter time.Duration) time.Duration {
    if jitter <= 0 { return d }
    return d + time.Duration(rand.Int63n(int64(jitter)))
}
