package catalog

import (
    "context"
    "sync/atomic"
    "time"

    "go.uber.org/zap"

    "buildnode/pkg/handshake"
    "buildnode/pkg/memkv"
)

// Memory keeps records in process; they die with the host.
type Memory struct {
    kv     *memkv.Store
    closed atomic.Bool
}

func NewMemory() *Memory {
    return &Memory{kv: memkv.New(memkv.Options{
        Shards: 8,
        OnExpire: func(key string, _ []byte) {
            zap.L().Debug("idle node record expired", zap.String("key", key))
        },
    })}
}

func (m *Memory) Put(ctx context.Context, rec Record, ttl time.Duration) error {
    if m.closed.Load() { return ErrClosed }
    b, err := encode(rec)
    if err != nil { return err }
    m.kv.Set(rec.Key(), b, ttl)
    return nil
}

func (m *Memory) Take(ctx context.Context, h handshake.Handshake) (Record, bool, error) {
    if m.closed.Load() { return Record{}, false, ErrClosed }
    for _, key := range m.kv.Keys(handshakePrefix(h)) {
        if err := ctx.Err(); err != nil { return Record{}, false, err }
        b, ok := m.kv.GetDel(key)
        if !ok { continue } // taken by someone else
        rec, err := decode(b)
        if err != nil { return Record{}, false, err }
        return rec, true, nil
    }
    return Record{}, false, nil
}

func (m *Memory) List(ctx context.Context) ([]Record, error) {
    if m.closed.Load() { return nil, ErrClosed }
    var out []Record
    for _, key := range m.kv.Keys(keyPrefix) {
        b, ok := m.kv.Get(key)
        if !ok { continue }
        rec, err := decode(b)
        if err != nil { return nil, err }
        out = append(out, rec)
    }
    return out, nil
}

func (m *Memory) Remove(ctx context.Context, rec Record) error {
    if m.closed.Load() { return ErrClosed }
    m.kv.Delete(rec.Key())
    return nil
}

func (m *Memory) Close() error {
    if m.closed.CompareAndSwap(false, true) { m.kv.Close() }
    return nil
}
