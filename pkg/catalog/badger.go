package catalog

import (
    "context"
    "errors"
    "path/filepath"
    "time"

    badger "github.com/dgraph-io/badger/v4"

    "buildnode/pkg/handshake"
)

const takeRetries = 8

// Badger persists records so a later host invocation can reclaim nodes
// left idle by an earlier one.
type Badger struct {
    db *badger.DB
}

// OpenBadger opens (or creates) the catalog at path. An empty path keeps
// the database in memory.
func OpenBadger(path string) (*Badger, error) {
    var opts badger.Options
    if path == "" {
        opts = badger.DefaultOptions("").WithInMemory(true)
    } else {
        opts = badger.DefaultOptions(filepath.Clean(path)).WithValueLogFileSize(1 << 20)
    }
    opts.Logger = nil
    db, err := badger.Open(opts)
    if err != nil { return nil, err }
    return &Badger{db: db}, nil
}

func (b *Badger) Close() error { return b.db.Close() }

func (b *Badger) Put(ctx context.Context, rec Record, ttl time.Duration) error {
    val, err := encode(rec)
    if err != nil { return err }
    return b.db.Update(func(txn *badger.Txn) error {
        e := badger.NewEntry([]byte(rec.Key()), val)
        if ttl > 0 { e = e.WithTTL(ttl) }
        return txn.SetEntry(e)
    })
}

// Take deletes the first compatible record inside one transaction. Two hosts
// racing for the same record conflict on commit; the loser retries and moves
// on to the next record.
func (b *Badger) Take(ctx context.Context, h handshake.Handshake) (Record, bool, error) {
    prefix := []byte(handshakePrefix(h))
    for attempt := 0; attempt < takeRetries; attempt++ {
        if err := ctx.Err(); err != nil { return Record{}, false, err }
        var rec Record
        var found bool
        err := b.db.Update(func(txn *badger.Txn) error {
            it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: false})
            defer it.Close()
            it.Seek(prefix)
            if !it.ValidForPrefix(prefix) { return nil }
            item := it.Item()
            key := item.KeyCopy(nil)
            val, err := item.ValueCopy(nil)
            if err != nil { return err }
            if rec, err = decode(val); err != nil { return err }
            found = true
            return txn.Delete(key)
        })
        if errors.Is(err, badger.ErrConflict) { continue }
        if err != nil { return Record{}, false, err }
        return rec, found, nil
    }
    return Record{}, false, badger.ErrConflict
}

func (b *Badger) List(ctx context.Context) ([]Record, error) {
    var out []Record
    prefix := []byte(keyPrefix)
    err := b.db.View(func(txn *badger.Txn) error {
        it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix, PrefetchValues: true, PrefetchSize: 16})
        defer it.Close()
        for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
            if err := ctx.Err(); err != nil { return err }
            err := it.Item().Value(func(v []byte) error {
                rec, err := decode(v)
                if err != nil { return err }
                out = append(out, rec)
                return nil
            })
            if err != nil { return err }
        }
        return nil
    })
    return out, err
}

func (b *Badger) Remove(ctx context.Context, rec Record) error {
    return b.db.Update(func(txn *badger.Txn) error { return txn.Delete([]byte(rec.Key())) })
}
