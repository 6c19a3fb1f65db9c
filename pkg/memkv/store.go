package memkv

import (
    "container/heap"
    "hash/fnv"
    "sort"
    "strings"
    "sync"
    "sync/atomic"
    "time"
)

// Options configures a Store.
type Options struct {
    Shards   int    // default 16
    MaxBytes uint64 // total value size limit; 0 means unlimited
    // OnExpire is called (outside any lock) for every key the expirer removes.
    OnExpire func(key string, val []byte)
    // Now overrides the clock in tests.
    Now func() time.Time
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 16 }
    if o.Now == nil { o.Now = time.Now }
    return o
}

// Stats is a point-in-time snapshot of the store counters.
type Stats struct {
    Keys    uint64
    Bytes   uint64
    Sets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
}

type entry struct {
    val      []byte
    expireAt int64 // unix nano, 0 = never
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

// Store is safe for concurrent use.
type Store struct {
    opts   Options
    shards []shard
    exp    expiry

    closeOnce sync.Once
    closeCh   chan struct{}
    wg        sync.WaitGroup

    keys, bytes, sets, hits, misses, dels, expired atomic.Uint64
}

// New starts a store and its expirer goroutine. Close stops it.
func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{opts: opts, shards: make([]shard, opts.Shards), closeCh: make(chan struct{})}
    for i := range s.shards { s.shards[i].m = make(map[string]*entry) }
    s.exp.wake = make(chan struct{}, 1)
    s.wg.Add(1)
    go s.expirer()
    return s
}

// Close stops the expirer. The store stays readable.
func (s *Store) Close() {
    s.closeOnce.Do(func() { close(s.closeCh) })
    s.wg.Wait()
}

func (s *Store) shardFor(key string) *shard {
    h := fnv.New32a()
    _, _ = h.Write([]byte(key))
    return &s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *Store) now() int64 { return s.opts.Now().UnixNano() }

func live(e *entry, now int64) bool { return e.expireAt == 0 || e.expireAt > now }

func clone(b []byte) []byte { return append([]byte(nil), b...) }

// reserve accounts delta more bytes, failing if MaxBytes would be exceeded.
func (s *Store) reserve(delta uint64) bool {
    for {
        cur := s.bytes.Load()
        if s.opts.MaxBytes != 0 && cur+delta > s.opts.MaxBytes { return false }
        if s.bytes.CompareAndSwap(cur, cur+delta) { return true }
    }
}

func (s *Store) release(n int) { s.bytes.Add(^uint64(n - 1)) }

// removeLocked drops key from sh; the shard lock must be held.
func (s *Store) removeLocked(sh *shard, key string, e *entry) {
    delete(sh.m, key)
    s.keys.Add(^uint64(0))
    if len(e.val) > 0 { s.release(len(e.val)) }
}

// Set stores val under key. ttl <= 0 means no expiry. It returns false when
// the value would exceed MaxBytes.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    now := s.now()
    var expAt int64
    if ttl > 0 { expAt = now + int64(ttl) }
    v := clone(val)

    sh := s.shardFor(key)
    sh.mu.Lock()
    prev, existed := sh.m[key]
    oldLen := 0
    if existed { oldLen = len(prev.val) }
    if d := len(v) - oldLen; d > 0 && !s.reserve(uint64(d)) {
        sh.mu.Unlock()
        return false
    } else if d < 0 {
        s.release(-d)
    }
    sh.m[key] = &entry{val: v, expireAt: expAt}
    sh.mu.Unlock()

    if !existed { s.keys.Add(1) }
    s.sets.Add(1)
    if expAt != 0 { s.exp.push(key, expAt) }
    return true
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    if ok && live(e, s.now()) {
        v := clone(e.val)
        sh.mu.RUnlock()
        s.hits.Add(1)
        return v, true
    }
    sh.mu.RUnlock()
    s.misses.Add(1)
    return nil, false
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(key string) bool {
    _, ok := s.TTL(key)
    return ok
}

// GetDel removes key and returns its value. Of several concurrent callers
// for the same key, exactly one sees ok == true.
func (s *Store) GetDel(key string) ([]byte, bool) {
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if !ok {
        sh.mu.Unlock()
        s.misses.Add(1)
        return nil, false
    }
    s.removeLocked(sh, key, e)
    sh.mu.Unlock()
    if !live(e, s.now()) {
        s.expired.Add(1)
        s.misses.Add(1)
        return nil, false
    }
    s.hits.Add(1)
    s.dels.Add(1)
    return e.val, true
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if ok { s.removeLocked(sh, key, e) }
    sh.mu.Unlock()
    if ok { s.dels.Add(1) }
    return ok
}

// Expire resets the TTL of an existing key; ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    if ttl <= 0 { return s.Delete(key) }
    now := s.now()
    expAt := now + int64(ttl)
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    ok = ok && live(e, now)
    if ok { e.expireAt = expAt }
    sh.mu.Unlock()
    if !ok { return false }
    s.exp.push(key, expAt)
    return true
}

// TTL returns the remaining lifetime of key; 0 with ok means no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
    now := s.now()
    sh := s.shardFor(key)
    sh.mu.RLock()
    defer sh.mu.RUnlock()
    e, ok := sh.m[key]
    if !ok || !live(e, now) { return 0, false }
    if e.expireAt == 0 { return 0, true }
    return time.Duration(e.expireAt - now), true
}

// Keys returns the live keys starting with prefix in sorted order.
func (s *Store) Keys(prefix string) []string {
    now := s.now()
    var out []string
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if strings.HasPrefix(k, prefix) && live(e, now) { out = append(out, k) }
        }
        sh.mu.RUnlock()
    }
    sort.Strings(out)
    return out
}

// Metrics returns the current counters.
func (s *Store) Metrics() Stats {
    return Stats{
        Keys: s.keys.Load(), Bytes: s.bytes.Load(), Sets: s.sets.Load(),
        Hits: s.hits.Load(), Misses: s.misses.Load(), Dels: s.dels.Load(), Expired: s.expired.Load(),
    }
}

// sweep removes key if its entry is still expired at now.
func (s *Store) sweep(key string, now int64) {
    sh := s.shardFor(key)
    sh.mu.Lock()
    e, ok := sh.m[key]
    if !ok || live(e, now) {
        sh.mu.Unlock()
        return
    }
    s.removeLocked(sh, key, e)
    sh.mu.Unlock()
    s.expired.Add(1)
    if s.opts.OnExpire != nil { s.opts.OnExpire(key, e.val) }
}

func (s *Store) expirer() {
    defer s.wg.Done()
    for {
        now := s.now()
        if key, ok := s.exp.popDue(now); ok {
            s.sweep(key, now)
            continue
        }
        var timer *time.Timer
        var fire <-chan time.Time
        if when, ok := s.exp.next(); ok {
            timer = time.NewTimer(time.Duration(when - now))
            fire = timer.C
        }
        select {
        case <-fire:
        case <-s.exp.wake:
        case <-s.closeCh:
        }
        if timer != nil { timer.Stop() }
        if s.closed() { return }
    }
}

func (s *Store) closed() bool {
    select {
    case <-s.closeCh:
        return true
    default:
        return false
    }
}

// expiry is a min-heap of pending deadlines. Stale items (key rewritten or
// deleted) are harmless: sweep rechecks the entry.
type expiry struct {
    mu   sync.Mutex
    h    expHeap
    wake chan struct{}
}

type expItem struct {
    when int64
    key  string
}

type expHeap []expItem

func (h expHeap) Len() int           { return len(h) }
func (h expHeap) Less(i, j int) bool { return h[i].when < h[j].when }
func (h expHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expHeap) Push(x any)        { *h = append(*h, x.(expItem)) }
func (h *expHeap) Pop() any          { old := *h; it := old[len(old)-1]; *h = old[:len(old)-1]; return it }

func (q *expiry) push(key string, when int64) {
    q.mu.Lock()
    heap.Push(&q.h, expItem{when: when, key: key})
    head := q.h[0].when == when
    q.mu.Unlock()
    if head {
        select {
        case q.wake <- struct{}{}:
        default:
        }
    }
}

func (q *expiry) next() (int64, bool) {
    q.mu.Lock(); defer q.mu.Unlock()
    if len(q.h) == 0 { return 0, false }
    return q.h[0].when, true
}

// popDue pops the head if its deadline has passed.
func (q *expiry) popDue(now int64) (string, bool) {
    q.mu.Lock(); defer q.mu.Unlock()
    if len(q.h) == 0 || q.h[0].when > now { return "", false }
    return heap.Pop(&q.h).(expItem).key, true
}
