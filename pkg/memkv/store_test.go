package memkv

import (
    "bytes"
    "reflect"
    "sync"
    "sync/atomic"
    "testing"
    "time"
)

type fakeClock struct{ ns atomic.Int64 }

func (c *fakeClock) Now() time.Time          { return time.Unix(0, c.ns.Load()) }
func (c *fakeClock) Advance(d time.Duration) { c.ns.Add(int64(d)) }

func TestSetGetCopies(t *testing.T) {
    s := New(Options{})
    defer s.Close()

    in := []byte("abc")
    if !s.Set("k1", in, 0) { t.Fatalf("Set rejected") }
    in[0] = 'X'
    v, ok := s.Get("k1")
    if !ok || string(v) != "abc" { t.Fatalf("Get mismatch: ok=%v v=%q", ok, v) }
    v[0] = 'Y'
    if v2, _ := s.Get("k1"); string(v2) != "abc" { t.Fatalf("store aliased the returned slice: %q", v2) }
}

func TestGetDelSingleWinner(t *testing.T) {
    s := New(Options{})
    defer s.Close()
    s.Set("idle:a", []byte("rec"), 0)

    var wins atomic.Int32
    var wg sync.WaitGroup
    for i := 0; i < 32; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            if _, ok := s.GetDel("idle:a"); ok { wins.Add(1) }
        }()
    }
    wg.Wait()
    if wins.Load() != 1 { t.Fatalf("GetDel winners = %d, want 1", wins.Load()) }
    if _, ok := s.Get("idle:a"); ok { t.Fatalf("key survived GetDel") }
}

func TestLazyExpiry(t *testing.T) {
    clk := &fakeClock{}
    clk.ns.Store(time.Now().UnixNano())
    s := New(Options{Now: clk.Now})
    defer s.Close()

    s.Set("k", []byte("v"), time.Minute)
    if d, ok := s.TTL("k"); !ok || d != time.Minute { t.Fatalf("TTL = %v %v", d, ok) }
    clk.Advance(2 * time.Minute)
    if _, ok := s.Get("k"); ok { t.Fatalf("expired key visible to Get") }
    if _, ok := s.GetDel("k"); ok { t.Fatalf("expired key returned by GetDel") }
    if got := s.Metrics(); got.Expired != 1 || got.Keys != 0 { t.Fatalf("metrics after expiry: %+v", got) }
}

func TestExpirerRemovesAndNotifies(t *testing.T) {
    expired := make(chan string, 1)
    s := New(Options{OnExpire: func(key string, _ []byte) { expired <- key }})
    defer s.Close()

    s.Set("slow", []byte("v"), time.Hour)
    s.Set("fast", []byte("v"), 30*time.Millisecond)
    select {
    case k := <-expired:
        if k != "fast" { t.Fatalf("expired %q first", k) }
    case <-time.After(2 * time.Second):
        t.Fatalf("expirer never ran")
    }
    if _, ok := s.Get("slow"); !ok { t.Fatalf("unexpired key removed") }
}

func TestExpireResetsTTL(t *testing.T) {
    s := New(Options{})
    defer s.Close()

    s.Set("k", []byte("v"), 0)
    if d, ok := s.TTL("k"); !ok || d != 0 { t.Fatalf("no-expiry TTL = %v %v", d, ok) }
    if !s.Expire("k", time.Hour) { t.Fatalf("Expire returned false") }
    if d, ok := s.TTL("k"); !ok || d <= 0 { t.Fatalf("TTL after Expire = %v %v", d, ok) }
    if s.Expire("missing", time.Hour) { t.Fatalf("Expire on missing key") }
    if !s.Expire("k", 0) || s.Exists("k") { t.Fatalf("Expire(0) should delete") }
}

func TestKeysByPrefix(t *testing.T) {
    s := New(Options{Shards: 4})
    defer s.Close()
    for _, k := range []string{"idle:b", "idle:a", "other:a", "idle:c"} { s.Set(k, []byte(k), 0) }
    s.Delete("idle:c")

    got := s.Keys("idle:")
    if want := []string{"idle:a", "idle:b"}; !reflect.DeepEqual(got, want) { t.Fatalf("Keys = %v, want %v", got, want) }
    if len(s.Keys("none:")) != 0 { t.Fatalf("unexpected keys") }
}

func TestMaxBytes(t *testing.T) {
    s := New(Options{MaxBytes: 64})
    defer s.Close()

    if !s.Set("a", bytes.Repeat([]byte{'x'}, 50), 0) { t.Fatalf("initial Set rejected") }
    if s.Set("b", bytes.Repeat([]byte{'y'}, 20), 0) { t.Fatalf("Set over the limit accepted") }
    if s.Exists("b") { t.Fatalf("rejected key stored") }
    if !s.Set("a", []byte("short"), 0) { t.Fatalf("shrinking replace rejected") }
    if !s.Set("b", bytes.Repeat([]byte{'y'}, 20), 0) { t.Fatalf("Set after shrink rejected") }
    s.Delete("a")
    if st := s.Metrics(); st.Bytes != 20 || st.Keys != 1 { t.Fatalf("accounting: Bytes=%d Keys=%d", st.Bytes, st.Keys) }
}

func TestCloseIdempotent(t *testing.T) {
    s := New(Options{})
    s.Close()
    s.Close()
    s.Set("k", []byte("v"), 0)
    if !s.Exists("k") { t.Fatalf("store unreadable after Close") }
}
