package quic

import (
    "context"
    "crypto/rand"
    "crypto/rsa"
    "crypto/tls"
    "crypto/x509"
    "errors"
    "math/big"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"

    "buildnode/pkg/transport"
)

const alpn = "buildnode"

// Transport carries each node connection on a single bidirectional QUIC
// stream. The node side presents an ephemeral self-signed certificate; the
// host does not verify it because the handshake that follows identifies the
// node.
type Transport struct {
    once     sync.Once
    certErr  error
    tlsConf  *tls.Config
    quicConf *quicgo.Config
}

func New() *Transport {
    return &Transport{quicConf: &quicgo.Config{KeepAlivePeriod: 10 * time.Second, MaxIdleTimeout: time.Minute}}
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) serverTLS() (*tls.Config, error) {
    t.once.Do(func() {
        cert, err := selfSignedCert()
        if err != nil { t.certErr = err; return }
        t.tlsConf = &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{alpn}, MinVersion: tls.VersionTLS13}
    })
    return t.tlsConf, t.certErr
}

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    tlsConf, err := t.serverTLS()
    if err != nil { return nil, err }
    l, err := quicgo.ListenAddr(address, tlsConf, t.quicConf)
    if err != nil { return nil, err }
    ql := &listener{l: l, newCh: make(chan net.Conn, 8), closeCh: make(chan struct{})}
    go ql.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = ql.Close()
        case <-ql.closeCh:
        }
    }()
    return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (net.Conn, error) {
    tlsClient := &tls.Config{InsecureSkipVerify: true, NextProtos: []string{alpn}, MinVersion: tls.VersionTLS13}
    c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
    if err != nil { return nil, err }
    st, err := c.OpenStreamSync(ctx)
    if err != nil {
        _ = c.CloseWithError(1, "open stream")
        return nil, err
    }
    return &streamConn{Stream: st, conn: c}, nil
}

type listener struct {
    once    sync.Once
    l       *quicgo.Listener
    newCh   chan net.Conn
    closeCh chan struct{}
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

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
    var err error
    l.once.Do(func() { close(l.closeCh); err = l.l.Close() })
    return err
}

func (l *listener) acceptLoop() {
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go func() { <-l.closeCh; cancel() }()
    for {
        c, err := l.l.Accept(ctx)
        if err != nil { return }
        go func(c quicgo.Connection) {
            // The dialer opens exactly one stream; it becomes visible once
            // the host writes its handshake.
            st, err := c.AcceptStream(ctx)
            if err != nil { _ = c.CloseWithError(1, "accept stream"); return }
            select {
            case l.newCh <- &streamConn{Stream: st, conn: c}:
            case <-l.closeCh:
                _ = c.CloseWithError(0, "listener closed")
            }
        }(c)
    }
}

// streamConn exposes one QUIC stream as a net.Conn.
type streamConn struct {
    quicgo.Stream
    conn quicgo.Connection
}

func (s *streamConn) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *streamConn) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }

func (s *streamConn) Close() error {
    s.Stream.CancelRead(0)
    err := s.Stream.Close()
    if cerr := s.conn.CloseWithError(0, ""); err == nil && !errors.Is(cerr, net.ErrClosed) { err = cerr }
    return err
}

// selfSignedCert generates a short-lived self-signed TLS certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
    priv, err := rsa.GenerateKey(rand.Reader, 2048)
    if err != nil { return tls.Certificate{}, err }
    tmpl := x509.Certificate{
        SerialNumber: big.NewInt(time.Now().UnixNano()),
        NotBefore:    time.Now().Add(-time.Minute),
        NotAfter:     time.Now().Add(24 * time.Hour),
        KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
        ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
        BasicConstraintsValid: true,
        DNSNames:     []string{"localhost"},
        IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
    if err != nil { return tls.Certificate{}, err }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
