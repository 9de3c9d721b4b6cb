// Package quic carries frames over a single bidirectional QUIC stream per
// connection. Peers authenticate each other with the signed hello, so the TLS
// layer uses an ephemeral self-signed certificate and skips verification.
package quic

import (
    "context"
    "crypto/ed25519"
    "crypto/rand"
    "crypto/tls"
    "crypto/x509"
    "errors"
    "io"
    "math/big"
    "net"
    "sync"
    "time"

    quicgo "github.com/quic-go/quic-go"
    "go.uber.org/multierr"
    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

const alpn = "cita-p2p"

// streamAcceptTimeout bounds how long an inbound connection may take to open
// its stream.
const streamAcceptTimeout = 10 * time.Second

type Transport struct {
    opts     transport.Options
    tlsConf  *tls.Config
    quicConf *quicgo.Config
}

func New(opts transport.Options) (*Transport, error) {
    cert, err := selfSignedCert()
    if err != nil {
        return nil, err
    }
    return &Transport{
        opts: opts,
        tlsConf: &tls.Config{
            Certificates: []tls.Certificate{cert},
            NextProtos:   []string{alpn},
            MinVersion:   tls.VersionTLS13,
        },
        quicConf: &quicgo.Config{KeepAlivePeriod: 15 * time.Second},
    }, nil
}

func (t *Transport) Kind() transport.Kind { return transport.KindQUIC }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    l, err := quicgo.ListenAddr(address, t.tlsConf, t.quicConf)
    if err != nil {
        return nil, err
    }
    lctx, cancel := context.WithCancel(ctx)
    ql := &listener{l: l, opts: t.opts, cancel: cancel, newCh: make(chan transport.Session, 8), closeCh: make(chan struct{})}
    go ql.acceptLoop(lctx)
    go func() { <-lctx.Done(); _ = ql.Close() }()
    return ql, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Session, error) {
    tlsClient := &tls.Config{
        InsecureSkipVerify: true,
        NextProtos:         []string{alpn},
        MinVersion:         tls.VersionTLS13,
    }
    c, err := quicgo.DialAddr(ctx, address, tlsClient, t.quicConf)
    if err != nil {
        return nil, err
    }
    st, err := c.OpenStreamSync(ctx)
    if err != nil {
        _ = c.CloseWithError(0, "open stream")
        return nil, err
    }
    return wrap(c, st, t.opts), nil
}

type listener struct {
    l       *quicgo.Listener
    opts    transport.Options
    cancel  context.CancelFunc
    newCh   chan transport.Session
    closeCh chan struct{}
    once    sync.Once
    err     error
}

func (l *listener) Addr() net.Addr { return l.l.Addr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("quic listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() {
        close(l.closeCh)
        l.cancel()
        l.err = l.l.Close()
    })
    return l.err
}

func (l *listener) acceptLoop(ctx context.Context) {
    for {
        c, err := l.l.Accept(ctx)
        if err != nil {
            return
        }
        go l.acceptStream(ctx, c)
    }
}

// The dialer opens the stream and writes its hello first, which is what makes
// AcceptStream return.
func (l *listener) acceptStream(ctx context.Context, c quicgo.Connection) {
    sctx, cancel := context.WithTimeout(ctx, streamAcceptTimeout)
    defer cancel()
    st, err := c.AcceptStream(sctx)
    if err != nil {
        zap.L().Debug("quic stream accept failed", zap.Stringer("remote", c.RemoteAddr()), zap.Error(err))
        _ = c.CloseWithError(0, "no stream")
        return
    }
    s := wrap(c, st, l.opts)
    select {
    case l.newCh <- s:
    case <-l.closeCh:
        _ = s.Close()
    }
}

// connStream closes the whole connection along with the stream.
type connStream struct {
    quicgo.Stream
    conn quicgo.Connection
}

func (cs connStream) Close() error {
    return multierr.Append(cs.Stream.Close(), cs.conn.CloseWithError(0, ""))
}

func wrap(c quicgo.Connection, st quicgo.Stream, opts transport.Options) transport.Session {
    var rwc io.ReadWriteCloser = connStream{Stream: st, conn: c}
    return transport.NewFramed(transport.KindQUIC, rwc, c.LocalAddr(), c.RemoteAddr(), opts)
}

// selfSignedCert generates a short-lived self-signed TLS certificate for local QUIC use.
func selfSignedCert() (tls.Certificate, error) {
    pub, priv, err := ed25519.GenerateKey(rand.Reader)
    if err != nil {
        return tls.Certificate{}, err
    }
    tmpl := x509.Certificate{
        SerialNumber:          big.NewInt(time.Now().UnixNano()),
        NotBefore:             time.Now().Add(-time.Minute),
        NotAfter:              time.Now().Add(24 * time.Hour),
        KeyUsage:              x509.KeyUsageDigitalSignature,
        ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
        BasicConstraintsValid: true,
        DNSNames:              []string{"localhost"},
    }
    der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, pub, priv)
    if err != nil {
        return tls.Certificate{}, err
    }
    return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
