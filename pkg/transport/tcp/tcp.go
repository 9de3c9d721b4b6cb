package tcp

import (
    "context"
    "errors"
    "net"
    "sync"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

// Transport implements a stream-based TCP transport with length-prefixed frames (u32 LE).
type Transport struct {
    opts transport.Options
}

func New(opts transport.Options) *Transport { return &Transport{opts: opts} }

func (t *Transport) Kind() transport.Kind { return transport.KindTCP }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    var lc net.ListenConfig
    l, err := lc.Listen(ctx, "tcp", address)
    if err != nil {
        return nil, err
    }
    tl := &listener{l: l, opts: t.opts, newCh: make(chan transport.Session, 8), closeCh: make(chan struct{})}
    go tl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = tl.Close()
        case <-tl.closeCh:
        }
    }()
    return tl, nil
}

func (t *Transport) Dial(ctx context.Context, address string) (transport.Session, error) {
    var d net.Dialer
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil {
        return nil, err
    }
    return transport.FromConn(transport.KindTCP, c, t.opts), nil
}

type listener struct {
    l       net.Listener
    opts    transport.Options
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
        return nil, errors.New("tcp listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() {
        close(l.closeCh)
        l.err = l.l.Close()
    })
    return l.err
}

func (l *listener) acceptLoop() {
    for {
        c, err := l.l.Accept()
        if err != nil {
            return
        }
        s := transport.FromConn(transport.KindTCP, c, l.opts)
        select {
        case l.newCh <- s:
        case <-l.closeCh:
            _ = s.Close()
            return
        default:
            zap.L().Warn("tcp accept backlog full, dropping connection", zap.Stringer("remote", c.RemoteAddr()))
            _ = s.Close()
        }
    }
}
