//go:build windows

package winpipe

import (
    "context"
    "errors"
    "net"
    "sync"

    "github.com/Microsoft/go-winio"
    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

type Transport struct {
    opts transport.Options
}

func New(opts transport.Options) (transport.Transport, error) { return &Transport{opts: opts}, nil }

func (t *Transport) Kind() transport.Kind { return transport.KindWinPipe }

func (t *Transport) Listen(ctx context.Context, pipeName string) (transport.Listener, error) {
    l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{MessageMode: false})
    if err != nil {
        return nil, err
    }
    wl := &listener{l: l, opts: t.opts, newCh: make(chan transport.Session, 8), closeCh: make(chan struct{})}
    go wl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = wl.Close()
        case <-wl.closeCh:
        }
    }()
    return wl, nil
}

func (t *Transport) Dial(ctx context.Context, pipeName string) (transport.Session, error) {
    conn, err := winio.DialPipeContext(ctx, pipeName)
    if err != nil {
        return nil, err
    }
    return transport.FromConn(transport.KindWinPipe, conn, t.opts), nil
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
        return nil, errors.New("winpipe listener closed")
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
        s := transport.FromConn(transport.KindWinPipe, c, l.opts)
        select {
        case l.newCh <- s:
        case <-l.closeCh:
            _ = s.Close()
            return
        default:
            zap.L().Warn("winpipe accept backlog full, dropping connection")
            _ = s.Close()
        }
    }
}
