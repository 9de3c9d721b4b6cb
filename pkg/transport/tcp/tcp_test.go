package tcp

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

func TestDialListenExchange(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    tr := New(transport.Options{MaxFrameBytes: 1024})
    l, err := tr.Listen(ctx, "127.0.0.1:0")
    require.NoError(t, err)
    defer l.Close()

    dctx, dcancel := context.WithTimeout(ctx, time.Second)
    cli, err := tr.Dial(dctx, l.Addr().String())
    dcancel()
    require.NoError(t, err)
    defer cli.Close()

    srv, err := l.Accept(ctx)
    require.NoError(t, err)
    defer srv.Close()
    require.Equal(t, transport.KindTCP, srv.Kind())

    // the dial context is done; the session must still work
    require.NoError(t, cli.SendBytes([]byte("ping")))
    got, err := srv.RecvBytes()
    require.NoError(t, err)
    require.Equal(t, "ping", string(got))

    require.NoError(t, srv.SendBytes([]byte("pong")))
    got, err = cli.RecvBytes()
    require.NoError(t, err)
    require.Equal(t, "pong", string(got))

    require.ErrorIs(t, cli.SendBytes(make([]byte, 2048)), transport.ErrFrameTooLarge)
}

func TestListenerClosesWithContext(t *testing.T) {
    ctx, cancel := context.WithCancel(context.Background())
    l, err := New(transport.Options{}).Listen(ctx, "127.0.0.1:0")
    require.NoError(t, err)
    cancel()
    _, err = l.Accept(context.Background())
    require.Error(t, err)
}
