package udp

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

func TestDatagramExchange(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    tr := New(transport.Options{})
    l, err := tr.Listen(ctx, "127.0.0.1:0")
    require.NoError(t, err)
    defer l.Close()

    cli, err := tr.Dial(ctx, l.Addr().String())
    require.NoError(t, err)
    defer cli.Close()

    require.NoError(t, cli.SendBytes([]byte("one")))
    srv, err := l.Accept(ctx)
    require.NoError(t, err)
    got, err := srv.RecvBytes()
    require.NoError(t, err)
    require.Equal(t, "one", string(got))

    require.NoError(t, srv.SendBytes([]byte("two")))
    got, err = cli.RecvBytes()
    require.NoError(t, err)
    require.Equal(t, "two", string(got))

    require.ErrorIs(t, cli.SendBytes(make([]byte, maxDatagram+1)), transport.ErrFrameTooLarge)

    require.NoError(t, srv.Close())
    _, err = srv.RecvBytes()
    require.Error(t, err)
}
