package mem

import (
    "context"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

func TestHubIsolation(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    a := New(NewHub(), transport.Options{})
    b := New(NewHub(), transport.Options{})
    l, err := a.Listen(ctx, "node-a")
    require.NoError(t, err)
    defer l.Close()

    _, err = b.Dial(ctx, "node-a")
    require.ErrorIs(t, err, ErrNoListener)

    _, err = a.Listen(ctx, "node-a")
    require.ErrorIs(t, err, ErrAddrInUse)
}

func TestGeneratedAddressAndExchange(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()

    hub := NewHub()
    tr := New(hub, transport.Options{})
    l, err := tr.Listen(ctx, "127.0.0.1:0")
    require.NoError(t, err)
    require.Equal(t, "mem:1", l.Addr().String())

    cli, err := New(hub, transport.Options{}).Dial(ctx, l.Addr().String())
    require.NoError(t, err)
    srv, err := l.Accept(ctx)
    require.NoError(t, err)

    go func() { _ = cli.SendBytes([]byte("over the pipe")) }()
    got, err := srv.RecvBytes()
    require.NoError(t, err)
    require.Equal(t, "over the pipe", string(got))

    require.NoError(t, l.Close())
    _, err = tr.Dial(ctx, "mem:1")
    require.ErrorIs(t, err, ErrNoListener, "closed listener leaves the hub")
    require.NoError(t, cli.Close())
    require.NoError(t, srv.Close())
}
