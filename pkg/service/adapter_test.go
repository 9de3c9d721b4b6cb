package service

import (
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/config"
)

func newAdapter(t *testing.T, order config.QueueOrder) (*Adapter, *bridge.Bridge) {
    t.Helper()
    b := bridge.New(bridge.Options{})
    return New(b.Commands, b.Events, order, nil), b
}

func pollAll(a *Adapter) int {
    n := 0
    for a.Poll() == Ready {
        n++
    }
    return n
}

func TestPollRoutesCommands(t *testing.T) {
    a, b := newAdapter(t, config.OrderFIFO)
    require.Equal(t, Pending, a.Poll())

    require.NoError(t, b.Commands.Send(bridge.Dial{Address: "d1"}))
    require.NoError(t, b.Commands.Send(bridge.Listen{Address: "l1"}))
    require.NoError(t, b.Commands.Send(bridge.Disconnect{Peer: 3}))
    require.NoError(t, b.Commands.Send(bridge.SendMessages{Messages: []bridge.Message{{Payload: []byte("x")}}}))
    require.Equal(t, 4, pollAll(a))

    d, l, dc, m := a.Pending()
    require.Equal(t, [4]int{1, 1, 1, 1}, [4]int{d, l, dc, m})
}

func TestPollReportsClosed(t *testing.T) {
    a, b := newAdapter(t, config.OrderFIFO)
    require.NoError(t, b.Commands.Send(bridge.Dial{Address: "d1"}))
    b.Commands.Close()
    require.Equal(t, Ready, a.Poll())
    require.Equal(t, Closed, a.Poll())
    require.Equal(t, Closed, a.Poll())
}

func TestOutgoingDrainIsFIFO(t *testing.T) {
    for _, order := range []config.QueueOrder{config.OrderFIFO, config.OrderLIFO} {
        a, b := newAdapter(t, order)
        var want []string
        for i := 0; i < 10; i++ {
            p := string(rune('a' + i))
            want = append(want, p)
            require.NoError(t, b.Commands.Send(bridge.SendMessages{Messages: []bridge.Message{{Payload: []byte(p)}}}))
            // control commands in between must not disturb message order
            require.NoError(t, b.Commands.Send(bridge.Dial{Address: p}))
        }
        pollAll(a)

        msgs := a.DrainOutgoing()
        var got []string
        for _, m := range msgs {
            got = append(got, string(m.Payload))
        }
        require.Equal(t, want, got, "order %s", order)
        require.Empty(t, a.DrainOutgoing())
    }
}

func TestMultiMessageCommandKeepsInnerOrder(t *testing.T) {
    a, b := newAdapter(t, config.OrderFIFO)
    require.NoError(t, b.Commands.Send(bridge.SendMessages{Messages: []bridge.Message{{Payload: []byte("1")}, {Payload: []byte("2")}}}))
    require.NoError(t, b.Commands.Send(bridge.SendMessages{Messages: []bridge.Message{{Payload: []byte("3")}}}))
    pollAll(a)
    msgs := a.DrainOutgoing()
    require.Len(t, msgs, 3)
    require.Equal(t, "123", string(msgs[0].Payload)+string(msgs[1].Payload)+string(msgs[2].Payload))
}

func TestControlQueueOrder(t *testing.T) {
    cases := []struct {
        order config.QueueOrder
        want  []string
    }{
        {config.OrderFIFO, []string{"a", "b", "c"}},
        {config.OrderLIFO, []string{"c", "b", "a"}},
    }
    for _, tc := range cases {
        a, b := newAdapter(t, tc.order)
        for _, addr := range []string{"a", "b", "c"} {
            require.NoError(t, b.Commands.Send(bridge.Dial{Address: addr}))
            require.NoError(t, b.Commands.Send(bridge.Listen{Address: addr}))
        }
        pollAll(a)
        var dials, listens []string
        for {
            d, ok := a.NextDial()
            if !ok {
                break
            }
            dials = append(dials, d)
        }
        for {
            l, ok := a.NextListen()
            if !ok {
                break
            }
            listens = append(listens, l)
        }
        require.Equal(t, tc.want, dials)
        require.Equal(t, tc.want, listens)
    }
}

func TestNextDisconnectEmpty(t *testing.T) {
    a, _ := newAdapter(t, config.OrderFIFO)
    _, ok := a.NextDisconnect()
    require.False(t, ok)
}

func TestEmitEvent(t *testing.T) {
    a, b := newAdapter(t, config.OrderFIFO)
    require.NoError(t, a.EmitEvent(bridge.NodeDisconnected{Peer: 1}))
    ev, err := b.Events.TryRecv()
    require.NoError(t, err)
    require.Equal(t, bridge.NodeDisconnected{Peer: 1}, ev)

    b.Events.Close()
    require.ErrorIs(t, a.EmitEvent(bridge.NodeDisconnected{Peer: 2}), ErrDispatcherGone)
}

func TestEmitEventDropsWhenFull(t *testing.T) {
    b := bridge.New(bridge.Options{EventCapacity: 1})
    a := New(b.Commands, b.Events, config.OrderFIFO, nil)
    require.NoError(t, a.EmitEvent(bridge.NodeDisconnected{Peer: 1}))
    require.NoError(t, a.EmitEvent(bridge.NodeDisconnected{Peer: 2}))
    require.Equal(t, 1, b.Events.Len())
}
