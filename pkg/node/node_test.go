package node

import (
    "context"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "github.com/cryptape/cita-p2p/pkg/config"
    "github.com/cryptape/cita-p2p/pkg/transport"
    "github.com/cryptape/cita-p2p/pkg/transport/mem"
)

type tableWatch struct {
    mu   sync.Mutex
    last map[string]int
}

func (w *tableWatch) set(m map[string]int) {
    w.mu.Lock()
    defer w.mu.Unlock()
    w.last = m
}

func (w *tableWatch) get() map[string]int {
    w.mu.Lock()
    defer w.mu.Unlock()
    return w.last
}

func testConfig(name string) *config.Config {
    cfg := config.Default()
    cfg.NodeName = name
    cfg.Net.Transport = "mem"
    cfg.Net.TickIntervalMS = 5
    return cfg
}

func startNode(t *testing.T, ctx context.Context, hub *mem.Hub, cfg *config.Config) (*Node, *tableWatch, chan error) {
    t.Helper()
    w := &tableWatch{}
    n, err := New(cfg, WithTransport(mem.New(hub, transport.Options{})), WithTableObserver(w.set))
    require.NoError(t, err)
    require.NoError(t, n.Start(ctx))
    done := make(chan error, 1)
    go func() { done <- n.Run(ctx) }()
    return n, w, done
}

func TestTwoNodesExchangeAddresses(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    hub := mem.NewHub()

    a, wa, doneA := startNode(t, ctx, hub, testConfig("a"))
    b, wb, doneB := startNode(t, ctx, hub, testConfig("b"))
    require.NotEqual(t, a.Addr(), b.Addr())

    require.NoError(t, a.Dial(b.Addr()))

    require.Eventually(t, func() bool {
        return len(wb.get()) == 2
    }, 5*time.Second, 10*time.Millisecond, "b learns a's address")
    require.Equal(t, map[string]int{a.Addr(): 0, b.Addr(): 1}, wb.get())

    require.Eventually(t, func() bool {
        return len(wa.get()) == 2
    }, 5*time.Second, 10*time.Millisecond, "a merges b's table")
    require.Equal(t, map[string]int{a.Addr(): 1, b.Addr(): 0}, wa.get())

    require.Len(t, a.Peers(), 1)
    require.Equal(t, "b", a.Peers()[0].NodeName)

    cancel()
    require.NoError(t, <-doneA)
    require.NoError(t, <-doneB)
}

func TestInboundSideDoesNotAnnounce(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    hub := mem.NewHub()

    cfgB := testConfig("b")
    cfgB.Gossip.Announce = config.AnnounceNever
    a, wa, _ := startNode(t, ctx, hub, testConfig("a"))
    b, wb, _ := startNode(t, ctx, hub, cfgB)

    // b dials a but never announces, so a learns nothing and never replies
    require.NoError(t, b.Dial(a.Addr()))
    require.Eventually(t, func() bool { return len(b.Peers()) == 1 && len(a.Peers()) == 1 }, 5*time.Second, 10*time.Millisecond)
    time.Sleep(100 * time.Millisecond)
    require.Nil(t, wa.get())
    require.Nil(t, wb.get())
}

func TestDialDiscoveredFormsMesh(t *testing.T) {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    hub := mem.NewHub()

    cfgC := testConfig("c")
    cfgC.Gossip.DialDiscovered = true
    a, _, _ := startNode(t, ctx, hub, testConfig("a"))
    b, wb, _ := startNode(t, ctx, hub, testConfig("b"))
    c, wc, _ := startNode(t, ctx, hub, cfgC)

    // a -> b makes b know a; c -> b then hands c the table {a, b}
    require.NoError(t, a.Dial(b.Addr()))
    require.Eventually(t, func() bool { return len(wb.get()) == 2 }, 5*time.Second, 10*time.Millisecond)
    require.NoError(t, c.Dial(b.Addr()))

    require.Eventually(t, func() bool { return len(wc.get()) == 3 }, 5*time.Second, 10*time.Millisecond)
    require.Eventually(t, func() bool { return len(c.Peers()) == 2 }, 5*time.Second, 10*time.Millisecond, "c dialed a")
}
