// Package node wires the network context and the dispatch context together
// and runs them until the context is cancelled.
package node

import (
    "context"
    "crypto/ed25519"
    "errors"
    "fmt"
    "sync"

    "github.com/google/uuid"
    "go.uber.org/zap"
    "golang.org/x/sync/errgroup"

    "github.com/cryptape/cita-p2p/pkg/addrtable"
    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/config"
    "github.com/cryptape/cita-p2p/pkg/gossip"
    "github.com/cryptape/cita-p2p/pkg/handshake"
    "github.com/cryptape/cita-p2p/pkg/identity"
    "github.com/cryptape/cita-p2p/pkg/netdriver"
    "github.com/cryptape/cita-p2p/pkg/observability"
    "github.com/cryptape/cita-p2p/pkg/peers"
    "github.com/cryptape/cita-p2p/pkg/service"
    "github.com/cryptape/cita-p2p/pkg/transport"
)

// GossipVersion is the version of the address gossip protocol this node speaks.
const GossipVersion uint8 = 1

type options struct {
    tr      transport.Transport
    onTable func(map[string]int)
    metrics *observability.Metrics
}

type Option func(*options)

// WithTransport replaces the transport named in net.transport.
func WithTransport(tr transport.Transport) Option { return func(o *options) { o.tr = tr } }

// WithTableObserver is called on the dispatcher goroutine with a copy of the
// address table every time it changes.
func WithTableObserver(fn func(map[string]int)) Option { return func(o *options) { o.onTable = fn } }

// WithMetrics records into m instead of a private registry.
func WithMetrics(m *observability.Metrics) Option { return func(o *options) { o.metrics = m } }

type Node struct {
    cfg     *config.Config
    opts    options
    key     ed25519.PrivateKey
    id      string
    name    string
    bridge  *bridge.Bridge
    driver  *netdriver.Driver
    peers   *peers.Store
    metrics *observability.Metrics

    startOnce  sync.Once
    startErr   error
    addr       string
    dispatcher *gossip.Dispatcher
}

func New(cfg *config.Config, opts ...Option) (*Node, error) {
    var o options
    for _, fn := range opts {
        fn(&o)
    }
    key, id, err := identity.LoadOrGenEd25519(cfg.Identity)
    if err != nil {
        return nil, err
    }
    name := cfg.NodeName
    if name == "" {
        name = "node-" + uuid.NewString()[:8]
    }
    m := o.metrics
    if m == nil {
        m = observability.NewMetrics()
    }

    tr := o.tr
    if tr == nil {
        tr, err = netdriver.NewTransport(cfg.Net.Transport, transport.Options{MaxFrameBytes: cfg.Net.MaxFrameBytes}, nil)
        if err != nil {
            return nil, err
        }
    }

    b := bridge.New(bridge.Options{CommandCapacity: cfg.Bridge.CommandCapacity, EventCapacity: cfg.Bridge.EventCapacity})
    m.RegisterQueueDepth("commands", b.Commands.Len)
    m.RegisterQueueDepth("events", b.Events.Len)

    store := peers.NewStore(cfg.Peers)
    adapter := service.New(b.Commands, b.Events, cfg.Service.ControlOrder, m)
    drv, err := netdriver.New(tr, adapter, store, netdriver.Options{
        NodeName:     name,
        Key:          key,
        Protocols:    []handshake.Protocol{{ID: cfg.Gossip.ProtocolID, Version: GossipVersion}},
        Advertise:    cfg.Net.Advertise,
        TickInterval: cfg.Net.TickInterval(),
        HelloTimeout: cfg.Net.HelloTimeout(),
        DialTimeout:  cfg.Net.DialTimeout(),
        SendBuffer:   cfg.Net.SendBuffer,
    }, m)
    if err != nil {
        return nil, err
    }

    return &Node{
        cfg:     cfg,
        opts:    o,
        key:     key,
        id:      id,
        name:    name,
        bridge:  b,
        driver:  drv,
        peers:   store,
        metrics: m,
    }, nil
}

func (n *Node) ID() string                      { return n.id }
func (n *Node) Name() string                    { return n.name }
func (n *Node) Peers() []peers.Meta             { return n.peers.List() }
func (n *Node) Metrics() *observability.Metrics { return n.metrics }

// Addr is the advertised address; empty before Start.
func (n *Node) Addr() string { return n.addr }

// Start binds the listen address, seeds the address table and queues the
// configured dials. Run calls it when it has not been called yet.
func (n *Node) Start(ctx context.Context) error {
    n.startOnce.Do(func() { n.startErr = n.start(ctx) })
    return n.startErr
}

func (n *Node) start(ctx context.Context) error {
    bound, err := n.driver.Listen(ctx, n.cfg.Net.Listen)
    if err != nil {
        return err
    }
    n.addr = n.driver.Advertised()

    table, err := addrtable.New(addrtable.Options{MaxEntries: n.cfg.Table.MaxEntries})
    if err != nil {
        return err
    }
    table.Seed(n.addr)
    n.metrics.TableSize(table.Len())

    ec, err := gossip.NewEnvelopeCodec(n.cfg.Gossip.Codec)
    if err != nil {
        return fmt.Errorf("gossip.codec: %w", err)
    }
    h := gossip.NewHandler(table, n.bridge.Commands, ec, gossip.Options{
        Protocol:       bridge.ProtocolID(n.cfg.Gossip.ProtocolID),
        LocalAddress:   n.addr,
        Announce:       n.cfg.Gossip.Announce,
        Broadcast:      n.cfg.Gossip.Broadcast,
        MergeReturned:  n.cfg.Gossip.MergeReturned,
        DialDiscovered: n.cfg.Gossip.DialDiscovered,
        OnTableChange:  n.opts.onTable,
    }, n.metrics)
    n.dispatcher = gossip.NewDispatcher(n.bridge.Events, h)

    for _, addr := range n.cfg.Net.Dial {
        if err := n.Dial(addr); err != nil {
            return err
        }
    }
    zap.L().Info("node started",
        zap.String("name", n.name),
        zap.String("id", n.id),
        zap.String("listen", bound),
        zap.String("advertise", n.addr))
    return nil
}

// Dial asks the network context to connect to addr on its next tick.
func (n *Node) Dial(addr string) error {
    if err := n.bridge.Commands.Send(bridge.Dial{Address: addr}); err != nil {
        return fmt.Errorf("dial %s: %w", addr, err)
    }
    return nil
}

// Run drives both contexts until ctx is done or one of them fails.
func (n *Node) Run(ctx context.Context) error {
    if err := n.Start(ctx); err != nil {
        return err
    }
    defer n.bridge.Close()

    g, gctx := errgroup.WithContext(ctx)
    g.Go(func() error { return n.driver.Run(gctx) })
    g.Go(func() error {
        err := n.dispatcher.Run(gctx)
        // nobody will send commands anymore
        n.bridge.Commands.Close()
        return err
    })
    if addr := n.cfg.Metrics.Listen; addr != "" {
        g.Go(func() error { return n.metrics.Serve(gctx, addr) })
    }
    err := g.Wait()
    if ctx.Err() != nil || errors.Is(err, context.Canceled) {
        // a shutdown race can surface as a lost dispatcher
        return nil
    }
    return err
}
