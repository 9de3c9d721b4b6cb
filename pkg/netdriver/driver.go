// Package netdriver is the network context. One goroutine ticks, polls the
// service adapter for commands and turns session activity into bridge events.
// Sessions are read by their own goroutines, which only feed the driver's
// inbox.
package netdriver

import (
    "context"
    "crypto/ed25519"
    "errors"
    "fmt"
    "net"
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/handshake"
    "github.com/cryptape/cita-p2p/pkg/observability"
    "github.com/cryptape/cita-p2p/pkg/peers"
    "github.com/cryptape/cita-p2p/pkg/service"
    "github.com/cryptape/cita-p2p/pkg/transport"
)

// ErrUnknownPeer is logged when a command names a connection that is gone.
var ErrUnknownPeer = errors.New("netdriver: unknown peer")

const inboxSize = 256

// Options configures a Driver.
type Options struct {
    NodeName  string
    Key       ed25519.PrivateKey
    Protocols []handshake.Protocol
    // Advertise replaces the bound listen address in hellos when set.
    Advertise string

    TickInterval time.Duration
    HelloTimeout time.Duration
    DialTimeout  time.Duration
    SendBuffer   int
}

type (
    sessionOpened struct {
        sess     transport.Session
        endpoint bridge.Endpoint
        addr     string
    }
    dialFailed struct {
        addr string
        err  error
    }
    frameIn struct {
        peer bridge.PeerIndex
        f    frame
        size int
    }
    sessionLost struct {
        peer bridge.PeerIndex
        err  error
    }
    helloExpired struct{ peer bridge.PeerIndex }
)

// Driver owns every listener and session of the node.
type Driver struct {
    tr      transport.Transport
    adapter *service.Adapter
    opts    Options
    peers   *peers.Store
    metrics *observability.Metrics
    codec   frameCodec

    conns *transport.Manager[*conn]
    inbox chan any
    quit  chan struct{}
    wg    sync.WaitGroup

    mu         sync.Mutex
    listeners  []transport.Listener
    advertised string

    // driver goroutine only
    commandsClosed bool
}

func New(tr transport.Transport, adapter *service.Adapter, store *peers.Store, opts Options, m *observability.Metrics) (*Driver, error) {
    if len(opts.Key) != ed25519.PrivateKeySize {
        return nil, errors.New("netdriver: missing ed25519 key")
    }
    if opts.TickInterval <= 0 {
        opts.TickInterval = 20 * time.Millisecond
    }
    if opts.HelloTimeout <= 0 {
        opts.HelloTimeout = 5 * time.Second
    }
    if opts.DialTimeout <= 0 {
        opts.DialTimeout = 10 * time.Second
    }
    fc, err := newFrameCodec()
    if err != nil {
        return nil, err
    }
    return &Driver{
        tr:         tr,
        adapter:    adapter,
        opts:       opts,
        peers:      store,
        metrics:    m,
        codec:      fc,
        conns:      transport.NewManager[*conn](),
        inbox:      make(chan any, inboxSize),
        quit:       make(chan struct{}),
        advertised: opts.Advertise,
    }, nil
}

// Advertised returns the address sent to peers, empty until something listens
// or Options.Advertise is set.
func (d *Driver) Advertised() string {
    d.mu.Lock()
    defer d.mu.Unlock()
    return d.advertised
}

// Listen binds addr and accepts sessions on it until Run returns. It may be
// called before Run; the bound address is returned.
func (d *Driver) Listen(ctx context.Context, addr string) (string, error) {
    l, err := d.tr.Listen(ctx, addr)
    if err != nil {
        return "", fmt.Errorf("listen %s %s: %w", d.tr.Kind(), addr, err)
    }
    bound := l.Addr().String()
    d.mu.Lock()
    d.listeners = append(d.listeners, l)
    if d.advertised == "" {
        d.advertised = advertiseAddr(l.Addr())
    }
    d.mu.Unlock()
    zap.L().Info("listening", zap.String("transport", d.tr.Kind().String()), zap.String("addr", bound))

    d.wg.Add(1)
    go func() {
        defer d.wg.Done()
        for {
            s, err := l.Accept(ctx)
            if err != nil {
                return
            }
            if !d.push(sessionOpened{sess: s, endpoint: bridge.Listener, addr: s.RemoteAddr().String()}) {
                _ = s.Close()
                return
            }
        }
    }()
    return bound, nil
}

// Run ticks until ctx is done or the dispatcher is gone. Everything the driver
// opened is closed on return.
func (d *Driver) Run(ctx context.Context) error {
    ctx, cancel := context.WithCancel(ctx)
    defer d.shutdown(cancel)

    ticker := time.NewTicker(d.opts.TickInterval)
    defer ticker.Stop()
    for {
        var err error
        select {
        case <-ctx.Done():
            return nil
        case it := <-d.inbox:
            err = d.handle(it)
        case <-ticker.C:
            err = d.tick(ctx)
        }
        if err != nil {
            zap.L().Error("network driver stopping", zap.Error(err))
            return err
        }
    }
}

func (d *Driver) shutdown(cancel context.CancelFunc) {
    cancel()
    close(d.quit)
    d.mu.Lock()
    ls := d.listeners
    d.listeners = nil
    d.mu.Unlock()
    for _, l := range ls {
        _ = l.Close()
    }
    if err := d.conns.CloseAll(); err != nil {
        zap.L().Debug("closing sessions", zap.Error(err))
    }
    d.wg.Wait()
    for {
        select {
        case it := <-d.inbox:
            if v, ok := it.(sessionOpened); ok {
                _ = v.sess.Close()
            }
        default:
            d.metrics.Connections(0)
            return
        }
    }
}

// push hands an item to the driver goroutine; false once the driver stopped.
func (d *Driver) push(it any) bool {
    select {
    case d.inbox <- it:
        return true
    case <-d.quit:
        return false
    }
}

func (d *Driver) tick(ctx context.Context) error {
    for !d.commandsClosed {
        r := d.adapter.Poll()
        if r == service.Closed {
            zap.L().Info("command stream closed, no further commands will be taken")
            d.commandsClosed = true
        }
        if r != service.Ready {
            break
        }
    }

    for addr, ok := d.adapter.NextListen(); ok; addr, ok = d.adapter.NextListen() {
        if _, err := d.Listen(ctx, addr); err != nil {
            zap.L().Warn("listen failed", zap.Error(err))
        }
    }
    for addr, ok := d.adapter.NextDial(); ok; addr, ok = d.adapter.NextDial() {
        d.dial(ctx, addr)
    }
    for p, ok := d.adapter.NextDisconnect(); ok; p, ok = d.adapter.NextDisconnect() {
        c, found := d.conns.Get(uint64(p))
        if !found {
            zap.L().Warn("disconnect ignored", zap.Uint64("peer", uint64(p)), zap.Error(ErrUnknownPeer))
            continue
        }
        zap.L().Info("disconnecting", zap.Uint64("peer", uint64(p)))
        if err := d.teardown(c, true); err != nil {
            return err
        }
    }
    for _, msg := range d.adapter.DrainOutgoing() {
        d.send(msg)
    }
    return nil
}

func (d *Driver) dial(ctx context.Context, addr string) {
    zap.L().Info("dialing", zap.String("addr", addr))
    d.wg.Add(1)
    go func() {
        defer d.wg.Done()
        dctx, cancel := context.WithTimeout(ctx, d.opts.DialTimeout)
        defer cancel()
        s, err := d.tr.Dial(dctx, addr)
        if err != nil {
            d.push(dialFailed{addr: addr, err: err})
            return
        }
        if !d.push(sessionOpened{sess: s, endpoint: bridge.Dialer, addr: addr}) {
            _ = s.Close()
        }
    }()
}

func (d *Driver) send(msg bridge.Message) {
    b, err := d.codec.encode(frame{Kind: frameData, Protocol: uint32(msg.Protocol), Payload: msg.Payload})
    if err != nil {
        zap.L().Warn("encode frame", zap.Error(err))
        return
    }
    targets := msg.Targets
    if len(targets) == 0 {
        for _, id := range d.conns.IDs() {
            targets = append(targets, bridge.PeerIndex(id))
        }
    }
    for _, p := range targets {
        c, ok := d.conns.Get(uint64(p))
        if !ok {
            zap.L().Debug("send skipped", zap.Uint64("peer", uint64(p)), zap.Error(ErrUnknownPeer))
            continue
        }
        if _, open := c.protocol(uint32(msg.Protocol)); !open {
            zap.L().Debug("send skipped, protocol not open", zap.Uint64("peer", uint64(p)), zap.Uint32("protocol", uint32(msg.Protocol)))
            continue
        }
        if !c.enqueue(b) {
            d.metrics.Dropped("send")
            zap.L().Warn("send buffer full, frame dropped", zap.Uint64("peer", uint64(p)))
        }
    }
}

func (d *Driver) handle(it any) error {
    switch v := it.(type) {
    case sessionOpened:
        d.opened(v)
    case dialFailed:
        zap.L().Warn("dial failed", zap.String("addr", v.addr), zap.Error(v.err))
    case frameIn:
        return d.onFrame(v)
    case sessionLost:
        c, ok := d.conns.Get(uint64(v.peer))
        if !ok {
            return nil
        }
        zap.L().Info("session lost", zap.Uint64("peer", uint64(v.peer)), zap.Error(v.err))
        return d.teardown(c, false)
    case helloExpired:
        c, ok := d.conns.Get(uint64(v.peer))
        if !ok || c.helloDone {
            return nil
        }
        zap.L().Warn("hello timeout", zap.Uint64("peer", uint64(v.peer)), zap.Duration("after", d.opts.HelloTimeout))
        return d.teardown(c, false)
    default:
        zap.L().Debug("inbox item ignored", zap.String("type", fmt.Sprintf("%T", it)))
    }
    return nil
}

func (d *Driver) opened(v sessionOpened) {
    id := d.conns.Reserve()
    peer := bridge.PeerIndex(id)
    c := newConn(peer, v.sess, v.endpoint, d.opts.SendBuffer)

    h, err := handshake.BuildHello(d.opts.NodeName, d.Advertised(), d.opts.Protocols, d.opts.Key)
    if err == nil {
        var b []byte
        if b, err = d.codec.encodeHello(h); err == nil {
            c.enqueue(b)
        }
    }
    if err != nil {
        zap.L().Error("build hello", zap.Error(err))
        _ = c.Close()
        return
    }

    d.conns.Put(id, c)
    d.peers.Connected(peer, v.addr, v.endpoint)
    d.metrics.Connections(d.conns.Len())
    zap.L().Info("session opened",
        zap.Uint64("peer", id),
        zap.Stringer("endpoint", v.endpoint),
        zap.String("addr", v.addr),
        zap.String("transport", v.sess.Kind().String()))

    c.helloTimer = time.AfterFunc(d.opts.HelloTimeout, func() { d.push(helloExpired{peer: peer}) })

    d.wg.Add(2)
    go func() {
        defer d.wg.Done()
        c.writeLoop(func(n int) {
            d.metrics.Frame("out", n)
            d.peers.RecordOut(peer, n)
        })
    }()
    go func() {
        defer d.wg.Done()
        d.readLoop(c)
    }()
}

func (d *Driver) readLoop(c *conn) {
    for {
        b, err := c.sess.RecvBytes()
        if err != nil {
            d.push(sessionLost{peer: c.peer, err: err})
            return
        }
        f, err := d.codec.decode(b)
        if err != nil {
            d.push(sessionLost{peer: c.peer, err: err})
            return
        }
        if !d.push(frameIn{peer: c.peer, f: f, size: len(b)}) {
            return
        }
    }
}

func (d *Driver) onFrame(in frameIn) error {
    c, ok := d.conns.Get(uint64(in.peer))
    if !ok {
        return nil
    }
    d.metrics.Frame("in", in.size)
    d.peers.RecordIn(in.peer, in.size)

    switch in.f.Kind {
    case frameHello:
        if c.helloDone {
            zap.L().Warn("duplicate hello", zap.Uint64("peer", uint64(in.peer)))
            return d.teardown(c, true)
        }
        return d.onHello(c, in.f)
    case frameData:
        if !c.helloDone {
            zap.L().Warn("data before hello", zap.Uint64("peer", uint64(in.peer)))
            return d.teardown(c, false)
        }
        if _, open := c.protocol(in.f.Protocol); !open {
            zap.L().Debug("data for unopened protocol", zap.Uint64("peer", uint64(in.peer)), zap.Uint32("protocol", in.f.Protocol))
            return nil
        }
        return d.adapter.EmitEvent(bridge.CustomMessage{
            Peer:     in.peer,
            Protocol: bridge.ProtocolID(in.f.Protocol),
            Payload:  in.f.Payload,
        })
    case frameClose:
        zap.L().Info("peer closed session", zap.Uint64("peer", uint64(in.peer)))
        return d.teardown(c, false)
    }
    return nil
}

func (d *Driver) onHello(c *conn, f frame) error {
    h, err := d.codec.decodeHello(f)
    if err == nil {
        c.nodeID, err = handshake.VerifyHello(h, 0)
    }
    if err != nil {
        zap.L().Warn("hello rejected", zap.Uint64("peer", uint64(c.peer)), zap.Error(err))
        return d.teardown(c, false)
    }
    c.helloTimer.Stop()
    c.helloDone = true
    c.open = handshake.Shared(d.opts.Protocols, h.Protocols)
    d.peers.Verified(c.peer, c.nodeID, h.NodeName, h.ListenAddr)
    zap.L().Info("hello verified",
        zap.Uint64("peer", uint64(c.peer)),
        zap.String("id", c.nodeID),
        zap.String("name", h.NodeName),
        zap.String("listen", h.ListenAddr))

    err = d.adapter.EmitEvent(bridge.NodeInfo{
        Peer:          c.peer,
        Endpoint:      c.endpoint,
        ListenAddress: h.ListenAddr,
        NodeName:      h.NodeName,
        NodeID:        c.nodeID,
    })
    if err != nil {
        return err
    }
    for _, p := range c.open {
        err := d.adapter.EmitEvent(bridge.CustomProtocolOpen{
            Peer:     c.peer,
            Protocol: bridge.ProtocolID(p.ID),
            Version:  p.Version,
            Endpoint: c.endpoint,
        })
        if err != nil {
            return err
        }
    }
    return nil
}

// teardown forgets c and closes it, optionally telling the remote side first.
// Events are only emitted for connections whose hello completed.
func (d *Driver) teardown(c *conn, notify bool) error {
    if _, ok := d.conns.Remove(uint64(c.peer)); !ok {
        return nil
    }
    var last []byte
    if notify {
        if b, err := d.codec.encode(frame{Kind: frameClose}); err == nil {
            last = b
        }
    }
    c.shutdown(last)
    d.peers.Remove(c.peer)
    d.metrics.Connections(d.conns.Len())
    if !c.helloDone {
        return nil
    }
    for _, p := range c.open {
        if err := d.adapter.EmitEvent(bridge.CustomProtocolClosed{Peer: c.peer, Protocol: bridge.ProtocolID(p.ID)}); err != nil {
            return err
        }
    }
    return d.adapter.EmitEvent(bridge.NodeDisconnected{Peer: c.peer})
}

// advertiseAddr turns a bound address into one peers can dial: unspecified
// hosts become loopback.
func advertiseAddr(a net.Addr) string {
    s := a.String()
    host, port, err := net.SplitHostPort(s)
    if err != nil {
        return s
    }
    if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
        if ip.To4() != nil {
            return net.JoinHostPort("127.0.0.1", port)
        }
        return net.JoinHostPort("::1", port)
    }
    return s
}
