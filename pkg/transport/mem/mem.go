// Package mem is an in-process transport over net.Pipe. Transports sharing a
// Hub can reach each other; it backs the end-to-end tests.
package mem

import (
    "context"
    "errors"
    "fmt"
    "net"
    "strings"
    "sync"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

var (
    ErrAddrInUse  = errors.New("mem: address already in use")
    ErrNoListener = errors.New("mem: no such listener")
)

// Hub is the shared address space.
type Hub struct {
    mu        sync.Mutex
    listeners map[string]*listener
    next      int
}

func NewHub() *Hub { return &Hub{listeners: make(map[string]*listener)} }

// Default is the hub used when none is given.
var Default = NewHub()

type Transport struct {
    hub  *Hub
    opts transport.Options
}

// New returns a transport on hub, or on Default when hub is nil.
func New(hub *Hub, opts transport.Options) *Transport {
    if hub == nil {
        hub = Default
    }
    return &Transport{hub: hub, opts: opts}
}

func (t *Transport) Kind() transport.Kind { return transport.KindMem }

// Listen registers name on the hub. An empty name or one ending in ":0" gets
// a generated address.
func (t *Transport) Listen(ctx context.Context, name string) (transport.Listener, error) {
    h := t.hub
    h.mu.Lock()
    if name == "" || strings.HasSuffix(name, ":0") {
        h.next++
        name = fmt.Sprintf("mem:%d", h.next)
    }
    if _, ok := h.listeners[name]; ok {
        h.mu.Unlock()
        return nil, fmt.Errorf("%w: %s", ErrAddrInUse, name)
    }
    l := &listener{hub: h, name: name, newCh: make(chan transport.Session, 8), closeCh: make(chan struct{})}
    h.listeners[name] = l
    h.mu.Unlock()
    go func() {
        select {
        case <-ctx.Done():
            _ = l.Close()
        case <-l.closeCh:
        }
    }()
    return l, nil
}

func (t *Transport) Dial(ctx context.Context, name string) (transport.Session, error) {
    t.hub.mu.Lock()
    l := t.hub.listeners[name]
    t.hub.mu.Unlock()
    if l == nil {
        return nil, fmt.Errorf("%w: %s", ErrNoListener, name)
    }
    c1, c2 := net.Pipe()
    local := memAddr(fmt.Sprintf("%s/peer", name))
    srv := transport.NewFramed(transport.KindMem, c1, memAddr(name), local, t.opts)
    cli := transport.NewFramed(transport.KindMem, c2, local, memAddr(name), t.opts)
    select {
    case l.newCh <- srv:
        return cli, nil
    case <-l.closeCh:
    case <-ctx.Done():
    }
    _ = srv.Close()
    _ = cli.Close()
    return nil, fmt.Errorf("%w: %s", ErrNoListener, name)
}

type listener struct {
    hub     *Hub
    name    string
    newCh   chan transport.Session
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() net.Addr { return memAddr(l.name) }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("mem listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() {
        close(l.closeCh)
        l.hub.mu.Lock()
        delete(l.hub.listeners, l.name)
        l.hub.mu.Unlock()
    })
    return nil
}

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string  { return string(a) }
