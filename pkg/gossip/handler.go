package gossip

import (
    "errors"
    "fmt"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/addrtable"
    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/config"
    "github.com/cryptape/cita-p2p/pkg/observability"
)

// Options configures the protocol handler.
type Options struct {
    Protocol bridge.ProtocolID
    // LocalAddress is the externally reachable address shared with peers.
    LocalAddress   string
    Announce       config.AnnouncePolicy
    Broadcast      bool
    MergeReturned  bool
    DialDiscovered bool
    // OnTableChange, when set, receives a copy of the table after every
    // change. It runs on the dispatcher goroutine.
    OnTableChange func(map[string]int)
}

// Handler runs the gossip state machine. It owns the address table and must
// only be used from one goroutine.
type Handler struct {
    opts    Options
    table   *addrtable.Table
    codec   EnvelopeCodec
    out     bridge.CommandSender
    metrics *observability.Metrics

    // listen addresses of connected peers, from NodeInfo
    connected map[bridge.PeerIndex]string
}

// NewHandler builds a handler. table must already be seeded.
func NewHandler(table *addrtable.Table, out bridge.CommandSender, c EnvelopeCodec, opts Options, m *observability.Metrics) *Handler {
    if c == nil {
        c = JSONCodec()
    }
    if opts.Announce == "" {
        opts.Announce = config.AnnounceOutbound
    }
    return &Handler{
        opts:      opts,
        table:     table,
        codec:     c,
        out:       out,
        metrics:   m,
        connected: make(map[bridge.PeerIndex]string),
    }
}

// Table exposes the owned table to code running on the same goroutine.
func (h *Handler) Table() *addrtable.Table { return h.table }

// Handle processes one event to completion. Unknown event kinds are ignored.
func (h *Handler) Handle(ev bridge.Event) {
    h.metrics.Event(bridge.EventName(ev))
    var err error
    switch e := ev.(type) {
    case bridge.CustomProtocolOpen:
        err = h.onProtocolOpen(e)
    case bridge.CustomMessage:
        err = h.onMessage(e)
    case bridge.NodeInfo:
        h.onNodeInfo(e)
    case bridge.NodeDisconnected:
        delete(h.connected, e.Peer)
        zap.L().Debug("peer disconnected", zap.Uint64("peer", uint64(e.Peer)))
    case bridge.CustomProtocolClosed:
        zap.L().Debug("protocol closed", zap.Uint64("peer", uint64(e.Peer)), zap.Uint32("protocol", uint32(e.Protocol)))
    default:
        zap.L().Debug("event ignored", zap.String("type", fmt.Sprintf("%T", ev)))
    }
    if err == nil {
        return
    }
    if IsDecodeError(err) {
        h.metrics.DecodeError()
        zap.L().Warn("dropping malformed gossip message", zap.Error(err))
        return
    }
    zap.L().Warn("gossip handling failed", zap.String("event", bridge.EventName(ev)), zap.Error(err))
}

func (h *Handler) shouldAnnounce(ep bridge.Endpoint) bool {
    switch h.opts.Announce {
    case config.AnnounceAlways:
        return true
    case config.AnnounceNever:
        return false
    default:
        return ep == bridge.Dialer
    }
}

func (h *Handler) onProtocolOpen(e bridge.CustomProtocolOpen) error {
    zap.L().Info("protocol open",
        zap.Uint64("peer", uint64(e.Peer)),
        zap.Uint32("protocol", uint32(e.Protocol)),
        zap.Uint8("version", e.Version),
        zap.Stringer("endpoint", e.Endpoint))
    if e.Protocol != h.opts.Protocol || !h.shouldAnnounce(e.Endpoint) {
        return nil
    }
    return h.send(e.Peer, NewShareAddr(h.opts.LocalAddress))
}

func (h *Handler) onMessage(e bridge.CustomMessage) error {
    if e.Protocol != h.opts.Protocol {
        zap.L().Debug("message for foreign protocol", zap.Uint32("protocol", uint32(e.Protocol)))
        return nil
    }
    if e.Payload == nil {
        zap.L().Debug("message without payload", zap.Uint64("peer", uint64(e.Peer)))
        return nil
    }
    env, err := h.codec.Decode(e.Payload)
    if err != nil {
        return fmt.Errorf("peer %d: %w", e.Peer, err)
    }
    zap.L().Debug("gossip message", zap.Uint64("peer", uint64(e.Peer)), zap.String("mtype", string(env.MType)))

    switch env.MType {
    case ShareAddr:
        return h.onShareAddr(e.Peer, env.Data)
    case ReturnNodeAddrs:
        return h.onReturnNodeAddrs(e.Peer, env.Data)
    default:
        return fmt.Errorf("%w: %w: %q", ErrDecode, ErrUnknownType, string(env.MType))
    }
}

func (h *Handler) onShareAddr(from bridge.PeerIndex, addr string) error {
    if addr == "" {
        return fmt.Errorf("%w: empty address from peer %d", ErrDecode, from)
    }
    if h.table.InsertIfAbsent(addr) {
        zap.L().Info("address learned", zap.Uint64("peer", uint64(from)), zap.String("addr", addr), zap.Int("table", h.table.Len()))
        h.tableChanged()
    }
    s, err := h.table.Serialize()
    if err != nil {
        return err
    }
    return h.send(from, NewReturnNodeAddrs(s))
}

func (h *Handler) onReturnNodeAddrs(from bridge.PeerIndex, data string) error {
    remote, err := addrtable.Deserialize(data)
    if err != nil {
        return fmt.Errorf("%w: peer %d: %w", ErrDecode, from, err)
    }
    zap.L().Info("node addresses received", zap.Uint64("peer", uint64(from)), zap.Strings("addrs", remote.Addresses()))
    if !h.opts.MergeReturned {
        return nil
    }
    added := h.table.Merge(remote)
    if len(added) == 0 {
        return nil
    }
    zap.L().Info("addresses merged", zap.Strings("added", added), zap.Int("table", h.table.Len()))
    h.tableChanged()
    if !h.opts.DialDiscovered {
        return nil
    }
    var errs []error
    for _, addr := range added {
        if h.isConnected(addr) {
            continue
        }
        if err := h.enqueue(bridge.Dial{Address: addr}); err != nil {
            errs = append(errs, err)
        }
    }
    return errors.Join(errs...)
}

func (h *Handler) onNodeInfo(e bridge.NodeInfo) {
    h.connected[e.Peer] = e.ListenAddress
    zap.L().Info("node info",
        zap.Uint64("peer", uint64(e.Peer)),
        zap.String("listen", e.ListenAddress),
        zap.Stringer("endpoint", e.Endpoint),
        zap.String("name", e.NodeName),
        zap.String("id", e.NodeID))
}

func (h *Handler) isConnected(addr string) bool {
    if own, ok := h.table.Own(); ok && own == addr {
        return true
    }
    for _, a := range h.connected {
        if a == addr {
            return true
        }
    }
    return false
}

func (h *Handler) send(peer bridge.PeerIndex, env Envelope) error {
    payload, err := h.codec.Encode(env)
    if err != nil {
        return fmt.Errorf("encode %s: %w", env.MType, err)
    }
    msg := bridge.Message{Protocol: h.opts.Protocol, Payload: payload}
    if !h.opts.Broadcast {
        msg.Targets = []bridge.PeerIndex{peer}
    }
    return h.enqueue(bridge.SendMessages{Messages: []bridge.Message{msg}})
}

func (h *Handler) enqueue(cmd bridge.Command) error {
    err := h.out.Send(cmd)
    if errors.Is(err, bridge.ErrFull) {
        h.metrics.Dropped("command")
    }
    if err != nil {
        return fmt.Errorf("enqueue %s: %w", bridge.CommandName(cmd), err)
    }
    return nil
}

func (h *Handler) tableChanged() {
    h.metrics.TableSize(h.table.Len())
    if h.opts.OnTableChange != nil {
        h.opts.OnTableChange(h.table.Snapshot())
    }
}
