// Package service implements the adapter the network context polls once per
// tick: it pulls commands off the bridge into local buffers and pushes events
// back across it.
package service

import (
    "errors"
    "fmt"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/config"
    "github.com/cryptape/cita-p2p/pkg/observability"
)

// ErrDispatcherGone is returned by EmitEvent when the event queue no longer
// has a consumer. The network context must stop when it sees it.
var ErrDispatcherGone = errors.New("service: dispatcher is gone")

// PollResult is the outcome of one Poll call.
type PollResult int

const (
    // Ready means a command was routed and more may be waiting.
    Ready PollResult = iota
    // Pending means the command queue is empty for now.
    Pending
    // Closed means the command queue was closed and drained.
    Closed
)

func (r PollResult) String() string {
    switch r {
    case Ready:
        return "ready"
    case Pending:
        return "pending"
    case Closed:
        return "closed"
    default:
        return fmt.Sprintf("poll(%d)", int(r))
    }
}

// Adapter buffers commands for the network context. All methods except the
// bridge endpoints it wraps must be called from the network goroutine only.
type Adapter struct {
    commands bridge.CommandReceiver
    events   bridge.EventSender
    order    config.QueueOrder
    metrics  *observability.Metrics

    dials       []string
    listens     []string
    disconnects []bridge.PeerIndex
    outgoing    []bridge.Message
}

// New builds an adapter over the two bridge endpoints. order selects how
// dial/listen/disconnect buffers are popped; the outgoing message buffer is
// always FIFO.
func New(commands bridge.CommandReceiver, events bridge.EventSender, order config.QueueOrder, m *observability.Metrics) *Adapter {
    if order == "" {
        order = config.OrderFIFO
    }
    return &Adapter{commands: commands, events: events, order: order, metrics: m}
}

// Poll tries to receive one command without blocking and routes it.
func (a *Adapter) Poll() PollResult {
    cmd, err := a.commands.TryRecv()
    switch {
    case errors.Is(err, bridge.ErrEmpty):
        return Pending
    case errors.Is(err, bridge.ErrClosed):
        return Closed
    case err != nil:
        zap.L().Warn("command receive failed", zap.Error(err))
        return Pending
    }

    switch c := cmd.(type) {
    case bridge.Dial:
        a.dials = append(a.dials, c.Address)
    case bridge.Listen:
        a.listens = append(a.listens, c.Address)
    case bridge.Disconnect:
        a.disconnects = append(a.disconnects, c.Peer)
    case bridge.SendMessages:
        a.outgoing = append(a.outgoing, c.Messages...)
    default:
        zap.L().Warn("unknown command ignored", zap.String("type", fmt.Sprintf("%T", cmd)))
    }
    a.metrics.Command(bridge.CommandName(cmd))
    return Ready
}

// NextDial pops one pending dial address.
func (a *Adapter) NextDial() (string, bool) { return pop(&a.dials, a.order) }

// NextListen pops one pending listen address.
func (a *Adapter) NextListen() (string, bool) { return pop(&a.listens, a.order) }

// NextDisconnect pops one pending disconnect.
func (a *Adapter) NextDisconnect() (bridge.PeerIndex, bool) { return pop(&a.disconnects, a.order) }

// DrainOutgoing returns every buffered message, oldest first, and empties
// the buffer.
func (a *Adapter) DrainOutgoing() []bridge.Message {
    out := a.outgoing
    a.outgoing = nil
    return out
}

// Pending reports buffer sizes.
func (a *Adapter) Pending() (dials, listens, disconnects, messages int) {
    return len(a.dials), len(a.listens), len(a.disconnects), len(a.outgoing)
}

// EmitEvent forwards ev to the dispatcher. A full bounded queue drops the
// event and returns nil; a closed queue yields ErrDispatcherGone.
func (a *Adapter) EmitEvent(ev bridge.Event) error {
    err := a.events.Send(ev)
    switch {
    case err == nil:
        return nil
    case errors.Is(err, bridge.ErrFull):
        a.metrics.Dropped("event")
        zap.L().Warn("event queue full, event dropped", zap.String("event", bridge.EventName(ev)))
        return nil
    case errors.Is(err, bridge.ErrClosed):
        return ErrDispatcherGone
    default:
        return fmt.Errorf("emit %s: %w", bridge.EventName(ev), err)
    }
}

func pop[T any](buf *[]T, order config.QueueOrder) (T, bool) {
    var zero T
    s := *buf
    if len(s) == 0 {
        return zero, false
    }
    if order == config.OrderLIFO {
        v := s[len(s)-1]
        *buf = s[:len(s)-1]
        return v, true
    }
    v := s[0]
    s[0] = zero
    *buf = s[1:]
    return v, true
}
