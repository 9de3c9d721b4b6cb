package gossip

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/bridge"
)

// Dispatcher is the dispatch context: it takes events off the bridge one at a
// time and hands each to the handler before taking the next.
type Dispatcher struct {
    events  bridge.EventReceiver
    handler *Handler
}

func NewDispatcher(events bridge.EventReceiver, h *Handler) *Dispatcher {
    return &Dispatcher{events: events, handler: h}
}

// Run blocks until the event queue is closed and drained or ctx is done.
// On return the event queue is closed so the network context learns that
// nobody consumes events anymore.
func (d *Dispatcher) Run(ctx context.Context) error {
    defer d.events.Close()
    for {
        ev, err := d.events.Recv(ctx)
        if err != nil {
            if errors.Is(err, bridge.ErrClosed) {
                zap.L().Info("event stream closed, dispatcher stopping")
                return nil
            }
            if ctx.Err() != nil {
                return nil
            }
            return err
        }
        d.handler.Handle(ev)
    }
}
