package netdriver

import (
    "errors"
    "fmt"

    "github.com/cryptape/cita-p2p/pkg/transport"
    "github.com/cryptape/cita-p2p/pkg/transport/mem"
    "github.com/cryptape/cita-p2p/pkg/transport/quic"
    "github.com/cryptape/cita-p2p/pkg/transport/tcp"
    "github.com/cryptape/cita-p2p/pkg/transport/udp"
    "github.com/cryptape/cita-p2p/pkg/transport/winpipe"
)

var ErrUnknownKind = errors.New("netdriver: unknown transport kind")

// NewTransport builds the transport named in net.transport. hub is only used
// by the mem transport; nil selects the process-wide hub.
func NewTransport(kind string, opts transport.Options, hub *mem.Hub) (transport.Transport, error) {
    k, err := transport.ParseKind(kind)
    if err != nil {
        return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
    }
    switch k {
    case transport.KindTCP:
        return tcp.New(opts), nil
    case transport.KindQUIC:
        q, err := quic.New(opts)
        if err != nil {
            return nil, err
        }
        return q, nil
    case transport.KindUDP:
        return udp.New(opts), nil
    case transport.KindMem:
        return mem.New(hub, opts), nil
    case transport.KindWinPipe:
        return winpipe.New(opts)
    default:
        return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
    }
}
