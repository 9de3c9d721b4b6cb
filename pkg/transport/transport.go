package transport

import (
    "context"
    "errors"
    "fmt"
    "net"
    "strings"
)

// ErrFrameTooLarge is returned when a frame exceeds the configured maximum.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// DefaultMaxFrame bounds a single frame when Options leaves it unset.
const DefaultMaxFrame = 1 << 24

// Kind identifies the link type.
type Kind int

const (
    KindUnknown Kind = iota
    KindTCP
    KindQUIC
    KindUDP
    KindWinPipe
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindTCP:
        return "tcp"
    case KindQUIC:
        return "quic"
    case KindUDP:
        return "udp"
    case KindWinPipe:
        return "winpipe"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "tcp":
        return KindTCP, nil
    case "quic":
        return KindQUIC, nil
    case "udp":
        return KindUDP, nil
    case "winpipe", "pipe":
        return KindWinPipe, nil
    case "mem":
        return KindMem, nil
    default:
        return KindUnknown, fmt.Errorf("transport: unknown kind %q", s)
    }
}

// Options are shared by every transport.
type Options struct {
    // MaxFrameBytes bounds a single frame; zero means DefaultMaxFrame.
    MaxFrameBytes int
}

func (o Options) MaxFrame() int {
    if o.MaxFrameBytes <= 0 {
        return DefaultMaxFrame
    }
    return o.MaxFrameBytes
}

// Session is one connection to a remote node.
// Exactly one reader and any number of writer goroutines are expected.
type Session interface {
    Kind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr
    // SendBytes sends one frame.
    SendBytes([]byte) error
    // RecvBytes receives the next frame.
    RecvBytes() ([]byte, error)
    Close() error
}

// Listener accepts inbound sessions.
type Listener interface {
    // Accept blocks until an inbound session is available or ctx is done.
    Accept(ctx context.Context) (Session, error)
    // Addr returns the local listening address.
    Addr() net.Addr
    // Close stops the listener and unblocks Accept.
    Close() error
}

// Transport provides dialing/listening for a specific link kind. The ctx given
// to Dial bounds connection setup only, never the session's lifetime.
type Transport interface {
    Kind() Kind
    Listen(ctx context.Context, address string) (Listener, error)
    Dial(ctx context.Context, address string) (Session, error)
}
