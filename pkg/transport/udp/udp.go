// Package udp carries one frame per datagram. There is no retransmission:
// frames may be lost or reordered, so it only suits lossless local links.
package udp

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/transport"
)

// maxDatagram is the largest UDP payload over IPv4.
const maxDatagram = 65507

var errClosed = errors.New("udp session closed")

type Transport struct {
    opts transport.Options
}

func New(opts transport.Options) *Transport { return &Transport{opts: opts} }

func (t *Transport) Kind() transport.Kind { return transport.KindUDP }

func (t *Transport) maxFrame() int { return min(t.opts.MaxFrame(), maxDatagram) }

func (t *Transport) Listen(ctx context.Context, address string) (transport.Listener, error) {
    laddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil {
        return nil, err
    }
    c, err := net.ListenUDP("udp", laddr)
    if err != nil {
        return nil, err
    }
    ul := &listener{
        conn:     c,
        max:      t.maxFrame(),
        sessions: make(map[string]*session),
        newCh:    make(chan transport.Session, 8),
        closeCh:  make(chan struct{}),
    }
    go ul.readLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = ul.Close()
        case <-ul.closeCh:
        }
    }()
    return ul, nil
}

func (t *Transport) Dial(_ context.Context, address string) (transport.Session, error) {
    raddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil {
        return nil, err
    }
    c, err := net.DialUDP("udp", nil, raddr)
    if err != nil {
        return nil, err
    }
    s := newSession(c, raddr, t.maxFrame(), true)
    go s.recvLoop()
    return s, nil
}

type listener struct {
    conn *net.UDPConn
    max  int

    mu       sync.Mutex
    sessions map[string]*session

    newCh   chan transport.Session
    closeCh chan struct{}
    once    sync.Once
    err     error
}

func (l *listener) Addr() net.Addr { return l.conn.LocalAddr() }

func (l *listener) Accept(ctx context.Context) (transport.Session, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, errors.New("udp listener closed")
    case s := <-l.newCh:
        return s, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() {
        close(l.closeCh)
        l.err = l.conn.Close()
        l.mu.Lock()
        open := make([]*session, 0, len(l.sessions))
        for _, s := range l.sessions {
            open = append(open, s)
        }
        l.mu.Unlock()
        for _, s := range open {
            _ = s.Close()
        }
    })
    return l.err
}

func (l *listener) readLoop() {
    buf := make([]byte, maxDatagram+1)
    for {
        n, raddr, err := l.conn.ReadFromUDP(buf)
        if err != nil {
            return
        }
        if n > l.max {
            zap.L().Debug("udp datagram too large", zap.Int("size", n), zap.Stringer("remote", raddr))
            continue
        }
        key := raddr.String()
        l.mu.Lock()
        s, ok := l.sessions[key]
        if !ok {
            s = newSession(l.conn, raddr, l.max, false)
            s.onClose = func() {
                l.mu.Lock()
                delete(l.sessions, key)
                l.mu.Unlock()
            }
            select {
            case l.newCh <- s:
                l.sessions[key] = s
            default:
                l.mu.Unlock()
                continue
            }
        }
        l.mu.Unlock()
        s.deliver(append([]byte(nil), buf[:n]...))
    }
}

type session struct {
    conn     *net.UDPConn
    raddr    *net.UDPAddr
    max      int
    outbound bool
    onClose  func()

    rxCh      chan []byte
    closed    chan struct{}
    closeOnce sync.Once
}

func newSession(c *net.UDPConn, raddr *net.UDPAddr, max int, outbound bool) *session {
    return &session{
        conn:     c,
        raddr:    raddr,
        max:      max,
        outbound: outbound,
        rxCh:     make(chan []byte, 64),
        closed:   make(chan struct{}),
    }
}

func (s *session) Kind() transport.Kind  { return transport.KindUDP }
func (s *session) LocalAddr() net.Addr  { return s.conn.LocalAddr() }
func (s *session) RemoteAddr() net.Addr { return s.raddr }

func (s *session) SendBytes(b []byte) error {
    if len(b) > s.max {
        return fmt.Errorf("%w: %d > %d", transport.ErrFrameTooLarge, len(b), s.max)
    }
    select {
    case <-s.closed:
        return errClosed
    default:
    }
    var err error
    if s.outbound {
        _, err = s.conn.Write(b)
    } else {
        _, err = s.conn.WriteToUDP(b, s.raddr)
    }
    return err
}

func (s *session) RecvBytes() ([]byte, error) {
    select {
    case pkt := <-s.rxCh:
        return pkt, nil
    case <-s.closed:
        return nil, errClosed
    }
}

// deliver drops the datagram when the reader is behind.
func (s *session) deliver(pkt []byte) {
    select {
    case s.rxCh <- pkt:
    default:
        zap.L().Debug("udp receive queue full, datagram dropped", zap.Stringer("remote", s.raddr))
    }
}

func (s *session) recvLoop() {
    buf := make([]byte, maxDatagram+1)
    for {
        n, err := s.conn.Read(buf)
        if err != nil {
            _ = s.Close()
            return
        }
        if n > s.max {
            continue
        }
        s.deliver(append([]byte(nil), buf[:n]...))
    }
}

func (s *session) Close() error {
    var err error
    s.closeOnce.Do(func() {
        close(s.closed)
        if s.outbound {
            err = s.conn.Close()
        }
        if s.onClose != nil {
            s.onClose()
        }
    })
    return err
}
