package netdriver

import (
    "sync"
    "time"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/handshake"
    "github.com/cryptape/cita-p2p/pkg/transport"
)

// closeGrace bounds how long a pending close frame may hold a session open.
const closeGrace = time.Second

type outFrame struct {
    b    []byte
    last bool
}

// conn is one session plus the driver's view of it. Fields below the mutex
// line belong to the driver goroutine.
type conn struct {
    peer     bridge.PeerIndex
    sess     transport.Session
    endpoint bridge.Endpoint

    out       chan outFrame
    done      chan struct{}
    closeOnce sync.Once
    closeErr  error

    helloTimer *time.Timer
    helloDone  bool
    nodeID     string
    open       []handshake.Protocol
}

func newConn(peer bridge.PeerIndex, s transport.Session, ep bridge.Endpoint, buffer int) *conn {
    return &conn{
        peer:     peer,
        sess:     s,
        endpoint: ep,
        out:      make(chan outFrame, max(buffer, 1)),
        done:     make(chan struct{}),
    }
}

func (c *conn) Close() error {
    c.closeOnce.Do(func() {
        close(c.done)
        c.closeErr = c.sess.Close()
    })
    return c.closeErr
}

// enqueue hands b to the writer. It reports false when the buffer is full or
// the connection is closed.
func (c *conn) enqueue(b []byte) bool {
    select {
    case <-c.done:
        return false
    default:
    }
    select {
    case c.out <- outFrame{b: b}:
        return true
    default:
        return false
    }
}

// shutdown queues a final frame and closes the session once it is written.
func (c *conn) shutdown(last []byte) {
    if c.helloTimer != nil {
        c.helloTimer.Stop()
    }
    if last == nil {
        _ = c.Close()
        return
    }
    select {
    case c.out <- outFrame{b: last, last: true}:
        time.AfterFunc(closeGrace, func() { _ = c.Close() })
    default:
        _ = c.Close()
    }
}

func (c *conn) protocol(id uint32) (handshake.Protocol, bool) {
    for _, p := range c.open {
        if p.ID == id {
            return p, true
        }
    }
    return handshake.Protocol{}, false
}

func (c *conn) writeLoop(onSent func(int)) {
    for {
        select {
        case <-c.done:
            return
        case f := <-c.out:
            if err := c.sess.SendBytes(f.b); err != nil {
                zap.L().Debug("session write failed", zap.Uint64("peer", uint64(c.peer)), zap.Error(err))
                _ = c.Close()
                return
            }
            onSent(len(f.b))
            if f.last {
                _ = c.Close()
                return
            }
        }
    }
}
