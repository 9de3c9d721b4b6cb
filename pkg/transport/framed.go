package transport

import (
    "bufio"
    "encoding/binary"
    "fmt"
    "io"
    "net"
    "sync"
)

// WriteFrame writes one u32 LE length-prefixed frame and flushes.
func WriteFrame(w *bufio.Writer, b []byte, max int) error {
    if len(b) > max {
        return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(b), max)
    }
    var lenbuf [4]byte
    binary.LittleEndian.PutUint32(lenbuf[:], uint32(len(b)))
    if _, err := w.Write(lenbuf[:]); err != nil {
        return err
    }
    if _, err := w.Write(b); err != nil {
        return err
    }
    return w.Flush()
}

// ReadFrame reads one u32 LE length-prefixed frame.
func ReadFrame(r io.Reader, max int) ([]byte, error) {
    var lenbuf [4]byte
    if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
        return nil, err
    }
    n := binary.LittleEndian.Uint32(lenbuf[:])
    if uint64(n) > uint64(max) {
        return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, max)
    }
    buf := make([]byte, n)
    if _, err := io.ReadFull(r, buf); err != nil {
        return nil, err
    }
    return buf, nil
}

// framed is a Session over any byte stream.
type framed struct {
    kind   Kind
    rwc    io.ReadWriteCloser
    local  net.Addr
    remote net.Addr
    max    int

    wmu sync.Mutex
    br  *bufio.Reader
    bw  *bufio.Writer

    closeOnce sync.Once
    closeErr  error
}

// NewFramed wraps a byte stream into a Session.
func NewFramed(kind Kind, rwc io.ReadWriteCloser, local, remote net.Addr, opts Options) Session {
    return &framed{
        kind:   kind,
        rwc:    rwc,
        local:  local,
        remote: remote,
        max:    opts.MaxFrame(),
        br:     bufio.NewReader(rwc),
        bw:     bufio.NewWriter(rwc),
    }
}

// FromConn wraps a net.Conn into a Session.
func FromConn(kind Kind, c net.Conn, opts Options) Session {
    return NewFramed(kind, c, c.LocalAddr(), c.RemoteAddr(), opts)
}

func (f *framed) Kind() Kind           { return f.kind }
func (f *framed) LocalAddr() net.Addr  { return f.local }
func (f *framed) RemoteAddr() net.Addr { return f.remote }

func (f *framed) SendBytes(b []byte) error {
    f.wmu.Lock()
    defer f.wmu.Unlock()
    return WriteFrame(f.bw, b, f.max)
}

func (f *framed) RecvBytes() ([]byte, error) { return ReadFrame(f.br, f.max) }

func (f *framed) Close() error {
    f.closeOnce.Do(func() { f.closeErr = f.rwc.Close() })
    return f.closeErr
}
