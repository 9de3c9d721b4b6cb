package netdriver

import (
    "fmt"

    "github.com/cryptape/cita-p2p/pkg/codec"
    "github.com/cryptape/cita-p2p/pkg/handshake"
)

type frameKind uint8

const (
    frameHello frameKind = iota + 1
    frameData
    frameClose
)

func (k frameKind) String() string {
    switch k {
    case frameHello:
        return "hello"
    case frameData:
        return "data"
    case frameClose:
        return "close"
    default:
        return fmt.Sprintf("frame(%d)", uint8(k))
    }
}

// frame is the unit exchanged on every session. Payload is kept without
// omitempty so a nil payload (CBOR null) stays distinct from an empty one.
type frame struct {
    Kind     frameKind `cbor:"1,keyasint"`
    Protocol uint32    `cbor:"2,keyasint,omitempty"`
    Version  uint8     `cbor:"3,keyasint,omitempty"`
    Payload  []byte    `cbor:"4,keyasint"`
}

// frameCodec encodes frames and hellos as CBOR.
type frameCodec struct{ c codec.Codec }

func newFrameCodec() (frameCodec, error) {
    c, err := codec.CBOR()
    if err != nil {
        return frameCodec{}, err
    }
    return frameCodec{c: c}, nil
}

func (fc frameCodec) encode(f frame) ([]byte, error) { return fc.c.Marshal(f) }

func (fc frameCodec) decode(b []byte) (frame, error) {
    var f frame
    if err := fc.c.Unmarshal(b, &f); err != nil {
        return frame{}, fmt.Errorf("decode frame: %w", err)
    }
    switch f.Kind {
    case frameHello, frameData, frameClose:
        return f, nil
    default:
        return frame{}, fmt.Errorf("decode frame: unknown kind %d", uint8(f.Kind))
    }
}

func (fc frameCodec) encodeHello(h handshake.Hello) ([]byte, error) {
    p, err := fc.c.Marshal(h)
    if err != nil {
        return nil, err
    }
    return fc.encode(frame{Kind: frameHello, Payload: p})
}

func (fc frameCodec) decodeHello(f frame) (handshake.Hello, error) {
    var h handshake.Hello
    if err := fc.c.Unmarshal(f.Payload, &h); err != nil {
        return handshake.Hello{}, fmt.Errorf("decode hello: %w", err)
    }
    return h, nil
}
