package gossip

import (
    "errors"
    "fmt"
    "math"
    "unicode/utf8"

    "google.golang.org/protobuf/types/known/structpb"

    "github.com/cryptape/cita-p2p/pkg/codec"
)

// EnvelopeCodec turns envelopes into payload bytes and back. Decode errors
// always wrap ErrDecode.
type EnvelopeCodec interface {
    Name() string
    Encode(Envelope) ([]byte, error)
    Decode([]byte) (Envelope, error)
}

// NewEnvelopeCodec returns the codec registered under name: json, cbor or proto.
func NewEnvelopeCodec(name string) (EnvelopeCodec, error) {
    reg, err := codec.NewRegistry()
    if err != nil {
        return nil, err
    }
    c, err := reg.Lookup(name)
    if err != nil {
        return nil, err
    }
    if c.Name() == "proto" {
        return structEnvelopeCodec{c: c}, nil
    }
    return fieldEnvelopeCodec{c: c}, nil
}

// JSONCodec is the default wire codec.
func JSONCodec() EnvelopeCodec { return fieldEnvelopeCodec{c: codec.JSON()} }

// wireEnvelope detects missing fields on decode.
type wireEnvelope struct {
    MType     *MessageType `json:"mtype"`
    Data      *string      `json:"data"`
    Timestamp *uint64      `json:"timestamp"`
}

type fieldEnvelopeCodec struct{ c codec.Codec }

func (f fieldEnvelopeCodec) Name() string { return f.c.Name() }

func (f fieldEnvelopeCodec) Encode(e Envelope) ([]byte, error) {
    if err := e.Validate(); err != nil {
        return nil, err
    }
    return f.c.Marshal(e)
}

func (f fieldEnvelopeCodec) Decode(b []byte) (Envelope, error) {
    if f.c.Name() == "json" && !utf8.Valid(b) {
        return Envelope{}, fmt.Errorf("%w: payload is not valid utf-8", ErrDecode)
    }
    var w wireEnvelope
    if err := f.c.Unmarshal(b, &w); err != nil {
        return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
    }
    if w.MType == nil || w.Data == nil || w.Timestamp == nil {
        return Envelope{}, fmt.Errorf("%w: missing field", ErrDecode)
    }
    e := Envelope{MType: *w.MType, Data: *w.Data, Timestamp: *w.Timestamp}
    if err := e.Validate(); err != nil {
        return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
    }
    return e, nil
}

// structEnvelopeCodec carries the envelope as a google.protobuf.Struct.
type structEnvelopeCodec struct{ c codec.Codec }

func (s structEnvelopeCodec) Name() string { return s.c.Name() }

func (s structEnvelopeCodec) Encode(e Envelope) ([]byte, error) {
    if err := e.Validate(); err != nil {
        return nil, err
    }
    st := &structpb.Struct{Fields: map[string]*structpb.Value{
        "mtype":     structpb.NewStringValue(string(e.MType)),
        "data":      structpb.NewStringValue(e.Data),
        "timestamp": structpb.NewNumberValue(float64(e.Timestamp)),
    }}
    return s.c.Marshal(st)
}

func (s structEnvelopeCodec) Decode(b []byte) (Envelope, error) {
    var st structpb.Struct
    if err := s.c.Unmarshal(b, &st); err != nil {
        return Envelope{}, fmt.Errorf("%w: %v", ErrDecode, err)
    }
    mt, okT := st.Fields["mtype"].GetKind().(*structpb.Value_StringValue)
    data, okD := st.Fields["data"].GetKind().(*structpb.Value_StringValue)
    ts, okS := st.Fields["timestamp"].GetKind().(*structpb.Value_NumberValue)
    if !okT || !okD || !okS {
        return Envelope{}, fmt.Errorf("%w: missing field", ErrDecode)
    }
    if ts.NumberValue < 0 || ts.NumberValue > math.MaxUint64 || ts.NumberValue != math.Trunc(ts.NumberValue) {
        return Envelope{}, fmt.Errorf("%w: bad timestamp", ErrDecode)
    }
    e := Envelope{MType: MessageType(mt.StringValue), Data: data.StringValue, Timestamp: uint64(ts.NumberValue)}
    if err := e.Validate(); err != nil {
        return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
    }
    return e, nil
}

// IsDecodeError reports whether err came from a malformed payload.
func IsDecodeError(err error) bool { return errors.Is(err, ErrDecode) }
