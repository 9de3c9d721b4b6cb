// Package gossip implements the peer address gossip protocol and the
// dispatcher loop that drives it from bridge events.
package gossip

import (
    "errors"
    "fmt"
)

var (
    // ErrDecode wraps every failure to turn a payload into an Envelope.
    ErrDecode = errors.New("gossip: malformed envelope")
    // ErrUnknownType reports an envelope whose mtype is not recognised.
    ErrUnknownType = errors.New("gossip: unknown message type")
)

// MessageType tags an Envelope.
type MessageType string

const (
    // ShareAddr carries the sender's reachable address in Data.
    ShareAddr MessageType = "ShareAddr"
    // ReturnNodeAddrs carries a serialized address table in Data.
    ReturnNodeAddrs MessageType = "ReturnNodeAddrs"
)

func (t MessageType) Valid() bool { return t == ShareAddr || t == ReturnNodeAddrs }

// Envelope is the gossip wire message. Timestamp is reserved and always 0.
type Envelope struct {
    MType     MessageType `json:"mtype"`
    Data      string      `json:"data"`
    Timestamp uint64      `json:"timestamp"`
}

func NewShareAddr(addr string) Envelope { return Envelope{MType: ShareAddr, Data: addr} }

func NewReturnNodeAddrs(table string) Envelope {
    return Envelope{MType: ReturnNodeAddrs, Data: table}
}

// Validate checks the type tag.
func (e Envelope) Validate() error {
    if !e.MType.Valid() {
        return fmt.Errorf("%w: %q", ErrUnknownType, string(e.MType))
    }
    return nil
}
