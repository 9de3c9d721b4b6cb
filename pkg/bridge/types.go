// Package bridge connects the network context and the dispatch context with
// two one-way queues: commands flow to the network, events flow back.
package bridge

import "fmt"

// PeerIndex is the numeric connection index assigned by the network context.
type PeerIndex uint64

// ProtocolID identifies a custom protocol multiplexed over a connection.
type ProtocolID uint32

// Endpoint tells which side opened a connection.
type Endpoint int

const (
    // Dialer means the local node initiated the connection.
    Dialer Endpoint = iota
    // Listener means the local node accepted the connection.
    Listener
)

func (e Endpoint) String() string {
    switch e {
    case Dialer:
        return "dialer"
    case Listener:
        return "listener"
    default:
        return fmt.Sprintf("endpoint(%d)", int(e))
    }
}

// Message is one outgoing payload. Empty Targets means every connected peer
// that has the protocol open.
type Message struct {
    Targets  []PeerIndex
    Protocol ProtocolID
    Payload  []byte
}

// Command is a request from the dispatch context to the network context.
type Command interface{ isCommand() }

type Dial struct{ Address string }
type Listen struct{ Address string }
type Disconnect struct{ Peer PeerIndex }
type SendMessages struct{ Messages []Message }

func (Dial) isCommand()         {}
func (Listen) isCommand()       {}
func (Disconnect) isCommand()   {}
func (SendMessages) isCommand() {}

// Event is a notification from the network context.
type Event interface{ isEvent() }

// CustomProtocolOpen is emitted once per connection and protocol after the
// hello exchange succeeded.
type CustomProtocolOpen struct {
    Peer     PeerIndex
    Protocol ProtocolID
    Version  uint8
    Endpoint Endpoint
}

// CustomMessage carries one received payload. Payload is nil when the frame
// had none.
type CustomMessage struct {
    Peer     PeerIndex
    Protocol ProtocolID
    Payload  []byte
}

// NodeInfo describes the remote node behind a connection.
type NodeInfo struct {
    Peer          PeerIndex
    Endpoint      Endpoint
    ListenAddress string
    NodeName      string
    NodeID        string
}

type CustomProtocolClosed struct {
    Peer     PeerIndex
    Protocol ProtocolID
}

type NodeDisconnected struct {
    Peer PeerIndex
}

func (CustomProtocolOpen) isEvent()   {}
func (CustomMessage) isEvent()        {}
func (NodeInfo) isEvent()             {}
func (CustomProtocolClosed) isEvent() {}
func (NodeDisconnected) isEvent()     {}

// CommandName is a short label for logs and metrics.
func CommandName(c Command) string {
    switch c.(type) {
    case Dial:
        return "dial"
    case Listen:
        return "listen"
    case Disconnect:
        return "disconnect"
    case SendMessages:
        return "send_messages"
    default:
        return "unknown"
    }
}

// EventName is a short label for logs and metrics.
func EventName(e Event) string {
    switch e.(type) {
    case CustomProtocolOpen:
        return "protocol_open"
    case CustomMessage:
        return "message"
    case NodeInfo:
        return "node_info"
    case CustomProtocolClosed:
        return "protocol_closed"
    case NodeDisconnected:
        return "disconnected"
    default:
        return "unknown"
    }
}
