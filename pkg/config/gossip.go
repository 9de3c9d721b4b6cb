package config

import "time"

// AnnouncePolicy decides on which connections the node shares its own address.
type AnnouncePolicy string

const (
    // AnnounceOutbound announces on every connection this node dialed, never on inbound ones.
    AnnounceOutbound AnnouncePolicy = "outbound"
    AnnounceAlways   AnnouncePolicy = "always"
    AnnounceNever    AnnouncePolicy = "never"
)

// GossipConfig configures the address gossip protocol.
type GossipConfig struct {
    ProtocolID uint32 `mapstructure:"protocol_id"`
    // Codec for envelopes: json (wire default), cbor, proto
    Codec    string         `mapstructure:"codec"`
    Announce AnnouncePolicy `mapstructure:"announce"`
    // Broadcast sends replies to every connected peer instead of the sender
    Broadcast bool `mapstructure:"broadcast"`
    // MergeReturned folds received address tables into the local one
    MergeReturned bool `mapstructure:"merge_returned"`
    // DialDiscovered dials addresses learned through merged tables
    DialDiscovered bool `mapstructure:"dial_discovered"`
}

// TableConfig bounds the peer address table. 0 keeps it unbounded.
type TableConfig struct {
    MaxEntries int `mapstructure:"max_entries"`
}

// BridgeConfig bounds the two bridge queues. 0 keeps them unbounded; a full
// bounded queue drops the new item.
type BridgeConfig struct {
    CommandCapacity int `mapstructure:"command_capacity"`
    EventCapacity   int `mapstructure:"event_capacity"`
}

// QueueOrder selects pop order for the adapter's dial/listen/disconnect queues.
type QueueOrder string

const (
    OrderFIFO QueueOrder = "fifo"
    OrderLIFO QueueOrder = "lifo"
)

type ServiceConfig struct {
    ControlOrder QueueOrder `mapstructure:"control_order"`
}

// PeersConfig bounds the per-connection metadata store.
type PeersConfig struct {
    MaxEntries int `mapstructure:"max_entries"`
    TTLMS      int `mapstructure:"ttl_ms"`
}

func (p PeersConfig) TTL() time.Duration { return time.Duration(p.TTLMS) * time.Millisecond }

// MetricsConfig enables the prometheus endpoint when Listen is set.
type MetricsConfig struct {
    Listen string `mapstructure:"listen"`
}
