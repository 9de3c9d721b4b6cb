// Package peers keeps metadata about connected nodes: who they claim to be,
// where they listen and how much traffic they carried. Entries expire when a
// connection goes quiet for longer than the configured TTL.
package peers

import (
    "sort"
    "sync"
    "time"

    "github.com/hashicorp/golang-lru/v2/expirable"
    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/bridge"
    "github.com/cryptape/cita-p2p/pkg/config"
)

type Meta struct {
    Peer       bridge.PeerIndex `json:"peer"`
    ID         string           `json:"id,omitempty"`
    NodeName   string           `json:"node_name,omitempty"`
    ListenAddr string           `json:"listen_addr,omitempty"`
    RemoteAddr string           `json:"remote_addr"`
    Endpoint   bridge.Endpoint  `json:"endpoint"`
    // Handshake: pending, verified
    Handshake string `json:"handshake"`
    // Counters
    MsgsIn      uint64 `json:"msgs_in"`
    MsgsOut     uint64 `json:"msgs_out"`
    BytesIn     uint64 `json:"bytes_in"`
    BytesOut    uint64 `json:"bytes_out"`
    ConnectedAt int64  `json:"connected_unix_ms"`
    LastSeen    int64  `json:"last_seen_unix_ms"`
}

const (
    HandshakePending  = "pending"
    HandshakeVerified = "verified"
)

// Store is safe for concurrent use.
type Store struct {
    // serialises read-modify-write of a single entry
    mu    sync.Mutex
    cache *expirable.LRU[bridge.PeerIndex, Meta]
}

func NewStore(c config.PeersConfig) *Store {
    size := c.MaxEntries
    if size < 0 {
        size = 0
    }
    onEvict := func(k bridge.PeerIndex, m Meta) {
        zap.L().Debug("peer meta evicted", zap.Uint64("peer", uint64(k)), zap.String("id", m.ID))
    }
    return &Store{cache: expirable.NewLRU[bridge.PeerIndex, Meta](size, onEvict, c.TTL())}
}

// Connected records a new connection before its hello arrives.
func (s *Store) Connected(p bridge.PeerIndex, remote string, ep bridge.Endpoint) {
    now := time.Now().UnixMilli()
    s.mu.Lock()
    defer s.mu.Unlock()
    s.cache.Add(p, Meta{Peer: p, RemoteAddr: remote, Endpoint: ep, Handshake: HandshakePending, ConnectedAt: now, LastSeen: now})
}

// Verified fills in what the peer's hello told us.
func (s *Store) Verified(p bridge.PeerIndex, id, name, listen string) {
    s.update(p, func(m *Meta) {
        m.ID, m.NodeName, m.ListenAddr = id, name, listen
        m.Handshake = HandshakeVerified
    })
}

// RecordIn counts one received frame.
func (s *Store) RecordIn(p bridge.PeerIndex, size int) {
    s.update(p, func(m *Meta) { m.MsgsIn++; m.BytesIn += uint64(size) })
}

// RecordOut counts one sent frame.
func (s *Store) RecordOut(p bridge.PeerIndex, size int) {
    s.update(p, func(m *Meta) { m.MsgsOut++; m.BytesOut += uint64(size) })
}

func (s *Store) Get(p bridge.PeerIndex) (Meta, bool) { return s.cache.Peek(p) }

// Remove forgets p.
func (s *Store) Remove(p bridge.PeerIndex) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.cache.Remove(p)
}

// List returns all live entries ordered by peer index.
func (s *Store) List() []Meta {
    out := s.cache.Values()
    sort.Slice(out, func(i, j int) bool { return out[i].Peer < out[j].Peer })
    return out
}

func (s *Store) Len() int { return s.cache.Len() }

func (s *Store) update(p bridge.PeerIndex, fn func(*Meta)) {
    s.mu.Lock()
    defer s.mu.Unlock()
    m, ok := s.cache.Peek(p)
    if !ok {
        // expired or never seen; start over with what we know
        m = Meta{Peer: p, Handshake: HandshakePending}
    }
    fn(&m)
    m.LastSeen = time.Now().UnixMilli()
    s.cache.Add(p, m)
}
