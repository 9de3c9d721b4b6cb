package transport

import (
    "io"
    "sort"
    "sync"

    "go.uber.org/multierr"
)

// Manager numbers live connections and owns their lifetime. Indexes are
// assigned in increasing order and never reused.
type Manager[C io.Closer] struct {
    mu    sync.RWMutex
    next  uint64
    conns map[uint64]C
}

func NewManager[C io.Closer]() *Manager[C] {
    return &Manager[C]{conns: make(map[uint64]C)}
}

// Reserve hands out the next index without registering anything under it.
func (m *Manager[C]) Reserve() uint64 {
    m.mu.Lock()
    defer m.mu.Unlock()
    id := m.next
    m.next++
    return id
}

// Put registers c under an index obtained from Reserve.
func (m *Manager[C]) Put(id uint64, c C) {
    m.mu.Lock()
    defer m.mu.Unlock()
    m.conns[id] = c
}

// Add registers c under a fresh index.
func (m *Manager[C]) Add(c C) uint64 {
    id := m.Reserve()
    m.Put(id, c)
    return id
}

// Get returns the connection registered under id.
func (m *Manager[C]) Get(id uint64) (C, bool) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    c, ok := m.conns[id]
    return c, ok
}

// Remove forgets id and returns what was registered. It does not close it.
func (m *Manager[C]) Remove(id uint64) (C, bool) {
    m.mu.Lock()
    defer m.mu.Unlock()
    c, ok := m.conns[id]
    delete(m.conns, id)
    return c, ok
}

// IDs returns all live indexes in increasing order.
func (m *Manager[C]) IDs() []uint64 {
    m.mu.RLock()
    defer m.mu.RUnlock()
    out := make([]uint64, 0, len(m.conns))
    for id := range m.conns {
        out = append(out, id)
    }
    sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
    return out
}

func (m *Manager[C]) Len() int {
    m.mu.RLock()
    defer m.mu.RUnlock()
    return len(m.conns)
}

// CloseAll closes and forgets every connection.
func (m *Manager[C]) CloseAll() error {
    m.mu.Lock()
    conns := m.conns
    m.conns = make(map[uint64]C)
    m.mu.Unlock()
    var err error
    for _, c := range conns {
        err = multierr.Append(err, c.Close())
    }
    return err
}
