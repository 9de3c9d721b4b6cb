// Package addrtable implements the peer address table exchanged by the gossip
// protocol: a map from a reachable address to an integer counter.
//
// Insertion never overwrites: once an address is present its counter is fixed
// for the lifetime of the table. A table is not safe for concurrent use; it is
// owned by exactly one goroutine (the dispatcher).
package addrtable

import (
    "errors"
    "fmt"
    "sort"

    lru "github.com/hashicorp/golang-lru/v2"

    "github.com/cryptape/cita-p2p/pkg/codec"
)

// ErrDecode reports a serialized table that could not be parsed.
var ErrDecode = errors.New("addrtable: malformed table")

const (
    // SeedCounter is the counter given to the node's own address.
    SeedCounter = 1
    // LearnedCounter is the counter given to every inserted address.
    LearnedCounter = 0
)

// Options bounds the table. MaxEntries counts learned addresses only; the seed
// is never evicted. Zero means unbounded.
type Options struct {
    MaxEntries int
}

// Table is the peer address table.
type Table struct {
    seed    string
    hasSeed bool

    // exactly one of the two is set
    entries map[string]int
    bounded *lru.Cache[string, int]
}

// New returns an empty table.
func New(opts Options) (*Table, error) {
    t := &Table{}
    if opts.MaxEntries > 0 {
        c, err := lru.New[string, int](opts.MaxEntries)
        if err != nil {
            return nil, fmt.Errorf("addrtable: %w", err)
        }
        t.bounded = c
    } else {
        t.entries = make(map[string]int)
    }
    return t, nil
}

// Seed records the node's own address. Seeding twice keeps the first seed.
func (t *Table) Seed(own string) {
    if t.hasSeed {
        return
    }
    t.seed, t.hasSeed = own, true
    // an address learned before seeding becomes the seed
    t.remove(own)
}

// Own returns the seeded address.
func (t *Table) Own() (string, bool) { return t.seed, t.hasSeed }

// InsertIfAbsent adds addr with LearnedCounter and reports whether it was new.
// A present address keeps its counter.
func (t *Table) InsertIfAbsent(addr string) bool {
    if t.hasSeed && addr == t.seed {
        return false
    }
    if t.bounded != nil {
        found, _ := t.bounded.ContainsOrAdd(addr, LearnedCounter)
        return !found
    }
    if _, ok := t.entries[addr]; ok {
        return false
    }
    t.entries[addr] = LearnedCounter
    return true
}

// Merge inserts every address of other that is absent here and returns the
// newly added ones in sorted order. Counters carried by other are ignored.
func (t *Table) Merge(other *Table) []string {
    var added []string
    for _, addr := range other.Addresses() {
        if t.InsertIfAbsent(addr) {
            added = append(added, addr)
        }
    }
    return added
}

// Get returns the counter stored for addr.
func (t *Table) Get(addr string) (int, bool) {
    if t.hasSeed && addr == t.seed {
        return SeedCounter, true
    }
    if t.bounded != nil {
        return t.bounded.Peek(addr)
    }
    v, ok := t.entries[addr]
    return v, ok
}

// Len returns the number of addresses including the seed.
func (t *Table) Len() int {
    n := len(t.entries)
    if t.bounded != nil {
        n = t.bounded.Len()
    }
    if t.hasSeed {
        n++
    }
    return n
}

// Addresses returns all addresses in sorted order.
func (t *Table) Addresses() []string {
    snap := t.Snapshot()
    out := make([]string, 0, len(snap))
    for a := range snap {
        out = append(out, a)
    }
    sort.Strings(out)
    return out
}

// Snapshot copies the table into a plain map.
func (t *Table) Snapshot() map[string]int {
    out := make(map[string]int, t.Len())
    if t.bounded != nil {
        for _, k := range t.bounded.Keys() {
            if v, ok := t.bounded.Peek(k); ok {
                out[k] = v
            }
        }
    } else {
        for k, v := range t.entries {
            out[k] = v
        }
    }
    if t.hasSeed {
        out[t.seed] = SeedCounter
    }
    return out
}

// Equal reports whether both tables hold the same addresses and counters.
func (t *Table) Equal(other *Table) bool {
    a, b := t.Snapshot(), other.Snapshot()
    if len(a) != len(b) {
        return false
    }
    for k, v := range a {
        if w, ok := b[k]; !ok || w != v {
            return false
        }
    }
    return true
}

// Serialize renders the table as a JSON object mapping address to counter,
// keys sorted.
func (t *Table) Serialize() (string, error) {
    b, err := codec.JSON().Marshal(t.Snapshot())
    if err != nil {
        return "", fmt.Errorf("addrtable: encode: %w", err)
    }
    return string(b), nil
}

// Deserialize parses the output of Serialize into an unbounded table. The
// result carries no seed; every entry keeps the counter it was sent with.
func Deserialize(s string) (*Table, error) {
    var m map[string]int
    if err := codec.JSON().Unmarshal([]byte(s), &m); err != nil {
        return nil, fmt.Errorf("%w: %v", ErrDecode, err)
    }
    if m == nil {
        return nil, fmt.Errorf("%w: not an object", ErrDecode)
    }
    return &Table{entries: m}, nil
}

func (t *Table) remove(addr string) {
    if t.bounded != nil {
        t.bounded.Remove(addr)
        return
    }
    delete(t.entries, addr)
}
