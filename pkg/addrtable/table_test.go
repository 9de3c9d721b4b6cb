package addrtable

import (
    "fmt"
    "math/rand"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func newTable(t *testing.T, max int) *Table {
    t.Helper()
    tb, err := New(Options{MaxEntries: max})
    require.NoError(t, err)
    return tb
}

func TestSeed(t *testing.T) {
    tb := newTable(t, 0)
    tb.Seed("127.0.0.1:1337")
    tb.Seed("127.0.0.1:9999")

    own, ok := tb.Own()
    require.True(t, ok)
    require.Equal(t, "127.0.0.1:1337", own)
    v, ok := tb.Get(own)
    require.True(t, ok)
    require.Equal(t, SeedCounter, v)
    require.Equal(t, 1, tb.Len())
    require.False(t, tb.InsertIfAbsent(own), "seed must not be re-inserted")
}

func TestInsertIsIdempotent(t *testing.T) {
    rng := rand.New(rand.NewSource(7))
    for round := 0; round < 50; round++ {
        tb := newTable(t, 0)
        tb.Seed("self")
        seen := map[string]int{"self": SeedCounter}
        for i := 0; i < 200; i++ {
            addr := fmt.Sprintf("10.0.0.%d:7000", rng.Intn(40))
            inserted := tb.InsertIfAbsent(addr)
            _, had := seen[addr]
            assert.Equal(t, !had, inserted)
            if !had {
                seen[addr] = LearnedCounter
            }
        }
        require.Equal(t, seen, tb.Snapshot())
    }
}

func TestDuplicateShareLeavesOneEntry(t *testing.T) {
    tb := newTable(t, 0)
    tb.Seed("self")
    require.True(t, tb.InsertIfAbsent("10.1.1.1:1"))
    before, _ := tb.Get("10.1.1.1:1")
    require.False(t, tb.InsertIfAbsent("10.1.1.1:1"))
    after, _ := tb.Get("10.1.1.1:1")
    require.Equal(t, before, after)
    require.Equal(t, 2, tb.Len())
}

func TestSerializeRoundTrip(t *testing.T) {
    rng := rand.New(rand.NewSource(42))
    for n := 0; n <= 64; n += 8 {
        tb := newTable(t, 0)
        tb.Seed("/ip4/127.0.0.1/tcp/1337")
        for i := 0; i < n; i++ {
            tb.InsertIfAbsent(fmt.Sprintf("node-%d-%d", i, rng.Int()))
        }
        s, err := tb.Serialize()
        require.NoError(t, err)
        back, err := Deserialize(s)
        require.NoError(t, err)
        require.True(t, tb.Equal(back), "n=%d", n)
    }
}

func TestSerializeFormat(t *testing.T) {
    tb := newTable(t, 0)
    tb.Seed("b:2")
    tb.InsertIfAbsent("a:1")
    s, err := tb.Serialize()
    require.NoError(t, err)
    require.JSONEq(t, `{"a:1":0,"b:2":1}`, s)
    require.Equal(t, `{"a:1":0,"b:2":1}`, s)
}

func TestDeserializeRejectsMalformed(t *testing.T) {
    for _, in := range []string{"", "null", "[]", `{"a":"x"}`, `{"a":1.5}`, `{"a":1`} {
        _, err := Deserialize(in)
        require.ErrorIs(t, err, ErrDecode, "input %q", in)
    }
}

func TestMergeKeepsExistingCounters(t *testing.T) {
    local := newTable(t, 0)
    local.Seed("self")
    local.InsertIfAbsent("shared")

    remote, err := Deserialize(`{"self":0,"shared":1,"fresh":1,"other":1}`)
    require.NoError(t, err)

    added := local.Merge(remote)
    require.Equal(t, []string{"fresh", "other"}, added)
    v, _ := local.Get("self")
    require.Equal(t, SeedCounter, v)
    v, _ = local.Get("shared")
    require.Equal(t, LearnedCounter, v)
    v, _ = local.Get("fresh")
    require.Equal(t, LearnedCounter, v)
}

func TestBoundedEvictsOldestButNeverSeed(t *testing.T) {
    tb := newTable(t, 2)
    tb.Seed("self")
    tb.InsertIfAbsent("a")
    tb.InsertIfAbsent("b")
    // re-inserting a does not refresh it
    tb.InsertIfAbsent("a")
    tb.InsertIfAbsent("c")

    require.Equal(t, 3, tb.Len())
    _, ok := tb.Get("a")
    require.False(t, ok, "oldest learned address evicted")
    require.Equal(t, []string{"b", "c", "self"}, tb.Addresses())
}
