package handshake

import (
    "crypto/ed25519"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/require"
)

func newKey(t *testing.T) ed25519.PrivateKey {
    t.Helper()
    _, pk, err := ed25519.GenerateKey(nil)
    require.NoError(t, err)
    return pk
}

func TestBuildVerify(t *testing.T) {
    pk := newKey(t)
    h, err := BuildHello("node-a", "127.0.0.1:1337", []Protocol{{ID: 0, Version: 1}}, pk)
    require.NoError(t, err)

    id, err := VerifyHello(h, time.Minute)
    require.NoError(t, err)
    require.True(t, strings.HasPrefix(id, "pk:ed25519:"))
}

func TestTamperedHelloRejected(t *testing.T) {
    pk := newKey(t)
    base, err := BuildHello("node-a", "127.0.0.1:1337", []Protocol{{ID: 0, Version: 1}}, pk)
    require.NoError(t, err)

    mutate := map[string]func(*Hello){
        "listen":    func(h *Hello) { h.ListenAddr = "10.0.0.1:1" },
        "name":      func(h *Hello) { h.NodeName = "mallory" },
        "protocols": func(h *Hello) { h.Protocols = append(h.Protocols, Protocol{ID: 7, Version: 1}) },
        "nonce":     func(h *Hello) { h.Nonce = []byte("0123456789abcdef") },
        "pubkey":    func(h *Hello) { h.PubKey = newKey(t).Public().(ed25519.PublicKey) },
        "alg":       func(h *Hello) { h.Alg = "rsa" },
        "sig":       func(h *Hello) { h.Sig = h.Sig[:10] },
        "stale":     func(h *Hello) { h.Timestamp -= time.Hour.Milliseconds() },
    }
    for name, fn := range mutate {
        h := base
        h.Protocols = append([]Protocol(nil), base.Protocols...)
        fn(&h)
        _, err := VerifyHello(h, time.Minute)
        require.ErrorIs(t, err, ErrInvalid, name)
    }
}

func TestSharedProtocols(t *testing.T) {
    local := []Protocol{{ID: 0, Version: 2}, {ID: 5, Version: 1}}
    remote := []Protocol{{ID: 5, Version: 3}, {ID: 0, Version: 1}, {ID: 9, Version: 1}}
    require.Equal(t, []Protocol{{ID: 0, Version: 1}, {ID: 5, Version: 1}}, Shared(local, remote))
    require.Empty(t, Shared(local, nil))
}
