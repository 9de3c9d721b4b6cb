package identity

import (
    "crypto/ed25519"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/stretchr/testify/require"

    "github.com/cryptape/cita-p2p/pkg/config"
)

func TestGenerateThenLoad(t *testing.T) {
    pk, id, err := LoadOrGenEd25519(config.IdentityConfig{})
    require.NoError(t, err)
    require.True(t, strings.HasPrefix(id, "pk:ed25519:"))

    again, id2, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKey: Encode(pk)})
    require.NoError(t, err)
    require.Equal(t, pk, again)
    require.Equal(t, id, id2)
}

func TestLoadFromFile(t *testing.T) {
    _, pk, err := ed25519.GenerateKey(nil)
    require.NoError(t, err)
    dir := t.TempDir()

    b64 := filepath.Join(dir, "key.b64")
    require.NoError(t, os.WriteFile(b64, []byte(Encode(pk)+"\n"), 0o600))
    got, _, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKeyFile: b64})
    require.NoError(t, err)
    require.Equal(t, pk, got)

    raw := filepath.Join(dir, "key.raw")
    require.NoError(t, os.WriteFile(raw, pk, 0o600))
    got, _, err = LoadOrGenEd25519(config.IdentityConfig{PrivateKeyFile: raw})
    require.NoError(t, err)
    require.Equal(t, pk, got)
}

func TestRejectsBadKeys(t *testing.T) {
    _, _, err := LoadOrGenEd25519(config.IdentityConfig{PrivateKey: "!!!"})
    require.Error(t, err)
    _, _, err = LoadOrGenEd25519(config.IdentityConfig{PrivateKey: "AAAA"})
    require.Error(t, err)
    _, _, err = LoadOrGenEd25519(config.IdentityConfig{PrivateKeyFile: filepath.Join(t.TempDir(), "missing")})
    require.Error(t, err)
}
