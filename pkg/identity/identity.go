// Package identity loads or creates the node's ed25519 key.
package identity

import (
    "crypto/ed25519"
    "crypto/rand"
    "encoding/base64"
    "fmt"
    "os"
    "strings"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/config"
)

// CanonicalID constructs a node id from public key bytes.
// The format is: pk:<alg>:<base64url-nopad(pubkey)>
func CanonicalID(alg string, pub []byte) string {
    alg = strings.ToLower(strings.TrimSpace(alg))
    return "pk:" + alg + ":" + base64.RawURLEncoding.EncodeToString(pub)
}

// LoadOrGenEd25519 loads an ed25519 private key from config or generates a new one.
// Returns the private key and the canonical node id.
func LoadOrGenEd25519(c config.IdentityConfig) (ed25519.PrivateKey, string, error) {
    var pk ed25519.PrivateKey
    if s := strings.TrimSpace(c.PrivateKey); s != "" {
        b, err := base64.RawURLEncoding.DecodeString(s)
        if err != nil {
            return nil, "", fmt.Errorf("identity.private_key: %w", err)
        }
        pk = ed25519.PrivateKey(b)
    }
    if pk == nil && strings.TrimSpace(c.PrivateKeyFile) != "" {
        b, err := os.ReadFile(c.PrivateKeyFile)
        if err != nil {
            return nil, "", fmt.Errorf("identity.private_key_file: %w", err)
        }
        txt := strings.TrimSpace(string(b))
        if db, err := base64.RawURLEncoding.DecodeString(txt); err == nil {
            pk = ed25519.PrivateKey(db)
        } else {
            // assume raw bytes
            pk = ed25519.PrivateKey(b)
        }
    }
    if pk == nil {
        _, gen, err := ed25519.GenerateKey(rand.Reader)
        if err != nil {
            return nil, "", err
        }
        pk = gen
        zap.L().Info("generated new ed25519 identity (persist to identity.private_key)",
            zap.String("pub_b64", base64.RawURLEncoding.EncodeToString(gen.Public().(ed25519.PublicKey))))
    }
    if len(pk) != ed25519.PrivateKeySize {
        return nil, "", fmt.Errorf("identity: private key has %d bytes, want %d", len(pk), ed25519.PrivateKeySize)
    }
    pub := pk.Public().(ed25519.PublicKey)
    return pk, CanonicalID("ed25519", pub), nil
}

// Encode renders a private key the way LoadOrGenEd25519 reads it back.
func Encode(pk ed25519.PrivateKey) string { return base64.RawURLEncoding.EncodeToString(pk) }
