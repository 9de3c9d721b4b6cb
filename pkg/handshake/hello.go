// Package handshake builds and verifies the signed hello each side sends
// first on a new connection.
package handshake

import (
    "crypto/ed25519"
    "crypto/rand"
    "encoding/base64"
    "errors"
    "fmt"
    "strconv"
    "strings"
    "time"

    "github.com/cryptape/cita-p2p/pkg/identity"
)

const (
    Version    = 1
    AlgEd25519 = "ed25519"
)

var ErrInvalid = errors.New("handshake: invalid hello")

// Protocol is one custom protocol a node speaks.
type Protocol struct {
    ID      uint32 `json:"id"`
    Version uint8  `json:"version"`
}

// Hello binds a public key to a node name, the address the node listens on
// and the protocols it supports.
type Hello struct {
    Version    uint32     `json:"ver,omitempty"`
    NodeName   string     `json:"node_name,omitempty"`
    Alg        string     `json:"alg"`
    PubKey     []byte     `json:"pubkey"`
    Nonce      []byte     `json:"nonce"`
    Timestamp  int64      `json:"ts_unix_ms"`
    ListenAddr string     `json:"listen_addr,omitempty"`
    Protocols  []Protocol `json:"protocols,omitempty"`
    Sig        []byte     `json:"sig"`
}

// BuildHello constructs a Hello and signs it with the provided ed25519 private key.
func BuildHello(nodeName, listenAddr string, protocols []Protocol, priv ed25519.PrivateKey) (Hello, error) {
    pub := priv.Public().(ed25519.PublicKey)
    nonce := make([]byte, 16)
    if _, err := rand.Read(nonce); err != nil {
        return Hello{}, err
    }
    h := Hello{
        Version:    Version,
        NodeName:   nodeName,
        Alg:        AlgEd25519,
        PubKey:     append([]byte(nil), pub...),
        Nonce:      nonce,
        Timestamp:  time.Now().UnixMilli(),
        ListenAddr: listenAddr,
        Protocols:  append([]Protocol(nil), protocols...),
    }
    h.Sig = ed25519.Sign(priv, Transcript(h))
    return h, nil
}

// VerifyHello verifies signature and basic freshness of h and returns the
// sender's canonical id.
func VerifyHello(h Hello, maxSkew time.Duration) (string, error) {
    if h.Alg != AlgEd25519 {
        return "", fmt.Errorf("%w: unsupported alg %q", ErrInvalid, h.Alg)
    }
    if len(h.PubKey) != ed25519.PublicKeySize {
        return "", fmt.Errorf("%w: bad pubkey length", ErrInvalid)
    }
    if len(h.Sig) != ed25519.SignatureSize {
        return "", fmt.Errorf("%w: bad signature length", ErrInvalid)
    }
    if maxSkew <= 0 {
        maxSkew = 5 * time.Minute
    }
    now := time.Now().UnixMilli()
    if dt := now - h.Timestamp; dt > maxSkew.Milliseconds() || dt < -maxSkew.Milliseconds() {
        return "", fmt.Errorf("%w: timestamp out of bounds", ErrInvalid)
    }
    if !ed25519.Verify(ed25519.PublicKey(h.PubKey), Transcript(h), h.Sig) {
        return "", fmt.Errorf("%w: signature invalid", ErrInvalid)
    }
    return identity.CanonicalID(AlgEd25519, h.PubKey), nil
}

// Shared returns the protocols both hellos list, with the lower version.
func Shared(local, remote []Protocol) []Protocol {
    var out []Protocol
    for _, l := range local {
        for _, r := range remote {
            if l.ID == r.ID {
                out = append(out, Protocol{ID: l.ID, Version: min(l.Version, r.Version)})
                break
            }
        }
    }
    return out
}

// Transcript builds the canonical byte string that is signed. Format:
//
//	cita-p2p:hello|v=1|alg=<alg>|ts=<unix_ms>|pub=<b64url>|nonce=<b64url>|name=<name>|listen=<addr>|protos=<id>/<ver>,...
func Transcript(h Hello) []byte {
    b64 := base64.RawURLEncoding
    var sb strings.Builder
    sb.Grow(96 + len(h.NodeName) + len(h.ListenAddr))
    sb.WriteString("cita-p2p:hello|v=")
    sb.WriteString(strconv.FormatUint(uint64(h.Version), 10))
    sb.WriteString("|alg=")
    sb.WriteString(strings.ToLower(strings.TrimSpace(h.Alg)))
    sb.WriteString("|ts=")
    sb.WriteString(strconv.FormatInt(h.Timestamp, 10))
    sb.WriteString("|pub=")
    sb.WriteString(b64.EncodeToString(h.PubKey))
    sb.WriteString("|nonce=")
    sb.WriteString(b64.EncodeToString(h.Nonce))
    sb.WriteString("|name=")
    sb.WriteString(strconv.Quote(h.NodeName))
    sb.WriteString("|listen=")
    sb.WriteString(strconv.Quote(h.ListenAddr))
    sb.WriteString("|protos=")
    for i, p := range h.Protocols {
        if i > 0 {
            sb.WriteByte(',')
        }
        sb.WriteString(strconv.FormatUint(uint64(p.ID), 10))
        sb.WriteByte('/')
        sb.WriteString(strconv.FormatUint(uint64(p.Version), 10))
    }
    return []byte(sb.String())
}
