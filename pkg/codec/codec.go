// Package codec holds the value codecs used on the wire: JSON for gossip
// envelopes, CBOR for driver frames and Protobuf for structured experiments.
package codec

import (
    "fmt"
    "strings"
)

// Codec marshals typed values. Implementations must be deterministic so that
// two nodes serialising the same value produce the same bytes.
type Codec interface {
    Name() string
    ContentType() string
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Registry maps short names and content types to codecs.
type Registry struct {
    byName map[string]Codec
    byType map[string]Codec
}

// NewRegistry returns a registry preloaded with JSON, CBOR and Protobuf.
func NewRegistry() (*Registry, error) {
    r := &Registry{byName: make(map[string]Codec), byType: make(map[string]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    c, err := CBOR()
    if err != nil {
        return nil, fmt.Errorf("cbor codec: %w", err)
    }
    r.Register(c)
    return r, nil
}

// Register adds c under its name and content type.
func (r *Registry) Register(c Codec) {
    r.byName[c.Name()] = c
    r.byType[c.ContentType()] = c
}

// Lookup accepts either a short name ("json") or a content type.
func (r *Registry) Lookup(name string) (Codec, error) {
    key := strings.ToLower(strings.TrimSpace(name))
    if c, ok := r.byName[key]; ok {
        return c, nil
    }
    if c, ok := r.byType[key]; ok {
        return c, nil
    }
    return nil, fmt.Errorf("unknown codec %q", name)
}
