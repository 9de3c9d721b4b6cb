package codec

import (
    "testing"

    "github.com/stretchr/testify/require"
    "google.golang.org/protobuf/types/known/structpb"
)

func TestJSONCodecSortsKeys(t *testing.T) {
    c := JSON()
    b, err := c.Marshal(map[string]int{"b": 2, "a": 1})
    require.NoError(t, err)
    require.Equal(t, `{"a":1,"b":2}`, string(b))

    var out map[string]int
    require.NoError(t, c.Unmarshal(b, &out))
    require.Equal(t, map[string]int{"a": 1, "b": 2}, out)
}

func TestCBORCodec(t *testing.T) {
    c, err := CBOR()
    require.NoError(t, err)
    type rec struct {
        N int    `json:"n"`
        S string `json:"s"`
    }
    b, err := c.Marshal(rec{N: 42, S: "x"})
    require.NoError(t, err)
    var out rec
    require.NoError(t, c.Unmarshal(b, &out))
    require.Equal(t, rec{N: 42, S: "x"}, out)
}

func TestProtoCodec(t *testing.T) {
    c := Proto()
    s, err := structpb.NewStruct(map[string]any{"k": "v"})
    require.NoError(t, err)
    b, err := c.Marshal(s)
    require.NoError(t, err)
    var out structpb.Struct
    require.NoError(t, c.Unmarshal(b, &out))
    require.Equal(t, "v", out.Fields["k"].GetStringValue())

    _, err = c.Marshal(map[string]string{})
    require.Error(t, err)
}

func TestRegistryLookup(t *testing.T) {
    r, err := NewRegistry()
    require.NoError(t, err)
    for _, name := range []string{"json", "JSON", "application/json", "cbor", "proto", "application/x-protobuf"} {
        _, err := r.Lookup(name)
        require.NoError(t, err, name)
    }
    _, err = r.Lookup("yaml")
    require.Error(t, err)
}
