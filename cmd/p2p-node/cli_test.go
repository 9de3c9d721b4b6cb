package main

import (
    "testing"

    "github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
    require.Equal(t, Options{}, ParseFlags(nil))
    require.Equal(t, Options{ConfigPath: "p2p.yaml", DialAddress: "127.0.0.1:1337"},
        ParseFlags([]string{"-config", "p2p.yaml", "127.0.0.1:1337"}))
}
