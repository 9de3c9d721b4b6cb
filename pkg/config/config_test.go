package config

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
    cfg, err := Load("")
    require.NoError(t, err)
    require.Equal(t, "tcp", cfg.Net.Transport)
    require.Equal(t, AnnounceOutbound, cfg.Gossip.Announce)
    require.Equal(t, OrderFIFO, cfg.Service.ControlOrder)
    require.True(t, cfg.Gossip.MergeReturned)
    require.Equal(t, 0, cfg.Table.MaxEntries)
}

func TestLoadFileAndEnv(t *testing.T) {
    dir := t.TempDir()
    path := filepath.Join(dir, "node.yaml")
    yaml := `
net:
  transport: QUIC
  listen: "127.0.0.1:4433"
  dial: ["127.0.0.1:4434"]
gossip:
  announce: always
  broadcast: true
service:
  control_order: lifo
table:
  max_entries: 64
`
    require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
    t.Setenv("P2P_LOG_LEVEL", "debug")

    cfg, err := Load(path)
    require.NoError(t, err)
    require.Equal(t, "quic", cfg.Net.Transport)
    require.Equal(t, []string{"127.0.0.1:4434"}, cfg.Net.Dial)
    require.Equal(t, AnnounceAlways, cfg.Gossip.Announce)
    require.True(t, cfg.Gossip.Broadcast)
    require.Equal(t, OrderLIFO, cfg.Service.ControlOrder)
    require.Equal(t, 64, cfg.Table.MaxEntries)
    require.Equal(t, "debug", cfg.Log.Level)
    // untouched defaults survive a partial file
    require.Equal(t, 20, cfg.Net.TickIntervalMS)
}

func TestValidateRejects(t *testing.T) {
    cases := map[string]func(c *Config){
        "level":    func(c *Config) { c.Log.Level = "loud" },
        "announce": func(c *Config) { c.Gossip.Announce = "sometimes" },
        "order":    func(c *Config) { c.Service.ControlOrder = "random" },
        "listen":   func(c *Config) { c.Net.Listen = " " },
        "capacity": func(c *Config) { c.Bridge.EventCapacity = -1 },
    }
    for name, mutate := range cases {
        t.Run(name, func(t *testing.T) {
            c := Default()
            mutate(c)
            require.Error(t, c.Validate())
        })
    }
}
