// Package config provides YAML/env configuration loading for the p2p node.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // AppName logical name of the application, used in logs
    AppName string `mapstructure:"app_name"`

    // NodeName is the human readable name sent in hello; random when empty
    NodeName string `mapstructure:"node_name"`

    Log      LogConfig      `mapstructure:"log"`
    Identity IdentityConfig `mapstructure:"identity"`
    Net      NetConfig      `mapstructure:"net"`
    Gossip   GossipConfig   `mapstructure:"gossip"`
    Table    TableConfig    `mapstructure:"table"`
    Bridge   BridgeConfig   `mapstructure:"bridge"`
    Service  ServiceConfig  `mapstructure:"service"`
    Peers    PeersConfig    `mapstructure:"peers"`
    Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    Rotation    RotationConfig `mapstructure:"rotation"`
    Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
    return &Config{
        AppName: "cita-p2p",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/p2p.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Identity: IdentityConfig{Alg: "ed25519"},
        Net: NetConfig{
            Transport:      "tcp",
            Listen:         "127.0.0.1:0",
            TickIntervalMS: 20,
            HelloTimeoutMS: 5000,
            DialTimeoutMS:  10000,
            MaxFrameBytes:  1 << 24,
            SendBuffer:     256,
        },
        Gossip: GossipConfig{
            ProtocolID:    0,
            Codec:         "json",
            Announce:      AnnounceOutbound,
            MergeReturned: true,
        },
        Service: ServiceConfig{ControlOrder: OrderFIFO},
        Peers:   PeersConfig{MaxEntries: 1024, TTLMS: 5 * 60 * 1000},
    }
}

// Load reads configuration from path (if non-empty), otherwise it searches
// common locations. Environment variables use the prefix P2P and `.`/`-` are
// replaced with `_`, e.g. P2P_GOSSIP_ANNOUNCE=always.
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("P2P")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("node_name", cfg.NodeName)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
    v.SetDefault("identity.alg", cfg.Identity.Alg)
    v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
    v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
    v.SetDefault("net.transport", cfg.Net.Transport)
    v.SetDefault("net.listen", cfg.Net.Listen)
    v.SetDefault("net.advertise", cfg.Net.Advertise)
    v.SetDefault("net.dial", cfg.Net.Dial)
    v.SetDefault("net.tick_interval_ms", cfg.Net.TickIntervalMS)
    v.SetDefault("net.hello_timeout_ms", cfg.Net.HelloTimeoutMS)
    v.SetDefault("net.dial_timeout_ms", cfg.Net.DialTimeoutMS)
    v.SetDefault("net.max_frame_bytes", cfg.Net.MaxFrameBytes)
    v.SetDefault("net.send_buffer", cfg.Net.SendBuffer)
    v.SetDefault("gossip.protocol_id", cfg.Gossip.ProtocolID)
    v.SetDefault("gossip.codec", cfg.Gossip.Codec)
    v.SetDefault("gossip.announce", cfg.Gossip.Announce)
    v.SetDefault("gossip.broadcast", cfg.Gossip.Broadcast)
    v.SetDefault("gossip.merge_returned", cfg.Gossip.MergeReturned)
    v.SetDefault("gossip.dial_discovered", cfg.Gossip.DialDiscovered)
    v.SetDefault("table.max_entries", cfg.Table.MaxEntries)
    v.SetDefault("bridge.command_capacity", cfg.Bridge.CommandCapacity)
    v.SetDefault("bridge.event_capacity", cfg.Bridge.EventCapacity)
    v.SetDefault("service.control_order", cfg.Service.ControlOrder)
    v.SetDefault("peers.max_entries", cfg.Peers.MaxEntries)
    v.SetDefault("peers.ttl_ms", cfg.Peers.TTLMS)
    v.SetDefault("metrics.listen", cfg.Metrics.Listen)

    if path == "" {
        if envPath := os.Getenv("P2P_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("p2p")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".p2p"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// Validate normalises enum-like fields and rejects values the node cannot run with.
func (c *Config) Validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }

    c.Net.Transport = strings.ToLower(strings.TrimSpace(c.Net.Transport))
    if c.Net.Transport == "" {
        c.Net.Transport = "tcp"
    }
    if strings.TrimSpace(c.Net.Listen) == "" {
        return errors.New("net.listen must not be empty")
    }
    if c.Net.TickIntervalMS <= 0 {
        c.Net.TickIntervalMS = 20
    }
    if c.Net.MaxFrameBytes <= 0 {
        c.Net.MaxFrameBytes = 1 << 24
    }
    if c.Net.SendBuffer <= 0 {
        c.Net.SendBuffer = 256
    }

    c.Gossip.Announce = AnnouncePolicy(strings.ToLower(strings.TrimSpace(string(c.Gossip.Announce))))
    switch c.Gossip.Announce {
    case AnnounceOutbound, AnnounceAlways, AnnounceNever:
    case "":
        c.Gossip.Announce = AnnounceOutbound
    default:
        return fmt.Errorf("invalid gossip.announce: %q", c.Gossip.Announce)
    }
    c.Gossip.Codec = strings.ToLower(strings.TrimSpace(c.Gossip.Codec))
    if c.Gossip.Codec == "" {
        c.Gossip.Codec = "json"
    }

    c.Service.ControlOrder = QueueOrder(strings.ToLower(strings.TrimSpace(string(c.Service.ControlOrder))))
    switch c.Service.ControlOrder {
    case OrderFIFO, OrderLIFO:
    case "":
        c.Service.ControlOrder = OrderFIFO
    default:
        return fmt.Errorf("invalid service.control_order: %q", c.Service.ControlOrder)
    }

    if c.Table.MaxEntries < 0 || c.Bridge.CommandCapacity < 0 || c.Bridge.EventCapacity < 0 {
        return errors.New("capacities must not be negative")
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
