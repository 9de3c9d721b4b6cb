package config

import "time"

// NetConfig configures the network context.
// Example YAML:
// net:
//   transport: tcp            # tcp | quic | udp | mem | winpipe
//   listen: "0.0.0.0:1337"
//   advertise: "10.0.0.5:1337"
//   dial: ["10.0.0.2:1337"]
type NetConfig struct {
    Transport string   `mapstructure:"transport"`
    Listen    string   `mapstructure:"listen"`
    // Advertise overrides the address announced to peers; the bound listen
    // address is used when empty
    Advertise string   `mapstructure:"advertise"`
    Dial      []string `mapstructure:"dial"`

    TickIntervalMS int `mapstructure:"tick_interval_ms"`
    HelloTimeoutMS int `mapstructure:"hello_timeout_ms"`
    DialTimeoutMS  int `mapstructure:"dial_timeout_ms"`
    MaxFrameBytes  int `mapstructure:"max_frame_bytes"`
    // SendBuffer is the per-connection outbound frame buffer; frames are
    // dropped when it is full
    SendBuffer int `mapstructure:"send_buffer"`
}

func (n NetConfig) TickInterval() time.Duration { return time.Duration(n.TickIntervalMS) * time.Millisecond }
func (n NetConfig) HelloTimeout() time.Duration { return time.Duration(n.HelloTimeoutMS) * time.Millisecond }
func (n NetConfig) DialTimeout() time.Duration  { return time.Duration(n.DialTimeoutMS) * time.Millisecond }
