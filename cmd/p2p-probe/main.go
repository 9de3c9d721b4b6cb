// p2p-probe joins a network for a moment: it dials one node, announces
// itself, waits for the node's address table and prints it as JSON.
package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "os"
    "time"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/config"
    "github.com/cryptape/cita-p2p/pkg/node"
    "github.com/cryptape/cita-p2p/pkg/observability"
)

func main() {
    addr := flag.String("addr", "127.0.0.1:1337", "node address to connect to")
    kind := flag.String("kind", "tcp", "transport kind: tcp|quic|udp|winpipe")
    name := flag.String("name", "p2p-probe", "node name sent in hello")
    timeout := flag.Duration("timeout", 5*time.Second, "overall timeout")
    verbose := flag.Bool("v", false, "log to stderr")
    flag.Parse()

    cfg := config.Default()
    cfg.NodeName = *name
    cfg.Net.Transport = *kind
    cfg.Log.Outputs = []string{"stderr"}
    if !*verbose {
        cfg.Log.Level = "error"
    }
    if err := cfg.Validate(); err != nil {
        fatalf("config: %v", err)
    }
    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        fatalf("logger: %v", err)
    }
    defer func() { _ = logger.Sync() }()

    ctx, cancel := context.WithTimeout(context.Background(), *timeout)
    defer cancel()

    tables := make(chan map[string]int, 1)
    n, err := node.New(cfg, node.WithTableObserver(func(m map[string]int) {
        select {
        case tables <- m:
        default:
        }
    }))
    if err != nil {
        fatalf("new node: %v", err)
    }
    if err := n.Start(ctx); err != nil {
        fatalf("start: %v", err)
    }
    if err := n.Dial(*addr); err != nil {
        fatalf("dial: %v", err)
    }
    done := make(chan error, 1)
    go func() { done <- n.Run(ctx) }()

    select {
    case m := <-tables:
        cancel()
        <-done
        out, _ := json.MarshalIndent(map[string]any{"node": *addr, "probe": n.Addr(), "table": m}, "", "  ")
        fmt.Println(string(out))
    case <-ctx.Done():
        <-done
        zap.L().Error("no address table received", zap.String("addr", *addr))
        fatalf("timeout waiting for address table from %s", *addr)
    }
}

func fatalf(format string, a ...any) {
    fmt.Fprintf(os.Stderr, format+"\n", a...)
    os.Exit(1)
}
