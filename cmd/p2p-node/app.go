package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "go.uber.org/zap"

    "github.com/cryptape/cita-p2p/pkg/config"
    "github.com/cryptape/cita-p2p/pkg/node"
    "github.com/cryptape/cita-p2p/pkg/observability"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }
    if opts.DialAddress != "" {
        cfg.Net.Dial = append(cfg.Net.Dial, opts.DialAddress)
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()

    zap.L().Info("p2p-node starting", zap.String("app", cfg.AppName))
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    n, err := node.New(cfg)
    if err != nil {
        zap.L().Error("failed to build node", zap.Error(err))
        return 1
    }
    if err := n.Run(ctx); err != nil {
        zap.L().Error("node stopped", zap.Error(err))
        return 1
    }
    zap.L().Info("p2p-node stopped")
    return 0
}
