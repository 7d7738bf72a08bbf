package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "go.uber.org/zap"

    "meshnode/pkg/config"
    "meshnode/pkg/meshnode"
    "meshnode/pkg/observability"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()
    zap.ReplaceGlobals(logger)

    logger.Info("meshnode-node starting", zap.String("app", cfg.AppName))
    logger.Debug("effective configuration", zap.Any("config", cfg))

    n, err := meshnode.New(cfg, logger)
    if err != nil {
        logger.Error("failed to build node", zap.Error(err))
        return 1
    }
    defer func() {
        if err := n.Close(); err != nil {
            logger.Warn("close failed", zap.Error(err))
        }
    }()

    logger.Info("local identity", zap.String("endpoint_id", string(n.Self().ID)))

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    if err := n.Start(ctx); err != nil {
        logger.Error("failed to start transports", zap.Error(err))
        return 1
    }

    sig := make(chan os.Signal, 1)
    signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

    logger.Info("node is running; press Ctrl+C to exit")
    <-sig
    logger.Info("shutting down")
    return 0
}
