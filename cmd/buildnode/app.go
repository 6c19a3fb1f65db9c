package main

import (
    "context"
    "fmt"
    "os"
    "path/filepath"

    "go.uber.org/zap"

    "buildnode/pkg/catalog"
    "buildnode/pkg/config"
    "buildnode/pkg/events"
    "buildnode/pkg/launcher"
    "buildnode/pkg/observability"
    "buildnode/pkg/provider"
)

// app holds what every subcommand sets up from the configuration.
type app struct {
    cfg     *config.Config
    log     *zap.Logger
    closers []func()
}

func setup(configPath string) (*app, error) {
    cfg, err := config.Load(configPath)
    if err != nil { return nil, fmt.Errorf("failed to load config: %w", err) }
    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil { return nil, fmt.Errorf("failed to setup logger: %w", err) }
    a := &app{cfg: cfg, log: logger}
    a.onClose(func() { _ = logger.Sync() })
    return a, nil
}

func (a *app) onClose(f func()) { a.closers = append(a.closers, f) }

func (a *app) close() {
    for i := len(a.closers) - 1; i >= 0; i-- { a.closers[i]() }
}

// provider assembles a Provider with the configured launcher, catalog,
// metrics, tracing and event sinks.
func (a *app) provider(ctx context.Context, o func(*provider.Options)) (*provider.Provider, error) {
    cfg := a.cfg
    opts, err := provider.FromConfig(cfg)
    if err != nil { return nil, err }

    ex := launcher.New()
    if cfg.Launcher.StderrTailBytes > 0 { ex.TailBytes = cfg.Launcher.StderrTailBytes }
    opts.Launcher = ex
    opts.Logger = a.log

    // Nodes inherit the host's configuration file.
    if configPath != "" {
        if abs, err := filepath.Abs(configPath); err == nil { opts.Env = append(opts.Env, "BUILDNODE_CONFIG="+abs) }
    }

    cat, err := catalog.Open(cfg.Catalog.Kind, cfg.Catalog.Path)
    if err != nil { return nil, fmt.Errorf("open catalog: %w", err) }
    a.onClose(func() { _ = cat.Close() })
    opts.Catalog = cat

    opts.Metrics = observability.NewMetrics(nil)
    if cfg.Metrics.Enable {
        mctx, cancel := context.WithCancel(ctx)
        a.onClose(cancel)
        go func() {
            if err := observability.ServeMetrics(mctx, cfg.Metrics.Listen, opts.Metrics); err != nil {
                a.log.Warn("metrics server stopped", zap.Error(err))
            }
        }()
    }

    if cfg.Tracing.Enable {
        shutdown, err := observability.SetupTracing(os.Stderr, cfg.Tracing.Pretty)
        if err != nil { return nil, fmt.Errorf("setup tracing: %w", err) }
        a.onClose(func() { _ = shutdown(context.Background()) })
    }

    sinks := events.Multi{events.LogSink{Logger: a.log}}
    if cfg.Events.NATSURL != "" {
        nc, err := events.ConnectNATS(cfg.Events.NATSURL, cfg.AppName)
        if err != nil {
            a.log.Warn("event bus unavailable; logging events only", zap.String("url", cfg.Events.NATSURL), zap.Error(err))
        } else {
            a.onClose(func() { _ = nc.Drain() })
            sinks = append(sinks, events.NewNATSSink(nc, cfg.Events.Subject))
        }
    }
    opts.Events = sinks

    if o != nil { o(&opts) }
    return provider.New(opts)
}
