package main

import (
    "context"
    "fmt"
    "os"
    "os/signal"
    "syscall"

    "github.com/spf13/cobra"
    "go.uber.org/zap"

    "buildnode/pkg/core/netstack"
    "buildnode/pkg/launcher"
    "buildnode/pkg/provider"
    "buildnode/pkg/worker"
)

// newWorkerCmd is what hosts launch. Its arguments are exactly the node
// command line, so cobra's flag parsing is off.
func newWorkerCmd() *cobra.Command {
    return &cobra.Command{
        Use:                launcher.CommandWorker + " --node-mode=1 --node-reuse=<bool> --low-priority=<bool> --endpoint=<kind>://<address>",
        Short:              "Serve build requests from one host at a time",
        Hidden:             true,
        DisableFlagParsing: true,
        RunE: func(cmd *cobra.Command, args []string) error {
            return runWorker(cmd.Context(), append([]string{launcher.CommandWorker}, args...))
        },
    }
}

func runWorker(ctx context.Context, args []string) error {
    flags, err := launcher.ParseNodeArgs(args)
    if err != nil { return err }
    a, err := setup(configPath)
    if err != nil { return err }
    defer a.close()
    if ctx == nil { ctx = context.Background() }
    ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    // A lingering node keeps running after the host holding its stdio exits.
    signal.Ignore(syscall.SIGPIPE)

    tr, err := netstack.NewByKind(flags.Endpoint.Kind)
    if err != nil { return fmt.Errorf("transport: %w", err) }
    h := provider.ToolsetFromConfig(a.cfg.Toolset).Handshake(flags.NodeReuse, flags.LowPriority, false)
    ep, err := worker.New(worker.Options{
        Transport:        tr,
        Address:          flags.Endpoint.Address,
        Handshake:        h,
        IdleTimeout:      a.cfg.Pool.IdleTTL(),
        HandshakeTimeout: a.cfg.Pool.HandshakeTimeout(),
        Logger:           a.log.With(zap.Int("pid", os.Getpid())),
    })
    if err != nil { return err }
    return ep.Run(ctx)
}
