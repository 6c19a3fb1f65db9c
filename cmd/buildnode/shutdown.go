package main

import (
    "context"

    "github.com/spf13/cobra"
)

func newShutdownIdleCmd() *cobra.Command {
    var reuse bool
    cmd := &cobra.Command{
        Use:   "shutdown-idle",
        Short: "Stop every idle node recorded in the catalog",
        Long: `Connects to each node that lingered for reuse after an earlier build and
asks it to exit. Both priority variants of the handshake are tried.`,
        RunE: func(cmd *cobra.Command, _ []string) error {
            a, err := setup(configPath)
            if err != nil { return err }
            defer a.close()
            ctx := cmd.Context()
            if ctx == nil { ctx = context.Background() }
            p, err := a.provider(ctx, nil)
            if err != nil { return err }
            if err := p.ShutdownAll(ctx, reuse); err != nil { return err }
            a.log.Info("idle nodes shut down")
            return nil
        },
    }
    cmd.Flags().BoolVar(&reuse, "reuse", true, "handshake as a reuse-enabled host")
    return cmd
}
