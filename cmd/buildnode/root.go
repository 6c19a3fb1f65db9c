package main

import (
    "fmt"
    "os"

    "github.com/spf13/cobra"
)

var configPath string

func newRootCmd() *cobra.Command {
    root := &cobra.Command{
        Use:           "buildnode",
        Short:         "Out-of-process build node host and worker",
        SilenceUsage:  true,
        SilenceErrors: true,
    }
    root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (also BUILDNODE_CONFIG)")
    root.CompletionOptions.DisableDefaultCmd = true
    root.AddCommand(newHostCmd(), newWorkerCmd(), newShutdownIdleCmd())
    return root
}

func execute(args []string) int {
    root := newRootCmd()
    root.SetArgs(args)
    if err := root.Execute(); err != nil {
        fmt.Fprintln(os.Stderr, err)
        return 1
    }
    return 0
}
