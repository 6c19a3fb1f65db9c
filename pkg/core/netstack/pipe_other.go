//go:build !windows

package netstack

import (
    "fmt"

    "buildnode/pkg/transport"
    tunix "buildnode/pkg/transport/unix"
)

func newWinPipeTransport() (transport.Transport, error) { return nil, fmt.Errorf("winpipe transport is not supported on this platform") }

func newPipeTransport() (transport.Transport, error) { return tunix.New(), nil }

// pipeAddress returns a socket path under dir (default: the temp dir).
func pipeAddress(dir, name string) string { return unixAddress(dir, name) }
