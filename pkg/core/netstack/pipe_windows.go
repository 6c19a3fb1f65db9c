//go:build windows

package netstack

import (
    "buildnode/pkg/transport"
    "buildnode/pkg/transport/winpipe"
)

func newWinPipeTransport() (transport.Transport, error) { return winpipe.New(), nil }

func newPipeTransport() (transport.Transport, error) { return winpipe.New(), nil }

// pipeAddress returns a pipe name; dir has no meaning for named pipes.
func pipeAddress(_ string, name string) string { return `\\.\pipe\` + name }
