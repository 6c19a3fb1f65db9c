package main

import (
    "testing"

    "github.com/stretchr/testify/assert"
)

func TestWorkerRejectsForeignCommandLine(t *testing.T) {
    assert.Equal(t, 1, execute([]string{"worker", "--node-mode=2", "--node-reuse=false", "--low-priority=false", "--endpoint=mem://x"}))
    assert.Equal(t, 1, execute([]string{"worker"}))
}

func TestUnknownCommand(t *testing.T) {
    assert.Equal(t, 1, execute([]string{"frobnicate"}))
}
