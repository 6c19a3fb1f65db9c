package netstack

import (
    "os"
    "testing"
)

func filepathShortTemp(t *testing.T) (string, error) {
    dir, err := os.MkdirTemp("", "bn")
    if err != nil { return "", err }
    t.Cleanup(func() { _ = os.RemoveAll(dir) })
    return dir, nil
}
