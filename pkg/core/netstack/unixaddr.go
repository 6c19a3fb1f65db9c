package netstack

import (
    "os"
    "path/filepath"
)

func unixAddress(dir, name string) string {
    if dir == "" { dir = os.TempDir() }
    return filepath.Join(dir, name+".sock")
}
