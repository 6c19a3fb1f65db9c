package handshake

import (
    "hash/fnv"
    "os"
    "strconv"
    "strings"

    version "github.com/hashicorp/go-version"
)

// SaltEnv names the environment variable mixed into every handshake salt.
const SaltEnv = "BUILDNODE_HANDSHAKE_SALT"

// ToolsetVersion is the version hosts and nodes of this build agree on.
// Overridden at link time with -X buildnode/pkg/handshake.ToolsetVersion=...
var ToolsetVersion = "1.0.0"

// Toolset holds the inputs a handshake is derived from.
type Toolset struct {
    Version string
    Salt    string
    Is64Bit bool
}

// DefaultToolset describes the running process.
func DefaultToolset() Toolset {
    return Toolset{Version: ToolsetVersion, Salt: os.Getenv(SaltEnv), Is64Bit: strconv.IntSize == 64}
}

// Compute derives the handshake of the running process.
func Compute(nodeReuse, lowPriority, taskHost bool) Handshake {
    return DefaultToolset().Handshake(nodeReuse, lowPriority, taskHost)
}

// Handshake derives the handshake for the given flags. The result is a pure
// function of the toolset and the flags.
func (ts Toolset) Handshake(nodeReuse, lowPriority, taskHost bool) Handshake {
    var o Options
    if ts.Is64Bit { o |= Is64Bit }
    if nodeReuse { o |= NodeReuse }
    if lowPriority { o |= LowPriority }
    if taskHost { o |= TaskHost }
    return Handshake{Options: o, Salt: ts.salt()}
}

func (ts Toolset) salt() int32 {
    h := fnv.New32a()
    _, _ = h.Write([]byte(canonicalVersion(ts.Version)))
    _, _ = h.Write([]byte{0})
    _, _ = h.Write([]byte(ts.Salt))
    return int32(h.Sum32())
}

// canonicalVersion normalizes equivalent spellings ("17.8" and "v17.8.0").
// Strings that are not versions are used verbatim.
func canonicalVersion(s string) string {
    s = strings.TrimSpace(s)
    v, err := version.NewVersion(s)
    if err != nil { return s }
    segs := v.Segments()
    parts := make([]string, len(segs))
    for i, n := range segs { parts[i] = strconv.Itoa(n) }
    out := strings.Join(parts, ".")
    if pre := v.Prerelease(); pre != "" { out += "-" + pre }
    return out
}
