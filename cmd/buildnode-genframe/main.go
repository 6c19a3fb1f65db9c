// Command buildnode-genframe writes reference wire fixtures: handshakes and
// one frame per packet type.
package main

import (
    "encoding/hex"
    "flag"
    "fmt"
    "log"
    "os"
    "path/filepath"
    "strings"

    "buildnode/pkg/handshake"
    "buildnode/pkg/packet"
    "buildnode/pkg/protocol"
    "buildnode/pkg/protocol/codec"
)

func main() {
    outDir := flag.String("out", "testdata/frame", "output directory for binary frames")
    version := flag.String("toolset", "17.8.0", "toolset version the handshakes are derived from")
    flag.Parse()
    if err := os.MkdirAll(*outDir, 0o755); err != nil { log.Fatal(err) }

    ts := handshake.Toolset{Version: *version, Is64Bit: true}
    writeOut(*outDir, "handshake_plain.bin", handshake.Encode(ts.Handshake(false, false, false)))
    writeOut(*outDir, "handshake_reuse_low.bin", handshake.Encode(ts.Handshake(true, true, false)))

    cfg := &packet.NodeConfiguration{
        NodeID:           1,
        MaxNodeCount:     4,
        EnableNodeReuse:  true,
        ToolsetVersion:   *version,
        WorkingDirectory: "/src",
        Environment:      map[string]string{"PATH": "/usr/bin"},
        GlobalProperties: map[string]string{"Configuration": "Release"},
    }
    writeOut(*outDir, "frame_configuration.bin", mustFrame(cfg))
    writeOut(*outDir, "frame_build_complete.bin", mustFrame(&packet.NodeBuildComplete{PrepareForReuse: true}))
    writeOut(*outDir, "frame_shutdown_reuse.bin", mustFrame(&packet.NodeShutdown{Reason: packet.ReasonBuildCompleteReuse}))
    writeOut(*outDir, "frame_shutdown_error.bin", mustFrame(&packet.NodeShutdown{Reason: packet.ReasonError, Error: "out of memory"}))
    writeOut(*outDir, "frame_task_cancelled.bin", mustFrame(&packet.TaskCancelled{}))

    reg := codec.MustRegistry()
    for _, f := range []protocol.Format{protocol.FormatJSON, protocol.FormatCBOR} {
        pl, err := packet.NewPayload(reg, "compile", 7, f, map[string]any{"target": "lib", "incremental": true})
        if err != nil { log.Fatal(err) }
        writeOut(*outDir, fmt.Sprintf("frame_payload_%s.bin", strings.ToLower(f.String())), mustFrame(pl))
    }

    fmt.Println("Generated frames in", *outDir)
}

func mustFrame(p packet.Packet) []byte {
    b, err := packet.EncodeFrame(p)
    if err != nil { log.Fatal(err) }
    return b
}

func writeOut(dir, name string, b []byte) {
    p := filepath.Join(dir, name)
    if err := os.WriteFile(p, b, 0o644); err != nil { log.Fatal(err) }
    fmt.Printf("%-28s %5d bytes  head: %s\n", name, len(b), shortHex(b, 32))
}

func shortHex(b []byte, n int) string {
    if len(b) == 0 { return "" }
    if n > len(b) { n = len(b) }
    enc := hex.EncodeToString(b[:n])
    if len(b) > n { enc += "..." }
    var out []string
    for i := 0; i < len(enc); i += 4 {
        j := min(i+4, len(enc))
        out = append(out, enc[i:j])
    }
    return strings.Join(out, " ")
}
