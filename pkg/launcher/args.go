package launcher

import (
    "flag"
    "fmt"
    "io"
    "strconv"

    shellwords "github.com/mattn/go-shellwords"

    "buildnode/pkg/transport"
)

// Command line a node process is started with.
const (
    CommandWorker   = "worker"
    FlagNodeMode    = "node-mode"
    FlagNodeReuse   = "node-reuse"
    FlagLowPriority = "low-priority"
    FlagEndpoint    = "endpoint"

    // NodeModeOutOfProc is the only node mode: a worker process serving one host at a time.
    NodeModeOutOfProc = 1
)

// NodeFlags are the settings passed to a node on its command line. They feed
// the node's own handshake, so they must match what the host computed.
type NodeFlags struct {
    NodeReuse   bool
    LowPriority bool
    Endpoint    transport.Endpoint
}

// Args renders the worker command line.
func (f NodeFlags) Args() []string {
    return []string{
        CommandWorker,
        "--" + FlagNodeMode + "=" + strconv.Itoa(NodeModeOutOfProc),
        "--" + FlagNodeReuse + "=" + strconv.FormatBool(f.NodeReuse),
        "--" + FlagLowPriority + "=" + strconv.FormatBool(f.LowPriority),
        "--" + FlagEndpoint + "=" + f.Endpoint.String(),
    }
}

// ParseNodeArgs reverses Args. Unknown flags after the known ones are ignored
// so that extra arguments can follow.
func ParseNodeArgs(args []string) (NodeFlags, error) {
    if len(args) < 5 || args[0] != CommandWorker { return NodeFlags{}, fmt.Errorf("not a %s command line: %q", CommandWorker, args) }
    fs := flag.NewFlagSet(CommandWorker, flag.ContinueOnError)
    fs.SetOutput(io.Discard)
    mode := fs.Int(FlagNodeMode, 0, "")
    reuse := fs.Bool(FlagNodeReuse, false, "")
    low := fs.Bool(FlagLowPriority, false, "")
    ep := fs.String(FlagEndpoint, "", "")
    if err := fs.Parse(args[1:5:5]); err != nil { return NodeFlags{}, err }
    if *mode != NodeModeOutOfProc { return NodeFlags{}, fmt.Errorf("unsupported node mode %d", *mode) }
    endpoint, err := transport.ParseEndpoint(*ep)
    if err != nil { return NodeFlags{}, err }
    return NodeFlags{NodeReuse: *reuse, LowPriority: *low, Endpoint: endpoint}, nil
}

// SplitArgs parses a shell-quoted argument string, e.g. extra node arguments
// from configuration.
func SplitArgs(s string) ([]string, error) {
    if s == "" { return nil, nil }
    p := shellwords.NewParser()
    p.ParseEnv = true
    args, err := p.Parse(s)
    if err != nil { return nil, fmt.Errorf("parse arguments %q: %w", s, err) }
    return args, nil
}
