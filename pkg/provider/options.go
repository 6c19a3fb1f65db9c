package provider

import (
    "fmt"
    "time"

    "go.uber.org/zap"

    "buildnode/pkg/api"
    "buildnode/pkg/catalog"
    "buildnode/pkg/config"
    "buildnode/pkg/core/netstack"
    "buildnode/pkg/events"
    "buildnode/pkg/handshake"
    "buildnode/pkg/launcher"
    "buildnode/pkg/observability"
    "buildnode/pkg/packet"
    "buildnode/pkg/transport"
)

// BuildParameters are the per-request settings of CreateNode. They select
// the handshake a node must present.
type BuildParameters struct {
    NodeReuse   bool
    LowPriority bool
    // Configuration is sent to every node right after the handshake with
    // the node's own id filled in. Nil sends an otherwise empty one.
    Configuration *packet.NodeConfiguration
}

// Options configures a Provider. Zero durations take defaults.
type Options struct {
    MaxNodeCount int
    Launcher     api.Launcher

    // Transport serves EndpointKind; nil builds one with netstack. Other
    // kinds found in the idle catalog always go through netstack.
    Transport    transport.Transport
    EndpointKind transport.Kind
    EndpointDir  string

    NodeExe   string
    ExtraArgs []string
    Env       []string

    Toolset handshake.Toolset
    Catalog catalog.Catalog

    Factory api.PacketFactory
    Handler api.PacketHandler
    // OnNodeTerminated is called once for every registered node that went away.
    OnNodeTerminated func(id int, cause error)

    Events  events.Sink
    Metrics *observability.Metrics
    Logger  *zap.Logger

    HandshakeTimeout time.Duration
    ConnectTimeout   time.Duration
    ShutdownGrace    time.Duration
    DrainTimeout     time.Duration
    KillTimeout      time.Duration
    IdleTTL          time.Duration
    Backoff          netstack.Backoff
}

const (
    defaultHandshakeTimeout = 15 * time.Second
    defaultConnectTimeout   = 30 * time.Second
    defaultShutdownGrace    = 5 * time.Second
    defaultKillTimeout      = 5 * time.Second
)

func (o *Options) withDefaults() error {
    if o.MaxNodeCount < 1 { return fmt.Errorf("provider: max node count must be >= 1, got %d", o.MaxNodeCount) }
    if o.Launcher == nil { return fmt.Errorf("provider: launcher is required") }
    if o.EndpointKind == transport.KindUnknown {
        o.EndpointKind = transport.KindPipe
        if o.Transport != nil { o.EndpointKind = o.Transport.Kind() }
    }
    if o.Toolset == (handshake.Toolset{}) { o.Toolset = handshake.DefaultToolset() }
    if o.Catalog == nil { o.Catalog = catalog.Nop{} }
    if o.Factory == nil { o.Factory = packet.DefaultRegistry() }
    if o.Logger == nil { o.Logger = zap.L() }
    if o.Events == nil { o.Events = events.LogSink{Logger: o.Logger} }
    if o.Metrics == nil { o.Metrics = observability.NewMetrics(nil) }
    if o.HandshakeTimeout <= 0 { o.HandshakeTimeout = defaultHandshakeTimeout }
    if o.ConnectTimeout <= 0 { o.ConnectTimeout = defaultConnectTimeout }
    if o.ShutdownGrace <= 0 { o.ShutdownGrace = defaultShutdownGrace }
    if o.KillTimeout <= 0 { o.KillTimeout = defaultKillTimeout }
    if o.Backoff == (netstack.Backoff{}) { o.Backoff = netstack.DefaultBackoff() }
    return nil
}

// FromConfig fills Options from the loaded configuration. Collaborators
// (launcher, catalog, sinks, metrics) are left to the caller.
func FromConfig(cfg *config.Config) (Options, error) {
    kind, err := transport.ParseKind(cfg.Transport.Kind)
    if err != nil { return Options{}, err }
    extra, err := launcher.SplitArgs(cfg.Launcher.ExtraArgs)
    if err != nil { return Options{}, err }
    return Options{
        MaxNodeCount:     cfg.Pool.MaxNodeCount,
        EndpointKind:     kind,
        EndpointDir:      cfg.Launcher.EndpointDir,
        NodeExe:          cfg.Launcher.NodeExe,
        ExtraArgs:        extra,
        Toolset:          ToolsetFromConfig(cfg.Toolset),
        HandshakeTimeout: cfg.Pool.HandshakeTimeout(),
        ConnectTimeout:   cfg.Transport.ConnectTimeout(),
        ShutdownGrace:    cfg.Pool.ShutdownGrace(),
        DrainTimeout:     cfg.Pool.DrainTimeout(),
        KillTimeout:      cfg.Pool.KillTimeout(),
        IdleTTL:          cfg.Pool.IdleTTL(),
        Backoff: netstack.Backoff{
            Initial: time.Duration(cfg.Transport.ConnectBackoffInitialMS) * time.Millisecond,
            Max:     time.Duration(cfg.Transport.ConnectBackoffMaxMS) * time.Millisecond,
            Jitter:  time.Duration(cfg.Transport.ConnectBackoffJitterMS) * time.Millisecond,
        },
    }, nil
}

// ToolsetFromConfig overrides the running process's toolset with the
// configured version and salt. Host and worker must both derive their
// handshakes through it.
func ToolsetFromConfig(c config.ToolsetConfig) handshake.Toolset {
    ts := handshake.DefaultToolset()
    if c.Version != "" { ts.Version = c.Version }
    if c.Salt != "" { ts.Salt = c.Salt }
    return ts
}
