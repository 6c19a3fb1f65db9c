// Package config provides YAML-based configuration loading for buildnode.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // AppName optional logical name used in logs and event subjects
    AppName string `mapstructure:"app_name"`

    // DataDir base directory for the persistent catalog and endpoint sockets
    DataDir string `mapstructure:"data_dir"`

    Log       LogConfig       `mapstructure:"log"`
    Pool      PoolConfig      `mapstructure:"pool"`
    Launcher  LauncherConfig  `mapstructure:"launcher"`
    Transport TransportConfig `mapstructure:"transport"`
    Catalog   CatalogConfig   `mapstructure:"catalog"`
    Toolset   ToolsetConfig   `mapstructure:"toolset"`
    Metrics   MetricsConfig   `mapstructure:"metrics"`
    Tracing   TracingConfig   `mapstructure:"tracing"`
    Events    EventsConfig    `mapstructure:"events"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    Rotation    RotationConfig `mapstructure:"rotation"`
    Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
    Enable     bool   `mapstructure:"enable"`
    Filename   string `mapstructure:"filename"`
    MaxSizeMB  int    `mapstructure:"max_size_mb"`
    MaxBackups int    `mapstructure:"max_backups"`
    MaxAgeDays int    `mapstructure:"max_age_days"`
    Compress   bool   `mapstructure:"compress"`
}

// PoolConfig sizes the node pool and its timeouts.
type PoolConfig struct {
    MaxNodeCount       int  `mapstructure:"max_node_count"`
    NodeReuse          bool `mapstructure:"node_reuse"`
    LowPriority        bool `mapstructure:"low_priority"`
    HandshakeTimeoutMS int  `mapstructure:"handshake_timeout_ms"`
    ShutdownGraceMS    int  `mapstructure:"shutdown_grace_ms"`
    DrainTimeoutMS     int  `mapstructure:"drain_timeout_ms"`
    KillTimeoutMS      int  `mapstructure:"kill_timeout_ms"`
    // IdleTTLMS is how long an idle reusable node stays in the catalog and
    // how long a worker lingers waiting for a new host.
    IdleTTLMS int `mapstructure:"idle_ttl_ms"`
}

func (p PoolConfig) HandshakeTimeout() time.Duration { return ms(p.HandshakeTimeoutMS) }
func (p PoolConfig) ShutdownGrace() time.Duration    { return ms(p.ShutdownGraceMS) }
func (p PoolConfig) DrainTimeout() time.Duration     { return ms(p.DrainTimeoutMS) }
func (p PoolConfig) KillTimeout() time.Duration      { return ms(p.KillTimeoutMS) }
func (p PoolConfig) IdleTTL() time.Duration          { return ms(p.IdleTTLMS) }

// LauncherConfig controls how node processes are started.
type LauncherConfig struct {
    // NodeExe defaults to the running executable.
    NodeExe string `mapstructure:"node_exe"`
    // ExtraArgs is a shell-quoted string appended to the node command line.
    ExtraArgs       string `mapstructure:"extra_args"`
    EndpointDir     string `mapstructure:"endpoint_dir"`
    StderrTailBytes int64  `mapstructure:"stderr_tail_bytes"`
}

// TransportConfig selects the link kind and connect backoff.
type TransportConfig struct {
    // Kind: pipe, unix, winpipe, tcp, quic
    Kind                    string `mapstructure:"kind"`
    ConnectBackoffInitialMS int    `mapstructure:"connect_backoff_initial_ms"`
    ConnectBackoffMaxMS     int    `mapstructure:"connect_backoff_max_ms"`
    ConnectBackoffJitterMS  int    `mapstructure:"connect_backoff_jitter_ms"`
    // ConnectTimeoutMS bounds the whole connect phase of one launch.
    ConnectTimeoutMS int `mapstructure:"connect_timeout_ms"`
}

func (t TransportConfig) ConnectTimeout() time.Duration { return ms(t.ConnectTimeoutMS) }

// CatalogConfig selects the idle-node catalog backend.
type CatalogConfig struct {
    // Kind: badger, memory or none. Only badger outlives the host, so the
    // other two turn pool.node_reuse off.
    Kind string `mapstructure:"kind"`
    // Path of the badger directory; defaults to <data_dir>/catalog.
    Path string `mapstructure:"path"`
}

// ToolsetConfig overrides the handshake inputs. Empty values use the built-in ones.
type ToolsetConfig struct {
    Version string `mapstructure:"version"`
    Salt    string `mapstructure:"salt"`
}

type MetricsConfig struct {
    Enable bool   `mapstructure:"enable"`
    Listen string `mapstructure:"listen"`
}

type TracingConfig struct {
    Enable bool `mapstructure:"enable"`
    Pretty bool `mapstructure:"pretty"`
}

// EventsConfig enables publishing lifecycle events to NATS when NATSURL is set.
type EventsConfig struct {
    NATSURL string `mapstructure:"nats_url"`
    Subject string `mapstructure:"subject"`
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "buildnode",
        DataDir: "./data",
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stderr"},
            Development: false,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/buildnode.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Pool: PoolConfig{
            MaxNodeCount:       4,
            NodeReuse:          true,
            HandshakeTimeoutMS: 15000,
            ShutdownGraceMS:    5000,
            DrainTimeoutMS:     5000,
            KillTimeoutMS:      5000,
            IdleTTLMS:          15 * 60 * 1000,
        },
        Launcher:  LauncherConfig{StderrTailBytes: 8 << 10},
        Transport: TransportConfig{Kind: "pipe", ConnectBackoffInitialMS: 50, ConnectBackoffMaxMS: 1000, ConnectBackoffJitterMS: 25, ConnectTimeoutMS: 30000},
        Catalog:   CatalogConfig{Kind: "badger"},
        Metrics:   MetricsConfig{Listen: "127.0.0.1:9464"},
        Events:    EventsConfig{Subject: "buildnode.events"},
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix BUILDNODE and `.`/`-` are replaced with `_`.
// Example: BUILDNODE_POOL_MAX_NODE_COUNT=8
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("BUILDNODE")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()
    seedDefaults(v, cfg)

    if path == "" {
        if envPath := os.Getenv("BUILDNODE_CONFIG"); envPath != "" { path = envPath }
    }
    if path != "" {
        v.SetConfigFile(path)
    } else {
        v.SetConfigName("buildnode")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil { v.AddConfigPath(filepath.Join(home, ".buildnode")) }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) { return nil, fmt.Errorf("read config: %w", err) }
    }

    if err := v.Unmarshal(cfg); err != nil { return nil, fmt.Errorf("decode config: %w", err) }
    if err := cfg.validate(); err != nil { return nil, err }
    return cfg, nil
}

// seedDefaults registers every key so env-only configs work.
func seedDefaults(v *viper.Viper, cfg *Config) {
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("data_dir", cfg.DataDir)
    v.SetDefault("log.level", cfg.Log.Level)
    v.SetDefault("log.format", cfg.Log.Format)
    v.SetDefault("log.outputs", cfg.Log.Outputs)
    v.SetDefault("log.development", cfg.Log.Development)
    v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
    v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
    v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
    v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
    v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
    v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

    v.SetDefault("pool.max_node_count", cfg.Pool.MaxNodeCount)
    v.SetDefault("pool.node_reuse", cfg.Pool.NodeReuse)
    v.SetDefault("pool.low_priority", cfg.Pool.LowPriority)
    v.SetDefault("pool.handshake_timeout_ms", cfg.Pool.HandshakeTimeoutMS)
    v.SetDefault("pool.shutdown_grace_ms", cfg.Pool.ShutdownGraceMS)
    v.SetDefault("pool.drain_timeout_ms", cfg.Pool.DrainTimeoutMS)
    v.SetDefault("pool.kill_timeout_ms", cfg.Pool.KillTimeoutMS)
    v.SetDefault("pool.idle_ttl_ms", cfg.Pool.IdleTTLMS)

    v.SetDefault("launcher.node_exe", cfg.Launcher.NodeExe)
    v.SetDefault("launcher.extra_args", cfg.Launcher.ExtraArgs)
    v.SetDefault("launcher.endpoint_dir", cfg.Launcher.EndpointDir)
    v.SetDefault("launcher.stderr_tail_bytes", cfg.Launcher.StderrTailBytes)

    v.SetDefault("transport.kind", cfg.Transport.Kind)
    v.SetDefault("transport.connect_backoff_initial_ms", cfg.Transport.ConnectBackoffInitialMS)
    v.SetDefault("transport.connect_backoff_max_ms", cfg.Transport.ConnectBackoffMaxMS)
    v.SetDefault("transport.connect_backoff_jitter_ms", cfg.Transport.ConnectBackoffJitterMS)
    v.SetDefault("transport.connect_timeout_ms", cfg.Transport.ConnectTimeoutMS)

    v.SetDefault("catalog.kind", cfg.Catalog.Kind)
    v.SetDefault("catalog.path", cfg.Catalog.Path)
    v.SetDefault("toolset.version", cfg.Toolset.Version)
    v.SetDefault("toolset.salt", cfg.Toolset.Salt)
    v.SetDefault("metrics.enable", cfg.Metrics.Enable)
    v.SetDefault("metrics.listen", cfg.Metrics.Listen)
    v.SetDefault("tracing.enable", cfg.Tracing.Enable)
    v.SetDefault("tracing.pretty", cfg.Tracing.Pretty)
    v.SetDefault("events.nats_url", cfg.Events.NATSURL)
    v.SetDefault("events.subject", cfg.Events.Subject)
}

func (c *Config) validate() error {
    switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
    case "debug", "info", "warn", "warning", "error":
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }
    if c.Log.Format == "" { c.Log.Format = "console" }
    if len(c.Log.Outputs) == 0 { c.Log.Outputs = []string{"stderr"} }

    if c.Pool.MaxNodeCount < 1 { return fmt.Errorf("pool.max_node_count must be >= 1, got %d", c.Pool.MaxNodeCount) }
    for name, v := range map[string]int{
        "pool.handshake_timeout_ms": c.Pool.HandshakeTimeoutMS,
        "pool.shutdown_grace_ms":    c.Pool.ShutdownGraceMS,
        "pool.drain_timeout_ms":     c.Pool.DrainTimeoutMS,
        "pool.kill_timeout_ms":      c.Pool.KillTimeoutMS,
        "pool.idle_ttl_ms":          c.Pool.IdleTTLMS,
    } {
        if v < 0 { return fmt.Errorf("invalid %s: %d", name, v) }
    }

    c.Transport.Kind = strings.ToLower(strings.TrimSpace(c.Transport.Kind))
    switch c.Transport.Kind {
    case "pipe", "unix", "winpipe", "tcp", "quic":
    case "":
        c.Transport.Kind = "pipe"
    default:
        return fmt.Errorf("invalid transport.kind: %q", c.Transport.Kind)
    }

    c.Catalog.Kind = strings.ToLower(strings.TrimSpace(c.Catalog.Kind))
    switch c.Catalog.Kind {
    case "memory", "badger", "none":
    case "":
        c.Catalog.Kind = "badger"
    default:
        return fmt.Errorf("invalid catalog.kind: %q", c.Catalog.Kind)
    }
    if c.Catalog.Kind == "badger" && c.Catalog.Path == "" { c.Catalog.Path = filepath.Join(c.DataDir, "catalog") }
    // lingering nodes nobody can find again
    if c.Catalog.Kind != "badger" { c.Pool.NodeReuse = false }
    if c.Launcher.EndpointDir == "" { c.Launcher.EndpointDir = filepath.Join(c.DataDir, "endpoints") }
    if c.Events.Subject == "" { c.Events.Subject = "buildnode.events" }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil { panic(err) }
    return cfg
}
