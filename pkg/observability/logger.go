// Package observability wires logging, metrics and tracing for buildnode.
package observability

import (
    "os"
    "path/filepath"
    "strings"

    "github.com/mattn/go-isatty"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "buildnode/pkg/config"
)

// SetupLogger builds a zap.Logger from c, installs it as the global logger
// and redirects the stdlib log package. The caller should defer logger.Sync().
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
    level := zap.NewAtomicLevelAt(parseLevel(c.Level))

    var cores []zapcore.Core
    for _, out := range c.Outputs {
        var ws zapcore.WriteSyncer
        var tty bool
        switch strings.ToLower(out) {
        case "stdout":
            ws, tty = zapcore.Lock(os.Stdout), isatty.IsTerminal(os.Stdout.Fd())
        case "stderr":
            ws, tty = zapcore.Lock(os.Stderr), isatty.IsTerminal(os.Stderr.Fd())
        default:
            ws = fileSink(out, c.Rotation)
        }
        cores = append(cores, zapcore.NewCore(newEncoder(c, tty), ws, level))
    }
    if len(cores) == 0 { cores = append(cores, zapcore.NewCore(newEncoder(c, false), zapcore.Lock(os.Stderr), level)) }

    opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
    if c.Development { opts = append(opts, zap.Development()) }

    logger := zap.New(zapcore.NewTee(cores...), opts...)
    zap.ReplaceGlobals(logger)
    _, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, nil
}

func parseLevel(s string) zapcore.Level {
    switch strings.ToLower(s) {
    case "debug":
        return zap.DebugLevel
    case "warn", "warning":
        return zap.WarnLevel
    case "error":
        return zap.ErrorLevel
    default:
        return zap.InfoLevel
    }
}

// newEncoder colors levels only for console output on a terminal.
func newEncoder(c config.LogConfig, tty bool) zapcore.Encoder {
    cfg := zap.NewProductionEncoderConfig()
    if c.Development { cfg = zap.NewDevelopmentEncoderConfig() }
    cfg.EncodeTime = zapcore.ISO8601TimeEncoder
    if strings.ToLower(c.Format) == "json" { return zapcore.NewJSONEncoder(cfg) }
    if tty {
        cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
    } else {
        cfg.EncodeLevel = zapcore.CapitalLevelEncoder
    }
    return zapcore.NewConsoleEncoder(cfg)
}

// fileSink writes to path, rotating with lumberjack when enabled. An
// unwritable path falls back to stderr.
func fileSink(path string, r config.RotationConfig) zapcore.WriteSyncer {
    if r.Enable {
        if strings.TrimSpace(r.Filename) != "" { path = r.Filename }
        return zapcore.AddSync(&lumberjack.Logger{
            Filename:   path,
            MaxSize:    max(r.MaxSizeMB, 10),
            MaxBackups: max(r.MaxBackups, 1),
            MaxAge:     max(r.MaxAgeDays, 7),
            Compress:   r.Compress,
        })
    }
    if dir := filepath.Dir(path); dir != "." { _ = os.MkdirAll(dir, 0o755) }
    f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil { return zapcore.Lock(os.Stderr) }
    return zapcore.AddSync(f)
}
