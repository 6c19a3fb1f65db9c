package events

import (
    "context"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
)

// LogSink writes events to a zap logger; failures log at warn.
type LogSink struct {
    Logger *zap.Logger
}

func (s LogSink) Publish(_ context.Context, e Event) {
    log := s.Logger
    if log == nil { log = zap.L() }
    level := zapcore.InfoLevel
    switch e.Kind {
    case LaunchFailed, HandshakeFailed:
        level = zapcore.WarnLevel
    case Ready, Reclaimed:
        level = zapcore.DebugLevel
    }
    fields := []zap.Field{zap.String("event", string(e.Kind)), zap.String("session", e.Session)}
    if e.NodeID != 0 { fields = append(fields, zap.Int("node_id", e.NodeID)) }
    if e.PID != 0 { fields = append(fields, zap.Int("pid", e.PID)) }
    if e.Endpoint != "" { fields = append(fields, zap.String("endpoint", e.Endpoint)) }
    if e.Kind == Terminated { fields = append(fields, zap.Bool("reusable", e.Reusable), zap.Bool("forced", e.Forced)) }
    if e.Error != "" { fields = append(fields, zap.String("error", e.Error)) }
    if ce := log.Check(level, "node lifecycle"); ce != nil { ce.Write(fields...) }
}
